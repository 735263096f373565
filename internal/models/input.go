package models

// Source identifies where a raw deal record came from. Only some sources
// honor caller-supplied defaults.
type Source int

const (
	SourceSingle Source = iota
	SourceBulkJSON
	SourceBulkCSV
	SourceURLExtracted
)

func (s Source) String() string {
	switch s {
	case SourceSingle:
		return "single"
	case SourceBulkJSON:
		return "bulk-json"
	case SourceBulkCSV:
		return "bulk-csv"
	case SourceURLExtracted:
		return "url"
	default:
		return "unknown"
	}
}

// AcceptsDefaults reports whether Defaults are merged for this source.
func (s Source) AcceptsDefaults() bool {
	return s == SourceBulkCSV || s == SourceURLExtracted
}

// DealInput is a raw, loosely typed deal record awaiting normalization.
// Raw values may be strings, float64, bool, []any or nil.
type DealInput struct {
	Source    Source
	Raw       map[string]any
	Defaults  map[string]any
	SourceURL string
}

// ItemError records a per-item failure inside a batch request.
type ItemError struct {
	Index *int   `json:"index,omitempty"`
	URL   string `json:"url,omitempty"`
	Error string `json:"error"`
}

// BatchResult is the partial-success response of every bulk endpoint.
type BatchResult struct {
	CreatedCount int         `json:"createdCount"`
	Created      []Deal      `json:"created"`
	Errors       []ItemError `json:"errors"`
}
