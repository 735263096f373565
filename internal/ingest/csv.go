// Package ingest turns heterogeneous deal records (JSON bodies, CSV rows,
// scraped pages) into canonical deals.
package ingest

import (
	"regexp"
	"strings"

	"github.com/pauljones0/dealboard/internal/models"
)

var lineBreak = regexp.MustCompile(`\r?\n`)

// ParseCSV parses CSV text with a header line into one map per data row.
// Blank lines are skipped. Rows shorter than the header get "" for the
// missing columns; extra cells are ignored. Unbalanced quotes are tolerated.
func ParseCSV(text string) []map[string]string {
	var lines []string
	for _, l := range lineBreak.Split(text, -1) {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) == 0 {
		return []map[string]string{}
	}

	header := splitRow(lines[0])
	rows := make([]map[string]string, 0, len(lines)-1)
	for _, l := range lines[1:] {
		cells := splitRow(l)
		row := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(cells) {
				row[name] = cells[i]
			} else {
				row[name] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// Header returns the trimmed column names of the first non-blank line.
func Header(text string) []string {
	for _, l := range lineBreak.Split(text, -1) {
		if strings.TrimSpace(l) != "" {
			return splitRow(l)
		}
	}
	return nil
}

// splitRow splits one line on commas outside quotes. Inside quotes a doubled
// quote is a literal quote. Every field is trimmed.
func splitRow(line string) []string {
	var (
		fields   []string
		cur      strings.Builder
		inQuotes bool
	)
	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		switch {
		case ch == '"':
			if inQuotes && i+1 < len(runes) && runes[i+1] == '"' {
				cur.WriteRune('"')
				i++
				continue
			}
			inQuotes = !inQuotes
		case ch == ',' && !inQuotes:
			fields = append(fields, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteRune(ch)
		}
	}
	fields = append(fields, strings.TrimSpace(cur.String()))
	return fields
}

// CSVInputs wraps parsed CSV rows as bulk-CSV deal inputs sharing defaults.
func CSVInputs(rows []map[string]string, defaults map[string]any) []models.DealInput {
	out := make([]models.DealInput, 0, len(rows))
	for _, r := range rows {
		raw := make(map[string]any, len(r))
		for k, v := range r {
			raw[k] = v
		}
		out = append(out, models.DealInput{Source: models.SourceBulkCSV, Raw: raw, Defaults: defaults})
	}
	return out
}
