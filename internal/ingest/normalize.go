package ingest

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/pauljones0/dealboard/internal/models"
)

// Normalize resolves a raw deal record into a canonical deal. Defaults are
// only consulted for sources that accept them. Rejections wrap one of
// models.ErrMissingRequiredField, models.ErrInvalidNumeric or
// models.ErrInvalidDate.
func Normalize(in models.DealInput) (models.Deal, error) {
	raw := in.Raw
	var defaults map[string]any
	if in.Source.AcceptsDefaults() {
		defaults = in.Defaults
	}

	withDefault := func(key string) string {
		if s := trimmed(raw, key); s != "" {
			return s
		}
		return trimmed(defaults, key)
	}

	merchant := withDefault("merchantName")
	city := withDefault("city")
	image := withDefault("imageUrl")

	candidates := []string{trimmed(raw, "title"), trimmed(raw, "description"), trimmed(raw, "merchantName")}
	if in.Source == models.SourceURLExtracted {
		candidates = append(candidates, strings.TrimSpace(in.SourceURL))
	}
	title := firstNonEmpty(candidates...)

	var missing []string
	for _, f := range []struct{ name, value string }{
		{"title", title},
		{"merchantName", merchant},
		{"city", city},
		{"imageUrl", image},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return models.Deal{}, fmt.Errorf("%w: %s", models.ErrMissingRequiredField, strings.Join(missing, ", "))
	}

	oldPrice := numberField(raw, defaults, "oldPrice")
	newPrice := numberField(raw, defaults, "newPrice")

	pct, explicit, err := explicitDiscount(raw, defaults)
	if err != nil {
		return models.Deal{}, err
	}
	// An explicit but unparseable discount stays nil and blocks derivation.
	switch {
	case in.Source == models.SourceURLExtracted && (pct != nil || !explicit):
		oldPrice, newPrice, pct = Reconcile(oldPrice, newPrice, pct)
	case !explicit:
		pct = DeriveDiscount(oldPrice, newPrice)
	}

	expires, err := expiryField(raw, defaults)
	if err != nil {
		return models.Deal{}, err
	}

	return models.Deal{
		Title:        title,
		Description:  trimmed(raw, "description"),
		MerchantName: merchant,
		City:         city,
		Category:     withDefault("category"),
		Tags:         tagsField(raw, defaults),
		ImageURL:     image,
		OldPrice:     oldPrice,
		NewPrice:     newPrice,
		DiscountPct:  pct,
		ExpiresAt:    expires,
		DeepLink:     withDefault("deepLink"),
		IsActive:     activeField(raw, defaults),
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func numberField(raw, defaults map[string]any, key string) *float64 {
	f, _ := presentNumber(raw, defaults, key)
	return f
}

// presentNumber coerces raw[key], falling back to defaults[key]. present
// reports whether either held a non-blank value, parseable or not.
func presentNumber(raw, defaults map[string]any, key string) (f *float64, present bool) {
	if v, ok := lookup(raw, key); ok && !isBlank(v) {
		return toNumber(v), true
	}
	if v, ok := lookup(defaults, key); ok && !isBlank(v) {
		return toNumber(v), true
	}
	return nil, false
}

// explicitDiscount returns the caller-supplied percentage, rounded, and
// whether one was supplied at all. An unparseable value is explicit but nil;
// an out-of-range one is rejected.
func explicitDiscount(raw, defaults map[string]any) (pct *int, explicit bool, err error) {
	f, present := presentNumber(raw, defaults, "discountPct")
	if f == nil {
		return nil, present, nil
	}
	rounded, err := roundPct(*f)
	if err != nil {
		return nil, true, err
	}
	return &rounded, true, nil
}

func roundPct(f float64) (int, error) {
	pct := int(math.Round(f))
	if pct < 0 || pct > 100 {
		return 0, fmt.Errorf("%w: discountPct %v outside 0-100", models.ErrInvalidNumeric, f)
	}
	return pct, nil
}

func tagsField(raw, defaults map[string]any) []string {
	if v, ok := lookup(raw, "tags"); ok {
		if tags, ok := splitTags(v); ok {
			return tags
		}
	}
	if v, ok := lookup(defaults, "tags"); ok {
		if tags, ok := splitTags(v); ok {
			return tags
		}
	}
	return []string{}
}

func expiryField(raw, defaults map[string]any) (*time.Time, error) {
	v := raw["expiresAt"]
	if !truthy(v) {
		v = defaults["expiresAt"]
		if !truthy(v) {
			return nil, nil
		}
	}
	ts, err := parseDate(v)
	if err != nil {
		return nil, fmt.Errorf("%w: expiresAt %v", models.ErrInvalidDate, err)
	}
	return ts, nil
}

// parseActive is true unless the value spells "false" in any case.
func parseActive(v any) bool {
	return strings.ToLower(stringify(v)) != "false"
}

func activeField(raw, defaults map[string]any) bool {
	if v, ok := lookup(raw, "isActive"); ok {
		return parseActive(v)
	}
	if v, ok := lookup(defaults, "isActive"); ok {
		return parseActive(v)
	}
	return true
}
