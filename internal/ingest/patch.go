package ingest

import (
	"fmt"
	"strings"
	"time"

	"github.com/pauljones0/dealboard/internal/models"
)

// NormalizePatch validates a partial update strictly. Only keys present in
// raw are set; an explicit null clears nullable fields.
func NormalizePatch(raw map[string]any) (models.DealPatch, error) {
	var p models.DealPatch
	var missing []string

	requiredStr := func(key string) *string {
		v, ok := raw[key]
		if !ok {
			return nil
		}
		s := strings.TrimSpace(stringify(v))
		if s == "" {
			missing = append(missing, key)
		}
		return &s
	}
	optionalStr := func(key string) *string {
		v, ok := raw[key]
		if !ok {
			return nil
		}
		s := strings.TrimSpace(stringify(v))
		return &s
	}

	p.Title = requiredStr("title")
	p.MerchantName = requiredStr("merchantName")
	p.City = requiredStr("city")
	p.ImageURL = requiredStr("imageUrl")
	if len(missing) > 0 {
		return models.DealPatch{}, fmt.Errorf("%w: %s", models.ErrMissingRequiredField, strings.Join(missing, ", "))
	}
	p.Description = optionalStr("description")
	p.Category = optionalStr("category")
	p.DeepLink = optionalStr("deepLink")

	if v, ok := raw["tags"]; ok {
		p.TagsSet = true
		p.Tags, _ = splitTags(v)
		if p.Tags == nil {
			p.Tags = []string{}
		}
	}

	for key, dst := range map[string]*models.Optional[float64]{"oldPrice": &p.OldPrice, "newPrice": &p.NewPrice} {
		if v, ok := raw[key]; ok {
			dst.Set = true
			if !isBlank(v) {
				dst.Value = toNumber(v)
			}
		}
	}

	if v, ok := raw["discountPct"]; ok {
		p.DiscountPct.Set = true
		if f := toNumberOrBlank(v); f != nil {
			pct, err := roundPct(*f)
			if err != nil {
				return models.DealPatch{}, err
			}
			p.DiscountPct.Value = &pct
		}
	}

	if v, ok := raw["expiresAt"]; ok {
		p.ExpiresAt.Set = true
		if truthy(v) {
			ts, err := parseDate(v)
			if err != nil {
				return models.DealPatch{}, fmt.Errorf("%w: expiresAt %v", models.ErrInvalidDate, err)
			}
			p.ExpiresAt.Value = ts
		}
	}

	if v, ok := lookup(raw, "isActive"); ok {
		active := parseActive(v)
		p.IsActive = &active
	}
	return p, nil
}

func toNumberOrBlank(v any) *float64 {
	if isBlank(v) {
		return nil
	}
	return toNumber(v)
}

// ApplyPatch merges patch into existing. When prices change without an
// explicit discount, the discount is derived again from the new prices.
func ApplyPatch(existing models.Deal, patch models.DealPatch, now time.Time) models.Deal {
	next := patch.Apply(existing)
	if patch.PricesChanged() && !patch.DiscountPct.Set {
		next.DiscountPct = DeriveDiscount(next.OldPrice, next.NewPrice)
	}
	next.UpdatedAt = now
	return next
}
