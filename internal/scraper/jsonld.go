package scraper

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pauljones0/dealboard/internal/util"
)

// productFromJSONLD scans every structured-data block of the page and maps
// the first schema.org Product it finds. Blocks that fail to parse are skipped.
func productFromJSONLD(doc *goquery.Document, selector string) *Product {
	var found map[string]any
	doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var data any
		if err := json.Unmarshal([]byte(s.Text()), &data); err != nil {
			return true
		}
		found = findProduct(data)
		return found == nil
	})
	if found == nil {
		return &Product{}
	}

	p := &Product{
		Title:       firstString(found, "name", "title"),
		Description: firstString(found, "description"),
		ImageURL:    imageValue(found["image"]),
		Price:       offerPrice(found["offers"]),
	}
	return p
}

// findProduct walks arrays and @graph containers looking for a Product node.
func findProduct(v any) map[string]any {
	switch node := v.(type) {
	case []any:
		for _, item := range node {
			if p := findProduct(item); p != nil {
				return p
			}
		}
	case map[string]any:
		if isProduct(node["@type"]) {
			return node
		}
		if graph, ok := node["@graph"]; ok {
			return findProduct(graph)
		}
	}
	return nil
}

// isProduct matches "@type": "Product" or ["Product", ...] case-insensitively.
func isProduct(t any) bool {
	if arr, ok := t.([]any); ok {
		if len(arr) == 0 {
			return false
		}
		t = arr[0]
	}
	s, ok := t.(string)
	return ok && strings.EqualFold(strings.TrimSpace(s), "product")
}

func firstString(obj map[string]any, keys ...string) *string {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok {
			if v := trimmedPtr(s); v != nil {
				return v
			}
		}
	}
	return nil
}

func imageValue(v any) *string {
	switch img := v.(type) {
	case string:
		return trimmedPtr(img)
	case []any:
		if len(img) == 0 {
			return nil
		}
		return imageValue(img[0])
	case map[string]any:
		if u, ok := img["url"].(string); ok {
			return trimmedPtr(u)
		}
		if u, ok := img["contentUrl"].(string); ok {
			return trimmedPtr(u)
		}
	}
	return nil
}

func offerPrice(v any) *float64 {
	switch offers := v.(type) {
	case []any:
		if len(offers) == 0 {
			return nil
		}
		return offerPrice(offers[0])
	case map[string]any:
		if p := numberValue(offers["price"]); p != nil {
			return p
		}
		return numberValue(offers["lowPrice"])
	}
	return nil
}

func numberValue(v any) *float64 {
	switch n := v.(type) {
	case float64:
		return &n
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return &f
		}
		if f, ok := util.ParsePrice(s); ok {
			return &f
		}
	}
	return nil
}

func trimmedPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
