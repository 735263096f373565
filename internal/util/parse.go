package util

import (
	"regexp"
	"strconv"
)

var nonPriceRegex = regexp.MustCompile(`[^\d.]`)

// CleanPriceString drops everything except digits and the decimal point,
// so "₹1,299.00" becomes "1299.00".
func CleanPriceString(s string) string {
	return nonPriceRegex.ReplaceAllString(s, "")
}

// ParsePrice cleans s and parses it. ok is false when nothing numeric remains.
func ParsePrice(s string) (float64, bool) {
	cleaned := CleanPriceString(s)
	if cleaned == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
