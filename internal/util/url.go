package util

import (
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// trackingParams are stripped from deal links before they are stored.
var trackingParams = []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content", "fbclid", "gclid", "ref_"}

// NormalizeURL drops tracking parameters, the fragment and a trailing slash.
// URLs that are not absolute http(s) URLs are returned unchanged.
func NormalizeURL(rawURL string) (string, error) {
	parsedURL, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return rawURL, err
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return rawURL, nil
	}

	parsedURL.Fragment = ""
	if len(parsedURL.Path) > 1 && strings.HasSuffix(parsedURL.Path, "/") {
		parsedURL.Path = parsedURL.Path[:len(parsedURL.Path)-1]
		// Clear RawPath to ensure String() regenerates the URL path without the trailing slash
		parsedURL.RawPath = ""
	}
	queryParams := parsedURL.Query()
	for _, param := range trackingParams {
		queryParams.Del(param)
	}
	parsedURL.RawQuery = queryParams.Encode()
	return parsedURL.String(), nil
}

// GetDomain returns the registrable domain (eTLD+1) of a URL, e.g.
// "https://sub.example.co.uk/x" -> "example.co.uk". It returns "" when the
// host cannot be resolved against the public suffix list.
func GetDomain(rawURL string) string {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := parsedURL.Hostname()
	if host == "" {
		return ""
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return domain
}

// MerchantFromURL guesses a merchant name from the registrable domain,
// e.g. "https://www.bestbuy.ca/p/1" -> "bestbuy".
func MerchantFromURL(rawURL string) string {
	domain := GetDomain(rawURL)
	if domain == "" {
		return ""
	}
	suffix, _ := publicsuffix.PublicSuffix(domain)
	name := strings.TrimSuffix(domain, "."+suffix)
	return name
}
