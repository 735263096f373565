package util

import (
	"net/url"
	"strings"
)

// CleanReferralLink unwraps known affiliate redirectors to the destination URL
// and, when amazonTag is set, rewrites Amazon links to carry that tag.
func CleanReferralLink(rawUrl, amazonTag string) (string, bool) {
	parsedUrl, err := url.Parse(rawUrl)
	if err != nil {
		return rawUrl, false
	}

	switch {
	case parsedUrl.Host == "click.linksynergy.com":
		murlParam := parsedUrl.Query().Get("murl")
		if murlParam != "" {
			return murlParam, true
		}
		return rawUrl, false

	case parsedUrl.Host == "go.redirectingat.com":
		urlParam := parsedUrl.Query().Get("url")
		if urlParam != "" {
			return urlParam, true
		}
		return rawUrl, false

	case amazonTag != "" && strings.Contains(parsedUrl.Host, "amazon."):
		queryParams := parsedUrl.Query()
		if queryParams.Get("tag") == amazonTag {
			return rawUrl, false
		}
		queryParams.Set("tag", amazonTag)
		parsedUrl.RawQuery = queryParams.Encode()
		return parsedUrl.String(), true

	default:
		return rawUrl, false
	}
}
