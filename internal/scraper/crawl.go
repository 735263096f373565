package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pauljones0/dealboard/internal/util"
)

// DiscoverLinks returns up to limit unique product links found on a listing
// page, restricted to the listing's registrable domain. A non-positive limit
// falls back to the configured maximum.
func (c *Client) DiscoverLinks(ctx context.Context, listingURL string, limit int) ([]string, error) {
	if limit <= 0 || limit > c.maxLinks {
		limit = c.maxLinks
	}

	html, err := c.fetchHTML(ctx, listingURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing %s: %w", listingURL, err)
	}

	base, err := url.Parse(listingURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing URL %s: %w", listingURL, err)
	}
	site := util.GetDomain(listingURL)
	self, _ := util.NormalizeURL(listingURL)

	seen := make(map[string]bool)
	var links []string
	doc.Find(c.selectors.Crawl.Links).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, ok := s.Attr("href")
		if !ok {
			return true
		}
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return true
		}
		ref, err := base.Parse(href)
		if err != nil || (ref.Scheme != "http" && ref.Scheme != "https") {
			return true
		}
		abs, err := util.NormalizeURL(ref.String())
		if err != nil || abs == self || seen[abs] {
			return true
		}
		if util.GetDomain(abs) != site || !c.isProductPath(ref.Path) {
			return true
		}
		seen[abs] = true
		links = append(links, abs)
		return len(links) < limit
	})
	return links, nil
}

func (c *Client) isProductPath(path string) bool {
	patterns := c.selectors.Crawl.ProductPaths
	if len(patterns) == 0 {
		return true
	}
	path = strings.ToLower(path)
	for _, p := range patterns {
		if strings.Contains(path, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
