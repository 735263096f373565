package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pauljones0/dealboard/internal/config"
	"github.com/pauljones0/dealboard/internal/models"
	"github.com/pauljones0/dealboard/internal/util"
	"golang.org/x/time/rate"
)

const maxBodyBytes = 5 << 20

// Product is what a product page yields. Every field is independently optional.
type Product struct {
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	ImageURL    *string  `json:"imageUrl"`
	Price       *float64 `json:"price"`
}

// Empty reports whether the page gave no title, no image and no price.
func (p *Product) Empty() bool {
	return p.Title == nil && p.ImageURL == nil && p.Price == nil
}

type Extractor interface {
	Extract(ctx context.Context, pageURL string) (*Product, error)
	DiscoverLinks(ctx context.Context, listingURL string, limit int) ([]string, error)
}

// Renderer returns the rendered HTML of a page, for sites that build their
// markup with JavaScript.
type Renderer interface {
	Render(ctx context.Context, pageURL string) (string, error)
}

type Client struct {
	httpClient *http.Client
	selectors  SelectorConfig
	renderer   Renderer
	retries    int
	retryBase  time.Duration
	maxLinks   int

	rateLimit rate.Limit
	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
}

// New builds an extractor. renderer may be nil to disable the headless fallback.
func New(cfg *config.Config, selectors SelectorConfig, renderer Renderer) *Client {
	limit := rate.Inf
	if cfg.ExtractRatePerSec > 0 {
		limit = rate.Limit(cfg.ExtractRatePerSec)
	}
	timeout := cfg.ExtractTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	maxLinks := cfg.CrawlMaxLinks
	if maxLinks <= 0 {
		maxLinks = 50
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		selectors: selectors.withDefaults(),
		renderer:  renderer,
		retries:   max(cfg.ExtractRetries, 0),
		retryBase: 500 * time.Millisecond,
		maxLinks:  maxLinks,
		rateLimit: limit,
		limiters:  make(map[string]*rate.Limiter),
	}
}

func (c *Client) Extract(ctx context.Context, pageURL string) (*Product, error) {
	html, err := c.fetchHTML(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	product, err := c.parseProduct(html)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page %s: %w", pageURL, err)
	}
	if !product.Empty() || c.renderer == nil {
		return product, nil
	}

	slog.Info("Static page had no product data, rendering headless", "url", pageURL)
	rendered, err := c.renderer.Render(ctx, pageURL)
	if err != nil {
		slog.Warn("Headless render failed", "url", pageURL, "error", err)
		return product, nil
	}
	renderedProduct, err := c.parseProduct(rendered)
	if err != nil {
		return product, nil
	}
	return renderedProduct, nil
}

func (c *Client) parseProduct(html string) (*Product, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	product := productFromJSONLD(doc, c.selectors.JSONLD)
	if product.Empty() {
		product = productFromMeta(doc, c.selectors.Meta)
	}
	return product, nil
}

func productFromMeta(doc *goquery.Document, sel MetaSelectors) *Product {
	p := &Product{
		Title:       firstMatch(doc, sel.Title),
		Description: firstMatch(doc, sel.Description),
		ImageURL:    firstMatch(doc, sel.Image),
	}
	if raw := firstMatch(doc, sel.Price); raw != nil {
		if f, ok := util.ParsePrice(*raw); ok {
			p.Price = &f
		}
	}
	return p
}

func firstMatch(doc *goquery.Document, selectors []string) *string {
	for _, selector := range selectors {
		var value *string
		doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if content, ok := s.Attr("content"); ok {
				value = trimmedPtr(content)
			} else {
				value = trimmedPtr(s.Text())
			}
			return value == nil
		})
		if value != nil {
			return value
		}
	}
	return nil
}

func (c *Client) limiterFor(host string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[host]
	if !ok {
		l = rate.NewLimiter(c.rateLimit, 1)
		c.limiters[host] = l
	}
	return l
}

// fetchHTML downloads a page, retrying transport errors and 5xx responses.
func (c *Client) fetchHTML(ctx context.Context, urlStr string) (string, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", fmt.Errorf("%w: failed to parse URL %s: %v", models.ErrFetch, urlStr, err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return "", fmt.Errorf("%w: invalid URL scheme %q: only http and https allowed", models.ErrFetch, parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return "", fmt.Errorf("%w: URL %s has no host", models.ErrFetch, urlStr)
	}

	limiter := c.limiterFor(parsedURL.Host)
	var body string
	err = util.RetryWithBackoffFrom(ctx, c.retries, c.retryBase, func(attempt int) error {
		if err := limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		if attempt > 0 {
			slog.Warn("Retrying page fetch", "url", urlStr, "attempt", attempt+1)
		}
		b, err := c.fetchOnce(ctx, urlStr)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %s: %v", models.ErrFetch, urlStr, err)
		}
		if errors.Is(err, models.ErrFetch) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", models.ErrFetch, err)
	}
	return body, nil
}

func (c *Client) fetchOnce(ctx context.Context, urlStr string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return "", util.Permanent(fmt.Errorf("failed to create request for URL %s: %w", urlStr, err))
	}
	req.Header.Set("User-Agent", c.selectors.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch URL %s: %w", urlStr, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		statusErr := fmt.Errorf("%w: %s returned status code %d", models.ErrFetch, urlStr, res.StatusCode)
		if res.StatusCode >= 400 && res.StatusCode < 500 && res.StatusCode != http.StatusTooManyRequests {
			return "", util.Permanent(statusErr)
		}
		return "", statusErr
	}

	data, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read body of %s: %w", urlStr, err)
	}
	return string(data), nil
}
