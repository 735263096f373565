package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// renderHeaders are sent with every rendered page request.
var renderHeaders = network.Headers{
	"Accept-Language": "en-US,en;q=0.9",
}

// ChromeRenderer renders pages in a shared headless Chrome instance.
// Each Render call opens its own tab.
type ChromeRenderer struct {
	allocCtx context.Context
	cancel   context.CancelFunc
	timeout  time.Duration
}

func NewChromeRenderer(userAgent string, timeout time.Duration) *ChromeRenderer {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(userAgent),
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ChromeRenderer{allocCtx: allocCtx, cancel: cancel, timeout: timeout}
}

func (r *ChromeRenderer) Render(ctx context.Context, pageURL string) (string, error) {
	tabCtx, cancelTab := chromedp.NewContext(r.allocCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, r.timeout)
	defer cancelTimeout()
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	var html string
	err := chromedp.Run(tabCtx,
		network.Enable(),
		network.SetExtraHTTPHeaders(renderHeaders),
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("failed to render %s: %w", pageURL, err)
	}
	return html, nil
}

// Close shuts down the browser.
func (r *ChromeRenderer) Close() {
	r.cancel()
}
