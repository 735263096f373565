// Package processor runs deal ingestion: normalization, validation and
// persistence for every inbound path, plus the moderation flow for paid
// submissions and the public feed read path.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pauljones0/dealboard/internal/cache"
	"github.com/pauljones0/dealboard/internal/config"
	"github.com/pauljones0/dealboard/internal/feed"
	"github.com/pauljones0/dealboard/internal/ingest"
	"github.com/pauljones0/dealboard/internal/models"
	"github.com/pauljones0/dealboard/internal/notifier"
	"github.com/pauljones0/dealboard/internal/scraper"
	"github.com/pauljones0/dealboard/internal/util"
	"github.com/pauljones0/dealboard/internal/validator"
)

const (
	messageKeyPrefix = "discord:"
	messageTTL       = 30 * 24 * time.Hour
)

type DealProcessor struct {
	store     DealStore
	notifier  DealNotifier
	extractor ProductExtractor
	enricher  Enricher
	keys      cache.KeyStore
	validator *validator.Validator
	shuffler  feed.Shuffler

	affiliateTag     string
	crawlConcurrency int
	now              func() time.Time
}

type Option func(*DealProcessor)

// WithEnricher enables AI title cleanup and category suggestions for
// extracted deals.
func WithEnricher(e Enricher) Option {
	return func(p *DealProcessor) { p.enricher = e }
}

// WithKeyStore remembers moderation message IDs so approvals edit the
// original message.
func WithKeyStore(keys cache.KeyStore) Option {
	return func(p *DealProcessor) { p.keys = keys }
}

// WithShuffler fixes the random source of the feed.
func WithShuffler(s feed.Shuffler) Option {
	return func(p *DealProcessor) { p.shuffler = s }
}

func New(store DealStore, n DealNotifier, x ProductExtractor, cfg *config.Config, opts ...Option) *DealProcessor {
	p := &DealProcessor{
		store:            store,
		notifier:         n,
		extractor:        x,
		validator:        validator.New(),
		affiliateTag:     cfg.AmazonAffiliateTag,
		crawlConcurrency: max(cfg.CrawlConcurrency, 1),
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *DealProcessor) normalize(in models.DealInput) (models.Deal, error) {
	d, err := ingest.Normalize(in)
	if err != nil {
		return models.Deal{}, err
	}
	if err := p.validator.ValidateDeal(d); err != nil {
		return models.Deal{}, err
	}
	return d, nil
}

// Create stores one deal from a JSON body.
func (p *DealProcessor) Create(ctx context.Context, raw map[string]any) (models.Deal, error) {
	d, err := p.normalize(models.DealInput{Source: models.SourceSingle, Raw: raw})
	if err != nil {
		return models.Deal{}, err
	}
	return p.store.CreateDeal(ctx, d)
}

// Update applies a strict partial update to an existing deal.
func (p *DealProcessor) Update(ctx context.Context, id string, raw map[string]any) (models.Deal, error) {
	patch, err := ingest.NormalizePatch(raw)
	if err != nil {
		return models.Deal{}, err
	}
	existing, err := p.store.GetDeal(ctx, id)
	if err != nil {
		return models.Deal{}, err
	}
	next := ingest.ApplyPatch(existing, patch, p.now())
	if err := p.validator.ValidateDeal(next); err != nil {
		return models.Deal{}, err
	}
	return p.store.UpdateDeal(ctx, next)
}

// ImportJSON normalizes every item and stores the accepted ones in one
// atomic batch. Rejected items are reported by index.
func (p *DealProcessor) ImportJSON(ctx context.Context, items []map[string]any) (models.BatchResult, error) {
	inputs := make([]models.DealInput, len(items))
	for i, raw := range items {
		inputs[i] = models.DealInput{Source: models.SourceBulkJSON, Raw: raw}
	}
	return p.importIndexed(ctx, inputs)
}

// ImportCSV is ImportJSON for CSV text. defaults fill blank cells.
func (p *DealProcessor) ImportCSV(ctx context.Context, text string, defaults map[string]any) (models.BatchResult, error) {
	return p.importIndexed(ctx, ingest.CSVInputs(ingest.ParseCSV(text), defaults))
}

func (p *DealProcessor) importIndexed(ctx context.Context, inputs []models.DealInput) (models.BatchResult, error) {
	var accepted []models.Deal
	errs := []models.ItemError{}
	for i, in := range inputs {
		d, err := p.normalize(in)
		if err != nil {
			idx := i
			errs = append(errs, models.ItemError{Index: &idx, Error: err.Error()})
			continue
		}
		accepted = append(accepted, d)
	}
	return p.persist(ctx, accepted, errs)
}

// persist writes the accepted deals in one transaction. A storage failure
// aborts the whole batch.
func (p *DealProcessor) persist(ctx context.Context, accepted []models.Deal, errs []models.ItemError) (models.BatchResult, error) {
	created := []models.Deal{}
	if len(accepted) > 0 {
		var err error
		created, err = p.store.CreateDeals(ctx, accepted)
		if err != nil {
			return models.BatchResult{}, err
		}
	}
	slog.Info("Batch import finished", "created", len(created), "rejected", len(errs))
	return models.BatchResult{CreatedCount: len(created), Created: created, Errors: errs}, nil
}

type extraction struct {
	url     string
	product *scraper.Product
	err     error
}

// ExtractURLs fetches each page in order and imports what it yields.
func (p *DealProcessor) ExtractURLs(ctx context.Context, urls []string, defaults map[string]any) (models.BatchResult, error) {
	return p.importExtracted(ctx, p.extractAll(ctx, urls, 1), defaults)
}

// Crawl discovers product links on a listing page and imports them. Pages
// are fetched concurrently but reported in link order.
func (p *DealProcessor) Crawl(ctx context.Context, listingURL string, limit int, defaults map[string]any) (models.BatchResult, error) {
	links, err := p.extractor.DiscoverLinks(ctx, listingURL, limit)
	if err != nil {
		return models.BatchResult{}, fmt.Errorf("failed to discover links on %s: %w", listingURL, err)
	}
	slog.Info("Discovered product links", "listing", listingURL, "count", len(links))
	return p.importExtracted(ctx, p.extractAll(ctx, links, p.crawlConcurrency), defaults)
}

func (p *DealProcessor) extractAll(ctx context.Context, urls []string, concurrency int) []extraction {
	results := make([]extraction, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, u := range urls {
		u = strings.TrimSpace(u)
		results[i].url = u
		if u == "" {
			results[i].err = fmt.Errorf("%w: empty url", models.ErrFetch)
			continue
		}
		g.Go(func() error {
			product, err := p.extractor.Extract(gctx, u)
			if err == nil && (product == nil || product.Empty()) {
				err = fmt.Errorf("%w: %s", models.ErrExtraction, u)
			}
			results[i].product, results[i].err = product, err
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (p *DealProcessor) importExtracted(ctx context.Context, results []extraction, defaults map[string]any) (models.BatchResult, error) {
	var accepted []models.Deal
	errs := []models.ItemError{}
	for _, r := range results {
		if r.err != nil {
			slog.Warn("Failed to extract product", "url", r.url, "error", r.err)
			errs = append(errs, models.ItemError{URL: r.url, Error: r.err.Error()})
			continue
		}
		d, err := p.normalize(models.DealInput{
			Source:    models.SourceURLExtracted,
			Raw:       p.productInput(ctx, r.url, r.product, defaults),
			Defaults:  defaults,
			SourceURL: r.url,
		})
		if err != nil {
			errs = append(errs, models.ItemError{URL: r.url, Error: err.Error()})
			continue
		}
		accepted = append(accepted, d)
	}
	return p.persist(ctx, accepted, errs)
}

// productInput turns extracted page data into a raw deal record.
func (p *DealProcessor) productInput(ctx context.Context, pageURL string, product *scraper.Product, defaults map[string]any) map[string]any {
	raw := map[string]any{}
	if product.Title != nil {
		raw["title"] = *product.Title
	}
	if product.Description != nil {
		raw["description"] = *product.Description
	}
	if product.ImageURL != nil {
		raw["imageUrl"] = *product.ImageURL
	}
	if product.Price != nil {
		raw["newPrice"] = *product.Price
	}

	link, err := util.NormalizeURL(pageURL)
	if err != nil {
		link = pageURL
	}
	link, _ = util.CleanReferralLink(link, p.affiliateTag)
	raw["deepLink"] = link

	if isBlankDefault(defaults, "merchantName") {
		if merchant := util.MerchantFromURL(pageURL); merchant != "" {
			raw["merchantName"] = merchant
		}
	}

	if p.enricher != nil && product.Title != nil {
		desc := ""
		if product.Description != nil {
			desc = *product.Description
		}
		e, err := p.enricher.Enrich(ctx, *product.Title, desc)
		if err != nil {
			slog.Warn("Enrichment failed, keeping scraped values", "url", pageURL, "error", err)
		} else {
			if e.CleanTitle != "" {
				raw["title"] = e.CleanTitle
			}
			if e.Category != "" && isBlankDefault(defaults, "category") {
				raw["category"] = e.Category
			}
		}
	}
	return raw
}

func isBlankDefault(defaults map[string]any, key string) bool {
	v, ok := defaults[key]
	if !ok || v == nil {
		return true
	}
	s, isString := v.(string)
	return isString && strings.TrimSpace(s) == ""
}

// Submit stores a user-paid deal as inactive and alerts moderators.
func (p *DealProcessor) Submit(ctx context.Context, raw map[string]any, userID string) (models.Deal, error) {
	d, err := p.normalize(models.DealInput{Source: models.SourceSingle, Raw: raw})
	if err != nil {
		return models.Deal{}, err
	}
	d.IsActive = false
	d.SubmittedBy = &userID

	created, err := p.store.CreateDeal(ctx, d)
	if err != nil {
		return models.Deal{}, err
	}
	slog.Info("Deal submitted for review", "id", created.ID, "user", userID)

	msgID, err := p.notifier.Send(ctx, created, notifier.EventSubmitted)
	if err != nil {
		slog.Error("Error sending to Discord", "id", created.ID, "error", err)
		return created, nil
	}
	if msgID != "" && p.keys != nil {
		if err := p.keys.Set(ctx, messageKeyPrefix+created.ID, msgID, messageTTL); err != nil {
			slog.Warn("Failed to save Discord message ID", "id", created.ID, "error", err)
		}
	}
	return created, nil
}

// Approve activates a submitted deal and marks its moderation message.
func (p *DealProcessor) Approve(ctx context.Context, id string) (models.Deal, error) {
	existing, err := p.store.GetDeal(ctx, id)
	if err != nil {
		return models.Deal{}, err
	}
	existing.IsActive = true
	existing.UpdatedAt = p.now()
	updated, err := p.store.UpdateDeal(ctx, existing)
	if err != nil {
		return models.Deal{}, fmt.Errorf("failed to approve deal %s: %w", id, err)
	}

	if p.keys == nil {
		return updated, nil
	}
	msgID, err := p.keys.GetDel(ctx, messageKeyPrefix+id)
	if err != nil {
		if !errors.Is(err, cache.ErrKeyNotFound) {
			slog.Warn("Failed to load Discord message ID", "id", id, "error", err)
		}
		return updated, nil
	}
	if err := p.notifier.Update(ctx, msgID, updated, notifier.EventApproved); err != nil {
		slog.Warn("Discord update failed", "id", id, "error", err)
	}
	return updated, nil
}

// Feed returns active deals matching the filter, interleaved by category.
func (p *DealProcessor) Feed(ctx context.Context, city, category string) ([]models.Deal, error) {
	deals, err := p.store.ListDeals(ctx, models.FeedFilter{City: city, Category: category, ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to load feed: %w", err)
	}
	return feed.Interleave(deals, p.shuffler), nil
}
