package processor

import (
	"context"

	"github.com/pauljones0/dealboard/internal/ai"
	"github.com/pauljones0/dealboard/internal/models"
	"github.com/pauljones0/dealboard/internal/notifier"
	"github.com/pauljones0/dealboard/internal/scraper"
)

// DealStore abstracts the storage layer for deal data.
type DealStore interface {
	CreateDeal(ctx context.Context, deal models.Deal) (models.Deal, error)
	CreateDeals(ctx context.Context, deals []models.Deal) ([]models.Deal, error)
	GetDeal(ctx context.Context, id string) (models.Deal, error)
	UpdateDeal(ctx context.Context, deal models.Deal) (models.Deal, error)
	ListDeals(ctx context.Context, filter models.FeedFilter) ([]models.Deal, error)
}

// ProductExtractor reads product data from merchant pages.
type ProductExtractor interface {
	Extract(ctx context.Context, pageURL string) (*scraper.Product, error)
	DiscoverLinks(ctx context.Context, listingURL string, limit int) ([]string, error)
}

// Enricher suggests a clean title and category for scraped products.
type Enricher interface {
	Enrich(ctx context.Context, title, description string) (ai.Enrichment, error)
}

// DealNotifier abstracts the moderation notification layer.
type DealNotifier interface {
	Send(ctx context.Context, deal models.Deal, event notifier.Event) (string, error)
	Update(ctx context.Context, messageID string, deal models.Deal, event notifier.Event) error
}
