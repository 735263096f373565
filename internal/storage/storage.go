package storage

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pauljones0/dealboard/internal/models"
)

// DealStore persists deals. GetDeal, UpdateDeal and DeleteDeal return
// models.ErrDealNotFound for unknown IDs.
type DealStore interface {
	CreateDeal(ctx context.Context, deal models.Deal) (models.Deal, error)
	// CreateDeals writes all deals or none. Failures wrap models.ErrTransaction.
	CreateDeals(ctx context.Context, deals []models.Deal) ([]models.Deal, error)
	GetDeal(ctx context.Context, id string) (models.Deal, error)
	UpdateDeal(ctx context.Context, deal models.Deal) (models.Deal, error)
	DeleteDeal(ctx context.Context, id string) error
	// ListDeals orders by discountPct desc (nulls last), then createdAt desc.
	ListDeals(ctx context.Context, filter models.FeedFilter) ([]models.Deal, error)
	// DeactivateExpired clears isActive on deals whose expiresAt is before now.
	DeactivateExpired(ctx context.Context, now time.Time) (int, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, user models.User) (models.User, error)
	FindUserByEmail(ctx context.Context, email string) (models.User, error)
	GetUser(ctx context.Context, id string) (models.User, error)
	MarkEmailVerified(ctx context.Context, id string) error
}

// Store is a full backend.
type Store interface {
	DealStore
	UserStore
	Close() error
}

// prepareNew assigns an ID and timestamps to a deal about to be inserted.
func prepareNew(d models.Deal, now time.Time) models.Deal {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = d.CreatedAt
	}
	if d.Tags == nil {
		d.Tags = []string{}
	}
	return d
}

func prepareUser(u models.User, now time.Time) models.User {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.Email = normalizeEmail(u.Email)
	return u
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func matchesFilter(d models.Deal, f models.FeedFilter) bool {
	if f.ActiveOnly && !d.IsActive {
		return false
	}
	if f.City != "" && d.City != f.City {
		return false
	}
	if f.Category != "" && d.Category != f.Category {
		return false
	}
	return true
}

// sortFeed applies the feed ordering for backends that cannot express it in a query.
func sortFeed(deals []models.Deal) {
	sort.SliceStable(deals, func(i, j int) bool {
		a, b := deals[i].DiscountPct, deals[j].DiscountPct
		switch {
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		case a != nil && b != nil && *a != *b:
			return *a > *b
		}
		return deals[i].CreatedAt.After(deals[j].CreatedAt)
	})
}
