package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pauljones0/dealboard/internal/models"
)

// MemoryStore keeps everything in process. Used for local runs and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	deals map[string]models.Deal
	users map[string]models.User
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		deals: make(map[string]models.Deal),
		users: make(map[string]models.User),
		now:   time.Now,
	}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) CreateDeal(ctx context.Context, deal models.Deal) (models.Deal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := prepareNew(deal, m.now())
	if _, ok := m.deals[d.ID]; ok {
		return models.Deal{}, models.ErrDealExists
	}
	m.deals[d.ID] = copyDeal(d)
	return d, nil
}

func (m *MemoryStore) CreateDeals(ctx context.Context, deals []models.Deal) ([]models.Deal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	out := make([]models.Deal, 0, len(deals))
	seen := make(map[string]bool, len(deals))
	for _, deal := range deals {
		d := prepareNew(deal, now)
		if _, ok := m.deals[d.ID]; ok || seen[d.ID] {
			return nil, fmt.Errorf("%w: deal %s: %v", models.ErrTransaction, d.ID, models.ErrDealExists)
		}
		seen[d.ID] = true
		out = append(out, d)
	}
	for _, d := range out {
		m.deals[d.ID] = copyDeal(d)
	}
	return out, nil
}

func (m *MemoryStore) GetDeal(ctx context.Context, id string) (models.Deal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.deals[id]
	if !ok {
		return models.Deal{}, models.ErrDealNotFound
	}
	return copyDeal(d), nil
}

func (m *MemoryStore) UpdateDeal(ctx context.Context, deal models.Deal) (models.Deal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.deals[deal.ID]
	if !ok {
		return models.Deal{}, models.ErrDealNotFound
	}
	deal.CreatedAt = existing.CreatedAt
	if deal.UpdatedAt.IsZero() {
		deal.UpdatedAt = m.now()
	}
	if deal.Tags == nil {
		deal.Tags = []string{}
	}
	m.deals[deal.ID] = copyDeal(deal)
	return deal, nil
}

func (m *MemoryStore) DeleteDeal(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.deals[id]; !ok {
		return models.ErrDealNotFound
	}
	delete(m.deals, id)
	return nil
}

func (m *MemoryStore) ListDeals(ctx context.Context, filter models.FeedFilter) ([]models.Deal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Deal, 0, len(m.deals))
	for _, d := range m.deals {
		if matchesFilter(d, filter) {
			out = append(out, copyDeal(d))
		}
	}
	sortFeed(out)
	return out, nil
}

func (m *MemoryStore) DeactivateExpired(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, d := range m.deals {
		if d.IsActive && d.ExpiresAt != nil && d.ExpiresAt.Before(now) {
			d.IsActive = false
			d.UpdatedAt = now
			m.deals[id] = d
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := prepareUser(user, m.now())
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return models.User{}, models.ErrUserExists
		}
	}
	m.users[u.ID] = u
	return u, nil
}

func (m *MemoryStore) FindUserByEmail(ctx context.Context, email string) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	email = normalizeEmail(email)
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, models.ErrUserNotFound
}

func (m *MemoryStore) GetUser(ctx context.Context, id string) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return models.User{}, models.ErrUserNotFound
	}
	return u, nil
}

func (m *MemoryStore) MarkEmailVerified(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return models.ErrUserNotFound
	}
	u.EmailVerified = true
	m.users[id] = u
	return nil
}

func copyDeal(d models.Deal) models.Deal {
	d.Tags = append([]string{}, d.Tags...)
	return d
}
