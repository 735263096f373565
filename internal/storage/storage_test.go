package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pauljones0/dealboard/internal/models"
)

func ip(i int) *int { return &i }

func fp(f float64) *float64 { return &f }

func sampleDeal(title string) models.Deal {
	return models.Deal{
		Title:        title,
		MerchantName: "Acme",
		City:         "Pune",
		Category:     "food",
		ImageURL:     "https://cdn.example.com/" + title + ".jpg",
		IsActive:     true,
	}
}

// runStoreSuite exercises the behaviour every backend must share.
func runStoreSuite(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		d := sampleDeal("pizza")
		d.Tags = nil
		d.OldPrice, d.NewPrice, d.DiscountPct = fp(200), fp(150), ip(25)
		created, err := store.CreateDeal(ctx, d)
		if err != nil {
			t.Fatalf("CreateDeal() error = %v", err)
		}
		if created.ID == "" || created.CreatedAt.IsZero() {
			t.Fatalf("CreateDeal() did not assign id/timestamps: %+v", created)
		}
		if created.Tags == nil {
			t.Error("Tags should never be nil")
		}

		got, err := store.GetDeal(ctx, created.ID)
		if err != nil {
			t.Fatalf("GetDeal() error = %v", err)
		}
		if got.Title != "pizza" || got.DiscountPct == nil || *got.DiscountPct != 25 {
			t.Errorf("GetDeal() = %+v", got)
		}
	})

	t.Run("missing deal", func(t *testing.T) {
		if _, err := store.GetDeal(ctx, "00000000-0000-0000-0000-000000000000"); !errors.Is(err, models.ErrDealNotFound) {
			t.Errorf("GetDeal() error = %v, want ErrDealNotFound", err)
		}
		if err := store.DeleteDeal(ctx, "00000000-0000-0000-0000-000000000000"); !errors.Is(err, models.ErrDealNotFound) {
			t.Errorf("DeleteDeal() error = %v, want ErrDealNotFound", err)
		}
	})

	t.Run("update and delete", func(t *testing.T) {
		created, err := store.CreateDeal(ctx, sampleDeal("burger"))
		if err != nil {
			t.Fatalf("CreateDeal() error = %v", err)
		}
		created.Title = "cheeseburger"
		created.Tags = []string{"veg"}
		created.UpdatedAt = time.Time{}
		updated, err := store.UpdateDeal(ctx, created)
		if err != nil {
			t.Fatalf("UpdateDeal() error = %v", err)
		}
		if updated.Title != "cheeseburger" || len(updated.Tags) != 1 {
			t.Errorf("UpdateDeal() = %+v", updated)
		}
		if err := store.DeleteDeal(ctx, created.ID); err != nil {
			t.Fatalf("DeleteDeal() error = %v", err)
		}
		if _, err := store.GetDeal(ctx, created.ID); !errors.Is(err, models.ErrDealNotFound) {
			t.Errorf("deal should be gone, got %v", err)
		}
	})

	t.Run("batch is all or nothing", func(t *testing.T) {
		existing, err := store.CreateDeal(ctx, sampleDeal("dup"))
		if err != nil {
			t.Fatalf("CreateDeal() error = %v", err)
		}
		first := sampleDeal("fresh-batch-item")
		clash := sampleDeal("clash")
		clash.ID = existing.ID

		_, err = store.CreateDeals(ctx, []models.Deal{first, clash})
		if !errors.Is(err, models.ErrTransaction) {
			t.Fatalf("CreateDeals() error = %v, want ErrTransaction", err)
		}
		all, err := store.ListDeals(ctx, models.FeedFilter{})
		if err != nil {
			t.Fatalf("ListDeals() error = %v", err)
		}
		for _, d := range all {
			if d.Title == "fresh-batch-item" {
				t.Error("aborted batch must not persist any item")
			}
		}

		created, err := store.CreateDeals(ctx, []models.Deal{sampleDeal("b1"), sampleDeal("b2")})
		if err != nil {
			t.Fatalf("CreateDeals() error = %v", err)
		}
		if len(created) != 2 || created[0].ID == created[1].ID {
			t.Errorf("CreateDeals() = %+v", created)
		}
	})

	t.Run("users", func(t *testing.T) {
		u, err := store.CreateUser(ctx, models.User{Name: "Asha", Email: " Asha@Example.com ", PasswordHash: "h", Role: models.RoleUser})
		if err != nil {
			t.Fatalf("CreateUser() error = %v", err)
		}
		if _, err := store.CreateUser(ctx, models.User{Name: "Dup", Email: "asha@example.com", PasswordHash: "h", Role: models.RoleUser}); !errors.Is(err, models.ErrUserExists) {
			t.Errorf("duplicate CreateUser() error = %v, want ErrUserExists", err)
		}
		found, err := store.FindUserByEmail(ctx, "ASHA@example.com")
		if err != nil || found.ID != u.ID {
			t.Fatalf("FindUserByEmail() = %+v, %v", found, err)
		}
		if err := store.MarkEmailVerified(ctx, u.ID); err != nil {
			t.Fatalf("MarkEmailVerified() error = %v", err)
		}
		got, err := store.GetUser(ctx, u.ID)
		if err != nil || !got.EmailVerified {
			t.Errorf("GetUser() = %+v, %v", got, err)
		}
		if _, err := store.FindUserByEmail(ctx, "nobody@example.com"); !errors.Is(err, models.ErrUserNotFound) {
			t.Errorf("FindUserByEmail() error = %v, want ErrUserNotFound", err)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, NewMemoryStore())
}

func TestMemoryStore_ListOrderingAndFilters(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mk := func(title, city string, pct *int, age int, active bool) {
		d := sampleDeal(title)
		d.City = city
		d.DiscountPct = pct
		d.IsActive = active
		d.CreatedAt = base.Add(time.Duration(age) * time.Hour)
		if _, err := store.CreateDeal(ctx, d); err != nil {
			t.Fatalf("CreateDeal() error = %v", err)
		}
	}
	mk("none-new", "Pune", nil, 5, true)
	mk("ten-old", "Pune", ip(10), 1, true)
	mk("ten-new", "Pune", ip(10), 2, true)
	mk("fifty", "Pune", ip(50), 0, true)
	mk("inactive", "Pune", ip(90), 0, false)
	mk("elsewhere", "Delhi", ip(70), 0, true)

	got, err := store.ListDeals(ctx, models.FeedFilter{City: "Pune", ActiveOnly: true})
	if err != nil {
		t.Fatalf("ListDeals() error = %v", err)
	}
	want := []string{"fifty", "ten-new", "ten-old", "none-new"}
	if len(got) != len(want) {
		t.Fatalf("ListDeals() returned %d deals, want %d", len(got), len(want))
	}
	for i, title := range want {
		if got[i].Title != title {
			t.Errorf("position %d = %s, want %s", i, got[i].Title, title)
		}
	}
}

func TestMemoryStore_DeactivateExpired(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past, future := now.Add(-time.Hour), now.Add(time.Hour)

	expired := sampleDeal("expired")
	expired.ExpiresAt = &past
	live := sampleDeal("live")
	live.ExpiresAt = &future
	open := sampleDeal("open")

	for _, d := range []models.Deal{expired, live, open} {
		if _, err := store.CreateDeal(ctx, d); err != nil {
			t.Fatalf("CreateDeal() error = %v", err)
		}
	}
	n, err := store.DeactivateExpired(ctx, now)
	if err != nil {
		t.Fatalf("DeactivateExpired() error = %v", err)
	}
	if n != 1 {
		t.Errorf("DeactivateExpired() = %d, want 1", n)
	}
	active, _ := store.ListDeals(ctx, models.FeedFilter{ActiveOnly: true})
	if len(active) != 2 {
		t.Errorf("expected 2 active deals, got %d", len(active))
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	d := sampleDeal("copy")
	d.Tags = []string{"a"}
	created, _ := store.CreateDeal(ctx, d)
	created.Tags[0] = "mutated"

	got, _ := store.GetDeal(ctx, created.ID)
	if got.Tags[0] != "a" {
		t.Errorf("stored tags were aliased: %v", got.Tags)
	}
}

func TestErrDealExists(t *testing.T) {
	if models.ErrDealExists.Error() != "deal already exists" {
		t.Errorf("ErrDealExists message = %q, want %q", models.ErrDealExists.Error(), "deal already exists")
	}
}
