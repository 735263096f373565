package processor

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"

	"github.com/pauljones0/dealboard/internal/ai"
	"github.com/pauljones0/dealboard/internal/cache"
	"github.com/pauljones0/dealboard/internal/config"
	"github.com/pauljones0/dealboard/internal/models"
	"github.com/pauljones0/dealboard/internal/notifier"
	"github.com/pauljones0/dealboard/internal/scraper"
	"github.com/pauljones0/dealboard/internal/storage"
)

// --- Mock implementations ---

type failingStore struct {
	*storage.MemoryStore
	batchErr error
}

func (f *failingStore) CreateDeals(ctx context.Context, deals []models.Deal) ([]models.Deal, error) {
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	return f.MemoryStore.CreateDeals(ctx, deals)
}

type mockNotifier struct {
	mu         sync.Mutex
	sentDeals  []models.Deal
	updatedIDs []string
	sendErr    error
	nextMsgID  string
}

func newMockNotifier() *mockNotifier {
	return &mockNotifier{nextMsgID: "msg-123"}
}

func (m *mockNotifier) Send(_ context.Context, deal models.Deal, _ notifier.Event) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return "", m.sendErr
	}
	m.sentDeals = append(m.sentDeals, deal)
	return m.nextMsgID, nil
}

func (m *mockNotifier) Update(_ context.Context, messageID string, _ models.Deal, _ notifier.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updatedIDs = append(m.updatedIDs, messageID)
	return nil
}

type mockExtractor struct {
	mu       sync.Mutex
	products map[string]*scraper.Product
	links    []string
	linkErr  error
	fetched  []string
}

func (m *mockExtractor) Extract(_ context.Context, pageURL string) (*scraper.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetched = append(m.fetched, pageURL)
	p, ok := m.products[pageURL]
	if !ok {
		return nil, models.ErrFetch
	}
	return p, nil
}

func (m *mockExtractor) DiscoverLinks(_ context.Context, _ string, limit int) ([]string, error) {
	if m.linkErr != nil {
		return nil, m.linkErr
	}
	if limit > 0 && limit < len(m.links) {
		return m.links[:limit], nil
	}
	return m.links, nil
}

type mockEnricher struct {
	result ai.Enrichment
	err    error
}

func (m *mockEnricher) Enrich(_ context.Context, _, _ string) (ai.Enrichment, error) {
	return m.result, m.err
}

func str(s string) *string { return &s }
func num(f float64) *float64 { return &f }

func newTestProcessor(store DealStore, n DealNotifier, x ProductExtractor, opts ...Option) *DealProcessor {
	cfg := &config.Config{
		AmazonAffiliateTag: "test-tag",
		CrawlConcurrency:   3,
	}
	return New(store, n, x, cfg, opts...)
}

func validItem(title string) map[string]any {
	return map[string]any{
		"title":        title,
		"merchantName": "Acme",
		"city":         "Pune",
		"imageUrl":     "https://cdn.example.com/" + title + ".jpg",
	}
}

// --- Tests ---

func TestImportJSON_PartialFailure(t *testing.T) {
	store := storage.NewMemoryStore()
	p := newTestProcessor(store, newMockNotifier(), &mockExtractor{})

	second := validItem("two")
	delete(second, "city")
	res, err := p.ImportJSON(context.Background(), []map[string]any{validItem("one"), second, validItem("three")})
	if err != nil {
		t.Fatalf("ImportJSON() error = %v", err)
	}
	if res.CreatedCount != 2 || len(res.Created) != 2 {
		t.Fatalf("CreatedCount = %d, created = %d; want 2", res.CreatedCount, len(res.Created))
	}
	if len(res.Errors) != 1 || res.Errors[0].Index == nil || *res.Errors[0].Index != 1 {
		t.Fatalf("Errors = %+v, want one error at index 1", res.Errors)
	}
	if !strings.Contains(res.Errors[0].Error, "city") {
		t.Errorf("error should name the missing field: %s", res.Errors[0].Error)
	}
	all, _ := store.ListDeals(context.Background(), models.FeedFilter{})
	if len(all) != 2 {
		t.Errorf("stored %d deals, want 2", len(all))
	}
}

func TestImportJSON_TransactionAbort(t *testing.T) {
	store := &failingStore{MemoryStore: storage.NewMemoryStore(), batchErr: models.ErrTransaction}
	p := newTestProcessor(store, newMockNotifier(), &mockExtractor{})

	_, err := p.ImportJSON(context.Background(), []map[string]any{validItem("one"), validItem("two")})
	if !errors.Is(err, models.ErrTransaction) {
		t.Fatalf("ImportJSON() error = %v, want ErrTransaction", err)
	}
	all, _ := store.ListDeals(context.Background(), models.FeedFilter{})
	if len(all) != 0 {
		t.Errorf("stored %d deals after aborted batch, want 0", len(all))
	}
}

func TestImportJSON_DerivesDiscount(t *testing.T) {
	p := newTestProcessor(storage.NewMemoryStore(), newMockNotifier(), &mockExtractor{})
	item := validItem("tv")
	item["oldPrice"] = 1000.0
	item["newPrice"] = "750"
	res, err := p.ImportJSON(context.Background(), []map[string]any{item})
	if err != nil || res.CreatedCount != 1 {
		t.Fatalf("ImportJSON() = %+v, %v", res, err)
	}
	if got := res.Created[0].DiscountPct; got == nil || *got != 25 {
		t.Errorf("DiscountPct = %v, want 25", got)
	}
}

func TestImportCSV_Defaults(t *testing.T) {
	p := newTestProcessor(storage.NewMemoryStore(), newMockNotifier(), &mockExtractor{})
	csv := "title,merchantName,imageUrl,tags,isActive\n" +
		"\"Pizza, large\",Dominos,https://cdn.example.com/p.jpg,food | pizza,\n" +
		"Burger,,https://cdn.example.com/b.jpg,,FALSE\n" +
		",,,,\n"

	res, err := p.ImportCSV(context.Background(), csv, map[string]any{"city": "Mumbai", "merchantName": "Default Mart", "tags": "promo"})
	if err != nil {
		t.Fatalf("ImportCSV() error = %v", err)
	}
	if res.CreatedCount != 2 {
		t.Fatalf("CreatedCount = %d, want 2 (errors: %+v)", res.CreatedCount, res.Errors)
	}
	pizza, burger := res.Created[0], res.Created[1]
	if pizza.Title != "Pizza, large" || pizza.City != "Mumbai" || pizza.MerchantName != "Dominos" {
		t.Errorf("pizza = %+v", pizza)
	}
	if strings.Join(pizza.Tags, ",") != "food,pizza" {
		t.Errorf("pizza tags = %v", pizza.Tags)
	}
	if burger.MerchantName != "Default Mart" || burger.IsActive {
		t.Errorf("burger = %+v", burger)
	}
	if strings.Join(burger.Tags, ",") != "promo" {
		t.Errorf("burger tags = %v, want defaults", burger.Tags)
	}
	if len(res.Errors) != 1 || *res.Errors[0].Index != 2 {
		t.Errorf("Errors = %+v, want row 2 rejected", res.Errors)
	}
}

func TestExtractURLs(t *testing.T) {
	x := &mockExtractor{products: map[string]*scraper.Product{
		"https://www.amazon.in/dp/B01?utm_source=x": {
			Title:    str("Echo Dot"),
			ImageURL: str("https://m.media-amazon.com/echo.jpg"),
			Price:    num(80),
		},
		"https://shop.example.com/empty": {},
	}}
	p := newTestProcessor(storage.NewMemoryStore(), newMockNotifier(), x)

	urls := []string{
		"https://www.amazon.in/dp/B01?utm_source=x",
		"https://shop.example.com/missing",
		"https://shop.example.com/empty",
		"  ",
	}
	res, err := p.ExtractURLs(context.Background(), urls, map[string]any{"city": "Delhi", "discountPct": "20"})
	if err != nil {
		t.Fatalf("ExtractURLs() error = %v", err)
	}
	if res.CreatedCount != 1 {
		t.Fatalf("CreatedCount = %d, want 1 (errors: %+v)", res.CreatedCount, res.Errors)
	}
	d := res.Created[0]
	if d.MerchantName != "amazon" {
		t.Errorf("MerchantName = %q, want guessed from domain", d.MerchantName)
	}
	if d.OldPrice == nil || *d.OldPrice != 100 || d.DiscountPct == nil || *d.DiscountPct != 20 {
		t.Errorf("prices = %v/%v/%v, want old price derived as 100", d.OldPrice, d.NewPrice, d.DiscountPct)
	}
	if d.DeepLink != "https://www.amazon.in/dp/B01?tag=test-tag" {
		t.Errorf("DeepLink = %q", d.DeepLink)
	}

	if len(res.Errors) != 3 {
		t.Fatalf("Errors = %+v, want 3", res.Errors)
	}
	if res.Errors[0].URL != "https://shop.example.com/missing" || !strings.Contains(res.Errors[0].Error, "fetch") {
		t.Errorf("Errors[0] = %+v", res.Errors[0])
	}
	if !strings.Contains(res.Errors[1].Error, models.ErrExtraction.Error()) {
		t.Errorf("Errors[1] = %+v, want extraction error", res.Errors[1])
	}
	if res.Errors[0].Index != nil {
		t.Error("URL errors should not carry an index")
	}
}

func TestExtractURLs_Enrichment(t *testing.T) {
	x := &mockExtractor{products: map[string]*scraper.Product{
		"https://shop.example.com/p/1": {Title: str("SONY WH1000XM5 *** BEST PRICE ***"), ImageURL: str("https://shop.example.com/1.jpg")},
	}}
	enricher := &mockEnricher{result: ai.Enrichment{CleanTitle: "Sony WH-1000XM5", Category: "electronics"}}
	p := newTestProcessor(storage.NewMemoryStore(), newMockNotifier(), x, WithEnricher(enricher))

	res, err := p.ExtractURLs(context.Background(), []string{"https://shop.example.com/p/1"}, map[string]any{"city": "Pune"})
	if err != nil || res.CreatedCount != 1 {
		t.Fatalf("ExtractURLs() = %+v, %v", res, err)
	}
	if d := res.Created[0]; d.Title != "Sony WH-1000XM5" || d.Category != "electronics" {
		t.Errorf("enriched deal = %q/%q", d.Title, d.Category)
	}

	// A category default wins over the suggestion; failures keep scraped values.
	enricher.err = errors.New("quota")
	res, _ = p.ExtractURLs(context.Background(), []string{"https://shop.example.com/p/1"}, map[string]any{"city": "Pune", "category": "audio"})
	if d := res.Created[0]; d.Title != "SONY WH1000XM5 *** BEST PRICE ***" || d.Category != "audio" {
		t.Errorf("deal after failed enrichment = %q/%q", d.Title, d.Category)
	}
}

func TestCrawl_PreservesLinkOrder(t *testing.T) {
	x := &mockExtractor{products: map[string]*scraper.Product{}}
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		u := "https://shop.example.com/p/" + id
		x.links = append(x.links, u)
		x.products[u] = &scraper.Product{Title: str("item " + id), ImageURL: str(u + ".jpg")}
	}
	p := newTestProcessor(storage.NewMemoryStore(), newMockNotifier(), x)

	res, err := p.Crawl(context.Background(), "https://shop.example.com/sale", 4, map[string]any{"city": "Pune"})
	if err != nil {
		t.Fatalf("Crawl() error = %v", err)
	}
	if res.CreatedCount != 4 {
		t.Fatalf("CreatedCount = %d, want 4", res.CreatedCount)
	}
	for i, id := range []string{"a", "b", "c", "d"} {
		if res.Created[i].Title != "item "+id {
			t.Errorf("Created[%d] = %q, want item %s", i, res.Created[i].Title, id)
		}
	}
}

func TestCrawl_ListingFailure(t *testing.T) {
	p := newTestProcessor(storage.NewMemoryStore(), newMockNotifier(), &mockExtractor{linkErr: models.ErrFetch})
	if _, err := p.Crawl(context.Background(), "https://shop.example.com/sale", 0, nil); !errors.Is(err, models.ErrFetch) {
		t.Errorf("Crawl() error = %v, want ErrFetch", err)
	}
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	p := newTestProcessor(store, newMockNotifier(), &mockExtractor{})
	item := validItem("tv")
	item["oldPrice"], item["newPrice"] = 1000.0, 900.0
	created, err := p.Create(ctx, item)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	updated, err := p.Update(ctx, created.ID, map[string]any{"newPrice": 500.0, "tags": "sale|tv"})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.DiscountPct == nil || *updated.DiscountPct != 50 {
		t.Errorf("DiscountPct = %v, want recomputed 50", updated.DiscountPct)
	}
	if updated.Title != "tv" || len(updated.Tags) != 2 {
		t.Errorf("updated = %+v", updated)
	}

	if _, err := p.Update(ctx, created.ID, map[string]any{"expiresAt": "someday"}); !errors.Is(err, models.ErrInvalidDate) {
		t.Errorf("invalid date: error = %v, want ErrInvalidDate", err)
	}
	if _, err := p.Update(ctx, created.ID, map[string]any{"city": "  "}); !errors.Is(err, models.ErrMissingRequiredField) {
		t.Errorf("blank city: error = %v, want ErrMissingRequiredField", err)
	}
	if _, err := p.Update(ctx, "nope", map[string]any{"title": "x"}); !errors.Is(err, models.ErrDealNotFound) {
		t.Errorf("unknown id: error = %v, want ErrDealNotFound", err)
	}
}

func TestCreate_Rejects(t *testing.T) {
	p := newTestProcessor(storage.NewMemoryStore(), newMockNotifier(), &mockExtractor{})
	if _, err := p.Create(context.Background(), map[string]any{"city": "Pune"}); !errors.Is(err, models.ErrMissingRequiredField) {
		t.Errorf("Create() error = %v, want ErrMissingRequiredField", err)
	}
}

func TestSubmitAndApprove(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	notif := newMockNotifier()
	keys := cache.NewMemoryStore()
	p := newTestProcessor(store, notif, &mockExtractor{}, WithKeyStore(keys))

	submitted, err := p.Submit(ctx, validItem("spa"), "user-1")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if submitted.IsActive {
		t.Error("submitted deals should start inactive")
	}
	if submitted.SubmittedBy == nil || *submitted.SubmittedBy != "user-1" {
		t.Errorf("SubmittedBy = %v", submitted.SubmittedBy)
	}
	if len(notif.sentDeals) != 1 {
		t.Fatalf("expected one moderation message, got %d", len(notif.sentDeals))
	}

	feedBefore, _ := p.Feed(ctx, "", "")
	if len(feedBefore) != 0 {
		t.Errorf("inactive deal leaked into feed: %+v", feedBefore)
	}

	approved, err := p.Approve(ctx, submitted.ID)
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if !approved.IsActive {
		t.Error("approved deal should be active")
	}
	if len(notif.updatedIDs) != 1 || notif.updatedIDs[0] != "msg-123" {
		t.Errorf("updated messages = %v", notif.updatedIDs)
	}
	feedAfter, _ := p.Feed(ctx, "", "")
	if len(feedAfter) != 1 {
		t.Errorf("feed after approval = %d deals, want 1", len(feedAfter))
	}
}

func TestSubmit_NotifierFailureStillStores(t *testing.T) {
	notif := newMockNotifier()
	notif.sendErr = errors.New("discord down")
	p := newTestProcessor(storage.NewMemoryStore(), notif, &mockExtractor{})
	if _, err := p.Submit(context.Background(), validItem("spa"), "user-1"); err != nil {
		t.Errorf("Submit() error = %v, want nil", err)
	}
}

func TestFeed_FiltersAndInterleaves(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	p := newTestProcessor(store, newMockNotifier(), &mockExtractor{}, WithShuffler(rand.New(rand.NewPCG(1, 2))))

	var items []map[string]any
	for _, cat := range []string{"food", "travel", "spa"} {
		for i := 0; i < 3; i++ {
			item := validItem(cat)
			item["category"] = cat
			items = append(items, item)
		}
	}
	other := validItem("elsewhere")
	other["city"] = "Goa"
	items = append(items, other)
	if _, err := p.ImportJSON(ctx, items); err != nil {
		t.Fatalf("ImportJSON() error = %v", err)
	}

	got, err := p.Feed(ctx, "Pune", "")
	if err != nil {
		t.Fatalf("Feed() error = %v", err)
	}
	if len(got) != 9 {
		t.Fatalf("Feed() returned %d deals, want 9", len(got))
	}
	seen := map[string]bool{}
	for _, d := range got[:3] {
		seen[d.Category] = true
	}
	if len(seen) != 3 {
		t.Errorf("first three deals should span three categories, got %v", seen)
	}

	food, _ := p.Feed(ctx, "", "food")
	if len(food) != 3 {
		t.Errorf("category filter returned %d deals, want 3", len(food))
	}
}

func TestApprove_NotFound(t *testing.T) {
	p := newTestProcessor(storage.NewMemoryStore(), newMockNotifier(), &mockExtractor{})
	if _, err := p.Approve(context.Background(), "missing"); !errors.Is(err, models.ErrDealNotFound) {
		t.Errorf("Approve() error = %v, want ErrDealNotFound", err)
	}
}
