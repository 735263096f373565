package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/pauljones0/dealboard/internal/models"
)

const (
	dealsCollection = "deals"
	usersCollection = "users"
)

// errEmailTaken aborts the registration transaction.
var errEmailTaken = errors.New("email taken")

type FirestoreStore struct {
	client *firestore.Client
	now    func() time.Time
}

func NewFirestore(ctx context.Context, projectID string) (*FirestoreStore, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("firestore.NewClient: %w", err)
	}
	return &FirestoreStore{client: client, now: time.Now}, nil
}

func (c *FirestoreStore) Close() error {
	return c.client.Close()
}

func dealFromDoc(doc *firestore.DocumentSnapshot) (models.Deal, error) {
	var deal models.Deal
	if err := doc.DataTo(&deal); err != nil {
		return models.Deal{}, fmt.Errorf("failed to unmarshal deal data: %w", err)
	}
	deal.ID = doc.Ref.ID
	if deal.Tags == nil {
		deal.Tags = []string{}
	}
	return deal, nil
}

func (c *FirestoreStore) CreateDeal(ctx context.Context, deal models.Deal) (models.Deal, error) {
	d := prepareNew(deal, c.now())
	// Create fails if the document already exists.
	_, err := c.client.Collection(dealsCollection).Doc(d.ID).Create(ctx, d)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return models.Deal{}, models.ErrDealExists
		}
		return models.Deal{}, fmt.Errorf("failed to create deal: %w", err)
	}
	return d, nil
}

func (c *FirestoreStore) CreateDeals(ctx context.Context, deals []models.Deal) ([]models.Deal, error) {
	now := c.now()
	out := make([]models.Deal, len(deals))
	for i, deal := range deals {
		out[i] = prepareNew(deal, now)
	}
	if len(out) == 0 {
		return out, nil
	}

	collectionRef := c.client.Collection(dealsCollection)
	err := c.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		for _, d := range out {
			if err := tx.Create(collectionRef.Doc(d.ID), d); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrTransaction, err)
	}
	return out, nil
}

func (c *FirestoreStore) GetDeal(ctx context.Context, id string) (models.Deal, error) {
	doc, err := c.client.Collection(dealsCollection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return models.Deal{}, models.ErrDealNotFound
		}
		return models.Deal{}, fmt.Errorf("failed to get deal by ID %s: %w", id, err)
	}
	if !doc.Exists() {
		return models.Deal{}, models.ErrDealNotFound
	}
	return dealFromDoc(doc)
}

// UpdateDeal rewrites the mutable fields of an existing deal.
func (c *FirestoreStore) UpdateDeal(ctx context.Context, deal models.Deal) (models.Deal, error) {
	if deal.UpdatedAt.IsZero() {
		deal.UpdatedAt = c.now()
	}
	if deal.Tags == nil {
		deal.Tags = []string{}
	}
	docRef := c.client.Collection(dealsCollection).Doc(deal.ID)
	_, err := docRef.Update(ctx, []firestore.Update{
		{Path: "title", Value: deal.Title},
		{Path: "description", Value: deal.Description},
		{Path: "merchantName", Value: deal.MerchantName},
		{Path: "city", Value: deal.City},
		{Path: "category", Value: deal.Category},
		{Path: "tags", Value: deal.Tags},
		{Path: "imageUrl", Value: deal.ImageURL},
		{Path: "oldPrice", Value: deal.OldPrice},
		{Path: "newPrice", Value: deal.NewPrice},
		{Path: "discountPct", Value: deal.DiscountPct},
		{Path: "expiresAt", Value: deal.ExpiresAt},
		{Path: "deepLink", Value: deal.DeepLink},
		{Path: "isActive", Value: deal.IsActive},
		{Path: "updatedAt", Value: deal.UpdatedAt},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return models.Deal{}, models.ErrDealNotFound
		}
		return models.Deal{}, fmt.Errorf("failed to update deal %s: %w", deal.ID, err)
	}
	return c.GetDeal(ctx, deal.ID)
}

func (c *FirestoreStore) DeleteDeal(ctx context.Context, id string) error {
	docRef := c.client.Collection(dealsCollection).Doc(id)
	_, err := docRef.Delete(ctx, firestore.Exists)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return models.ErrDealNotFound
		}
		return fmt.Errorf("failed to delete deal %s: %w", id, err)
	}
	return nil
}

// ListDeals filters with equality clauses and sorts in memory; Firestore
// drops documents with a null ordering field from ordered queries.
func (c *FirestoreStore) ListDeals(ctx context.Context, filter models.FeedFilter) ([]models.Deal, error) {
	q := c.client.Collection(dealsCollection).Query
	if filter.ActiveOnly {
		q = q.Where("isActive", "==", true)
	}
	if filter.City != "" {
		q = q.Where("city", "==", filter.City)
	}
	if filter.Category != "" {
		q = q.Where("category", "==", filter.Category)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	deals := []models.Deal{}
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate deals: %w", err)
		}
		d, err := dealFromDoc(doc)
		if err != nil {
			return nil, err
		}
		deals = append(deals, d)
	}
	sortFeed(deals)
	return deals, nil
}

func (c *FirestoreStore) DeactivateExpired(ctx context.Context, now time.Time) (int, error) {
	iter := c.client.Collection(dealsCollection).
		Where("isActive", "==", true).
		Where("expiresAt", "<", now).
		Documents(ctx)
	defer iter.Stop()

	bulkWriter := c.client.BulkWriter(ctx)
	defer bulkWriter.End()

	count := 0
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return count, fmt.Errorf("failed to iterate expired deals: %w", err)
		}
		_, err = bulkWriter.Update(doc.Ref, []firestore.Update{
			{Path: "isActive", Value: false},
			{Path: "updatedAt", Value: now},
		})
		if err != nil {
			slog.Warn("Failed to queue expiry update", "id", doc.Ref.ID, "error", err)
			continue
		}
		count++
	}

	if count > 0 {
		bulkWriter.Flush()
	}
	return count, nil
}

func (c *FirestoreStore) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	u := prepareUser(user, c.now())
	users := c.client.Collection(usersCollection)
	err := c.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		docs, err := tx.Documents(users.Where("email", "==", u.Email).Limit(1)).GetAll()
		if err != nil {
			return err
		}
		if len(docs) > 0 {
			return errEmailTaken
		}
		return tx.Create(users.Doc(u.ID), u)
	})
	if err != nil {
		if errors.Is(err, errEmailTaken) || status.Code(err) == codes.AlreadyExists {
			return models.User{}, models.ErrUserExists
		}
		return models.User{}, fmt.Errorf("failed to create user: %w", err)
	}
	return u, nil
}

func userFromDoc(doc *firestore.DocumentSnapshot) (models.User, error) {
	var u models.User
	if err := doc.DataTo(&u); err != nil {
		return models.User{}, fmt.Errorf("failed to unmarshal user data: %w", err)
	}
	u.ID = doc.Ref.ID
	return u, nil
}

func (c *FirestoreStore) FindUserByEmail(ctx context.Context, email string) (models.User, error) {
	iter := c.client.Collection(usersCollection).Where("email", "==", normalizeEmail(email)).Limit(1).Documents(ctx)
	defer iter.Stop()
	doc, err := iter.Next()
	if err == iterator.Done {
		return models.User{}, models.ErrUserNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("failed to find user: %w", err)
	}
	return userFromDoc(doc)
}

func (c *FirestoreStore) GetUser(ctx context.Context, id string) (models.User, error) {
	doc, err := c.client.Collection(usersCollection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return models.User{}, models.ErrUserNotFound
		}
		return models.User{}, fmt.Errorf("failed to get user %s: %w", id, err)
	}
	return userFromDoc(doc)
}

func (c *FirestoreStore) MarkEmailVerified(ctx context.Context, id string) error {
	_, err := c.client.Collection(usersCollection).Doc(id).Update(ctx, []firestore.Update{
		{Path: "emailVerified", Value: true},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return models.ErrUserNotFound
		}
		return fmt.Errorf("failed to mark user %s verified: %w", id, err)
	}
	return nil
}
