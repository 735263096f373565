package models

import (
	"errors"
	"time"
)

var (
	// ErrDealExists is returned when attempting to create a deal that already exists.
	ErrDealExists = errors.New("deal already exists")
	// ErrDealNotFound is returned when a deal ID does not resolve to a stored deal.
	ErrDealNotFound = errors.New("deal not found")

	ErrMissingRequiredField = errors.New("missing required field")
	ErrInvalidNumeric       = errors.New("invalid numeric value")
	ErrInvalidDate          = errors.New("invalid date")
	ErrFetch                = errors.New("fetch failed")
	ErrExtraction           = errors.New("no usable product data")
	// ErrTransaction wraps a failure that aborted a whole batch write.
	ErrTransaction = errors.New("batch write aborted")
)

// Deal is the canonical, storage-ready shape of a discount offer.
type Deal struct {
	ID           string     `json:"id" firestore:"-"`
	Title        string     `json:"title" firestore:"title" validate:"required"`
	Description  string     `json:"description" firestore:"description"`
	MerchantName string     `json:"merchantName" firestore:"merchantName" validate:"required"`
	City         string     `json:"city" firestore:"city" validate:"required"`
	Category     string     `json:"category" firestore:"category"`
	Tags         []string   `json:"tags" firestore:"tags" validate:"dive,required"`
	ImageURL     string     `json:"imageUrl" firestore:"imageUrl" validate:"required"`
	OldPrice     *float64   `json:"oldPrice" firestore:"oldPrice" validate:"omitempty,gte=0"`
	NewPrice     *float64   `json:"newPrice" firestore:"newPrice" validate:"omitempty,gte=0"`
	DiscountPct  *int       `json:"discountPct" firestore:"discountPct" validate:"omitempty,gte=0,lte=100"`
	ExpiresAt    *time.Time `json:"expiresAt" firestore:"expiresAt"`
	DeepLink     string     `json:"deepLink" firestore:"deepLink"`
	IsActive     bool       `json:"isActive" firestore:"isActive"`
	SubmittedBy  *string    `json:"submittedBy,omitempty" firestore:"submittedBy"`
	CreatedAt    time.Time  `json:"createdAt" firestore:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt" firestore:"updatedAt"`
}

// DealPatch carries the fields of a partial update. Nil means "leave unchanged".
type DealPatch struct {
	Title        *string
	Description  *string
	MerchantName *string
	City         *string
	Category     *string
	Tags         []string
	TagsSet      bool
	ImageURL     *string
	OldPrice     Optional[float64]
	NewPrice     Optional[float64]
	DiscountPct  Optional[int]
	ExpiresAt    Optional[time.Time]
	DeepLink     *string
	IsActive     *bool
}

// Optional distinguishes "not supplied" from "explicitly cleared" for nullable fields.
type Optional[T any] struct {
	Set   bool
	Value *T
}

// Apply returns a copy of d with the patch merged in. The receiver is not modified.
func (p DealPatch) Apply(d Deal) Deal {
	out := d
	out.Tags = append([]string(nil), d.Tags...)

	if p.Title != nil {
		out.Title = *p.Title
	}
	if p.Description != nil {
		out.Description = *p.Description
	}
	if p.MerchantName != nil {
		out.MerchantName = *p.MerchantName
	}
	if p.City != nil {
		out.City = *p.City
	}
	if p.Category != nil {
		out.Category = *p.Category
	}
	if p.TagsSet {
		out.Tags = append([]string{}, p.Tags...)
	}
	if p.ImageURL != nil {
		out.ImageURL = *p.ImageURL
	}
	if p.OldPrice.Set {
		out.OldPrice = p.OldPrice.Value
	}
	if p.NewPrice.Set {
		out.NewPrice = p.NewPrice.Value
	}
	if p.DiscountPct.Set {
		out.DiscountPct = p.DiscountPct.Value
	}
	if p.ExpiresAt.Set {
		out.ExpiresAt = p.ExpiresAt.Value
	}
	if p.DeepLink != nil {
		out.DeepLink = *p.DeepLink
	}
	if p.IsActive != nil {
		out.IsActive = *p.IsActive
	}
	return out
}

// PricesChanged reports whether the patch touches either price.
func (p DealPatch) PricesChanged() bool {
	return p.OldPrice.Set || p.NewPrice.Set
}

// FeedFilter narrows the public feed and admin listings.
type FeedFilter struct {
	City       string
	Category   string
	ActiveOnly bool
}
