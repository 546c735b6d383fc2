package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/uptrace/bun"

	"ticket-bazaar/internal/mapper"
)

// Checkout is a claim on one listing. The store allows one per listing
// (constraint claim_listing_key).
type Checkout struct {
	ID         int64
	CreatedAt  time.Time
	Customer   string
	ListingID  int64
	StripeCard *string
}

var CheckoutMapper = mapper.New[Checkout](mapper.Schema{
	Kind:       "checkout",
	Table:      "claim",
	Columns:    []string{"id", "created_at", "customer", "listing", "stripe_card"},
	SaveFields: []string{"customer", "listing", "stripe_card"},
})

func (c *Checkout) PKValue() any {
	if c == nil {
		return nil
	}
	return c.ID
}

func (c *Checkout) FieldValue(field string) any {
	switch field {
	case "customer":
		return c.Customer
	case "listing":
		return c.ListingID
	case "stripe_card":
		return c.StripeCard
	}
	return nil
}

func (c *Checkout) AdaptRow(direct mapper.Row, _ map[string]mapper.Row) error {
	rd := mapper.Read(direct)
	c.ID = rd.Int64("id")
	c.CreatedAt = rd.Time("created_at")
	c.Customer = rd.String("customer")
	c.ListingID = rd.Int64("listing")
	c.StripeCard = rd.NullString("stripe_card")
	return rd.Err()
}

func (c *Checkout) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID      int64 `json:"id"`
		Listing int64 `json:"listing"`
	}{c.ID, c.ListingID})
}

// FindBuyerCheckout loads a claim made by the payment customer.
func FindBuyerCheckout(ctx context.Context, db bun.IDB, id int64, customer string) (*Checkout, error) {
	return CheckoutMapper.FindOne(ctx, db, mapper.Query{
		PK:     id,
		Where:  "customer = ?",
		Params: []any{customer},
	})
}

// FindSellerCheckout loads a claim on one of the seller's listings.
func FindSellerCheckout(ctx context.Context, db bun.IDB, id, sellerID int64) (*Checkout, error) {
	return CheckoutMapper.FindOne(ctx, db, mapper.Query{
		PK:     id,
		Where:  "listing IN (SELECT l.id FROM listing l WHERE l.seller = ?)",
		Params: []any{sellerID},
	})
}
