package models

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ticket-bazaar/internal/mapper"
)

// Card is a masked snapshot of a vaulted payment method. The id is assigned
// by the processor, so it is saved with forceInsert and never updated.
type Card struct {
	ID          string
	CreatedAt   time.Time
	Customer    string
	Fingerprint string
	FullName    *string
	Expiration  time.Time
	Last4       int64
	Brand       string
}

var CardMapper = mapper.New[Card](mapper.Schema{
	Kind:       "card",
	Table:      "stripe_card",
	Columns:    []string{"id", "created_at", "customer", "fingerprint", "full_name", "expiration", "last4", "brand"},
	SaveFields: []string{"id", "customer", "fingerprint", "full_name", "expiration", "last4", "brand"},
})

func (c *Card) PKValue() any {
	if c == nil {
		return nil
	}
	return c.ID
}

func (c *Card) FieldValue(field string) any {
	switch field {
	case "id":
		return c.ID
	case "customer":
		return c.Customer
	case "fingerprint":
		return c.Fingerprint
	case "full_name":
		return c.FullName
	case "expiration":
		return c.Expiration
	case "last4":
		return c.Last4
	case "brand":
		return c.Brand
	}
	return nil
}

func (c *Card) AdaptRow(direct mapper.Row, _ map[string]mapper.Row) error {
	rd := mapper.Read(direct)
	c.ID = rd.String("id")
	c.CreatedAt = rd.Time("created_at")
	c.Customer = rd.String("customer")
	c.Fingerprint = rd.String("fingerprint")
	c.FullName = rd.NullString("full_name")
	c.Expiration = rd.Time("expiration")
	c.Last4 = rd.Int64("last4")
	c.Brand = rd.String("brand")
	return rd.Err()
}

func (c *Card) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		FullName   *string `json:"full_name"`
		Expiration string  `json:"expiration"`
		Last4      string  `json:"last4"`
		Brand      string  `json:"brand"`
	}{c.FullName, c.Expiration.Format("2006-01"), fmt.Sprintf("%04d", c.Last4), c.Brand})
}

// LatestCard returns the newest card vaulted for customer.
func LatestCard(ctx context.Context, db bun.IDB, customer string) (*Card, error) {
	return CardMapper.FindOne(ctx, db, mapper.Query{
		Where:   "customer = ?",
		Params:  []any{customer},
		OrderBy: "created_at DESC",
	})
}
