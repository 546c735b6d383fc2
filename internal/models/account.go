package models

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ticket-bazaar/internal/mapper"
)

type Account struct {
	ID             int64
	CreatedAt      time.Time
	AuthID         string
	Email          *string
	FullName       string
	AccessToken    *string
	TZ             *string
	Profile        *string
	StripeCustomer *string
}

var AccountMapper = mapper.New[Account](mapper.Schema{
	Kind:  "account",
	Table: "account",
	Columns: []string{
		"id", "created_at", "auth_id", "email", "full_name",
		"access_token", "tz", "profile", "stripe_customer",
	},
	SaveFields: []string{"auth_id", "email", "full_name", "access_token", "tz", "profile", "stripe_customer"},
})

func (a *Account) PKValue() any {
	if a == nil {
		return nil
	}
	return a.ID
}

func (a *Account) FieldValue(field string) any {
	switch field {
	case "auth_id":
		return a.AuthID
	case "email":
		return a.Email
	case "full_name":
		return a.FullName
	case "access_token":
		return a.AccessToken
	case "tz":
		return a.TZ
	case "profile":
		return a.Profile
	case "stripe_customer":
		return a.StripeCustomer
	}
	return nil
}

func (a *Account) AdaptRow(direct mapper.Row, _ map[string]mapper.Row) error {
	rd := mapper.Read(direct)
	a.ID = rd.Int64("id")
	a.CreatedAt = rd.Time("created_at")
	a.AuthID = rd.String("auth_id")
	a.Email = rd.NullString("email")
	a.FullName = rd.String("full_name")
	a.AccessToken = rd.NullString("access_token")
	a.TZ = rd.NullString("tz")
	a.Profile = rd.NullString("profile")
	a.StripeCustomer = rd.NullString("stripe_customer")
	return rd.Err()
}

func (a *Account) HasCard() bool {
	return a.StripeCustomer != nil && *a.StripeCustomer != ""
}

type accountView struct {
	ID        int64     `json:"id"`
	CreatedAt Timestamp `json:"created_at"`
	FullName  string    `json:"full_name"`
	TZ        *string   `json:"tz"`
	Profile   *string   `json:"profile"`
}

type fullAccountView struct {
	accountView
	Email   *string `json:"email"`
	AuthID  string  `json:"auth_id"`
	HasCard bool    `json:"has_card"`
}

// View is the public shape; full adds the fields only the owner may see.
func (a *Account) View(full bool) any {
	public := accountView{
		ID:        a.ID,
		CreatedAt: Timestamp(a.CreatedAt),
		FullName:  a.FullName,
		TZ:        a.TZ,
		Profile:   a.Profile,
	}
	if !full {
		return public
	}
	return fullAccountView{
		accountView: public,
		Email:       a.Email,
		AuthID:      a.AuthID,
		HasCard:     a.HasCard(),
	}
}

// Identity is what a successful provider lookup yields at login.
type Identity struct {
	AuthID      string
	Email       string
	FullName    string
	AccessToken string
	TZ          string
	Picture     *string
}

// Login upserts the account keyed by AuthID in one store-side call and
// returns the resulting row.
func Login(ctx context.Context, db bun.IDB, id Identity) (*Account, error) {
	var pk int64
	err := db.QueryRowContext(ctx, `SELECT replace_account(?, ?, ?, ?, ?, ?)`,
		id.AuthID, id.Email, id.FullName, id.AccessToken, id.TZ, id.Picture,
	).Scan(&pk)
	if err != nil {
		return nil, fmt.Errorf("replace account: %w", err)
	}
	return AccountMapper.FindOne(ctx, db, mapper.Query{PK: pk})
}
