package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ticket-bazaar/internal/mapper"
)

// ErrListingClaimed means a guarded mutation matched nothing: the listing is
// claimed, deleted or not the caller's.
var ErrListingClaimed = errors.New("listing already claimed")

type Listing struct {
	ID        int64
	CreatedAt time.Time
	Event     *Event
	Seller    *Account
	Price     int64
	Message   *string
	DeletedAt *time.Time
	CityID    int64

	// Social hints, only present on rows from available_listings.
	FirstDegree  *bool
	SecondDegree *bool
}

var ListingMapper = mapper.New[Listing](mapper.Schema{
	Kind:       "listing",
	Table:      "full_listings",
	WriteTable: "listing",
	Columns: []string{
		"id", "created_at", "price", "message", "deleted_at",
		"event__id", "event__title", "event__performer_names", "event__performer_image",
		"event__datetime_utc", "event__datetime_local",
		"seller__id", "seller__created_at", "seller__full_name", "seller__tz", "seller__profile",
		"city__id",
	},
	Relations:  []string{"event", "seller"},
	SaveFields: []string{"event", "seller", "price", "message"},
})

func (l *Listing) PKValue() any {
	if l == nil {
		return nil
	}
	return l.ID
}

func (l *Listing) FieldValue(field string) any {
	switch field {
	case "event":
		return l.Event
	case "seller":
		return l.Seller
	case "price":
		return l.Price
	case "message":
		return l.Message
	}
	return nil
}

func (l *Listing) AdaptRow(direct mapper.Row, rels map[string]mapper.Row) error {
	rd := mapper.Read(direct)
	l.ID = rd.Int64("id")
	l.CreatedAt = rd.Time("created_at")
	l.Price = rd.Int64("price")
	l.Message = rd.NullString("message")
	l.DeletedAt = rd.NullTime("deleted_at")
	l.FirstDegree = rd.NullBool("first_degree")
	l.SecondDegree = rd.NullBool("second_degree")
	if err := rd.Err(); err != nil {
		return err
	}
	if city, ok := rels["city"]; ok {
		crd := mapper.Read(city)
		l.CityID = crd.Int64("id")
		if err := crd.Err(); err != nil {
			return err
		}
	}

	var err error
	if l.Event, err = EventMapper.Related(direct, rels, "event"); err != nil {
		return err
	}
	l.Seller, err = AccountMapper.Related(direct, rels, "seller")
	return err
}

// Connection is the social degree between viewer and seller, when known.
func (l *Listing) Connection() *int {
	var degree int
	switch {
	case l.FirstDegree != nil && *l.FirstDegree:
		degree = 1
	case l.SecondDegree != nil && *l.SecondDegree:
		degree = 2
	default:
		return nil
	}
	return &degree
}

type listingView struct {
	ID         int64     `json:"id"`
	CreatedAt  Timestamp `json:"created_at"`
	Event      *Event    `json:"event"`
	Seller     any       `json:"seller"`
	Price      int64     `json:"price"`
	Message    *string   `json:"message"`
	IsOwn      *bool     `json:"is_own,omitempty"`
	Connection *int      `json:"connection,omitempty"`
}

// View renders the listing for viewer, who may be nil for anonymous callers.
func (l *Listing) View(viewer *Account) any {
	v := listingView{
		ID:         l.ID,
		CreatedAt:  Timestamp(l.CreatedAt),
		Event:      l.Event,
		Price:      l.Price,
		Message:    l.Message,
		Connection: l.Connection(),
	}
	if l.Seller != nil {
		v.Seller = l.Seller.View(false)
	}
	if viewer != nil {
		own := l.Seller != nil && l.Seller.ID == viewer.ID
		v.IsOwn = &own
	}
	return v
}

func Views(listings []*Listing, viewer *Account) []any {
	out := make([]any, 0, len(listings))
	for _, l := range listings {
		out = append(out, l.View(viewer))
	}
	return out
}

// SearchListings returns what buyerAuthID may claim in city. Eligibility lives
// in the available_listings view.
func SearchListings(ctx context.Context, db bun.IDB, city int64, buyerAuthID string) ([]*Listing, error) {
	return ListingMapper.FindAll(ctx, db, mapper.Query{
		From:    "available_listings",
		Where:   "city__id = ? AND buyer = ?",
		Params:  []any{city, buyerAuthID},
		OrderBy: "event__datetime_utc",
		Limit:   MaxSearchResults,
	})
}

// OwnListings returns the seller's live listings in city, claimed or not.
func OwnListings(ctx context.Context, db bun.IDB, city, sellerID int64) ([]*Listing, error) {
	return ListingMapper.FindAll(ctx, db, mapper.Query{
		Where:   "city__id = ? AND seller__id = ?",
		Params:  []any{city, sellerID},
		OrderBy: "created_at DESC",
	})
}

func FindListing(ctx context.Context, db bun.IDB, id int64) (*Listing, error) {
	return ListingMapper.FindOne(ctx, db, mapper.Query{PK: id})
}

// FindOwnListing is FindListing restricted to sellerID; others read as not found.
func FindOwnListing(ctx context.Context, db bun.IDB, id, sellerID int64) (*Listing, error) {
	return ListingMapper.FindOne(ctx, db, mapper.Query{
		PK:     id,
		Where:  "seller__id = ?",
		Params: []any{sellerID},
	})
}

const unclaimedGuard = `id = ? AND seller = ? AND deleted_at IS NULL
	AND NOT EXISTS (SELECT 1 FROM claim c WHERE c.listing = ?)`

// Update sets price and message in one statement that re-checks the listing
// is live and unclaimed. Nothing changes when the guard fails.
func (l *Listing) Update(ctx context.Context, db bun.IDB, price int64, message *string) error {
	var newPrice int64
	var newMessage *string
	err := db.QueryRowContext(ctx,
		`UPDATE listing SET price = ?, message = ? WHERE `+unclaimedGuard+` RETURNING price, message`,
		price, message, l.ID, l.sellerID(), l.ID,
	).Scan(&newPrice, &newMessage)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrListingClaimed
	}
	if err != nil {
		return fmt.Errorf("update listing %d: %w", l.ID, err)
	}
	l.Price = newPrice
	l.Message = newMessage
	return nil
}

// Remove soft-deletes under the same guard as Update.
func (l *Listing) Remove(ctx context.Context, db bun.IDB) error {
	res, err := db.ExecContext(ctx,
		`UPDATE listing SET deleted_at = CURRENT_TIMESTAMP WHERE `+unclaimedGuard,
		l.ID, l.sellerID(), l.ID,
	)
	if err != nil {
		return fmt.Errorf("remove listing %d: %w", l.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrListingClaimed
	}
	now := time.Now().UTC()
	l.DeletedAt = &now
	return nil
}

func (l *Listing) sellerID() any {
	return l.Seller.PKValue()
}
