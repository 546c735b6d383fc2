// Package notify tells sellers that a buyer has claimed one of their listings.
package notify

import (
	"context"
	"errors"
	"time"
)

type Party struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ClaimNotice is the claim.received payload. It is also the wire format on
// the claims topic.
type ClaimNotice struct {
	CheckoutID int64     `json:"checkout_id"`
	ListingID  int64     `json:"listing_id"`
	EventID    int64     `json:"event_id"`
	EventTitle string    `json:"event_title"`
	EventTime  time.Time `json:"event_time"`
	Seller     Party     `json:"seller"`
	Buyer      Party     `json:"buyer"`
	UploadURL  string    `json:"upload_url"`
	SetupURL   string    `json:"setup_url"`
}

type Notifier interface {
	ClaimReceived(ctx context.Context, n ClaimNotice) error
}

type NotifierFunc func(ctx context.Context, n ClaimNotice) error

func (f NotifierFunc) ClaimReceived(ctx context.Context, n ClaimNotice) error { return f(ctx, n) }

// Multi delivers to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) ClaimReceived(ctx context.Context, n ClaimNotice) error {
	var errs []error
	for _, nt := range m {
		if err := nt.ClaimReceived(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every notice.
var Discard Notifier = NotifierFunc(func(context.Context, ClaimNotice) error { return nil })
