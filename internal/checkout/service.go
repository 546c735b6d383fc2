// Package checkout claims a listing for a buyer, vaulting the buyer's card
// with the payment processor on the way.
package checkout

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"ticket-bazaar/internal/apierr"
	"ticket-bazaar/internal/logger"
	"ticket-bazaar/internal/mapper"
	"ticket-bazaar/internal/models"
	"ticket-bazaar/internal/notify"
)

type Processor interface {
	CreateCustomer(ctx context.Context, description, cardToken string) (*models.Card, error)
	ReplaceDefaultCard(ctx context.Context, customerID, cardToken string) (*models.Card, error)
}

type Service struct {
	Processor Processor
	Notifier  notify.Notifier
	WWWHost   string
	log       *logger.Logger
}

func NewService(p Processor, n notify.Notifier, wwwHost string, log *logger.Logger) *Service {
	if n == nil {
		n = notify.Discard
	}
	return &Service{Processor: p, Notifier: n, WWWHost: wwwHost, log: log}
}

// Order is one claim attempt. CardToken is empty when the buyer pays with
// the card already on file.
type Order struct {
	ListingID int64
	CardToken string
}

// Create claims the listing inside tx. The processor calls happen before the
// claim row is written and are not undone if the write fails; the returned
// notice is meant to be sent once tx has committed.
//
// A second claim on the same listing fails at the store with the
// claim_listing_key unique violation, which callers translate.
func (s *Service) Create(ctx context.Context, tx bun.IDB, buyer *models.Account, o Order) (*models.Checkout, *notify.ClaimNotice, error) {
	s.log.Info("CHECKOUT", fmt.Sprintf("creating checkout account=%d listing=%d customer=%s",
		buyer.ID, o.ListingID, deref(buyer.StripeCustomer)))

	// Step 1: a customer on file or a fresh card
	if !buyer.HasCard() && o.CardToken == "" {
		return nil, nil, apierr.CardMissing()
	}

	listing, err := models.FindListing(ctx, tx, o.ListingID)
	if err != nil {
		return nil, nil, err
	}

	// Step 2 and 3: create or update the processor customer
	var card *models.Card
	switch {
	case !buyer.HasCard():
		card, err = s.Processor.CreateCustomer(ctx,
			fmt.Sprintf("account=%d email=%s", buyer.ID, deref(buyer.Email)), o.CardToken)
		if err != nil {
			return nil, nil, fmt.Errorf("create customer: %w", err)
		}
		buyer.StripeCustomer = &card.Customer
		s.log.Info("CHECKOUT", fmt.Sprintf("adding customer=%s to account=%d", card.Customer, buyer.ID))
		if err := models.AccountMapper.Save(ctx, tx, buyer, false); err != nil {
			s.partialFailure(buyer, card, err)
			return nil, nil, err
		}
	case o.CardToken != "":
		card, err = s.Processor.ReplaceDefaultCard(ctx, *buyer.StripeCustomer, o.CardToken)
		if err != nil {
			return nil, nil, fmt.Errorf("replace card: %w", err)
		}
	}

	var cardID *string
	if card != nil {
		s.log.Info("CHECKOUT", fmt.Sprintf("creating card %s customer=%s brand=%s last4=%04d",
			card.ID, card.Customer, card.Brand, card.Last4))
		if err := models.CardMapper.Save(ctx, tx, card, true); err != nil {
			s.partialFailure(buyer, card, err)
			return nil, nil, err
		}
		cardID = &card.ID
	}

	// Step 4: the claim itself
	claim := &models.Checkout{Customer: *buyer.StripeCustomer, ListingID: listing.ID, StripeCard: cardID}
	if err := models.CheckoutMapper.Save(ctx, tx, claim, false); err != nil {
		if card != nil {
			s.partialFailure(buyer, card, err)
		}
		return nil, nil, err
	}
	s.log.LogCheckout("CREATED", claim.ID, fmt.Sprintf("listing=%d customer=%s", listing.ID, claim.Customer))

	// Step 5: the seller notice, sent by the caller after commit
	seller, err := models.AccountMapper.FindOne(ctx, tx, mapper.Query{PK: listing.Seller.ID})
	if err != nil {
		return nil, nil, err
	}
	notice := s.notice(claim, listing, seller, buyer)
	return claim, &notice, nil
}

func (s *Service) notice(claim *models.Checkout, listing *models.Listing, seller, buyer *models.Account) notify.ClaimNotice {
	return notify.ClaimNotice{
		CheckoutID: claim.ID,
		ListingID:  listing.ID,
		EventID:    listing.Event.ID,
		EventTitle: listing.Event.Title,
		EventTime:  listing.Event.DatetimeLocal,
		Seller:     notify.Party{Name: seller.FullName, Email: deref(seller.Email)},
		Buyer:      notify.Party{Name: buyer.FullName, Email: deref(buyer.Email)},
		UploadURL:  fmt.Sprintf("%s/#listings/%s/%d/fulfill", s.WWWHost, models.CitySlug(listing.CityID), listing.ID),
		SetupURL:   s.WWWHost + "/#account",
	}
}

// Notify delivers n. Failures are logged; the claim already stands.
func (s *Service) Notify(ctx context.Context, n notify.ClaimNotice) {
	s.log.LogCheckout("NOTIFY", n.CheckoutID, fmt.Sprintf("sending claim received to %s <%s>",
		n.Seller.Name, n.Seller.Email))
	if err := s.Notifier.ClaimReceived(ctx, n); err != nil {
		s.log.Error("CHECKOUT", fmt.Sprintf("claim received notice for checkout=%d listing=%d: %v",
			n.CheckoutID, n.ListingID, err))
	}
}

// partialFailure records processor state the store never caught up with, so
// it can be reconciled by hand.
func (s *Service) partialFailure(buyer *models.Account, card *models.Card, err error) {
	s.log.Error("CHECKOUT", fmt.Sprintf("processor ahead of store: account=%d customer=%s card=%s: %v",
		buyer.ID, card.Customer, card.ID, err))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
