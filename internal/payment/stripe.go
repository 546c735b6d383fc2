// Package payment vaults buyer cards with the payment processor.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"ticket-bazaar/internal/logger"
	"ticket-bazaar/internal/models"
)

var (
	ErrStripeClientInitFailed = errors.New("failed to initialize Stripe client")
	ErrNoDefaultCard          = errors.New("customer has no default card")
)

type StripeService struct {
	client *client.API
	log    *logger.Logger
}

// NewStripeService builds a client for key. backends may be nil to use the
// live API; tests point it at a local server.
func NewStripeService(key string, backends *stripe.Backends, log *logger.Logger) (*StripeService, error) {
	if key == "" {
		log.Error("STRIPE", "STRIPE_SECRET_KEY not set")
		return nil, ErrStripeClientInitFailed
	}
	sc := client.New(key, backends)
	if sc == nil {
		return nil, ErrStripeClientInitFailed
	}
	log.Info("STRIPE", "Stripe client initialized successfully")
	return &StripeService{client: sc, log: log}, nil
}

func (s *StripeService) CreateCustomer(ctx context.Context, description, cardToken string) (*models.Card, error) {
	params := &stripe.CustomerParams{
		Description: stripe.String(description),
		Source:      stripe.String(cardToken),
	}
	params.Context = ctx
	params.AddExpand("default_source")

	customer, err := s.client.Customers.New(params)
	if err != nil {
		s.log.Error("STRIPE", fmt.Sprintf("Customer creation failed: %v", err))
		return nil, fmt.Errorf("create customer: %w", err)
	}
	s.log.Info("STRIPE", fmt.Sprintf("Created customer %s", customer.ID))
	return snapshot(customer)
}

func (s *StripeService) ReplaceDefaultCard(ctx context.Context, customerID, cardToken string) (*models.Card, error) {
	params := &stripe.CustomerParams{Source: stripe.String(cardToken)}
	params.Context = ctx
	params.AddExpand("default_source")

	customer, err := s.client.Customers.Update(customerID, params)
	if err != nil {
		s.log.Error("STRIPE", fmt.Sprintf("Card replacement failed for customer %s: %v", customerID, err))
		return nil, fmt.Errorf("update customer %s: %w", customerID, err)
	}
	s.log.Info("STRIPE", fmt.Sprintf("Replaced default card for customer %s", customerID))
	return snapshot(customer)
}

// snapshot copies the masked details of the customer's default card.
func snapshot(customer *stripe.Customer) (*models.Card, error) {
	if customer.DefaultSource == nil || customer.DefaultSource.Card == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoDefaultCard, customer.ID)
	}
	card := customer.DefaultSource.Card

	last4, err := strconv.ParseInt(card.Last4, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("card %s: bad last4 %q", card.ID, card.Last4)
	}
	snap := &models.Card{
		ID:          card.ID,
		Customer:    customer.ID,
		Fingerprint: card.Fingerprint,
		Expiration:  time.Date(int(card.ExpYear), time.Month(card.ExpMonth), 1, 0, 0, 0, 0, time.UTC),
		Last4:       last4,
		Brand:       string(card.Brand),
	}
	if card.Name != "" {
		name := card.Name
		snap.FullName = &name
	}
	return snap, nil
}
