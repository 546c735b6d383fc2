package market_api

import (
	"context"
	"errors"

	"ticket-bazaar/internal/api"
	"ticket-bazaar/internal/checkout"
	"ticket-bazaar/internal/mapper"
	"ticket-bazaar/internal/models"
)

// CreateCheckout claims a listing, vaulting a new card first when one is
// given. The seller is notified once the claim has committed.
func (h *Handler) CreateCheckout(req *api.Request) (any, error) {
	listingID, err := req.Int("listing")
	if err != nil {
		return nil, err
	}
	claim, notice, err := h.Checkouts.Create(req.Context(), req.Tx, req.Account, checkout.Order{
		ListingID: listingID,
		CardToken: req.String("card_token"),
	})
	if err != nil {
		return nil, err
	}
	req.AfterCommit(func(ctx context.Context) { h.Checkouts.Notify(ctx, *notice) })
	return api.Created(claim), nil
}

// ViewCheckout shows a claim to its seller or its buyer.
func (h *Handler) ViewCheckout(req *api.Request) (any, error) {
	id, err := req.IDParam("id", "checkout")
	if err != nil {
		return nil, err
	}
	claim, err := models.FindSellerCheckout(req.Context(), req.Tx, id, req.Account.ID)
	if errors.Is(err, mapper.ErrNotFound) && req.Account.HasCard() {
		claim, err = models.FindBuyerCheckout(req.Context(), req.Tx, id, *req.Account.StripeCustomer)
	}
	if err != nil {
		return nil, err
	}
	return claim, nil
}
