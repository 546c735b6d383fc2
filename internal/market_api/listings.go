package market_api

import (
	"encoding/json"
	"fmt"

	"ticket-bazaar/internal/api"
	"ticket-bazaar/internal/apierr"
	"ticket-bazaar/internal/cache"
	"ticket-bazaar/internal/models"
)

// SearchEvents is the autocompleting event search. Results are cached per
// city, limit and token set.
func (h *Handler) SearchEvents(req *api.Request) (any, error) {
	city, err := req.Int("city")
	if err != nil {
		return nil, err
	}
	rawLimit, err := req.Int("limit")
	if err != nil {
		return nil, err
	}
	q := req.String("q")
	limit := models.SearchLimit(int(rawLimit))
	h.Log.Info("EVENTS", fmt.Sprintf("searching events city=%d q=%q", city, q))

	tokens := models.Tokenize(q)
	if len(tokens) == 0 {
		return nil, apierr.InvalidRequest("q has no searchable terms", map[string]any{"path": "/q", "value": q})
	}

	key := cache.Key(city, limit, tokens)
	if hit, ok := h.Cache.Get(req.Context(), key); ok {
		return json.RawMessage(hit), nil
	}

	events, err := h.searchEvents(req.Context(), req.Tx, city, tokens, limit)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []*models.Event{}
	}
	if body, err := json.Marshal(events); err == nil {
		h.Cache.Set(req.Context(), key, body)
	}
	return events, nil
}

// SearchListings lists what the account could buy in a city.
func (h *Handler) SearchListings(req *api.Request) (any, error) {
	city, err := req.Int("city")
	if err != nil {
		return nil, err
	}
	listings, err := models.SearchListings(req.Context(), req.Tx, city, req.Account.AuthID)
	if err != nil {
		return nil, err
	}
	return models.Views(listings, req.Account), nil
}

func (h *Handler) MyListings(req *api.Request) (any, error) {
	city, err := req.Int("city")
	if err != nil {
		return nil, err
	}
	listings, err := models.OwnListings(req.Context(), req.Tx, city, req.Account.ID)
	if err != nil {
		return nil, err
	}
	return models.Views(listings, req.Account), nil
}

// CreateListing offers a ticket for an existing event.
func (h *Handler) CreateListing(req *api.Request) (any, error) {
	eventID, err := req.Int("event")
	if err != nil {
		return nil, err
	}
	price, err := req.Int("price")
	if err != nil {
		return nil, err
	}
	h.Log.Info("LISTING", fmt.Sprintf("creating listing seller=%d event=%d price=%d", req.Account.ID, eventID, price))

	listing := &models.Listing{
		Event:   &models.Event{ID: eventID},
		Seller:  req.Account,
		Price:   price,
		Message: req.OptString("message"),
	}
	if err := models.ListingMapper.Save(req.Context(), req.Tx, listing, false); err != nil {
		return nil, err
	}
	h.Log.LogListing("CREATED", listing.ID, fmt.Sprintf("seller=%d event=%d", req.Account.ID, eventID))

	// Re-read through the view for the joined event and seller.
	full, err := models.FindListing(req.Context(), req.Tx, listing.ID)
	if err != nil {
		return nil, err
	}
	return api.Created(full.View(req.Account)), nil
}

func (h *Handler) ViewListing(req *api.Request) (any, error) {
	id, err := req.IDParam("id", "listing")
	if err != nil {
		return nil, err
	}
	listing, err := models.FindListing(req.Context(), req.Tx, id)
	if err != nil {
		return nil, err
	}
	return listing.View(req.Account), nil
}

// UpdateListing changes price or message on the seller's own listing while
// it is unclaimed.
func (h *Handler) UpdateListing(req *api.Request) (any, error) {
	listing, err := h.ownListing(req)
	if err != nil {
		return nil, err
	}
	h.Log.LogListing("UPDATE", listing.ID, fmt.Sprintf("seller=%d update=%s", req.Account.ID, req.Raw))

	price, message := listing.Price, listing.Message
	if req.Has("price") {
		if price, err = req.Int("price"); err != nil {
			return nil, err
		}
	}
	if req.Has("message") {
		message = req.OptString("message")
	}
	if err := listing.Update(req.Context(), req.Tx, price, message); err != nil {
		return nil, err
	}
	return listing.View(req.Account), nil
}

// RemoveListing soft-deletes the seller's own unclaimed listing.
func (h *Handler) RemoveListing(req *api.Request) (any, error) {
	listing, err := h.ownListing(req)
	if err != nil {
		return nil, err
	}
	if err := listing.Remove(req.Context(), req.Tx); err != nil {
		return nil, err
	}
	h.Log.LogListing("REMOVED", listing.ID, fmt.Sprintf("seller=%d", req.Account.ID))
	return api.NoContent, nil
}

func (h *Handler) ownListing(req *api.Request) (*models.Listing, error) {
	id, err := req.IDParam("id", "listing")
	if err != nil {
		return nil, err
	}
	return models.FindOwnListing(req.Context(), req.Tx, id, req.Account.ID)
}
