package market_api

import (
	"context"
	"fmt"
	"net/http"

	"ticket-bazaar/internal/api"
	"ticket-bazaar/internal/apierr"
	"ticket-bazaar/internal/models"
)

func (h *Handler) ViewAccount(req *api.Request) (any, error) {
	return req.Account.View(true), nil
}

// Login exchanges an identity-provider access token for a session cookie,
// creating the account on first use.
func (h *Handler) Login(req *api.Request) (any, error) {
	token := req.String("access_token")
	profile, err := h.Identity.Lookup(req.Context(), token)
	if err != nil {
		return nil, err
	}

	account, err := h.login(req.Context(), req.Tx, models.Identity{
		AuthID:      profile.ID,
		Email:       profile.Email,
		FullName:    profile.Name,
		AccessToken: token,
		TZ:          req.String("tz"),
		Picture:     profile.Picture,
	})
	if err != nil {
		return nil, err
	}
	h.Log.Info("ACCOUNT", fmt.Sprintf("login account=%d auth_id=%s", account.ID, account.AuthID))

	cookie, err := h.Sessions.Cookie(account.ID)
	if err != nil {
		return nil, err
	}
	// A rolled-back login must not hand out a session for its account id.
	req.AfterCommit(func(context.Context) { http.SetCookie(req.W, cookie) })
	return account.View(true), nil
}

// ViewCard shows the masked card most recently vaulted for the account.
func (h *Handler) ViewCard(req *api.Request) (any, error) {
	if !req.Account.HasCard() {
		return nil, apierr.CardMissing()
	}
	h.Log.Info("ACCOUNT", fmt.Sprintf("fetching card for account=%d customer=%s",
		req.Account.ID, *req.Account.StripeCustomer))
	return models.LatestCard(req.Context(), req.Tx, *req.Account.StripeCustomer)
}
