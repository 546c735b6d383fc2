// Package market_api wires the marketplace routes onto the api pipeline.
package market_api

import (
	"context"
	"net/http"

	"github.com/uptrace/bun"

	"ticket-bazaar/internal/api"
	"ticket-bazaar/internal/apierr"
	"ticket-bazaar/internal/auth"
	"ticket-bazaar/internal/cache"
	"ticket-bazaar/internal/checkout"
	"ticket-bazaar/internal/identity"
	"ticket-bazaar/internal/logger"
	"ticket-bazaar/internal/models"
	"ticket-bazaar/internal/tickets"
)

type Handler struct {
	DB           *bun.DB
	Sessions     *auth.Sessions
	Identity     identity.Provider
	Checkouts    *checkout.Service
	Tickets      *tickets.TicketService
	Cache        *cache.SearchCache
	LoginLimiter *api.RateLimiter
	Log          *logger.Logger

	// AllowedOrigins may call the API from a browser with credentials.
	AllowedOrigins []string

	// Store-side procedures, swapped out where the test store lacks them.
	searchEvents func(ctx context.Context, db bun.IDB, city int64, tokens []string, limit int) ([]*models.Event, error)
	login        func(ctx context.Context, db bun.IDB, id models.Identity) (*models.Account, error)
}

func NewHandler(db *bun.DB, sessions *auth.Sessions, idp identity.Provider, checkouts *checkout.Service,
	ticketService *tickets.TicketService, searchCache *cache.SearchCache, loginLimiter *api.RateLimiter, log *logger.Logger) *Handler {
	return &Handler{
		DB:           db,
		Sessions:     sessions,
		Identity:     idp,
		Checkouts:    checkouts,
		Tickets:      ticketService,
		Cache:        searchCache,
		LoginLimiter: loginLimiter,
		Log:          log,
		searchEvents: models.SearchEvents,
		login:        models.Login,
	}
}

// Routes builds the full route table.
func (h *Handler) Routes() *api.Router {
	rt := api.NewRouter(h.Log, api.Session(h.Sessions))
	if len(h.AllowedOrigins) > 0 {
		rt.AllowOrigins(h.AllowedOrigins...)
	}
	withDB := api.WithDB(h.DB)
	account := api.AccountRequired(false)
	freshAccount := api.AccountRequired(true)

	// SQLErrors goes outside withDB on every route so errors raised at COMMIT
	// are translated too.
	listingClaimed := map[string]api.CodeHandler{
		"unique_violation": api.ByConstraint(map[string]func() *apierr.Error{
			"claim_listing_key": apierr.ListingClaimed,
		}),
		"listing_already_claimed": api.FailWith(apierr.ListingClaimed),
		"listing_not_available":   api.FailWith(func() *apierr.Error { return apierr.NotFound("listing", nil) }),
	}

	rt.HandleProducing(http.MethodGet, "/ping", []string{textType}, h.Ping)

	rt.Handle(http.MethodGet, "/account", h.ViewAccount, withDB, freshAccount)
	loginChain := []api.Middleware{api.Validate(loginSchema), withDB}
	if h.LoginLimiter != nil {
		loginChain = append([]api.Middleware{h.LoginLimiter.Middleware()}, loginChain...)
	}
	rt.Handle(http.MethodPut, "/account", h.Login, loginChain...)
	rt.Handle(http.MethodGet, "/account/listings", h.MyListings, withDB, api.Validate(citySchema), account)
	rt.Handle(http.MethodGet, "/card", h.ViewCard, withDB, freshAccount)

	rt.Handle(http.MethodGet, "/events", h.SearchEvents, api.Validate(searchSchema), withDB)

	rt.Handle(http.MethodGet, "/listings", h.SearchListings, api.Validate(citySchema), withDB, freshAccount)
	rt.Handle(http.MethodPost, "/listings", h.CreateListing, api.Validate(createListingSchema), account,
		api.SQLErrors(map[string]api.CodeHandler{
			"foreign_key_violation": api.ByConstraint(map[string]func() *apierr.Error{
				"listing_event_fkey": func() *apierr.Error { return apierr.NotFound("event", nil) },
			}),
		}), withDB)
	rt.Handle(http.MethodGet, "/listings/{id}", h.ViewListing, withDB, account)
	rt.Handle(http.MethodPut, "/listings/{id}", h.UpdateListing, api.Validate(updateListingSchema),
		api.SQLErrors(listingClaimed), withDB, account)
	rt.Handle(http.MethodDelete, "/listings/{id}", h.RemoveListing, api.SQLErrors(listingClaimed), withDB, account)

	rt.Handle(http.MethodPost, "/checkouts", h.CreateCheckout, api.Validate(checkoutSchema),
		api.SQLErrors(listingClaimed), withDB, freshAccount)
	rt.Handle(http.MethodGet, "/checkouts/{id}", h.ViewCheckout, withDB, freshAccount)

	rt.Handle(http.MethodPost, "/tickets", h.UploadTicket, api.Validate(ticketFormSchema),
		api.SQLErrors(map[string]api.CodeHandler{
			"unique_violation": api.ByConstraint(map[string]func() *apierr.Error{
				"pdf_pkey": apierr.TicketUploaded,
			}),
		}), withDB, account)
	rt.Handle(http.MethodGet, "/tickets/{id}", h.ViewTicket, withDB, freshAccount)
	rt.HandleProducing(http.MethodGet, "/tickets/{id}/qr", []string{pngType}, h.TicketQR,
		api.Validate(qrSchema), withDB, freshAccount)
	rt.HandleProducing(http.MethodGet, "/pdfs", []string{pdfType}, h.ViewPdf, api.Validate(pdfSchema), withDB)

	return rt
}

func (h *Handler) Ping(*api.Request) (any, error) {
	return plainText("ok\n"), nil
}
