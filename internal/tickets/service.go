// Package tickets handles fulfillment: the seller uploads the ticket file for
// a claim and the buyer fetches it through a signed, expiring link.
package tickets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/uptrace/bun"

	"ticket-bazaar/internal/apierr"
	"ticket-bazaar/internal/auth"
	"ticket-bazaar/internal/logger"
	"ticket-bazaar/internal/mapper"
	"ticket-bazaar/internal/models"
)

type FileStore interface {
	Save(r io.Reader, original string) (string, error)
	Open(name string) (*os.File, error)
	Remove(name string) error
}

type TicketService struct {
	Files   FileStore
	Links   *auth.Links
	APIHost string
	log     *logger.Logger
}

func NewTicketService(files FileStore, links *auth.Links, apiHost string, log *logger.Logger) *TicketService {
	return &TicketService{Files: files, Links: links, APIHost: apiHost, log: log}
}

// Receipt is what clients see of an uploaded ticket.
type Receipt struct {
	Ticket    int64            `json:"ticket"`
	Link      string           `json:"link"`
	CreatedAt models.Timestamp `json:"created_at"`
}

func (s *TicketService) receipt(pdf *models.Pdf) (*Receipt, error) {
	link, err := pdf.Link(s.Links, s.APIHost)
	if err != nil {
		return nil, err
	}
	return &Receipt{Ticket: pdf.Ticket, Link: link, CreatedAt: models.Timestamp(pdf.CreatedAt)}, nil
}

// Upload stores the file for claim checkoutID, which must be on one of the
// seller's listings. A claim takes one upload; the pdf primary key catches a
// concurrent second one.
func (s *TicketService) Upload(ctx context.Context, tx bun.IDB, sellerID, checkoutID int64, r io.Reader, filename string) (*Receipt, error) {
	if _, err := models.FindSellerCheckout(ctx, tx, checkoutID, sellerID); err != nil {
		return nil, err
	}

	_, err := models.PdfMapper.FindOne(ctx, tx, mapper.Query{PK: checkoutID})
	if err == nil {
		return nil, apierr.TicketUploaded()
	}
	if !errors.Is(err, mapper.ErrNotFound) {
		return nil, err
	}

	name, err := s.Files.Save(r, filename)
	if err != nil {
		return nil, fmt.Errorf("store ticket file: %w", err)
	}
	pdf := &models.Pdf{Ticket: checkoutID, Filename: name}
	if err := models.PdfMapper.Save(ctx, tx, pdf, true); err != nil {
		if rmErr := s.Files.Remove(name); rmErr != nil {
			s.log.Warn("TICKETS", fmt.Sprintf("orphaned upload %s: %v", name, rmErr))
		}
		return nil, err
	}
	s.log.LogCheckout("TICKET_UPLOADED", checkoutID, fmt.Sprintf("seller=%d file=%s", sellerID, name))
	return s.receipt(pdf)
}

// Find returns the receipt for a claim the account sold or bought.
func (s *TicketService) Find(ctx context.Context, tx bun.IDB, account *models.Account, checkoutID int64) (*Receipt, error) {
	_, err := models.FindSellerCheckout(ctx, tx, checkoutID, account.ID)
	if errors.Is(err, mapper.ErrNotFound) && account.HasCard() {
		_, err = models.FindBuyerCheckout(ctx, tx, checkoutID, *account.StripeCustomer)
	}
	if err != nil {
		return nil, err
	}
	pdf, err := models.PdfMapper.FindOne(ctx, tx, mapper.Query{PK: checkoutID})
	if err != nil {
		return nil, err
	}
	return s.receipt(pdf)
}

// Open resolves a retrieval token to the stored file. The caller closes it.
func (s *TicketService) Open(ctx context.Context, tx bun.IDB, token string) (*os.File, error) {
	id, err := s.Links.Verify(token)
	if err != nil {
		s.log.LogSecurity("BAD_LINK", err.Error())
		return nil, apierr.BadRequest("invalid token", nil)
	}
	pdf, err := models.PdfMapper.FindOne(ctx, tx, mapper.Query{PK: id})
	if err != nil {
		return nil, err
	}
	f, err := s.Files.Open(pdf.Filename)
	if err != nil {
		return nil, fmt.Errorf("open ticket %d: %w", id, err)
	}
	return f, nil
}
