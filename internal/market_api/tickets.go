package market_api

import (
	"ticket-bazaar/internal/api"
	"ticket-bazaar/internal/apierr"
	"ticket-bazaar/internal/tickets"
)

// UploadTicket takes the multipart "ticket" file for a claim on one of the
// seller's listings.
func (h *Handler) UploadTicket(req *api.Request) (any, error) {
	checkoutID, err := req.Int("checkout")
	if err != nil {
		return nil, err
	}
	file, header, err := req.FormFile("ticket")
	if err != nil {
		return nil, apierr.FileMissing("ticket")
	}
	defer file.Close()

	receipt, err := h.Tickets.Upload(req.Context(), req.Tx, req.Account.ID, checkoutID, file, header.Filename)
	if err != nil {
		return nil, err
	}
	return api.Created(receipt), nil
}

func (h *Handler) ViewTicket(req *api.Request) (any, error) {
	id, err := req.IDParam("id", "ticket")
	if err != nil {
		return nil, err
	}
	return h.Tickets.Find(req.Context(), req.Tx, req.Account, id)
}

// TicketQR renders the ticket's retrieval link as a QR code for phones at
// the door.
func (h *Handler) TicketQR(req *api.Request) (any, error) {
	id, err := req.IDParam("id", "ticket")
	if err != nil {
		return nil, err
	}
	receipt, err := h.Tickets.Find(req.Context(), req.Tx, req.Account, id)
	if err != nil {
		return nil, err
	}
	size, err := req.Int("size")
	if err != nil {
		return nil, err
	}
	img, err := tickets.QRCode(receipt.Link, int(size))
	if err != nil {
		return nil, err
	}
	return pngImage(img), nil
}

// ViewPdf streams an uploaded ticket to whoever holds a valid link.
func (h *Handler) ViewPdf(req *api.Request) (any, error) {
	f, err := h.Tickets.Open(req.Context(), req.Tx, req.String("token"))
	if err != nil {
		return nil, err
	}
	return pdfFile{f: f}, nil
}
