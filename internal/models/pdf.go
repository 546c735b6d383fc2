package models

import (
	"fmt"
	"net/url"
	"time"

	"ticket-bazaar/internal/mapper"
)

// Pdf is the uploaded fulfillment artifact for a claim, keyed by the claim id.
type Pdf struct {
	Ticket    int64
	Filename  string
	CreatedAt time.Time
}

var PdfMapper = mapper.New[Pdf](mapper.Schema{
	Kind:       "pdf",
	Table:      "pdf",
	PK:         "ticket",
	Columns:    []string{"ticket", "filename", "created_at"},
	SaveFields: []string{"ticket", "filename"},
})

func (p *Pdf) PKValue() any {
	if p == nil {
		return nil
	}
	return p.Ticket
}

func (p *Pdf) FieldValue(field string) any {
	switch field {
	case "ticket":
		return p.Ticket
	case "filename":
		return p.Filename
	}
	return nil
}

func (p *Pdf) AdaptRow(direct mapper.Row, _ map[string]mapper.Row) error {
	rd := mapper.Read(direct)
	p.Ticket = rd.Int64("ticket")
	p.Filename = rd.String("filename")
	p.CreatedAt = rd.Time("created_at")
	return rd.Err()
}

type LinkSigner interface {
	SignLink(ticket int64) (string, error)
}

// Link builds the time-limited retrieval URL for this artifact.
func (p *Pdf) Link(signer LinkSigner, apiHost string) (string, error) {
	token, err := signer.SignLink(p.Ticket)
	if err != nil {
		return "", fmt.Errorf("sign pdf link: %w", err)
	}
	return apiHost + "/pdfs?token=" + url.QueryEscape(token), nil
}
