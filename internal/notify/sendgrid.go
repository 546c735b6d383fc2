package notify

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGrid delivers through the SendGrid v3 mail API.
type SendGrid struct {
	APIKey string
	// Host overrides the API base URL; empty means https://api.sendgrid.com.
	Host string
}

func (s SendGrid) Deliver(ctx context.Context, m Message) error {
	from, err := mail.ParseAddress(m.From)
	if err != nil {
		return fmt.Errorf("bad from address %q: %w", m.From, err)
	}
	message := sgmail.NewSingleEmail(
		sgmail.NewEmail(from.Name, from.Address),
		m.Subject,
		sgmail.NewEmail(m.To.Name, m.To.Email),
		m.Body,
		"",
	)

	host := s.Host
	if host == "" {
		host = "https://api.sendgrid.com"
	}
	req := sendgrid.GetRequest(s.APIKey, "/v3/mail/send", host)
	req.Method = rest.Post
	req.Body = sgmail.GetRequestBody(message)

	resp, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}
