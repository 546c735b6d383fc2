package notify

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net/mail"
	"net/smtp"
	"os/exec"
	"strings"
	"text/template"
)

const DefaultFrom = "Bazaar <noreply@bazaar.bbsvc.net>"

type Message struct {
	From    string
	To      Party
	Subject string
	Body    string
}

// Transport delivers one plain-text message.
type Transport interface {
	Deliver(ctx context.Context, m Message) error
}

// Sendmail pipes messages into a local MTA, e.g. "/usr/sbin/sendmail -t -oi".
type Sendmail struct {
	Command string
}

func (s Sendmail) Deliver(ctx context.Context, m Message) error {
	args := strings.Fields(s.Command)
	if len(args) == 0 {
		return fmt.Errorf("empty sendmail command")
	}
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdin = bytes.NewReader(m.Bytes())
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("sendmail: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// SMTP relays through an unauthenticated smarthost at Addr (host:port).
type SMTP struct {
	Addr string
}

func (s SMTP) Deliver(_ context.Context, m Message) error {
	sender, err := mail.ParseAddress(m.From)
	if err != nil {
		return fmt.Errorf("bad from address %q: %w", m.From, err)
	}
	return smtp.SendMail(s.Addr, nil, sender.Address, []string{m.To.Email}, m.Bytes())
}

// Bytes renders m as an RFC 5322 message with CRLF line endings.
func (m Message) Bytes() []byte {
	recipient := (&mail.Address{Name: m.To.Name, Address: m.To.Email}).String()
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", m.From)
	fmt.Fprintf(&b, "To: %s\r\n", recipient)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", m.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(m.Body, "\n", "\r\n"))
	return b.Bytes()
}

var claimReceived = template.Must(template.New("claim_received").Parse(
	`Hi {{.Seller.Name}},

{{.Buyer.Name}} wants your ticket to {{.EventTitle}} on {{.EventTime.Format "Monday, January 2 at 3:04 PM"}}.

Upload the ticket so we can send it along:
{{.UploadURL}}

If you have not set up how you get paid yet, do it here:
{{.SetupURL}}

Thanks,
Bazaar
`))

type MailNotifier struct {
	From      string
	Transport Transport
}

func (m *MailNotifier) ClaimReceived(ctx context.Context, n ClaimNotice) error {
	if n.Seller.Email == "" {
		return fmt.Errorf("seller of listing %d has no email", n.ListingID)
	}
	var body bytes.Buffer
	if err := claimReceived.Execute(&body, n); err != nil {
		return err
	}
	return m.Transport.Deliver(ctx, Message{
		From:    m.From,
		To:      n.Seller,
		Subject: fmt.Sprintf("Someone wants your ticket to %s!", n.EventTitle),
		Body:    body.String(),
	})
}

// PickTransport prefers SendGrid, then an SMTP smarthost, then a local
// sendmail. It returns nil when nothing is configured.
func PickTransport(sendgridKey, smtpHost, sendmail string) Transport {
	switch {
	case sendgridKey != "":
		return SendGrid{APIKey: sendgridKey}
	case smtpHost != "":
		return SMTP{Addr: smtpHost}
	case sendmail != "":
		return Sendmail{Command: sendmail}
	}
	return nil
}
