package notification

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridProvider implements EmailSender using SendGrid
type SendGridProvider struct {
	fromEmail string
	fromName  string
	client    *sendgrid.Client
}

func NewSendGridProvider(apiKey, fromEmail, fromName string) *SendGridProvider {
	return &SendGridProvider{
		fromEmail: fromEmail,
		fromName:  fromName,
		client:    sendgrid.NewSendClient(apiKey),
	}
}

// Send sends an email using SendGrid
func (p *SendGridProvider) Send(ctx context.Context, to, subject, body string, isHTML bool) error {
	from := mail.NewEmail(p.fromName, p.fromEmail)
	toEmail := mail.NewEmail("", to)

	var message *mail.SGMailV3
	if isHTML {
		message = mail.NewSingleEmail(from, subject, toEmail, "", body)
	} else {
		message = mail.NewSingleEmail(from, subject, toEmail, body, "")
	}

	response, err := p.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid error: %w", err)
	}

	// SendGrid returns 2xx for success
	if response.StatusCode >= 300 {
		return fmt.Errorf("sendgrid returned status %d: %s", response.StatusCode, response.Body)
	}

	return nil
}
