package email

import (
	"context"
	"fmt"
	"strings"
	"time"

	resend "github.com/resend/resend-go/v3"

	"github.com/gitshopapp/storefront/internal/observability"
)

const resendTimeout = 10 * time.Second

// ResendProvider delivers storefront mail through the Resend API. Requests
// carry Sentry trace headers so a slow send shows up under the payment span.
type ResendProvider struct {
	from   string
	client *resend.Client
}

func NewResendProvider(apiKey, from string) *ResendProvider {
	return &ResendProvider{
		from:   from,
		client: resend.NewCustomClient(observability.NewHTTPClient(resendTimeout), apiKey),
	}
}

func (r *ResendProvider) SendEmail(ctx context.Context, email *Email) error {
	if err := checkEmail(email); err != nil {
		return err
	}

	params := &resend.SendEmailRequest{
		From:    r.from,
		To:      []string{email.To},
		Subject: email.Subject,
		Html:    email.HTML,
		Text:    email.Text,
	}
	if email.Category != "" {
		params.Tags = []resend.Tag{{Name: "category", Value: email.Category}}
	}

	sent, err := r.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("failed to send %s email via resend: %w", categoryOrDefault(email), err)
	}
	if sent == nil || sent.Id == "" {
		return fmt.Errorf("resend accepted %s email without an id", categoryOrDefault(email))
	}
	return nil
}

func checkEmail(email *Email) error {
	switch {
	case email == nil:
		return fmt.Errorf("email is required")
	case strings.TrimSpace(email.To) == "":
		return fmt.Errorf("email recipient is required")
	case email.HTML == "" && email.Text == "":
		return fmt.Errorf("email body is empty")
	}
	return nil
}

func categoryOrDefault(email *Email) string {
	if email.Category == "" {
		return "storefront"
	}
	return email.Category
}
