// Package email provides transactional email delivery.
package email

import (
	"context"
	"fmt"
)

type Provider interface {
	SendEmail(ctx context.Context, email *Email) error
}

type Email struct {
	To      string
	Subject string
	Text    string
	HTML    string
	// Category names the template, e.g. "order_confirmation".
	Category string
}

type Config struct {
	APIKey string
	From   string
}

// NewProvider returns nil when no API key is configured; callers treat a nil
// provider as "email disabled".
func NewProvider(config Config) (Provider, error) {
	if config.APIKey == "" {
		return nil, nil
	}
	if config.From == "" {
		return nil, fmt.Errorf("EMAIL_FROM is required when RESEND_API_KEY is set")
	}
	return NewResendProvider(config.APIKey, config.From), nil
}
