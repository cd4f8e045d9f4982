package email

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/resend/resend-go/v2"

	"github.com/angelmondragon/carbridge-backend/pkg/config"
	"github.com/angelmondragon/carbridge-backend/pkg/logger"
)

var (
	errAPIKeyRequired    = errors.New("resend api key is required")
	errFromRequired      = errors.New("resend from address is required")
	errRecipientRequired = errors.New("email recipient is required")
)

// Message is a single transactional email.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
	// Tag groups sends in the provider dashboard, usually the template name.
	Tag string
}

// Sender delivers a message and returns the provider message id.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

type emailsAPI interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// Client sends email through Resend.
type Client struct {
	emails emailsAPI
	from   string
}

// NewClient builds a Resend-backed sender from config.
func NewClient(ctx context.Context, cfg config.ResendConfig, logg *logger.Logger) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	from := strings.TrimSpace(cfg.DefaultFrom)
	if from == "" {
		return nil, errFromRequired
	}
	client := resend.NewClient(apiKey)
	if logg != nil {
		logg.Info(logg.WithField(ctx, "from", from), "resend client initialized")
	}
	return &Client{emails: client.Emails, from: from}, nil
}

// Send implements Sender.
func (c *Client) Send(ctx context.Context, msg Message) (string, error) {
	if c == nil || c.emails == nil {
		return "", errors.New("email client not initialized")
	}
	to := strings.TrimSpace(msg.To)
	if to == "" {
		return "", errRecipientRequired
	}
	req := &resend.SendEmailRequest{
		From:    c.from,
		To:      []string{to},
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
	}
	if msg.Tag != "" {
		req.Tags = []resend.Tag{{Name: "template", Value: msg.Tag}}
	}
	sent, err := c.emails.SendWithContext(ctx, req)
	if err != nil {
		return "", fmt.Errorf("resend send: %w", err)
	}
	if sent == nil {
		return "", nil
	}
	return sent.Id, nil
}
