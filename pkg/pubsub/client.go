package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"

	"github.com/angelmondragon/carbridge-backend/pkg/config"
	"github.com/angelmondragon/carbridge-backend/pkg/gcp"
	"github.com/angelmondragon/carbridge-backend/pkg/logger"
)

const adminCheckTimeout = 10 * time.Second

var (
	errNotInitialized  = errors.New("pubsub client not initialized")
	errNoSubscriptions = errors.New("pubsub subscription name is required")
)

// Client wraps the v2 client. The outbox publisher only publishes and the
// worker only subscribes, but both share this constructor so the worker's
// subscriptions are checked at boot.
type Client struct {
	client  *pubsub.Client
	project string
	subs    subscriptions
}

type subscriptions struct {
	notification string
	journey      string
}

func (s subscriptions) names() []string {
	var out []string
	for _, name := range []string{s.notification, s.journey} {
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}

func subscriptionsFromConfig(cfg config.PubSubConfig) subscriptions {
	return subscriptions{
		notification: strings.TrimSpace(cfg.NotificationSubscription),
		journey:      strings.TrimSpace(cfg.JourneySubscription),
	}
}

func NewClient(ctx context.Context, gcpCfg config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	project, err := gcp.ProjectID(gcpCfg)
	if err != nil {
		return nil, err
	}
	subs := subscriptionsFromConfig(cfg)
	if len(subs.names()) == 0 {
		return nil, errNoSubscriptions
	}

	psClient, err := pubsub.NewClient(ctx, project, gcp.ClientOptions(gcpCfg)...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	c := &Client{client: psClient, project: project, subs: subs}

	if err := c.Ping(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"gcp_project":   project,
			"subscriptions": subs.names(),
		}), "pubsub.client.ready")
	}
	return c, nil
}

// Ping confirms every configured subscription exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, adminCheckTimeout)
	defer cancel()

	for _, name := range c.subs.names() {
		req := &pubsubpb.GetSubscriptionRequest{Subscription: c.subscriptionName(name)}
		if _, err := c.client.SubscriptionAdminClient.GetSubscription(ctx, req); err != nil {
			if gcp.IsNotFound(err) {
				return fmt.Errorf("subscription %q does not exist", name)
			}
			return fmt.Errorf("check subscription %q: %w", name, err)
		}
	}
	return nil
}

// Subscription accepts a subscription id or full resource name.
func (c *Client) Subscription(name string) *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	full := c.subscriptionName(name)
	if full == "" {
		return nil
	}
	return c.client.Subscriber(full)
}

// NotificationSubscription feeds the notification dispatcher.
func (c *Client) NotificationSubscription() *pubsub.Subscriber {
	if c == nil {
		return nil
	}
	return c.Subscription(c.subs.notification)
}

// JourneySubscription feeds the warehouse exporter.
func (c *Client) JourneySubscription() *pubsub.Subscriber {
	if c == nil {
		return nil
	}
	return c.Subscription(c.subs.journey)
}

// Publisher accepts a topic id or full resource name.
func (c *Client) Publisher(topic string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	full := gcp.ResourceName(c.project, "topics", topic)
	if full == "" {
		return nil
	}
	return c.client.Publisher(full)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) subscriptionName(name string) string {
	return gcp.ResourceName(c.project, "subscriptions", name)
}
