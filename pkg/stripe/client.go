package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/carbridge-backend/pkg/config"
	"github.com/angelmondragon/carbridge-backend/pkg/logger"
)

const appName = "carbridge-backend"

// secret and restricted key prefixes accepted per environment
var keyPrefixes = map[string][]string{
	"test": {"sk_test_", "rk_test_"},
	"live": {"sk_live_", "rk_live_"},
}

var (
	errAPIKeyRequired = errors.New("stripe api key is required")
	errSecretRequired = errors.New("stripe webhook signing secret is required")
)

// Client holds the process-wide Stripe key plus the webhook signing secret.
// The resource packages (paymentintent, refund) read stripe.Key, so there is
// exactly one Client per process.
type Client struct {
	environment   string
	signingSecret string
}

// NewClient validates the key against the configured environment so a live
// key can never be used from a test deployment, then installs it.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env := cfg.Environment()
	prefixes, ok := keyPrefixes[env]
	if !ok {
		return nil, fmt.Errorf("stripe environment must be test or live, got %q", env)
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	if !hasAnyPrefix(apiKey, prefixes) {
		return nil, fmt.Errorf("stripe %s environment requires one of %s keys", env, strings.Join(prefixes, ", "))
	}

	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errSecretRequired
	}
	if !strings.HasPrefix(secret, "whsec_") {
		return nil, errors.New("stripe webhook signing secret must start with whsec_")
	}

	stripe.Key = apiKey
	stripe.SetAppInfo(&stripe.AppInfo{Name: appName})

	if logg != nil {
		logg.Info(logg.WithField(ctx, "stripe_env", env), "stripe.client.ready")
	}
	return &Client{environment: env, signingSecret: secret}, nil
}

// Environment is "test" or "live".
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// Live reports whether real money moves through this client.
func (c *Client) Live() bool {
	return c.Environment() == "live"
}

// SigningSecret returns the webhook endpoint secret used to verify deliveries.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
