package stripe

import (
	"context"
	"testing"

	"github.com/angelmondragon/carbridge-backend/pkg/config"
)

func TestNewClientValidatesEnvironmentAndKeys(t *testing.T) {
	cases := []struct {
		name string
		cfg  config.StripeConfig
		live bool
		ok   bool
	}{
		{name: "test key in test env", cfg: config.StripeConfig{APIKey: "sk_test_123", Secret: "whsec_1", Env: "test"}, ok: true},
		{name: "restricted live key", cfg: config.StripeConfig{APIKey: "rk_live_123", Secret: "whsec_1", Env: " LIVE "}, ok: true, live: true},
		{name: "blank env defaults to test", cfg: config.StripeConfig{APIKey: "sk_test_123", Secret: "whsec_1"}, ok: true},
		{name: "live key in test env", cfg: config.StripeConfig{APIKey: "sk_live_123", Secret: "whsec_1", Env: "test"}},
		{name: "publishable key", cfg: config.StripeConfig{APIKey: "pk_test_123", Secret: "whsec_1", Env: "test"}},
		{name: "missing secret", cfg: config.StripeConfig{APIKey: "sk_test_123", Env: "test"}},
		{name: "secret without prefix", cfg: config.StripeConfig{APIKey: "sk_test_123", Secret: "abc", Env: "test"}},
		{name: "missing key", cfg: config.StripeConfig{Secret: "whsec_1"}},
		{name: "unknown env", cfg: config.StripeConfig{APIKey: "sk_test_123", Secret: "whsec_1", Env: "staging"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, err := NewClient(context.Background(), tc.cfg, nil)
			if !tc.ok {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if client.SigningSecret() != "whsec_1" {
				t.Fatal("signing secret not kept")
			}
			if client.Live() != tc.live {
				t.Fatalf("expected live=%v", tc.live)
			}
		})
	}
}

func TestNilClientAccessors(t *testing.T) {
	var c *Client
	if c.Environment() != "" || c.SigningSecret() != "" || c.Live() {
		t.Fatal("nil client accessors should return zero values")
	}
	if _, err := NewPayments(nil); err == nil {
		t.Fatal("expected error for nil client")
	}
}
