package redis

import "strings"

// Every key lives under cb: so the instance can be shared with other apps.
const keyNamespace = "cb"

func key(parts ...string) string {
	out := []string{keyNamespace}
	for _, part := range parts {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ":")
}

// IdempotencyKey namespaces a replay guard, e.g. cb:idempotency:stripe:evt_1.
func (c *Client) IdempotencyKey(scope, id string) string { return key("idempotency", scope, id) }

func (c *Client) RateLimitKey(scope string) string { return key("rate_limit", scope) }

func (c *Client) LockKey(name string) string { return key("lock", name) }

// AccessSessionKey is keyed by the access token jti.
func (c *Client) AccessSessionKey(accessID string) string { return key("session", "access", accessID) }

// TrackingChannel carries live tracking updates for one escrow.
func (c *Client) TrackingChannel(escrowID string) string { return key("tracking", escrowID) }
