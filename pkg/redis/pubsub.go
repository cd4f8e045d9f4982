package redis

import (
	"context"
	"fmt"
)

func (c *Client) Publish(ctx context.Context, channel string, payload any) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.rdb.Publish(ctx, channel, payload).Err()
}

// Subscribe confirms the subscription before returning. Messages stop when
// ctx is done or the returned closer runs.
func (c *Client) Subscribe(ctx context.Context, channel string) (<-chan string, func() error, error) {
	if err := c.ready(); err != nil {
		return nil, nil, err
	}
	sub := c.rdb.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	out := make(chan string)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			select {
			case out <- msg.Payload:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, sub.Close, nil
}
