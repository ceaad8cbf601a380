package endpoint

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/PorkStudios/PorkLib-sub015/pkg/channel"
	"github.com/PorkStudios/PorkLib-sub015/pkg/future"
	"github.com/PorkStudios/PorkLib-sub015/pkg/protocol"
	"github.com/PorkStudios/PorkLib-sub015/pkg/session"
)

// Client dials sessions.
type Client struct {
	*endpoint
}

// NewClient creates a client. proto may be nil when Options.Pipeline
// installs its own terminal handler.
func NewClient(cfg Config, proto protocol.Handler, opts Options) (*Client, error) {
	e, err := newEndpoint(cfg, proto, opts, "client")
	if err != nil {
		return nil, err
	}
	return &Client{endpoint: e}, nil
}

// Dial connects to addr, or to Config.Address when addr is empty. The
// future completes once the session is open and every configured channel
// finished its handshake. The work runs on the client's pool.
func (c *Client) Dial(ctx context.Context, addr string) future.Future[*session.Session] {
	if addr == "" {
		addr = c.config.Address
	}
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return future.Failed[*session.Session](ErrEndpointClosed)
	}
	return future.Run(c.pool, func() (*session.Session, error) {
		return c.dial(ctx, addr)
	})
}

func (c *Client) dial(ctx context.Context, addr string) (*session.Session, error) {
	conn, err := c.engine.Dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	s, err := c.open(conn)
	if err != nil {
		return nil, err
	}

	// Handshakes run concurrently.
	opens := make([]future.Future[*channel.Channel], 0, len(c.config.Channels))
	for _, cc := range c.config.Channels {
		opens = append(opens, s.OpenChannel(cc.Reliability, cc.ID))
	}
	var errs error
	for i, f := range opens {
		if _, err := f.Await(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("channel %s: %w", c.config.Channels[i].ID, err))
		}
	}
	if errs != nil {
		s.CloseNow(errs)
		return nil, errs
	}
	return s, nil
}

// Close closes every dialed session gracefully, then releases the
// client's scheduler, pool and keyring.
func (c *Client) Close() error {
	if !c.markClosed() {
		return nil
	}
	return multierr.Combine(c.closeSessions(), c.release())
}
