package channel

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// ClientOptions configures a Client.
type ClientOptions struct {
	Session       Options
	RetryInterval time.Duration // pause between connect attempts, default 10s
	Observers     []Observer
	Logger        *slog.Logger
}

// Client connects to a server endpoint and reconnects whenever the session
// ends, until its context is cancelled.
type Client struct {
	endpoint  Endpoint
	handler   Handler
	opts      ClientOptions
	logger    *slog.Logger
	observers observers
	current   current
	limiter   *rate.Limiter
}

func NewClient(endpoint Endpoint, handler Handler, opts ClientOptions) *Client {
	if opts.RetryInterval == 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Session.Logger == nil {
		opts.Session.Logger = opts.Logger
	}
	return &Client{
		endpoint:  endpoint,
		handler:   handler,
		opts:      opts,
		logger:    opts.Logger.With("role", "client", "endpoint", endpoint.String()),
		observers: observers(opts.Observers),
		limiter:   pacer(opts.RetryInterval),
	}
}

// Current returns the active session, or nil while reconnecting.
func (c *Client) Current() *Session { return c.current.get() }

func (c *Client) Endpoint() Endpoint { return c.endpoint }

// Connect dials until it succeeds or ctx ends, then starts and returns a
// session. Attempts are spaced by RetryInterval.
func (c *Client) Connect(ctx context.Context) (*Session, error) {
	for attempt := 1; ; attempt++ {
		if err := pace(ctx, c.limiter); err != nil {
			return nil, err
		}
		t, err := c.endpoint.Dial(ctx)
		if err == nil {
			sess := NewSession(t, c.handler, c.opts.Session)
			if err := sess.Start(); err != nil {
				sess.Stop()
				return nil, err
			}
			c.logger.Info("connected", "session_id", sess.ID, "attempts", attempt)
			return sess, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if IsRetryable(err) {
			c.logger.Warn("connect_retry", "attempt", attempt, "retry_in", c.opts.RetryInterval.String(), "error", err.Error())
		} else {
			c.logger.Error("connect_failed", "attempt", attempt, "retry_in", c.opts.RetryInterval.String(), "error", err.Error())
		}
	}
}

// Run keeps one session alive at a time until ctx is cancelled. It returns
// nil on cancellation.
func (c *Client) Run(ctx context.Context) error {
	c.logger.Info("client_started")
	for {
		sess, err := c.Connect(ctx)
		if err != nil {
			break
		}
		c.current.set(sess)
		c.observers.started("client", c.endpoint.String(), sess)

		waitSession(ctx, sess)

		c.observers.ended("client", c.endpoint.String(), sess)
		c.current.set(nil)
		if ctx.Err() != nil {
			break
		}
		c.logger.Info("session_lost", "session_id", sess.ID, "reason", errString(sess.Err()))
	}
	c.logger.Info("client_stopped")
	return nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
