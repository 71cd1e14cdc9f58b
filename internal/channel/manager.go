package channel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultAcceptDelay   = time.Second
	DefaultRetryInterval = 10 * time.Second
)

// Observer follows session lifecycle, e.g. to journal sessions.
type Observer interface {
	SessionStarted(role string, endpoint string, s *Session)
	SessionEnded(role string, endpoint string, s *Session)
}

type observers []Observer

func (o observers) started(role, endpoint string, s *Session) {
	for _, ob := range o {
		ob.SessionStarted(role, endpoint, s)
	}
}

func (o observers) ended(role, endpoint string, s *Session) {
	for _, ob := range o {
		ob.SessionEnded(role, endpoint, s)
	}
}

// current holds the one session a manager owns at a time.
type current struct {
	mu      sync.RWMutex
	session *Session
}

func (c *current) set(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = s
}

func (c *current) get() *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// waitSession blocks until the session stops on its own or ctx is done, in
// which case it stops the session.
func waitSession(ctx context.Context, s *Session) {
	select {
	case <-s.Done():
	case <-ctx.Done():
		s.Stop()
	}
}

// pacer spaces attempts by a fixed interval; the first attempt is immediate.
func pacer(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// pace waits for the next attempt slot. It fails only when ctx ends.
func pace(ctx context.Context, l *rate.Limiter) error {
	if err := l.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Wait refuses up front when the deadline is closer than the
		// next slot; sleep until the deadline so the caller sees ctx.Err()
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func recoverIteration(logger *slog.Logger, errp *error) {
	if r := recover(); r != nil {
		*errp = fmt.Errorf("panic: %v", r)
		logger.Error("manager_iteration_panic", "error", *errp)
	}
}
