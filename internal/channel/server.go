package channel

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// ServerOptions configures a Server.
type ServerOptions struct {
	Session     Options
	AcceptDelay time.Duration // pause between sessions, default 1s
	Observers   []Observer
	Logger      *slog.Logger
}

// Server accepts one peer at a time on a single endpoint. Each iteration
// listens on a fresh endpoint, closes it as soon as a peer is attached,
// runs the session to completion and starts over.
type Server struct {
	endpoint  Endpoint
	handler   Handler
	opts      ServerOptions
	logger    *slog.Logger
	observers observers
	current   current
	accepted  atomic.Int64

	// listening is signalled each time a listener is up; used by tests
	listening chan Listener
}

func NewServer(endpoint Endpoint, handler Handler, opts ServerOptions) *Server {
	if opts.AcceptDelay == 0 {
		opts.AcceptDelay = DefaultAcceptDelay
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Session.Logger == nil {
		opts.Session.Logger = opts.Logger
	}
	return &Server{
		endpoint:  endpoint,
		handler:   handler,
		opts:      opts,
		logger:    opts.Logger.With("role", "server", "endpoint", endpoint.String()),
		observers: observers(opts.Observers),
	}
}

// Current returns the active session, or nil between sessions.
func (s *Server) Current() *Session { return s.current.get() }

// Accepted counts sessions accepted since Serve started.
func (s *Server) Accepted() int64 { return s.accepted.Load() }

func (s *Server) Endpoint() Endpoint { return s.endpoint }

// Serve runs until ctx is cancelled. Failures of a single iteration are
// logged and the loop listens again; Serve itself returns nil on shutdown.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("server_started")
	limiter := pacer(s.opts.AcceptDelay)
	for {
		if err := pace(ctx, limiter); err != nil {
			break
		}
		if err := s.serveOnce(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			s.logger.Error("server_iteration_failed", "error", err.Error())
		}
	}
	s.logger.Info("server_stopped", "sessions", s.accepted.Load())
	return nil
}

func (s *Server) serveOnce(ctx context.Context) (err error) {
	defer recoverIteration(s.logger, &err)

	ln, err := s.endpoint.Listen(ctx)
	if err != nil {
		return err
	}
	if s.listening != nil {
		s.listening <- ln
	}
	s.logger.Info("waiting_for_peer")
	t, err := ln.Accept(ctx)
	// no other peer may queue while this session runs
	ln.Close()
	if err != nil {
		return err
	}

	sess := NewSession(t, s.handler, s.opts.Session)
	s.accepted.Add(1)
	s.current.set(sess)
	defer s.current.set(nil)

	if err := sess.Start(); err != nil {
		sess.Stop()
		return err
	}
	s.logger.Info("peer_attached", "session_id", sess.ID)
	s.observers.started("server", s.endpoint.String(), sess)
	defer s.observers.ended("server", s.endpoint.String(), sess)

	waitSession(ctx, sess)
	s.logger.Info("session_ended", "session_id", sess.ID)
	return nil
}
