// Package app wires configuration, sinks and the control surface around a
// channel manager. Both channel binaries share it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gamebridge/database"
	"gamebridge/internal/channel"
	"gamebridge/internal/config"
	"gamebridge/internal/control"
	"gamebridge/internal/sink"
)

// SessionOptions maps config onto session options for one side of the channel.
func SessionOptions(cfg *config.Config, writeInterval time.Duration, logger *slog.Logger) channel.Options {
	return channel.Options{
		WriteInterval: writeInterval,
		WriteTimeout:  cfg.WriteTimeout,
		StopTimeout:   cfg.StopTimeout,
		MaxFrameSize:  cfg.MaxFrameSize,
		OutboxSize:    cfg.OutboxSize,
		Logger:        logger,
	}
}

// Stack is the set of optional collaborators around a manager.
type Stack struct {
	Handler   channel.Handler
	Observers []channel.Observer

	closers []func()
	logger  *slog.Logger
}

// Build connects whatever backends the config enables. Redis and Postgres
// are both optional; a failure to reach a configured one is an error.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Stack, error) {
	st := &Stack{logger: logger}
	handlers := []channel.Handler{sink.LogHandler{Logger: logger}}

	if cfg.RedisURL != "" {
		rdb, err := sink.NewRedisClient(cfg.RedisAddr(), cfg.RedisPassword)
		if err != nil {
			return nil, err
		}
		rs := sink.NewRedisSink(rdb, cfg.RedisPrefix, logger)
		rs.Start()
		handlers = append(handlers, rs)
		st.closers = append(st.closers, func() {
			rs.Close()
			rdb.Close()
		})
		logger.Info("redis_sink_enabled", "addr", cfg.RedisAddr(), "channel", rs.Channel())
	}

	if cfg.DatabaseURL != "" {
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			st.Close()
			return nil, err
		}
		db, err := database.OpenGorm(cfg.DatabaseURL)
		if err != nil {
			pool.Close()
			st.Close()
			return nil, err
		}
		release := func() {
			pool.Close()
			if err := database.CloseGorm(db); err != nil {
				logger.Warn("gorm_close_failed", "error", err)
			}
		}
		j := sink.NewJournal(db, pool, logger)
		if err := j.Migrate(ctx); err != nil {
			release()
			st.Close()
			return nil, err
		}
		j.Start()
		handlers = append(handlers, j)
		st.Observers = append(st.Observers, j)
		st.closers = append(st.closers, func() {
			j.Close()
			release()
		})
		logger.Info("journal_enabled")
	}

	st.Observers = append(st.Observers, LifecycleLogger{Logger: logger})
	st.Handler = sink.Chain(handlers...)
	return st, nil
}

// Close releases backends in reverse order of creation.
func (s *Stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// RunControl serves the control surface on port when enabled and blocks
// until ctx ends.
func RunControl(ctx context.Context, cfg *config.Config, port int, source control.SessionSource, logger *slog.Logger) error {
	if !cfg.ControlEnabled {
		return nil
	}
	router := control.NewRouter(source, control.RouterConfig{
		JWTSecret: cfg.ControlJWTSecret,
		Logger:    logger,
	})
	if err := control.Serve(ctx, cfg.ControlAddr(port), router, logger); err != nil {
		return fmt.Errorf("control surface: %w", err)
	}
	return nil
}

// StartControl runs RunControl in the background. A control surface that
// fails, for instance because its port is taken, is logged and left down;
// the channel keeps running without it. The returned channel closes once
// the surface has stopped.
func StartControl(ctx context.Context, cfg *config.Config, port int, source control.SessionSource, logger *slog.Logger) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := RunControl(ctx, cfg, port, source, logger); err != nil {
			logger.Error("control_error", "addr", cfg.ControlAddr(port), "error", err.Error())
		}
	}()
	return done
}

// LifecycleLogger logs which manager owns a session and a summary when it ends.
type LifecycleLogger struct {
	Logger *slog.Logger
}

func (l LifecycleLogger) SessionStarted(role, endpoint string, s *channel.Session) {
	l.Logger.Info("session_attached", "role", role, "endpoint", endpoint, "session_id", s.ID)
}

func (l LifecycleLogger) SessionEnded(role, endpoint string, s *channel.Session) {
	stats := s.Stats()
	attrs := []any{
		"role", role,
		"endpoint", endpoint,
		"session_id", s.ID,
		"uptime", stats.Uptime,
		"frames_in", stats.FramesIn,
		"frames_out", stats.FramesOut,
		"frames_dropped", stats.FramesDropped,
	}
	if err := s.Err(); err != nil {
		attrs = append(attrs, "error", err)
	}
	l.Logger.Info("session_summary", attrs...)
}
