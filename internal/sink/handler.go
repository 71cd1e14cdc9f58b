// Package sink holds the consumers of inbound channel messages: logging,
// Redis fan-out and the Postgres journal.
package sink

import (
	"log/slog"

	"gamebridge/internal/channel"
)

// Chain fans one inbound message out to every handler, in order. Nil
// handlers are skipped so optional sinks can be passed unconditionally.
func Chain(handlers ...channel.Handler) channel.Handler {
	live := make([]channel.Handler, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			live = append(live, h)
		}
	}
	return channel.HandlerFunc(func(sessionID string, msg channel.Message) {
		for _, h := range live {
			h.HandleMessage(sessionID, msg)
		}
	})
}

// LogHandler writes every inbound message to the logger at debug level.
type LogHandler struct {
	Logger *slog.Logger
}

func (h LogHandler) HandleMessage(sessionID string, msg channel.Message) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("message_received",
		"session_id", sessionID,
		"command", msg.Command(),
		"fields", len(msg),
	)
}
