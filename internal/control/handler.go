package control

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"gamebridge/internal/channel"
)

// SessionSource owns at most one current session; both channel.Server and
// channel.Client satisfy it.
type SessionSource interface {
	Current() *channel.Session
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Connected bool           `json:"connected"`
	Session   *channel.Stats `json:"session"`
}

// SendResponse is the body of a successful POST /send.
type SendResponse struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
	Command   string `json:"command"`
}

type Handler struct {
	source SessionSource
	logger *slog.Logger
}

func NewHandler(source SessionSource, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{source: source, logger: logger}
}

// RegisterRoutes mounts the endpoints; guard, when non-nil, protects /send.
func (h *Handler) RegisterRoutes(r gin.IRouter, guard gin.HandlerFunc) {
	r.GET("/health", h.Health)
	r.GET("/status", h.Status)
	if guard != nil {
		r.POST("/send", guard, h.Send)
	} else {
		r.POST("/send", h.Send)
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) Status(c *gin.Context) {
	resp := StatusResponse{}
	if s := h.source.Current(); s != nil {
		stats := s.Stats()
		resp.Session = &stats
		resp.Connected = s.IsRunning()
	}
	c.JSON(http.StatusOK, resp)
}

// Send writes the JSON object in the body to the peer. With ?async=true the
// message is queued for the writer loop instead.
func (h *Handler) Send(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read body"})
		return
	}
	msg, err := channel.Decode(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be a JSON object"})
		return
	}
	if _, ok := msg["timestamp"]; !ok {
		msg["timestamp"] = float64(time.Now().UnixNano()) / 1e9
	}

	s := h.source.Current()
	if s == nil || !s.IsRunning() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no active session"})
		return
	}

	async := c.Query("async") == "true"
	if async {
		err = s.Enqueue(msg)
	} else {
		err = s.Send(msg)
	}
	if err != nil {
		status := sendErrorStatus(err)
		h.logger.Warn("control_send_failed",
			"session_id", s.ID,
			"command", msg.Command(),
			"async", async,
			"error", err,
		)
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	resp := SendResponse{Status: "sent", SessionID: s.ID, Command: msg.Command()}
	code := http.StatusOK
	if async {
		resp.Status = "queued"
		code = http.StatusAccepted
	}
	c.JSON(code, resp)
}

func sendErrorStatus(err error) int {
	switch {
	case errors.Is(err, channel.ErrOutboxFull):
		return http.StatusTooManyRequests
	case errors.Is(err, channel.ErrSessionNotRunning):
		return http.StatusServiceUnavailable
	case errors.Is(err, channel.ErrEncoding):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}
