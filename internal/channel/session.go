package channel

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle of a Session: Idle -> Running -> Stopping -> Stopped.
// There is no way back to Running; reconnecting builds a new Session.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(text []byte) error {
	for st := StateIdle; st <= StateStopped; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", text)
}

// Handler consumes decoded inbound messages. HandleMessage runs on the
// session's reader goroutine, so it must not block for long.
type Handler interface {
	HandleMessage(sessionID string, msg Message)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(sessionID string, msg Message)

func (f HandlerFunc) HandleMessage(sessionID string, msg Message) { f(sessionID, msg) }

// HeartbeatFunc builds the periodic outbound message.
type HeartbeatFunc func(now time.Time) Message

// DefaultHeartbeat sends {"command":"GET_STATE","timestamp":<now>}.
func DefaultHeartbeat(now time.Time) Message {
	return NewMessage(CommandGetState, now)
}

const (
	DefaultWriteInterval = 5 * time.Second
	DefaultStopTimeout   = time.Second
	DefaultWriteTimeout  = 10 * time.Second
	DefaultOutboxSize    = 64
)

// Options tunes a Session. Zero values take the defaults above, except
// WriteInterval where a negative value turns heartbeats off.
type Options struct {
	WriteInterval time.Duration
	WriteTimeout  time.Duration
	StopTimeout   time.Duration
	MaxFrameSize  int
	OutboxSize    int
	Heartbeat     HeartbeatFunc
	Logger        *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.WriteInterval == 0 {
		o.WriteInterval = DefaultWriteInterval
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = DefaultStopTimeout
	}
	if o.MaxFrameSize <= 0 {
		o.MaxFrameSize = DefaultMaxFrameSize
	}
	if o.OutboxSize <= 0 {
		o.OutboxSize = DefaultOutboxSize
	}
	if o.Heartbeat == nil {
		o.Heartbeat = DefaultHeartbeat
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Stats is a point-in-time snapshot of a session.
type Stats struct {
	SessionID     string    `json:"session_id"`
	State         State     `json:"state"`
	StartedAt     time.Time `json:"started_at"`
	Uptime        string    `json:"uptime"`
	FramesIn      int64     `json:"frames_in"`
	FramesOut     int64     `json:"frames_out"`
	FramesDropped int64     `json:"frames_dropped"`
	LastReceived  time.Time `json:"last_received"`
	LastSent      time.Time `json:"last_sent"`
}

// Session owns one Transport and the reader and writer goroutines running
// against it.
type Session struct {
	ID string

	transport Transport
	handler   Handler
	opts      Options
	logger    *slog.Logger

	state   atomic.Int32
	writeMu sync.Mutex // the write gate; one frame at a time
	outbox  chan Message

	quit       chan struct{} // closed when leaving Running
	readerDone chan struct{}
	writerDone chan struct{}
	done       chan struct{} // closed on reaching Stopped
	cause      error         // set once, before quit is closed

	startedAt     atomic.Int64
	framesIn      atomic.Int64
	framesOut     atomic.Int64
	framesDropped atomic.Int64
	lastReceived  atomic.Int64
	lastSent      atomic.Int64
}

// NewSession wraps an already open transport. Nothing runs until Start.
func NewSession(t Transport, h Handler, opts Options) *Session {
	opts = opts.withDefaults()
	if h == nil {
		h = HandlerFunc(func(string, Message) {})
	}
	id := uuid.NewString()
	return &Session{
		ID:         id,
		transport:  t,
		handler:    h,
		opts:       opts,
		logger:     opts.Logger.With("session_id", id),
		outbox:     make(chan Message, opts.OutboxSize),
		quit:       make(chan struct{}),
		readerDone: make(chan struct{}),
		writerDone: make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start launches the reader and writer and returns immediately.
func (s *Session) Start() error {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return ErrSessionNotIdle
	}
	s.startedAt.Store(time.Now().UnixNano())
	go s.readLoop()
	go s.writeLoop()
	s.logger.Info("session_started", "write_interval", s.opts.WriteInterval.String())
	return nil
}

// Stop ends the session and waits for both loops to exit, at most
// StopTimeout. It is safe to call any number of times from any goroutine.
// Calling it from a Handler costs the full StopTimeout, since the reader
// cannot exit while it is inside the Handler.
func (s *Session) Stop() {
	if s.state.CompareAndSwap(int32(StateIdle), int32(StateStopped)) {
		s.transport.Close()
		close(s.done)
		return
	}
	s.shutdown(nil)
	<-s.done
}

// Done is closed once the session reaches Stopped.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns why the session ended: nil for Stop, otherwise an error
// wrapping ErrBrokenChannel. Only meaningful after Done is closed.
func (s *Session) Err() error {
	select {
	case <-s.quit:
		return s.cause
	default:
		return nil
	}
}

func (s *Session) State() State { return State(s.state.Load()) }

// IsRunning is true while the state is Running and both loops are alive.
func (s *Session) IsRunning() bool {
	if s.State() != StateRunning {
		return false
	}
	select {
	case <-s.readerDone:
		return false
	case <-s.writerDone:
		return false
	default:
		return true
	}
}

// Send writes msg right away through the write gate.
func (s *Session) Send(msg Message) error {
	if s.State() != StateRunning {
		return ErrSessionNotRunning
	}
	if err := s.writeMessage(msg); err != nil {
		if !errors.Is(err, ErrEncoding) {
			s.shutdown(err)
		}
		return err
	}
	return nil
}

// Enqueue hands msg to the writer goroutine without waiting for the write.
func (s *Session) Enqueue(msg Message) error {
	if s.State() != StateRunning {
		return ErrSessionNotRunning
	}
	select {
	case s.outbox <- msg:
		return nil
	default:
		return ErrOutboxFull
	}
}

func (s *Session) Stats() Stats {
	st := Stats{
		SessionID:     s.ID,
		State:         s.State(),
		FramesIn:      s.framesIn.Load(),
		FramesOut:     s.framesOut.Load(),
		FramesDropped: s.framesDropped.Load(),
		LastReceived:  unixNanoTime(s.lastReceived.Load()),
		LastSent:      unixNanoTime(s.lastSent.Load()),
	}
	if started := s.startedAt.Load(); started != 0 {
		st.StartedAt = time.Unix(0, started)
		st.Uptime = time.Since(st.StartedAt).Round(time.Second).String()
	}
	return st
}

func unixNanoTime(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// shutdown moves Running -> Stopping exactly once, closes the transport to
// unblock pending I/O and lets finish wait for the loops.
func (s *Session) shutdown(cause error) bool {
	if !s.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return false
	}
	s.cause = cause
	close(s.quit)
	if err := s.transport.Close(); err != nil && !isPeerGone(err) {
		s.logger.Warn("transport_close_failed", "error", err)
	}
	if cause != nil {
		s.logger.Info("session_stopping", "reason", cause.Error())
	} else {
		s.logger.Info("session_stopping", "reason", "stop requested")
	}
	go s.finish()
	return true
}

func (s *Session) finish() {
	timer := time.NewTimer(s.opts.StopTimeout)
	defer timer.Stop()

	loops := []struct {
		name string
		done chan struct{}
	}{{"reader", s.readerDone}, {"writer", s.writerDone}}
wait:
	for _, l := range loops {
		select {
		case <-l.done:
		case <-timer.C:
			// blocking I/O cannot always be interrupted; leave it behind
			s.logger.Warn("session_loop_abandoned", "loop", l.name, "timeout", s.opts.StopTimeout.String())
			break wait
		}
	}
	s.state.Store(int32(StateStopped))
	close(s.done)
	s.logger.Info("session_stopped", "frames_in", s.framesIn.Load(), "frames_out", s.framesOut.Load())
}

func (s *Session) stopping() bool {
	select {
	case <-s.quit:
		return true
	default:
		return false
	}
}

// writeMessage encodes msg and writes it as one frame under the gate.
func (s *Session) writeMessage(msg Message) error {
	frame, err := Encode(msg)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if dw, ok := s.transport.(deadlineWriter); ok {
		dw.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	}
	if _, err := s.transport.Write(frame); err != nil {
		return brokenChannel("write", err)
	}
	s.framesOut.Add(1)
	s.lastSent.Store(time.Now().UnixNano())
	return nil
}
