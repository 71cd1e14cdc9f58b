package channel

import (
	"bufio"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// collector is a Handler that records every message it is given.
type collector struct {
	mu   sync.Mutex
	msgs []Message
	ch   chan Message
}

func newCollector() *collector {
	return &collector{ch: make(chan Message, 20000)}
}

func (c *collector) HandleMessage(_ string, msg Message) {
	c.mu.Lock()
	c.msgs = append(c.msgs, msg)
	c.mu.Unlock()
	c.ch <- msg
}

func (c *collector) all() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.msgs...)
}

func (c *collector) next(t *testing.T, timeout time.Duration) Message {
	t.Helper()
	select {
	case msg := <-c.ch:
		return msg
	case <-time.After(timeout):
		t.Fatalf("no message within %s", timeout)
		return nil
	}
}

// peer is the far end of a net.Pipe, read line by line.
type peer struct {
	conn   net.Conn
	frames chan Message
}

func newPeer(t *testing.T, conn net.Conn) *peer {
	t.Helper()
	p := &peer{conn: conn, frames: make(chan Message, 1024)}
	go func() {
		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadBytes('\n')
			if err != nil {
				close(p.frames)
				return
			}
			if msg, err := Decode(line); err == nil {
				p.frames <- msg
			}
		}
	}()
	t.Cleanup(func() { conn.Close() })
	return p
}

func (p *peer) send(t *testing.T, raw string) {
	t.Helper()
	_, err := p.conn.Write([]byte(raw))
	require.NoError(t, err)
}

func (p *peer) next(t *testing.T, timeout time.Duration) Message {
	t.Helper()
	select {
	case msg, ok := <-p.frames:
		require.True(t, ok, "peer connection closed")
		return msg
	case <-time.After(timeout):
		t.Fatalf("peer got no frame within %s", timeout)
		return nil
	}
}

func waitDone(t *testing.T, s *Session, timeout time.Duration) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(timeout):
		t.Fatalf("session %s not stopped within %s (state %s)", s.ID, timeout, s.State())
	}
}

// scriptedTransport replays a fixed inbound stream and discards writes.
type scriptedTransport struct {
	r      io.Reader
	mu     sync.Mutex
	closed bool
}

func (s *scriptedTransport) Read(p []byte) (int, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return 0, io.ErrClosedPipe
	}
	return s.r.Read(p)
}

func (s *scriptedTransport) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, io.ErrClosedPipe
	}
	return len(p), nil
}

func (s *scriptedTransport) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
