package channel

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"
)

const (
	DefaultPipeName = "HighPerfPipe"
	DefaultTCPAddr  = "127.0.0.1:8888"
	dialTimeout     = 5 * time.Second
)

// Transport is an open duplex byte stream bound to one peer.
type Transport interface {
	io.Reader
	io.Writer
	io.Closer
}

// Listener waits for exactly one peer at a time.
type Listener interface {
	// Accept blocks until a peer attaches or ctx is done.
	Accept(ctx context.Context) (Transport, error)
	Close() error
}

// Endpoint is the identity a connection manager is bound to: a named pipe
// or a host:port pair.
type Endpoint interface {
	Listen(ctx context.Context) (Listener, error)
	Dial(ctx context.Context) (Transport, error)
	String() string
}

// ParseEndpoint accepts "pipe:<name>" or "tcp:<host:port>". A bare value
// containing a colon is treated as TCP, anything else as a pipe name.
func ParseEndpoint(s string) (Endpoint, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return nil, fmt.Errorf("empty endpoint")
	case strings.HasPrefix(s, "pipe:"):
		name := strings.TrimPrefix(s, "pipe:")
		if name == "" {
			return nil, fmt.Errorf("endpoint %q: missing pipe name", s)
		}
		return PipeEndpoint{Name: name}, nil
	case strings.HasPrefix(s, "tcp:"):
		addr := strings.TrimPrefix(s, "tcp:")
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return nil, fmt.Errorf("endpoint %q: %w", s, err)
		}
		return TCPEndpoint{Addr: addr}, nil
	case strings.Contains(s, ":") && !strings.Contains(s, `\`):
		if _, _, err := net.SplitHostPort(s); err == nil {
			return TCPEndpoint{Addr: s}, nil
		}
	}
	return PipeEndpoint{Name: s}, nil
}

// TCPEndpoint is a stream socket endpoint.
type TCPEndpoint struct {
	Addr string
}

func (e TCPEndpoint) String() string { return "tcp:" + e.Addr }

func (e TCPEndpoint) Listen(ctx context.Context) (Listener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", e.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", e, err)
	}
	return newNetListener(ln), nil
}

func (e TCPEndpoint) Dial(ctx context.Context) (Transport, error) {
	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", e.Addr)
	if err != nil {
		return nil, classifyDialError(e.String(), err)
	}
	return conn, nil
}

// netListener adapts a net.Listener so Accept honours a context.
type netListener struct {
	ln        net.Listener
	closeOnce sync.Once
	closeErr  error
}

func newNetListener(ln net.Listener) *netListener {
	return &netListener{ln: ln}
}

// Addr is the bound address, useful when listening on port 0.
func (l *netListener) Addr() net.Addr { return l.ln.Addr() }

func (l *netListener) Accept(ctx context.Context) (Transport, error) {
	stop := context.AfterFunc(ctx, func() { l.Close() })
	defer stop()

	conn, err := l.ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to accept connection: %w", err)
	}
	return conn, nil
}

func (l *netListener) Close() error {
	l.closeOnce.Do(func() { l.closeErr = l.ln.Close() })
	return l.closeErr
}

// deadlineWriter is implemented by net.Conn and by pipe connections.
type deadlineWriter interface {
	SetWriteDeadline(t time.Time) error
}
