package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamebridge/internal/channel"
	"gamebridge/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	for _, key := range []string{"REDIS_URL", "DATABASE_URL", "CONTROL_ENABLED"} {
		t.Setenv(key, "")
	}
	cfg, err := config.FromEnv()
	require.NoError(t, err)
	return cfg
}

func TestSessionOptions(t *testing.T) {
	cfg := testConfig(t)
	cfg.OutboxSize = 7

	opts := SessionOptions(cfg, 3*time.Second, nil)

	assert.Equal(t, 3*time.Second, opts.WriteInterval)
	assert.Equal(t, cfg.WriteTimeout, opts.WriteTimeout)
	assert.Equal(t, cfg.StopTimeout, opts.StopTimeout)
	assert.Equal(t, cfg.MaxFrameSize, opts.MaxFrameSize)
	assert.Equal(t, 7, opts.OutboxSize)
}

func TestBuild_WithoutBackends(t *testing.T) {
	cfg := testConfig(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := Build(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer st.Close()

	require.NotNil(t, st.Handler)
	require.Len(t, st.Observers, 1)
	assert.IsType(t, LifecycleLogger{}, st.Observers[0])
	assert.NotPanics(t, func() {
		st.Handler.HandleMessage("s1", channel.Message{"command": "PING"})
	})
}

func TestBuild_UnreachableRedis(t *testing.T) {
	cfg := testConfig(t)
	cfg.RedisURL = "redis://127.0.0.1:1"
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := Build(context.Background(), cfg, logger)
	assert.ErrorContains(t, err, "failed to connect to Redis")
}

func TestRunControl_Disabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.ControlEnabled = false
	assert.NoError(t, RunControl(context.Background(), cfg, cfg.ServerHTTPPort, nil, nil))
}

func TestStartControl_PortInUseIsNotFatal(t *testing.T) {
	cfg := testConfig(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	var buf syncBuffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := StartControl(ctx, cfg, port, nil, logger)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("control surface did not give up on a taken port")
	}
	assert.NoError(t, ctx.Err(), "a control failure must not end the run")
	assert.Contains(t, buf.String(), "msg=control_error")
}

func TestStartControl_StopsWithContext(t *testing.T) {
	cfg := testConfig(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	var buf syncBuffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	ctx, cancel := context.WithCancel(context.Background())
	done := StartControl(ctx, cfg, port, nil, logger)

	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", cfg.ControlAddr(port))
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(6 * time.Second):
		t.Fatal("control surface did not stop")
	}
	assert.NotContains(t, buf.String(), "control_error")
}

// syncBuffer is a bytes.Buffer safe for a logger writing from another goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestLifecycleLogger(t *testing.T) {
	var buf bytes.Buffer
	l := LifecycleLogger{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	local, remote := net.Pipe()
	defer remote.Close()
	s := channel.NewSession(local, nil, channel.Options{WriteInterval: -1, Logger: l.Logger})
	require.NoError(t, s.Start())

	l.SessionStarted("server", "pipe:test", s)
	s.Stop()
	l.SessionEnded("server", "pipe:test", s)

	out := buf.String()
	assert.Contains(t, out, "msg=session_attached")
	assert.Contains(t, out, "msg=session_summary")
	assert.Contains(t, out, "session_id="+s.ID)
	assert.Contains(t, out, "frames_in=0")
}
