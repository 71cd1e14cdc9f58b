//go:build !windows

package channel

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempPipe(t *testing.T) PipeEndpoint {
	t.Helper()
	dir, err := os.MkdirTemp("", "gb")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return PipeEndpoint{Name: filepath.Join(dir, "p.sock")}
}

func TestPipeEndpoint_Path(t *testing.T) {
	assert.Equal(t, filepath.Join(os.TempDir(), "HighPerfPipe.sock"), PipeEndpoint{Name: "HighPerfPipe"}.Path())
	assert.Equal(t, "/run/game.sock", PipeEndpoint{Name: "/run/game.sock"}.Path())
}

func TestPipeEndpoint_DialWithoutServerIsUnavailable(t *testing.T) {
	_, err := tempPipe(t).Dial(context.Background())
	assert.ErrorIs(t, err, ErrEndpointUnavailable)
}

func TestPipeEndpoint_ListenReplacesStaleSocket(t *testing.T) {
	ep := tempPipe(t)
	require.NoError(t, os.WriteFile(ep.Path(), []byte("stale"), 0o600))

	ln, err := ep.Listen(context.Background())
	require.NoError(t, err)
	require.NoError(t, ln.Close())

	_, err = os.Stat(ep.Path())
	assert.True(t, os.IsNotExist(err), "socket should be unlinked on close")
}

func TestPipe_ServerClientRoundTrip(t *testing.T) {
	ep := tempPipe(t)
	h := startPair(t, ep, nil, nil)

	msg := h.inbound.next(t, 2*time.Second)
	assert.Equal(t, Message{"command": "GET_STATE", "timestamp": 1000.0}, msg)

	// the listening endpoint is gone while the session runs
	_, err := ep.Dial(context.Background())
	assert.ErrorIs(t, err, ErrEndpointUnavailable)
}
