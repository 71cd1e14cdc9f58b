//go:build !windows

package channel

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
)

// PipeEndpoint is a named duplex channel. Outside Windows it is a Unix-domain
// socket; a relative name lives in the temp directory as "<name>.sock".
type PipeEndpoint struct {
	Name string
}

func (e PipeEndpoint) String() string { return "pipe:" + e.Name }

// Path is the filesystem path of the socket.
func (e PipeEndpoint) Path() string {
	if filepath.IsAbs(e.Name) {
		return e.Name
	}
	return filepath.Join(os.TempDir(), e.Name+".sock")
}

func (e PipeEndpoint) Listen(ctx context.Context) (Listener, error) {
	path := e.Path()
	// a socket file left behind by a crashed server blocks bind
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to remove stale socket %s: %w", path, err)
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", e, err)
	}
	// closing the listener unlinks the socket, so peers see
	// ErrEndpointUnavailable while a session is active
	ln.(*net.UnixListener).SetUnlinkOnClose(true)
	return newNetListener(ln), nil
}

func (e PipeEndpoint) Dial(ctx context.Context) (Transport, error) {
	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "unix", e.Path())
	if err != nil {
		err = classifyDialError(e.String(), err)
		// a refused unix socket is a stale file with nobody listening
		if errors.Is(err, ErrConnectionRefused) {
			return nil, fmt.Errorf("%w: %v", ErrEndpointUnavailable, err)
		}
		return nil, err
	}
	return conn, nil
}
