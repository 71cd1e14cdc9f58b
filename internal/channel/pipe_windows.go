//go:build windows

package channel

import (
	"context"
	"fmt"
	"strings"

	"github.com/Microsoft/go-winio"
)

const (
	pipePrefix     = `\\.\pipe\`
	pipeBufferSize = 65536
)

// PipeEndpoint is a named duplex channel under \\.\pipe\.
type PipeEndpoint struct {
	Name string
}

func (e PipeEndpoint) String() string { return "pipe:" + e.Name }

// Path is the full pipe path.
func (e PipeEndpoint) Path() string {
	if strings.HasPrefix(e.Name, pipePrefix) {
		return e.Name
	}
	return pipePrefix + e.Name
}

func (e PipeEndpoint) Listen(ctx context.Context) (Listener, error) {
	ln, err := winio.ListenPipe(e.Path(), &winio.PipeConfig{
		MessageMode:      true,
		InputBufferSize:  pipeBufferSize,
		OutputBufferSize: pipeBufferSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", e, err)
	}
	return newNetListener(ln), nil
}

// Dial opens the pipe for read and write. While every pipe instance is
// connected winio keeps retrying until the dial deadline, which surfaces as
// ErrEndpointBusy.
func (e PipeEndpoint) Dial(ctx context.Context) (Transport, error) {
	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	conn, err := winio.DialPipeContext(ctx, e.Path())
	if err != nil {
		return nil, classifyDialError(e.String(), err)
	}
	return conn, nil
}
