package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"syscall"
)

var (
	// ErrFraming reports a partial, non-JSON or non-object frame.
	ErrFraming = errors.New("malformed frame")
	// ErrFrameTooLarge reports a frame longer than the configured maximum.
	ErrFrameTooLarge = fmt.Errorf("%w: frame too large", ErrFraming)
	// ErrEncoding reports an outbound message that cannot be encoded as JSON.
	ErrEncoding = errors.New("message cannot be encoded")

	ErrEndpointBusy        = errors.New("endpoint busy")
	ErrEndpointUnavailable = errors.New("endpoint unavailable")
	ErrConnectionRefused   = errors.New("connection refused")

	// ErrBrokenChannel reports that the peer or the transport can no longer
	// carry data. It ends the session.
	ErrBrokenChannel = errors.New("broken channel")

	ErrSessionNotIdle    = errors.New("session already started")
	ErrSessionNotRunning = errors.New("session not running")
	ErrOutboxFull        = errors.New("outbound queue full")
)

// IsRetryable reports whether a connect-time error should be retried by the
// client connection manager.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrEndpointUnavailable) ||
		errors.Is(err, ErrEndpointBusy) ||
		errors.Is(err, ErrConnectionRefused)
}

// classifyDialError maps a raw dial error onto the connect-time taxonomy.
func classifyDialError(endpoint string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("%w: %s: %v", ErrConnectionRefused, endpoint, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s: %v", ErrEndpointBusy, endpoint, err)
	case errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("%w: %s: %v", ErrEndpointUnavailable, endpoint, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s: %v", ErrEndpointBusy, endpoint, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrEndpointUnavailable, endpoint, err)
}

// brokenChannel wraps a read or write failure observed during an active
// session. Anything that is not already classified ends up here.
func brokenChannel(op string, err error) error {
	if errors.Is(err, ErrBrokenChannel) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrBrokenChannel, op, err)
}

// isPeerGone reports the expected ways a transport ends: the peer hung up or
// the local side closed it. Those are logged at info level, not as errors.
func isPeerGone(err error) bool {
	if errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	// On Windows: "wsarecv: An existing connection was forcibly closed by the remote host."
	//             "The pipe has been ended."
	msg := err.Error()
	return strings.Contains(msg, "closed network connection") ||
		strings.Contains(msg, "forcibly closed") ||
		strings.Contains(msg, "connection was aborted") ||
		strings.Contains(msg, "pipe has been ended") ||
		strings.Contains(msg, "broken pipe")
}
