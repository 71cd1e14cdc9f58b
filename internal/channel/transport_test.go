package channel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		in   string
		want Endpoint
	}{
		{"pipe:HighPerfPipe", PipeEndpoint{Name: "HighPerfPipe"}},
		{"HighPerfPipe", PipeEndpoint{Name: "HighPerfPipe"}},
		{"tcp:127.0.0.1:8888", TCPEndpoint{Addr: "127.0.0.1:8888"}},
		{"127.0.0.1:8888", TCPEndpoint{Addr: "127.0.0.1:8888"}},
		{"localhost:9000", TCPEndpoint{Addr: "localhost:9000"}},
		{"  pipe:game  ", PipeEndpoint{Name: "game"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEndpoint(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseEndpoint_Invalid(t *testing.T) {
	for _, in := range []string{"", "pipe:", "tcp:no-port"} {
		_, err := ParseEndpoint(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestEndpoint_String(t *testing.T) {
	assert.Equal(t, "pipe:HighPerfPipe", PipeEndpoint{Name: "HighPerfPipe"}.String())
	assert.Equal(t, "tcp:127.0.0.1:8888", TCPEndpoint{Addr: "127.0.0.1:8888"}.String())
}

func TestTCPEndpoint_DialWithoutListenerIsRefused(t *testing.T) {
	ep := freeTCPEndpoint(t)

	_, err := ep.Dial(context.Background())

	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestTCPEndpoint_AcceptHonoursContext(t *testing.T) {
	ep := freeTCPEndpoint(t)
	ln, err := ep.Listen(context.Background())
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ln.Accept(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrEndpointBusy))
	assert.True(t, IsRetryable(ErrEndpointUnavailable))
	assert.True(t, IsRetryable(ErrConnectionRefused))
	assert.False(t, IsRetryable(ErrBrokenChannel))
	assert.False(t, IsRetryable(context.Canceled))
}
