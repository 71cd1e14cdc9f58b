package command

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamebridge/internal/control"
)

func TestBuildMessage(t *testing.T) {
	now := time.Unix(1700000000, 0)
	msg, err := buildMessage("MOVE", []string{"x=3", "run=true", "name=bob", `pos={"a":1}`, "empty="}, now)
	require.NoError(t, err)

	assert.Equal(t, "MOVE", msg.Command())
	ts, ok := msg.Timestamp()
	require.True(t, ok)
	assert.Equal(t, 1700000000.0, ts)
	assert.Equal(t, 3.0, msg["x"])
	assert.Equal(t, true, msg["run"])
	assert.Equal(t, "bob", msg["name"])
	assert.Equal(t, map[string]any{"a": 1.0}, msg["pos"])
	assert.Equal(t, "", msg["empty"])
}

func TestBuildMessage_Invalid(t *testing.T) {
	_, err := buildMessage("", nil, time.Now())
	assert.ErrorContains(t, err, "--command is required")

	_, err = buildMessage("MOVE", []string{"novalue"}, time.Now())
	assert.ErrorContains(t, err, "want key=value")

	_, err = buildMessage("MOVE", []string{"command=JUMP"}, time.Now())
	assert.Error(t, err)
}

func TestMintToken_Validates(t *testing.T) {
	secretKey := "test-secret-key-for-cli-token-minting"
	tok, err := mintToken(secretKey)
	require.NoError(t, err)

	subject, err := control.NewTokenValidator(secretKey).ValidateToken(tok)
	require.NoError(t, err)
	assert.Equal(t, tokenSubject, subject)
}

func TestStatusCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"connected":true,"session":{"session_id":"abc","state":"running","uptime":"3s","frames_in":2,"frames_out":1}}`))
	}))
	defer srv.Close()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"status", "--api", srv.URL})
	require.NoError(t, rootCmd.Execute())

	assert.Contains(t, out.String(), "✓ Connected")
	assert.Contains(t, out.String(), "abc")
	assert.Contains(t, out.String(), "in=2 out=1 dropped=0")
}
