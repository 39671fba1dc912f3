// Package wstest provides WebSocket client helpers shared by transport tests:
// dialing with an allowed origin, sending protocol frames and reading
// decoded envelopes with deadlines.
package wstest

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/orgchat/internal/protocol"
)

// Origin is the header value test clients send; servers under test should
// allow it.
const Origin = "http://localhost:8080"

// ReadTimeout bounds how long ReadFrame waits for a frame.
const ReadTimeout = 2 * time.Second

// URL converts an httptest server URL into its WebSocket endpoint.
func URL(serverURL string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http") + "/ws"
}

// Dial opens a connection and registers its closure with t.Cleanup.
func Dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, err := DialOrigin(url, Origin)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// DialOrigin dials url with the given Origin header.
func DialOrigin(url, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// Send writes one {"type","data"} frame.
func Send(t *testing.T, conn *websocket.Conn, typ string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(protocol.Envelope{Type: typ, Data: raw}))
}

// ReadFrame reads the next envelope or fails the test after ReadTimeout.
func ReadFrame(t *testing.T, conn *websocket.Conn) protocol.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(ReadTimeout)))
	var env protocol.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

// ReadUntil reads frames until one of type typ arrives and returns it.
func ReadUntil(t *testing.T, conn *websocket.Conn, typ string) protocol.Envelope {
	t.Helper()
	for {
		if env := ReadFrame(t, conn); env.Type == typ {
			return env
		}
	}
}

// ExpectSilence fails the test if any frame arrives within d.
func ExpectSilence(t *testing.T, conn *websocket.Conn, d time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(d)))
	var env protocol.Envelope
	err := conn.ReadJSON(&env)
	require.Error(t, err, "unexpected frame %s %s", env.Type, string(env.Data))
}

// DataString decodes a frame whose data is a JSON string.
func DataString(t *testing.T, env protocol.Envelope) string {
	t.Helper()
	var s string
	require.NoError(t, json.Unmarshal(env.Data, &s))
	return s
}
