// Package server defines transport errors and helpers shared by the client
// pumps and HTTP handlers.
package server

import (
	"errors"
	"strings"
)

var (
	// ErrSendBufferFull is returned by Client.Deliver when the outbound queue
	// has no room; the event is dropped for that connection only.
	ErrSendBufferFull = errors.New("server: send buffer full")
	ErrClientClosed   = errors.New("server: client closed")
)

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
