// Package server defines shared broadcast plumbing types and utility helpers
// that are reused across client and hub logic.
package server

import "strings"

// BroadcastMessage encapsulates an encoded event being fanned out by the hub,
// including the originating client so it can be excluded from delivery. A nil
// Sender delivers to every registered client.
type BroadcastMessage struct {
	Sender  *Client
	Payload []byte
}

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
