// Package server implements the WebSocket transport and HTTP surface of
// orgchat.
//
// The transport is deliberately thin: it upgrades connections, decodes frames
// into session commands, and writes encoded events back. All connection state
// and routing decisions are made by the session coordinator.
package server
