package jsonrpc

import "wcommd/internal/commissioning"

// Session identifies one accepted Unix-socket connection. Unlike the
// BLE transport, JSON-RPC's connect method carries ssid/psk as whole
// params in a single call, so there is no per-session accumulation
// buffer to hold here (§4.7 pagination/accumulation is a BLE-only
// concern) — Session exists only so the server can log and track
// connections by a stable id.
type Session struct {
	id commissioning.SessionID
}

// NewSession mints a session id for one accepted connection.
func NewSession() *Session {
	return &Session{id: commissioning.NewSessionID()}
}

// ID satisfies commissioning.Session.
func (s *Session) ID() commissioning.SessionID { return s.id }
