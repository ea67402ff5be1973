package commissioning

import "github.com/google/uuid"

// SessionID identifies a transport-level client session (a BLE link or a
// Unix-socket connection). It is opaque outside this package.
type SessionID string

// NewSessionID mints a fresh identifier, the way original_source's
// SessionId wraps a uuid::Uuid.
func NewSessionID() SessionID {
	return SessionID(uuid.NewString())
}

// Session is the minimal contract (C10) both transports implement so the
// notification hub and CommissioningService can treat a BLE link and a
// Unix-socket connection uniformly. Concrete BLE and JSON-RPC sessions
// (internal/ble, internal/jsonrpc) embed a *Subscription obtained from
// Hub.Subscribe and satisfy this via their own ID field.
type Session interface {
	ID() SessionID
}
