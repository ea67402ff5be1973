// Package commissioning implements the transport-agnostic commissioning
// engine: authorization, the scan and connect state machines, the
// notification hub, and the CommissioningService facade that serializes
// them. It is grounded on original_source's core/ module, generalized
// from Rust async/await + RwLock to Go goroutines/mutexes the way
// haasonsaas-vouch's pkg/policy and shazow-wifitui's wifi package
// structure a small stateful domain core.
package commissioning

import "errors"

// Error taxonomy surfaced to transports (§7). Transports map these to
// their own wire representation (BLE GATT error codes, JSON-RPC error
// codes) with errors.Is.
var (
	ErrInvalidRequest = errors.New("commissioning: invalid request")
	ErrUnauthorized   = errors.New("commissioning: unauthorized")
	ErrInvalidState   = errors.New("commissioning: invalid state")
	ErrInvalidParams  = errors.New("commissioning: invalid params")
	ErrBackendError   = errors.New("commissioning: backend error")
	ErrTimeout        = errors.New("commissioning: timeout")
)
