package commissioning

import "wcommd/internal/wifi"

// Notification is an immutable state-change event published through the
// hub (§4.6). Method mirrors the JSON-RPC notification name so both
// transports (BLE adapter, Unix-socket JSON-RPC) can derive their own
// wire encoding from the same event without sharing state with each
// other (§9 "two front-ends, one engine").
type Notification interface {
	Method() string
}

// ScanStateChanged reports a ScanEngine transition (§4.4).
type ScanStateChanged struct {
	State    string // "idle" | "scanning" | "finished" | "error"
	Networks []wifi.Network
	Message  string
}

func (ScanStateChanged) Method() string { return "scan_state_changed" }

// ConnectionStateChanged reports a ConnectEngine transition (§4.5).
type ConnectionStateChanged struct {
	State   string // "idle" | "connecting" | "connected" | "error"
	SSID    []byte
	IP      string
	Kind    string
	Message string
}

func (ConnectionStateChanged) Method() string { return "connection_state_changed" }
