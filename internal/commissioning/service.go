package commissioning

import (
	"bytes"
	"context"
	"time"

	"github.com/rs/zerolog"

	"wcommd/internal/wifi"
)

// Config bundles the tunables a CommissioningService needs at
// construction time (§5's timeouts, §4.2's shared secret).
type Config struct {
	Secret         string
	ScanTimeout    time.Duration
	ConnectTimeout time.Duration
}

// CommissioningService is the facade (C6) combining Authorization, the
// two engines, and the notification hub. It is the single source of
// truth for scan/connection state; both the BLE adapter and the
// JSON-RPC handler are clients of it and share no state with each other
// (§9 "two front-ends, one engine").
type CommissioningService struct {
	auth    *Authorization
	scan    *ScanEngine
	connect *ConnectEngine
	hub     *Hub
	log     zerolog.Logger
}

// NewCommissioningService wires the engines against backend and starts
// with no authorization grant.
func NewCommissioningService(backend wifi.Backend, cfg Config, log zerolog.Logger) *CommissioningService {
	hub := NewHub(log)
	return &CommissioningService{
		auth:    NewAuthorization(cfg.Secret),
		scan:    NewScanEngine(backend, hub, cfg.ScanTimeout, log),
		connect: NewConnectEngine(backend, hub, cfg.ConnectTimeout, log),
		hub:     hub,
		log:     log.With().Str("component", "commissioning_service").Logger(),
	}
}

// Authorize verifies offeredHash against the configured secret and, on
// success, (re)issues a 5-minute grant (§4.2).
func (s *CommissioningService) Authorize(offeredHash []byte) error {
	return s.auth.Authorize(offeredHash)
}

// IsAuthorized reports whether a grant is currently valid. Transports
// consult this before mutating calls per their own authorization rule
// (§4.2: BLE always checks; the Unix socket elides the check and relies
// on filesystem permissions).
func (s *CommissioningService) IsAuthorized() bool {
	return s.auth.IsAuthorized()
}

// RevokeAuthorization clears any current grant.
func (s *CommissioningService) RevokeAuthorization() {
	s.auth.Revoke()
}

// Scan starts a scan, failing ErrInvalidState if one is already in
// flight (§4.3).
func (s *CommissioningService) Scan(ctx context.Context) error {
	return s.scan.Scan(ctx)
}

// ScanResults returns the last finished scan's networks, failing
// ErrInvalidState if the scan engine has never reached Finished (§4.3).
func (s *CommissioningService) ScanResults() ([]wifi.Network, error) {
	return s.scan.Results()
}

// ScanState returns a snapshot of the scan engine's current state.
func (s *CommissioningService) ScanState() wifi.ScanState {
	return s.scan.State()
}

// minPSKLen and maxPSKLen bound a passphrase PSK (§4.5); a PMK is
// accepted only at exactly pmkLen bytes.
const (
	minSSIDLen = 1
	maxSSIDLen = 32
	minPSKLen  = 8
	maxPSKLen  = 63
	pmkLen     = 32
)

// ValidateSSID enforces §4.5's boundary rule: 1..=32 bytes, no embedded
// NUL. The BLE adapter and the JSON-RPC handler both call this before
// handing ssid to Connect so the ErrInvalidParams path is identical on
// either transport.
func ValidateSSID(ssid []byte) error {
	if len(ssid) < minSSIDLen || len(ssid) > maxSSIDLen {
		return ErrInvalidParams
	}
	if bytes.IndexByte(ssid, 0) != -1 {
		return ErrInvalidParams
	}
	return nil
}

// ValidatePSK enforces §4.5's boundary rule: either an 8..=63 printable
// ASCII passphrase, or an exact 32-byte binary PMK. Length alone
// disambiguates which convention was used (§9 Open Question, resolved
// in favor of accepting either).
func ValidatePSK(psk []byte) error {
	if len(psk) == pmkLen {
		return nil
	}
	if len(psk) < minPSKLen || len(psk) > maxPSKLen {
		return ErrInvalidParams
	}
	for _, b := range psk {
		if b < 0x20 || b > 0x7e {
			return ErrInvalidParams
		}
	}
	return nil
}

// Connect validates ssid/psk and, if they pass, delegates to the
// connect engine (§4.3, §4.5). It fails ErrInvalidState if a connect is
// already in flight.
func (s *CommissioningService) Connect(ctx context.Context, ssid, psk []byte) error {
	if err := ValidateSSID(ssid); err != nil {
		return err
	}
	if err := ValidatePSK(psk); err != nil {
		return err
	}
	return s.connect.Connect(ctx, ssid, psk)
}

// Disconnect tears down any current association (§4.3).
func (s *CommissioningService) Disconnect(ctx context.Context) error {
	return s.connect.Disconnect(ctx)
}

// ConnectionState returns a snapshot of the connect engine's current
// state (§4.3's connection_state()).
func (s *CommissioningService) ConnectionState() wifi.ConnectionState {
	return s.connect.State()
}

// Subscribe registers a new notification subscriber (§4.6).
func (s *CommissioningService) Subscribe() *Subscription {
	return s.hub.Subscribe()
}

// Unsubscribe removes a notification subscriber (§4.6).
func (s *CommissioningService) Unsubscribe(sub *Subscription) {
	s.hub.Unsubscribe(sub)
}
