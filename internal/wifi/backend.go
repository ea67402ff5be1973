package wifi

import (
	"context"
	"errors"
)

// Sentinel error kinds surfaced by a Backend implementation. Callers should
// compare with errors.Is; implementations wrap these with fmt.Errorf("...: %w", ...)
// to add operation-specific detail, the way shazow-wifitui/wifi/errors.go and its
// backends do.
var (
	ErrBackendUnavailable = errors.New("wifi: backend unavailable")
	ErrTimeout            = errors.New("wifi: operation timed out")
	ErrAuthFailure        = errors.New("wifi: authentication failure")
	ErrAssocFailure       = errors.New("wifi: association failure")
	ErrIO                 = errors.New("wifi: backend i/o error")
)

// Backend abstracts the local 802.11 supplicant. Implementations must be
// safe for a concurrent Status call while a Connect is in flight; the
// commissioning engines never hold a service-wide lock while calling into
// a Backend (see internal/commissioning).
//
// A Backend is a capability set, not an inheritance root: dependency
// injection is by value at service construction, and the mock
// implementation (internal/wifi/mock) supplies deterministic timing for
// tests.
type Backend interface {
	// Scan triggers a scan and blocks until the supplicant reports
	// completion or ctx is done. Results are ordered signal-descending,
	// ties broken by ascending SSID bytes, with duplicate BSSIDs
	// collapsed to the strongest signal.
	Scan(ctx context.Context) ([]Network, error)

	// Connect adds/selects ssid with the given credential in volatile
	// supplicant memory and blocks until a terminal event: association
	// plus IP assignment (success), or association/handshake failure/
	// timeout (failure). psk is either an 8-63 byte ASCII passphrase or
	// an exact 32-byte PMK. Connect must not persist anything on failure.
	Connect(ctx context.Context, ssid []byte, psk []byte) error

	// SaveConfig persists the currently selected network to on-disk
	// supplicant configuration. Callers must invoke this only after a
	// confirmed Connect success (the atomic-success rule).
	SaveConfig(ctx context.Context) error

	// Disconnect terminates any current association. Persisted
	// configuration is left untouched.
	Disconnect(ctx context.Context) error

	// Status returns a snapshot readback of the current link state.
	Status(ctx context.Context) (ConnectionStatus, error)
}
