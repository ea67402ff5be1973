// Package mock provides a deterministic wifi.Backend for tests, grounded
// on original_source's MockWifiBackend and shazow-wifitui's wifi/mock
// package: no real supplicant, configurable failures, explicit "complete
// the pending operation" hooks so tests can drive async timing by hand.
package mock

import (
	"context"
	"sync"
	"time"

	"wcommd/internal/wifi"
)

// DefaultActionSleep mirrors shazow-wifitui/wifi/mock's artificial delay
// before every action, so the mock exercises the same code paths a real
// backend's latency would. Tests set it to 0.
var DefaultActionSleep = 10 * time.Millisecond

// Backend is a mock wifi.Backend. Scan and Connect resolve immediately
// against pre-seeded state; ScanErr/ConnectErr force a failure path.
// SaveCount and LastSavedSSID let tests assert the atomic-success
// invariant ("save_config called exactly once") directly against the
// backend, the supplement original_source's prototype never offered.
type Backend struct {
	mu sync.Mutex

	ScanResults []wifi.Network
	ScanErr     error
	ConnectErr  error
	SaveErr     error

	ActionSleep time.Duration

	connected     bool
	connectedSSID []byte
	ipAddress     string
	bssid         []byte

	SaveCount     int
	LastSavedSSID []byte
}

// New returns a Backend with no seeded networks and no pending failures.
func New() *Backend {
	return &Backend{ActionSleep: DefaultActionSleep}
}

func (b *Backend) sleep() {
	if b.ActionSleep > 0 {
		time.Sleep(b.ActionSleep)
	}
}

// SetScanResults configures the networks returned by the next Scan.
func (b *Backend) SetScanResults(networks []wifi.Network) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ScanResults = networks
}

// SetConnectResult configures the ConnectionStatus a successful Connect
// reports for subsequent Status calls.
func (b *Backend) SetConnectResult(ip string, bssid []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = true
	b.ipAddress = ip
	b.bssid = bssid
}

func (b *Backend) Scan(ctx context.Context) ([]wifi.Network, error) {
	b.sleep()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ScanErr != nil {
		return nil, b.ScanErr
	}
	out := make([]wifi.Network, len(b.ScanResults))
	copy(out, b.ScanResults)
	return out, nil
}

func (b *Backend) Connect(ctx context.Context, ssid []byte, psk []byte) error {
	b.sleep()
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ConnectErr != nil {
		b.connected = false
		return b.ConnectErr
	}
	b.connected = true
	b.connectedSSID = append([]byte(nil), ssid...)
	if b.ipAddress == "" {
		b.ipAddress = "192.168.1.42"
	}
	return nil
}

func (b *Backend) SaveConfig(ctx context.Context) error {
	b.sleep()
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.SaveErr != nil {
		return b.SaveErr
	}
	b.SaveCount++
	b.LastSavedSSID = append([]byte(nil), b.connectedSSID...)
	return nil
}

func (b *Backend) Disconnect(ctx context.Context) error {
	b.sleep()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = false
	b.connectedSSID = nil
	b.ipAddress = ""
	b.bssid = nil
	return nil
}

func (b *Backend) Status(ctx context.Context) (wifi.ConnectionStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return wifi.ConnectionStatus{State: wifi.ConnIdle}, nil
	}
	return wifi.ConnectionStatus{
		State:     wifi.ConnConnected,
		SSID:      append([]byte(nil), b.connectedSSID...),
		IPAddress: b.ipAddress,
		BSSID:     append([]byte(nil), b.bssid...),
	}, nil
}
