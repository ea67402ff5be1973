package commissioning

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"wcommd/internal/wifi"
)

// DefaultScanTimeout is the operation-level deadline for a backend scan
// (§5).
const DefaultScanTimeout = 30 * time.Second

// scanStateMachine is the pure (State, Event) -> State transition table
// for §4.4, with no I/O, so it is exhaustively unit-tested on its own
// (§9's testability note).
type scanStateMachine struct {
	state wifi.ScanState
}

func newScanStateMachine() *scanStateMachine {
	return &scanStateMachine{state: wifi.ScanState{Phase: wifi.ScanIdle}}
}

func (m *scanStateMachine) startScan(now time.Time) error {
	switch m.state.Phase {
	case wifi.ScanIdle, wifi.ScanFinished, wifi.ScanError:
		m.state = wifi.ScanState{Phase: wifi.ScanScanning, StartedAt: now}
		return nil
	default:
		return ErrInvalidState
	}
}

func (m *scanStateMachine) completeScan(results []wifi.Network, now time.Time) {
	m.state = wifi.ScanState{Phase: wifi.ScanFinished, Results: results, FinishedAt: now}
}

func (m *scanStateMachine) failScan(message string, now time.Time) {
	m.state = wifi.ScanState{Phase: wifi.ScanError, Message: message, FailedAt: now}
}

// ScanEngine drives scanStateMachine against a wifi.Backend, publishing
// transitions through a Hub (C4). It owns its own "busy" flag (§5) so the
// CommissioningService facade never needs to hold a lock spanning a
// multi-second backend call.
type ScanEngine struct {
	backend wifi.Backend
	hub     *Hub
	timeout time.Duration
	log     zerolog.Logger

	mu   sync.RWMutex
	sm   *scanStateMachine
	busy bool

	sf singleflight.Group
}

// NewScanEngine constructs a ScanEngine idle at ScanState::Idle.
func NewScanEngine(backend wifi.Backend, hub *Hub, timeout time.Duration, log zerolog.Logger) *ScanEngine {
	if timeout <= 0 {
		timeout = DefaultScanTimeout
	}
	return &ScanEngine{
		backend: backend,
		hub:     hub,
		timeout: timeout,
		log:     log.With().Str("component", "scan_engine").Logger(),
		sm:      newScanStateMachine(),
	}
}

// Scan starts a scan if none is in flight, returning ErrInvalidState
// otherwise (§4.4, §8 property 1). The backend call runs in the
// background; the caller observes completion via State/Results or a
// ScanStateChanged notification.
func (e *ScanEngine) Scan(ctx context.Context) error {
	e.mu.Lock()
	if e.busy {
		e.mu.Unlock()
		return ErrInvalidState
	}
	now := time.Now()
	if err := e.sm.startScan(now); err != nil {
		e.mu.Unlock()
		return err
	}
	e.busy = true
	e.mu.Unlock()

	e.hub.Publish(ScanStateChanged{State: "scanning"})

	go e.run()
	return nil
}

// run performs the backend call with no writer lock held, acquiring it
// only to record the terminal transition and publish it (§5). It is
// detached from the caller's request context: session teardown or
// daemon shutdown must not abort an in-flight scan (§5 Cancellation).
func (e *ScanEngine) run() {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	v, err, _ := e.sf.Do("scan", func() (any, error) {
		return e.backend.Scan(ctx)
	})

	now := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.busy = false

	if err != nil {
		e.log.Warn().Err(err).Msg("scan failed")
		e.sm.failScan(err.Error(), now)
		e.hub.Publish(ScanStateChanged{State: "error", Message: err.Error()})
		return
	}

	networks := wifi.DedupByBSSID(v.([]wifi.Network))
	wifi.SortNetworks(networks)
	e.sm.completeScan(networks, now)
	e.hub.Publish(ScanStateChanged{State: "finished", Networks: networks})
}

// State returns a snapshot of the current scan state.
func (e *ScanEngine) State() wifi.ScanState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sm.state
}

// Results returns the last finished result set, or ErrInvalidState if
// the engine has never reached Finished (or was superseded by a new scan
// still in flight or failed).
func (e *ScanEngine) Results() ([]wifi.Network, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.sm.state.Phase != wifi.ScanFinished {
		return nil, ErrInvalidState
	}
	out := make([]wifi.Network, len(e.sm.state.Results))
	copy(out, e.sm.state.Results)
	return out, nil
}
