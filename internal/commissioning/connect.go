package commissioning

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"wcommd/internal/wifi"
)

// DefaultConnectTimeout is the operation-level deadline for a backend
// connect attempt (§5).
const DefaultConnectTimeout = 60 * time.Second

// connectStateMachine is the pure (State, Event) -> State transition
// table for §4.5. Like scanStateMachine it performs no I/O and is
// exhaustively unit-tested on its own.
type connectStateMachine struct {
	state wifi.ConnectionState
}

func newConnectStateMachine() *connectStateMachine {
	return &connectStateMachine{state: wifi.ConnectionState{Phase: wifi.ConnIdle}}
}

func (m *connectStateMachine) startConnect(ssid []byte, now time.Time) error {
	switch m.state.Phase {
	case wifi.ConnIdle, wifi.ConnConnected, wifi.ConnError:
		m.state = wifi.ConnectionState{Phase: wifi.ConnConnecting, SSID: ssid, StartedAt: now}
		return nil
	default:
		return ErrInvalidState
	}
}

func (m *connectStateMachine) completeConnect(ip string, now time.Time) {
	m.state = wifi.ConnectionState{Phase: wifi.ConnConnected, SSID: m.state.SSID, StartedAt: m.state.StartedAt, IPAddress: ip}
}

func (m *connectStateMachine) failConnect(kind, message string, now time.Time) {
	m.state = wifi.ConnectionState{Phase: wifi.ConnError, SSID: m.state.SSID, ErrorKind: kind, Message: message, FailedAt: now}
}

func (m *connectStateMachine) disconnect(now time.Time) error {
	switch m.state.Phase {
	case wifi.ConnConnected, wifi.ConnError:
		m.state = wifi.ConnectionState{Phase: wifi.ConnIdle}
		return nil
	default:
		return ErrInvalidState
	}
}

// ConnectEngine drives connectStateMachine against a wifi.Backend and
// enforces the atomic-success persistence rule (§4.5, §8 property 3):
// SaveConfig is called if and only if Connect has just reported success,
// and is called before the Connecting->Connected transition is published
// so a crash between association and the save is never observable as a
// persisted network that never connected.
type ConnectEngine struct {
	backend wifi.Backend
	hub     *Hub
	timeout time.Duration
	log     zerolog.Logger

	mu   sync.RWMutex
	sm   *connectStateMachine
	busy bool
}

// NewConnectEngine constructs a ConnectEngine idle at ConnectionState::Idle.
func NewConnectEngine(backend wifi.Backend, hub *Hub, timeout time.Duration, log zerolog.Logger) *ConnectEngine {
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	return &ConnectEngine{
		backend: backend,
		hub:     hub,
		timeout: timeout,
		log:     log.With().Str("component", "connect_engine").Logger(),
		sm:      newConnectStateMachine(),
	}
}

// Connect starts a connection attempt toward ssid/psk if none is already
// in flight, returning ErrInvalidState otherwise. It does not validate
// ssid/psk length; the CommissioningService facade does that before
// calling in (§6's ValidationError belongs to the request boundary, not
// the engine).
func (e *ConnectEngine) Connect(ctx context.Context, ssid, psk []byte) error {
	e.mu.Lock()
	if e.busy {
		e.mu.Unlock()
		return ErrInvalidState
	}
	now := time.Now()
	if err := e.sm.startConnect(ssid, now); err != nil {
		e.mu.Unlock()
		return err
	}
	e.busy = true
	e.mu.Unlock()

	e.hub.Publish(ConnectionStateChanged{State: "connecting", SSID: ssid})

	go e.run(ssid, psk)
	return nil
}

// run performs the backend call and the atomic-success save with no
// writer lock held across either, acquiring it only to record and
// publish the terminal transition (§5). It is detached from the
// caller's request context for the same reason ScanEngine.run is: a
// disconnecting client must not abort in-flight association (§5
// Cancellation).
func (e *ConnectEngine) run(ssid, psk []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	connErr := e.backend.Connect(ctx, ssid, psk)

	now := time.Now()

	if connErr != nil {
		e.log.Warn().Err(connErr).Str("ssid", string(ssid)).Msg("connect failed")
		e.mu.Lock()
		e.busy = false
		e.sm.failConnect(classifyConnectError(connErr), connErr.Error(), now)
		e.mu.Unlock()
		e.hub.Publish(ConnectionStateChanged{State: "error", SSID: ssid, Kind: classifyConnectError(connErr), Message: connErr.Error()})
		return
	}

	status, statusErr := e.backend.Status(ctx)
	if statusErr != nil || status.State != wifi.ConnConnected {
		msg := "connect reported success but status readback did not confirm association"
		if statusErr != nil {
			msg = statusErr.Error()
		}
		e.log.Warn().Str("ssid", string(ssid)).Msg(msg)
		e.mu.Lock()
		e.busy = false
		e.sm.failConnect("assoc_failure", msg, now)
		e.mu.Unlock()
		e.hub.Publish(ConnectionStateChanged{State: "error", SSID: ssid, Kind: "assoc_failure", Message: msg})
		return
	}

	// Atomic-success rule: persist only now, after confirmed association
	// and IP assignment, and only reflect Connected once the save itself
	// has been attempted.
	saveErr := e.backend.SaveConfig(ctx)
	if saveErr != nil {
		e.log.Warn().Err(saveErr).Str("ssid", string(ssid)).Msg("save_config failed after successful connect")
	}

	e.mu.Lock()
	e.busy = false
	e.sm.completeConnect(status.IPAddress, now)
	e.mu.Unlock()
	e.hub.Publish(ConnectionStateChanged{State: "connected", SSID: ssid, IP: status.IPAddress})
}

// classifyConnectError maps a wifi sentinel error to the §7 error kind
// string carried in ConnectionStateChanged/connection_state_changed.
func classifyConnectError(err error) string {
	switch {
	case errors.Is(err, wifi.ErrAuthFailure):
		return "auth_failure"
	case errors.Is(err, wifi.ErrAssocFailure):
		return "assoc_failure"
	case errors.Is(err, wifi.ErrTimeout):
		return "timeout"
	default:
		return "backend_error"
	}
}

// Disconnect tears down any current association, clearing state back to
// Idle (§4.5). Persisted configuration is left untouched (§9 Open
// Question: disconnect does not revert save_config).
func (e *ConnectEngine) Disconnect(ctx context.Context) error {
	e.mu.Lock()
	if e.busy {
		e.mu.Unlock()
		return ErrInvalidState
	}
	if err := e.sm.disconnect(time.Now()); err != nil {
		e.mu.Unlock()
		return err
	}
	e.busy = true
	e.mu.Unlock()

	err := e.backend.Disconnect(ctx)

	e.mu.Lock()
	e.busy = false
	e.mu.Unlock()

	if err != nil {
		e.log.Warn().Err(err).Msg("disconnect failed")
		return err
	}
	e.hub.Publish(ConnectionStateChanged{State: "idle"})
	return nil
}

// State returns a snapshot of the current connection state.
func (e *ConnectEngine) State() wifi.ConnectionState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sm.state
}
