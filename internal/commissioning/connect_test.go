package commissioning

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"wcommd/internal/wifi"
	"wcommd/internal/wifi/mock"
)

func TestConnectStateMachineRejectsStartWhileConnecting(t *testing.T) {
	sm := newConnectStateMachine()
	require.NoError(t, sm.startConnect([]byte("Home"), time.Now()))
	require.ErrorIs(t, sm.startConnect([]byte("Other"), time.Now()), ErrInvalidState)
}

func TestConnectStateMachineDisconnectOnlyFromConnectedOrError(t *testing.T) {
	sm := newConnectStateMachine()
	require.ErrorIs(t, sm.disconnect(time.Now()), ErrInvalidState)

	require.NoError(t, sm.startConnect([]byte("Home"), time.Now()))
	sm.completeConnect("10.0.0.5", time.Now())
	require.NoError(t, sm.disconnect(time.Now()))
}

func waitForConnPhase(t *testing.T, e *ConnectEngine, phase wifi.ConnPhase) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e.State().Phase == phase {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for connect phase %v, got %v", phase, e.State().Phase)
}

func TestConnectEngineRejectsConcurrentConnect(t *testing.T) {
	backend := mock.New()
	backend.ActionSleep = 50 * time.Millisecond
	hub := NewHub(zerolog.Nop())
	e := NewConnectEngine(backend, hub, time.Second, zerolog.Nop())

	require.NoError(t, e.Connect(context.Background(), []byte("Home"), []byte("correct-horse")))
	require.ErrorIs(t, e.Connect(context.Background(), []byte("Other"), []byte("correct-horse")), ErrInvalidState)

	waitForConnPhase(t, e, wifi.ConnConnected)
}

func TestConnectEngineSavesConfigExactlyOnceOnSuccess(t *testing.T) {
	backend := mock.New()
	hub := NewHub(zerolog.Nop())
	e := NewConnectEngine(backend, hub, time.Second, zerolog.Nop())

	require.NoError(t, e.Connect(context.Background(), []byte("Home"), []byte("correct-horse")))
	waitForConnPhase(t, e, wifi.ConnConnected)

	require.Equal(t, 1, backend.SaveCount)
	require.Equal(t, "Home", string(backend.LastSavedSSID))
}

func TestConnectEngineNeverSavesConfigOnFailure(t *testing.T) {
	backend := mock.New()
	backend.ConnectErr = wifi.ErrAuthFailure
	hub := NewHub(zerolog.Nop())
	e := NewConnectEngine(backend, hub, time.Second, zerolog.Nop())

	require.NoError(t, e.Connect(context.Background(), []byte("Home"), []byte("wrong")))
	waitForConnPhase(t, e, wifi.ConnError)

	require.Equal(t, 0, backend.SaveCount)
	require.Equal(t, "auth_failure", e.State().ErrorKind)
}

func TestConnectEngineDisconnectClearsStateButNotSaveCount(t *testing.T) {
	backend := mock.New()
	hub := NewHub(zerolog.Nop())
	e := NewConnectEngine(backend, hub, time.Second, zerolog.Nop())

	require.NoError(t, e.Connect(context.Background(), []byte("Home"), []byte("correct-horse")))
	waitForConnPhase(t, e, wifi.ConnConnected)

	require.NoError(t, e.Disconnect(context.Background()))
	require.Equal(t, wifi.ConnIdle, e.State().Phase)
	require.Equal(t, 1, backend.SaveCount)
}

func TestConnectEnginePublishesStateTransitionsThroughHub(t *testing.T) {
	backend := mock.New()
	hub := NewHub(zerolog.Nop())
	sub := hub.Subscribe()
	e := NewConnectEngine(backend, hub, time.Second, zerolog.Nop())

	require.NoError(t, e.Connect(context.Background(), []byte("Home"), []byte("correct-horse")))

	connecting := (<-sub.Events).(ConnectionStateChanged)
	require.Equal(t, "connecting", connecting.State)

	connected := (<-sub.Events).(ConnectionStateChanged)
	require.Equal(t, "connected", connected.State)
}
