package commissioning

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"wcommd/internal/wifi"
	"wcommd/internal/wifi/mock"
)

func TestScanStateMachineRejectsStartWhileScanning(t *testing.T) {
	sm := newScanStateMachine()
	require.NoError(t, sm.startScan(time.Now()))
	require.ErrorIs(t, sm.startScan(time.Now()), ErrInvalidState)
}

func TestScanStateMachineAllowsRestartFromFinishedOrError(t *testing.T) {
	sm := newScanStateMachine()
	require.NoError(t, sm.startScan(time.Now()))
	sm.completeScan(nil, time.Now())
	require.NoError(t, sm.startScan(time.Now()))

	sm.failScan("boom", time.Now())
	require.NoError(t, sm.startScan(time.Now()))
}

func waitForScanPhase(t *testing.T, e *ScanEngine, phase wifi.ScanPhase) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e.State().Phase == phase {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for scan phase %v, got %v", phase, e.State().Phase)
}

func TestScanEngineRejectsConcurrentScan(t *testing.T) {
	backend := mock.New()
	backend.ActionSleep = 50 * time.Millisecond
	hub := NewHub(zerolog.Nop())
	e := NewScanEngine(backend, hub, time.Second, zerolog.Nop())

	require.NoError(t, e.Scan(context.Background()))
	require.ErrorIs(t, e.Scan(context.Background()), ErrInvalidState)

	waitForScanPhase(t, e, wifi.ScanFinished)
}

func TestScanEngineReachesFinishedWithSortedDedupedResults(t *testing.T) {
	backend := mock.New()
	backend.ScanResults = []wifi.Network{
		{SSID: []byte("weak"), SignalDBM: -80, BSSID: []byte{1, 2, 3, 4, 5, 6}},
		{SSID: []byte("strong-dup"), SignalDBM: -40, BSSID: []byte{9, 9, 9, 9, 9, 9}},
		{SSID: []byte("strong-dup"), SignalDBM: -90, BSSID: []byte{9, 9, 9, 9, 9, 9}},
	}
	hub := NewHub(zerolog.Nop())
	e := NewScanEngine(backend, hub, time.Second, zerolog.Nop())

	require.NoError(t, e.Scan(context.Background()))
	waitForScanPhase(t, e, wifi.ScanFinished)

	results, err := e.Results()
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, []byte("strong-dup"), results[0].SSID)
	require.Equal(t, []byte("weak"), results[1].SSID)
}

func TestScanEngineBackendErrorReachesErrorPhase(t *testing.T) {
	backend := mock.New()
	backend.ScanErr = errors.New("supplicant unreachable")
	hub := NewHub(zerolog.Nop())
	e := NewScanEngine(backend, hub, time.Second, zerolog.Nop())

	require.NoError(t, e.Scan(context.Background()))
	waitForScanPhase(t, e, wifi.ScanError)

	_, err := e.Results()
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestScanEnginePublishesStateTransitionsThroughHub(t *testing.T) {
	backend := mock.New()
	hub := NewHub(zerolog.Nop())
	sub := hub.Subscribe()
	e := NewScanEngine(backend, hub, time.Second, zerolog.Nop())

	require.NoError(t, e.Scan(context.Background()))

	scanning := (<-sub.Events).(ScanStateChanged)
	require.Equal(t, "scanning", scanning.State)

	finished := (<-sub.Events).(ScanStateChanged)
	require.Equal(t, "finished", finished.State)
}
