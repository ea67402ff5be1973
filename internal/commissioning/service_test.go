package commissioning

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/sha3"

	"wcommd/internal/wifi"
	"wcommd/internal/wifi/mock"
)

func newTestService(backend *mock.Backend) *CommissioningService {
	return NewCommissioningService(backend, Config{
		Secret:         "s3cret",
		ScanTimeout:    time.Second,
		ConnectTimeout: time.Second,
	}, zerolog.Nop())
}

func secretHash(secret string) []byte {
	h := sha3.Sum256([]byte(secret))
	return h[:]
}

func TestValidateSSIDBounds(t *testing.T) {
	require.NoError(t, ValidateSSID([]byte("a")))
	require.NoError(t, ValidateSSID(bytes.Repeat([]byte("a"), 32)))
	require.ErrorIs(t, ValidateSSID(nil), ErrInvalidParams)
	require.ErrorIs(t, ValidateSSID(bytes.Repeat([]byte("a"), 33)), ErrInvalidParams)
	require.ErrorIs(t, ValidateSSID([]byte("bad\x00ssid")), ErrInvalidParams)
}

func TestValidatePSKAcceptsPassphraseOrExactPMK(t *testing.T) {
	require.NoError(t, ValidatePSK([]byte("correct-horse")))
	require.NoError(t, ValidatePSK(bytes.Repeat([]byte{0xab}, 32)))
	require.ErrorIs(t, ValidatePSK([]byte("short")), ErrInvalidParams)
	require.ErrorIs(t, ValidatePSK(bytes.Repeat([]byte("a"), 64)), ErrInvalidParams)
	require.ErrorIs(t, ValidatePSK([]byte("bad\x01pass")), ErrInvalidParams)
}

func TestServiceAuthorizeGrantsAndExpires(t *testing.T) {
	svc := newTestService(mock.New())
	require.False(t, svc.IsAuthorized())

	require.NoError(t, svc.Authorize(secretHash("s3cret")))
	require.True(t, svc.IsAuthorized())

	require.ErrorIs(t, svc.Authorize(secretHash("wrong")), ErrUnauthorized)
}

func TestServiceRevokeAuthorizationClearsGrant(t *testing.T) {
	svc := newTestService(mock.New())
	require.NoError(t, svc.Authorize(secretHash("s3cret")))
	require.True(t, svc.IsAuthorized())

	svc.RevokeAuthorization()
	require.False(t, svc.IsAuthorized())
}

func TestServiceScanResultsFailsBeforeAnyScan(t *testing.T) {
	svc := newTestService(mock.New())
	_, err := svc.ScanResults()
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestServiceConnectRejectsInvalidParamsBeforeTouchingEngine(t *testing.T) {
	backend := mock.New()
	svc := newTestService(backend)

	err := svc.Connect(context.Background(), []byte(""), []byte("correct-horse"))
	require.ErrorIs(t, err, ErrInvalidParams)
	require.Equal(t, wifi.ConnIdle, svc.ConnectionState().Phase)
}

// TestHappyPathScanThenConnect mirrors S1: authorize, scan, read
// results, connect, observe exactly one save_config call.
func TestHappyPathScanThenConnect(t *testing.T) {
	backend := mock.New()
	backend.ScanResults = []wifi.Network{
		{SSID: []byte("Home"), SignalDBM: -55, Security: wifi.SecurityWPA2PSK},
	}
	svc := newTestService(backend)

	require.NoError(t, svc.Authorize(secretHash("s3cret")))
	require.NoError(t, svc.Scan(context.Background()))

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && svc.ScanState().Phase != wifi.ScanFinished {
		time.Sleep(time.Millisecond)
	}
	results, err := svc.ScanResults()
	require.NoError(t, err)
	require.Equal(t, "Home", string(results[0].SSID))

	require.NoError(t, svc.Connect(context.Background(), []byte("Home"), []byte("correct-horse")))
	deadline = time.Now().Add(time.Second)
	for time.Now().Before(deadline) && svc.ConnectionState().Phase != wifi.ConnConnected {
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, wifi.ConnConnected, svc.ConnectionState().Phase)
	require.Equal(t, 1, backend.SaveCount)
}

// TestBadPSKThenRetry mirrors S2: a failed connect never saves config,
// and a subsequent connect with the right PSK succeeds.
func TestBadPSKThenRetry(t *testing.T) {
	backend := mock.New()
	backend.ConnectErr = wifi.ErrAuthFailure
	svc := newTestService(backend)

	require.NoError(t, svc.Connect(context.Background(), []byte("Home"), []byte("wrong-pass")))
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && svc.ConnectionState().Phase != wifi.ConnError {
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, 0, backend.SaveCount)
	require.Equal(t, "auth_failure", svc.ConnectionState().ErrorKind)

	backend.ConnectErr = nil
	require.NoError(t, svc.Connect(context.Background(), []byte("Home"), []byte("correct-horse")))
	deadline = time.Now().Add(time.Second)
	for time.Now().Before(deadline) && svc.ConnectionState().Phase != wifi.ConnConnected {
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, 1, backend.SaveCount)
}

// TestConcurrentScanAndConnectionStateReadback mirrors S6: a
// connection_state() readback is not blocked behind an in-flight scan.
func TestConcurrentScanAndConnectionStateReadback(t *testing.T) {
	backend := mock.New()
	backend.ActionSleep = 200 * time.Millisecond
	svc := newTestService(backend)

	require.NoError(t, svc.Scan(context.Background()))

	start := time.Now()
	_ = svc.ConnectionState()
	require.Less(t, time.Since(start), 50*time.Millisecond)
}
