package jsonrpc

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/sha3"

	"wcommd/internal/commissioning"
	"wcommd/internal/wifi"
	"wcommd/internal/wifi/mock"
)

func newTestHandler(backend *mock.Backend) (*Handler, *commissioning.CommissioningService) {
	svc := commissioning.NewCommissioningService(backend, commissioning.Config{
		Secret:         "s3cret",
		ScanTimeout:    time.Second,
		ConnectTimeout: time.Second,
	}, zerolog.Nop())
	return NewHandler(svc, zerolog.Nop()), svc
}

func rawParams(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestHandleMethodNotFound(t *testing.T) {
	h, _ := newTestHandler(mock.New())
	resp := h.Handle(context.Background(), &Request{JSONRPC: ProtocolVersion, Method: "bogus", ID: NumberID(1)})
	require.NotNil(t, resp.Error)
	require.Equal(t, CodeMethodNotFound, resp.Error.Code)
}

func TestHandleAuthorizeSuccessAndFailure(t *testing.T) {
	h, svc := newTestHandler(mock.New())
	hash := sha3.Sum256([]byte("s3cret"))

	resp := h.Handle(context.Background(), &Request{
		JSONRPC: ProtocolVersion, Method: "authorize",
		Params: rawParams(t, authorizeParams{Key: hex.EncodeToString(hash[:])}),
		ID:     NumberID(1),
	})
	require.Nil(t, resp.Error)
	require.True(t, svc.IsAuthorized())

	wrong := sha3.Sum256([]byte("nope"))
	resp = h.Handle(context.Background(), &Request{
		JSONRPC: ProtocolVersion, Method: "authorize",
		Params: rawParams(t, authorizeParams{Key: hex.EncodeToString(wrong[:])}),
		ID:     NumberID(2),
	})
	require.NotNil(t, resp.Error)
	require.Equal(t, CodeInvalidParams, resp.Error.Code)
}

func TestHandleGetScanResultsFailsBeforeAnyScan(t *testing.T) {
	h, _ := newTestHandler(mock.New())
	resp := h.Handle(context.Background(), &Request{JSONRPC: ProtocolVersion, Method: "get_scan_results", ID: NumberID(1)})
	require.NotNil(t, resp.Error)
	require.Equal(t, CodeInvalidState, resp.Error.Code)
}

func TestHandleScanAlreadyInProgressUsesScanInProgressCode(t *testing.T) {
	backend := mock.New()
	backend.ActionSleep = time.Second
	h, _ := newTestHandler(backend)

	resp := h.Handle(context.Background(), &Request{JSONRPC: ProtocolVersion, Method: "scan", ID: NumberID(1)})
	require.Nil(t, resp.Error)

	resp = h.Handle(context.Background(), &Request{JSONRPC: ProtocolVersion, Method: "scan", ID: NumberID(2)})
	require.NotNil(t, resp.Error)
	require.Equal(t, CodeScanInProgress, resp.Error.Code)
}

// TestHappyPathScanConnect mirrors S1: scan -> get_scan_results ->
// connect, each returning ok, with save_config called exactly once.
func TestHappyPathScanConnect(t *testing.T) {
	backend := mock.New()
	backend.ScanResults = []wifi.Network{{SSID: []byte("Home"), SignalDBM: -55, Security: wifi.SecurityWPA2PSK}}
	h, svc := newTestHandler(backend)

	resp := h.Handle(context.Background(), &Request{JSONRPC: ProtocolVersion, Method: "scan", ID: NumberID(1)})
	require.Nil(t, resp.Error)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && svc.ScanState().Phase != wifi.ScanFinished {
		time.Sleep(time.Millisecond)
	}

	resp = h.Handle(context.Background(), &Request{JSONRPC: ProtocolVersion, Method: "get_scan_results", ID: NumberID(2)})
	require.Nil(t, resp.Error)

	resp = h.Handle(context.Background(), &Request{
		JSONRPC: ProtocolVersion, Method: "connect",
		Params: rawParams(t, connectParams{SSID: "Home", PSK: "correct-horse"}),
		ID:     NumberID(3),
	})
	require.Nil(t, resp.Error)

	deadline = time.Now().Add(time.Second)
	for time.Now().Before(deadline) && svc.ConnectionState().Phase != wifi.ConnConnected {
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, 1, backend.SaveCount)
}

func TestHandleConnectAcceptsHexPMK(t *testing.T) {
	backend := mock.New()
	h, svc := newTestHandler(backend)

	pmkHex := make([]byte, 64)
	for i := range pmkHex {
		pmkHex[i] = 'a'
	}
	resp := h.Handle(context.Background(), &Request{
		JSONRPC: ProtocolVersion, Method: "connect",
		Params: rawParams(t, connectParams{SSID: "Home", PSK: string(pmkHex)}),
		ID:     NumberID(1),
	})
	require.Nil(t, resp.Error)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && svc.ConnectionState().Phase != wifi.ConnConnected {
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, wifi.ConnConnected, svc.ConnectionState().Phase)
}

func TestHandleGetConnectionStateIdleByDefault(t *testing.T) {
	h, _ := newTestHandler(mock.New())
	resp := h.Handle(context.Background(), &Request{JSONRPC: ProtocolVersion, Method: "get_connection_state", ID: NumberID(1)})
	require.Nil(t, resp.Error)
	out := resp.Result.(map[string]interface{})
	require.Equal(t, "idle", out["state"])
}

func TestHandleDisconnectWithoutConnectionIsInvalidState(t *testing.T) {
	h, _ := newTestHandler(mock.New())
	resp := h.Handle(context.Background(), &Request{JSONRPC: ProtocolVersion, Method: "disconnect", ID: NumberID(1)})
	require.NotNil(t, resp.Error)
	require.Equal(t, CodeInvalidState, resp.Error.Code)
}
