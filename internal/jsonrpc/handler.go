package jsonrpc

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"

	"wcommd/internal/codec"
	"wcommd/internal/commissioning"
	"wcommd/internal/wifi"
)

// Handler dispatches JSON-RPC requests to a CommissioningService. Unlike
// original_source's handler (whose connect/disconnect/get_status were
// `TODO: Not implemented` stubs), every method here is fully wired.
type Handler struct {
	service *commissioning.CommissioningService
	log     zerolog.Logger
}

// NewHandler constructs a Handler bound to service.
func NewHandler(service *commissioning.CommissioningService, log zerolog.Logger) *Handler {
	return &Handler{service: service, log: log.With().Str("component", "jsonrpc_handler").Logger()}
}

// Handle dispatches req and always returns a Response (never nil): a
// malformed request or unknown method becomes an error response rather
// than a transport-level failure, so a single bad request never takes
// down the session (§7).
func (h *Handler) Handle(ctx context.Context, req *Request) *Response {
	if req.JSONRPC != ProtocolVersion {
		return ErrorResponse(newError(CodeInvalidRequest, "unsupported jsonrpc version"), req.ID)
	}

	switch req.Method {
	case "authorize":
		return h.handleAuthorize(req)
	case "scan":
		return h.handleScan(ctx, req)
	case "get_scan_results":
		return h.handleGetScanResults(req)
	case "connect":
		return h.handleConnect(ctx, req)
	case "disconnect":
		return h.handleDisconnect(ctx, req)
	case "get_connection_state":
		return h.handleGetConnectionState(req)
	default:
		return ErrorResponse(newError(CodeMethodNotFound, "method not found"), req.ID)
	}
}

type authorizeParams struct {
	Key string `json:"key"`
}

func (h *Handler) handleAuthorize(req *Request) *Response {
	var params authorizeParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return ErrorResponse(newError(CodeInvalidParams, "malformed params"), req.ID)
	}
	key, err := hex.DecodeString(params.Key)
	if err != nil || len(key) != 32 {
		return ErrorResponse(newError(CodeInvalidParams, "key must be 64 hex characters"), req.ID)
	}
	if err := h.service.Authorize(key); err != nil {
		return ErrorResponse(newError(CodeInvalidParams, "authorization failed"), req.ID)
	}
	return SuccessResponse(map[string]string{"status": "ok"}, req.ID)
}

func (h *Handler) handleScan(ctx context.Context, req *Request) *Response {
	if err := h.service.Scan(ctx); err != nil {
		// A scan already in flight gets its own §6 code (-32001)
		// rather than the generic InvalidState code (-32002) every
		// other wrong-state call maps to.
		if errors.Is(err, commissioning.ErrInvalidState) {
			return ErrorResponse(newError(CodeScanInProgress, "scan already in progress"), req.ID)
		}
		return errorResponseFor(err, req.ID)
	}
	return SuccessResponse(map[string]string{"status": "ok", "state": "scanning"}, req.ID)
}

type wireNetwork struct {
	SSID      string `json:"ssid"`
	SignalDBM int    `json:"signal_dbm"`
	Security  string `json:"security"`
	BSSID     string `json:"bssid,omitempty"`
	Frequency int    `json:"frequency_mhz,omitempty"`
}

func toWireNetworks(networks []wifi.Network) []wireNetwork {
	out := make([]wireNetwork, len(networks))
	for i, n := range networks {
		w := wireNetwork{
			SSID:      codec.DecodeSSID(n.SSID),
			SignalDBM: n.SignalDBM,
			Security:  n.Security.String(),
		}
		if len(n.BSSID) > 0 {
			w.BSSID = hex.EncodeToString(n.BSSID)
		}
		if n.HasFreq {
			w.Frequency = n.FrequencyMHz
		}
		out[i] = w
	}
	return out
}

func (h *Handler) handleGetScanResults(req *Request) *Response {
	networks, err := h.service.ScanResults()
	if err != nil {
		return errorResponseFor(err, req.ID)
	}
	return SuccessResponse(map[string]interface{}{
		"status":   "ok",
		"networks": toWireNetworks(networks),
	}, req.ID)
}

type connectParams struct {
	SSID string `json:"ssid"`
	PSK  string `json:"psk"`
}

// decodePSK accepts psk either as a 64-character hex string (a 32-byte
// binary PMK, the convention the local socket's original author used
// for binary transport over JSON text) or, failing that, as the literal
// passphrase bytes (§9 Open Question: length disambiguates the two
// conventions CommissioningService.Connect itself validates).
func decodePSK(psk string) []byte {
	if len(psk) == 64 {
		if b, err := hex.DecodeString(psk); err == nil {
			return b
		}
	}
	return []byte(psk)
}

func (h *Handler) handleConnect(ctx context.Context, req *Request) *Response {
	var params connectParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return ErrorResponse(newError(CodeInvalidParams, "malformed params"), req.ID)
	}
	ssid := []byte(params.SSID)
	psk := decodePSK(params.PSK)
	if err := h.service.Connect(ctx, ssid, psk); err != nil {
		return errorResponseFor(err, req.ID)
	}
	return SuccessResponse(map[string]string{"status": "ok", "state": "connecting"}, req.ID)
}

func (h *Handler) handleDisconnect(ctx context.Context, req *Request) *Response {
	if err := h.service.Disconnect(ctx); err != nil {
		return errorResponseFor(err, req.ID)
	}
	return SuccessResponse(map[string]string{"status": "ok"}, req.ID)
}

func (h *Handler) handleGetConnectionState(req *Request) *Response {
	state := h.service.ConnectionState()
	out := map[string]interface{}{
		"status": "ok",
		"state":  connStateName(state.Phase),
	}
	if len(state.SSID) > 0 {
		out["ssid"] = codec.DecodeSSID(state.SSID)
	}
	if state.IPAddress != "" {
		out["ip_address"] = state.IPAddress
	}
	if state.Phase == wifi.ConnError {
		out["kind"] = state.ErrorKind
		out["message"] = state.Message
	}
	return SuccessResponse(out, req.ID)
}

func connStateName(p wifi.ConnPhase) string {
	switch p {
	case wifi.ConnConnecting:
		return "connecting"
	case wifi.ConnConnected:
		return "connected"
	case wifi.ConnError:
		return "error"
	default:
		return "idle"
	}
}

// errorResponseFor maps a commissioning sentinel error to its §7 wire
// error code.
func errorResponseFor(err error, id *RequestID) *Response {
	switch {
	case errors.Is(err, commissioning.ErrInvalidParams):
		return ErrorResponse(newError(CodeInvalidParams, err.Error()), id)
	case errors.Is(err, commissioning.ErrInvalidState):
		return ErrorResponse(newError(CodeInvalidState, err.Error()), id)
	case errors.Is(err, commissioning.ErrUnauthorized):
		return ErrorResponse(newError(CodeInvalidRequest, err.Error()), id)
	case errors.Is(err, commissioning.ErrTimeout):
		return ErrorResponse(newError(CodeTimeout, err.Error()), id)
	default:
		return ErrorResponse(newError(CodeBackendError, err.Error()), id)
	}
}
