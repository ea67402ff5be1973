package ble

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"wcommd/internal/codec"
	"wcommd/internal/commissioning"
	"wcommd/internal/wifi"
)

// Sentinel errors the GATT object layer (gatt.go) maps onto BlueZ's
// org.bluez.Error.* D-Bus error names.
var (
	ErrInvalidValueLength = errors.New("ble: invalid value length")
	ErrNotAuthorized      = errors.New("ble: not authorized")
	ErrFailed             = errors.New("ble: operation failed")
)

// authKeyLen is the fixed AuthKey characteristic payload size (§6):
// 32-byte SHA3-256(secret).
const authKeyLen = 32

// pmkLen is the fixed PSK characteristic payload size at commit time
// (§4.7/§6): the BLE protocol only ever carries a binary PMK, never the
// passphrase convention the Unix socket also accepts, so the commit
// path enforces this length itself rather than delegating to
// commissioning.ValidatePSK, which is deliberately permissive about the
// passphrase length range for the other transport.
const pmkLen = 32

// Handlers implements the byte <-> request translation for every
// characteristic in §4.7, grounded on original_source's
// CharacteristicHandler but reshaped around a global (not per-session)
// authorization grant and an accumulate-until-commit PSK buffer per the
// frozen protocol table in §6.
type Handlers struct {
	service *commissioning.CommissioningService
	log     zerolog.Logger
}

// NewHandlers constructs a Handlers bound to service.
func NewHandlers(service *commissioning.CommissioningService, log zerolog.Logger) *Handlers {
	return &Handlers{service: service, log: log.With().Str("component", "ble_characteristics").Logger()}
}

func (h *Handlers) checkAuthorized() error {
	if !h.service.IsAuthorized() {
		return ErrNotAuthorized
	}
	return nil
}

// HandleAuthWrite processes a write to the AuthKey characteristic.
func (h *Handlers) HandleAuthWrite(value []byte) error {
	if len(value) != authKeyLen {
		return ErrInvalidValueLength
	}
	if err := h.service.Authorize(value); err != nil {
		h.log.Warn().Err(err).Msg("authorization failed")
		return ErrFailed
	}
	return nil
}

// HandleScanControlWrite processes a write to the Scan/Control
// characteristic. Value 1 starts a scan; any other value is rejected.
func (h *Handlers) HandleScanControlWrite(sess *Session, value []byte) error {
	if err := h.checkAuthorized(); err != nil {
		return err
	}
	if len(value) == 0 {
		return ErrInvalidValueLength
	}
	if value[0] != 1 {
		return ErrInvalidValueLength
	}
	sess.ResetResultsOffset()
	if err := h.service.Scan(context.Background()); err != nil {
		if errors.Is(err, commissioning.ErrInvalidState) {
			return ErrFailed
		}
		h.log.Warn().Err(err).Msg("scan start failed")
		return ErrFailed
	}
	return nil
}

// HandleScanStateRead processes a read of the Scan/State characteristic.
func (h *Handlers) HandleScanStateRead() ([]byte, error) {
	if err := h.checkAuthorized(); err != nil {
		return nil, err
	}
	return []byte{scanPhaseByte(h.service.ScanState().Phase)}, nil
}

func scanPhaseByte(p wifi.ScanPhase) byte {
	switch p {
	case wifi.ScanScanning:
		return 1
	case wifi.ScanFinished:
		return 2
	case wifi.ScanError:
		return 3
	default:
		return 0
	}
}

func connPhaseByte(p wifi.ConnPhase) byte {
	switch p {
	case wifi.ConnConnecting:
		return 1
	case wifi.ConnConnected:
		return 2
	case wifi.ConnError:
		return 3
	default:
		return 0
	}
}

// wireNetwork is the canonical per-network JSON shape served by the
// Results characteristic. SSID is hex-escaped (§4.8) before this struct
// is marshaled, so encoding/json's own string escaping is layered on
// top of the hex escape exactly as §4.8 specifies.
type wireNetwork struct {
	SSID      string `json:"ssid"`
	SignalDBM int    `json:"signal_dbm"`
	Security  string `json:"security"`
	BSSID     string `json:"bssid,omitempty"`
	Frequency int    `json:"frequency_mhz,omitempty"`
}

func encodeScanResults(networks []wifi.Network) ([]byte, error) {
	wire := make([]wireNetwork, len(networks))
	for i, n := range networks {
		w := wireNetwork{
			SSID:      codec.EscapeHex(n.SSID),
			SignalDBM: n.SignalDBM,
			Security:  n.Security.String(),
		}
		if len(n.BSSID) > 0 {
			w.BSSID = fmt.Sprintf("%x", n.BSSID)
		}
		if n.HasFreq {
			w.Frequency = n.FrequencyMHz
		}
		wire[i] = w
	}
	return json.Marshal(wire)
}

// HandleScanResultsRead processes a paginated read of the Scan/Results
// characteristic for sess, per §4.7/§8 property 4: each read advances
// sess's own cursor by up to MaxChunkSize bytes; a read at or past the
// end returns zero bytes and rewinds the cursor to 0.
func (h *Handlers) HandleScanResultsRead(sess *Session) ([]byte, error) {
	if err := h.checkAuthorized(); err != nil {
		return nil, err
	}
	networks, err := h.service.ScanResults()
	if err != nil {
		return nil, nil
	}
	encoded, err := encodeScanResults(networks)
	if err != nil {
		h.log.Warn().Err(err).Msg("failed to encode scan results")
		return nil, ErrFailed
	}

	offset := sess.ResultsOffset()
	if offset >= len(encoded) {
		sess.ResetResultsOffset()
		return nil, nil
	}
	end := offset + MaxChunkSize
	if end > len(encoded) {
		end = len(encoded)
	}
	chunk := encoded[offset:end]
	sess.SetResultsOffset(end)
	return chunk, nil
}

// HandleSSIDWrite appends value to sess's accumulating SSID buffer.
func (h *Handlers) HandleSSIDWrite(sess *Session, value []byte) error {
	if err := h.checkAuthorized(); err != nil {
		return err
	}
	sess.AppendSSID(value)
	return nil
}

// HandlePSKWrite appends value to sess's accumulating PSK buffer. Length
// is validated only at commit time (§4.7), not on every individual write.
func (h *Handlers) HandlePSKWrite(sess *Session, value []byte) error {
	if err := h.checkAuthorized(); err != nil {
		return err
	}
	sess.AppendPSK(value)
	return nil
}

// HandleConnectControlWrite processes a write to the Connect/Control
// characteristic: 1 commits the accumulated SSID/PSK and initiates a
// connect; 2 disconnects; any other value is rejected.
func (h *Handlers) HandleConnectControlWrite(sess *Session, value []byte) error {
	if err := h.checkAuthorized(); err != nil {
		return err
	}
	if len(value) == 0 {
		return ErrInvalidValueLength
	}
	switch value[0] {
	case 1:
		ssid, psk := sess.Commit()
		if len(psk) != pmkLen {
			zero(psk)
			return ErrInvalidValueLength
		}
		if err := h.service.Connect(context.Background(), ssid, psk); err != nil {
			h.log.Warn().Err(err).Msg("connect commit failed")
			if errors.Is(err, commissioning.ErrInvalidParams) {
				return ErrInvalidValueLength
			}
			return ErrFailed
		}
		return nil
	case 2:
		if err := h.service.Disconnect(context.Background()); err != nil {
			h.log.Warn().Err(err).Msg("disconnect failed")
			return ErrFailed
		}
		return nil
	default:
		return ErrInvalidValueLength
	}
}

// HandleConnectStateRead processes a read of the Connect/State
// characteristic.
func (h *Handlers) HandleConnectStateRead() ([]byte, error) {
	if err := h.checkAuthorized(); err != nil {
		return nil, err
	}
	return []byte{connPhaseByte(h.service.ConnectionState().Phase)}, nil
}

// OnSessionClosed discards sess's accumulation buffers without
// committing them (§3).
func (h *Handlers) OnSessionClosed(sess *Session) {
	sess.ClearBuffers()
}
