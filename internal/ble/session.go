package ble

import (
	"sync"

	"wcommd/internal/commissioning"
)

// Session holds the per-link state the BLE adapter needs beyond what
// CommissioningService already tracks: the SSID/PSK accumulation
// buffers (§3's PendingCredentials) and this link's own cursor into the
// paginated scan-results read (§4.7: "concurrent reads by distinct
// sessions each have their own cursor").
//
// Authorization itself is not cached per session: the grant lives on
// CommissioningService and is checked there directly, since the BLE
// link is assumed to be a single paired device and the spec's grant is
// service-wide, not per-session (§3, §4.2).
type Session struct {
	id commissioning.SessionID

	mu            sync.Mutex
	pendingSSID   []byte
	pendingPSK    []byte
	resultsOffset int
}

// NewSession mints a fresh BLE session with empty accumulation buffers.
func NewSession() *Session {
	return &Session{id: commissioning.NewSessionID()}
}

// ID satisfies commissioning.Session.
func (s *Session) ID() commissioning.SessionID { return s.id }

// AppendSSID appends b to the accumulating SSID buffer (§4.7).
func (s *Session) AppendSSID(b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingSSID = append(s.pendingSSID, b...)
}

// AppendPSK appends b to the accumulating PSK buffer (§4.7).
func (s *Session) AppendPSK(b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingPSK = append(s.pendingPSK, b...)
}

// Commit returns copies of the accumulated SSID/PSK and zeroes both
// buffers, the way a connect-initiation commit consumes them (§3, §9
// PSK zeroization).
func (s *Session) Commit() (ssid, psk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ssid = append([]byte(nil), s.pendingSSID...)
	psk = append([]byte(nil), s.pendingPSK...)
	zero(s.pendingSSID)
	zero(s.pendingPSK)
	s.pendingSSID = nil
	s.pendingPSK = nil
	return ssid, psk
}

// ClearBuffers zeroes and discards any accumulated SSID/PSK without
// committing them, used on session teardown and on authorization
// revocation (§3).
func (s *Session) ClearBuffers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	zero(s.pendingSSID)
	zero(s.pendingPSK)
	s.pendingSSID = nil
	s.pendingPSK = nil
}

// zero overwrites b in place before it becomes eligible for GC (§9 PSK
// zeroization: do not rely on the garbage collector to promptly reclaim
// secret bytes).
func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// ResultsOffset returns this session's current cursor into the
// paginated scan-results read.
func (s *Session) ResultsOffset() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resultsOffset
}

// SetResultsOffset updates this session's cursor.
func (s *Session) SetResultsOffset(off int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resultsOffset = off
}

// ResetResultsOffset rewinds this session's cursor to the start, done
// when a new scan is started so a stale cursor never mixes two result
// sets (§4.7).
func (s *Session) ResetResultsOffset() {
	s.SetResultsOffset(0)
}
