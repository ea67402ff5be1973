package commissioning

import (
	"sync"
	"time"

	"golang.org/x/crypto/sha3"

	"wcommd/internal/codec"
)

// GrantDuration is the lifetime of an authorization grant (§3, §4.2).
const GrantDuration = 5 * time.Minute

// grant is AuthorizationGrant from §3. Expiry is computed against
// time.Now(), which on every supported platform is backed by a monotonic
// reading for the duration comparisons we do here; we never re-derive
// expiresAt from a wall-clock read after the grant is issued, so a clock
// that jumps backward cannot extend it (§3's monotonicity invariant).
type grant struct {
	grantedAt time.Time
	expiresAt time.Time
}

// Authorization computes SHA3-256 over a shared secret fixed at startup
// and compares offered hashes against it in constant time, the way
// original_source's AuthorizationService does, generalized from a
// device-ID secret to the daemon's configured --ble-secret (§4.2).
type Authorization struct {
	expectedHash [32]byte

	// now is overridden in tests so §8 property 3's expiry boundary
	// (ops succeed in [t, t+5min), fail at t+5min; a clock jump
	// backward does not extend the window) can be exercised without
	// sleeping real wall-clock time, the way
	// v.io/x/ref/lib/stats/counter's package-level TimeNow var is
	// overridden in its tests.
	now func() time.Time

	mu      sync.Mutex
	current *grant
}

// NewAuthorization derives the expected hash from secret once.
func NewAuthorization(secret string) *Authorization {
	h := sha3.Sum256([]byte(secret))
	return &Authorization{expectedHash: h, now: time.Now}
}

// Authorize compares offeredHash against SHA3-256(secret); on a match it
// (re)issues a grant expiring GrantDuration from now.
func (a *Authorization) Authorize(offeredHash []byte) error {
	if !codec.ConstantTimeEqual(offeredHash, a.expectedHash[:]) {
		return ErrUnauthorized
	}
	now := a.now()
	a.mu.Lock()
	a.current = &grant{grantedAt: now, expiresAt: now.Add(GrantDuration)}
	a.mu.Unlock()
	return nil
}

// IsAuthorized reports whether a grant exists and has not expired.
func (a *Authorization) IsAuthorized() bool {
	a.mu.Lock()
	g := a.current
	a.mu.Unlock()
	if g == nil {
		return false
	}
	return a.now().Before(g.expiresAt)
}

// Revoke clears any current grant. Mutating operations that depend on
// PendingCredentials zeroization call this on explicit revocation paths.
func (a *Authorization) Revoke() {
	a.mu.Lock()
	a.current = nil
	a.mu.Unlock()
}
