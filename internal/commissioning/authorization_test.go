package commissioning

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/sha3"
)

func newTestAuthorization(secret string, now func() time.Time) *Authorization {
	a := NewAuthorization(secret)
	a.now = now
	return a
}

func hashOf(secret string) []byte {
	h := sha3.Sum256([]byte(secret))
	return h[:]
}

// TestAuthorizationExpiryBoundary is §8 property 3: mutating ops succeed
// in [t, t+5min) and fail with Unauthorized at exactly t+5min.
func TestAuthorizationExpiryBoundary(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := t0
	a := newTestAuthorization("s3cret", func() time.Time { return clock })

	require.NoError(t, a.Authorize(hashOf("s3cret")))

	clock = t0.Add(GrantDuration - time.Nanosecond)
	assert.True(t, a.IsAuthorized(), "grant must still be valid one nanosecond before expiry")

	clock = t0.Add(GrantDuration)
	assert.False(t, a.IsAuthorized(), "grant must be expired exactly at t+5min")
}

// TestAuthorizationClockJumpBackwardDoesNotExtendGrant is §8 property 3's
// monotonicity clause: once a grant's expiresAt is fixed, a clock that
// jumps backward cannot resurrect an expired grant or extend a live one.
func TestAuthorizationClockJumpBackwardDoesNotExtendGrant(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := t0
	a := newTestAuthorization("s3cret", func() time.Time { return clock })

	require.NoError(t, a.Authorize(hashOf("s3cret")))

	clock = t0.Add(GrantDuration)
	require.False(t, a.IsAuthorized())

	clock = t0.Add(-time.Hour)
	assert.False(t, a.IsAuthorized(), "a clock jump backward must not resurrect an expired grant")
}

func TestAuthorizationWrongHashIsUnauthorized(t *testing.T) {
	a := NewAuthorization("s3cret")
	require.ErrorIs(t, a.Authorize(hashOf("wrong")), ErrUnauthorized)
	assert.False(t, a.IsAuthorized())
}
