package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEscapeUnescapeRoundTrip(t *testing.T) {
	cases := [][]byte{
		[]byte("Home"),
		[]byte{},
		[]byte{0x00, 0x01, 0xff},
		[]byte("WiFi\\Net"),
		[]byte("WiFi\xf0\x9f\x92\xa9"), // non-UTF8-safe tail byte mix
	}
	for _, c := range cases {
		escaped := EscapeHex(c)
		for i := 0; i < len(escaped); i++ {
			require.Less(t, escaped[i], byte(0x80), "escaped output must be 7-bit ASCII")
		}
		back, err := UnescapeHex(escaped)
		require.NoError(t, err)
		require.Equal(t, c, back)
	}
}

func TestUnescapeRejectsMalformed(t *testing.T) {
	_, err := UnescapeHex(`\xg0`)
	require.Error(t, err)

	_, err = UnescapeHex(`\x1`)
	require.Error(t, err)

	_, err = UnescapeHex(`\`)
	require.Error(t, err)
}

func TestConstantTimeEqual(t *testing.T) {
	require.True(t, ConstantTimeEqual([]byte("abc"), []byte("abc")))
	require.False(t, ConstantTimeEqual([]byte("abc"), []byte("abd")))
	require.False(t, ConstantTimeEqual([]byte("abc"), []byte("ab")))
}
