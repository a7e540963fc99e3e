package hashutil

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSHA256HexMatchesReader(t *testing.T) {
	data := []byte("the quick brown fox")
	require.Equal(t, SHA256Hex(data), mustSHA256Reader(t, data))
}

func TestHexRoundTrip(t *testing.T) {
	data := []byte{0x00, 0x01, 0xAB, 0xFF, 0x10}
	require.Equal(t, data, mustFromHex(t, ToHex(data)))
}

func TestFromHexOddLength(t *testing.T) {
	_, err := FromHex("abc")
	require.ErrorIs(t, err, ErrMalformedHex)
}

func TestFromHexNonHexCharacters(t *testing.T) {
	_, err := FromHex("zz11")
	require.ErrorIs(t, err, ErrMalformedHex)
}

func TestZeroHashHexLength(t *testing.T) {
	require.Len(t, ZeroHashHex(), 64)
	require.Equal(t, "0000000000000000000000000000000000000000000000000000000000000000"[:64], ZeroHashHex())
}

func mustSHA256Reader(t *testing.T, data []byte) string {
	t.Helper()
	s, err := SHA256Reader(bytes.NewReader(data))
	require.NoError(t, err)
	return s
}

func mustFromHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := FromHex(s)
	require.NoError(t, err)
	return b
}
