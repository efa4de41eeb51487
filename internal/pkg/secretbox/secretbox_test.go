package secretbox

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T, seed byte) []byte {
	t.Helper()
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = seed
	}
	key, err := ParseKey(hex.EncodeToString(raw))
	require.NoError(t, err)
	return key
}

func TestSealOpenRoundtrip(t *testing.T) {
	key := testKey(t, 0x42)
	blob, err := Seal(key, []byte("sk-user-provider-key"))
	require.NoError(t, err)
	require.NotContains(t, string(blob), "sk-user-provider-key")

	plain, err := Open(key, blob)
	require.NoError(t, err)
	require.Equal(t, "sk-user-provider-key", string(plain))
}

func TestOpenWrongKeyFails(t *testing.T) {
	blob, err := Seal(testKey(t, 0x01), []byte("secret"))
	require.NoError(t, err)
	_, err = Open(testKey(t, 0x02), blob)
	require.Error(t, err)
}

func TestParseKeyRejectsBadInput(t *testing.T) {
	_, err := ParseKey("not-hex")
	require.Error(t, err)
	_, err = ParseKey(strings.Repeat("ab", 16))
	require.Error(t, err)

	key, err := ParseKey("")
	require.NoError(t, err)
	require.Nil(t, key)
}
