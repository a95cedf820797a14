package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/govindnetworks/siodb/errors"
)

func TestGetCipher(t *testing.T) {
	for _, tc := range []struct {
		id      string
		keySize int
	}{
		{"aes128", 16},
		{"aes192", 24},
		{"aes256", 32},
	} {
		c, err := GetCipher(tc.id)
		require.NoError(t, err, tc.id)
		require.Equal(t, tc.id, c.ID())
		require.Equal(t, tc.keySize, c.KeySize())
		require.Equal(t, 16, c.BlockSize())

		block, err := c.NewBlock(make([]byte, tc.keySize))
		require.NoError(t, err)
		require.Equal(t, 16, block.BlockSize())
	}
}

func TestGetCipherNone(t *testing.T) {
	c, err := GetCipher(NoCipherID)
	require.NoError(t, err)
	require.Nil(t, c)

	c, err = GetCipher("")
	require.NoError(t, err)
	require.Nil(t, c)
}

func TestGetCipherUnknown(t *testing.T) {
	_, err := GetCipher("rot13")
	require.True(t, errors.HasCode(err, errors.CodeCipherUnknown))
}

func TestNewBlockRejectsBadKey(t *testing.T) {
	c, err := GetCipher("aes128")
	require.NoError(t, err)
	_, err = c.NewBlock(make([]byte, 8))
	require.True(t, errors.HasCode(err, errors.CodeInvalidCipherKey))
}
