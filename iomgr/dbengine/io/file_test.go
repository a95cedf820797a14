package io

import (
	"crypto/aes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalFileReadWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	f, err := CreateFile(path, 0, DataFileCreationMode, 64)
	require.NoError(t, err)
	defer f.Close()

	data := []byte("catalog metadata")
	_, err = f.WriteAt(data, 8)
	require.NoError(t, err)
	require.NoError(t, f.Sync())

	got := make([]byte, len(data))
	_, err = f.ReadAt(got, 8)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestEncryptedFileRoundTrip(t *testing.T) {
	key := make([]byte, 16)
	for i := range key {
		key[i] = byte(i)
	}
	block, err := aes.NewCipher(key)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "data")
	f, err := CreateEncryptedFile(path, 0, DataFileCreationMode, block, 256)
	require.NoError(t, err)

	data := []byte("sensitive catalog payload, longer than one cipher block")
	// unaligned offset on purpose
	_, err = f.WriteAt(data, 13)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// on-disk bytes must differ from plaintext
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotEqual(t, data, raw[13:13+len(data)])

	f2, err := OpenEncryptedFile(path, 0, block)
	require.NoError(t, err)
	defer f2.Close()

	got := make([]byte, len(data))
	_, err = f2.ReadAt(got, 13)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestEncryptedFilePartialOverwrite(t *testing.T) {
	key := make([]byte, 32)
	block, err := aes.NewCipher(key)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "data")
	f, err := CreateEncryptedFile(path, 0, DataFileCreationMode, block, 64)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.WriteAt([]byte("aaaaaaaaaaaaaaaaaaaaaaaa"), 0)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte("XY"), 10)
	require.NoError(t, err)

	got := make([]byte, 24)
	_, err = f.ReadAt(got, 0)
	require.NoError(t, err)
	require.Equal(t, []byte("aaaaaaaaaaXYaaaaaaaaaaaa"), got)
}
