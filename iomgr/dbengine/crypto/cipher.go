package crypto

import (
	"crypto/aes"
	"crypto/cipher"

	"github.com/govindnetworks/siodb/errors"
)

// NoCipherID disables encryption when used as a database cipher id.
const NoCipherID = "none"

// Cipher describes a block cipher available for database encryption.
type Cipher interface {
	ID() string
	// KeySize is the key length in bytes.
	KeySize() int
	BlockSize() int
	// NewBlock creates a cipher context for the given key.
	NewBlock(key []byte) (cipher.Block, error)
}

type aesCipher struct {
	id      string
	keySize int
}

func (c *aesCipher) ID() string     { return c.id }
func (c *aesCipher) KeySize() int   { return c.keySize }
func (c *aesCipher) BlockSize() int { return aes.BlockSize }

func (c *aesCipher) NewBlock(key []byte) (cipher.Block, error) {
	if len(key) != c.keySize {
		return nil, errors.New(errors.CodeInvalidCipherKey,
			"invalid key length %d for cipher '%s', expected %d", len(key), c.id, c.keySize)
	}
	return aes.NewCipher(key)
}

var ciphers = map[string]Cipher{}

func addCipher(c Cipher) {
	ciphers[c.ID()] = c
}

func init() {
	addCipher(&aesCipher{id: "aes128", keySize: 16})
	addCipher(&aesCipher{id: "aes192", keySize: 24})
	addCipher(&aesCipher{id: "aes256", keySize: 32})
}

// GetCipher resolves a cipher id. The id "none" resolves to a nil cipher,
// which means plaintext files.
func GetCipher(cipherID string) (Cipher, error) {
	if cipherID == NoCipherID || cipherID == "" {
		return nil, nil
	}
	c, ok := ciphers[cipherID]
	if !ok {
		return nil, errors.New(errors.CodeCipherUnknown, "unknown cipher '%s'", cipherID)
	}
	return c, nil
}
