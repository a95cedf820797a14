package io

import (
	"crypto/cipher"
	"encoding/binary"
	"io/fs"
	"os"
	"syscall"
)

// DataFileCreationMode is the permission mode for data files.
const DataFileCreationMode fs.FileMode = 0o660

// File is a uniform handle for database data files. Offsets always address
// plaintext positions; encryption, when enabled, is transparent.
type File interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Truncate(size int64) error
	Sync() error
	Close() error
	Path() string
}

// NormalFile is a plain file.
type NormalFile struct {
	f    *os.File
	path string
}

// CreateFile creates a new data file, pre-sized to initialSize.
func CreateFile(path string, extraFlags int, createMode fs.FileMode, initialSize int64) (*NormalFile, error) {
	flags := os.O_CREATE | os.O_RDWR | syscall.O_CLOEXEC | extraFlags
	f, err := os.OpenFile(path, flags, createMode)
	if err != nil {
		return nil, err
	}
	if initialSize > 0 {
		if err := f.Truncate(initialSize); err != nil {
			f.Close()
			return nil, err
		}
	}
	return &NormalFile{f: f, path: path}, nil
}

// OpenFile opens an existing data file.
func OpenFile(path string, extraFlags int) (*NormalFile, error) {
	flags := os.O_RDWR | syscall.O_CLOEXEC | extraFlags
	f, err := os.OpenFile(path, flags, 0)
	if err != nil {
		return nil, err
	}
	return &NormalFile{f: f, path: path}, nil
}

func (nf *NormalFile) ReadAt(p []byte, off int64) (int, error)  { return nf.f.ReadAt(p, off) }
func (nf *NormalFile) WriteAt(p []byte, off int64) (int, error) { return nf.f.WriteAt(p, off) }
func (nf *NormalFile) Truncate(size int64) error                { return nf.f.Truncate(size) }
func (nf *NormalFile) Sync() error                              { return nf.f.Sync() }
func (nf *NormalFile) Close() error                             { return nf.f.Close() }
func (nf *NormalFile) Path() string                             { return nf.path }

// EncryptedFile stores ciphertext produced by XORing plaintext with a
// keystream derived from the block number, so reads and writes at arbitrary
// offsets need no neighboring data. The block cipher runs only in the
// forward direction.
type EncryptedFile struct {
	NormalFile
	block cipher.Block
}

// CreateEncryptedFile creates a new encrypted data file.
func CreateEncryptedFile(
	path string, extraFlags int, createMode fs.FileMode, block cipher.Block, initialSize int64,
) (*EncryptedFile, error) {
	nf, err := CreateFile(path, extraFlags, createMode, initialSize)
	if err != nil {
		return nil, err
	}
	return &EncryptedFile{NormalFile: *nf, block: block}, nil
}

// OpenEncryptedFile opens an existing encrypted data file.
func OpenEncryptedFile(path string, extraFlags int, block cipher.Block) (*EncryptedFile, error) {
	nf, err := OpenFile(path, extraFlags)
	if err != nil {
		return nil, err
	}
	return &EncryptedFile{NormalFile: *nf, block: block}, nil
}

func (ef *EncryptedFile) ReadAt(p []byte, off int64) (int, error) {
	n, err := ef.NormalFile.ReadAt(p, off)
	if n > 0 {
		ef.xorKeyStream(p[:n], off)
	}
	return n, err
}

func (ef *EncryptedFile) WriteAt(p []byte, off int64) (int, error) {
	buf := make([]byte, len(p))
	copy(buf, p)
	ef.xorKeyStream(buf, off)
	return ef.NormalFile.WriteAt(buf, off)
}

func (ef *EncryptedFile) xorKeyStream(p []byte, off int64) {
	bs := int64(ef.block.BlockSize())
	var ctr, ks [16]byte
	blockNo := off / bs
	skip := int(off % bs)
	for i := 0; i < len(p); {
		binary.BigEndian.PutUint64(ctr[8:], uint64(blockNo))
		ef.block.Encrypt(ks[:bs], ctr[:bs])
		for j := skip; j < int(bs) && i < len(p); j++ {
			p[i] ^= ks[j]
			i++
		}
		skip = 0
		blockNo++
	}
}
