package dbengine

import (
	"encoding/binary"
	"os"
	"syscall"
	"unsafe"

	"github.com/govindnetworks/siodb/proto"
)

// DatabaseMetadata is a fixed-size record memory-mapped at the root of each
// database's data directory. The layout is little-endian and versioned;
// the mapping size is a constant of the format.
//
//	offset 0  uint32 metadata version
//	offset 4  uint32 super-user id
//	offset 8  uint64 last transaction id
//	offset 16 uint32 schema version
const (
	databaseMetadataVersion     = 1
	databaseMetadataMappingSize = 4096

	metadataOffVersion       = 0
	metadataOffSuperUserID   = 4
	metadataOffLastTxnID     = 8
	metadataOffSchemaVersion = 16
)

type DatabaseMetadata struct {
	data []byte
}

func (m *DatabaseMetadata) Version() uint32 {
	return binary.LittleEndian.Uint32(m.data[metadataOffVersion:])
}

func (m *DatabaseMetadata) SuperUserID() proto.UserID {
	return binary.LittleEndian.Uint32(m.data[metadataOffSuperUserID:])
}

func (m *DatabaseMetadata) LastTransactionID() proto.TransactionID {
	return binary.LittleEndian.Uint64(m.data[metadataOffLastTxnID:])
}

func (m *DatabaseMetadata) SetLastTransactionID(id proto.TransactionID) {
	binary.LittleEndian.PutUint64(m.data[metadataOffLastTxnID:], id)
}

func (m *DatabaseMetadata) SchemaVersion() uint32 {
	return binary.LittleEndian.Uint32(m.data[metadataOffSchemaVersion:])
}

func (m *DatabaseMetadata) init(superUserID proto.UserID) {
	binary.LittleEndian.PutUint32(m.data[metadataOffVersion:], databaseMetadataVersion)
	binary.LittleEndian.PutUint32(m.data[metadataOffSuperUserID:], superUserID)
	binary.LittleEndian.PutUint64(m.data[metadataOffLastTxnID:], 0)
	binary.LittleEndian.PutUint32(m.data[metadataOffSchemaVersion:], 1)
}

// MemoryMappedFile owns the file descriptor and the mapping of a metadata
// record. The mapping is released when the owning database closes.
type MemoryMappedFile struct {
	f    *os.File
	data []byte
	meta DatabaseMetadata
}

func (m *MemoryMappedFile) Metadata() *DatabaseMetadata {
	return &m.meta
}

func (m *MemoryMappedFile) Sync() error {
	_, _, errno := syscall.Syscall(syscall.SYS_MSYNC,
		uintptr(unsafe.Pointer(&m.data[0])), uintptr(len(m.data)), syscall.MS_SYNC)
	if errno != 0 {
		return errno
	}
	return nil
}

func (m *MemoryMappedFile) Close() error {
	if m.data != nil {
		if err := syscall.Munmap(m.data); err != nil {
			m.f.Close()
			return err
		}
		m.data = nil
	}
	return m.f.Close()
}

func protFromOpenFlags(flags int) int {
	prot := syscall.PROT_READ
	if flags&os.O_RDWR != 0 || flags&os.O_WRONLY != 0 {
		prot |= syscall.PROT_WRITE
	}
	return prot
}

// createMetadataMapping creates the metadata file, writes the initial record
// and maps it.
func createMetadataMapping(path string, superUserID proto.UserID) (*MemoryMappedFile, error) {
	flags := os.O_CREATE | os.O_RDWR | syscall.O_CLOEXEC
	f, err := os.OpenFile(path, flags, 0o660)
	if err != nil {
		return nil, err
	}

	initial := make([]byte, databaseMetadataMappingSize)
	tmp := DatabaseMetadata{data: initial}
	tmp.init(superUserID)
	if _, err := f.WriteAt(initial, 0); err != nil {
		f.Close()
		return nil, err
	}

	return mapMetadataFile(f, flags)
}

// openMetadataMapping maps an existing metadata file.
func openMetadataMapping(path string) (*MemoryMappedFile, error) {
	flags := os.O_RDWR | syscall.O_CLOEXEC
	f, err := os.OpenFile(path, flags, 0)
	if err != nil {
		return nil, err
	}
	return mapMetadataFile(f, flags)
}

func mapMetadataFile(f *os.File, flags int) (*MemoryMappedFile, error) {
	data, err := syscall.Mmap(int(f.Fd()), 0, databaseMetadataMappingSize,
		protFromOpenFlags(flags), syscall.MAP_SHARED|syscall.MAP_POPULATE)
	if err != nil {
		f.Close()
		return nil, err
	}
	m := &MemoryMappedFile{f: f, data: data}
	m.meta.data = data
	return m, nil
}
