package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/govindnetworks/siodb/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validConfig = `
ipv4_port = 50000
data_dir = /var/lib/siodb/test/data/
log_channels = file

log.file.type = file
log.file.destination = /var/log/siodb/test
log.file.max_file_size = 10m
log.file.log_file_expiration_timeout = 1d
log.file.severity = info

iomgr.ipv4_port = 50001
iomgr.worker_thread_number = 2
iomgr.writer_thread_number = 1
`

func TestLoadValidConfig(t *testing.T) {
	options, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	require.Equal(t, 50000, options.General.IPv4Port)
	require.Equal(t, "/var/lib/siodb/test/data", options.General.DataDir)
	require.Equal(t, 50001, options.IOManager.IPv4Port)
	require.Equal(t, 2, options.IOManager.WorkerThreadNumber)
	require.Equal(t, 1, options.IOManager.WriterThreadNumber)
	require.Equal(t, DefaultTableCacheCapacity, options.IOManager.TableCacheCapacity)
	require.Equal(t, "aes128", options.Encryption.DefaultCipherID)
	require.Equal(t, "aes128", options.Encryption.SystemDbCipherID)

	require.Len(t, options.LogChannels, 1)
	channel := options.LogChannels[0]
	require.Equal(t, LogChannelFile, channel.Type)
	require.Equal(t, int64(10)<<20, channel.MaxLogFileSize)
	require.Equal(t, int64(86400), channel.LogFileExpirationTimeout)
	require.Equal(t, "info", channel.Severity)
}

func TestBothPortsDisabledRejected(t *testing.T) {
	cfg := `
ipv4_port = 0
ipv6_port = 0
data_dir = /tmp/siodb
log_channels = console
log.console.type = console
log.console.destination = stdout
iomgr.ipv4_port = 50001
`
	_, err := Load(writeConfig(t, cfg))
	require.Error(t, err)
	require.True(t, errors.HasCode(err, errors.CodeInvalidConfigurationOption))
}

func TestPortOutOfRangeRejected(t *testing.T) {
	cfg := `
ipv4_port = 65536
data_dir = /tmp/siodb
log_channels = console
log.console.type = console
log.console.destination = stdout
iomgr.ipv4_port = 50001
`
	_, err := Load(writeConfig(t, cfg))
	require.Error(t, err)
	require.True(t, errors.HasCode(err, errors.CodeInvalidConfigurationOption))
}

func TestIOMgrPortCollisionRejected(t *testing.T) {
	cfg := `
ipv4_port = 50000
data_dir = /tmp/siodb
log_channels = console
log.console.type = console
log.console.destination = stdout
iomgr.ipv4_port = 50000
`
	_, err := Load(writeConfig(t, cfg))
	require.Error(t, err)
	require.True(t, errors.HasCode(err, errors.CodeInvalidConfigurationOption))
	require.Contains(t, err.Error(), "same IPv4 port")
}

func TestMissingDataDirRejected(t *testing.T) {
	cfg := `
ipv4_port = 50000
log_channels = console
log.console.type = console
log.console.destination = stdout
iomgr.ipv4_port = 50001
`
	_, err := Load(writeConfig(t, cfg))
	require.Error(t, err)
	require.Contains(t, err.Error(), "data directory")
}

func TestTooSmallCacheCapacityRejected(t *testing.T) {
	cfg := `
ipv4_port = 50000
data_dir = /tmp/siodb
log_channels = console
log.console.type = console
log.console.destination = stdout
iomgr.ipv4_port = 50001
iomgr.table_cache_capacity = 1
`
	_, err := Load(writeConfig(t, cfg))
	require.Error(t, err)
	require.Contains(t, err.Error(), "table cache capacity")
}

func TestClientEncryptionRequiresCertAndKey(t *testing.T) {
	cfg := `
ipv4_port = 50000
data_dir = /tmp/siodb
log_channels = console
log.console.type = console
log.console.destination = stdout
iomgr.ipv4_port = 50001
client.enable_encryption = yes
`
	_, err := Load(writeConfig(t, cfg))
	require.Error(t, err)
	require.Contains(t, err.Error(), "certificate")
}

func TestDuplicateLogChannelRejected(t *testing.T) {
	cfg := `
ipv4_port = 50000
data_dir = /tmp/siodb
log_channels = console, console
log.console.type = console
log.console.destination = stdout
iomgr.ipv4_port = 50001
`
	_, err := Load(writeConfig(t, cfg))
	require.Error(t, err)
	require.Contains(t, err.Error(), "duplicate log channel")
}

func TestParseSizeSuffixes(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want int64
	}{
		{"1k", 1 << 10},
		{"5M", 5 << 20},
		{"2g", 2 << 30},
		{"7", 7 << 20},
	} {
		got, err := parseSizeOption(tc.in, 0, maxMaxLogFileSize)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}
	_, err := parseSizeOption("0", 0, maxMaxLogFileSize)
	require.Error(t, err)
}

func TestParseTimeSuffixes(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want int64
	}{
		{"30s", 30},
		{"5m", 300},
		{"2h", 7200},
		{"1d", 86400},
		{"1w", 604800},
		{"3", 3 * 86400},
	} {
		got, err := parseTimeOption(tc.in, 0, maxLogFileExpirationTimeout)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}
}
