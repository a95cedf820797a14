package iomgr

import (
	"bufio"
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/govindnetworks/siodb/config"
	"github.com/govindnetworks/siodb/proto"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	options := &config.InstanceOptions{
		General: config.GeneralOptions{
			Name:    "test",
			DataDir: filepath.Join(t.TempDir(), "data"),
		},
		IOManager: config.IOManagerOptions{
			WorkerThreadNumber:    2,
			WriterThreadNumber:    1,
			BlockCacheCapacity:    config.MinBlockCacheCapacity,
			UserCacheCapacity:     10,
			DatabaseCacheCapacity: 10,
			TableCacheCapacity:    100,
		},
		Encryption: config.EncryptionOptions{
			DefaultCipherID:  "none",
			SystemDbCipherID: "none",
		},
	}
	s, err := New(options)
	require.NoError(t, err)
	t.Cleanup(s.Stop)
	return s
}

func TestServiceServesRequests(t *testing.T) {
	s := newTestService(t)

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	go s.Serve(ln)

	conn, err := net.Dial("tcp4", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	reader := bufio.NewReader(conn)

	require.NoError(t, proto.WriteMessage(conn, &proto.DatabaseEngineRequest{
		RequestID: 1,
		Text:      "SHOW DATABASES",
	}))
	response := &proto.DatabaseEngineResponse{}
	require.NoError(t, proto.ReadMessage(reader, response))
	require.Equal(t, uint64(1), response.RequestID)
	require.Empty(t, response.Messages)
	require.NotEmpty(t, response.FreetextMessages)
	require.Contains(t, response.FreetextMessages[0], "SYS")

	// unsupported requests produce a structured status message
	require.NoError(t, proto.WriteMessage(conn, &proto.DatabaseEngineRequest{
		RequestID: 2,
		Text:      "SELECT 1",
	}))
	response = &proto.DatabaseEngineResponse{}
	require.NoError(t, proto.ReadMessage(reader, response))
	require.Equal(t, uint64(2), response.RequestID)
	require.Len(t, response.Messages, 1)
	require.Equal(t, int32(-1), response.Messages[0].StatusCode)
}

func TestInitializationFlagFile(t *testing.T) {
	s := newTestService(t)
	require.NoError(t, s.CreateInitializationFlagFile())

	path := InitializationFlagFilePath(s.options.General.DataDir)
	require.FileExists(t, path)

	s.RemoveInitializationFlagFile()
	require.NoFileExists(t, path)
}
