package server

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/govindnetworks/siodb/iomgr"
)

func TestAcquireInstanceLock(t *testing.T) {
	dir := t.TempDir()
	lock, err := AcquireInstanceLock(dir)
	require.NoError(t, err)
	lock.Release()

	lock, err = AcquireInstanceLock(dir)
	require.NoError(t, err)
	lock.Release()
}

func TestWaitForIOMgrFlagAppears(t *testing.T) {
	dir := t.TempDir()
	flagPath := iomgr.InitializationFlagFilePath(dir)

	go func() {
		time.Sleep(50 * time.Millisecond)
		os.WriteFile(flagPath, []byte("ready"), 0o660)
	}()

	require.NoError(t, WaitForIOMgr(dir, func() bool { return true }))
}

func TestWaitForIOMgrDeadProcess(t *testing.T) {
	err := WaitForIOMgr(t.TempDir(), func() bool { return false })
	require.Error(t, err)
	require.Contains(t, err.Error(), "iomgr exited")
}
