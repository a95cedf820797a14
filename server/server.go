package server

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/cubefs/cubefs/blobstore/util/log"

	"github.com/govindnetworks/siodb/config"
	"github.com/govindnetworks/siodb/iomgr"
	"github.com/govindnetworks/siodb/proto"
	"github.com/govindnetworks/siodb/util"
)

// IOMgrInitializationCheckPeriod is how often the server re-checks the IO
// manager readiness flag during startup.
const IOMgrInitializationCheckPeriod = 500 * time.Millisecond

const instanceLockFileName = "siodb.lock"

// InstanceLock is the advisory lock preventing concurrent startup of the
// same instance.
type InstanceLock struct {
	f *os.File
}

// AcquireInstanceLock takes the instance initialization lock. It fails when
// another server process already holds it.
func AcquireInstanceLock(dataDir string) (*InstanceLock, error) {
	if err := os.MkdirAll(dataDir, 0o770); err != nil {
		return nil, fmt.Errorf("cannot create instance data directory '%s': %w", dataDir, err)
	}
	path := util.ConstructPath(dataDir, instanceLockFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|syscall.O_CLOEXEC, 0o660)
	if err != nil {
		return nil, fmt.Errorf("cannot open instance lock file '%s': %w", path, err)
	}
	lock := &syscall.Flock_t{Type: syscall.F_WRLCK, Whence: io.SeekStart}
	if err := syscall.FcntlFlock(f.Fd(), syscall.F_SETLK, lock); err != nil {
		f.Close()
		return nil, fmt.Errorf("instance appears to be already running: %w", err)
	}
	return &InstanceLock{f: f}, nil
}

// Release drops the lock.
func (l *InstanceLock) Release() {
	l.f.Close()
}

// WaitForIOMgr blocks until the IO manager readiness flag appears. The wait
// is open-ended, bounded only by the IO manager's liveness as reported by
// alive.
func WaitForIOMgr(dataDir string, alive func() bool) error {
	flagPath := iomgr.InitializationFlagFilePath(dataDir)
	for {
		if _, err := os.Stat(flagPath); err == nil {
			return nil
		}
		if !alive() {
			return fmt.Errorf("iomgr exited unexpectedly")
		}
		time.Sleep(IOMgrInitializationCheckPeriod)
	}
}

// Server is the front-end connection server: it accepts client connections
// and relays engine requests to the IO manager.
type Server struct {
	options   *config.InstanceOptions
	iomgrAddr string
	listener  net.Listener
}

// NewServer prepares a connection server against the given IO manager port.
func NewServer(options *config.InstanceOptions) *Server {
	return &Server{
		options:   options,
		iomgrAddr: fmt.Sprintf("127.0.0.1:%d", options.IOManager.IPv4Port),
	}
}

// Listen binds the user connection port.
func (s *Server) Listen() (net.Listener, error) {
	addr := fmt.Sprintf(":%d", s.options.General.IPv4Port)
	ln, err := net.Listen("tcp4", addr)
	if err != nil {
		return nil, err
	}
	s.listener = ln
	return ln, nil
}

// Serve accepts client connections until the listener closes.
func (s *Server) Serve(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go s.handleConn(conn)
	}
}

// handleConn relays request/response pairs between a client and the IO
// manager over a dedicated connection.
func (s *Server) handleConn(clientConn net.Conn) {
	defer clientConn.Close()

	iomgrConn, err := net.Dial("tcp4", s.iomgrAddr)
	if err != nil {
		log.Errorf("server: cannot connect to iomgr at %s: %v", s.iomgrAddr, err)
		return
	}
	defer iomgrConn.Close()

	clientReader := bufio.NewReader(clientConn)
	iomgrReader := bufio.NewReader(iomgrConn)
	for {
		request := &proto.DatabaseEngineRequest{}
		if err := proto.ReadMessage(clientReader, request); err != nil {
			if err != io.EOF {
				log.Warnf("server: read client request failed: %v", err)
			}
			return
		}
		if err := proto.WriteMessage(iomgrConn, request); err != nil {
			log.Warnf("server: forward request failed: %v", err)
			return
		}
		response := &proto.DatabaseEngineResponse{}
		if err := proto.ReadMessage(iomgrReader, response); err != nil {
			log.Warnf("server: read iomgr response failed: %v", err)
			return
		}
		if err := proto.WriteMessage(clientConn, response); err != nil {
			log.Warnf("server: write client response failed: %v", err)
			return
		}
	}
}

// Stop closes the user listener.
func (s *Server) Stop() {
	if s.listener != nil {
		s.listener.Close()
	}
}
