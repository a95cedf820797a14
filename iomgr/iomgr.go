package iomgr

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/cubefs/cubefs/blobstore/util/log"
	"github.com/cubefs/cubefs/blobstore/util/taskpool"

	"github.com/govindnetworks/siodb/config"
	sioerrors "github.com/govindnetworks/siodb/errors"
	"github.com/govindnetworks/siodb/iomgr/dbengine"
	"github.com/govindnetworks/siodb/proto"
	"github.com/govindnetworks/siodb/util"
)

// InitializationFlagFileName marks IO manager readiness; the connection
// server polls for it during startup.
const InitializationFlagFileName = "iomgr_initialized"

// InitializationFlagFilePath returns the IO manager readiness flag path for
// an instance data directory.
func InitializationFlagFilePath(dataDir string) string {
	return util.ConstructPath(dataDir, InitializationFlagFileName)
}

// Service is the IO manager: it owns the database engine instance and serves
// the length-prefixed protobuf protocol to the connection server.
type Service struct {
	options    *config.InstanceOptions
	instance   *dbengine.Instance
	workerPool taskpool.TaskPool
	writerPool taskpool.TaskPool

	mu       sync.Mutex
	listener net.Listener
	done     chan struct{}
}

// New opens or creates the database engine instance and prepares the worker
// pools.
func New(options *config.InstanceOptions) (*Service, error) {
	instance, err := dbengine.NewInstance(options)
	if err != nil {
		return nil, err
	}
	return &Service{
		options:    options,
		instance:   instance,
		workerPool: taskpool.New(options.IOManager.WorkerThreadNumber, options.IOManager.WorkerThreadNumber),
		writerPool: taskpool.New(options.IOManager.WriterThreadNumber, options.IOManager.WriterThreadNumber),
		done:       make(chan struct{}),
	}, nil
}

// Instance returns the database engine instance.
func (s *Service) Instance() *dbengine.Instance {
	return s.instance
}

// CreateInitializationFlagFile signals readiness to the connection server.
func (s *Service) CreateInitializationFlagFile() error {
	path := InitializationFlagFilePath(s.options.General.DataDir)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o660)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(time.Now().UTC().Format(time.RFC3339))
	return err
}

// RemoveInitializationFlagFile removes the readiness marker on shutdown.
func (s *Service) RemoveInitializationFlagFile() {
	_ = os.Remove(InitializationFlagFilePath(s.options.General.DataDir))
}

// Listen binds the IO manager port.
func (s *Service) Listen() (net.Listener, error) {
	addr := fmt.Sprintf("127.0.0.1:%d", s.options.IOManager.IPv4Port)
	ln, err := net.Listen("tcp4", addr)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	return ln, nil
}

// Serve accepts connections until the listener closes. Each connection is
// handled on the worker pool.
func (s *Service) Serve(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			log.Errorf("iomgr: accept failed: %v", err)
			return
		}
		s.workerPool.Run(func() {
			s.handleConn(conn)
		})
	}
}

func (s *Service) handleConn(conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)
	for {
		request := &proto.DatabaseEngineRequest{}
		if err := proto.ReadMessage(reader, request); err != nil {
			if err != io.EOF {
				log.Warnf("iomgr: read request failed: %v", err)
			}
			return
		}
		response := s.handleRequest(context.Background(), request)
		if err := proto.WriteMessage(conn, response); err != nil {
			log.Warnf("iomgr: write response failed: %v", err)
			return
		}
	}
}

func (s *Service) handleRequest(
	ctx context.Context, request *proto.DatabaseEngineRequest,
) *proto.DatabaseEngineResponse {
	span, _ := trace.StartSpanFromContext(ctx, "handleRequest")
	span.Debugf("request %d: %s", request.RequestID, request.Text)

	response := &proto.DatabaseEngineResponse{RequestID: request.RequestID, ResponseCount: 1}
	switch strings.ToUpper(strings.TrimSpace(request.Text)) {
	case "SHOW DATABASES":
		response.ColumnDescription = []*proto.ColumnDescription{
			{Name: "NAME", DataType: proto.ColumnDataTypeText},
			{Name: "UUID", DataType: proto.ColumnDataTypeText},
		}
		for _, rec := range s.instance.GetDatabaseRecordsOrderedByName() {
			response.FreetextMessages = append(response.FreetextMessages,
				fmt.Sprintf("%s\t%s", rec.Name, rec.UUID))
		}
	case "CHECK CONSISTENCY":
		if err := s.instance.CheckDataConsistency(); err != nil {
			response.Messages = append(response.Messages, statusMessage(err))
		} else {
			response.FreetextMessages = append(response.FreetextMessages, "OK")
		}
	default:
		response.Messages = append(response.Messages, &proto.StatusMessage{
			StatusCode: -1,
			Text:       fmt.Sprintf("request not supported: %s", request.Text),
		})
	}
	return response
}

func statusMessage(err error) *proto.StatusMessage {
	if e, ok := err.(*sioerrors.DatabaseError); ok {
		return &proto.StatusMessage{StatusCode: int32(e.Code), Text: e.Message}
	}
	return &proto.StatusMessage{StatusCode: -1, Text: err.Error()}
}

// Stop shuts the service down and closes every database.
func (s *Service) Stop() {
	close(s.done)
	s.mu.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	s.mu.Unlock()
	s.workerPool.Close()
	s.writerPool.Close()
	if err := s.instance.Close(); err != nil {
		log.Errorf("iomgr: close instance failed: %v", err)
	}
}
