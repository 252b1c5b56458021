package collector

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/soltixdb/sensorlog/internal/logging"
	"github.com/soltixdb/sensorlog/internal/logstore"
)

// maxLineBytes bounds a single reading line.
const maxLineBytes = 64 * 1024

// Sink receives decoded readings. Its result decides the ACK.
type Sink interface {
	HandleReading(ctx context.Context, e logstore.LogEntry) error
}

// ServerConfig configures a Server.
type ServerConfig struct {
	ReadTimeout time.Duration // Idle connections are closed after this
}

// ServerStats counts what the server has seen.
type ServerStats struct {
	Connections int64 `json:"connections"`
	Accepted    int64 `json:"accepted"`
	Rejected    int64 `json:"rejected"`
}

// Server accepts collector connections and hands readings to a Sink.
// Each connection is served by its own goroutine.
type Server struct {
	sink   Sink
	cfg    ServerConfig
	logger *logging.Logger
	now    func() time.Time

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool
	wg       sync.WaitGroup

	connections atomic.Int64
	accepted    atomic.Int64
	rejected    atomic.Int64
}

// NewServer creates a server feeding sink.
func NewServer(sink Sink, cfg ServerConfig, logger *logging.Logger) *Server {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = logging.Global()
	}
	return &Server{
		sink:   sink,
		cfg:    cfg,
		logger: logger.With("component", "collector_server"),
		now:    time.Now,
		conns:  make(map[net.Conn]struct{}),
	}
}

// ListenAndServe listens on addr and serves until ctx is done or Close is called.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done or Close is called. It returns nil
// on a requested shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = ln.Close()
		return net.ErrClosed
	}
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("Collector listening", "addr", ln.Addr().String())

	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() || errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return err
		}

		if !s.track(conn) {
			_ = conn.Close()
			continue
		}
		s.connections.Add(1)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.handleConn(ctx, conn)
		}()
	}
}

// Addr returns the listening address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close stops accepting and closes every open connection.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()
	return err
}

// Stats returns connection and reading counters.
func (s *Server) Stats() ServerStats {
	return ServerStats{
		Connections: s.connections.Load(),
		Accepted:    s.accepted.Load(),
		Rejected:    s.rejected.Load(),
	}
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	_ = conn.Close()
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	ctx = logging.WithSessionID(ctx, uuid.New().String())
	ctx = logging.WithRemoteAddr(ctx, conn.RemoteAddr().String())
	logger := s.logger.WithContext(ctx)
	logger.Debug("Client connected")

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
			return
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil && !s.isClosed() {
				var ne net.Error
				if errors.As(err, &ne) && ne.Timeout() {
					logger.Debug("Closing idle connection")
				} else {
					logger.Warn("Connection read failed", "error", err)
				}
			}
			logger.Debug("Client disconnected")
			return
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		err := s.handleLine(ctx, line)
		if err != nil {
			s.rejected.Add(1)
			logger.Warn("Rejected reading", "error", err)
		} else {
			s.accepted.Add(1)
		}

		if err := conn.SetWriteDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
			return
		}
		if _, err := conn.Write(encodeAck(err)); err != nil {
			logger.Warn("Failed to write ack", "error", err)
			return
		}
	}
}

func (s *Server) handleLine(ctx context.Context, line []byte) error {
	entry, err := decodeReading(line, s.now())
	if err != nil {
		return err
	}
	return s.sink.HandleReading(ctx, entry)
}
