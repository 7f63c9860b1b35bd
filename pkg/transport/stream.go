package transport

import (
	"net"
	"sync"

	"github.com/pion/logging"
)

// ConnHandler services one accepted connection. It runs on its own
// goroutine and should return when the connection is closed.
type ConnHandler func(conn net.Conn)

// Stream wraps a net.Listener with an accept loop that hands each
// connection to the configured handler. It tracks live connections so
// Stop can close them in order: stop accepting, close connections, wait.
type Stream struct {
	listener net.Listener
	handler  ConnHandler
	closeCh  chan struct{}
	wg       sync.WaitGroup
	log      logging.LeveledLogger

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}

	mu      sync.RWMutex
	started bool
	closed  bool
}

// StreamConfig configures the stream transport.
type StreamConfig struct {
	// Listener is the listener to serve. Required; adapters obtain it from
	// the endpoint allocator.
	Listener net.Listener

	// Handler services each accepted connection. Required.
	Handler ConnHandler

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// NewStream creates a new stream transport.
func NewStream(config StreamConfig) (*Stream, error) {
	if config.Handler == nil {
		return nil, ErrNoHandler
	}
	if config.Listener == nil {
		return nil, ErrNoSocket
	}

	s := &Stream{
		listener: config.Listener,
		handler:  config.Handler,
		closeCh:  make(chan struct{}),
		conns:    make(map[net.Conn]struct{}),
	}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("transport-tcp")
	}
	return s, nil
}

// Start begins accepting connections.
func (s *Stream) Start() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	if s.log != nil {
		s.log.Infof("starting stream transport on %s", s.listener.Addr())
	}

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Stop stops accepting, closes all live connections, then waits for the
// handlers to return.
func (s *Stream) Stop() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.closed = true
	s.mu.Unlock()

	if s.log != nil {
		s.log.Info("stopping stream transport")
	}

	close(s.closeCh)
	s.listener.Close()

	s.connsMu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.conns = make(map[net.Conn]struct{})
	s.connsMu.Unlock()

	s.wg.Wait()
	return nil
}

// LocalAddr returns the address the transport is listening on.
func (s *Stream) LocalAddr() net.Addr {
	return s.listener.Addr()
}

// ConnCount returns the number of live connections.
func (s *Stream) ConnCount() int {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	return len(s.conns)
}

func (s *Stream) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closeCh:
				return
			default:
				continue
			}
		}

		s.connsMu.Lock()
		s.conns[conn] = struct{}{}
		s.connsMu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				conn.Close()
				s.connsMu.Lock()
				delete(s.conns, conn)
				s.connsMu.Unlock()
			}()

			if s.log != nil {
				s.log.Debugf("connection from %v", conn.RemoteAddr())
			}
			s.handler(conn)
		}()
	}
}
