package transport

import (
	"net"
	"sync"
	"time"

	"github.com/pion/logging"
)

// DatagramHandler is called for each received datagram. It runs on the
// transport's single read goroutine, so handlers for one transport are
// never invoked concurrently.
type DatagramHandler func(data []byte, peer net.Addr)

// Datagram wraps a net.PacketConn with a read loop that delivers each
// received datagram to the configured handler.
type Datagram struct {
	conn    net.PacketConn
	handler DatagramHandler
	closeCh chan struct{}
	wg      sync.WaitGroup
	log     logging.LeveledLogger

	mu      sync.RWMutex
	started bool
	closed  bool
}

// DatagramConfig configures the datagram transport.
type DatagramConfig struct {
	// Conn is the packet connection to serve. Required; adapters obtain it
	// from the endpoint allocator.
	Conn net.PacketConn

	// Handler is called for each received datagram. Required.
	Handler DatagramHandler

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// NewDatagram creates a new datagram transport.
func NewDatagram(config DatagramConfig) (*Datagram, error) {
	if config.Handler == nil {
		return nil, ErrNoHandler
	}
	if config.Conn == nil {
		return nil, ErrNoSocket
	}

	d := &Datagram{
		conn:    config.Conn,
		handler: config.Handler,
		closeCh: make(chan struct{}),
	}
	if config.LoggerFactory != nil {
		d.log = config.LoggerFactory.NewLogger("transport-udp")
	}
	return d, nil
}

// Start begins the read loop.
func (d *Datagram) Start() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	if d.started {
		d.mu.Unlock()
		return ErrAlreadyStarted
	}
	d.started = true
	d.mu.Unlock()

	if d.log != nil {
		d.log.Infof("starting datagram transport on %s", d.conn.LocalAddr())
	}

	d.wg.Add(1)
	go d.readLoop()

	return nil
}

// Stop closes the socket and waits for the read loop to exit.
func (d *Datagram) Stop() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	d.closed = true
	d.mu.Unlock()

	if d.log != nil {
		d.log.Info("stopping datagram transport")
	}

	close(d.closeCh)

	// Unblock any pending read
	d.conn.SetReadDeadline(time.Now())
	d.conn.Close()
	d.wg.Wait()

	return nil
}

// Send sends a datagram to the specified peer. Failures are logged and
// returned, but callers in the protocol adapters treat them as
// fire-and-forget.
func (d *Datagram) Send(data []byte, peer net.Addr) error {
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return ErrClosed
	}
	d.mu.RUnlock()

	if peer == nil {
		return ErrInvalidAddress
	}
	if len(data) > MaxDatagramSize {
		return ErrMessageTooLarge
	}

	_, err := d.conn.WriteTo(data, peer)
	if err != nil {
		if d.log != nil {
			d.log.Warnf("send to %v failed: %v", peer, err)
		}
		return err
	}
	return nil
}

// LocalAddr returns the local address the transport is listening on.
func (d *Datagram) LocalAddr() net.Addr {
	return d.conn.LocalAddr()
}

func (d *Datagram) readLoop() {
	defer d.wg.Done()

	buf := make([]byte, MaxDatagramSize)

	for {
		select {
		case <-d.closeCh:
			return
		default:
		}

		n, peer, err := d.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-d.closeCh:
				return
			default:
				if d.log != nil {
					d.log.Warnf("read error: %v", err)
				}
				continue
			}
		}

		if n == 0 {
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])

		if d.log != nil {
			d.log.Debugf("received %d bytes from %v", n, peer)
		}

		d.handler(data, peer)
	}
}
