package transport

import (
	"net"
	"sync"
	"time"

	"github.com/pion/transport/v3/test"
)

// Pipe provides bidirectional in-memory packet communication between two
// endpoints, for deterministic adapter tests without real sockets. Messages
// queued on either side are delivered by a background ticker.
type Pipe struct {
	bridge *test.Bridge

	mu     sync.Mutex
	closed bool
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// pipeTickInterval is how often queued messages are delivered.
const pipeTickInterval = time.Millisecond

// NewPipe creates a new bidirectional pipe with automatic delivery.
func NewPipe() *Pipe {
	p := &Pipe{
		bridge: test.NewBridge(),
		stopCh: make(chan struct{}),
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(pipeTickInterval)
		defer ticker.Stop()

		for {
			select {
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.bridge.Tick()
			}
		}
	}()

	return p
}

// Conn0 returns the connection for endpoint 0.
func (p *Pipe) Conn0() net.Conn {
	return p.bridge.GetConn0()
}

// Conn1 returns the connection for endpoint 1.
func (p *Pipe) Conn1() net.Conn {
	return p.bridge.GetConn1()
}

// Drain delivers all currently queued messages in both directions.
func (p *Pipe) Drain() {
	p.bridge.Process()
}

// Close stops delivery and closes both connections.
func (p *Pipe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.closed = true
	p.mu.Unlock()

	close(p.stopCh)
	p.wg.Wait()

	p.bridge.GetConn0().Close()
	p.bridge.GetConn1().Close()
	return nil
}
