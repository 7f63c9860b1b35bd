// Package endpoint allocates listening sockets with deterministic fallback.
//
// Every adapter obtains its listener through an Allocator so the whole lab
// degrades the same way when a preferred address is taken: first the exact
// desired address, then loopback on the same port, then loopback on a high
// alternate port. Callers surface fallback as a degraded-mode indicator,
// never a failure.
package endpoint

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"syscall"

	"github.com/pion/logging"
)

// FallbackAddress is the loopback address tried when the desired address
// cannot be bound.
const FallbackAddress = "127.0.0.1"

// FallbackPortOffset is added to the desired port for the last candidate.
const FallbackPortOffset = 10000

// Allocator errors.
var (
	// ErrNoCandidates is returned when the desired endpoint is invalid.
	ErrNoCandidates = errors.New("endpoint: no bind candidates")

	// ErrInvalidTransport is returned for an unknown transport type.
	ErrInvalidTransport = errors.New("endpoint: invalid transport")
)

// Transport identifies the listening socket type.
type Transport int

const (
	// TransportDatagram is a UDP packet socket.
	TransportDatagram Transport = iota + 1
	// TransportStream is a TCP listening socket.
	TransportStream
)

// String returns the string representation of the transport.
func (t Transport) String() string {
	switch t {
	case TransportDatagram:
		return "udp"
	case TransportStream:
		return "tcp"
	default:
		return "unknown"
	}
}

// IsValid returns true if the transport is a known type.
func (t Transport) IsValid() bool {
	return t == TransportDatagram || t == TransportStream
}

// Endpoint is a network address an adapter listens on.
type Endpoint struct {
	Transport Transport
	Address   string
	Port      int
}

// String returns a human-readable representation of the endpoint.
func (e Endpoint) String() string {
	return fmt.Sprintf("%s/%s", e.Transport, e.hostPort())
}

func (e Endpoint) hostPort() string {
	return net.JoinHostPort(e.Address, strconv.Itoa(e.Port))
}

// Binding is the result of a successful bind. Exactly one of PacketConn and
// Listener is set, matching the endpoint's transport.
type Binding struct {
	PacketConn net.PacketConn
	Listener   net.Listener

	// Endpoint is the address actually bound.
	Endpoint Endpoint

	// UsedFallback is true when Endpoint differs from the desired one.
	UsedFallback bool
}

// Close releases the bound socket.
func (b *Binding) Close() error {
	if b.PacketConn != nil {
		return b.PacketConn.Close()
	}
	if b.Listener != nil {
		return b.Listener.Close()
	}
	return nil
}

// Allocator binds endpoints with fallback. The listen functions are
// injectable for tests; the zero values use the net package.
type Allocator struct {
	log logging.LeveledLogger

	listenPacket func(network, address string) (net.PacketConn, error)
	listen       func(network, address string) (net.Listener, error)
}

// AllocatorConfig configures an Allocator.
type AllocatorConfig struct {
	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory

	// ListenPacket overrides net.ListenPacket for tests.
	ListenPacket func(network, address string) (net.PacketConn, error)

	// Listen overrides net.Listen for tests.
	Listen func(network, address string) (net.Listener, error)
}

// NewAllocator creates a new Allocator.
func NewAllocator(config AllocatorConfig) *Allocator {
	a := &Allocator{
		listenPacket: config.ListenPacket,
		listen:       config.Listen,
	}
	if config.LoggerFactory != nil {
		a.log = config.LoggerFactory.NewLogger("endpoint")
	}
	if a.listenPacket == nil {
		a.listenPacket = net.ListenPacket
	}
	if a.listen == nil {
		a.listen = net.Listen
	}
	return a
}

// Bind attempts to bind the desired endpoint, falling back to deterministic
// alternates when allowed. Address-in-use and address-unavailable errors
// advance to the next candidate; any other error aborts immediately. If
// every candidate fails, the last observed error is returned.
func (a *Allocator) Bind(desired Endpoint, fallbackAllowed bool) (*Binding, error) {
	if !desired.Transport.IsValid() {
		return nil, ErrInvalidTransport
	}

	cands := candidates(desired, fallbackAllowed)
	if len(cands) == 0 {
		return nil, ErrNoCandidates
	}

	var lastErr error
	for i, cand := range cands {
		binding, err := a.bindOne(cand)
		if err != nil {
			lastErr = err
			if !retryable(err) {
				if a.log != nil {
					a.log.Warnf("bind %s failed: %v", cand, err)
				}
				return nil, err
			}
			if a.log != nil {
				a.log.Debugf("bind %s unavailable, trying next candidate: %v", cand, err)
			}
			continue
		}

		binding.UsedFallback = i > 0
		if binding.UsedFallback && a.log != nil {
			a.log.Infof("fell back from %s to %s", desired, binding.Endpoint)
		}
		return binding, nil
	}

	return nil, lastErr
}

// bindOne attempts a single candidate.
func (a *Allocator) bindOne(cand Endpoint) (*Binding, error) {
	switch cand.Transport {
	case TransportDatagram:
		conn, err := a.listenPacket("udp", cand.hostPort())
		if err != nil {
			return nil, err
		}
		return &Binding{
			PacketConn: conn,
			Endpoint:   endpointFromAddr(cand, conn.LocalAddr()),
		}, nil
	case TransportStream:
		ln, err := a.listen("tcp", cand.hostPort())
		if err != nil {
			return nil, err
		}
		return &Binding{
			Listener: ln,
			Endpoint: endpointFromAddr(cand, ln.Addr()),
		}, nil
	default:
		return nil, ErrInvalidTransport
	}
}

// candidates returns the ordered bind attempts for a desired endpoint.
func candidates(desired Endpoint, fallbackAllowed bool) []Endpoint {
	out := []Endpoint{desired}
	if !fallbackAllowed {
		return out
	}
	out = append(out, Endpoint{
		Transport: desired.Transport,
		Address:   FallbackAddress,
		Port:      desired.Port,
	})
	out = append(out, Endpoint{
		Transport: desired.Transport,
		Address:   FallbackAddress,
		Port:      desired.Port + FallbackPortOffset,
	})
	return out
}

// retryable reports whether a bind error should advance to the next
// candidate rather than abort the chain.
func retryable(err error) bool {
	return errors.Is(err, syscall.EADDRINUSE) || errors.Is(err, syscall.EADDRNOTAVAIL)
}

// endpointFromAddr resolves the bound endpoint from the socket's local
// address, keeping the candidate as a fallback for unparseable forms.
func endpointFromAddr(cand Endpoint, addr net.Addr) Endpoint {
	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return cand
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return cand
	}
	return Endpoint{Transport: cand.Transport, Address: host, Port: port}
}
