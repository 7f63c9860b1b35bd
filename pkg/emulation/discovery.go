package emulation

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/grandcat/zeroconf"
	"github.com/pion/logging"
)

// DefaultDomain is the mDNS domain services are registered under.
const DefaultDomain = "local."

// Advertiser errors.
var (
	ErrAdvertiserClosed  = errors.New("emulation: advertiser closed")
	ErrAlreadyAdvertised = errors.New("emulation: service already advertised")
)

// MDNSServer is the interface for an active mDNS registration.
// This allows for dependency injection in tests.
type MDNSServer interface {
	// Shutdown stops the server.
	Shutdown()
}

// MDNSServerFactory creates MDNSServer instances.
type MDNSServerFactory interface {
	// Register creates a new mDNS server for the given service.
	Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error)
}

// zeroconfServerFactory is the production implementation using grandcat/zeroconf.
type zeroconfServerFactory struct{}

func (z *zeroconfServerFactory) Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error) {
	return zeroconf.Register(instance, service, domain, port, txt, ifaces)
}

// AdvertiserConfig holds configuration for the Advertiser.
type AdvertiserConfig struct {
	// Interfaces specifies which network interfaces to advertise on.
	// If nil, all interfaces are used.
	Interfaces []net.Interface

	// ServerFactory is the factory for creating mDNS servers.
	// If nil, the default zeroconf factory is used.
	ServerFactory MDNSServerFactory

	// LoggerFactory for creating loggers.
	LoggerFactory logging.LoggerFactory
}

// Advertiser publishes DNS-SD service instances for the emulated devices.
type Advertiser struct {
	config  AdvertiserConfig
	factory MDNSServerFactory
	log     logging.LeveledLogger

	mu       sync.Mutex
	services map[string]MDNSServer
	closed   bool
}

// NewAdvertiser creates a new Advertiser with the given configuration.
func NewAdvertiser(config AdvertiserConfig) (*Advertiser, error) {
	factory := config.ServerFactory
	if factory == nil {
		factory = &zeroconfServerFactory{}
	}

	a := &Advertiser{
		config:   config,
		factory:  factory,
		services: make(map[string]MDNSServer),
	}

	if config.LoggerFactory != nil {
		a.log = config.LoggerFactory.NewLogger("discovery")
	}

	return a, nil
}

// Advertise registers one service instance. Each service type can only be
// advertised once per Advertiser.
func (a *Advertiser) Advertise(instance, service string, port int, txt []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrAdvertiserClosed
	}

	if _, exists := a.services[service]; exists {
		return ErrAlreadyAdvertised
	}

	if a.log != nil {
		a.log.Debugf("Registering mDNS service: instance=%s service=%s domain=%s port=%d",
			instance, service, DefaultDomain, port)
	}

	server, err := a.factory.Register(instance, service, DefaultDomain, port, txt, a.config.Interfaces)
	if err != nil {
		return fmt.Errorf("advertiser: mDNS registration failed for %s: %w", service, err)
	}

	if a.log != nil {
		a.log.Infof("mDNS registration successful for %s", service)
	}

	a.services[service] = server
	return nil
}

// IsAdvertising returns true if the given service type is currently published.
func (a *Advertiser) IsAdvertising(service string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, exists := a.services[service]
	return exists
}

// Shutdown stops all registrations and closes the advertiser.
func (a *Advertiser) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}

	for _, server := range a.services {
		server.Shutdown()
	}
	a.services = nil
	a.closed = true
}
