// Package emulation composes the device-protocol adapters into one lab that
// starts, stops and reports status as a unit.
package emulation

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pion/logging"

	"github.com/studiokit/devicelab/pkg/devicemodel"
	"github.com/studiokit/devicelab/pkg/encoder"
	"github.com/studiokit/devicelab/pkg/endpoint"
	"github.com/studiokit/devicelab/pkg/recorder"
	"github.com/studiokit/devicelab/pkg/switcher"
)

// Manager errors.
var (
	ErrAlreadyStarted = errors.New("emulation: already started")
)

// Default device ports, matching the hardware being emulated.
const (
	DefaultSwitcherPort = 9910
	DefaultEncoderPort  = 4455
	DefaultRecorderPort = 9993
)

// DefaultAddress is the default listen address for all devices.
const DefaultAddress = "127.0.0.1"

// Device names used in status reports and mDNS instances.
const (
	DeviceSwitcher = "switcher"
	DeviceEncoder  = "encoder"
	DeviceRecorder = "recorder"
)

// deviceAdapter is the uniform lifecycle every protocol adapter exposes.
type deviceAdapter interface {
	Start(desired endpoint.Endpoint, fallbackAllowed bool) (endpoint.Endpoint, error)
	Stop() error
	Status() (endpoint.Endpoint, bool)
}

// Desired is a requested listen address for one device.
type Desired struct {
	Address string
	Port    int
}

// Endpoints holds the desired listen addresses per device.
type Endpoints struct {
	Switcher Desired
	Encoder  Desired
	Recorder Desired
}

// Config configures the emulation manager.
type Config struct {
	// Device models. Nil fields get fresh in-memory models.
	Switcher devicemodel.Switcher
	Encoder  devicemodel.Encoder
	Recorder devicemodel.Recorder

	// Endpoints are the desired listen addresses. Zero fields use the
	// default address and the device's well-known port.
	Endpoints Endpoints

	// FallbackAllowed lets adapters fall back to loopback alternates when
	// a desired address cannot be bound.
	FallbackAllowed bool

	// Advertise publishes each device over mDNS/DNS-SD after start.
	Advertise bool

	// AdvertiserFactory overrides the mDNS backend for tests.
	AdvertiserFactory MDNSServerFactory

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// applyDefaults fills in default models and endpoints.
func (c *Config) applyDefaults() {
	if c.Switcher == nil {
		c.Switcher = devicemodel.NewMemorySwitcher()
	}
	if c.Encoder == nil {
		c.Encoder = devicemodel.NewMemoryEncoder()
	}
	if c.Recorder == nil {
		c.Recorder = devicemodel.NewMemoryRecorder()
	}
	applyEndpointDefaults(&c.Endpoints.Switcher, DefaultSwitcherPort)
	applyEndpointDefaults(&c.Endpoints.Encoder, DefaultEncoderPort)
	applyEndpointDefaults(&c.Endpoints.Recorder, DefaultRecorderPort)
}

// applyEndpointDefaults fills a fully unset Desired with the default
// address and the device's well-known port. A set address with port 0
// requests an ephemeral port and is left alone.
func applyEndpointDefaults(d *Desired, port int) {
	if d.Address == "" && d.Port == 0 {
		d.Address = DefaultAddress
		d.Port = port
	} else if d.Address == "" {
		d.Address = DefaultAddress
	}
}

// DeviceStatus reports one adapter's bound endpoint.
type DeviceStatus struct {
	Name         string
	Endpoint     endpoint.Endpoint
	UsedFallback bool
}

// Status is the aggregate state of the lab.
type Status struct {
	Running bool
	Devices []DeviceStatus

	// UsedFallback is true when any device fell back from its desired
	// endpoint. Degraded mode, not a failure.
	UsedFallback bool
}

// device pairs an adapter with its desired endpoint for ordered start.
type device struct {
	name     string
	adapter  deviceAdapter
	desired  endpoint.Endpoint
	mdnsType string
	bound    endpoint.Endpoint
	fellBack bool
}

// Manager owns the three protocol adapters and their shared lifecycle.
type Manager struct {
	config Config
	log    logging.LeveledLogger

	mu         sync.Mutex
	devices    []*device
	advertiser *Advertiser
	started    bool
	stopped    bool
}

// NewManager creates a manager and its adapters.
func NewManager(config Config) (*Manager, error) {
	config.applyDefaults()

	m := &Manager{config: config}
	if config.LoggerFactory != nil {
		m.log = config.LoggerFactory.NewLogger("emulation")
	}

	sw, err := switcher.New(switcher.Config{
		Model:         config.Switcher,
		LoggerFactory: config.LoggerFactory,
	})
	if err != nil {
		return nil, fmt.Errorf("creating switcher adapter: %w", err)
	}

	enc, err := encoder.New(encoder.Config{
		Model:         config.Encoder,
		LoggerFactory: config.LoggerFactory,
	})
	if err != nil {
		return nil, fmt.Errorf("creating encoder adapter: %w", err)
	}

	rec, err := recorder.New(recorder.Config{
		Model:         config.Recorder,
		LoggerFactory: config.LoggerFactory,
	})
	if err != nil {
		return nil, fmt.Errorf("creating recorder adapter: %w", err)
	}

	m.devices = []*device{
		{
			name:     DeviceSwitcher,
			adapter:  sw,
			mdnsType: "_switcher._udp",
			desired: endpoint.Endpoint{
				Transport: endpoint.TransportDatagram,
				Address:   config.Endpoints.Switcher.Address,
				Port:      config.Endpoints.Switcher.Port,
			},
		},
		{
			name:     DeviceEncoder,
			adapter:  enc,
			mdnsType: "_encoder._tcp",
			desired: endpoint.Endpoint{
				Transport: endpoint.TransportStream,
				Address:   config.Endpoints.Encoder.Address,
				Port:      config.Endpoints.Encoder.Port,
			},
		},
		{
			name:     DeviceRecorder,
			adapter:  rec,
			mdnsType: "_recorder._tcp",
			desired: endpoint.Endpoint{
				Transport: endpoint.TransportStream,
				Address:   config.Endpoints.Recorder.Address,
				Port:      config.Endpoints.Recorder.Port,
			},
		},
	}

	return m, nil
}

// Start starts every adapter. If any fails, everything already started is
// torn down and the error returned.
func (m *Manager) Start() error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.mu.Unlock()

	for i, dev := range m.devices {
		bound, err := dev.adapter.Start(dev.desired, m.config.FallbackAllowed)
		if err != nil {
			for j := i - 1; j >= 0; j-- {
				m.devices[j].adapter.Stop()
			}
			m.mu.Lock()
			m.started = false
			m.mu.Unlock()
			return fmt.Errorf("starting %s adapter: %w", dev.name, err)
		}

		_, fellBack := dev.adapter.Status()
		m.mu.Lock()
		dev.bound = bound
		dev.fellBack = fellBack
		m.mu.Unlock()

		if m.log != nil {
			m.log.Infof("%s emulation running on %s", dev.name, bound)
		}
	}

	if m.config.Advertise {
		if err := m.advertise(); err != nil {
			// Discovery is best-effort; the lab stays usable without it.
			if m.log != nil {
				m.log.Warnf("mDNS advertising failed: %v", err)
			}
		}
	}

	return nil
}

// advertise registers one mDNS instance per device.
func (m *Manager) advertise() error {
	ad, err := NewAdvertiser(AdvertiserConfig{
		ServerFactory: m.config.AdvertiserFactory,
		LoggerFactory: m.config.LoggerFactory,
	})
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.advertiser = ad
	devices := m.devices
	m.mu.Unlock()

	var errs error
	for _, dev := range devices {
		err := ad.Advertise(fmt.Sprintf("Lab %s", dev.name), dev.mdnsType, dev.bound.Port, []string{
			"txtvers=1",
			fmt.Sprintf("device=%s", dev.name),
		})
		if err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs
}

// Stop stops every adapter and the advertiser, aggregating errors.
// Idempotent.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.started || m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	ad := m.advertiser
	m.mu.Unlock()

	if ad != nil {
		ad.Shutdown()
	}

	var errs error
	for _, dev := range m.devices {
		if err := dev.adapter.Stop(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("stopping %s adapter: %w", dev.name, err))
		}
	}
	return errs
}

// Status reports the bound endpoints and the aggregate fallback flag.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{Running: m.started && !m.stopped}
	for _, dev := range m.devices {
		st.Devices = append(st.Devices, DeviceStatus{
			Name:         dev.name,
			Endpoint:     dev.bound,
			UsedFallback: dev.fellBack,
		})
		if dev.fellBack {
			st.UsedFallback = true
		}
	}
	return st
}
