package emulation

import (
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v2"
)

// FileConfig is the on-disk lab configuration.
type FileConfig struct {
	// Fallback lets adapters fall back to loopback alternates when a
	// desired address cannot be bound.
	Fallback bool `yaml:"fallback"`

	// Advertise publishes devices over mDNS/DNS-SD.
	Advertise bool `yaml:"advertise"`

	// Devices maps a device name (switcher, encoder, recorder) to its
	// desired listen address. Missing devices use defaults.
	Devices map[string]DeviceFileConfig `yaml:"devices"`
}

// DeviceFileConfig is the desired listen address for one device.
type DeviceFileConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// knownDevices are the device names accepted in the devices map.
var knownDevices = map[string]bool{
	DeviceSwitcher: true,
	DeviceEncoder:  true,
	DeviceRecorder: true,
}

// Validate checks the configuration for invalid device names and ports.
func (c *FileConfig) Validate() error {
	for name, dev := range c.Devices {
		if !knownDevices[name] {
			return fmt.Errorf("emulation: unknown device %q in config", name)
		}
		if dev.Port < 0 || dev.Port > 65535 {
			return fmt.Errorf("emulation: invalid port %d for device %q", dev.Port, name)
		}
	}
	return nil
}

// LoadConfig reads and validates a YAML lab configuration file.
func LoadConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("emulation: reading config: %w", err)
	}

	var cfg FileConfig
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("emulation: parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Apply copies the file configuration onto a manager Config. Only fields
// present in the file are set.
func (c *FileConfig) Apply(cfg *Config) {
	cfg.FallbackAllowed = c.Fallback
	cfg.Advertise = c.Advertise

	for name, dev := range c.Devices {
		var target *Desired
		switch name {
		case DeviceSwitcher:
			target = &cfg.Endpoints.Switcher
		case DeviceEncoder:
			target = &cfg.Endpoints.Encoder
		case DeviceRecorder:
			target = &cfg.Endpoints.Recorder
		default:
			continue
		}
		if dev.Address != "" {
			target.Address = dev.Address
		}
		if dev.Port != 0 {
			target.Port = dev.Port
		}
	}
}
