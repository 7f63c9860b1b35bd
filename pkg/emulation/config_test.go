package emulation

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lab.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfigFile(t, `
fallback: true
advertise: true
devices:
  switcher:
    address: 10.0.0.5
    port: 9910
  recorder:
    port: 19993
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if !cfg.Fallback {
		t.Error("Fallback = false, want true")
	}
	if !cfg.Advertise {
		t.Error("Advertise = false, want true")
	}
	if got := cfg.Devices["switcher"]; got.Address != "10.0.0.5" || got.Port != 9910 {
		t.Errorf("switcher = %+v, want {10.0.0.5 9910}", got)
	}
	if got := cfg.Devices["recorder"]; got.Address != "" || got.Port != 19993 {
		t.Errorf("recorder = %+v, want { 19993}", got)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
			t.Fatal("LoadConfig() error = nil, want error")
		}
	})

	t.Run("unknown device", func(t *testing.T) {
		path := writeConfigFile(t, "devices:\n  projector:\n    port: 1\n")
		_, err := LoadConfig(path)
		if err == nil || !strings.Contains(err.Error(), "unknown device") {
			t.Fatalf("LoadConfig() error = %v, want unknown device error", err)
		}
	})

	t.Run("invalid port", func(t *testing.T) {
		path := writeConfigFile(t, "devices:\n  encoder:\n    port: 70000\n")
		_, err := LoadConfig(path)
		if err == nil || !strings.Contains(err.Error(), "invalid port") {
			t.Fatalf("LoadConfig() error = %v, want invalid port error", err)
		}
	})

	t.Run("unknown field", func(t *testing.T) {
		path := writeConfigFile(t, "fallbck: true\n")
		if _, err := LoadConfig(path); err == nil {
			t.Fatal("LoadConfig() error = nil, want strict parse error")
		}
	})
}

func TestFileConfigApply(t *testing.T) {
	file := &FileConfig{
		Fallback:  true,
		Advertise: true,
		Devices: map[string]DeviceFileConfig{
			DeviceSwitcher: {Address: "10.0.0.5"},
			DeviceEncoder:  {Port: 14455},
		},
	}

	cfg := Config{}
	cfg.applyDefaults()
	file.Apply(&cfg)

	if !cfg.FallbackAllowed {
		t.Error("FallbackAllowed = false, want true")
	}
	if !cfg.Advertise {
		t.Error("Advertise = false, want true")
	}
	if cfg.Endpoints.Switcher.Address != "10.0.0.5" {
		t.Errorf("switcher address = %q, want 10.0.0.5", cfg.Endpoints.Switcher.Address)
	}
	if cfg.Endpoints.Switcher.Port != DefaultSwitcherPort {
		t.Errorf("switcher port = %d, want %d", cfg.Endpoints.Switcher.Port, DefaultSwitcherPort)
	}
	if cfg.Endpoints.Encoder.Port != 14455 {
		t.Errorf("encoder port = %d, want 14455", cfg.Endpoints.Encoder.Port)
	}
	if cfg.Endpoints.Recorder.Port != DefaultRecorderPort {
		t.Errorf("recorder port = %d, want %d", cfg.Endpoints.Recorder.Port, DefaultRecorderPort)
	}
}
