// device-lab runs a broadcast device lab on the local network.
//
// It emulates three production devices at once: a vision switcher
// (reliable-UDP control protocol), a streaming encoder (WebSocket RPC)
// and a clip recorder (CRLF text protocol), each backed by an in-memory
// device model.
//
// Usage:
//
//	device-lab [options]
//
// Options:
//
//	-config         Path to a YAML lab configuration file
//	-address        Listen address for all devices (default: 127.0.0.1)
//	-switcher-port  Switcher UDP port (default: 9910)
//	-encoder-port   Encoder TCP port (default: 4455)
//	-recorder-port  Recorder TCP port (default: 9993)
//	-fallback       Fall back to loopback alternates when a bind fails
//	-advertise      Publish devices over mDNS/DNS-SD
//	-verbose        Enable debug logging
//
// Example:
//
//	device-lab -address 0.0.0.0 -fallback -advertise
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pion/logging"

	"github.com/studiokit/devicelab/pkg/emulation"
)

func main() {
	var (
		configPath   = flag.String("config", "", "Path to a YAML lab configuration file")
		address      = flag.String("address", emulation.DefaultAddress, "Listen address for all devices")
		switcherPort = flag.Int("switcher-port", emulation.DefaultSwitcherPort, "Switcher UDP port")
		encoderPort  = flag.Int("encoder-port", emulation.DefaultEncoderPort, "Encoder TCP port")
		recorderPort = flag.Int("recorder-port", emulation.DefaultRecorderPort, "Recorder TCP port")
		fallback     = flag.Bool("fallback", false, "Fall back to loopback alternates when a bind fails")
		advertise    = flag.Bool("advertise", false, "Publish devices over mDNS/DNS-SD")
		verbose      = flag.Bool("verbose", false, "Enable debug logging")
	)
	flag.Parse()

	loggerFactory := logging.NewDefaultLoggerFactory()
	if *verbose {
		loggerFactory.DefaultLogLevel = logging.LogLevelDebug
	} else {
		loggerFactory.DefaultLogLevel = logging.LogLevelInfo
	}

	cfg := emulation.Config{
		Endpoints: emulation.Endpoints{
			Switcher: emulation.Desired{Address: *address, Port: *switcherPort},
			Encoder:  emulation.Desired{Address: *address, Port: *encoderPort},
			Recorder: emulation.Desired{Address: *address, Port: *recorderPort},
		},
		FallbackAllowed: *fallback,
		Advertise:       *advertise,
		LoggerFactory:   loggerFactory,
	}

	if *configPath != "" {
		fileCfg, err := emulation.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		fileCfg.Apply(&cfg)
	}

	if err := run(cfg); err != nil {
		log.Fatalf("Lab error: %v", err)
	}
}

// run starts the lab and blocks until interrupted.
func run(cfg emulation.Config) error {
	manager, err := emulation.NewManager(cfg)
	if err != nil {
		return fmt.Errorf("create lab: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := manager.Start(); err != nil {
		return fmt.Errorf("start lab: %w", err)
	}

	printStatus(manager.Status())

	<-ctx.Done()

	log.Println("Shutting down...")
	if err := manager.Stop(); err != nil {
		return fmt.Errorf("stop lab: %w", err)
	}

	return nil
}

// printStatus prints the bound endpoints to the console.
func printStatus(st emulation.Status) {
	fmt.Fprintln(os.Stdout, "\n========================================")
	fmt.Fprintln(os.Stdout, "           Device Lab Ready")
	fmt.Fprintln(os.Stdout, "========================================")
	for _, dev := range st.Devices {
		note := ""
		if dev.UsedFallback {
			note = "  (fallback)"
		}
		fmt.Fprintf(os.Stdout, "%-10s %s%s\n", dev.Name, dev.Endpoint, note)
	}
	fmt.Fprintln(os.Stdout, "========================================")
	if st.UsedFallback {
		fmt.Fprintln(os.Stdout, "One or more devices are on fallback endpoints.")
	}
}
