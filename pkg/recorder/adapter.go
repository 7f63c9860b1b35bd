// Package recorder emulates a clip recorder's CRLF-delimited text control
// protocol over TCP: a fixed greeting, a command/response table, and an
// optional unsolicited transport-notification channel.
package recorder

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/pion/logging"

	"github.com/studiokit/devicelab/pkg/devicemodel"
	"github.com/studiokit/devicelab/pkg/endpoint"
	"github.com/studiokit/devicelab/pkg/transport"
)

// Recorder adapter errors.
var (
	ErrNoModel        = errors.New("recorder: no device model configured")
	ErrAlreadyStarted = errors.New("recorder: already started")
)

// connState is the per-connection protocol state.
type connState struct {
	// slot is the selected media slot (1-based).
	slot int

	// notify controls unsolicited transport-info pushes after mutations.
	notify bool
}

// Config configures the recorder adapter.
type Config struct {
	// Model is the recorder device model. Required.
	Model devicemodel.Recorder

	// Allocator binds the listening endpoint. If nil a default allocator
	// is created.
	Allocator *endpoint.Allocator

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Adapter emulates the clip recorder on one stream endpoint.
type Adapter struct {
	model devicemodel.Recorder
	alloc *endpoint.Allocator
	log   logging.LeveledLogger
	lf    logging.LoggerFactory

	mu           sync.Mutex
	stream       *transport.Stream
	binding      *endpoint.Binding
	bound        endpoint.Endpoint
	usedFallback bool
	started      bool
	stopped      bool
}

// New creates a new recorder adapter.
func New(config Config) (*Adapter, error) {
	if config.Model == nil {
		return nil, ErrNoModel
	}

	a := &Adapter{
		model: config.Model,
		alloc: config.Allocator,
		lf:    config.LoggerFactory,
	}
	if config.LoggerFactory != nil {
		a.log = config.LoggerFactory.NewLogger("recorder")
	}
	if a.alloc == nil {
		a.alloc = endpoint.NewAllocator(endpoint.AllocatorConfig{LoggerFactory: config.LoggerFactory})
	}
	return a, nil
}

// Start binds the desired endpoint and begins accepting connections.
func (a *Adapter) Start(desired endpoint.Endpoint, fallbackAllowed bool) (endpoint.Endpoint, error) {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return endpoint.Endpoint{}, ErrAlreadyStarted
	}
	a.started = true
	a.mu.Unlock()

	desired.Transport = endpoint.TransportStream

	binding, err := a.alloc.Bind(desired, fallbackAllowed)
	if err != nil {
		a.mu.Lock()
		a.started = false
		a.mu.Unlock()
		return endpoint.Endpoint{}, err
	}

	stream, err := transport.NewStream(transport.StreamConfig{
		Listener:      binding.Listener,
		Handler:       a.handleConn,
		LoggerFactory: a.lf,
	})
	if err == nil {
		err = stream.Start()
	}
	if err != nil {
		binding.Close()
		a.mu.Lock()
		a.started = false
		a.mu.Unlock()
		return endpoint.Endpoint{}, err
	}

	a.mu.Lock()
	a.binding = binding
	a.stream = stream
	a.bound = binding.Endpoint
	a.usedFallback = binding.UsedFallback
	a.mu.Unlock()

	if a.log != nil {
		a.log.Infof("recorder emulation on %s (fallback=%t)", binding.Endpoint, binding.UsedFallback)
	}
	return binding.Endpoint, nil
}

// Stop closes all connections and releases the endpoint. Idempotent.
func (a *Adapter) Stop() error {
	a.mu.Lock()
	if !a.started || a.stopped {
		a.mu.Unlock()
		return nil
	}
	a.stopped = true
	stream := a.stream
	a.mu.Unlock()

	if stream != nil {
		return stream.Stop()
	}
	return nil
}

// Status reports the bound endpoint and whether fallback was used.
func (a *Adapter) Status() (endpoint.Endpoint, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bound, a.usedFallback
}

// handleConn services one client connection until it closes.
func (a *Adapter) handleConn(conn net.Conn) {
	state := &connState{slot: 1}
	w := bufio.NewWriter(conn)

	a.writeGreeting(w)
	w.Flush()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		a.execute(w, state, line)
		if err := w.Flush(); err != nil {
			return
		}
	}
}

// execute runs one command line and writes the response.
func (a *Adapter) execute(w io.Writer, state *connState, line string) {
	switch {
	case line == "ping":
		a.writeOK(w)

	case line == "help":
		a.writeHelp(w)

	case line == "device info":
		a.writeDeviceInfo(w)

	case line == "transport info":
		a.writeTransportInfo(w, "208")

	case line == "slot info":
		a.writeSlotInfo(w, state.slot)

	case line == "clips get":
		a.writeClips(w)

	case strings.HasPrefix(line, "slot select "):
		a.selectSlot(w, state, strings.TrimPrefix(line, "slot select "))

	case strings.HasPrefix(line, "notify transport:"):
		a.setNotify(w, state, strings.TrimPrefix(line, "notify transport:"))

	case strings.HasPrefix(line, "goto clip id:"):
		a.gotoClip(w, state, strings.TrimPrefix(line, "goto clip id:"))

	case line == "play":
		a.model.Play()
		a.writeOK(w)
		a.pushNotify(w, state)

	case line == "stop":
		a.model.Stop()
		a.writeOK(w)
		a.pushNotify(w, state)

	case line == "record":
		a.model.Record()
		a.writeOK(w)
		a.pushNotify(w, state)

	default:
		a.writeInvalid(w)
	}
}

func (a *Adapter) selectSlot(w io.Writer, state *connState, arg string) {
	slot, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil {
		a.writeInvalid(w)
		return
	}
	if _, err := a.model.SlotInfo(slot); err != nil {
		a.writeInvalid(w)
		return
	}
	state.slot = slot
	a.writeOK(w)
	a.pushNotify(w, state)
}

func (a *Adapter) setNotify(w io.Writer, state *connState, arg string) {
	enabled, err := strconv.ParseBool(strings.TrimSpace(arg))
	if err != nil {
		a.writeInvalid(w)
		return
	}
	state.notify = enabled
	a.writeOK(w)
}

// gotoClip steps the playhead one clip at a time until it reaches the
// target, the way the hardware's remote protocol drives it.
func (a *Adapter) gotoClip(w io.Writer, state *connState, arg string) {
	target, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil {
		a.writeInvalid(w)
		return
	}

	for a.model.CurrentClip() < target {
		cur := a.model.CurrentClip()
		if a.model.NextClip() == cur {
			break // end of the clip index
		}
	}
	for a.model.CurrentClip() > target {
		cur := a.model.CurrentClip()
		if a.model.PreviousClip() == cur {
			break // start of the clip index
		}
	}

	a.writeOK(w)
	a.pushNotify(w, state)
}

// pushNotify writes the unsolicited transport block after a mutation.
func (a *Adapter) pushNotify(w io.Writer, state *connState) {
	if state.notify {
		a.writeTransportInfo(w, "508")
	}
}

func (a *Adapter) writeOK(w io.Writer) {
	fmt.Fprint(w, "200 ok\r\n")
}

func (a *Adapter) writeInvalid(w io.Writer) {
	fmt.Fprint(w, "400 invalid command\r\n")
}

func (a *Adapter) writeGreeting(w io.Writer) {
	info := a.model.Info()
	fmt.Fprint(w, "500 connection info:\r\n")
	fmt.Fprintf(w, "protocol version: %s\r\n", info.ProtocolVersion)
	fmt.Fprintf(w, "model: %s\r\n", info.Model)
	fmt.Fprint(w, "\r\n")
}

func (a *Adapter) writeHelp(w io.Writer) {
	fmt.Fprint(w, "201 help:\r\n")
	for _, cmd := range []string{
		"ping", "help", "device info", "transport info", "slot info",
		"clips get", "slot select <n>", "notify transport:<true/false>",
		"goto clip id:<n>", "play", "stop", "record",
	} {
		fmt.Fprintf(w, "%s\r\n", cmd)
	}
	fmt.Fprint(w, "\r\n")
}

func (a *Adapter) writeDeviceInfo(w io.Writer) {
	info := a.model.Info()
	fmt.Fprint(w, "204 device info:\r\n")
	fmt.Fprintf(w, "protocol version: %s\r\n", info.ProtocolVersion)
	fmt.Fprintf(w, "model: %s\r\n", info.Model)
	fmt.Fprintf(w, "slot count: %d\r\n", info.SlotCount)
	fmt.Fprint(w, "\r\n")
}

func (a *Adapter) writeTransportInfo(w io.Writer, code string) {
	ts := a.model.TransportStatus()
	fmt.Fprintf(w, "%s transport info:\r\n", code)
	fmt.Fprintf(w, "status: %s\r\n", ts.Mode)
	fmt.Fprintf(w, "speed: %d\r\n", ts.Speed)
	fmt.Fprintf(w, "slot id: %d\r\n", ts.SlotID)
	fmt.Fprintf(w, "clip id: %d\r\n", ts.ClipID)
	fmt.Fprint(w, "\r\n")
}

func (a *Adapter) writeSlotInfo(w io.Writer, slot int) {
	st, err := a.model.SlotInfo(slot)
	if err != nil {
		a.writeInvalid(w)
		return
	}
	fmt.Fprint(w, "202 slot info:\r\n")
	fmt.Fprintf(w, "slot id: %d\r\n", st.SlotID)
	fmt.Fprintf(w, "status: %s\r\n", st.Status)
	fmt.Fprintf(w, "volume name: %s\r\n", st.VolumeName)
	fmt.Fprintf(w, "recording time: %d\r\n", st.RecordingTime)
	fmt.Fprint(w, "\r\n")
}

func (a *Adapter) writeClips(w io.Writer) {
	clips := a.model.Clips()
	fmt.Fprint(w, "205 clips info:\r\n")
	fmt.Fprintf(w, "clip count: %d\r\n", len(clips))
	for _, c := range clips {
		fmt.Fprintf(w, "%d: %s %s %s\r\n", c.ID, c.Name, c.Start, c.Duration)
	}
	fmt.Fprint(w, "\r\n")
}
