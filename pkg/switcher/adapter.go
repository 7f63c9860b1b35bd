// Package switcher emulates a production video switcher's reliable-UDP
// control protocol: handshake, sequenced acknowledged packets, an initial
// state burst, and a command dispatcher that mutates the shared device model.
package switcher

import (
	"bytes"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/studiokit/devicelab/pkg/devicemodel"
	"github.com/studiokit/devicelab/pkg/endpoint"
	"github.com/studiokit/devicelab/pkg/transport"
)

// Handshake and keepalive timing defaults.
const (
	// DefaultBurstDelay is the pause between the new-session reply and the
	// initial state burst.
	DefaultBurstDelay = 60 * time.Millisecond

	// DefaultReannounceDelay is the further pause before the program and
	// preview pair is announced a second time. Real hardware
	// double-announces the routing after connect.
	DefaultReannounceDelay = 120 * time.Millisecond

	// DefaultKeepaliveInterval is the cadence of empty ack-request packets
	// sent while a session lives.
	DefaultKeepaliveInterval = time.Second

	// transitionSettle is added to the computed auto-transition duration
	// before the deferred routing announcement.
	transitionSettle = 40 * time.Millisecond

	// minTransition and maxTransition clamp the auto-transition duration.
	minTransition = 200 * time.Millisecond
	maxTransition = 3000 * time.Millisecond
)

// session is the per-remote-peer protocol state. At most one session exists
// per peer address; a fresh handshake supersedes the previous one.
type session struct {
	key  string
	peer net.Addr

	// id is the 15-bit session id allocated during handshake.
	id uint16

	// nextPacketID is the next outgoing sequence number. Assigned in send
	// order, monotonically increasing modulo 2^15.
	nextPacketID uint16

	// stopCh stops the keepalive loop when the session is torn down.
	stopCh chan struct{}

	// timers holds pending deferred sends so teardown can cancel them.
	timers []*time.Timer
}

// Config configures the switcher adapter.
type Config struct {
	// Model is the switcher device model. Required.
	Model devicemodel.Switcher

	// Allocator binds the listening endpoint. If nil a default allocator
	// is created.
	Allocator *endpoint.Allocator

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory

	// BurstDelay, ReannounceDelay and KeepaliveInterval override the
	// handshake timing. Zero values use the defaults. Tests shorten them.
	BurstDelay        time.Duration
	ReannounceDelay   time.Duration
	KeepaliveInterval time.Duration
}

// Adapter emulates the switcher on one datagram endpoint.
type Adapter struct {
	model devicemodel.Switcher
	alloc *endpoint.Allocator
	log   logging.LeveledLogger
	lf    logging.LoggerFactory

	burstDelay      time.Duration
	reannounceDelay time.Duration
	keepalive       time.Duration

	mu           sync.Mutex
	sessions     map[string]*session
	binding      *endpoint.Binding
	datagram     *transport.Datagram
	bound        endpoint.Endpoint
	usedFallback bool
	started      bool
	stopped      bool
}

// New creates a new switcher adapter.
func New(config Config) (*Adapter, error) {
	if config.Model == nil {
		return nil, ErrNoModel
	}

	a := &Adapter{
		model:           config.Model,
		alloc:           config.Allocator,
		lf:              config.LoggerFactory,
		burstDelay:      config.BurstDelay,
		reannounceDelay: config.ReannounceDelay,
		keepalive:       config.KeepaliveInterval,
		sessions:        make(map[string]*session),
	}
	if config.LoggerFactory != nil {
		a.log = config.LoggerFactory.NewLogger("switcher")
	}
	if a.alloc == nil {
		a.alloc = endpoint.NewAllocator(endpoint.AllocatorConfig{LoggerFactory: config.LoggerFactory})
	}
	if a.burstDelay == 0 {
		a.burstDelay = DefaultBurstDelay
	}
	if a.reannounceDelay == 0 {
		a.reannounceDelay = DefaultReannounceDelay
	}
	if a.keepalive == 0 {
		a.keepalive = DefaultKeepaliveInterval
	}

	return a, nil
}

// Start binds the desired endpoint (falling back when allowed) and begins
// servicing datagrams. It returns the endpoint actually bound.
func (a *Adapter) Start(desired endpoint.Endpoint, fallbackAllowed bool) (endpoint.Endpoint, error) {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return endpoint.Endpoint{}, ErrAlreadyStarted
	}
	a.started = true
	a.mu.Unlock()

	desired.Transport = endpoint.TransportDatagram

	binding, err := a.alloc.Bind(desired, fallbackAllowed)
	if err != nil {
		a.mu.Lock()
		a.started = false
		a.mu.Unlock()
		return endpoint.Endpoint{}, err
	}

	dg, err := transport.NewDatagram(transport.DatagramConfig{
		Conn:          binding.PacketConn,
		Handler:       a.handleDatagram,
		LoggerFactory: a.lf,
	})
	if err == nil {
		err = dg.Start()
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
	a.datagram = dg
	a.bound = binding.Endpoint
	a.usedFallback = binding.UsedFallback
	a.mu.Unlock()

	if a.log != nil {
		a.log.Infof("switcher emulation on %s (fallback=%t)", binding.Endpoint, binding.UsedFallback)
	}
	return binding.Endpoint, nil
}

// Stop tears down every session, then releases the endpoint. Idempotent.
func (a *Adapter) Stop() error {
	a.mu.Lock()
	if !a.started || a.stopped {
		a.mu.Unlock()
		return nil
	}
	a.stopped = true
	for _, s := range a.sessions {
		teardown(s)
	}
	a.sessions = make(map[string]*session)
	dg := a.datagram
	a.mu.Unlock()

	if dg != nil {
		return dg.Stop()
	}
	return nil
}

// Status reports the bound endpoint and whether fallback was used.
func (a *Adapter) Status() (endpoint.Endpoint, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bound, a.usedFallback
}

// SessionCount returns the number of active sessions.
func (a *Adapter) SessionCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sessions)
}

// handleDatagram processes one inbound datagram. It runs on the transport's
// read goroutine; timers are the only other writers of adapter state.
func (a *Adapter) handleDatagram(data []byte, peer net.Addr) {
	if bytes.Equal(data, HelloDatagram) {
		a.establishSession(peer)
		return
	}

	pkt, err := DecodePacket(data)
	if err != nil {
		// Malformed datagrams are dropped, the peer stays usable.
		if a.log != nil {
			a.log.Debugf("dropping datagram from %v: %v", peer, err)
		}
		return
	}

	if pkt.Flags&FlagNewSession != 0 {
		a.establishSession(peer)
		return
	}

	a.mu.Lock()
	s := a.sessions[peer.String()]
	a.mu.Unlock()
	if s == nil {
		return
	}

	if pkt.Flags&FlagAckRequest != 0 {
		a.sendAck(s, pkt.PacketID)
	}

	for _, cmd := range DecodeCommands(pkt.Payload) {
		a.dispatch(s, cmd)
	}
}

// establishSession creates (or supersedes) the session for a peer and runs
// the handshake: new-session reply, delayed state burst, delayed routing
// re-announcement, keepalive.
func (a *Adapter) establishSession(peer net.Addr) {
	s := &session{
		key:          peer.String(),
		peer:         peer,
		id:           uint16(rand.Intn(MaxSessionID)) + 1,
		nextPacketID: 1,
		stopCh:       make(chan struct{}),
	}

	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	if old, ok := a.sessions[s.key]; ok {
		teardown(old)
	}
	a.sessions[s.key] = s
	a.mu.Unlock()

	if a.log != nil {
		a.log.Infof("session %#04x established with %v", s.id, peer)
	}

	a.send(s, &Packet{Flags: FlagNewSession, SessionID: s.id})

	a.after(s, a.burstDelay, func() {
		a.sendReliable(s, stateBurst(a.model.State()))
	})
	a.after(s, a.burstDelay+a.reannounceDelay, func() {
		a.announceAllMixEffects(s)
	})

	go a.keepaliveLoop(s)
}

// dispatch applies one decoded command. Unknown names and truncated payloads
// are skipped silently.
func (a *Adapter) dispatch(s *session, cmd Command) {
	switch cmd.Name {
	case cmdChangeProgram:
		if bc, ok := parseBusChange(cmd.Payload); ok {
			if _, err := a.model.SetProgramInput(bc.me, bc.source); err == nil {
				a.announceMixEffect(s, bc.me)
			}
		}

	case cmdChangePreview:
		if bc, ok := parseBusChange(cmd.Payload); ok {
			if _, err := a.model.SetPreviewInput(bc.me, bc.source); err == nil {
				a.announceMixEffect(s, bc.me)
			}
		}

	case cmdCut:
		if me, ok := parseMixEffect(cmd.Payload); ok {
			if _, err := a.model.Cut(me); err == nil {
				a.announceMixEffect(s, me)
			}
		}

	case cmdAuto:
		if me, ok := parseMixEffect(cmd.Payload); ok {
			d := transitionDuration(a.model.TransitionRate(me))
			a.after(s, d+transitionSettle, func() {
				if _, err := a.model.RunAutoTransition(me); err == nil {
					a.announceMixEffect(s, me)
				}
			})
		}

	case cmdChangeLabel:
		if lc, ok := parseLabelChange(cmd.Payload); ok {
			if label, err := a.model.SetInputLabel(lc.id, lc.patch); err == nil {
				a.sendReliable(s, appendInputProperties(nil, lc.id, label))
			}
		}

	case cmdRecordAction:
		if rc, ok := parseRecordAction(cmd.Payload); ok {
			state := a.model.SetRecordingAction(rc)
			a.sendReliable(s, appendRecordStatus(nil, state))
		}
	}
}

// announceMixEffect sends the current program/preview pair of one M/E.
func (a *Adapter) announceMixEffect(s *session, me int) {
	st := a.model.State()
	if me < 0 || me >= len(st.MixEffects) {
		return
	}
	a.sendReliable(s, appendProgramPreview(nil, me, st.MixEffects[me]))
}

// announceAllMixEffects re-sends the routing of every M/E.
func (a *Adapter) announceAllMixEffects(s *session) {
	st := a.model.State()
	var buf []byte
	for me, m := range st.MixEffects {
		buf = appendProgramPreview(buf, me, m)
	}
	a.sendReliable(s, buf)
}

// sendReliable sends an ack-request packet carrying payload, assigning the
// session's next packet id. No-op once the session is superseded or the
// adapter stopped.
func (a *Adapter) sendReliable(s *session, payload []byte) {
	a.mu.Lock()
	if a.sessions[s.key] != s || a.datagram == nil {
		a.mu.Unlock()
		return
	}
	pid := s.nextPacketID
	s.nextPacketID = (s.nextPacketID + 1) & MaxPacketID
	dg := a.datagram
	a.mu.Unlock()

	a.transmit(dg, s, &Packet{
		Flags:     FlagAckRequest,
		SessionID: s.id,
		PacketID:  pid,
		Payload:   payload,
	})
}

// sendAck acknowledges an inbound packet id.
func (a *Adapter) sendAck(s *session, packetID uint16) {
	a.send(s, &Packet{Flags: FlagAckReply, SessionID: s.id, AckID: packetID})
}

// send transmits a packet without assigning a sequence number.
func (a *Adapter) send(s *session, pkt *Packet) {
	a.mu.Lock()
	dg := a.datagram
	a.mu.Unlock()
	a.transmit(dg, s, pkt)
}

// transmit encodes and sends. Send failures never reach the protocol state
// machine; the transport logs them.
func (a *Adapter) transmit(dg *transport.Datagram, s *session, pkt *Packet) {
	if dg == nil {
		return
	}
	data, err := pkt.Encode()
	if err != nil {
		if a.log != nil {
			a.log.Warnf("dropping oversized packet for %v: %v", s.peer, err)
		}
		return
	}
	dg.Send(data, s.peer)
}

// after schedules fn, running it only if the session still exists then.
func (a *Adapter) after(s *session, d time.Duration, fn func()) {
	t := time.AfterFunc(d, func() {
		if a.sessionAlive(s) {
			fn()
		}
	})
	a.mu.Lock()
	s.timers = append(s.timers, t)
	a.mu.Unlock()
}

// sessionAlive reports whether s is still the current session for its peer.
func (a *Adapter) sessionAlive(s *session) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessions[s.key] == s
}

// keepaliveLoop sends empty ack-request packets until the session ends.
func (a *Adapter) keepaliveLoop(s *session) {
	ticker := time.NewTicker(a.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			a.sendReliable(s, nil)
		}
	}
}

// teardown cancels a session's timers and keepalive. Callers hold a.mu or
// own the only reference.
func teardown(s *session) {
	for _, t := range s.timers {
		t.Stop()
	}
	s.timers = nil
	close(s.stopCh)
}

// transitionDuration converts a transition rate in frames (30 fps base) to
// the emulated transition time, clamped to the hardware's range.
func transitionDuration(rate uint8) time.Duration {
	d := time.Duration(rate) * time.Second / 30
	if d < minTransition {
		return minTransition
	}
	if d > maxTransition {
		return maxTransition
	}
	return d
}
