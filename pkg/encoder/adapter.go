// Package encoder emulates a streaming encoder's WebSocket RPC control API:
// serialization negotiated per connection, an identify handshake, a request
// dispatch table over the device model, and pushed state-change events.
package encoder

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/logging"

	"github.com/studiokit/devicelab/pkg/devicemodel"
	"github.com/studiokit/devicelab/pkg/endpoint"
)

// Session is the per-connection RPC state.
type Session struct {
	id    uuid.UUID
	conn  *websocket.Conn
	codec codec

	writeMu sync.Mutex // serializes frames to this peer

	mu            sync.Mutex
	identified    bool
	subscriptions uint32
}

// Identified reports whether the session completed the identify handshake.
func (s *Session) Identified() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identified
}

// EventSubscriptions returns the bitmask stored from identify/reidentify.
// Stored for protocol fidelity; event delivery does not filter on it.
func (s *Session) EventSubscriptions() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscriptions
}

// send marshals and writes one envelope. Failures are returned but callers
// pushing events treat them as fire-and-forget.
func (s *Session) send(env *Envelope) error {
	data, err := s.codec.Marshal(env)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(s.codec.MessageType(), data)
}

// Config configures the encoder adapter.
type Config struct {
	// Model is the encoder device model. Required.
	Model devicemodel.Encoder

	// Allocator binds the listening endpoint. If nil a default allocator
	// is created.
	Allocator *endpoint.Allocator

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Adapter emulates the encoder's RPC API on one stream endpoint.
type Adapter struct {
	model    devicemodel.Encoder
	alloc    *endpoint.Allocator
	log      logging.LeveledLogger
	handlers map[string]requestHandler
	upgrader websocket.Upgrader

	mu           sync.Mutex
	sessions     map[*Session]struct{}
	server       *http.Server
	binding      *endpoint.Binding
	bound        endpoint.Endpoint
	usedFallback bool
	started      bool
	stopped      bool
}

// New creates a new encoder adapter.
func New(config Config) (*Adapter, error) {
	if config.Model == nil {
		return nil, ErrNoModel
	}

	a := &Adapter{
		model:    config.Model,
		alloc:    config.Allocator,
		handlers: buildHandlers(config.Model),
		sessions: make(map[*Session]struct{}),
		upgrader: websocket.Upgrader{
			// The lab accepts any client; origin policy is not part of
			// the emulated surface.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	if config.LoggerFactory != nil {
		a.log = config.LoggerFactory.NewLogger("encoder")
	}
	if a.alloc == nil {
		a.alloc = endpoint.NewAllocator(endpoint.AllocatorConfig{LoggerFactory: config.LoggerFactory})
	}

	config.Model.OnChange(a.pushEvent)

	return a, nil
}

// Start binds the desired endpoint and begins serving connections.
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

	srv := &http.Server{Handler: http.HandlerFunc(a.serveWS)}

	a.mu.Lock()
	a.binding = binding
	a.server = srv
	a.bound = binding.Endpoint
	a.usedFallback = binding.UsedFallback
	a.mu.Unlock()

	go srv.Serve(binding.Listener)

	if a.log != nil {
		a.log.Infof("encoder emulation on %s (fallback=%t)", binding.Endpoint, binding.UsedFallback)
	}
	return binding.Endpoint, nil
}

// Stop stops accepting, closes all live sessions, then releases the
// endpoint. Idempotent.
func (a *Adapter) Stop() error {
	a.mu.Lock()
	if !a.started || a.stopped {
		a.mu.Unlock()
		return nil
	}
	a.stopped = true
	srv := a.server
	sessions := make([]*Session, 0, len(a.sessions))
	for s := range a.sessions {
		sessions = append(sessions, s)
	}
	a.sessions = make(map[*Session]struct{})
	a.mu.Unlock()

	var err error
	if srv != nil {
		err = srv.Close() // stops the accept loop
	}
	for _, s := range sessions {
		s.conn.Close()
	}
	return err
}

// Status reports the bound endpoint and whether fallback was used.
func (a *Adapter) Status() (endpoint.Endpoint, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bound, a.usedFallback
}

// SessionCount returns the number of connected sessions.
func (a *Adapter) SessionCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sessions)
}

// negotiateSubprotocol picks the wire serialization: the compact one if
// offered, else the text one, else whatever the client offered first.
func negotiateSubprotocol(offered []string) string {
	for _, p := range offered {
		if p == SubprotocolMsgpack {
			return p
		}
	}
	for _, p := range offered {
		if p == SubprotocolJSON {
			return p
		}
	}
	if len(offered) > 0 {
		return offered[0]
	}
	return ""
}

// serveWS upgrades one connection and runs its session.
func (a *Adapter) serveWS(w http.ResponseWriter, r *http.Request) {
	var respHeader http.Header
	proto := negotiateSubprotocol(websocket.Subprotocols(r))
	if proto != "" {
		respHeader = http.Header{"Sec-WebSocket-Protocol": []string{proto}}
	}

	conn, err := a.upgrader.Upgrade(w, r, respHeader)
	if err != nil {
		if a.log != nil {
			a.log.Warnf("upgrade failed: %v", err)
		}
		return
	}

	sess := &Session{
		id:    uuid.New(),
		conn:  conn,
		codec: codecFor(proto),
	}

	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		conn.Close()
		return
	}
	a.sessions[sess] = struct{}{}
	a.mu.Unlock()

	if a.log != nil {
		a.log.Infof("session %s connected (%s)", sess.id, sess.codec.Name())
	}

	sess.send(&Envelope{Op: OpHello, D: HelloData{
		AppVersion: AppVersion,
		RPCVersion: RPCVersion,
	}})

	a.readLoop(sess)

	a.mu.Lock()
	delete(a.sessions, sess)
	a.mu.Unlock()
	conn.Close()

	if a.log != nil {
		a.log.Infof("session %s disconnected", sess.id)
	}
}

// readLoop decodes and dispatches envelopes until the connection drops.
func (a *Adapter) readLoop(sess *Session) {
	for {
		_, data, err := sess.conn.ReadMessage()
		if err != nil {
			return
		}

		var env struct {
			Op OpCode      `json:"op" msgpack:"op"`
			D  interface{} `json:"d" msgpack:"d"`
		}
		if err := sess.codec.Unmarshal(data, &env); err != nil {
			// Malformed envelopes are dropped, the session stays usable.
			if a.log != nil {
				a.log.Debugf("session %s sent malformed envelope: %v", sess.id, err)
			}
			continue
		}

		switch env.Op {
		case OpIdentify:
			a.handleIdentify(sess, env.D)
		case OpReidentify:
			a.handleReidentify(sess, env.D)
		case OpRequest:
			a.handleRequest(sess, env.D)
		case OpRequestBatch:
			a.handleRequestBatch(sess, env.D)
		default:
			if a.log != nil {
				a.log.Debugf("session %s sent unexpected op %d", sess.id, env.Op)
			}
		}
	}
}

func (a *Adapter) handleIdentify(sess *Session, data interface{}) {
	var d IdentifyData
	if err := remarshal(sess.codec, data, &d); err != nil {
		return
	}

	sess.mu.Lock()
	sess.identified = true
	sess.subscriptions = d.EventSubscriptions
	sess.mu.Unlock()

	sess.send(&Envelope{Op: OpIdentified, D: IdentifiedData{
		NegotiatedRPCVersion: RPCVersion,
	}})
}

func (a *Adapter) handleReidentify(sess *Session, data interface{}) {
	var d ReidentifyData
	if err := remarshal(sess.codec, data, &d); err != nil {
		return
	}

	sess.mu.Lock()
	sess.subscriptions = d.EventSubscriptions
	sess.mu.Unlock()
}

func (a *Adapter) handleRequest(sess *Session, data interface{}) {
	// Requests before identification are silently ignored.
	if !sess.Identified() {
		return
	}

	var req RequestData
	if err := remarshal(sess.codec, data, &req); err != nil {
		return
	}

	resp := a.executeRequest(sess.codec, req)
	sess.send(&Envelope{Op: OpRequestResponse, D: resp})
}

func (a *Adapter) handleRequestBatch(sess *Session, data interface{}) {
	if !sess.Identified() {
		return
	}

	var batch RequestBatchData
	if err := remarshal(sess.codec, data, &batch); err != nil {
		return
	}

	results := make([]ResponseData, 0, len(batch.Requests))
	for _, req := range batch.Requests {
		resp := a.executeRequest(sess.codec, req)
		results = append(results, resp)
		if batch.HaltOnFailure && !resp.RequestStatus.Result {
			break
		}
	}

	sess.send(&Envelope{Op: OpRequestBatchResponse, D: RequestBatchResponseData{
		RequestID: batch.RequestID,
		Results:   results,
	}})
}

// executeRequest runs one request through the handler table. Unknown types
// and handler failures become structured failure responses for the caller,
// never connection errors.
func (a *Adapter) executeRequest(c codec, req RequestData) ResponseData {
	resp := ResponseData{
		RequestType: req.RequestType,
		RequestID:   req.RequestID,
	}

	handler, ok := a.handlers[req.RequestType]
	if !ok {
		resp.RequestStatus = RequestStatus{
			Code:    StatusFailure,
			Comment: fmt.Sprintf("unknown request type %q", req.RequestType),
		}
		return resp
	}

	decode := func(v interface{}) error {
		if req.RequestData == nil {
			return nil
		}
		return remarshal(c, req.RequestData, v)
	}

	result, err := handler(decode)
	if err != nil {
		resp.RequestStatus = RequestStatus{Code: StatusFailure, Comment: err.Error()}
		return resp
	}

	resp.RequestStatus = RequestStatus{Result: true, Code: StatusSuccess}
	resp.ResponseData = result
	return resp
}

// pushEvent fans a device-model change out to every identified session.
// Delivery deliberately ignores the stored subscription bitmask.
func (a *Adapter) pushEvent(ev devicemodel.EncoderEvent) {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	sessions := make([]*Session, 0, len(a.sessions))
	for s := range a.sessions {
		sessions = append(sessions, s)
	}
	a.mu.Unlock()

	var payload interface{}
	switch ev.Kind {
	case devicemodel.EventSceneChanged:
		payload = map[string]interface{}{"sceneName": ev.SceneName}
	default:
		payload = map[string]interface{}{"outputActive": ev.Active}
	}

	env := &Envelope{Op: OpEvent, D: EventData{
		EventType: ev.Kind.String(),
		EventData: payload,
	}}

	for _, s := range sessions {
		if s.Identified() {
			s.send(env)
		}
	}
}
