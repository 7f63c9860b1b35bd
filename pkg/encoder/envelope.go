package encoder

import (
	"encoding/json"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// OpCode identifies the envelope type.
type OpCode int

// Envelope operation codes. Directions are relative to the emulator:
// "in" arrives from the client, "push" is sent to it.
const (
	OpHello                OpCode = 0 // push
	OpIdentify             OpCode = 1 // in
	OpIdentified           OpCode = 2 // push
	OpReidentify           OpCode = 3 // in
	OpEvent                OpCode = 5 // push
	OpRequest              OpCode = 6 // in
	OpRequestResponse      OpCode = 7 // push
	OpRequestBatch         OpCode = 8 // in
	OpRequestBatchResponse OpCode = 9 // push
)

// Envelope is one RPC message: an operation code and its data object.
type Envelope struct {
	Op OpCode      `json:"op" msgpack:"op"`
	D  interface{} `json:"d" msgpack:"d"`
}

// HelloData announces the protocol to a connecting client.
type HelloData struct {
	AppVersion string `json:"appVersion" msgpack:"appVersion"`
	RPCVersion int    `json:"rpcVersion" msgpack:"rpcVersion"`
}

// IdentifyData is the client's identification message.
type IdentifyData struct {
	RPCVersion         int    `json:"rpcVersion" msgpack:"rpcVersion"`
	EventSubscriptions uint32 `json:"eventSubscriptions" msgpack:"eventSubscriptions"`
}

// IdentifiedData confirms identification.
type IdentifiedData struct {
	NegotiatedRPCVersion int `json:"negotiatedRpcVersion" msgpack:"negotiatedRpcVersion"`
}

// ReidentifyData updates session parameters after identification.
type ReidentifyData struct {
	EventSubscriptions uint32 `json:"eventSubscriptions" msgpack:"eventSubscriptions"`
}

// EventData is a pushed state-change notification.
type EventData struct {
	EventType string      `json:"eventType" msgpack:"eventType"`
	EventData interface{} `json:"eventData,omitempty" msgpack:"eventData,omitempty"`
}

// RequestData is an inbound request.
type RequestData struct {
	RequestType string      `json:"requestType" msgpack:"requestType"`
	RequestID   string      `json:"requestId" msgpack:"requestId"`
	RequestData interface{} `json:"requestData,omitempty" msgpack:"requestData,omitempty"`
}

// RequestStatus reports the outcome of one request.
type RequestStatus struct {
	Result  bool   `json:"result" msgpack:"result"`
	Code    int    `json:"code" msgpack:"code"`
	Comment string `json:"comment,omitempty" msgpack:"comment,omitempty"`
}

// ResponseData answers one request, correlated by the caller's request id.
type ResponseData struct {
	RequestType   string        `json:"requestType" msgpack:"requestType"`
	RequestID     string        `json:"requestId" msgpack:"requestId"`
	RequestStatus RequestStatus `json:"requestStatus" msgpack:"requestStatus"`
	ResponseData  interface{}   `json:"responseData,omitempty" msgpack:"responseData,omitempty"`
}

// RequestBatchData is an inbound request batch.
type RequestBatchData struct {
	RequestID     string        `json:"requestId" msgpack:"requestId"`
	HaltOnFailure bool          `json:"haltOnFailure,omitempty" msgpack:"haltOnFailure,omitempty"`
	Requests      []RequestData `json:"requests" msgpack:"requests"`
}

// RequestBatchResponseData carries the per-item results of a batch.
type RequestBatchResponseData struct {
	RequestID string         `json:"requestId" msgpack:"requestId"`
	Results   []ResponseData `json:"results" msgpack:"results"`
}

// Subprotocol names offered during the WebSocket handshake. The compact
// serialization is preferred.
const (
	SubprotocolMsgpack = "devicelab.rpc.msgpack"
	SubprotocolJSON    = "devicelab.rpc.json"
)

// codec is one negotiated wire serialization.
type codec interface {
	// Name is the subprotocol identifier.
	Name() string

	// MessageType is the WebSocket frame type used for envelopes.
	MessageType() int

	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) error
}

type jsonCodec struct{}

func (jsonCodec) Name() string        { return SubprotocolJSON }
func (jsonCodec) MessageType() int    { return websocket.TextMessage }
func (jsonCodec) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

type msgpackCodec struct{}

func (msgpackCodec) Name() string        { return SubprotocolMsgpack }
func (msgpackCodec) MessageType() int    { return websocket.BinaryMessage }
func (msgpackCodec) Marshal(v interface{}) ([]byte, error) { return msgpack.Marshal(v) }
func (msgpackCodec) Unmarshal(data []byte, v interface{}) error {
	return msgpack.Unmarshal(data, v)
}

// codecFor maps a negotiated subprotocol to its codec. Unknown or absent
// subprotocols fall back to the text serialization.
func codecFor(subprotocol string) codec {
	if subprotocol == SubprotocolMsgpack {
		return msgpackCodec{}
	}
	return jsonCodec{}
}

// remarshal converts a decoded-to-interface data object into a typed value
// by running it back through the codec. Both serializations decode unknown
// objects into generic maps, so this is the shared typed-decode path.
func remarshal(c codec, data, v interface{}) error {
	raw, err := c.Marshal(data)
	if err != nil {
		return err
	}
	return c.Unmarshal(raw, v)
}
