package devicemodel

import "errors"

// ErrUnknownScene is returned when switching to a scene that does not exist.
var ErrUnknownScene = errors.New("devicemodel: unknown scene")

// EncoderEventKind identifies a category of encoder state change.
type EncoderEventKind int

const (
	// EventStreamState reports a change to the streaming output.
	EventStreamState EncoderEventKind = iota
	// EventRecordState reports a change to the recording output.
	EventRecordState
	// EventSceneChanged reports a program scene change.
	EventSceneChanged
)

// String returns the event type name used on the wire.
func (k EncoderEventKind) String() string {
	switch k {
	case EventStreamState:
		return "StreamStateChanged"
	case EventRecordState:
		return "RecordStateChanged"
	case EventSceneChanged:
		return "CurrentSceneChanged"
	default:
		return "Unknown"
	}
}

// EncoderEvent describes one encoder state change.
type EncoderEvent struct {
	Kind EncoderEventKind

	// Active is the new output state for stream/record events.
	Active bool

	// SceneName is the new program scene for scene events.
	SceneName string
}

// EncoderStatus is a snapshot of the encoder's outputs and program scene.
type EncoderStatus struct {
	Streaming    bool
	Recording    bool
	CurrentScene string
}

// Encoder is the device model consumed by the encoder RPC adapter.
type Encoder interface {
	// Status returns a snapshot of the encoder state.
	Status() EncoderStatus

	// SetStreaming starts or stops the streaming output.
	SetStreaming(active bool) EncoderStatus

	// SetRecording starts or stops the recording output.
	SetRecording(active bool) EncoderStatus

	// Scenes returns the scene collection in presentation order.
	Scenes() []string

	// SetCurrentScene switches the program scene.
	SetCurrentScene(name string) error

	// OnChange registers a listener invoked after every state change.
	// Listeners are called outside the model's lock and must not block.
	OnChange(fn func(EncoderEvent))
}
