package devicemodel

import "errors"

// Switcher model errors.
var (
	ErrUnknownMixEffect = errors.New("devicemodel: unknown mix effect")
	ErrUnknownInput     = errors.New("devicemodel: unknown input")
)

// DefaultInputCount is the number of external inputs on the emulated switcher.
const DefaultInputCount = 8

// RecordingCommand is a recording transport action.
type RecordingCommand uint8

const (
	// RecordingStart starts recording to media.
	RecordingStart RecordingCommand = iota
	// RecordingStop stops recording to media.
	RecordingStop
)

// RecordingState is the switcher's record-to-media state.
type RecordingState uint8

const (
	// RecordingIdle means no recording is in progress.
	RecordingIdle RecordingState = iota
	// RecordingActive means the switcher is recording.
	RecordingActive
)

// String returns the string representation of the recording state.
func (s RecordingState) String() string {
	switch s {
	case RecordingIdle:
		return "idle"
	case RecordingActive:
		return "recording"
	default:
		return "unknown"
	}
}

// MixEffectState is the routing state of one mix-effect bus.
type MixEffectState struct {
	// Program is the source id currently on the program bus.
	Program uint16
	// Preview is the source id currently on the preview bus.
	Preview uint16
	// TransitionRate is the auto-transition rate in frames (30 fps base).
	TransitionRate uint8
}

// InputLabel is the pair of names assigned to one input.
type InputLabel struct {
	// Long is the full input name (up to 20 characters on the wire).
	Long string
	// Short is the abbreviated name (up to 4 characters on the wire).
	Short string
}

// LabelPatch is a partial update to an input label. Nil fields keep the
// existing value.
type LabelPatch struct {
	Long  *string
	Short *string
}

// SwitcherState is a point-in-time snapshot of the whole switcher.
type SwitcherState struct {
	// ProtocolMajor and ProtocolMinor identify the control protocol version.
	ProtocolMajor uint16
	ProtocolMinor uint16

	// Product is the product name announced during the handshake.
	Product string

	// MixEffects holds the per-M/E routing state.
	MixEffects []MixEffectState

	// Inputs maps input id (1-based) to its label.
	Inputs map[uint16]InputLabel

	// Recording is the record-to-media state.
	Recording RecordingState
}

// Switcher is the device model consumed by the switcher protocol adapter.
// Mutators return the resulting state so the adapter can echo it back to the
// network peer without re-reading.
type Switcher interface {
	// State returns a snapshot of the full switcher state.
	State() SwitcherState

	// SetProgramInput routes source onto the program bus of mix effect me.
	SetProgramInput(me int, source uint16) (MixEffectState, error)

	// SetPreviewInput routes source onto the preview bus of mix effect me.
	SetPreviewInput(me int, source uint16) (MixEffectState, error)

	// Cut swaps program and preview instantaneously.
	Cut(me int) (MixEffectState, error)

	// RunAutoTransition performs an auto transition on mix effect me.
	// The model applies the resulting routing; pacing the reply is the
	// adapter's concern.
	RunAutoTransition(me int) (MixEffectState, error)

	// TransitionRate returns the auto-transition rate of mix effect me in
	// frames. Unknown mix effects report the default rate.
	TransitionRate(me int) uint8

	// InputLabel returns the label of the given input id.
	InputLabel(id uint16) (InputLabel, error)

	// SetInputLabel applies a partial label update and returns the result.
	SetInputLabel(id uint16, patch LabelPatch) (InputLabel, error)

	// SetRecordingAction applies a recording transport action and returns
	// the resulting state.
	SetRecordingAction(cmd RecordingCommand) RecordingState
}
