package devicemodel

import "errors"

// ErrUnknownSlot is returned for slot ids the recorder does not have.
var ErrUnknownSlot = errors.New("devicemodel: unknown slot")

// TransportMode is the recorder's transport state.
type TransportMode string

const (
	TransportPreview TransportMode = "preview"
	TransportPlay    TransportMode = "play"
	TransportRecord  TransportMode = "record"
	TransportStopped TransportMode = "stopped"
)

// Clip is one recorded clip on the active media slot.
type Clip struct {
	ID       int
	Name     string
	Start    string // timecode
	Duration string // timecode
}

// TransportStatus is a snapshot of the recorder's transport.
type TransportStatus struct {
	Mode   TransportMode
	Speed  int // percent, 100 = normal play
	ClipID int
	SlotID int
}

// SlotStatus describes one media slot.
type SlotStatus struct {
	SlotID        int
	Status        string // "mounted" or "empty"
	VolumeName    string
	RecordingTime int // seconds remaining
}

// RecorderInfo is the static identity block sent to clients.
type RecorderInfo struct {
	ProtocolVersion string
	Model           string
	SlotCount       int
}

// Recorder is the device model consumed by the recorder line adapter.
type Recorder interface {
	// Info returns the recorder's identity.
	Info() RecorderInfo

	// TransportStatus returns a snapshot of the transport.
	TransportStatus() TransportStatus

	// SlotInfo returns the status of one media slot (1-based).
	SlotInfo(slot int) (SlotStatus, error)

	// Clips returns the clip index of the active slot.
	Clips() []Clip

	// CurrentClip returns the id of the clip under the playhead.
	CurrentClip() int

	// NextClip advances the playhead one clip forward and returns the new
	// clip id. At the end of the index it stays put.
	NextClip() int

	// PreviousClip moves the playhead one clip back and returns the new
	// clip id. At the start of the index it stays put.
	PreviousClip() int

	// Play starts playback of the current clip.
	Play() TransportStatus

	// Stop stops playback or recording.
	Stop() TransportStatus

	// Record starts recording a new clip.
	Record() TransportStatus
}
