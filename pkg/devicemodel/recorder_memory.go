package devicemodel

import (
	"fmt"
	"sync"
)

// MemoryRecorder is an in-memory Recorder implementation.
// Safe for concurrent use.
type MemoryRecorder struct {
	mu        sync.Mutex
	info      RecorderInfo
	transport TransportStatus
	slots     []SlotStatus
	clips     []Clip
	current   int // index into clips
}

// NewMemoryRecorder creates a recorder model with two slots (slot 1 mounted)
// and a small clip index on the active slot.
func NewMemoryRecorder() *MemoryRecorder {
	clips := make([]Clip, 6)
	for i := range clips {
		clips[i] = Clip{
			ID:       i + 1,
			Name:     fmt.Sprintf("Clip%04d.mov", i+1),
			Start:    fmt.Sprintf("00:%02d:00:00", i*5),
			Duration: "00:05:00:00",
		}
	}

	return &MemoryRecorder{
		info: RecorderInfo{
			ProtocolVersion: "1.11",
			Model:           "Lab Clip Recorder",
			SlotCount:       2,
		},
		transport: TransportStatus{Mode: TransportPreview, ClipID: 1, SlotID: 1},
		slots: []SlotStatus{
			{SlotID: 1, Status: "mounted", VolumeName: "Media1", RecordingTime: 3600},
			{SlotID: 2, Status: "empty"},
		},
		clips: clips,
	}
}

// Info returns the recorder's identity.
func (r *MemoryRecorder) Info() RecorderInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.info
}

// TransportStatus returns a snapshot of the transport.
func (r *MemoryRecorder) TransportStatus() TransportStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transport
}

// SlotInfo returns the status of one media slot.
func (r *MemoryRecorder) SlotInfo(slot int) (SlotStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if slot < 1 || slot > len(r.slots) {
		return SlotStatus{}, ErrUnknownSlot
	}
	return r.slots[slot-1], nil
}

// Clips returns a copy of the clip index.
func (r *MemoryRecorder) Clips() []Clip {
	r.mu.Lock()
	defer r.mu.Unlock()

	clips := make([]Clip, len(r.clips))
	copy(clips, r.clips)
	return clips
}

// CurrentClip returns the id of the clip under the playhead.
func (r *MemoryRecorder) CurrentClip() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clips[r.current].ID
}

// NextClip advances the playhead one clip forward.
func (r *MemoryRecorder) NextClip() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current < len(r.clips)-1 {
		r.current++
	}
	r.transport.ClipID = r.clips[r.current].ID
	return r.transport.ClipID
}

// PreviousClip moves the playhead one clip back.
func (r *MemoryRecorder) PreviousClip() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current > 0 {
		r.current--
	}
	r.transport.ClipID = r.clips[r.current].ID
	return r.transport.ClipID
}

// Play starts playback of the current clip.
func (r *MemoryRecorder) Play() TransportStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.transport.Mode = TransportPlay
	r.transport.Speed = 100
	return r.transport
}

// Stop stops playback or recording.
func (r *MemoryRecorder) Stop() TransportStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.transport.Mode = TransportStopped
	r.transport.Speed = 0
	return r.transport
}

// Record starts recording a new clip.
func (r *MemoryRecorder) Record() TransportStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	clip := Clip{
		ID:       len(r.clips) + 1,
		Name:     fmt.Sprintf("Clip%04d.mov", len(r.clips)+1),
		Duration: "00:00:00:00",
	}
	r.clips = append(r.clips, clip)
	r.current = len(r.clips) - 1

	r.transport.Mode = TransportRecord
	r.transport.Speed = 0
	r.transport.ClipID = clip.ID
	return r.transport
}
