package devicemodel

import "sync"

// MemoryEncoder is an in-memory Encoder implementation.
// Safe for concurrent use.
type MemoryEncoder struct {
	mu        sync.Mutex
	status    EncoderStatus
	scenes    []string
	listeners []func(EncoderEvent)
}

// NewMemoryEncoder creates an encoder model seeded with a small scene
// collection, outputs stopped.
func NewMemoryEncoder() *MemoryEncoder {
	scenes := []string{"Wide Shot", "Speaker", "Slides", "Break"}
	return &MemoryEncoder{
		status: EncoderStatus{CurrentScene: scenes[0]},
		scenes: scenes,
	}
}

// Status returns a snapshot of the encoder state.
func (e *MemoryEncoder) Status() EncoderStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// SetStreaming starts or stops the streaming output.
func (e *MemoryEncoder) SetStreaming(active bool) EncoderStatus {
	e.mu.Lock()
	e.status.Streaming = active
	status := e.status
	listeners := e.listenersLocked()
	e.mu.Unlock()

	notify(listeners, EncoderEvent{Kind: EventStreamState, Active: active})
	return status
}

// SetRecording starts or stops the recording output.
func (e *MemoryEncoder) SetRecording(active bool) EncoderStatus {
	e.mu.Lock()
	e.status.Recording = active
	status := e.status
	listeners := e.listenersLocked()
	e.mu.Unlock()

	notify(listeners, EncoderEvent{Kind: EventRecordState, Active: active})
	return status
}

// Scenes returns a copy of the scene collection.
func (e *MemoryEncoder) Scenes() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	scenes := make([]string, len(e.scenes))
	copy(scenes, e.scenes)
	return scenes
}

// SetCurrentScene switches the program scene.
func (e *MemoryEncoder) SetCurrentScene(name string) error {
	e.mu.Lock()

	found := false
	for _, s := range e.scenes {
		if s == name {
			found = true
			break
		}
	}
	if !found {
		e.mu.Unlock()
		return ErrUnknownScene
	}

	e.status.CurrentScene = name
	listeners := e.listenersLocked()
	e.mu.Unlock()

	notify(listeners, EncoderEvent{Kind: EventSceneChanged, SceneName: name})
	return nil
}

// OnChange registers a state-change listener.
func (e *MemoryEncoder) OnChange(fn func(EncoderEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

func (e *MemoryEncoder) listenersLocked() []func(EncoderEvent) {
	out := make([]func(EncoderEvent), len(e.listeners))
	copy(out, e.listeners)
	return out
}

func notify(listeners []func(EncoderEvent), ev EncoderEvent) {
	for _, fn := range listeners {
		fn(ev)
	}
}
