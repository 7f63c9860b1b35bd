package devicemodel

import (
	"errors"
	"testing"
)

func TestMemorySwitcherTransitions(t *testing.T) {
	s := NewMemorySwitcher()

	me, err := s.Cut(0)
	if err != nil {
		t.Fatalf("Cut() error = %v", err)
	}
	if me.Program != 2 || me.Preview != 1 {
		t.Errorf("after Cut: program=%d preview=%d, want 2/1", me.Program, me.Preview)
	}

	me, err = s.RunAutoTransition(0)
	if err != nil {
		t.Fatalf("RunAutoTransition() error = %v", err)
	}
	if me.Program != 1 || me.Preview != 2 {
		t.Errorf("after auto: program=%d preview=%d, want 1/2", me.Program, me.Preview)
	}

	if _, err := s.Cut(5); !errors.Is(err, ErrUnknownMixEffect) {
		t.Errorf("Cut(5) error = %v, want ErrUnknownMixEffect", err)
	}
}

func TestMemorySwitcherSnapshotIsolation(t *testing.T) {
	s := NewMemorySwitcher()

	snap := s.State()
	snap.MixEffects[0].Program = 7
	snap.Inputs[1] = InputLabel{Long: "Hacked", Short: "HAK"}

	fresh := s.State()
	if fresh.MixEffects[0].Program != 1 {
		t.Errorf("snapshot mutation leaked into model: program = %d", fresh.MixEffects[0].Program)
	}
	if fresh.Inputs[1].Long != "Camera 1" {
		t.Errorf("snapshot mutation leaked into model: label = %q", fresh.Inputs[1].Long)
	}
}

func TestMemorySwitcherLabelPatch(t *testing.T) {
	s := NewMemorySwitcher()

	long := "Podium"
	got, err := s.SetInputLabel(3, LabelPatch{Long: &long})
	if err != nil {
		t.Fatalf("SetInputLabel() error = %v", err)
	}
	if got.Long != "Podium" || got.Short != "CAM3" {
		t.Errorf("patched label = %+v, want long updated and short kept", got)
	}

	if _, err := s.SetInputLabel(99, LabelPatch{Long: &long}); !errors.Is(err, ErrUnknownInput) {
		t.Errorf("SetInputLabel(99) error = %v, want ErrUnknownInput", err)
	}
}

func TestMemoryEncoderEvents(t *testing.T) {
	e := NewMemoryEncoder()

	var events []EncoderEvent
	e.OnChange(func(ev EncoderEvent) { events = append(events, ev) })

	e.SetStreaming(true)
	e.SetRecording(true)
	if err := e.SetCurrentScene("Speaker"); err != nil {
		t.Fatalf("SetCurrentScene() error = %v", err)
	}
	if err := e.SetCurrentScene("No Such Scene"); !errors.Is(err, ErrUnknownScene) {
		t.Errorf("SetCurrentScene(bogus) error = %v, want ErrUnknownScene", err)
	}

	want := []EncoderEvent{
		{Kind: EventStreamState, Active: true},
		{Kind: EventRecordState, Active: true},
		{Kind: EventSceneChanged, SceneName: "Speaker"},
	}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d", len(events), len(want))
	}
	for i, ev := range want {
		if events[i] != ev {
			t.Errorf("events[%d] = %+v, want %+v", i, events[i], ev)
		}
	}

	st := e.Status()
	if !st.Streaming || !st.Recording || st.CurrentScene != "Speaker" {
		t.Errorf("Status() = %+v", st)
	}
}

func TestMemoryRecorderPlayheadBounds(t *testing.T) {
	r := NewMemoryRecorder()

	if got := r.PreviousClip(); got != 1 {
		t.Errorf("PreviousClip() at start = %d, want 1", got)
	}

	last := len(r.Clips())
	for i := 0; i < last+3; i++ {
		r.NextClip()
	}
	if got := r.CurrentClip(); got != last {
		t.Errorf("CurrentClip() after overrun = %d, want %d", got, last)
	}
}

func TestMemoryRecorderRecordAppendsClip(t *testing.T) {
	r := NewMemoryRecorder()
	before := len(r.Clips())

	ts := r.Record()
	if ts.Mode != TransportRecord {
		t.Errorf("Mode = %q, want %q", ts.Mode, TransportRecord)
	}
	if ts.ClipID != before+1 {
		t.Errorf("ClipID = %d, want %d", ts.ClipID, before+1)
	}
	if got := len(r.Clips()); got != before+1 {
		t.Errorf("len(Clips()) = %d, want %d", got, before+1)
	}

	ts = r.Stop()
	if ts.Mode != TransportStopped || ts.Speed != 0 {
		t.Errorf("after Stop: %+v", ts)
	}
}
