package devicemodel

import (
	"fmt"
	"sync"
)

// defaultTransitionRate is the seeded auto-transition rate in frames.
const defaultTransitionRate = 25

// MemorySwitcher is an in-memory Switcher implementation.
// Safe for concurrent use by multiple adapters.
type MemorySwitcher struct {
	mu    sync.Mutex
	state SwitcherState
}

// NewMemorySwitcher creates a switcher model seeded with one mix effect,
// eight labeled camera inputs, program on input 1 and preview on input 2.
func NewMemorySwitcher() *MemorySwitcher {
	inputs := make(map[uint16]InputLabel, DefaultInputCount)
	for i := 1; i <= DefaultInputCount; i++ {
		inputs[uint16(i)] = InputLabel{
			Long:  fmt.Sprintf("Camera %d", i),
			Short: fmt.Sprintf("CAM%d", i),
		}
	}

	return &MemorySwitcher{
		state: SwitcherState{
			ProtocolMajor: 2,
			ProtocolMinor: 30,
			Product:       "Lab Production Switcher",
			MixEffects: []MixEffectState{
				{Program: 1, Preview: 2, TransitionRate: defaultTransitionRate},
			},
			Inputs:    inputs,
			Recording: RecordingIdle,
		},
	}
}

// State returns a deep-copied snapshot.
func (s *MemorySwitcher) State() SwitcherState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *MemorySwitcher) snapshotLocked() SwitcherState {
	snap := s.state
	snap.MixEffects = make([]MixEffectState, len(s.state.MixEffects))
	copy(snap.MixEffects, s.state.MixEffects)
	snap.Inputs = make(map[uint16]InputLabel, len(s.state.Inputs))
	for id, label := range s.state.Inputs {
		snap.Inputs[id] = label
	}
	return snap
}

// SetProgramInput routes source onto the program bus.
func (s *MemorySwitcher) SetProgramInput(me int, source uint16) (MixEffectState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if me < 0 || me >= len(s.state.MixEffects) {
		return MixEffectState{}, ErrUnknownMixEffect
	}
	s.state.MixEffects[me].Program = source
	return s.state.MixEffects[me], nil
}

// SetPreviewInput routes source onto the preview bus.
func (s *MemorySwitcher) SetPreviewInput(me int, source uint16) (MixEffectState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if me < 0 || me >= len(s.state.MixEffects) {
		return MixEffectState{}, ErrUnknownMixEffect
	}
	s.state.MixEffects[me].Preview = source
	return s.state.MixEffects[me], nil
}

// Cut swaps program and preview.
func (s *MemorySwitcher) Cut(me int) (MixEffectState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.swapLocked(me)
}

// RunAutoTransition swaps program and preview. The adapter defers the
// network reply for the transition duration.
func (s *MemorySwitcher) RunAutoTransition(me int) (MixEffectState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.swapLocked(me)
}

func (s *MemorySwitcher) swapLocked(me int) (MixEffectState, error) {
	if me < 0 || me >= len(s.state.MixEffects) {
		return MixEffectState{}, ErrUnknownMixEffect
	}
	m := &s.state.MixEffects[me]
	m.Program, m.Preview = m.Preview, m.Program
	return *m, nil
}

// TransitionRate returns the configured transition rate in frames.
func (s *MemorySwitcher) TransitionRate(me int) uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if me < 0 || me >= len(s.state.MixEffects) {
		return defaultTransitionRate
	}
	return s.state.MixEffects[me].TransitionRate
}

// InputLabel returns the label of one input.
func (s *MemorySwitcher) InputLabel(id uint16) (InputLabel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	label, ok := s.state.Inputs[id]
	if !ok {
		return InputLabel{}, ErrUnknownInput
	}
	return label, nil
}

// SetInputLabel applies a partial label update.
func (s *MemorySwitcher) SetInputLabel(id uint16, patch LabelPatch) (InputLabel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	label, ok := s.state.Inputs[id]
	if !ok {
		return InputLabel{}, ErrUnknownInput
	}
	if patch.Long != nil {
		label.Long = *patch.Long
	}
	if patch.Short != nil {
		label.Short = *patch.Short
	}
	s.state.Inputs[id] = label
	return label, nil
}

// SetRecordingAction applies a recording transport action.
func (s *MemorySwitcher) SetRecordingAction(cmd RecordingCommand) RecordingState {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch cmd {
	case RecordingStart:
		s.state.Recording = RecordingActive
	case RecordingStop:
		s.state.Recording = RecordingIdle
	}
	return s.state.Recording
}
