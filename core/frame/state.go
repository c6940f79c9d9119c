// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package frame

import (
	"sync"

	"github.com/pkg/errors"
)

// ResourceState is the usage state of a back buffer.
type ResourceState int

// Back buffer states
const (
	StatePresent ResourceState = iota
	StateRenderTarget
)

func (rs ResourceState) String() string {
	switch rs {
	case StatePresent:
		return "PRESENT"
	case StateRenderTarget:
		return "RENDER_TARGET"
	default:
		return "UNKNOWN"
	}
}

// NewStateTracker tracks count back buffers, all in the present state.
func NewStateTracker(count int) *StateTracker {
	return &StateTracker{
		states: make([]ResourceState, count),
	}
}

// StateTracker remembers the recorded state of every back buffer
// and rejects transitions that start from the wrong state.
type StateTracker struct {
	mutex  sync.Mutex
	states []ResourceState
}

// State returns the recorded state of target.
func (st *StateTracker) State(target int) ResourceState {
	st.mutex.Lock()
	defer st.mutex.Unlock()
	return st.states[target]
}

// Transition moves target from before to after.
func (st *StateTracker) Transition(target int, before, after ResourceState) error {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	if target < 0 || target >= len(st.states) {
		return errors.Wrapf(ErrFrameIndex, "transition of %d", target)
	}
	if st.states[target] != before {
		return errors.Wrapf(ErrStateMismatch, "buffer %d is %s, barrier expects %s", target, st.states[target], before)
	}
	st.states[target] = after
	return nil
}

// Reset puts target back into the present state.
func (st *StateTracker) Reset(target int) {
	st.mutex.Lock()
	st.states[target] = StatePresent
	st.mutex.Unlock()
}
