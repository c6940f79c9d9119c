// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package frame implements buffered frame fencing: the bookkeeping that keeps
// the CPU from reusing a command allocator or back buffer while the GPU still
// reads from it, and the state transitions that bracket rendering work.
package frame

import (
	"context"
	"sync/atomic"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// DefaultBufferCount is the number of buffered frames.
const DefaultBufferCount = 3

// package errors
var (
	ErrStopped       = errors.New("frame loop is not running")
	ErrFrameIndex    = errors.New("back buffer index out of range")
	ErrStateMismatch = errors.New("resource is not in the expected state")
)

// Fence is a GPU signaled monotonic counter.
type Fence interface {

	// CompletedValue returns the last value the GPU signaled.
	CompletedValue() uint64

	// SetEventOnCompletion arranges for e to be set once
	// the fence reaches value.
	SetEventOnCompletion(value uint64, e *Event) error
}

// Allocator is the backing memory of recorded commands.
type Allocator interface {

	// Reset reclaims the memory. Only valid once the GPU
	// finished executing every list recorded into it.
	Reset() error
}

// CommandList records GPU commands into an Allocator.
type CommandList interface {

	// Reset opens the list for recording into a.
	Reset(a Allocator) error

	// ResourceBarrier records a state transition of back buffer target.
	ResourceBarrier(target int, before, after ResourceState) error

	// Close ends recording.
	Close() error
}

// Queue executes command lists and signals fences in submission order.
type Queue interface {
	ExecuteCommandLists(lists ...CommandList) error
	Signal(f Fence, value uint64) error
}

// SwapChain is the ring of presentable back buffers.
type SwapChain interface {

	// CurrentBackBufferIndex returns the back buffer the next frame renders to.
	CurrentBackBufferIndex() (int, error)

	// Present queues the current back buffer for display.
	Present() error
}

// Slot is the per frame resource set.
type Slot struct {
	Allocator Allocator
	Fence     Fence

	// Value is the fence value the GPU has to reach before
	// Allocator and the back buffer may be reused.
	Value uint64
}

// RecordFunc records the rendering work of one frame. It's called
// with the back buffer in the render target state.
type RecordFunc func(list CommandList, target int) error

// Resources is everything a Sync drives.
type Resources struct {
	Slots     []Slot
	List      CommandList
	Queue     Queue
	SwapChain SwapChain
	Logger    log.FieldLogger
}

// NewSync creates the frame synchronization for the given resources.
// All fence values start at zero.
func NewSync(res Resources) (*Sync, error) {
	if len(res.Slots) == 0 {
		return nil, errors.New("frame: at least one buffered frame is required")
	}
	for idx, slot := range res.Slots {
		if slot.Allocator == nil || slot.Fence == nil {
			return nil, errors.Errorf("frame: slot %d is missing an allocator or a fence", idx)
		}
	}
	if res.List == nil || res.Queue == nil || res.SwapChain == nil {
		return nil, errors.New("frame: command list, queue and swap chain are required")
	}

	logger := res.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}

	slots := make([]Slot, len(res.Slots))
	copy(slots, res.Slots)
	for idx := range slots {
		slots[idx].Value = 0
	}

	return &Sync{
		slots:     slots,
		list:      res.List,
		queue:     res.Queue,
		swapchain: res.SwapChain,
		event:     NewEvent(),
		states:    NewStateTracker(len(slots)),
		running:   1,
		log:       logger,
	}, nil
}

// Sync sequences frame submission over a ring of buffered frames.
// It is meant to be driven from a single render goroutine.
type Sync struct {
	slots     []Slot
	list      CommandList
	queue     Queue
	swapchain SwapChain
	event     *Event
	states    *StateTracker

	index   int
	frames  uint64
	running int32

	log log.FieldLogger
}

// Running reports whether the frame loop should keep going.
// It turns false on the first failed call.
func (s *Sync) Running() bool {
	return atomic.LoadInt32(&s.running) == 1
}

// Stop clears the running flag.
func (s *Sync) Stop() {
	atomic.StoreInt32(&s.running, 0)
}

// FrameIndex returns the back buffer index of the current frame.
func (s *Sync) FrameIndex() int {
	return s.index
}

// FenceValue returns the stored fence value of slot idx.
func (s *Sync) FenceValue(idx int) uint64 {
	return s.slots[idx].Value
}

// BufferCount returns the number of buffered frames.
func (s *Sync) BufferCount() int {
	return len(s.slots)
}

// Frames returns the number of submitted frames.
func (s *Sync) Frames() uint64 {
	return s.frames
}

// WaitForPreviousFrame selects the frame index from the swap chain and blocks
// until the GPU finished the work last submitted for it.
func (s *Sync) WaitForPreviousFrame(ctx context.Context) error {
	idx, err := s.swapchain.CurrentBackBufferIndex()
	if err != nil {
		return s.fail(err, "current back buffer index")
	}
	if idx < 0 || idx >= len(s.slots) {
		return s.fail(errors.Wrapf(ErrFrameIndex, "index %d of %d", idx, len(s.slots)), "current back buffer index")
	}
	s.index = idx

	if err := s.waitSlot(ctx, idx); err != nil {
		return s.fail(err, "wait for previous frame")
	}
	return nil
}

func (s *Sync) waitSlot(ctx context.Context, idx int) error {
	slot := s.slots[idx]
	for slot.Fence.CompletedValue() < slot.Value {
		s.log.WithFields(log.Fields{
			"frame":     idx,
			"value":     slot.Value,
			"completed": slot.Fence.CompletedValue(),
		}).Debug("waiting for fence")

		if err := slot.Fence.SetEventOnCompletion(slot.Value, s.event); err != nil {
			return errors.Wrap(err, "set event on completion")
		}
		if err := s.event.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// UpdatePipeline waits for the current frame to be free and records its
// command list: the transition into the render target state, the work done
// by record and the transition back to the present state.
func (s *Sync) UpdatePipeline(ctx context.Context, record RecordFunc) error {
	if err := s.WaitForPreviousFrame(ctx); err != nil {
		return err
	}

	slot := s.slots[s.index]
	if err := slot.Allocator.Reset(); err != nil {
		return s.fail(err, "command allocator reset")
	}
	if err := s.list.Reset(slot.Allocator); err != nil {
		return s.fail(err, "command list reset")
	}

	if err := s.transition(StatePresent, StateRenderTarget); err != nil {
		return s.fail(err, "transition to render target")
	}

	if record != nil {
		if err := record(s.list, s.index); err != nil {
			s.states.Reset(s.index)
			// closed unexecuted, so the next Reset finds it closed
			if cerr := s.list.Close(); cerr != nil {
				s.log.WithField("error", cerr).Debug("command list close after failed record")
			}
			return s.fail(err, "record frame")
		}
	}

	if err := s.transition(StateRenderTarget, StatePresent); err != nil {
		return s.fail(err, "transition to present")
	}

	if err := s.list.Close(); err != nil {
		return s.fail(err, "command list close")
	}
	return nil
}

func (s *Sync) transition(before, after ResourceState) error {
	if err := s.states.Transition(s.index, before, after); err != nil {
		return err
	}
	return s.list.ResourceBarrier(s.index, before, after)
}

// Render records, submits and presents one frame. After the command list is
// submitted the frame's fence value is incremented and signaled on the same
// queue, so the next use of this frame index waits for this submission.
func (s *Sync) Render(ctx context.Context, record RecordFunc) error {
	if !s.Running() {
		return ErrStopped
	}

	if err := s.UpdatePipeline(ctx, record); err != nil {
		return err
	}

	if err := s.queue.ExecuteCommandLists(s.list); err != nil {
		return s.fail(err, "execute command lists")
	}

	slot := &s.slots[s.index]
	slot.Value++
	if err := s.queue.Signal(slot.Fence, slot.Value); err != nil {
		slot.Value--
		return s.fail(err, "queue signal")
	}

	if err := s.swapchain.Present(); err != nil {
		return s.fail(err, "present")
	}

	s.frames++
	return nil
}

// Cleanup waits until the GPU finished with every buffered frame.
// Resources may be released once it returns without error.
func (s *Sync) Cleanup(ctx context.Context) error {
	for idx := range s.slots {
		if err := s.waitSlot(ctx, idx); err != nil {
			return errors.Wrapf(err, "drain frame %d", idx)
		}
	}
	s.log.WithField("frames", s.frames).Info("frames drained")
	return nil
}

func (s *Sync) fail(err error, msg string) error {
	s.Stop()
	err = errors.Wrap(err, msg)
	entry := s.log.WithFields(log.Fields{
		"frame": s.index,
		"error": err,
	})
	if errors.Cause(err) == context.Canceled {
		entry.Info("frame loop cancelled")
	} else {
		entry.Error("frame loop stopped")
	}
	return err
}
