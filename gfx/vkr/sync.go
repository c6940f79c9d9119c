// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"

	"github.com/devblok/hellotriangle/core/frame"
)

// package errors
var (
	ErrFenceBusy     = errors.New("fence is still pending on the GPU")
	ErrFenceValue    = errors.New("fence values must increase")
	ErrNeverSignaled = errors.New("fence value was never signaled")
	ErrWrongType     = errors.New("object belongs to another backend")
	ErrListOpen      = errors.New("command list is open")
	ErrListClosed    = errors.New("command list is closed")
)

// NewFence creates an unsignaled fence with value zero.
func NewFence(device vk.Device, logger log.FieldLogger) (*Fence, error) {
	fci := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	var fence vk.Fence
	if err := vk.Error(vk.CreateFence(device, &fci, nil, &fence)); err != nil {
		return nil, errors.Wrap(err, "vk.CreateFence()")
	}
	return &Fence{
		device: device,
		fence:  fence,
		log:    logger,
	}, nil
}

// Fence carries a monotonic value on top of a binary vk.Fence.
// Only one signal may be pending at a time, which holds as long as
// a value is signaled again only after its previous one completed.
type Fence struct {
	device vk.Device
	fence  vk.Fence
	log    log.FieldLogger

	mutex     sync.Mutex
	pending   uint64
	completed uint64
}

// refresh must be called with the mutex held.
func (f *Fence) refresh() {
	if f.completed < f.pending && vk.GetFenceStatus(f.device, f.fence) == vk.Success {
		f.completed = f.pending
	}
}

// CompletedValue implements frame.Fence.
func (f *Fence) CompletedValue() uint64 {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.refresh()
	return f.completed
}

// SetEventOnCompletion implements frame.Fence.
func (f *Fence) SetEventOnCompletion(value uint64, e *frame.Event) error {
	f.mutex.Lock()
	f.refresh()
	if f.completed >= value {
		f.mutex.Unlock()
		e.Set()
		return nil
	}
	if value > f.pending {
		f.mutex.Unlock()
		return errors.Wrapf(ErrNeverSignaled, "waiting for %d, last signal %d", value, f.pending)
	}
	f.mutex.Unlock()

	go func() {
		ret := vk.WaitForFences(f.device, 1, []vk.Fence{f.fence}, vk.True, vk.MaxUint64)
		if err := vk.Error(ret); err != nil {
			f.log.WithField("error", err).Error("vk.WaitForFences()")
		}
		e.Set()
	}()
	return nil
}

// Release destroys the fence.
func (f *Fence) Release() {
	vk.DestroyFence(f.device, f.fence, nil)
}

// NewQueue wraps the device queue. Submissions wait for the swap chain's
// acquired image and signal its render finished semaphore.
func NewQueue(queue vk.Queue, swapchain *SwapChain) *Queue {
	return &Queue{
		queue:     queue,
		swapchain: swapchain,
	}
}

// Queue executes command lists and signals fences in submission order.
type Queue struct {
	queue     vk.Queue
	swapchain *SwapChain
}

// ExecuteCommandLists implements frame.Queue.
func (q *Queue) ExecuteCommandLists(lists ...frame.CommandList) error {
	buffers := make([]vk.CommandBuffer, 0, len(lists))
	for _, l := range lists {
		vl, ok := l.(*CommandList)
		if !ok {
			return errors.Wrapf(ErrWrongType, "command list %T", l)
		}
		if vl.open {
			return errors.Wrap(ErrListOpen, "execute")
		}
		buffers = append(buffers, vl.allocator.buffer)
	}

	submit := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: uint32(len(buffers)),
		PCommandBuffers:    buffers,
	}
	sc := q.swapchain
	if sc != nil && sc.acquired && !sc.rendered {
		submit.WaitSemaphoreCount = 1
		submit.PWaitSemaphores = []vk.Semaphore{sc.acquireSemaphores[sc.current]}
		submit.PWaitDstStageMask = []vk.PipelineStageFlags{
			vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		}
		submit.SignalSemaphoreCount = 1
		submit.PSignalSemaphores = []vk.Semaphore{sc.renderFinished[sc.current]}
	}

	if err := vk.Error(vk.QueueSubmit(q.queue, 1, []vk.SubmitInfo{submit}, vk.NullFence)); err != nil {
		return errors.Wrap(err, "vk.QueueSubmit()")
	}
	if submit.SignalSemaphoreCount > 0 {
		sc.rendered = true
	}
	return nil
}

// Signal implements frame.Queue. The fence is signaled by an empty
// submission, which completes after all work submitted before it.
func (q *Queue) Signal(f frame.Fence, value uint64) error {
	vf, ok := f.(*Fence)
	if !ok {
		return errors.Wrapf(ErrWrongType, "fence %T", f)
	}

	vf.mutex.Lock()
	defer vf.mutex.Unlock()

	if value <= vf.pending {
		return errors.Wrapf(ErrFenceValue, "signal %d after %d", value, vf.pending)
	}
	vf.refresh()
	if vf.completed < vf.pending {
		return errors.Wrapf(ErrFenceBusy, "signal %d while %d is pending", value, vf.pending)
	}

	if err := vk.Error(vk.ResetFences(vf.device, 1, []vk.Fence{vf.fence})); err != nil {
		return errors.Wrap(err, "vk.ResetFences()")
	}
	submit := []vk.SubmitInfo{{
		SType: vk.StructureTypeSubmitInfo,
	}}
	if err := vk.Error(vk.QueueSubmit(q.queue, 1, submit, vf.fence)); err != nil {
		return errors.Wrap(err, "vk.QueueSubmit(signal)")
	}
	vf.pending = value
	return nil
}

// WaitIdle blocks until the queue finished all submitted work.
func (q *Queue) WaitIdle() error {
	return errors.Wrap(vk.Error(vk.QueueWaitIdle(q.queue)), "vk.QueueWaitIdle()")
}
