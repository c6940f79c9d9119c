// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"context"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/devblok/hellotriangle/core/frame"
)

func TestFindMemoryType(t *testing.T) {
	hostVisible := vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	types := []vk.MemoryPropertyFlags{
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
		hostVisible,
		hostVisible | vk.MemoryPropertyFlags(vk.MemoryPropertyHostCachedBit),
	}

	tests := []struct {
		name   string
		filter uint32
		prop   vk.MemoryPropertyFlags
		idx    uint32
		err    error
	}{
		{name: "device local", filter: 0x7, prop: vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit), idx: 0},
		{name: "first host visible", filter: 0x7, prop: hostVisible, idx: 1},
		{name: "filtered", filter: 0x4, prop: hostVisible, idx: 2},
		{name: "none allowed", filter: 0x1, prop: hostVisible, err: ErrNoMemoryType},
		{name: "outside types", filter: 0x8, prop: 0, err: ErrNoMemoryType},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := qt.New(t)
			idx, err := findMemoryType(types, test.filter, test.prop)
			if test.err != nil {
				c.Assert(errors.Cause(err), qt.Equals, test.err)
				return
			}
			c.Assert(err, qt.IsNil)
			c.Assert(idx, qt.Equals, test.idx)
		})
	}
}

func TestImageBarrier(t *testing.T) {
	c := qt.New(t)

	toTarget, err := imageBarrier(frame.StatePresent, frame.StateRenderTarget)
	c.Assert(err, qt.IsNil)
	c.Assert(toTarget.OldLayout, qt.Equals, vk.ImageLayoutPresentSrc)
	c.Assert(toTarget.NewLayout, qt.Equals, vk.ImageLayoutColorAttachmentOptimal)
	c.Assert(toTarget.SrcAccessMask, qt.Equals, vk.AccessFlags(0))
	c.Assert(toTarget.DstAccessMask, qt.Equals, vk.AccessFlags(vk.AccessColorAttachmentWriteBit))

	toPresent, err := imageBarrier(frame.StateRenderTarget, frame.StatePresent)
	c.Assert(err, qt.IsNil)
	c.Assert(toPresent.OldLayout, qt.Equals, vk.ImageLayoutColorAttachmentOptimal)
	c.Assert(toPresent.NewLayout, qt.Equals, vk.ImageLayoutPresentSrc)
	c.Assert(toPresent.SrcAccessMask, qt.Equals, vk.AccessFlags(vk.AccessColorAttachmentWriteBit))

	_, dst := barrierStages(frame.StateRenderTarget, frame.StatePresent)
	c.Assert(dst, qt.Equals, vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit))

	_, err = imageBarrier(frame.ResourceState(42), frame.StatePresent)
	c.Assert(errors.Cause(err), qt.Equals, frame.ErrStateMismatch)
}

func TestSwapExtent(t *testing.T) {
	c := qt.New(t)

	caps := vk.SurfaceCapabilities{
		CurrentExtent:  vk.Extent2D{Width: 1024, Height: 768},
		MinImageExtent: vk.Extent2D{Width: 1, Height: 1},
		MaxImageExtent: vk.Extent2D{Width: 4096, Height: 4096},
	}
	c.Assert(swapExtent(caps, 800, 600), qt.Equals, vk.Extent2D{Width: 1024, Height: 768})

	caps.CurrentExtent = vk.Extent2D{Width: 0xFFFFFFFF, Height: 0xFFFFFFFF}
	c.Assert(swapExtent(caps, 800, 600), qt.Equals, vk.Extent2D{Width: 800, Height: 600})
	c.Assert(swapExtent(caps, 8000, 0), qt.Equals, vk.Extent2D{Width: 4096, Height: 1})
}

func TestSwapImageCount(t *testing.T) {
	c := qt.New(t)

	caps := vk.SurfaceCapabilities{MinImageCount: 2, MaxImageCount: 0}
	c.Assert(swapImageCount(caps, 3), qt.Equals, uint32(3))
	c.Assert(swapImageCount(caps, 1), qt.Equals, uint32(2))

	caps.MaxImageCount = 2
	c.Assert(swapImageCount(caps, 3), qt.Equals, uint32(2))
}

type otherFence struct{}

func (otherFence) CompletedValue() uint64                          { return 0 }
func (otherFence) SetEventOnCompletion(uint64, *frame.Event) error { return nil }

type otherList struct{}

func (otherList) Reset(frame.Allocator) error                                         { return nil }
func (otherList) ResourceBarrier(int, frame.ResourceState, frame.ResourceState) error { return nil }
func (otherList) Close() error                                                        { return nil }

type otherAllocator struct{}

func (otherAllocator) Reset() error { return nil }

func TestForeignObjects(t *testing.T) {
	c := qt.New(t)
	q := NewQueue(nil, nil)

	err := q.ExecuteCommandLists(otherList{})
	c.Assert(errors.Cause(err), qt.Equals, ErrWrongType)

	err = q.Signal(otherFence{}, 1)
	c.Assert(errors.Cause(err), qt.Equals, ErrWrongType)

	err = NewCommandList(&SwapChain{}).Reset(otherAllocator{})
	c.Assert(errors.Cause(err), qt.Equals, ErrWrongType)
}

func TestOpenListIsNotExecuted(t *testing.T) {
	c := qt.New(t)
	l := NewCommandList(&SwapChain{})
	l.open = true

	err := NewQueue(nil, nil).ExecuteCommandLists(l)
	c.Assert(errors.Cause(err), qt.Equals, ErrListOpen)
}

func TestClosedList(t *testing.T) {
	c := qt.New(t)
	l := NewCommandList(&SwapChain{})

	c.Assert(l.Buffer(), qt.IsNil)
	c.Assert(l.Close(), qt.Equals, ErrListClosed)
	c.Assert(l.ResourceBarrier(0, frame.StatePresent, frame.StateRenderTarget), qt.Equals, ErrListClosed)
}

func TestFenceWithoutSignal(t *testing.T) {
	c := qt.New(t)
	f := &Fence{}
	e := frame.NewEvent()

	c.Assert(f.CompletedValue(), qt.Equals, uint64(0))

	c.Assert(f.SetEventOnCompletion(0, e), qt.IsNil)
	c.Assert(e.Wait(context.Background()), qt.IsNil)

	err := f.SetEventOnCompletion(1, e)
	c.Assert(errors.Cause(err), qt.Equals, ErrNeverSignaled)
}

func TestSignalValuesIncrease(t *testing.T) {
	c := qt.New(t)
	f := &Fence{pending: 3, completed: 3}

	err := NewQueue(nil, nil).Signal(f, 3)
	c.Assert(errors.Cause(err), qt.Equals, ErrFenceValue)
}

func TestPresentWithoutAcquire(t *testing.T) {
	c := qt.New(t)
	sc := &SwapChain{}
	c.Assert(sc.Present(), qt.Equals, ErrNotAcquired)

	sc.acquired, sc.current = true, 2
	idx, err := sc.CurrentBackBufferIndex()
	c.Assert(err, qt.IsNil)
	c.Assert(idx, qt.Equals, 2)
}
