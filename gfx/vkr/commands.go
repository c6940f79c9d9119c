// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/devblok/hellotriangle/core/frame"
)

// NewAllocator creates a command pool with one primary command buffer.
func NewAllocator(device vk.Device, queueFamily uint32) (*Allocator, error) {
	cpci := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit),
		QueueFamilyIndex: queueFamily,
	}

	var commandPool vk.CommandPool
	if err := vk.Error(vk.CreateCommandPool(device, &cpci, nil, &commandPool)); err != nil {
		return nil, errors.Wrap(err, "vk.CreateCommandPool()")
	}

	cbai := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        commandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	commandBuffers := make([]vk.CommandBuffer, 1)
	if err := vk.Error(vk.AllocateCommandBuffers(device, &cbai, commandBuffers)); err != nil {
		vk.DestroyCommandPool(device, commandPool, nil)
		return nil, errors.Wrap(err, "vk.AllocateCommandBuffers()")
	}

	return &Allocator{
		device: device,
		pool:   commandPool,
		buffer: commandBuffers[0],
	}, nil
}

// Allocator owns the memory of one frame's commands.
type Allocator struct {
	device vk.Device
	pool   vk.CommandPool
	buffer vk.CommandBuffer
}

// Reset implements frame.Allocator.
func (a *Allocator) Reset() error {
	return errors.Wrap(vk.Error(vk.ResetCommandPool(a.device, a.pool, 0)), "vk.ResetCommandPool()")
}

// Release frees the command buffer and the pool.
func (a *Allocator) Release() {
	vk.FreeCommandBuffers(a.device, a.pool, 1, []vk.CommandBuffer{a.buffer})
	vk.DestroyCommandPool(a.device, a.pool, nil)
}

// NewCommandList creates a closed list that transitions the swap chain's images.
func NewCommandList(swapchain *SwapChain) *CommandList {
	return &CommandList{
		swapchain: swapchain,
	}
}

// CommandList records into the command buffer of the allocator it was reset with.
type CommandList struct {
	swapchain *SwapChain
	allocator *Allocator
	open      bool
}

// Buffer returns the command buffer being recorded.
func (l *CommandList) Buffer() vk.CommandBuffer {
	if l.allocator == nil {
		return nil
	}
	return l.allocator.buffer
}

// Reset implements frame.CommandList.
func (l *CommandList) Reset(a frame.Allocator) error {
	va, ok := a.(*Allocator)
	if !ok {
		return errors.Wrapf(ErrWrongType, "allocator %T", a)
	}
	if l.open {
		return ErrListOpen
	}

	cbbi := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := vk.Error(vk.BeginCommandBuffer(va.buffer, &cbbi)); err != nil {
		return errors.Wrap(err, "vk.BeginCommandBuffer()")
	}
	l.allocator = va
	l.open = true
	return nil
}

// ResourceBarrier implements frame.CommandList with an image layout transition.
func (l *CommandList) ResourceBarrier(target int, before, after frame.ResourceState) error {
	if !l.open {
		return ErrListClosed
	}
	if target < 0 || target >= len(l.swapchain.images) {
		return errors.Wrapf(frame.ErrFrameIndex, "barrier on image %d", target)
	}

	barrier, err := imageBarrier(before, after)
	if err != nil {
		return err
	}
	if !l.swapchain.initialised[target] {
		// never presented, contents are undefined
		barrier.OldLayout = vk.ImageLayoutUndefined
		l.swapchain.initialised[target] = true
	}
	barrier.Image = l.swapchain.images[target]

	srcStage, dstStage := barrierStages(before, after)
	vk.CmdPipelineBarrier(l.allocator.buffer, srcStage, dstStage, 0,
		0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
	return nil
}

// Close implements frame.CommandList.
func (l *CommandList) Close() error {
	if !l.open {
		return ErrListClosed
	}
	l.open = false
	return errors.Wrap(vk.Error(vk.EndCommandBuffer(l.allocator.buffer)), "vk.EndCommandBuffer()")
}

func imageLayout(state frame.ResourceState) (vk.ImageLayout, error) {
	switch state {
	case frame.StatePresent:
		return vk.ImageLayoutPresentSrc, nil
	case frame.StateRenderTarget:
		return vk.ImageLayoutColorAttachmentOptimal, nil
	default:
		return vk.ImageLayoutUndefined, errors.Wrapf(frame.ErrStateMismatch, "no image layout for %s", state)
	}
}

func accessMask(state frame.ResourceState) vk.AccessFlags {
	if state == frame.StateRenderTarget {
		return vk.AccessFlags(vk.AccessColorAttachmentWriteBit)
	}
	return 0
}

func imageBarrier(before, after frame.ResourceState) (vk.ImageMemoryBarrier, error) {
	oldLayout, err := imageLayout(before)
	if err != nil {
		return vk.ImageMemoryBarrier{}, err
	}
	newLayout, err := imageLayout(after)
	if err != nil {
		return vk.ImageMemoryBarrier{}, err
	}
	return vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       accessMask(before),
		DstAccessMask:       accessMask(after),
		OldLayout:           oldLayout,
		NewLayout:           newLayout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LevelCount: 1,
			LayerCount: 1,
		},
	}, nil
}

// barrierStages waits on color output, which is also where
// the image acquire semaphore is waited on.
func barrierStages(before, after frame.ResourceState) (src, dst vk.PipelineStageFlags) {
	src = vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	dst = vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	if after == frame.StatePresent {
		dst = vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)
	}
	return src, dst
}
