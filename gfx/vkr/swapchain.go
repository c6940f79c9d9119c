// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"math"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// package errors
var (
	ErrNotAcquired = errors.New("no swap chain image is acquired")
	ErrOutOfDate   = errors.New("swap chain is out of date")
)

// SwapChainConfig describes the requested swap chain.
type SwapChainConfig struct {
	Width, Height uint32
	MinImageCount uint32
}

// NewSwapChain creates the swap chain of surface, its image views and
// the semaphores that order acquire, render and present.
func NewSwapChain(device vk.Device, physical vk.PhysicalDevice, queue vk.Queue, surface vk.Surface, cfg SwapChainConfig) (*SwapChain, error) {
	var surfaceCapabilities vk.SurfaceCapabilities
	if err := vk.Error(vk.GetPhysicalDeviceSurfaceCapabilities(physical, surface, &surfaceCapabilities)); err != nil {
		return nil, errors.Wrap(err, "vk.GetPhysicalDeviceSurfaceCapabilities()")
	}
	surfaceCapabilities.Deref()
	surfaceCapabilities.CurrentExtent.Deref()
	surfaceCapabilities.MinImageExtent.Deref()
	surfaceCapabilities.MaxImageExtent.Deref()

	var surfaceFormatCount uint32
	if err := vk.Error(vk.GetPhysicalDeviceSurfaceFormats(physical, surface, &surfaceFormatCount, nil)); err != nil {
		return nil, errors.Wrap(err, "vk.GetPhysicalDeviceSurfaceFormats()")
	}
	if surfaceFormatCount == 0 {
		return nil, errors.New("surface reports no formats")
	}
	surfaceFormats := make([]vk.SurfaceFormat, surfaceFormatCount)
	if err := vk.Error(vk.GetPhysicalDeviceSurfaceFormats(physical, surface, &surfaceFormatCount, surfaceFormats)); err != nil {
		return nil, errors.Wrap(err, "vk.GetPhysicalDeviceSurfaceFormats()")
	}
	surfaceFormats[0].Deref()
	format := surfaceFormats[0].Format
	if format == vk.FormatUndefined {
		format = vk.FormatB8g8r8a8Unorm
	}

	compositeAlpha := vk.CompositeAlphaOpaqueBit
	compositeAlphaFlags := []vk.CompositeAlphaFlagBits{
		vk.CompositeAlphaOpaqueBit,
		vk.CompositeAlphaPreMultipliedBit,
		vk.CompositeAlphaPostMultipliedBit,
		vk.CompositeAlphaInheritBit,
	}
	for i := 0; i < len(compositeAlphaFlags); i++ {
		if surfaceCapabilities.SupportedCompositeAlpha&vk.CompositeAlphaFlags(compositeAlphaFlags[i]) != 0 {
			compositeAlpha = compositeAlphaFlags[i]
			break
		}
	}

	extent := swapExtent(surfaceCapabilities, cfg.Width, cfg.Height)
	imageCount := swapImageCount(surfaceCapabilities, cfg.MinImageCount)

	scci := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          surface,
		MinImageCount:    imageCount,
		ImageFormat:      format,
		ImageColorSpace:  surfaceFormats[0].ColorSpace,
		ImageExtent:      extent,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     vk.SurfaceTransformIdentityBit,
		CompositeAlpha:   compositeAlpha,
		PresentMode:      vk.PresentModeFifo,
		Clipped:          vk.True,
		ImageArrayLayers: 1,
		ImageSharingMode: vk.SharingModeExclusive,
	}

	var swapchain vk.Swapchain
	if err := vk.Error(vk.CreateSwapchain(device, &scci, nil, &swapchain)); err != nil {
		return nil, errors.Wrap(err, "vk.CreateSwapchain()")
	}

	sc := &SwapChain{
		device:    device,
		queue:     queue,
		swapchain: swapchain,
		format:    format,
		extent:    extent,
	}
	if err := sc.prepare(); err != nil {
		sc.Release()
		return nil, err
	}
	return sc, nil
}

// swapExtent uses the surface's extent unless the surface leaves it
// to the swap chain.
func swapExtent(caps vk.SurfaceCapabilities, width, height uint32) vk.Extent2D {
	if caps.CurrentExtent.Width != math.MaxUint32 {
		return caps.CurrentExtent
	}
	clamp := func(v, min, max uint32) uint32 {
		if v < min {
			return min
		}
		if v > max {
			return max
		}
		return v
	}
	return vk.Extent2D{
		Width:  clamp(width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: clamp(height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

// swapImageCount clamps the requested count, a maximum of zero means unlimited.
func swapImageCount(caps vk.SurfaceCapabilities, requested uint32) uint32 {
	count := requested
	if count < caps.MinImageCount {
		count = caps.MinImageCount
	}
	if caps.MaxImageCount > 0 && count > caps.MaxImageCount {
		count = caps.MaxImageCount
	}
	return count
}

// SwapChain is the ring of presentable images. An image is acquired
// lazily by the first CurrentBackBufferIndex call of a frame.
type SwapChain struct {
	device    vk.Device
	queue     vk.Queue
	swapchain vk.Swapchain
	format    vk.Format
	extent    vk.Extent2D

	images      []vk.Image
	views       []vk.ImageView
	initialised []bool

	// acquireSemaphores[i] is signaled when image i can be rendered to.
	// spare is swapped in on every acquire, the swapped out semaphore
	// was waited on by a frame the GPU finished before the next acquire.
	acquireSemaphores []vk.Semaphore
	renderFinished    []vk.Semaphore
	spare             vk.Semaphore

	current  int
	acquired bool
	rendered bool
	presents uint64
}

func (sc *SwapChain) prepare() error {
	var numImages uint32
	if err := vk.Error(vk.GetSwapchainImages(sc.device, sc.swapchain, &numImages, nil)); err != nil {
		return errors.Wrap(err, "vk.GetSwapchainImages(num)")
	}
	sc.images = make([]vk.Image, numImages)
	if err := vk.Error(vk.GetSwapchainImages(sc.device, sc.swapchain, &numImages, sc.images)); err != nil {
		return errors.Wrap(err, "vk.GetSwapchainImages(images)")
	}
	sc.initialised = make([]bool, numImages)

	for idx, image := range sc.images {
		ivci := vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    image,
			ViewType: vk.ImageViewType2d,
			Format:   sc.format,
			Components: vk.ComponentMapping{
				R: vk.ComponentSwizzleIdentity,
				G: vk.ComponentSwizzleIdentity,
				B: vk.ComponentSwizzleIdentity,
				A: vk.ComponentSwizzleIdentity,
			},
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LevelCount: 1,
				LayerCount: 1,
			},
		}
		var imageView vk.ImageView
		if err := vk.Error(vk.CreateImageView(sc.device, &ivci, nil, &imageView)); err != nil {
			return errors.Wrapf(err, "vk.CreateImageView(%d)", idx)
		}
		sc.views = append(sc.views, imageView)
	}

	sci := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	newSemaphore := func() (vk.Semaphore, error) {
		var semaphore vk.Semaphore
		err := vk.Error(vk.CreateSemaphore(sc.device, &sci, nil, &semaphore))
		return semaphore, errors.Wrap(err, "vk.CreateSemaphore()")
	}
	for range sc.images {
		acquire, err := newSemaphore()
		if err != nil {
			return err
		}
		sc.acquireSemaphores = append(sc.acquireSemaphores, acquire)

		finished, err := newSemaphore()
		if err != nil {
			return err
		}
		sc.renderFinished = append(sc.renderFinished, finished)
	}
	var err error
	sc.spare, err = newSemaphore()
	return err
}

// CurrentBackBufferIndex implements frame.SwapChain.
func (sc *SwapChain) CurrentBackBufferIndex() (int, error) {
	if sc.acquired {
		return sc.current, nil
	}

	var idx uint32
	ret := vk.AcquireNextImage(sc.device, sc.swapchain, vk.MaxUint64, sc.spare, vk.NullFence, &idx)
	switch ret {
	case vk.Success, vk.Suboptimal:
	case vk.ErrorOutOfDate:
		return -1, errors.Wrap(ErrOutOfDate, "vk.AcquireNextImage()")
	default:
		return -1, errors.Wrap(vk.Error(ret), "vk.AcquireNextImage()")
	}

	sc.acquireSemaphores[idx], sc.spare = sc.spare, sc.acquireSemaphores[idx]
	sc.current = int(idx)
	sc.acquired = true
	sc.rendered = false
	return sc.current, nil
}

// Present implements frame.SwapChain. It waits for the frame's rendering,
// or only for the acquire if nothing was submitted for the image.
func (sc *SwapChain) Present() error {
	if !sc.acquired {
		return ErrNotAcquired
	}

	wait := sc.acquireSemaphores[sc.current]
	if sc.rendered {
		wait = sc.renderFinished[sc.current]
	}
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{wait},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{sc.swapchain},
		PImageIndices:      []uint32{uint32(sc.current)},
	}

	ret := vk.QueuePresent(sc.queue, &presentInfo)
	sc.acquired = false
	switch ret {
	case vk.Success, vk.Suboptimal:
		sc.presents++
		return nil
	case vk.ErrorOutOfDate:
		return errors.Wrap(ErrOutOfDate, "vk.QueuePresent()")
	default:
		return errors.Wrap(vk.Error(ret), "vk.QueuePresent()")
	}
}

// BufferCount returns the number of images.
func (sc *SwapChain) BufferCount() int {
	return len(sc.images)
}

// Format returns the image format.
func (sc *SwapChain) Format() vk.Format {
	return sc.format
}

// Extent returns the image size.
func (sc *SwapChain) Extent() vk.Extent2D {
	return sc.extent
}

// Views returns the image views, indexed like the images.
func (sc *SwapChain) Views() []vk.ImageView {
	return sc.views
}

// Presents returns the number of successful presents.
func (sc *SwapChain) Presents() uint64 {
	return sc.presents
}

// Release destroys the views, the semaphores and the swap chain.
func (sc *SwapChain) Release() {
	for _, view := range sc.views {
		vk.DestroyImageView(sc.device, view, nil)
	}
	sc.views = nil
	for idx := range sc.acquireSemaphores {
		vk.DestroySemaphore(sc.device, sc.acquireSemaphores[idx], nil)
	}
	for idx := range sc.renderFinished {
		vk.DestroySemaphore(sc.device, sc.renderFinished[idx], nil)
	}
	sc.acquireSemaphores, sc.renderFinished = nil, nil
	if sc.spare != vk.NullSemaphore {
		vk.DestroySemaphore(sc.device, sc.spare, nil)
		sc.spare = vk.NullSemaphore
	}
	vk.DestroySwapchain(sc.device, sc.swapchain, nil)
}
