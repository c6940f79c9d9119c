// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package soft

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"
	"sync/atomic"

	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"github.com/devblok/hellotriangle/core/frame"
)

// Resource is a 2D render target. Its state is only
// read and changed by the queue.
type Resource struct {
	name  string
	image *image.RGBA
	state frame.ResourceState
}

// Bounds returns the size of the resource.
func (r *Resource) Bounds() image.Rectangle {
	return r.image.Bounds()
}

// SwapChainDesc describes the back buffers of a swap chain.
type SwapChainDesc struct {
	Width, Height int
	BufferCount   int
}

// CreateSwapChain creates BufferCount RGBA back buffers in the present state.
func (d *Device) CreateSwapChain(desc SwapChainDesc) (*SwapChain, error) {
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, errors.Errorf("swap chain of %dx%d", desc.Width, desc.Height)
	}
	if desc.BufferCount < 1 {
		return nil, errors.Errorf("swap chain with %d buffers", desc.BufferCount)
	}

	rect := image.Rect(0, 0, desc.Width, desc.Height)
	sc := &SwapChain{
		device:  d,
		buffers: make([]*Resource, desc.BufferCount),
		front:   image.NewRGBA(rect),
	}
	for i := range sc.buffers {
		sc.buffers[i] = &Resource{
			name:  fmt.Sprintf("back buffer %d", i),
			image: image.NewRGBA(rect),
			state: frame.StatePresent,
		}
	}
	return sc, nil
}

// SwapChain is a ring of back buffers presented to a front buffer.
type SwapChain struct {
	device  *Device
	buffers []*Resource
	index   int32

	mutex    sync.Mutex
	front    *image.RGBA
	presents uint64
}

// CurrentBackBufferIndex returns the buffer the next frame renders to.
func (s *SwapChain) CurrentBackBufferIndex() (int, error) {
	return int(atomic.LoadInt32(&s.index)), nil
}

// Buffer returns back buffer i.
func (s *SwapChain) Buffer(i int) *Resource {
	return s.buffers[i]
}

// BufferCount returns the number of back buffers.
func (s *SwapChain) BufferCount() int {
	return len(s.buffers)
}

// Present queues the current back buffer for display and moves on to the
// next one. The queue fails the present if the buffer is not in the
// present state by then.
func (s *SwapChain) Present() error {
	idx := int(atomic.LoadInt32(&s.index))
	res := s.buffers[idx]

	err := s.device.submit(operation{
		name: "present",
		run: func() error {
			if res.state != frame.StatePresent {
				return errors.Wrapf(frame.ErrStateMismatch, "present of %s in state %s", res.name, res.state)
			}
			s.mutex.Lock()
			draw.Draw(s.front, s.front.Bounds(), res.image, image.Point{}, draw.Src)
			s.presents++
			s.mutex.Unlock()
			return nil
		},
	})
	if err != nil {
		return err
	}

	atomic.StoreInt32(&s.index, int32((idx+1)%len(s.buffers)))
	return nil
}

// Presents returns how many frames reached the front buffer.
func (s *SwapChain) Presents() uint64 {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.presents
}

// Frame returns a copy of the front buffer.
func (s *SwapChain) Frame() *image.RGBA {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	out := image.NewRGBA(s.front.Bounds())
	copy(out.Pix, s.front.Pix)
	return out
}

func fill(img *image.RGBA, c glm.Vec4) {
	draw.Draw(img, img.Bounds(), &image.Uniform{C: toRGBA(c)}, image.Point{}, draw.Src)
}

func toRGBA(c glm.Vec4) color.NRGBA {
	return color.NRGBA{
		R: unorm8(c[0]),
		G: unorm8(c[1]),
		B: unorm8(c[2]),
		A: unorm8(c[3]),
	}
}

func unorm8(f float32) uint8 {
	f = glm.Clamp(f, 0, 1)
	return uint8(f*255 + 0.5)
}
