// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package soft

import (
	"context"
	"image/color"
	"io/ioutil"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/devblok/hellotriangle/core/frame"
)

func quietLogger() log.FieldLogger {
	logger := log.New()
	logger.Out = ioutil.Discard
	return logger
}

func newTestDevice(c *qt.C, latency time.Duration) *Device {
	d := NewDevice(DeviceOptions{Latency: latency, Logger: quietLogger()})
	c.Cleanup(d.Close)
	return d
}

func withTimeout(c *qt.C) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	c.Cleanup(cancel)
	return ctx
}

var clearRGBA = color.RGBA{R: 255, G: 51, B: 102, A: 255}

func TestRendererClearOnly(t *testing.T) {
	c := qt.New(t)
	r := NewRenderer(Config{Width: 32, Height: 24, Logger: quietLogger()})
	c.Assert(r.Initialise(), qt.IsNil)
	defer r.Destroy()

	ctx := withTimeout(c)
	for i := 0; i < 5; i++ {
		c.Assert(r.Render(ctx), qt.IsNil)
	}
	c.Assert(r.Flush(ctx), qt.IsNil)
	c.Assert(r.Running(), qt.IsTrue)
	c.Assert(r.Frames(), qt.Equals, uint64(5))

	img := r.Frame()
	for y := 0; y < 24; y++ {
		for x := 0; x < 32; x++ {
			c.Assert(img.RGBAAt(x, y), qt.Equals, clearRGBA, qt.Commentf("pixel %d,%d", x, y))
		}
	}
}

func TestRendererTriangle(t *testing.T) {
	c := qt.New(t)
	r := NewRenderer(Config{Width: 80, Height: 60, DrawTriangle: true, Logger: quietLogger()})
	c.Assert(r.Initialise(), qt.IsNil)
	defer r.Destroy()

	ctx := withTimeout(c)
	for i := 0; i < 4; i++ {
		c.Assert(r.Render(ctx), qt.IsNil)
	}
	c.Assert(r.Flush(ctx), qt.IsNil)

	img := r.Frame()

	// outside the triangle
	c.Assert(img.RGBAAt(1, 1), qt.Equals, clearRGBA)
	c.Assert(img.RGBAAt(78, 58), qt.Equals, clearRGBA)

	// the triangle spans x 20..60, y 15..45
	centroid := img.RGBAAt(40, 35)
	c.Assert(centroid, qt.Not(qt.Equals), clearRGBA)
	c.Assert(centroid.A, qt.Equals, uint8(255))

	top := img.RGBAAt(40, 17)
	c.Assert(top.R > top.G && top.R > top.B, qt.IsTrue, qt.Commentf("%v", top))

	right := img.RGBAAt(57, 44)
	c.Assert(right.G > right.R && right.G > right.B, qt.IsTrue, qt.Commentf("%v", right))

	left := img.RGBAAt(22, 44)
	c.Assert(left.B > left.R && left.B > left.G, qt.IsTrue, qt.Commentf("%v", left))
}

func TestRendererWithLatency(t *testing.T) {
	c := qt.New(t)
	r := NewRenderer(Config{
		Width:        16,
		Height:       16,
		DrawTriangle: true,
		Latency:      2 * time.Millisecond,
		Logger:       quietLogger(),
	})
	c.Assert(r.Initialise(), qt.IsNil)
	defer r.Destroy()

	ctx := withTimeout(c)
	for i := 0; i < 20; i++ {
		c.Assert(r.Render(ctx), qt.IsNil)

		// at most one frame per buffer may be in flight
		var pending int
		for _, a := range r.allocators {
			if a.InFlight() {
				pending++
			}
		}
		c.Assert(pending <= frame.DefaultBufferCount, qt.IsTrue)
	}
	c.Assert(r.Flush(ctx), qt.IsNil)
	c.Assert(r.swapchain.Presents(), qt.Equals, uint64(20))
	for i, f := range r.fences {
		c.Assert(f.CompletedValue(), qt.Equals, r.sync.FenceValue(i))
	}
}

func TestAllocatorResetWhileInFlight(t *testing.T) {
	c := qt.New(t)
	d := newTestDevice(c, 50*time.Millisecond)
	sc, err := d.CreateSwapChain(SwapChainDesc{Width: 4, Height: 4, BufferCount: 1})
	c.Assert(err, qt.IsNil)

	a := d.CreateCommandAllocator()
	l := d.CreateCommandList(a, sc)
	c.Assert(l.ResourceBarrier(0, frame.StatePresent, frame.StateRenderTarget), qt.IsNil)
	c.Assert(l.ResourceBarrier(0, frame.StateRenderTarget, frame.StatePresent), qt.IsNil)
	c.Assert(l.Close(), qt.IsNil)
	c.Assert(d.Queue().ExecuteCommandLists(l), qt.IsNil)

	c.Assert(errors.Cause(a.Reset()), qt.Equals, ErrAllocatorInUse)

	c.Assert(d.Queue().Flush(withTimeout(c)), qt.IsNil)
	c.Assert(a.Reset(), qt.IsNil)
	c.Assert(d.Err(), qt.IsNil)
}

func TestCommandListStates(t *testing.T) {
	c := qt.New(t)
	d := newTestDevice(c, 0)
	a := d.CreateCommandAllocator()
	l := d.CreateCommandList(a, nil)

	c.Assert(l.Reset(a), qt.Equals, ErrListOpen)
	c.Assert(errors.Cause(d.Queue().ExecuteCommandLists(l)), qt.Equals, ErrListOpen)
	c.Assert(l.Close(), qt.IsNil)
	c.Assert(l.Close(), qt.Equals, ErrListClosed)
	c.Assert(l.DrawInstanced(3, 1, 0), qt.Equals, ErrListClosed)
	c.Assert(errors.Cause(l.ResourceBarrier(0, frame.StatePresent, frame.StateRenderTarget)), qt.Equals, frame.ErrFrameIndex)
}

func TestPresentInWrongState(t *testing.T) {
	c := qt.New(t)
	d := newTestDevice(c, 0)
	sc, err := d.CreateSwapChain(SwapChainDesc{Width: 4, Height: 4, BufferCount: 2})
	c.Assert(err, qt.IsNil)

	a := d.CreateCommandAllocator()
	l := d.CreateCommandList(a, sc)
	c.Assert(l.ResourceBarrier(0, frame.StatePresent, frame.StateRenderTarget), qt.IsNil)
	c.Assert(l.Close(), qt.IsNil)
	c.Assert(d.Queue().ExecuteCommandLists(l), qt.IsNil)
	c.Assert(sc.Present(), qt.IsNil)

	idx, err := sc.CurrentBackBufferIndex()
	c.Assert(err, qt.IsNil)
	c.Assert(idx, qt.Equals, 1)

	c.Assert(d.Queue().Flush(withTimeout(c)), qt.IsNil)
	c.Assert(errors.Cause(d.Err()), qt.Equals, frame.ErrStateMismatch)
	c.Assert(sc.Presents(), qt.Equals, uint64(0))
}

func TestLostDeviceStillSignals(t *testing.T) {
	c := qt.New(t)
	d := newTestDevice(c, 0)
	sc, err := d.CreateSwapChain(SwapChainDesc{Width: 4, Height: 4, BufferCount: 1})
	c.Assert(err, qt.IsNil)

	a := d.CreateCommandAllocator()
	l := d.CreateCommandList(a, sc)
	c.Assert(l.ResourceBarrier(0, frame.StateRenderTarget, frame.StatePresent), qt.IsNil)
	c.Assert(l.Close(), qt.IsNil)
	c.Assert(d.Queue().ExecuteCommandLists(l), qt.IsNil)
	c.Assert(d.Queue().ExecuteCommandLists(l), qt.IsNil)

	f := d.CreateFence(0)
	c.Assert(d.Queue().Signal(f, 7), qt.IsNil)
	c.Assert(d.Queue().Flush(withTimeout(c)), qt.IsNil)

	c.Assert(d.Err(), qt.Not(qt.IsNil))
	c.Assert(f.CompletedValue(), qt.Equals, uint64(7))
	c.Assert(a.InFlight(), qt.IsFalse)
}

func TestFenceEvents(t *testing.T) {
	c := qt.New(t)
	d := newTestDevice(c, 0)
	f := d.CreateFence(0)
	e := frame.NewEvent()

	c.Assert(f.SetEventOnCompletion(2, e), qt.IsNil)
	c.Assert(d.Queue().Signal(f, 1), qt.IsNil)
	c.Assert(d.Queue().Flush(withTimeout(c)), qt.IsNil)
	c.Assert(f.CompletedValue(), qt.Equals, uint64(1))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	c.Assert(e.Wait(ctx), qt.Equals, context.DeadlineExceeded)

	c.Assert(d.Queue().Signal(f, 2), qt.IsNil)
	c.Assert(e.Wait(withTimeout(c)), qt.IsNil)

	// already reached
	c.Assert(f.SetEventOnCompletion(1, e), qt.IsNil)
	c.Assert(e.Wait(withTimeout(c)), qt.IsNil)
}

func TestDescriptorHeap(t *testing.T) {
	c := qt.New(t)
	d := newTestDevice(c, 0)

	h1, err := d.CreateDescriptorHeap(3)
	c.Assert(err, qt.IsNil)
	h2, err := d.CreateDescriptorHeap(2)
	c.Assert(err, qt.IsNil)

	start := h1.CPUDescriptorHandleForHeapStart()
	c.Assert(h1.Handle(2), qt.Equals, start+2*RTVDescriptorSize)
	c.Assert(h2.CPUDescriptorHandleForHeapStart(), qt.Equals, start+3*RTVDescriptorSize)

	sc, err := d.CreateSwapChain(SwapChainDesc{Width: 2, Height: 2, BufferCount: 1})
	c.Assert(err, qt.IsNil)
	c.Assert(d.CreateRenderTargetView(sc.Buffer(0), h2.Handle(1)), qt.IsNil)

	res, err := d.resolve(h2.Handle(1))
	c.Assert(err, qt.IsNil)
	c.Assert(res, qt.Equals, sc.Buffer(0))

	_, err = d.resolve(h2.Handle(0))
	c.Assert(errors.Cause(err), qt.Equals, ErrInvalidHandle)
	c.Assert(errors.Cause(d.CreateRenderTargetView(sc.Buffer(0), start+1)), qt.Equals, ErrInvalidHandle)

	_, err = d.CreateDescriptorHeap(0)
	c.Assert(err, qt.Not(qt.IsNil))
}

func TestPipelineValidation(t *testing.T) {
	c := qt.New(t)
	d := newTestDevice(c, 0)
	withLayout := d.CreateRootSignature(RootSignatureFlagAllowInputAssemblerInputLayout)
	empty := d.CreateRootSignature(RootSignatureFlagNone)

	tests := []struct {
		name string
		desc PipelineStateDesc
		err  string
	}{{
		name: "valid",
		desc: PipelineStateDesc{RootSignature: withLayout, InputLayout: TriangleInputLayout(), VS: PassThrough, PS: InterpolatedColor, RTVFormat: FormatR8G8B8A8Unorm},
	}, {
		name: "no root signature",
		desc: PipelineStateDesc{InputLayout: TriangleInputLayout(), VS: PassThrough, PS: InterpolatedColor, RTVFormat: FormatR8G8B8A8Unorm},
		err:  "pipeline without a root signature",
	}, {
		name: "input layout not allowed",
		desc: PipelineStateDesc{RootSignature: empty, InputLayout: TriangleInputLayout(), VS: PassThrough, PS: InterpolatedColor, RTVFormat: FormatR8G8B8A8Unorm},
		err:  "root signature does not allow an input layout",
	}, {
		name: "missing shader",
		desc: PipelineStateDesc{RootSignature: withLayout, InputLayout: TriangleInputLayout(), VS: PassThrough, RTVFormat: FormatR8G8B8A8Unorm},
		err:  "pipeline needs a vertex and a pixel shader",
	}, {
		name: "format",
		desc: PipelineStateDesc{RootSignature: withLayout, InputLayout: TriangleInputLayout(), VS: PassThrough, PS: InterpolatedColor, RTVFormat: FormatR32G32B32Float},
		err:  "unsupported render target format .*",
	}, {
		name: "layout mismatch",
		desc: PipelineStateDesc{RootSignature: withLayout, InputLayout: TriangleInputLayout()[:1], VS: PassThrough, PS: InterpolatedColor, RTVFormat: FormatR8G8B8A8Unorm},
		err:  "input layout has 1 elements, vertices have 2",
	}}

	for _, test := range tests {
		c.Run(test.name, func(c *qt.C) {
			ps, err := d.CreateGraphicsPipelineState(test.desc)
			if test.err == "" {
				c.Assert(err, qt.IsNil)
				c.Assert(ps, qt.Not(qt.IsNil))
				return
			}
			c.Assert(err, qt.ErrorMatches, test.err)
		})
	}
}

func TestClosedDevice(t *testing.T) {
	c := qt.New(t)
	d := NewDevice(DeviceOptions{Logger: quietLogger()})
	d.Close()
	d.Close()

	c.Assert(d.Queue().Signal(d.CreateFence(0), 1), qt.Equals, ErrDeviceClosed)
}
