// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package soft

import (
	"context"
	"image"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/devblok/hellotriangle/core/frame"
	"github.com/devblok/hellotriangle/gfx"
	"github.com/devblok/hellotriangle/model"
)

// Config configures the software renderer.
type Config struct {
	Width, Height int
	Buffers       int
	DrawTriangle  bool

	// Latency is the simulated GPU time of one frame.
	Latency time.Duration

	Logger log.FieldLogger
}

// NewRenderer creates a software renderer. Initialise
// has to be called before rendering.
func NewRenderer(cfg Config) *Renderer {
	if cfg.Buffers == 0 {
		cfg.Buffers = frame.DefaultBufferCount
	}
	if cfg.Logger == nil {
		cfg.Logger = log.StandardLogger()
	}
	return &Renderer{
		cfg: cfg,
		log: cfg.Logger.WithField("renderer", "soft"),
	}
}

// Renderer draws the triangle on the software device.
type Renderer struct {
	cfg Config
	log log.FieldLogger

	device     *Device
	swapchain  *SwapChain
	rtvHeap    *DescriptorHeap
	allocators []*Allocator
	fences     []*Fence
	list       *CommandList

	rootSignature *RootSignature
	pipeline      *PipelineState
	vertexBuffer  *VertexBuffer
	vertexView    VertexBufferView
	viewport      Viewport

	sync *frame.Sync
}

// Initialise creates the device objects, uploads the triangle
// and sets up frame synchronization.
func (r *Renderer) Initialise() error {
	r.device = NewDevice(DeviceOptions{
		Latency: r.cfg.Latency,
		Logger:  r.log,
	})

	var err error
	if r.swapchain, err = r.device.CreateSwapChain(SwapChainDesc{
		Width:       r.cfg.Width,
		Height:      r.cfg.Height,
		BufferCount: r.cfg.Buffers,
	}); err != nil {
		return errors.Wrap(err, "create swap chain")
	}

	if r.rtvHeap, err = r.device.CreateDescriptorHeap(r.cfg.Buffers); err != nil {
		return errors.Wrap(err, "create descriptor heap")
	}
	for i := 0; i < r.cfg.Buffers; i++ {
		if err := r.device.CreateRenderTargetView(r.swapchain.Buffer(i), r.rtvHeap.Handle(i)); err != nil {
			return errors.Wrapf(err, "create render target view %d", i)
		}
	}

	slots := make([]frame.Slot, r.cfg.Buffers)
	r.allocators = make([]*Allocator, r.cfg.Buffers)
	r.fences = make([]*Fence, r.cfg.Buffers)
	for i := range slots {
		r.allocators[i] = r.device.CreateCommandAllocator()
		r.fences[i] = r.device.CreateFence(0)
		slots[i] = frame.Slot{Allocator: r.allocators[i], Fence: r.fences[i]}
	}

	// lists are created open
	r.list = r.device.CreateCommandList(r.allocators[0], r.swapchain)
	if err := r.list.Close(); err != nil {
		return errors.Wrap(err, "close command list")
	}

	if err := r.createPipeline(); err != nil {
		return err
	}

	if r.sync, err = frame.NewSync(frame.Resources{
		Slots:     slots,
		List:      r.list,
		Queue:     r.device.Queue(),
		SwapChain: r.swapchain,
		Logger:    r.log,
	}); err != nil {
		return err
	}

	r.log.WithFields(log.Fields{
		"width":   r.cfg.Width,
		"height":  r.cfg.Height,
		"buffers": r.cfg.Buffers,
		"draw":    r.cfg.DrawTriangle,
	}).Info("software renderer initialised")
	return nil
}

func (r *Renderer) createPipeline() error {
	r.rootSignature = r.device.CreateRootSignature(RootSignatureFlagAllowInputAssemblerInputLayout)

	var err error
	if r.pipeline, err = r.device.CreateGraphicsPipelineState(PipelineStateDesc{
		RootSignature: r.rootSignature,
		InputLayout:   TriangleInputLayout(),
		VS:            PassThrough,
		PS:            InterpolatedColor,
		CullMode:      CullBack,
		RTVFormat:     FormatR8G8B8A8Unorm,
	}); err != nil {
		return errors.Wrap(err, "create pipeline state")
	}

	data := model.Bytes(model.Triangle())
	if r.vertexBuffer, err = r.device.CreateVertexBuffer(len(data)); err != nil {
		return errors.Wrap(err, "create vertex buffer")
	}
	copy(r.vertexBuffer.Map(), data)
	r.vertexView = r.vertexBuffer.View()

	r.viewport = Viewport{
		Width:  float32(r.cfg.Width),
		Height: float32(r.cfg.Height),
	}
	return nil
}

// Update runs application logic. The triangle is static.
func (r *Renderer) Update() {}

// Render draws and presents one frame.
func (r *Renderer) Render(ctx context.Context) error {
	return r.sync.Render(ctx, r.record)
}

func (r *Renderer) record(_ frame.CommandList, target int) error {
	rtv := r.rtvHeap.Handle(target)

	if err := r.list.OMSetRenderTargets(rtv); err != nil {
		return err
	}
	if err := r.list.ClearRenderTargetView(rtv, gfx.ClearColor); err != nil {
		return err
	}
	if !r.cfg.DrawTriangle {
		return nil
	}

	if err := r.list.SetGraphicsRootSignature(r.rootSignature); err != nil {
		return err
	}
	if err := r.list.SetPipelineState(r.pipeline); err != nil {
		return err
	}
	if err := r.list.RSSetViewports(r.viewport); err != nil {
		return err
	}
	if err := r.list.IASetVertexBuffers(r.vertexView); err != nil {
		return err
	}
	return r.list.DrawInstanced(len(model.Triangle()), 1, 0)
}

// Running reports whether frames should keep being rendered.
func (r *Renderer) Running() bool {
	return r.sync != nil && r.sync.Running() && r.device.Err() == nil
}

// Stop ends the frame loop.
func (r *Renderer) Stop() {
	if r.sync != nil {
		r.sync.Stop()
	}
}

// Flush waits for every submitted frame and reports a lost device.
func (r *Renderer) Flush(ctx context.Context) error {
	if err := r.sync.Cleanup(ctx); err != nil {
		return err
	}
	return r.device.Err()
}

// Frame returns a copy of the last presented image.
func (r *Renderer) Frame() *image.RGBA {
	return r.swapchain.Frame()
}

// Frames returns the number of submitted frames.
func (r *Renderer) Frames() uint64 {
	return r.sync.Frames()
}

// Destroy waits for the GPU and releases the device.
func (r *Renderer) Destroy() {
	if r.sync != nil {
		if err := r.sync.Cleanup(context.Background()); err != nil {
			r.log.WithField("error", err).Error("failed to drain frames")
		}
	}
	if r.device != nil {
		r.device.Close()
	}
	if r.vertexBuffer != nil {
		gfx.ReleaseAll(r.vertexBuffer)
	}
}
