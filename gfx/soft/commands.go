// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package soft

import (
	"context"
	"sync/atomic"
	"time"

	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"github.com/devblok/hellotriangle/core/frame"
)

// Allocator owns the memory of recorded commands.
type Allocator struct {
	device   *Device
	commands []command
	inFlight int32
}

// Reset discards all recorded commands. It fails while a list
// recorded into the allocator is still queued or executing.
func (a *Allocator) Reset() error {
	if n := atomic.LoadInt32(&a.inFlight); n > 0 {
		return errors.Wrapf(ErrAllocatorInUse, "%d lists pending", n)
	}
	for i := range a.commands {
		a.commands[i] = nil
	}
	a.commands = a.commands[:0]
	return nil
}

// InFlight reports whether the GPU still executes from the allocator.
func (a *Allocator) InFlight() bool {
	return atomic.LoadInt32(&a.inFlight) > 0
}

// execution is the pipeline state while one list executes.
type execution struct {
	device        *Device
	targets       *SwapChain
	rootSignature *RootSignature
	pipeline      *PipelineState
	viewport      Viewport
	renderTarget  *Resource
	vertices      *VertexBufferView
}

type command interface {
	execute(ex *execution) error
}

// CommandList records commands into an allocator.
type CommandList struct {
	device    *Device
	allocator *Allocator
	targets   *SwapChain
	start     int
	end       int
	open      bool
}

// Reset opens the list for recording into a.
func (l *CommandList) Reset(a frame.Allocator) error {
	sa, ok := a.(*Allocator)
	if !ok {
		return errors.Wrapf(ErrWrongType, "allocator %T", a)
	}
	if l.open {
		return ErrListOpen
	}
	l.allocator = sa
	l.start = len(sa.commands)
	l.end = l.start
	l.open = true
	return nil
}

// Close ends recording.
func (l *CommandList) Close() error {
	if !l.open {
		return ErrListClosed
	}
	l.open = false
	l.end = len(l.allocator.commands)
	return nil
}

func (l *CommandList) record(cmd command) error {
	if !l.open {
		return ErrListClosed
	}
	l.allocator.commands = append(l.allocator.commands, cmd)
	return nil
}

// ResourceBarrier transitions back buffer target.
func (l *CommandList) ResourceBarrier(target int, before, after frame.ResourceState) error {
	if l.targets == nil || target < 0 || target >= len(l.targets.buffers) {
		return errors.Wrapf(frame.ErrFrameIndex, "barrier on buffer %d", target)
	}
	return l.record(&barrierCmd{
		resource: l.targets.buffers[target],
		before:   before,
		after:    after,
	})
}

// ClearRenderTargetView fills the view behind handle with color.
func (l *CommandList) ClearRenderTargetView(handle CPUDescriptorHandle, color glm.Vec4) error {
	return l.record(&clearCmd{handle: handle, color: color})
}

// OMSetRenderTargets binds the render target view behind handle.
func (l *CommandList) OMSetRenderTargets(handle CPUDescriptorHandle) error {
	return l.record(&renderTargetCmd{handle: handle})
}

// SetGraphicsRootSignature binds the root signature.
func (l *CommandList) SetGraphicsRootSignature(rs *RootSignature) error {
	return l.record(&rootSignatureCmd{rootSignature: rs})
}

// SetPipelineState binds the pipeline.
func (l *CommandList) SetPipelineState(ps *PipelineState) error {
	return l.record(&pipelineCmd{pipeline: ps})
}

// RSSetViewports sets the viewport.
func (l *CommandList) RSSetViewports(vp Viewport) error {
	return l.record(&viewportCmd{viewport: vp})
}

// IASetVertexBuffers binds the vertex buffer.
func (l *CommandList) IASetVertexBuffers(view VertexBufferView) error {
	return l.record(&vertexBufferCmd{view: view})
}

// DrawInstanced draws vertexCount vertices from startVertex,
// instanceCount times.
func (l *CommandList) DrawInstanced(vertexCount, instanceCount, startVertex int) error {
	if vertexCount < 0 || instanceCount < 0 || startVertex < 0 {
		return errors.Errorf("invalid draw of %d vertices from %d", vertexCount, startVertex)
	}
	return l.record(&drawCmd{
		vertexCount:   vertexCount,
		instanceCount: instanceCount,
		startVertex:   startVertex,
	})
}

type barrierCmd struct {
	resource      *Resource
	before, after frame.ResourceState
}

func (c *barrierCmd) execute(ex *execution) error {
	if c.resource.state != c.before {
		return errors.Wrapf(frame.ErrStateMismatch, "barrier on %s: resource is %s, barrier expects %s",
			c.resource.name, c.resource.state, c.before)
	}
	c.resource.state = c.after
	return nil
}

type clearCmd struct {
	handle CPUDescriptorHandle
	color  glm.Vec4
}

func (c *clearCmd) execute(ex *execution) error {
	res, err := ex.device.resolve(c.handle)
	if err != nil {
		return err
	}
	if res.state != frame.StateRenderTarget {
		return errors.Wrapf(frame.ErrStateMismatch, "clear of %s in state %s", res.name, res.state)
	}
	fill(res.image, c.color)
	return nil
}

type renderTargetCmd struct {
	handle CPUDescriptorHandle
}

func (c *renderTargetCmd) execute(ex *execution) error {
	res, err := ex.device.resolve(c.handle)
	if err != nil {
		return err
	}
	ex.renderTarget = res
	return nil
}

type rootSignatureCmd struct {
	rootSignature *RootSignature
}

func (c *rootSignatureCmd) execute(ex *execution) error {
	ex.rootSignature = c.rootSignature
	return nil
}

type pipelineCmd struct {
	pipeline *PipelineState
}

func (c *pipelineCmd) execute(ex *execution) error {
	ex.pipeline = c.pipeline
	return nil
}

type viewportCmd struct {
	viewport Viewport
}

func (c *viewportCmd) execute(ex *execution) error {
	ex.viewport = c.viewport
	return nil
}

type vertexBufferCmd struct {
	view VertexBufferView
}

func (c *vertexBufferCmd) execute(ex *execution) error {
	view := c.view
	ex.vertices = &view
	return nil
}

type drawCmd struct {
	vertexCount   int
	instanceCount int
	startVertex   int
}

func (c *drawCmd) execute(ex *execution) error {
	switch {
	case ex.pipeline == nil:
		return errors.New("draw without a pipeline state")
	case ex.rootSignature == nil || ex.rootSignature != ex.pipeline.rootSignature:
		return errors.New("draw with a root signature the pipeline was not created with")
	case ex.renderTarget == nil:
		return errors.New("draw without a render target")
	case ex.renderTarget.state != frame.StateRenderTarget:
		return errors.Wrapf(frame.ErrStateMismatch, "draw into %s in state %s", ex.renderTarget.name, ex.renderTarget.state)
	case ex.vertices == nil:
		return errors.New("draw without a vertex buffer")
	}

	vertices, err := ex.vertices.vertices(c.startVertex, c.vertexCount)
	if err != nil {
		return err
	}
	for i := 0; i < c.instanceCount; i++ {
		if err := ex.pipeline.draw(ex.renderTarget.image, ex.viewport, vertices); err != nil {
			return err
		}
	}
	return nil
}

// Queue executes command lists and signals fences in submission order.
type Queue struct {
	device *Device
}

// ExecuteCommandLists submits closed lists for execution.
func (q *Queue) ExecuteCommandLists(lists ...frame.CommandList) error {
	for _, l := range lists {
		sl, ok := l.(*CommandList)
		if !ok {
			return errors.Wrapf(ErrWrongType, "command list %T", l)
		}
		if sl.open {
			return errors.Wrap(ErrListOpen, "execute")
		}

		alloc := sl.allocator
		commands := alloc.commands[sl.start:sl.end]
		ex := &execution{
			device:  q.device,
			targets: sl.targets,
		}

		atomic.AddInt32(&alloc.inFlight, 1)
		err := q.device.submit(operation{
			name: "execute command list",
			run: func() error {
				defer atomic.AddInt32(&alloc.inFlight, -1)
				if q.device.latency > 0 {
					time.Sleep(q.device.latency)
				}
				for _, cmd := range commands {
					if err := cmd.execute(ex); err != nil {
						return err
					}
				}
				return nil
			},
			abort: func() {
				atomic.AddInt32(&alloc.inFlight, -1)
			},
		})
		if err != nil {
			atomic.AddInt32(&alloc.inFlight, -1)
			return err
		}
	}
	return nil
}

// Signal makes the queue set f to value once all work
// submitted before it finished.
func (q *Queue) Signal(f frame.Fence, value uint64) error {
	sf, ok := f.(*Fence)
	if !ok {
		return errors.Wrapf(ErrWrongType, "fence %T", f)
	}
	return q.device.submit(operation{
		name:   "signal",
		always: true,
		run: func() error {
			sf.signal(value)
			return nil
		},
	})
}

// Flush blocks until everything submitted so far finished.
func (q *Queue) Flush(ctx context.Context) error {
	f := q.device.CreateFence(0)
	if err := q.Signal(f, 1); err != nil {
		return err
	}
	e := frame.NewEvent()
	if err := f.SetEventOnCompletion(1, e); err != nil {
		return err
	}
	return e.Wait(ctx)
}
