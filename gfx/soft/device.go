// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package soft implements a software GPU. Command lists are executed in
// submission order by a queue goroutine, so fences, allocators and back
// buffers behave like they do on a real device: the CPU only observes
// completion through fences.
package soft

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// package errors
var (
	ErrDeviceClosed   = errors.New("device is closed")
	ErrAllocatorInUse = errors.New("command allocator is still in use by the GPU")
	ErrListClosed     = errors.New("command list is closed")
	ErrListOpen       = errors.New("command list is open")
	ErrWrongType      = errors.New("object was not created by the software device")
	ErrInvalidHandle  = errors.New("descriptor handle does not reference a view")
)

// DeviceOptions configures a software device.
type DeviceOptions struct {

	// Latency is added to the execution of every command list.
	Latency time.Duration

	// QueueDepth is the number of submissions that may be pending
	// before submitting blocks.
	QueueDepth int

	Logger log.FieldLogger
}

// NewDevice creates a software device and starts its queue.
func NewDevice(opts DeviceOptions) *Device {
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = 64
	}
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}

	d := &Device{
		log:     opts.Logger,
		latency: opts.Latency,
		work:    make(chan operation, opts.QueueDepth),
	}
	d.queue = &Queue{device: d}

	d.wg.Add(1)
	go d.run()
	return d
}

// operation is one unit of queue work. Operations marked always
// still run once the device is lost, so fences keep completing.
type operation struct {
	name   string
	always bool
	run    func() error
	abort  func()
}

// Device is a software GPU with one direct queue.
type Device struct {
	log     log.FieldLogger
	latency time.Duration
	queue   *Queue

	sendMutex sync.Mutex
	closed    bool
	work      chan operation
	wg        sync.WaitGroup

	errMutex sync.Mutex
	err      error

	heapMutex sync.Mutex
	heaps     []*DescriptorHeap
	nextHeap  CPUDescriptorHandle
}

// Queue returns the direct command queue.
func (d *Device) Queue() *Queue {
	return d.queue
}

// Err returns the first error the GPU ran into. Once set the
// device only completes fences, like a removed device.
func (d *Device) Err() error {
	d.errMutex.Lock()
	defer d.errMutex.Unlock()
	return d.err
}

func (d *Device) lose(err error) {
	d.errMutex.Lock()
	defer d.errMutex.Unlock()
	if d.err == nil {
		d.err = err
		d.log.WithField("error", err).Error("software device lost")
	}
}

func (d *Device) submit(op operation) error {
	d.sendMutex.Lock()
	defer d.sendMutex.Unlock()
	if d.closed {
		return ErrDeviceClosed
	}
	d.work <- op
	return nil
}

func (d *Device) run() {
	defer d.wg.Done()
	for op := range d.work {
		if !op.always && d.Err() != nil {
			if op.abort != nil {
				op.abort()
			}
			continue
		}
		if err := op.run(); err != nil {
			d.lose(errors.Wrap(err, op.name))
		}
	}
}

// Close stops the queue after it executed everything submitted so far.
func (d *Device) Close() {
	d.sendMutex.Lock()
	if d.closed {
		d.sendMutex.Unlock()
		return
	}
	d.closed = true
	close(d.work)
	d.sendMutex.Unlock()

	d.wg.Wait()
	d.log.Debug("software device closed")
}

// CreateFence creates a fence with the given initial value.
func (d *Device) CreateFence(initial uint64) *Fence {
	return &Fence{
		completed: initial,
	}
}

// CreateCommandAllocator creates an empty command allocator.
func (d *Device) CreateCommandAllocator() *Allocator {
	return &Allocator{device: d}
}

// CreateCommandList creates a command list that is open for
// recording into a, like a freshly created list is.
// Barriers address the back buffers of targets.
func (d *Device) CreateCommandList(a *Allocator, targets *SwapChain) *CommandList {
	return &CommandList{
		device:    d,
		allocator: a,
		targets:   targets,
		start:     len(a.commands),
		open:      true,
	}
}
