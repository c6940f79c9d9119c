// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package soft

import (
	"github.com/pkg/errors"
)

// CPUDescriptorHandle addresses one view in a descriptor heap.
type CPUDescriptorHandle uintptr

// RTVDescriptorSize is the handle increment of render target views.
const RTVDescriptorSize = 32

const heapBase CPUDescriptorHandle = 0x10000

// DescriptorHeap is a fixed array of render target views.
type DescriptorHeap struct {
	start     CPUDescriptorHandle
	increment uintptr
	views     []*Resource
}

// CreateDescriptorHeap creates a heap with room for count render target views.
func (d *Device) CreateDescriptorHeap(count int) (*DescriptorHeap, error) {
	if count <= 0 {
		return nil, errors.Errorf("descriptor heap of %d views", count)
	}

	d.heapMutex.Lock()
	defer d.heapMutex.Unlock()

	if d.nextHeap == 0 {
		d.nextHeap = heapBase
	}
	heap := &DescriptorHeap{
		start:     d.nextHeap,
		increment: d.DescriptorHandleIncrementSize(),
		views:     make([]*Resource, count),
	}
	d.nextHeap += CPUDescriptorHandle(uintptr(count) * heap.increment)
	d.heaps = append(d.heaps, heap)
	return heap, nil
}

// DescriptorHandleIncrementSize returns the distance between two
// render target view handles.
func (d *Device) DescriptorHandleIncrementSize() uintptr {
	return RTVDescriptorSize
}

// CPUDescriptorHandleForHeapStart returns the handle of the first view.
func (h *DescriptorHeap) CPUDescriptorHandleForHeapStart() CPUDescriptorHandle {
	return h.start
}

// Handle returns the handle of view i.
func (h *DescriptorHeap) Handle(i int) CPUDescriptorHandle {
	return h.start + CPUDescriptorHandle(uintptr(i)*h.increment)
}

// Len returns the number of views.
func (h *DescriptorHeap) Len() int {
	return len(h.views)
}

func (h *DescriptorHeap) slot(handle CPUDescriptorHandle) (int, bool) {
	if handle < h.start {
		return 0, false
	}
	offset := uintptr(handle - h.start)
	if offset%h.increment != 0 {
		return 0, false
	}
	idx := int(offset / h.increment)
	return idx, idx < len(h.views)
}

// CreateRenderTargetView writes a view of res into the heap slot at handle.
func (d *Device) CreateRenderTargetView(res *Resource, handle CPUDescriptorHandle) error {
	d.heapMutex.Lock()
	defer d.heapMutex.Unlock()

	for _, heap := range d.heaps {
		if idx, ok := heap.slot(handle); ok {
			heap.views[idx] = res
			return nil
		}
	}
	return errors.Wrapf(ErrInvalidHandle, "handle %#x", uintptr(handle))
}

func (d *Device) resolve(handle CPUDescriptorHandle) (*Resource, error) {
	d.heapMutex.Lock()
	defer d.heapMutex.Unlock()

	for _, heap := range d.heaps {
		if idx, ok := heap.slot(handle); ok && heap.views[idx] != nil {
			return heap.views[idx], nil
		}
	}
	return nil, errors.Wrapf(ErrInvalidHandle, "handle %#x", uintptr(handle))
}
