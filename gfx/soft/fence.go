// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package soft

import (
	"sync"

	"github.com/devblok/hellotriangle/core/frame"
)

type fenceWaiter struct {
	value uint64
	event *frame.Event
}

// Fence is a counter only the queue advances.
type Fence struct {
	mutex     sync.Mutex
	completed uint64
	waiters   []fenceWaiter
}

// CompletedValue returns the last value the queue reached.
func (f *Fence) CompletedValue() uint64 {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.completed
}

// SetEventOnCompletion sets e once the fence reaches value,
// immediately if it already did.
func (f *Fence) SetEventOnCompletion(value uint64, e *frame.Event) error {
	f.mutex.Lock()
	if f.completed >= value {
		f.mutex.Unlock()
		e.Set()
		return nil
	}
	f.waiters = append(f.waiters, fenceWaiter{value: value, event: e})
	f.mutex.Unlock()
	return nil
}

// signal runs on the queue.
func (f *Fence) signal(value uint64) {
	f.mutex.Lock()
	if value > f.completed {
		f.completed = value
	}
	var ready []*frame.Event
	pending := f.waiters[:0]
	for _, w := range f.waiters {
		if w.value <= f.completed {
			ready = append(ready, w.event)
		} else {
			pending = append(pending, w)
		}
	}
	f.waiters = pending
	f.mutex.Unlock()

	for _, e := range ready {
		e.Set()
	}
}
