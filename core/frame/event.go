// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package frame

import "context"

// NewEvent creates an unset auto-reset event.
func NewEvent() *Event {
	return &Event{
		c: make(chan struct{}, 1),
	}
}

// Event is an auto-reset event. Set wakes one Wait, sets
// with nobody waiting coalesce into one.
type Event struct {
	c chan struct{}
}

// Set signals the event. Never blocks.
func (e *Event) Set() {
	select {
	case e.c <- struct{}{}:
	default:
	}
}

// Wait blocks until the event is set or ctx is done,
// and resets the event.
func (e *Event) Wait(ctx context.Context) error {
	select {
	case <-e.c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reset clears a pending set.
func (e *Event) Reset() {
	select {
	case <-e.c:
	default:
	}
}
