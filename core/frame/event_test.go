// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package frame

import (
	"context"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

func TestEventSetBeforeWait(t *testing.T) {
	c := qt.New(t)
	e := NewEvent()
	e.Set()
	e.Set()

	c.Assert(e.Wait(context.Background()), qt.IsNil)

	// sets coalesce, the event is reset after one wait
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	c.Assert(e.Wait(ctx), qt.Equals, context.DeadlineExceeded)
}

func TestEventWakesWaiter(t *testing.T) {
	c := qt.New(t)
	e := NewEvent()

	done := make(chan error)
	go func() {
		done <- e.Wait(context.Background())
	}()
	e.Set()

	select {
	case err := <-done:
		c.Assert(err, qt.IsNil)
	case <-time.After(5 * time.Second):
		c.Fatal("waiter was not woken")
	}
}

func TestEventReset(t *testing.T) {
	c := qt.New(t)
	e := NewEvent()
	e.Set()
	e.Reset()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.Assert(e.Wait(ctx), qt.Equals, context.Canceled)
}
