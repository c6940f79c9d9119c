package core

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

func TestTime(t *testing.T) {
	c := qt.New(t)
	tm := NewTime(TimeConfiguration{FramesPerSecond: 100, EventPollDelay: 5})
	defer tm.Stop()

	c.Assert(tm.Fps(), qt.Equals, 100)
	c.Assert(tm.EventPollDelay(), qt.Equals, 5*time.Millisecond)

	select {
	case <-tm.FpsTicker().C:
	case <-time.After(5 * time.Second):
		c.Fatal("fps ticker did not tick")
	}
	select {
	case <-tm.EventTicker().C:
	case <-time.After(5 * time.Second):
		c.Fatal("event ticker did not tick")
	}
}

func TestTimeDefaultsPollDelay(t *testing.T) {
	c := qt.New(t)
	tm := NewTime(TimeConfiguration{})
	defer tm.Stop()

	c.Assert(tm.Fps(), qt.Equals, 0)
	c.Assert(tm.EventPollDelay(), qt.Equals, 10*time.Millisecond)
}

func TestTimeFpsAboveTickerResolution(t *testing.T) {
	c := qt.New(t)
	for _, fps := range []int{MaxFramesPerSecond, 2 * MaxFramesPerSecond, -1} {
		tm := NewTime(TimeConfiguration{FramesPerSecond: fps})
		c.Assert(tm.FpsTicker(), qt.IsNotNil)
		tm.Stop()
	}
}
