package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestDispatcher wires every queue DispatchIteration drains, so tests
// that call it don't hit a nil *Queue[T] (Module.New always wires all of
// them in production; only test setups need to do this by hand).
func newTestDispatcher(clockQ *Queue[ClockResume]) *Dispatcher {
	var d = NewDispatcher(nil)
	d.SlopeActionQ = NewQueue[SlopeAction](8)
	d.DetectionQ = NewQueue[DetectionEvent](8)
	d.MetroQ = NewQueue[MetroTick](8)
	d.ClockQ = clockQ
	d.GeneralQ = NewQueue[GeneralEvent](8)
	d.Outputs = &OutputState{}
	return d
}

func TestPulseOutputImmediateLowForNonPositiveWidth(t *testing.T) {
	var lines [1]bool
	var p = NewPulseOutput(0, func(ch int, high bool) { lines[ch] = high })
	var clk = NewClockScheduler(4, 8000, NewQueue[ClockResume](8))
	var disp = NewDispatcher(nil)

	lines[0] = true
	p.Pulse(clk, disp, 0)
	assert.False(t, lines[0])
}

func TestPulseOutputHeldHighIndefinitelyPastThreshold(t *testing.T) {
	var lines [1]bool
	var p = NewPulseOutput(0, func(ch int, high bool) { lines[ch] = high })
	var clk = NewClockScheduler(4, 8000, NewQueue[ClockResume](8))
	var disp = NewDispatcher(nil)

	p.Pulse(clk, disp, 200)
	assert.True(t, lines[0])

	clk.Start(0)
	clk.TickWallClock() // no continuation was scheduled; line should stay high
	assert.True(t, lines[0])
}

func TestPulseOutputResolvesLowEdgeViaDispatcherNativeResume(t *testing.T) {
	var lines [1]bool
	var p = NewPulseOutput(0, func(ch int, high bool) { lines[ch] = high })
	var clockQ = NewQueue[ClockResume](8)
	var clk = NewClockScheduler(4, 8000, clockQ)
	var disp = newTestDispatcher(clockQ)

	p.Pulse(clk, disp, 0.001)
	require.True(t, lines[0])

	clk.Start(0)
	clk.TickWallClock() // SecondsRemaining (0.001) <= ClockServiceHz period (0.001): resolves
	clk.TickWallClock()

	disp.DispatchIteration(time.Now(), nil, nil)
	assert.False(t, lines[0], "the scheduled sleep continuation should have resolved the line low")
}

func TestPulseOutputSupersededContinuationIsNoOp(t *testing.T) {
	var lines [1]bool
	var p = NewPulseOutput(0, func(ch int, high bool) { lines[ch] = high })
	var clockQ = NewQueue[ClockResume](8)
	var clk = NewClockScheduler(4, 8000, clockQ)
	var disp = NewDispatcher(nil)
	disp.ClockQ = clockQ

	p.Pulse(clk, disp, 50) // first pulse, long enough to still be pending
	p.Pulse(clk, disp, 50) // supersedes before the first one's continuation fires

	// Manually deliver a stale resume for the first pulse's id (1).
	p.ResolvePulseLowEdge(1)
	assert.True(t, lines[0], "a stale low-edge resume must not affect the superseding pulse's line state")

	p.ResolvePulseLowEdge(2)
	assert.False(t, lines[0])
}
