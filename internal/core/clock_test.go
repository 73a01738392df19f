package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClockSchedulerImmediateWakeForNonPositiveCondition(t *testing.T) {
	var resumeQ = NewQueue[ClockResume](8)
	var clk = NewClockScheduler(4, 8000, resumeQ)

	var id = clk.Schedule(WakeCondition{Kind: WakeSleep, SecondsRemaining: 0})

	var r, ok = resumeQ.Get()
	require.True(t, ok, "a condition already satisfied at schedule time must post immediately")
	assert.Equal(t, id, r.CoroID)
}

func TestClockSchedulerSleepResolvesAfterElapsedWallTime(t *testing.T) {
	var resumeQ = NewQueue[ClockResume](8)
	var clk = NewClockScheduler(4, 1000, resumeQ)

	var id = clk.Schedule(WakeCondition{Kind: WakeSleep, SecondsRemaining: 0.003})

	clk.TickWallClock() // -0.001
	clk.TickWallClock() // -0.001
	var _, ok = resumeQ.Get()
	assert.False(t, ok, "should not resolve before its full duration elapses")

	clk.TickWallClock() // -0.001, now <= 0
	var r, ok2 = resumeQ.Get()
	require.True(t, ok2)
	assert.Equal(t, id, r.CoroID)
}

func TestClockSchedulerCancelStopsFutureResume(t *testing.T) {
	var resumeQ = NewQueue[ClockResume](8)
	var clk = NewClockScheduler(4, 1000, resumeQ)

	var id = clk.Schedule(WakeCondition{Kind: WakeSleep, SecondsRemaining: 0.001})
	clk.Cancel(id)

	clk.TickWallClock()
	var _, ok = resumeQ.Get()
	assert.False(t, ok, "a cancelled slot must never post a resume")
}

// TestClockSchedulerCancellationRaceInvariant exercises spec 4.7's
// cancellation race: a resume event already in flight for an id that gets
// cancelled (and whose slot is then reused by a new Schedule call) must
// still be recognized and dropped by the dispatcher's CancelledCoros set,
// rather than mistakenly accepted as the new schedule's event.
func TestClockSchedulerCancellationRaceInvariant(t *testing.T) {
	var resumeQ = NewQueue[ClockResume](8)
	var clk = NewClockScheduler(1, 1000, resumeQ) // one slot, forces reuse
	var disp = newTestDispatcher(resumeQ)

	var staleID = clk.Schedule(WakeCondition{Kind: WakeSleep, SecondsRemaining: 0.001})
	clk.TickWallClock() // posts the resume for staleID into resumeQ

	// Cancel it (too late to stop the already-posted event) and reschedule,
	// reusing the only slot.
	clk.Cancel(staleID)
	disp.CancelledCoros[staleID] = true
	var freshID = clk.Schedule(WakeCondition{Kind: WakeSleep, SecondsRemaining: 10})

	require.NotEqual(t, staleID, freshID)

	disp.DispatchIteration(time.Now(), nil, nil)
	_, stillCancelled := disp.CancelledCoros[staleID]
	assert.False(t, stillCancelled, "dispatching the stale resume should consume the cancellation entry")
}
