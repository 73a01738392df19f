package core

/*------------------------------------------------------------------
 *
 * Purpose:	Event dispatch & Lua-boundary glue: drains the cross-domain
 *		queues in a fixed priority order each control-loop
 *		iteration, bounded per queue, and brackets any Lua
 *		execution with output batching.
 *
 * Description:	Generalizes server.go's bounded per-source drain loop
 *		(fixed priority across command sources, capped per
 *		iteration so none starve the others) and callbacks.go's
 *		named-callback dispatch convention.
 *
 *------------------------------------------------------------------*/

import (
	"time"

	"github.com/cv-synth/cvcore/internal/diag"
	"github.com/cv-synth/cvcore/internal/luabridge"
)

const (
	detectionCapPerLoop = 8
	generalCapPerLoop   = 16

	switchPollHz   = 20
	publicViewHz   = 15
)

// GeneralEvent is the catch-all queue for miscellaneous deferred glue work
// (e.g. a user-requested "as soon as possible" callback) that doesn't fit
// the other specialized queues.
type GeneralEvent struct {
	Run func(vm luabridge.VM)
}

// Dispatcher wires every queue to the VM and owns the fixed priority order
// of spec.md §4.8.
type Dispatcher struct {
	VM luabridge.VM

	SlopeActionQ *Queue[SlopeAction]
	DetectionQ   *Queue[DetectionEvent]
	MetroQ       *Queue[MetroTick]
	ClockQ       *Queue[ClockResume]
	GeneralQ     *Queue[GeneralEvent]

	Outputs *OutputState

	// CancelledCoros holds the ids of cancelled coroutines; a resume event
	// whose id is in the set is dropped at dispatch, and its entry removed,
	// rather than acted on (spec 4.7 cancellation race).
	CancelledCoros map[int]bool

	// nativeResumes holds coroutine ids a native engine component (rather
	// than a Lua-registered coroutine) scheduled for itself -- currently
	// just PulseOutput's low-edge continuations (spec §5). A resume whose
	// id matches one of these is handled here and never reaches Lua.
	nativeResumes map[int]func()

	pulseCallbackActive [2]bool // per-channel reentrancy guard (spec 4.8)

	lastSwitchPoll   time.Time
	lastPublicView   time.Time

	asapHook func(vm luabridge.VM)

	batchDepth int
}

func NewDispatcher(vm luabridge.VM) *Dispatcher {
	return &Dispatcher{
		VM:             vm,
		CancelledCoros: make(map[int]bool),
		nativeResumes:  make(map[int]func()),
	}
}

// SetASAPHook installs the single "as soon as possible" user hook executed
// once per control-loop iteration (priority step 10).
func (d *Dispatcher) SetASAPHook(fn func(vm luabridge.VM)) {
	d.asapHook = fn
}

// RegisterNativeResume arranges for a clock-resume event carrying coroID to
// invoke hook directly instead of calling into Lua's `_clock_resume` global.
// Used by PulseOutput to reclaim its own scheduled low-edge continuations.
func (d *Dispatcher) RegisterNativeResume(coroID int, hook func()) {
	d.nativeResumes[coroID] = hook
}

// RunLua executes a Lua call bracketed by output batch begin/flush, so
// any number of output writes inside collapse to one calibration
// conversion per changed channel, and a concurrent reader sees either the
// pre-call or post-call state, never a mix (spec 4.8, invariant/scenario 6).
// Also captures and logs Lua errors per spec §7 without propagating them,
// and still flushes the batch on error so outputs never get stuck
// mid-update.
func (d *Dispatcher) RunLua(fn func(vm luabridge.VM) error) {
	d.batchBegin()
	defer d.batchFlush()

	if err := fn(d.VM); err != nil {
		logLuaError(err)
	}
}

func (d *Dispatcher) batchBegin() {
	d.batchDepth++
	if d.batchDepth == 1 {
		d.Outputs.BeginWrite()
	}
}

func (d *Dispatcher) batchFlush() {
	d.batchDepth--
	if d.batchDepth == 0 {
		d.Outputs.EndWrite()
	}
}

func logLuaError(err error) {
	diag.Control.Error(err.Error())
}

// DispatchIteration runs the ten priority steps of spec §4.8 once. Each
// step dequeues up to its cap (or drains fully, for metro/clock ticks).
// switchPoll and publicView are called only when their rate-limited window
// (20Hz and 15Hz) has elapsed; either may be nil.
func (d *Dispatcher) DispatchIteration(now time.Time, switchPoll func(), publicView func()) {
	// 1. Slope-action continuations: drain fully, they unblock chained envelopes.
	for {
		var a, ok = d.SlopeActionQ.Get()
		if !ok {
			break
		}
		d.RunLua(func(vm luabridge.VM) error {
			return vm.CallGlobal("_slope_action_continue", a.Channel)
		})
	}

	// 2. Detection input events: capped.
	for i := 0; i < detectionCapPerLoop; i++ {
		var ev, ok = d.DetectionQ.Get()
		if !ok {
			break
		}
		d.dispatchDetectionEvent(ev)
	}

	// 3. Metro tick events: drain.
	for {
		var t, ok = d.MetroQ.Get()
		if !ok {
			break
		}
		d.RunLua(func(vm luabridge.VM) error {
			return vm.CallGlobal("_metro_tick", t.MetroID, t.StageIndex)
		})
	}

	// 4. Clock resume events: drain.
	for {
		var c, ok = d.ClockQ.Get()
		if !ok {
			break
		}
		if d.CancelledCoros[c.CoroID] {
			delete(d.CancelledCoros, c.CoroID)
			continue
		}
		if hook, ok := d.nativeResumes[c.CoroID]; ok {
			delete(d.nativeResumes, c.CoroID)
			hook()
			continue
		}
		d.RunLua(func(vm luabridge.VM) error {
			return vm.CallGlobal("_clock_resume", c.CoroID)
		})
	}

	// 5. General event queue: capped.
	for i := 0; i < generalCapPerLoop; i++ {
		var g, ok = d.GeneralQ.Get()
		if !ok {
			break
		}
		d.RunLua(func(vm luabridge.VM) error {
			g.Run(vm)
			return nil
		})
	}

	// 6. Switch-change poll: rate-limited to 20Hz.
	if switchPoll != nil && now.Sub(d.lastSwitchPoll) >= time.Second/switchPollHz {
		switchPoll()
		d.lastSwitchPoll = now
	}

	// 7 & 8 (pulse-input dispatch, clock-edge forwarding) are driven by
	// the caller via DispatchPulseChange / ForwardClockEdge, since they
	// need direct access to the platform pulse-I/O adapter this package
	// doesn't own.

	// 9. Public-view monitoring: rate-limited to 15Hz.
	if publicView != nil && now.Sub(d.lastPublicView) >= time.Second/publicViewHz {
		publicView()
		d.lastPublicView = now
	}

	// 10. Optional ASAP hook, once per iteration.
	if d.asapHook != nil {
		d.RunLua(d.asapHook)
	}
}

func (d *Dispatcher) dispatchDetectionEvent(ev DetectionEvent) {
	var callback string
	switch ev.Type {
	case DetectStream:
		callback = "_stream"
	case DetectChange:
		callback = "_change"
	case DetectWindow:
		callback = "_window"
	case DetectScale:
		callback = "_scale"
	case DetectVolume:
		callback = "_volume"
	case DetectPeak:
		callback = "_peak"
	case DetectFrequency:
		callback = "_freq"
	}

	d.RunLua(func(vm luabridge.VM) error {
		return vm.CallGlobal(callback, ev.Channel, float64(ev.Value))
	})
}

// DispatchPulseChange is priority step 7: forwards a pulse-input level
// change to its named callback, guarded against reentrancy. Fast clocks on
// a channel whose own callback is still running simply drop the
// re-entrant call rather than queueing it (spec 4.8 "Reentrancy").
func (d *Dispatcher) DispatchPulseChange(ch int, rising bool) {
	if d.pulseCallbackActive[ch] {
		return // dropped, not queued
	}

	d.pulseCallbackActive[ch] = true
	defer func() { d.pulseCallbackActive[ch] = false }()

	var name = "_pulsein_change_callback"
	if rising {
		name = name + "_rising"
	} else {
		name = name + "_falling"
	}

	d.RunLua(func(vm luabridge.VM) error {
		return vm.CallGlobal(name, ch)
	})
}

// ForwardClockEdge is priority step 8: forwards a pulse-input clock-mode
// edge flag to the clock engine.
func (d *Dispatcher) ForwardClockEdge(clk *ClockScheduler) {
	clk.AdvanceExternalEdge()
}

// DispatchSwitchChange is priority step 6's payload: reports the panel
// switch's new position to the script, only called when MainLoop's poll
// (rate-limited to 20Hz) observes a change since the last poll.
func (d *Dispatcher) DispatchSwitchChange(pos int) {
	d.RunLua(func(vm luabridge.VM) error {
		return vm.CallGlobal("_switch_change", pos)
	})
}

// DispatchPublicView is priority step 9's payload: reports the three knob
// readings to the script at the rate-limited cadence MainLoop drives,
// mirroring the stream/change/... event naming convention (spec §6.1).
func (d *Dispatcher) DispatchPublicView(knobMain, knobX, knobY float64) {
	d.RunLua(func(vm luabridge.VM) error {
		return vm.CallGlobal("_public_view", knobMain, knobX, knobY)
	})
}
