package core

/*------------------------------------------------------------------
 *
 * Purpose:	Core-0 main loop: bounded-work control-domain scheduler
 *		orchestrating C1-C9 and enforcing fairness / overrun
 *		tracking (spec §4.10).
 *
 * Description:	Generalizes cmd/direwolf/main.go's top-level service loop
 *		(drain, dispatch, repeat) and atest.go's diagnostic-line
 *		cadence.
 *
 *------------------------------------------------------------------*/

import (
	"time"

	"github.com/cv-synth/cvcore/internal/diag"
	"github.com/cv-synth/cvcore/internal/platform"
)

const (
	ledUpdateHz        = 60
	welcomeDelay       = 1500 * time.Millisecond
)

// MainLoop owns the bounded-work iteration: USB RX/TX drain, LED update
// throttling, welcome message + default script load, overrun diagnostic,
// then the Dispatcher's ten priority steps.
type MainLoop struct {
	Repl       *REPL
	Dispatcher *Dispatcher
	Engine     *AudioEngine

	RxQ *Queue[USBRxChunk]
	TxQ *Queue[USBTxChunk]
	CDC platform.CDC
	LEDs platform.LEDs

	// Knobs/Switch are optional: a simulated or headless host may leave
	// them nil, in which case switchPoll/publicView simply skip (spec
	// §6.3's three knobs and panel switch are real hardware, not modeled
	// by every platform.AudioDevice backend).
	Knobs  platform.Knobs
	Switch platform.Switch

	overrunLimiter *diag.Limiter

	bootTime       time.Time
	welcomeSent    bool
	lastLEDUpdate  time.Time

	switchPosKnown bool
	lastSwitchPos  platform.SwitchPosition

	WorstIterationMicros int64

	// ClockScheduler and Metros are referenced so the loop can drive
	// their derived service-rate ticks once per iteration using the
	// audio engine's sample-counter-derived accounting.
	Clock *ClockScheduler

	// derivedSample is the audio sample count up to which
	// serviceDerivedTicks has already run Metros.DerivedTicks.
	derivedSample uint64

	// Detectors/DetectionQ let the loop run the detection engine's
	// control-domain half (spec 4.5 "process_events_core0") before the
	// dispatcher drains the queue DispatchDetectors posts to.
	Detectors  []*Detector
	DetectionQ *Queue[DetectionEvent]
}

func NewMainLoop(repl *REPL, dispatcher *Dispatcher, engine *AudioEngine, clk *ClockScheduler, detectors []*Detector, detectionQ *Queue[DetectionEvent], rxQ *Queue[USBRxChunk], txQ *Queue[USBTxChunk], cdc platform.CDC, leds platform.LEDs, overrunWarningsPerSecond int) *MainLoop {
	return &MainLoop{
		Repl:           repl,
		Dispatcher:     dispatcher,
		Engine:         engine,
		Clock:          clk,
		Detectors:      detectors,
		DetectionQ:     detectionQ,
		RxQ:            rxQ,
		TxQ:            txQ,
		CDC:            cdc,
		LEDs:           leds,
		overrunLimiter: diag.NewLimiter(overrunWarningsPerSecond),
		bootTime:       time.Now(),
	}
}

// Iterate runs one bounded-work pass. Call it in a tight loop (or driven
// by a ticker) from the control domain's goroutine.
func (m *MainLoop) Iterate(now time.Time) {
	var start = now

	m.drainRx()
	m.drainTx()
	m.updateLEDs(now)
	m.sendWelcomeIfDue(now)
	m.serviceDerivedTicks()
	m.serviceSlopeRefill()
	m.serviceDetection()
	m.reportOverrunIfDue()

	m.Dispatcher.DispatchIteration(now, m.switchPoll, m.publicView)
	m.servicePulseEvents()

	var elapsed = time.Since(start).Microseconds()
	if elapsed > m.WorstIterationMicros {
		m.WorstIterationMicros = elapsed
	}
}

func (m *MainLoop) drainRx() {
	for {
		var chunk, ok = m.RxQ.Get()
		if !ok {
			return
		}
		for i := 0; i < chunk.Len; i++ {
			m.Repl.FeedByte(chunk.Data[i])
		}
	}
}

func (m *MainLoop) drainTx() {
	for {
		var chunk, ok = m.TxQ.Get()
		if !ok {
			return
		}
		if m.CDC == nil {
			continue
		}
		if err := m.CDC.WriteChunk(chunk.Data); err != nil {
			diag.Control.Warn("cdc write failed", "err", err)
			continue
		}
		if chunk.NeedsFlush {
			m.CDC.Flush()
		}
	}
}

// updateLEDs mirrors the four output channels onto the first four
// indicator LEDs (spec §4.10 "update output LEDs"), throttled to
// ledUpdateHz so a busy script doesn't toggle real hardware faster than
// the panel can usefully show. The remaining two LEDs are reserved for
// future script-visible indicators and left off.
func (m *MainLoop) updateLEDs(now time.Time) {
	if now.Sub(m.lastLEDUpdate) < time.Second/ledUpdateHz {
		return
	}
	m.lastLEDUpdate = now
	if m.LEDs == nil || m.Dispatcher.Outputs == nil {
		return
	}
	var snap = m.Dispatcher.Outputs.Snapshot()
	for ch := 0; ch < NumOutputChannels; ch++ {
		m.LEDs.SetLED(ch, snap[ch] != 0)
	}
}

func (m *MainLoop) sendWelcomeIfDue(now time.Time) {
	if m.welcomeSent || now.Sub(m.bootTime) < welcomeDelay {
		return
	}
	m.welcomeSent = true
	m.Repl.send("^^ready()")
	if err := m.Repl.VM.DoString(m.Repl.Store.DefaultSource()); err == nil {
		m.Repl.VM.CallGlobal("init")
	}
}

// serviceDerivedTicks runs Metros.DerivedTicks once for every audio sample
// the engine's sample counter has advanced since the last iteration, then
// services the clock scheduler once per resulting clock tick (~1kHz); the
// exact remainder carry keeps it from drifting against the sample clock.
func (m *MainLoop) serviceDerivedTicks() {
	var clockTicks = 0
	for now := m.Engine.SampleCounter(); m.derivedSample < now; m.derivedSample++ {
		var timerTicks, ct = m.Engine.Metros.DerivedTicks()
		_ = timerTicks // timer-service consumers (future growth) would go here
		clockTicks += ct
	}

	for i := 0; i < clockTicks; i++ {
		m.Clock.AdvanceInternal()
		m.Clock.TickWallClock()
	}
}

// serviceSlopeRefill drains the one refill request the audio domain's
// round-robin step may have raised this call, rendering a fresh half-buffer
// of samples on the control domain (spec §4.11 step 3 / §4.3 Refill).
func (m *MainLoop) serviceSlopeRefill() {
	var ch, ok = m.Engine.TakeRefillChannel()
	if !ok {
		return
	}
	var slope = m.Engine.Slopes[ch]
	slope.Refill(slope.Capacity() / 2)
}

// serviceDetection runs the detection engine's control-domain half,
// converting any detector's pending raw-ADC latch into a DetectionEvent
// ahead of the dispatcher's priority-step-2 drain.
func (m *MainLoop) serviceDetection() {
	DispatchDetectors(m.Detectors, m.DetectionQ, uint32(m.Engine.SampleCounter()))
}

// servicePulseEvents forwards the pulse-input edges the audio callback
// captured (spec §4.11 step 7) to the dispatcher's priority steps 7 and 8.
func (m *MainLoop) servicePulseEvents() {
	for ch := 0; ch < 2; ch++ {
		if rising, ok := m.Engine.TakePendingPulseChange(ch); ok {
			m.Dispatcher.DispatchPulseChange(ch, rising)
		}
		if m.Engine.TakePendingClockEdge(ch) {
			m.Dispatcher.ForwardClockEdge(m.Clock)
		}
	}
}

// switchPoll is priority step 6's poller: reports a panel switch position
// change to the script, but only on a change, so an idle switch never spams
// the VM at 20Hz.
func (m *MainLoop) switchPoll() {
	if m.Switch == nil {
		return
	}
	var pos = m.Switch.Position()
	if m.switchPosKnown && pos == m.lastSwitchPos {
		return
	}
	m.switchPosKnown = true
	m.lastSwitchPos = pos
	m.Dispatcher.DispatchSwitchChange(int(pos))
}

// publicView is priority step 9's poller: reports the three knob readings
// to the script at the dispatcher's rate-limited cadence.
func (m *MainLoop) publicView() {
	if m.Knobs == nil {
		return
	}
	m.Dispatcher.DispatchPublicView(
		m.Knobs.Knob(platform.KnobMain),
		m.Knobs.Knob(platform.KnobX),
		m.Knobs.Knob(platform.KnobY),
	)
}

func (m *MainLoop) reportOverrunIfDue() {
	if m.Engine.Overrun == nil {
		return
	}
	if !m.Engine.Overrun.TakeWarning() {
		return
	}
	if !m.overrunLimiter.Allow() {
		return
	}
	diag.Control.Warn("audio callback overrun",
		"worst_case_us", m.Engine.Overrun.WorstCaseMicros(),
		"count", m.Engine.Overrun.OverrunCount())
}
