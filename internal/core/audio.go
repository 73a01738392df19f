package core

/*------------------------------------------------------------------
 *
 * Purpose:	Single fixed-rate audio-domain entry point: composes slope
 *		consumption, detection, pulse edge capture, noise mixing,
 *		and scheduler tick accounting into one ordered callback.
 *
 * Description:	Generalizes audio.go's callback-driven read/process/write
 *		loop from an OS sound-card ring buffer to the platform's
 *		fixed hardware sample-boundary callback (spec §6.3).
 *
 *------------------------------------------------------------------*/

import (
	"sync/atomic"

	"github.com/cv-synth/cvcore/internal/platform"
)

// OverrunTracker records the audio callback's timing diagnostics (spec §7,
// §4.11 step 9).
type OverrunTracker struct {
	budgetMicros     int64
	worstCaseMicros  atomic.Int64
	overrunCount     atomic.Uint64
	warningPending   atomic.Bool
}

func NewOverrunTracker(budgetMicros int64) *OverrunTracker {
	return &OverrunTracker{budgetMicros: budgetMicros}
}

func (o *OverrunTracker) Record(elapsedMicros int64) {
	for {
		var prev = o.worstCaseMicros.Load()
		if elapsedMicros <= prev {
			break
		}
		if o.worstCaseMicros.CompareAndSwap(prev, elapsedMicros) {
			break
		}
	}

	if elapsedMicros >= o.budgetMicros {
		o.overrunCount.Add(1)
		o.warningPending.Store(true)
	}
}

func (o *OverrunTracker) TakeWarning() bool {
	return o.warningPending.CompareAndSwap(true, false)
}

func (o *OverrunTracker) WorstCaseMicros() int64 { return o.worstCaseMicros.Load() }
func (o *OverrunTracker) OverrunCount() uint64   { return o.overrunCount.Load() }

// AudioEngine owns every piece of state the audio callback touches.
// Constructed once at startup; Callback is registered with a
// platform.AudioDevice.
type AudioEngine struct {
	SampleRateHz int

	Slopes    [NumOutputChannels]*SlopeChannel
	Calibrate Calibrator

	Detectors [NumCVInputs]*Detector

	Metros *Metros

	Pulse        platform.PulseIO
	pulseWasHigh [2]bool
	pulseMode    [2]DetectMode // None: change-style; Clock: clock edge

	// Set by the audio callback, drained by the control loop (priority
	// steps 7/8). Plain bools here would race across domains, so these
	// are atomics even though each only ever holds 0/1.
	pendingPulseChange [2]atomic.Bool
	pendingPulseRising [2]atomic.Bool
	pendingClockEdge   [2]atomic.Bool

	Outputs *OutputState
	Inputs  *InputState

	Noise *NoiseMixer

	Overrun *OverrunTracker

	sampleCounter atomic.Uint64

	refillRoundRobin int
	refillPending    [NumOutputChannels]atomic.Bool
}

// TakePendingPulseChange reports and clears whether channel ch's pulse
// input changed level since the last call, along with the edge direction.
func (e *AudioEngine) TakePendingPulseChange(ch int) (rising bool, ok bool) {
	if !e.pendingPulseChange[ch].CompareAndSwap(true, false) {
		return false, false
	}
	return e.pendingPulseRising[ch].Load(), true
}

// TakePendingClockEdge reports and clears whether channel ch's pulse input
// (read as a clock source) saw a rising edge since the last call.
func (e *AudioEngine) TakePendingClockEdge(ch int) bool {
	return e.pendingClockEdge[ch].CompareAndSwap(true, false)
}

// TakeRefillChannel reports and clears the next output channel whose
// pre-rendered sample buffer needs refilling, for the control loop to
// service via SlopeChannel.Refill.
func (e *AudioEngine) TakeRefillChannel() (ch int, ok bool) {
	for i := 0; i < NumOutputChannels; i++ {
		if e.refillPending[i].CompareAndSwap(true, false) {
			return i, true
		}
	}
	return 0, false
}

// SampleCounter returns the free-running audio-domain sample counter
// (spec §3.1, used by metro/timer/clock tick accounting).
func (e *AudioEngine) SampleCounter() uint64 {
	return e.sampleCounter.Load()
}

// Callback performs the ordered steps of spec §4.11 for one sample period.
// elapsedMicros is the wall-clock time the previous invocation took to run,
// measured by the caller (platform.AudioDevice's driver loop) and fed back
// in so step 9 can flag a budget overrun without this package touching a
// clock itself.
func (e *AudioEngine) Callback(frame *platform.Frame, elapsedMicros int64) {
	// 1. Advance sample counter and metro countdowns; the control loop
	// derives timer/clock service ticks from this counter via
	// Metros.DerivedTicks (MainLoop.serviceDerivedTicks).
	e.sampleCounter.Add(1)
	e.Metros.Tick()

	// 2. Consume one pre-rendered sample per channel, route to DAC.
	e.Outputs.BeginWrite()
	for ch := 0; ch < NumOutputChannels; ch++ {
		var v = e.Slopes[ch].ConsumeSample()
		var counts = e.Calibrate(ch, v)
		frame.Out[ch] = counts
		e.Outputs.SetChannel(ch, int32(v*1000))
	}
	e.Outputs.EndWrite()

	// 3. Round-robin refill request: one slope channel per call.
	e.refillRoundRobin = (e.refillRoundRobin + 1) % NumOutputChannels
	if e.Slopes[e.refillRoundRobin].BufferNeedsFill() {
		e.refillPending[e.refillRoundRobin].Store(true)
	}

	// 4. Read 2 CV inputs, update input raw-ADC atomics.
	for i := 0; i < NumCVInputs; i++ {
		e.Inputs.SetRawADC(i, frame.CVIn[i])
	}

	// 5. Read 2 audio inputs, update audio-in raw atomics.
	for i := 0; i < NumAudioInputs; i++ {
		e.Inputs.SetRawADC(NumCVInputs+i, frame.AudioIn[i])
	}

	// 6. Detection, integer-only.
	e.Detectors[0].ProcessSample(frame.CVIn[0])
	e.Detectors[1].ProcessSample(frame.CVIn[1])

	// 7. Pulse input edge capture.
	if e.Pulse != nil {
		for ch := 0; ch < 2; ch++ {
			if !e.Pulse.PulseInConnected(ch) {
				continue
			}
			var level = e.Pulse.PulseInLevel(ch)
			if level != e.pulseWasHigh[ch] {
				e.pulseWasHigh[ch] = level
				if e.pulseMode[ch] == ModeClock {
					if level {
						e.pendingClockEdge[ch].Store(true)
					}
				} else {
					e.pendingPulseRising[ch].Store(level)
					e.pendingPulseChange[ch].Store(true)
				}
			}
		}
	}

	// 8. Noise mixing, if any channel's noise-active bit is set.
	if e.Noise != nil && e.Noise.AnyActive() {
		e.Outputs.BeginWrite()
		for ch := 0; ch < NumOutputChannels; ch++ {
			var n = e.Noise.Sample(ch)
			if n != 0 {
				frame.Out[ch] = n
				e.Outputs.SetChannel(ch, n*rawADCFullScaleMillivolts/rawADCFullScaleCounts)
			}
		}
		e.Outputs.EndWrite()
	}

	// 9. Overrun tracking.
	if e.Overrun != nil {
		e.Overrun.Record(elapsedMicros)
	}
}

// SetPulseMode records whether channel ch's pulse input is being read as a
// clock source, for step 7's branch between change-style dispatch and
// clock-edge forwarding.
func (e *AudioEngine) SetPulseMode(ch int, mode DetectMode) {
	e.pulseMode[ch] = mode
}
