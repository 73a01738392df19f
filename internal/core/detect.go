package core

/*------------------------------------------------------------------
 *
 * Purpose:	Input detection state machine: stream / change / window /
 *		scale / volume / peak / frequency / clock modes, split
 *		between integer-only ISR-side processing and deferred
 *		floating-point handling on the control domain.
 *
 * Description:	Per-channel fixed-size state struct with a state_changed
 *		latch consumed by a different loop iteration, generalized
 *		from hdlc_rec.go / demod_state.go's modem-state convention,
 *		and pll_dcd.go's integer-only edge detection.
 *
 *------------------------------------------------------------------*/

import "sync/atomic"

type DetectMode int

const (
	ModeNone DetectMode = iota
	ModeStream
	ModeChange
	ModeWindow
	ModeScale
	ModeVolume
	ModePeak
	ModeFrequency
	ModeClock
)

type Direction int

const (
	DirRising Direction = iota
	DirFalling
	DirBoth
)

// Detector holds one input channel's configuration and ISR state. Mode and
// parameters are mutated only by control-domain code via SwitchMode; the
// ISR-side fields (those read/written from ProcessSample) are touched only
// from the audio callback, except for the mode-switch bracket itself.
type Detector struct {
	channel int

	mode DetectMode

	// Pre-converted integer parameters (converted from volts once, at
	// mode-set time, so the ISR never does float math -- invariant 6).
	thresholdRaw   int32
	hysteresisRaw  int32
	direction      Direction
	blockInterval  uint32 // samples between Stream/Volume/Peak publishes
	windowBounds   []int32
	scaleBoundsRaw []int32 // precomputed integer bounds per scale degree

	connected bool // normalization-probe result; forces ModeNone when false

	// ISR-only state.
	lastRawADC    int32
	sampleCounter uint32
	latchedUp     bool // Change mode: suppresses duplicate same-direction crossings
	envelopeAccum int32
	zeroCrossings uint32

	stateChanged   atomic.Bool
	eventRawValue  atomic.Int32
	modeSwitching  atomic.Bool
	clockEdgePending atomic.Bool
}

func NewDetector(channel int) *Detector {
	return &Detector{channel: channel, connected: true}
}

// EffectiveMode returns ModeNone when the normalization probe reports the
// channel as not connected, regardless of configured mode (spec 4.5
// "Normalization-probe interaction"). This is not an error condition.
func (d *Detector) EffectiveMode() DetectMode {
	if !d.connected {
		return ModeNone
	}
	return d.mode
}

func (d *Detector) SetConnected(connected bool) {
	d.connected = connected
}

// ModeParams groups the pre-converted parameters installed by SwitchMode.
type ModeParams struct {
	ThresholdRaw   int32
	HysteresisRaw  int32
	Direction      Direction
	BlockInterval  uint32
	WindowBounds   []int32
	ScaleBoundsRaw []int32
}

// SwitchMode atomically reconfigures the detector per the mode-switching
// protocol (spec 4.5): set modeSwitching, barrier, install params, clear
// pending events, barrier, clear modeSwitching. The ISR checks
// modeSwitching at each dispatch and returns early if set, so a
// reconfigured channel never yields half-configured callbacks.
//
// Control-domain only.
func (d *Detector) SwitchMode(mode DetectMode, params ModeParams) {
	d.modeSwitching.Store(true) // barrier: ISR must see this before any new param read

	d.mode = mode
	d.thresholdRaw = params.ThresholdRaw
	d.hysteresisRaw = params.HysteresisRaw
	d.direction = params.Direction
	d.blockInterval = params.BlockInterval
	d.windowBounds = params.WindowBounds
	d.scaleBoundsRaw = params.ScaleBoundsRaw

	d.sampleCounter = 0
	d.latchedUp = false
	d.envelopeAccum = 0
	d.zeroCrossings = 0
	d.stateChanged.Store(false)
	d.clockEdgePending.Store(false)

	d.modeSwitching.Store(false) // barrier: now safe for ISR to resume
}

// ProcessSample is the ISR-side entry point, called once per channel per
// audio callback. Integer-only: no floating-point multiplication occurs in
// this function or anything it calls, for modes Change/Clock/Window/
// Scale/None/Stream (spec invariant 6). Volume/Peak/Frequency use bounded
// integer accumulation too.
func (d *Detector) ProcessSample(rawADC int32) {
	if d.modeSwitching.Load() {
		return // reconfiguration in progress; skip this channel this call
	}

	d.lastRawADC = rawADC

	switch d.EffectiveMode() {
	case ModeNone:
		// store last raw value only, already done above.

	case ModeStream:
		d.sampleCounter++
		if d.blockInterval > 0 && d.sampleCounter >= d.blockInterval {
			d.stateChanged.Store(true)
			d.eventRawValue.Store(rawADC)
			d.sampleCounter = 0
		}

	case ModeChange:
		d.processChange(rawADC)

	case ModeWindow, ModeScale:
		// Boundary search and scale-table lookup are deferred to the
		// control domain; the ISR only flags that a sample arrived.
		d.stateChanged.Store(true)
		d.eventRawValue.Store(rawADC)

	case ModeVolume, ModePeak:
		d.processEnvelope(rawADC)

	case ModeFrequency:
		d.processZeroCross(rawADC)

	case ModeClock:
		d.processClockEdge(rawADC)
	}
}

func (d *Detector) processChange(rawADC int32) {
	var upThreshold = d.thresholdRaw + d.hysteresisRaw
	var downThreshold = d.thresholdRaw - d.hysteresisRaw

	if !d.latchedUp && rawADC >= upThreshold {
		if d.direction == DirRising || d.direction == DirBoth {
			d.stateChanged.Store(true)
			d.eventRawValue.Store(rawADC)
		}
		d.latchedUp = true
	} else if d.latchedUp && rawADC <= downThreshold {
		if d.direction == DirFalling || d.direction == DirBoth {
			d.stateChanged.Store(true)
			d.eventRawValue.Store(rawADC)
		}
		d.latchedUp = false
	}
}

func (d *Detector) processEnvelope(rawADC int32) {
	var mag = rawADC
	if mag < 0 {
		mag = -mag
	}

	// Simple integer leaky-peak follower, shared by volume and peak modes:
	// snaps up to a larger magnitude immediately, otherwise leaks down by
	// 1/64 per sample. Shift-based, no floating point.
	if mag > d.envelopeAccum {
		d.envelopeAccum = mag
	} else {
		d.envelopeAccum -= d.envelopeAccum >> 6
	}

	d.sampleCounter++
	if d.blockInterval > 0 && d.sampleCounter >= d.blockInterval {
		d.stateChanged.Store(true)
		d.eventRawValue.Store(d.envelopeAccum)
		d.sampleCounter = 0
	}
}

func (d *Detector) processZeroCross(rawADC int32) {
	var wasUp = d.latchedUp
	var nowUp = rawADC >= 0
	if nowUp != wasUp {
		d.zeroCrossings++
		d.latchedUp = nowUp
	}

	d.sampleCounter++
	if d.blockInterval > 0 && d.sampleCounter >= d.blockInterval {
		d.stateChanged.Store(true)
		d.eventRawValue.Store(int32(d.zeroCrossings))
		d.zeroCrossings = 0
		d.sampleCounter = 0
	}
}

func (d *Detector) processClockEdge(rawADC int32) {
	var upThreshold = d.thresholdRaw + d.hysteresisRaw
	var downThreshold = d.thresholdRaw - d.hysteresisRaw

	if !d.latchedUp && rawADC >= upThreshold {
		d.latchedUp = true
		d.clockEdgePending.Store(true)
	} else if d.latchedUp && rawADC <= downThreshold {
		d.latchedUp = false
	}
}

// ClockEdgePending reports and clears a pending clock-mode rising edge, for
// the control loop to forward to the clock engine (spec 4.5).
func (d *Detector) ClockEdgePending() bool {
	return d.clockEdgePending.CompareAndSwap(true, false)
}
