package core

/*------------------------------------------------------------------
 *
 * Purpose:	Per-output-channel envelope engine: piecewise shaped
 *		trajectories toward a destination voltage, pre-rendered
 *		into a ring buffer the audio callback drains one sample at
 *		a time.
 *
 * Description:	Generalizes tq.go's "producer appends, a different thread
 *		drains on its own schedule" discipline: here the control
 *		domain is producer of pre-rendered samples, and the audio
 *		callback is the consumer, one sample per call. The ring
 *		follows queue.go's explicit release/acquire barrier protocol
 *		(store payload, then publish the write index; load the write
 *		index, then read the payload) rather than plain fields.
 *
 *------------------------------------------------------------------*/

import (
	"math"
	"sync/atomic"
)

// ActionContinuation is an opaque handle into a user-defined (Lua) action
// sequence; the slope engine never interprets it, only carries it and
// signals when it is time to advance.
type ActionContinuation interface{}

type plan struct {
	active             bool
	here               float64
	dest               float64
	shape              Shape
	startValue         float64
	totalSamples       int
	samplesRemaining   int
	actionContinuation ActionContinuation
	scale              *Scale // optional quantization descriptor
}

// SlopeChannel drives one output channel. here/dest/plan fields are
// control-domain-owned; buffered samples are SPSC between control
// (producer) and audio (consumer).
type SlopeChannel struct {
	sampleRateHz int

	p plan

	buf      []float64
	writeIdx atomic.Uint32 // control-domain owned; published via Store after payload write
	readIdx  atomic.Uint32 // audio-domain owned; published via Store after payload read

	// stepValue/stepPending implement the "immediate step" fast path
	// (Toward with a sub-sample duration): the new value must override
	// whatever is still queued in buf right away, but the control domain
	// can't legally rewrite readIdx itself (audio's own index) to make
	// that happen. Instead it posts the value here; the audio side picks
	// it up on its very next sample, fast-forwards its own readIdx past
	// whatever was stale, and the ring resumes normally after that.
	stepValue   atomic.Uint64 // float64 bits; control-domain owned
	stepPending atomic.Bool   // control-domain sets; audio-domain clears

	underruns  atomic.Uint64
	lastSample float64 // audio-domain owned; only ConsumeSample writes it

	actionQ *Queue[SlopeAction]
	channel int
}

// NewSlopeChannel builds a channel with a pre-rendered buffer of the given
// capacity (spec 3.1: "length >= audio block").
func NewSlopeChannel(channel, sampleRateHz, bufferSamples int, actionQ *Queue[SlopeAction]) *SlopeChannel {
	return &SlopeChannel{
		channel:      channel,
		sampleRateHz: sampleRateHz,
		buf:          make([]float64, bufferSamples),
		actionQ:      actionQ,
	}
}

// immediateThresholdSamples: requested durations of at most this many
// samples act as an immediate step rather than a ramp.
const immediateThresholdSamples = 1

// Toward installs a new plan: ramp from the current value to dest over
// time_s seconds using shape, optionally chaining actionContinuation when
// the ramp completes. Setting dest cancels any in-progress shape unless an
// explicit continuation is queued (spec 3.1).
func (c *SlopeChannel) Toward(dest float64, timeS float64, shape Shape, action ActionContinuation) {
	var samples = int(math.Ceil(timeS * float64(c.sampleRateHz)))

	if samples <= immediateThresholdSamples {
		c.p = plan{active: false, here: dest, dest: dest, scale: c.p.scale}
		c.renderImmediateStep(dest)
		return
	}

	c.p = plan{
		active:             true,
		here:               c.p.here,
		dest:               dest,
		shape:              shape,
		startValue:         c.p.here,
		totalSamples:       samples,
		samplesRemaining:   samples,
		actionContinuation: action,
		scale:              c.p.scale,
	}
}

// SetScale attaches (or clears, with nil) a quantization descriptor applied
// to every rendered sample before it reaches the buffer.
func (c *SlopeChannel) SetScale(s *Scale) {
	c.p.scale = s
}

// State returns the current `here` value in volts, for the Lua `.volts`
// query (spec 4.3 get_state).
func (c *SlopeChannel) State() float64 {
	return c.p.here
}

// renderImmediateStep posts the constant target value for the audio side to
// pick up on its next sample (see stepValue/stepPending), rather than
// reaching into the ring buffer or the audio-owned read index directly.
func (c *SlopeChannel) renderImmediateStep(v float64) {
	var out = v
	if c.p.scale != nil {
		out = c.p.scale.Quantize(v)
	}
	c.stepValue.Store(math.Float64bits(out)) // store payload
	c.stepPending.Store(true)                // release: publish to the audio side
}

// Refill renders up to `n` new samples into the buffer following the
// active plan, called from the control domain when BufferNeedsFill is true.
func (c *SlopeChannel) Refill(n int) {
	for i := 0; i < n; i++ {
		var v float64

		if !c.p.active {
			v = c.p.here
		} else {
			var progress = 1.0 - float64(c.p.samplesRemaining)/float64(c.p.totalSamples)
			var mult = shapeValue(c.p.shape, progress)
			v = c.p.startValue + (c.p.dest-c.p.startValue)*mult
			c.p.here = v

			c.p.samplesRemaining--
			if c.p.samplesRemaining <= 0 {
				c.p.here = c.p.dest
				c.p.active = false
				v = c.p.dest

				if c.p.actionContinuation != nil {
					c.actionQ.Post(SlopeAction{Channel: c.channel})
					c.p.actionContinuation = nil
				}
			}
		}

		if c.p.scale != nil {
			v = c.p.scale.Quantize(v)
		}

		var w = c.writeIdx.Load()
		var r = c.readIdx.Load() // acquire: see the audio side's most recent progress
		var next = (int(w) + 1) % len(c.buf)
		if next == int(r) {
			break // buffer full; audio side hasn't drained yet
		}
		c.buf[int(w)] = v          // store payload
		c.writeIdx.Store(uint32(next)) // release: publish payload visibility with index advance
	}
}

// BufferNeedsFill reports whether the producer should render more samples,
// per a low-water-mark of half the buffer.
func (c *SlopeChannel) BufferNeedsFill() bool {
	var w = c.writeIdx.Load()
	var r = c.readIdx.Load()
	var occupied = (int(w) - int(r) + len(c.buf)) % len(c.buf)
	return occupied < len(c.buf)/2
}

// Capacity returns the pre-rendered sample buffer's size.
func (c *SlopeChannel) Capacity() int {
	return len(c.buf)
}

// ConsumeSample is the audio-callback path: returns the next pre-rendered
// sample. On underrun (buffer empty), re-emits the last computed value and
// silently continues, per spec 4.3 failure semantics. An immediate step
// posted by the control domain takes priority and fast-forwards the read
// index past whatever was still queued, since that's the audio-owned index
// and only the audio side may advance it.
func (c *SlopeChannel) ConsumeSample() float64 {
	if c.stepPending.Load() {
		var out = math.Float64frombits(c.stepValue.Load())
		c.stepPending.Store(false)
		c.readIdx.Store(c.writeIdx.Load()) // catch up to the producer; drop the stale backlog
		c.lastSample = out
		return out
	}

	var r = c.readIdx.Load()
	var w = c.writeIdx.Load() // acquire: see control domain's most recent publish
	if r == w {
		c.underruns.Add(1)
		return c.lastSample
	}
	var v = c.buf[int(r)]
	c.readIdx.Store(uint32((int(r) + 1) % len(c.buf)))
	c.lastSample = v
	return v
}

// Underruns returns the cumulative underrun count (spec 4.3, 7 diagnostics).
func (c *SlopeChannel) Underruns() uint64 {
	return c.underruns.Load()
}

// ExtractPulseWidth reads the "pulse time" from the first nonzero `to(...)`
// entry of an action tree shared between CV and pulse outputs.
//
// Open question (spec.md 9, DESIGN.md decision 3): whether this always
// equals the user-visible pulse width in every reachable shape is not
// rigorously specified upstream; this is a best-effort convention, not a
// guarantee.
func ExtractPulseWidth(entries []ActionEntry) (float64, bool) {
	for _, e := range entries {
		if e.TimeS != 0 {
			return e.TimeS, true
		}
	}
	return 0, false
}

// ActionEntry is one step of a user-defined action tree (attack/decay/
// sustain/release segments chained via action continuations).
type ActionEntry struct {
	Dest  float64
	TimeS float64
	Shape Shape
}
