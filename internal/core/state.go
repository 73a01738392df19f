package core

/*------------------------------------------------------------------
 *
 * Purpose:	Atomic output/input state visible to both the audio and
 *		control domains without locks.
 *
 * Description:	One word per channel plus a version counter bracketing
 *		protocol for "all channels consistent" snapshot reads, per
 *		spec.md 4.2 and invariant 5. Writers advance the counter to
 *		odd before writing, even after; readers retry until two
 *		bracketing reads of the counter agree and are even.
 *
 *		This is the one place in the design that uses shared mutable
 *		state directly (spec.md 9, "Global mutable state"): every
 *		cell here has exactly one documented writer.
 *
 *------------------------------------------------------------------*/

import "sync/atomic"

const (
	NumOutputChannels = 4
	NumCVInputs       = 2
	NumAudioInputs    = 2
)

// OutputState holds millivolts per output channel. Sole writer: the audio
// callback, after each DAC write.
type OutputState struct {
	version atomic.Uint32
	mv      [NumOutputChannels]atomic.Int32
}

// BeginWrite must be called before updating any channel in a batch the
// caller wants observed atomically; EndWrite closes the bracket.
func (s *OutputState) BeginWrite() {
	s.version.Add(1) // even -> odd
}

func (s *OutputState) EndWrite() {
	s.version.Add(1) // odd -> even
}

// SetChannel writes one channel's millivolt value without touching the
// version counter. Call it between BeginWrite/EndWrite; a single-channel
// write that must be observed atomically uses SetChannelAtomic instead.
func (s *OutputState) SetChannel(ch int, millivolts int32) {
	s.mv[ch].Store(millivolts)
}

// SetChannelAtomic is the single-channel convenience wrapper: brackets its
// own write.
func (s *OutputState) SetChannelAtomic(ch int, millivolts int32) {
	s.BeginWrite()
	s.mv[ch].Store(millivolts)
	s.EndWrite()
}

// Snapshot returns a consistent view of all channels: either all pre-batch
// or all post-batch values, never a mix (spec.md invariant 5, scenario 6).
func (s *OutputState) Snapshot() [NumOutputChannels]int32 {
	for {
		var v1 = s.version.Load()
		if v1%2 != 0 {
			continue // a write is in progress
		}

		var out [NumOutputChannels]int32
		for i := range out {
			out[i] = s.mv[i].Load()
		}

		var v2 = s.version.Load()
		if v1 == v2 {
			return out
		}
		// writer raced us; retry
	}
}

// InputState holds the raw ADC reading plus the denoised stream-equivalent
// volts for each CV/audio input. Raw is written by the audio callback only;
// StreamEquivalent is written by the control domain only (4.5 denoising).
type InputState struct {
	rawADC           [NumCVInputs + NumAudioInputs]atomic.Int32
	streamEquivalent [NumCVInputs + NumAudioInputs]atomic.Int32 // millivolts, fixed point
}

func (s *InputState) SetRawADC(ch int, raw int32) {
	s.rawADC[ch].Store(raw)
}

func (s *InputState) RawADC(ch int) int32 {
	return s.rawADC[ch].Load()
}

func (s *InputState) SetStreamEquivalentMillivolts(ch int, mv int32) {
	s.streamEquivalent[ch].Store(mv)
}

func (s *InputState) StreamEquivalentMillivolts(ch int) int32 {
	return s.streamEquivalent[ch].Load()
}
