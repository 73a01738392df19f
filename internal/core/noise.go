package core

/*------------------------------------------------------------------
 *
 * Purpose:	Per-channel xorshift noise source mixed into an output
 *		when its noise-active bit is set (spec 4.11 step 8).
 *
 *------------------------------------------------------------------*/

// NoiseMixer generates one xorshift32 sample per call and applies a
// per-channel integer gain, overwriting the channel's output state.
type NoiseMixer struct {
	state  uint32
	active [NumOutputChannels]bool
	gain   [NumOutputChannels]int32 // Q8 fixed-point gain
}

func NewNoiseMixer(seed uint32) *NoiseMixer {
	if seed == 0 {
		seed = 0x9e3779b9
	}
	return &NoiseMixer{state: seed}
}

func (n *NoiseMixer) SetActive(ch int, active bool) { n.active[ch] = active }
func (n *NoiseMixer) SetGain(ch int, gainQ8 int32)  { n.gain[ch] = gainQ8 }

func (n *NoiseMixer) AnyActive() bool {
	for _, a := range n.active {
		if a {
			return true
		}
	}
	return false
}

// next returns the next xorshift32 pseudo-random value.
func (n *NoiseMixer) next() uint32 {
	var x = n.state
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	n.state = x
	return x
}

// Sample produces one noise sample (raw DAC-range units, +-2047) for ch if
// active, scaled by its per-channel Q8 gain.
func (n *NoiseMixer) Sample(ch int) int32 {
	if !n.active[ch] {
		return 0
	}
	var r = int32(n.next()>>20) - 2048 // ~12-bit signed spread
	return (r * n.gain[ch]) >> 8
}
