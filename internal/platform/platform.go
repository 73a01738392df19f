// Package platform defines the hardware I/O contract the core requires
// from its host (spec.md §6.3), as collaborator interfaces with no
// implementation here. Concrete adapters live in subpackages
// (paaudio, gpio) and in internal/transport.
package platform

import "context"

// AudioDevice drives the audio-domain callback at a fixed sample rate and
// exposes ADC reads / DAC writes for one callback period. The real
// implementation owns the hardware codec's sample-boundary callback; the
// core never calls into it except through the Callback func it registers.
type AudioDevice interface {
	// Run blocks, invoking cb once per sample period until ctx is
	// cancelled or the device fails.
	Run(ctx context.Context, cb func(frame *Frame)) error
}

// Frame is the per-callback I/O surface: two CV inputs, two audio inputs,
// four outputs (channel 1-2 CV-range millivolts, channel 3-4 audio-range
// raw DAC units), addressed 0-indexed here.
type Frame struct {
	CVIn    [2]int32 // raw ADC counts, signed 12-bit range
	AudioIn [2]int32

	Out [4]int32 // channel 0-1: millivolts; channel 2-3: raw DAC counts +-2047
}

// PulseIO exposes the two pulse inputs (with connected-probe and edge
// detection) and two pulse outputs.
type PulseIO interface {
	PulseInConnected(ch int) bool
	PulseInLevel(ch int) bool // current logic level
	SetPulseOut(ch int, high bool)
}

// Knobs exposes the three normalized (0.0-1.0) potentiometer readings.
type Knobs interface {
	Knob(name KnobName) float64
}

type KnobName int

const (
	KnobMain KnobName = iota
	KnobX
	KnobY
)

// Switch exposes the three-position panel switch.
type Switch interface {
	Position() SwitchPosition
}

type SwitchPosition int

const (
	SwitchDown SwitchPosition = iota
	SwitchMiddle
	SwitchUp
)

// LEDs exposes the six indicator LEDs, written only from the control
// domain.
type LEDs interface {
	SetLED(index int, on bool)
}

// Identity returns the unique hardware id captured once at boot (spec 6.1,
// `^^i` response).
type Identity interface {
	HardwareID() [8]byte
}

// CDC is the byte-level serial transport: chunked read, chunked write with
// flush (spec 6.3). Implementations live in internal/transport.
type CDC interface {
	ReadChunk(buf []byte) (n int, err error)
	WriteChunk(data []byte) error
	Flush() error
	Close() error
}

// Flash is the sector-aligned script store persistence primitive (spec
// 3.1, 6.2). Implementations must make Write atomic at the sector level.
type Flash interface {
	Write(slot []byte) error
	Read() ([]byte, error)
	Erase() error
}
