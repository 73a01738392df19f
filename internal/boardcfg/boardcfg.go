// Package boardcfg loads the fixed hardware-contract constants for a module
// instance: sample rate, queue capacities, metro count, and the default
// scale table. These used to be #define constants in the teacher's
// config.go; here they live in a small YAML file so a board variant can be
// swapped without a rebuild.
package boardcfg

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Board holds the constants every other package treats as ambient truth.
type Board struct {
	Name string `yaml:"name"`

	// SampleRateHz is the audio-domain callback rate. Spec's budget
	// constant (~125us/call) implies 8kHz; older comments in the source
	// material mention a 48kHz "audio" rate, but per DESIGN.md open
	// question #2 the budget constant is taken as the source of truth.
	SampleRateHz int `yaml:"sample_rate_hz"`

	// StreamDebounceMillivolts / StreamDebounceMillis: the two debounce
	// constants named in spec.md's open questions. Kept independently
	// tunable rather than coupled (DESIGN.md open question #1).
	StreamDebounceMillivolts float64 `yaml:"stream_debounce_millivolts"`
	StreamDebounceMillis     float64 `yaml:"stream_debounce_millis"`

	MetroCount     int `yaml:"metro_count"`
	ClockSlotCount int `yaml:"clock_slot_count"`

	// QueueCapacity applies to every SPSC queue (spec 4.1: fixed
	// power-of-two capacity). Must be a power of two.
	QueueCapacity int `yaml:"queue_capacity"`

	SlopeBufferSamples int `yaml:"slope_buffer_samples"`

	// DefaultScale is installed on quantizer channels that don't set one
	// explicitly: 12-TET over a 1V/octave convention.
	DefaultScale DefaultScale `yaml:"default_scale"`

	OverrunWarningsPerSecond int `yaml:"overrun_warnings_per_second"`
}

type DefaultScale struct {
	ScalingFactor float64   `yaml:"scaling_factor"`
	Modulo        int       `yaml:"modulo"`
	Divisions     []float64 `yaml:"divisions"`
}

// Default returns the board used when no board file is supplied, matching
// the values baked into the teacher's config.go defaults convention.
func Default() Board {
	return Board{
		Name:                     "cv4-ref",
		SampleRateHz:             8000,
		StreamDebounceMillivolts: 10,
		StreamDebounceMillis:     5,
		MetroCount:               8,
		ClockSlotCount:           16,
		QueueCapacity:            64,
		SlopeBufferSamples:       64,
		DefaultScale: DefaultScale{
			ScalingFactor: 1.0,
			Modulo:        12,
			Divisions:     chromaticDivisions(),
		},
		OverrunWarningsPerSecond: 1,
	}
}

func chromaticDivisions() []float64 {
	var d = make([]float64, 12)
	for i := range d {
		d[i] = float64(i) / 12.0
	}
	return d
}

// Load reads a board file from path, falling back to Default() for any
// zero-valued field left unset by the file.
func Load(path string) (Board, error) {
	var b = Default()

	if path == "" {
		return b, nil
	}

	var data, err = os.ReadFile(path)
	if err != nil {
		return b, fmt.Errorf("boardcfg: reading %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &b); err != nil {
		return b, fmt.Errorf("boardcfg: parsing %q: %w", path, err)
	}

	if b.QueueCapacity&(b.QueueCapacity-1) != 0 {
		return b, fmt.Errorf("boardcfg: queue_capacity %d is not a power of two", b.QueueCapacity)
	}

	return b, nil
}
