package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestScaleBypassClampsOnly(t *testing.T) {
	var s = &Scale{Bypass: true}

	assert.InDelta(t, 1.2345, s.Quantize(1.2345), 1e-9)
	assert.Equal(t, ClampVolts, s.Quantize(100))
	assert.Equal(t, -ClampVolts, s.Quantize(-100))
}

func TestChromaticScaleSnapsToSemitones(t *testing.T) {
	var s = NewChromaticScale()

	// Exactly on a degree should stay put.
	assert.InDelta(t, 0.25, s.Quantize(0.25), 1e-9) // 3 semitones up from 0V

	// A value closer to the next semitone up should snap there.
	var near = 0.25 + 1.0/12.0*0.9
	assert.InDelta(t, 0.25+1.0/12.0, s.Quantize(near), 1e-9)
}

func TestChromaticScaleOctaveWrap(t *testing.T) {
	var s = NewChromaticScale()

	// Just under 1V (the top of the octave) should snap to the next
	// octave's zeroth degree (1.0V), not fall back to the highest
	// in-octave division (11/12 V).
	var near1V = 0.999
	assert.InDelta(t, 1.0, s.Quantize(near1V), 1e-9)
}

func TestScaleTieBreaksLow(t *testing.T) {
	var divisions = []float64{0.0, 0.5}
	var s = &Scale{Divisions: divisions, ScalingFactor: 1.0, Modulo: 2}

	// Residue exactly halfway between 0.0 and 0.5 should break to the
	// lower degree per spec 4.4.
	assert.InDelta(t, 0.0, s.Quantize(0.25), 1e-9)
}

func TestScaleAlwaysWithinClampRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var s = NewChromaticScale()
		var v = rapid.Float64Range(-100, 100).Draw(t, "v")
		var q = s.Quantize(v)
		assert.GreaterOrEqual(t, q, -ClampVolts)
		assert.LessOrEqual(t, q, ClampVolts)
	})
}

func TestScaleQuantizeIsIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var s = NewChromaticScale()
		var v = rapid.Float64Range(-6, 6).Draw(t, "v")
		var once = s.Quantize(v)
		var twice = s.Quantize(once)
		assert.InDelta(t, once, twice, 1e-9, "quantizing an already-quantized voltage must be a no-op")
	})
}
