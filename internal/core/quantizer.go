package core

/*------------------------------------------------------------------
 *
 * Purpose:	Output quantizer & calibration interface: maps a post-slope
 *		floating-point voltage to the nearest scale degree, then to
 *		DAC counts through a platform-supplied calibration closure.
 *
 * Description:	Same shape as the teacher's small pure coordinate-conversion
 *		helpers (coordconv.go, latlong.go): decompose into components,
 *		look a component up in a table, recompose. Here the
 *		"coordinate" is a voltage and the "table" is a musical scale.
 *
 *------------------------------------------------------------------*/

import "sort"

const (
	MaxScaleDivisions = 24
	ClampVolts        = 6.0
)

// Scale is the optional per-channel quantization descriptor (spec 3.1, 4.4).
type Scale struct {
	// Divisions holds the within-octave degree offsets, ascending,
	// expressed in the same unit as ScalingFactor (typically volts).
	// Empty -> chromatic 12-step. Disabled is checked via the Bypass flag
	// instead of a sentinel string, to keep the type float-only.
	Divisions     []float64
	ScalingFactor float64 // volts per octave; 1.0 + Modulo 12 = 12-TET semitones

	// Modulo records the degree count the scale was defined with (e.g. 12
	// for 12-TET). Quantize never reads it -- the division count it would
	// assert is already implied by len(Divisions), so it's descriptor-only,
	// carried for the Lua side's scale introspection (spec 4.4 get_state)
	// rather than for the quantization math itself.
	Modulo int

	Bypass bool // corresponds to the "none" tag: quantization disabled
}

// NewChromaticScale returns the default 12-TET, 1V/octave scale (spec 4.4
// "empty divisions -> chromatic 12-step quantize").
func NewChromaticScale() *Scale {
	var d = make([]float64, 12)
	for i := range d {
		d[i] = float64(i) / 12.0
	}
	return &Scale{Divisions: d, ScalingFactor: 1.0, Modulo: 12}
}

// Quantize snaps v to the nearest degree of the scale, clamps to +-6V, and
// returns the quantized voltage (DAC conversion happens separately via
// Calibrator, since that requires the platform-owned calibration closure).
func (s *Scale) Quantize(v float64) float64 {
	if s.Bypass {
		return clamp(v, -ClampVolts, ClampVolts)
	}

	var divisions = s.Divisions
	if len(divisions) == 0 {
		divisions = NewChromaticScale().Divisions
	}

	var scalingFactor = s.ScalingFactor
	if scalingFactor == 0 {
		scalingFactor = 1.0
	}

	var octave = floorDiv(v, scalingFactor)
	var residue = v - octave*scalingFactor

	var degree = nearestDegree(divisions, residue, scalingFactor)

	var vq = octave*scalingFactor + degree
	return clamp(vq, -ClampVolts, ClampVolts)
}

func floorDiv(v, scalingFactor float64) float64 {
	var q = v / scalingFactor
	var f = float64(int64(q))
	if q < f {
		f -= 1
	}
	return f
}

// nearestDegree finds the closest division to residue; ties break to the
// lower degree (spec 4.4).
func nearestDegree(divisions []float64, residue, scalingFactor float64) float64 {
	var i = sort.SearchFloat64s(divisions, residue)

	var candidates []int
	if i < len(divisions) {
		candidates = append(candidates, i)
	}
	if i > 0 {
		candidates = append(candidates, i-1)
	}
	if len(candidates) == 0 {
		return 0
	}

	var best = candidates[0]
	var bestDist = distAbs(divisions[best], residue)

	for _, c := range candidates[1:] {
		var d = distAbs(divisions[c], residue)
		if d < bestDist || (d == bestDist && divisions[c] < divisions[best]) {
			best = c
			bestDist = d
		}
	}

	// Also consider wrapping to the next octave's first degree, since
	// residue can be closer to scalingFactor (== next octave's 0) than
	// to the scale's own top degree.
	var wrapped = scalingFactor
	if distAbs(wrapped, residue) < bestDist {
		return wrapped
	}

	return divisions[best]
}

func distAbs(a, b float64) float64 {
	if a < b {
		return b - a
	}
	return a - b
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Calibrator is the opaque host-platform closure converting a calibrated,
// quantized voltage to DAC counts (spec 4.4, 6.3: "opaque calibration
// closure provided by the host platform").
type Calibrator func(channel int, volts float64) int32
