package core

/*------------------------------------------------------------------
 *
 * Purpose:	Control-domain half of the detection engine: scans
 *		detectors for a pending state_changed flag, converts the
 *		raw ISR value to volts, performs mode-specific derivation,
 *		and posts the result to the detection queue (spec 4.5,
 *		"process_events_core0").
 *
 *------------------------------------------------------------------*/

const rawADCFullScaleMillivolts = 6000 // +-6V mapped to +-2047 raw counts, spec 6.3
const rawADCFullScaleCounts = 2047

func rawToVolts(raw int32) float32 {
	return float32(raw) / float32(rawADCFullScaleCounts) * (rawADCFullScaleMillivolts / 1000.0)
}

func voltsToRaw(v float64) int32 {
	return int32(v / (rawADCFullScaleMillivolts / 1000.0) * rawADCFullScaleCounts)
}

// DispatchDetectors scans every detector; for each with a pending
// state_changed flag it clears the flag, converts the value, performs
// mode-specific derivation, and posts a DetectionEvent. Returns the number
// of events posted.
func DispatchDetectors(detectors []*Detector, detectionQ *Queue[DetectionEvent], sampleCounter uint32) int {
	var posted = 0

	for _, d := range detectors {
		if !d.stateChanged.CompareAndSwap(true, false) {
			continue
		}

		var raw = d.eventRawValue.Load()
		var volts = rawToVolts(raw)

		var ev = DetectionEvent{
			Channel:   d.channel,
			Value:     volts,
			Timestamp: int64(sampleCounter),
		}

		switch d.mode {
		case ModeStream:
			ev.Type = DetectStream

		case ModeChange:
			ev.Type = DetectChange

		case ModeWindow:
			ev.Type = DetectWindow
			ev.WindowIndex, ev.WindowDir = windowIndexFor(d.windowBounds, raw)

		case ModeScale:
			ev.Type = DetectScale
			ev.ScaleOctave, ev.ScaleIndex, ev.ScaleNote = scaleIndexFor(d.scaleBoundsRaw, raw)

		case ModeVolume:
			ev.Type = DetectVolume

		case ModePeak:
			ev.Type = DetectPeak

		case ModeFrequency:
			ev.Type = DetectFrequency

		default:
			continue
		}

		if detectionQ.Post(ev) {
			posted++
		}
	}

	return posted
}

// windowIndexFor finds which window (interval between consecutive bounds)
// raw falls in. dir comes from raw's position alone (windowDirection): -1
// in the lowest window or exactly on a window's lower bound, +1 otherwise.
// No previously latched window is compared against and no hysteresis is
// applied, here or in the Detector; this is a pure lookup.
func windowIndexFor(bounds []int32, raw int32) (index int, dir int) {
	for i, b := range bounds {
		if raw < b {
			return i, windowDirection(i, raw, bounds)
		}
	}
	return len(bounds), 1
}

func windowDirection(index int, raw int32, bounds []int32) int {
	if index == 0 {
		return -1
	}
	if raw > bounds[index-1] {
		return 1
	}
	return -1
}

// scaleIndexFor maps a raw ADC count to octave/degree-index/note-name,
// mirroring the quantizer's octave/residue decomposition but against the
// precomputed integer scale-bounds table installed at mode-set time.
func scaleIndexFor(boundsRaw []int32, raw int32) (octave int, index int, note string) {
	if len(boundsRaw) == 0 {
		return 0, 0, ""
	}

	var perOctave = len(boundsRaw)
	var span = boundsRaw[perOctave-1] - boundsRaw[0]
	if span <= 0 {
		span = 1
	}

	octave = int((raw - boundsRaw[0]) / span)
	var residue = raw - int32(octave)*span

	var best = 0
	var bestDist = abs32(boundsRaw[0] - residue)
	for i, b := range boundsRaw {
		var dist = abs32(b - residue)
		if dist < bestDist {
			best = i
			bestDist = dist
		}
	}

	return octave, best, noteNames[best%12]
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}
