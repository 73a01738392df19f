package core

/*------------------------------------------------------------------
 *
 * Purpose:	Plain-old-data payload types carried over the SPSC queues.
 *
 *------------------------------------------------------------------*/

// DetectionType tags which input-detection mode produced an event.
type DetectionType int

const (
	DetectStream DetectionType = iota
	DetectChange
	DetectWindow
	DetectScale
	DetectVolume
	DetectPeak
	DetectFrequency
)

// DetectionEvent is posted by the control-domain detector dispatch (C5) to
// the detection queue for the event dispatcher (C8).
type DetectionEvent struct {
	Channel   int
	Value     float32
	Type      DetectionType
	Timestamp int64 // sample-counter ticks at time of derivation

	// Mode-specific extras. Only the fields relevant to Type are set.
	WindowIndex  int
	WindowDir    int // windowIndexFor's position-only direction (+1 or -1), not a crossing direction
	ScaleIndex   int
	ScaleOctave  int
	ScaleNote    string
}

// MetroTick is posted by the audio callback's metro tick accounting (C6).
type MetroTick struct {
	MetroID    int
	StageIndex int
}

// ClockResume is posted by the clock scheduler (C7) when a coroutine's wake
// condition is satisfied.
type ClockResume struct {
	CoroID int
}

// SlopeAction is posted by the slope engine (C3) when a channel's plan
// finishes and has a queued action continuation to advance.
type SlopeAction struct {
	Channel int
}

// USBRxChunk is a fixed-capacity byte chunk read from the CDC transport.
type USBRxChunk struct {
	Data [64]byte
	Len  int
}

// USBTxChunk is a length-delimited payload queued for write to the CDC
// transport, with an explicit flush request.
type USBTxChunk struct {
	Data       []byte
	NeedsFlush bool
}
