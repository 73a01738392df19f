package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectorEffectiveModeHonorsConnectedProbe(t *testing.T) {
	var d = NewDetector(0)
	d.SwitchMode(ModeChange, ModeParams{ThresholdRaw: 100, HysteresisRaw: 10, Direction: DirBoth})
	assert.Equal(t, ModeChange, d.EffectiveMode())

	d.SetConnected(false)
	assert.Equal(t, ModeNone, d.EffectiveMode(), "a disconnected channel must read as None regardless of configured mode")

	d.SetConnected(true)
	assert.Equal(t, ModeChange, d.EffectiveMode())
}

func TestDetectorProcessSampleSkippedDuringModeSwitch(t *testing.T) {
	var d = NewDetector(0)
	d.SwitchMode(ModeChange, ModeParams{ThresholdRaw: 100, HysteresisRaw: 10, Direction: DirBoth})

	d.modeSwitching.Store(true)
	d.ProcessSample(500) // well past threshold, but should be ignored
	assert.False(t, d.stateChanged.Load(), "ProcessSample must no-op while a mode switch is in flight")
}

func TestDetectorChangeModeRisingAndFallingEdges(t *testing.T) {
	var d = NewDetector(0)
	d.SwitchMode(ModeChange, ModeParams{ThresholdRaw: 100, HysteresisRaw: 10, Direction: DirBoth})

	d.ProcessSample(0)
	assert.False(t, d.stateChanged.Load())

	d.ProcessSample(115) // crosses up-threshold (110)
	require.True(t, d.stateChanged.Load())
	assert.Equal(t, int32(115), d.eventRawValue.Load())
	d.stateChanged.Store(false)

	d.ProcessSample(112) // still above down-threshold (90); no re-trigger
	assert.False(t, d.stateChanged.Load())

	d.ProcessSample(80) // crosses down-threshold
	require.True(t, d.stateChanged.Load())
	assert.Equal(t, int32(80), d.eventRawValue.Load())
}

func TestDetectorChangeModeDirectionFilter(t *testing.T) {
	var d = NewDetector(0)
	d.SwitchMode(ModeChange, ModeParams{ThresholdRaw: 100, HysteresisRaw: 10, Direction: DirRising})

	d.ProcessSample(0)
	d.ProcessSample(115)
	require.True(t, d.stateChanged.Load())
	d.stateChanged.Store(false)

	d.ProcessSample(80) // falling edge, but direction filter is Rising-only
	assert.False(t, d.stateChanged.Load())
}

func TestDetectorClockModeFlagsPendingEdgeOnceUntilTaken(t *testing.T) {
	var d = NewDetector(0)
	d.SwitchMode(ModeClock, ModeParams{ThresholdRaw: 100, HysteresisRaw: 10})

	d.ProcessSample(0)
	assert.False(t, d.ClockEdgePending())

	d.ProcessSample(115)
	assert.True(t, d.ClockEdgePending(), "rising edge must flag pending")
	assert.False(t, d.ClockEdgePending(), "taking the flag must clear it")

	d.ProcessSample(112)
	d.ProcessSample(80)
	assert.False(t, d.ClockEdgePending(), "a falling edge never sets the pending flag")
}

func TestDetectorPeakModeSnapsUpImmediately(t *testing.T) {
	var d = NewDetector(0)
	d.SwitchMode(ModePeak, ModeParams{BlockInterval: 2})

	d.ProcessSample(-50) // |mag| = 50
	assert.Equal(t, int32(50), d.envelopeAccum)

	d.ProcessSample(10) // smaller magnitude: peak mode still only ever rises or leaks
	require.True(t, d.stateChanged.Load())
	assert.Equal(t, int32(50)-int32(50)>>6, d.eventRawValue.Load())
}

func TestDetectorFrequencyModeCountsZeroCrossings(t *testing.T) {
	var d = NewDetector(0)
	d.SwitchMode(ModeFrequency, ModeParams{BlockInterval: 4})

	d.ProcessSample(10)  // crossing 1: first sample flips the zero-initialized latch
	d.ProcessSample(-10) // crossing 2
	d.ProcessSample(10)  // crossing 3
	d.ProcessSample(-10) // crossing 4, publishes (blockInterval=4)
	require.True(t, d.stateChanged.Load())
	assert.Equal(t, int32(4), d.eventRawValue.Load())
}
