// Package paaudio implements platform.AudioDevice on top of a real sound
// card via gordonklaus/portaudio, standing in for the module's codec
// sample-boundary hardware callback (spec.md §6.3, §1 "out of scope" list:
// the specific CV/ADC calibration and DAC peripherals).
package paaudio

import (
	"context"
	"fmt"

	"github.com/cv-synth/cvcore/internal/platform"
	"github.com/gordonklaus/portaudio"
)

// Device drives the per-sample callback passed to Run (core.Module.RunAudio
// wraps core.AudioEngine.Callback in it) from PortAudio's stream callback,
// one frame per invocation. CV inputs are read from the first two input channels and
// audio inputs from the next two; outputs mirror that split.
type Device struct {
	SampleRateHz int
}

func New(sampleRateHz int) *Device {
	return &Device{SampleRateHz: sampleRateHz}
}

func (d *Device) Run(ctx context.Context, cb func(frame *platform.Frame)) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("paaudio: initialize: %w", err)
	}
	defer portaudio.Terminate()

	var frame platform.Frame
	var in = make([]float32, 4)
	var out = make([]float32, 4)

	var processFn = func(inBuf, outBuf []float32) {
		copy(in, inBuf)

		frame.CVIn[0] = floatToCounts(in[0])
		frame.CVIn[1] = floatToCounts(in[1])
		frame.AudioIn[0] = floatToCounts(in[2])
		frame.AudioIn[1] = floatToCounts(in[3])

		cb(&frame)

		out[0] = countsToFloat(frame.Out[0])
		out[1] = countsToFloat(frame.Out[1])
		out[2] = countsToFloat(frame.Out[2])
		out[3] = countsToFloat(frame.Out[3])
		copy(outBuf, out)
	}

	var stream, err = portaudio.OpenDefaultStream(4, 4, float64(d.SampleRateHz), 1, processFn)
	if err != nil {
		return fmt.Errorf("paaudio: open stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("paaudio: start stream: %w", err)
	}
	defer stream.Stop()

	<-ctx.Done()
	return ctx.Err()
}

const fullScaleCounts = 2047

func floatToCounts(v float32) int32 {
	return int32(v * fullScaleCounts)
}

func countsToFloat(c int32) float32 {
	return float32(c) / fullScaleCounts
}
