// Package gpio implements platform.PulseIO and platform.LEDs on Linux GPIO
// character-device lines via warthog618/go-gpiocdev, generalizing the
// teacher's ptt.go GPIO support ("Version 0.9: Add ability to use GPIO
// pins on Linux") from a single PTT output line to the module's two pulse
// inputs, two pulse outputs, and six indicator LEDs.
package gpio

import (
	"fmt"

	"github.com/cv-synth/cvcore/internal/diag"
	"github.com/cv-synth/cvcore/internal/platform"
	"github.com/warthog618/go-gpiocdev"
)

// Lines maps logical pulse/LED channels to gpiocdev chip offsets.
type Lines struct {
	Chip string

	PulseInOffsets      [2]int
	PulseInProbeOffsets [2]int // normalization-probe lines; -1 if none wired
	PulseOutOffsets     [2]int
	LEDOffsets          [6]int

	// SwitchDownOffset/SwitchUpOffset read the panel switch's two throw
	// lines (a center-off toggle wired to two GPIO inputs, one per thrown
	// direction); -1 if no switch is wired, in which case Position always
	// reports SwitchMiddle.
	SwitchDownOffset int
	SwitchUpOffset   int
}

// Device owns the requested lines for their lifetime.
type Device struct {
	pulseIn      [2]*gpiocdev.Line
	pulseInProbe [2]*gpiocdev.Line
	pulseOut     [2]*gpiocdev.Line
	leds         [6]*gpiocdev.Line

	switchDown *gpiocdev.Line
	switchUp   *gpiocdev.Line
}

func Open(lines Lines) (*Device, error) {
	var d Device

	for i, off := range lines.PulseInOffsets {
		var l, err = gpiocdev.RequestLine(lines.Chip, off, gpiocdev.AsInput)
		if err != nil {
			return nil, fmt.Errorf("gpio: pulse in %d: %w", i, err)
		}
		d.pulseIn[i] = l
	}

	for i, off := range lines.PulseInProbeOffsets {
		if off < 0 {
			continue
		}
		var l, err = gpiocdev.RequestLine(lines.Chip, off, gpiocdev.AsInput)
		if err != nil {
			return nil, fmt.Errorf("gpio: pulse in probe %d: %w", i, err)
		}
		d.pulseInProbe[i] = l
	}

	for i, off := range lines.PulseOutOffsets {
		var l, err = gpiocdev.RequestLine(lines.Chip, off, gpiocdev.AsOutput(0))
		if err != nil {
			return nil, fmt.Errorf("gpio: pulse out %d: %w", i, err)
		}
		d.pulseOut[i] = l
	}

	for i, off := range lines.LEDOffsets {
		var l, err = gpiocdev.RequestLine(lines.Chip, off, gpiocdev.AsOutput(0))
		if err != nil {
			return nil, fmt.Errorf("gpio: led %d: %w", i, err)
		}
		d.leds[i] = l
	}

	if lines.SwitchDownOffset >= 0 {
		var l, err = gpiocdev.RequestLine(lines.Chip, lines.SwitchDownOffset, gpiocdev.AsInput)
		if err != nil {
			return nil, fmt.Errorf("gpio: switch down: %w", err)
		}
		d.switchDown = l
	}
	if lines.SwitchUpOffset >= 0 {
		var l, err = gpiocdev.RequestLine(lines.Chip, lines.SwitchUpOffset, gpiocdev.AsInput)
		if err != nil {
			return nil, fmt.Errorf("gpio: switch up: %w", err)
		}
		d.switchUp = l
	}

	return &d, nil
}

// Position reads the panel switch (platform.Switch). With neither throw
// line wired it reports SwitchMiddle; if both read active simultaneously
// (a wiring fault) it also falls back to SwitchMiddle rather than picking
// one arbitrarily.
func (d *Device) Position() platform.SwitchPosition {
	var down, up bool
	if d.switchDown != nil {
		if v, err := d.switchDown.Value(); err == nil {
			down = v != 0
		}
	}
	if d.switchUp != nil {
		if v, err := d.switchUp.Value(); err == nil {
			up = v != 0
		}
	}
	switch {
	case down && !up:
		return platform.SwitchDown
	case up && !down:
		return platform.SwitchUp
	default:
		return platform.SwitchMiddle
	}
}

func (d *Device) PulseInConnected(ch int) bool {
	if d.pulseInProbe[ch] == nil {
		return true // no probe line wired: assume always connected
	}
	var v, err = d.pulseInProbe[ch].Value()
	if err != nil {
		diag.Control.Warn("gpio probe read failed", "channel", ch, "err", err)
		return false
	}
	return v != 0
}

func (d *Device) PulseInLevel(ch int) bool {
	var v, err = d.pulseIn[ch].Value()
	if err != nil {
		diag.Control.Warn("gpio pulse in read failed", "channel", ch, "err", err)
		return false
	}
	return v != 0
}

func (d *Device) SetPulseOut(ch int, high bool) {
	var v = 0
	if high {
		v = 1
	}
	if err := d.pulseOut[ch].SetValue(v); err != nil {
		diag.Control.Warn("gpio pulse out write failed", "channel", ch, "err", err)
	}
}

func (d *Device) SetLED(index int, on bool) {
	var v = 0
	if on {
		v = 1
	}
	if err := d.leds[index].SetValue(v); err != nil {
		diag.Control.Warn("gpio led write failed", "index", index, "err", err)
	}
}

func (d *Device) Close() {
	for _, l := range d.pulseIn {
		if l != nil {
			l.Close()
		}
	}
	for _, l := range d.pulseInProbe {
		if l != nil {
			l.Close()
		}
	}
	for _, l := range d.pulseOut {
		if l != nil {
			l.Close()
		}
	}
	for _, l := range d.leds {
		if l != nil {
			l.Close()
		}
	}
	if d.switchDown != nil {
		d.switchDown.Close()
	}
	if d.switchUp != nil {
		d.switchUp.Close()
	}
}
