// Command cvsim runs the CV-synth control core against simulated hardware:
// a pseudo-terminal standing in for the CDC transport, and a software
// ticker standing in for the codec's sample-boundary callback. Useful for
// exercising the REPL and control-domain behavior without real hardware.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cv-synth/cvcore/internal/boardcfg"
	"github.com/cv-synth/cvcore/internal/core"
	"github.com/cv-synth/cvcore/internal/diag"
	"github.com/cv-synth/cvcore/internal/luabridge"
	"github.com/cv-synth/cvcore/internal/platform"
	"github.com/cv-synth/cvcore/internal/transport"
	"github.com/spf13/pflag"
)

const defaultScript = `function init() end`

// simAudioDevice is a software stand-in for platform.AudioDevice: it
// invokes the callback at the configured sample rate using a ticker
// instead of a real codec.
type simAudioDevice struct {
	sampleRateHz int
}

func (s *simAudioDevice) Run(ctx context.Context, cb func(frame *platform.Frame)) error {
	var period = time.Second / time.Duration(s.sampleRateHz)
	var ticker = time.NewTicker(period)
	defer ticker.Stop()

	var frame platform.Frame
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cb(&frame)
		}
	}
}

// simPulseIO is an always-connected, software-settable PulseIO stand-in.
type simPulseIO struct {
	level [2]bool
	out   [2]bool
}

func (s *simPulseIO) PulseInConnected(int) bool    { return true }
func (s *simPulseIO) PulseInLevel(ch int) bool      { return s.level[ch] }
func (s *simPulseIO) SetPulseOut(ch int, high bool) { s.out[ch] = high }

type noopLEDs struct{}

func (noopLEDs) SetLED(int, bool) {}

// simKnobs is a fixed-reading Knobs stand-in (no physical potentiometers to
// read in simulation); set via the ^^ REPL in a future extension if needed.
type simKnobs struct {
	main, x, y float64
}

func (k *simKnobs) Knob(name platform.KnobName) float64 {
	switch name {
	case platform.KnobX:
		return k.x
	case platform.KnobY:
		return k.y
	default:
		return k.main
	}
}

// simSwitch is a software-settable Switch stand-in, fixed at its middle
// position absent a driving REPL command.
type simSwitch struct {
	pos platform.SwitchPosition
}

func (s *simSwitch) Position() platform.SwitchPosition { return s.pos }

func main() {
	var boardFile = pflag.StringP("board", "c", "", "Board configuration YAML file.")
	var flashPath = pflag.StringP("flash", "f", "sim-script.flash", "Path to the persisted user-script file.")
	pflag.Parse()

	var board, err = boardcfg.Load(*boardFile)
	if err != nil {
		diag.Control.Fatal(err.Error())
	}

	var pty, ptyErr = transport.OpenPTY()
	if ptyErr != nil {
		diag.Control.Fatal(ptyErr.Error())
	}
	defer pty.Close()

	fmt.Printf("cvsim: connect a serial client to %s\n", pty.SlavePath())

	var flash = platform.NewFileFlash(*flashPath)
	var vm = luabridge.NewGopherVM()
	var pulse = &simPulseIO{}

	var mod = core.New(core.Params{
		Board: board,
		VM:    vm,
		Flash: flash,
		CDC:   pty,
		Pulse:  pulse,
		LEDs:   noopLEDs{},
		Knobs:  &simKnobs{},
		Switch: &simSwitch{pos: platform.SwitchMiddle},
		Calibrate: func(channel int, volts float64) int32 {
			return int32(volts / 6.0 * 2047)
		},
		DefaultScript: defaultScript,
	})

	var ctx, cancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		if err := mod.RunAudio(ctx, &simAudioDevice{sampleRateHz: board.SampleRateHz}); err != nil && ctx.Err() == nil {
			diag.Audio.Error(err.Error())
		}
	}()

	go func() {
		if err := mod.RunRx(ctx); err != nil && ctx.Err() == nil {
			diag.Control.Error(err.Error())
		}
	}()

	if err := mod.RunControl(ctx, time.Millisecond); err != nil && ctx.Err() == nil {
		diag.Control.Error(err.Error())
	}
}
