// Command cvmodule runs the CV-synth control core against real hardware
// collaborators: a GPIO-backed pulse/LED adapter, a PortAudio-backed audio
// domain, and a serial-port CDC transport.
//
// Generalizes cmd/direwolf/main.go's role as the top-level wiring binary.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cv-synth/cvcore/internal/boardcfg"
	"github.com/cv-synth/cvcore/internal/core"
	"github.com/cv-synth/cvcore/internal/diag"
	"github.com/cv-synth/cvcore/internal/luabridge"
	"github.com/cv-synth/cvcore/internal/platform"
	"github.com/cv-synth/cvcore/internal/platform/gpio"
	"github.com/cv-synth/cvcore/internal/platform/paaudio"
	"github.com/cv-synth/cvcore/internal/transport"
	"github.com/spf13/pflag"
)

const defaultScript = `function init() end`

func main() {
	var device = pflag.StringP("device", "d", "/dev/ttyACM0", "CDC serial device.")
	var baud = pflag.IntP("baud", "b", 115200, "Serial baud rate.")
	var boardFile = pflag.StringP("board", "c", "", "Board configuration YAML file.")
	var gpioChip = pflag.String("gpio-chip", "gpiochip0", "GPIO chip device for pulse I/O and LEDs.")
	var flashPath = pflag.StringP("flash", "f", "script.flash", "Path to the persisted user-script file.")
	var help = pflag.Bool("help", false, "Display help text.")
	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(0)
	}

	var board, err = boardcfg.Load(*boardFile)
	if err != nil {
		diag.Control.Fatal(err.Error())
	}

	var cdc, cdcErr = transport.OpenSerial(*device, *baud)
	if cdcErr != nil {
		diag.Control.Fatal(cdcErr.Error())
	}
	defer cdc.Close()

	var gpioDev, gpioErr = gpio.Open(gpio.Lines{
		Chip:                *gpioChip,
		PulseInOffsets:      [2]int{0, 1},
		PulseInProbeOffsets: [2]int{-1, -1},
		PulseOutOffsets:     [2]int{2, 3},
		LEDOffsets:          [6]int{4, 5, 6, 7, 8, 9},
		SwitchDownOffset:    10,
		SwitchUpOffset:      11,
	})
	if gpioErr != nil {
		diag.Control.Fatal(gpioErr.Error())
	}
	defer gpioDev.Close()

	var flash = platform.NewFileFlash(*flashPath)
	var vm = luabridge.NewGopherVM()

	var calibrate core.Calibrator = func(channel int, volts float64) int32 {
		// Real boards supply a per-channel calibration closure derived
		// from ADC/DAC trim data; absent that here, map linearly.
		return int32(volts / 6.0 * 2047)
	}

	var mod = core.New(core.Params{
		Board:         board,
		VM:            vm,
		Flash:         flash,
		CDC:           cdc,
		Pulse:         gpioDev,
		LEDs:          gpioDev,
		Switch:        gpioDev,
		Calibrate:     calibrate,
		DefaultScript: defaultScript,
		HardwareID:    readHardwareID(),
	})

	var ctx, cancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var audioDev = paaudio.New(board.SampleRateHz)

	go func() {
		if err := mod.RunAudio(ctx, audioDev); err != nil && ctx.Err() == nil {
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

func readHardwareID() [8]byte {
	var id [8]byte
	var hostname, _ = os.Hostname()
	copy(id[:], hostname)
	return id
}
