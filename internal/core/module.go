package core

/*------------------------------------------------------------------
 *
 * Purpose:	Top-level wiring: assembles C1-C11 into one Module given a
 *		board configuration and the platform's collaborator
 *		implementations (spec.md §2's "Components" table, leaves
 *		first).
 *
 *------------------------------------------------------------------*/

import (
	"context"
	"time"

	"github.com/cv-synth/cvcore/internal/boardcfg"
	"github.com/cv-synth/cvcore/internal/luabridge"
	"github.com/cv-synth/cvcore/internal/platform"
)

type Module struct {
	Board boardcfg.Board

	Outputs *OutputState
	Inputs  *InputState

	SlopeActionQ *Queue[SlopeAction]
	DetectionQ   *Queue[DetectionEvent]
	MetroQ       *Queue[MetroTick]
	ClockQ       *Queue[ClockResume]
	GeneralQ     *Queue[GeneralEvent]
	RxQ          *Queue[USBRxChunk]
	TxQ          *Queue[USBTxChunk]

	Metros *Metros
	Clock  *ClockScheduler

	Engine     *AudioEngine
	Dispatcher *Dispatcher
	Repl       *REPL
	MainLoop   *MainLoop

	PulseOut [2]*PulseOutput

	flashPause *FlashPauseFlag
}

// Params groups the platform collaborators a Module needs at construction
// time (spec.md §1's "external collaborators with contracts only").
type Params struct {
	Board         boardcfg.Board
	VM            luabridge.VM
	Flash         platform.Flash
	CDC           platform.CDC
	Pulse         platform.PulseIO
	LEDs          platform.LEDs
	Knobs         platform.Knobs
	Switch        platform.Switch
	Calibrate     Calibrator
	DefaultScript string
	HardwareID    [8]byte
}

func New(p Params) *Module {
	var m Module
	m.Board = p.Board

	m.Outputs = &OutputState{}
	m.Inputs = &InputState{}

	m.SlopeActionQ = NewQueue[SlopeAction](p.Board.QueueCapacity)
	m.DetectionQ = NewQueue[DetectionEvent](p.Board.QueueCapacity)
	m.MetroQ = NewQueue[MetroTick](p.Board.QueueCapacity)
	m.ClockQ = NewQueue[ClockResume](p.Board.QueueCapacity)
	m.GeneralQ = NewQueue[GeneralEvent](p.Board.QueueCapacity)
	m.RxQ = NewQueue[USBRxChunk](p.Board.QueueCapacity)
	m.TxQ = NewQueue[USBTxChunk](p.Board.QueueCapacity)

	m.Metros = NewMetros(p.Board.MetroCount, p.Board.SampleRateHz, m.MetroQ)
	m.Clock = NewClockScheduler(p.Board.ClockSlotCount, p.Board.SampleRateHz, m.ClockQ)

	var defaultScale = &Scale{
		Divisions:     p.Board.DefaultScale.Divisions,
		ScalingFactor: p.Board.DefaultScale.ScalingFactor,
		Modulo:        p.Board.DefaultScale.Modulo,
	}

	var engine = &AudioEngine{
		SampleRateHz: p.Board.SampleRateHz,
		Metros:       m.Metros,
		Pulse:        p.Pulse,
		Outputs:      m.Outputs,
		Inputs:       m.Inputs,
		Noise:        NewNoiseMixer(0),
		Overrun:      NewOverrunTracker(budgetMicros(p.Board.SampleRateHz)),
		Calibrate:    p.Calibrate,
	}
	for ch := 0; ch < NumOutputChannels; ch++ {
		engine.Slopes[ch] = NewSlopeChannel(ch, p.Board.SampleRateHz, p.Board.SlopeBufferSamples, m.SlopeActionQ)
		engine.Slopes[ch].SetScale(defaultScale)
	}
	engine.Detectors[0] = NewDetector(0)
	engine.Detectors[1] = NewDetector(1)
	m.Engine = engine

	m.flashPause = &FlashPauseFlag{}
	var store = NewScriptStore(p.Flash, m.flashPause, p.DefaultScript)

	var detectors = []*Detector{engine.Detectors[0], engine.Detectors[1]}

	var disp = NewDispatcher(p.VM)
	disp.SlopeActionQ = m.SlopeActionQ
	disp.DetectionQ = m.DetectionQ
	disp.MetroQ = m.MetroQ
	disp.ClockQ = m.ClockQ
	disp.GeneralQ = m.GeneralQ
	disp.Outputs = m.Outputs
	m.Dispatcher = disp

	m.Clock.OnCancel = func(coroID int) {
		disp.CancelledCoros[coroID] = true
	}

	var repl = NewREPL(p.VM, store)
	repl.HardwareID = p.HardwareID
	repl.ResetHook = m.softResetAll
	if p.CDC != nil {
		repl.Tx = func(line string) {
			m.TxQ.Post(USBTxChunk{Data: []byte(line), NeedsFlush: true})
		}
	}
	m.Repl = repl

	m.MainLoop = NewMainLoop(repl, disp, engine, m.Clock, detectors, m.DetectionQ, m.RxQ, m.TxQ, p.CDC, p.LEDs, p.Board.OverrunWarningsPerSecond)
	m.MainLoop.Knobs = p.Knobs
	m.MainLoop.Switch = p.Switch

	m.PulseOut[0] = NewPulseOutput(0, wrapSetPulseOut(p.Pulse))
	m.PulseOut[1] = NewPulseOutput(1, wrapSetPulseOut(p.Pulse))

	return &m
}

func wrapSetPulseOut(p platform.PulseIO) func(ch int, high bool) {
	return func(ch int, high bool) {
		if p != nil {
			p.SetPulseOut(ch, high)
		}
	}
}

// softResetAll implements the shared reset sequence spec §4.9 requires
// before end-upload/flash-clear/load-default: stop metros, clear
// detectors, cancel clocks, zero slopes, clear noise, empty event queues.
func (m *Module) softResetAll() {
	m.Metros.StopAll()

	for _, d := range m.Engine.Detectors {
		d.SwitchMode(ModeNone, ModeParams{})
	}

	m.Clock.Stop()
	for i := range m.Clock.slots {
		m.Clock.slots[i].active = false
	}

	var defaultScale = &Scale{
		Divisions:     m.Board.DefaultScale.Divisions,
		ScalingFactor: m.Board.DefaultScale.ScalingFactor,
		Modulo:        m.Board.DefaultScale.Modulo,
	}
	for _, s := range m.Engine.Slopes {
		s.Toward(0, 0, ShapeLinear, nil)
		s.SetScale(defaultScale)
	}

	for ch := 0; ch < NumOutputChannels; ch++ {
		m.Engine.Noise.SetActive(ch, false)
	}

	drainAll(m.SlopeActionQ)
	drainAll(m.DetectionQ)
	drainAll(m.MetroQ)
	drainAll(m.ClockQ)
	drainAll(m.GeneralQ)
}

func drainAll[T any](q *Queue[T]) {
	for {
		if _, ok := q.Get(); !ok {
			return
		}
	}
}

// budgetMicros derives the per-callback time budget from the sample rate
// (spec §4.11: "at 8kHz the per-call budget is ~125us").
func budgetMicros(sampleRateHz int) int64 {
	if sampleRateHz <= 0 {
		return 125
	}
	return int64(1_000_000 / sampleRateHz)
}

// RunAudio starts the audio domain against dev, blocking until ctx is
// cancelled.
func (m *Module) RunAudio(ctx context.Context, dev platform.AudioDevice) error {
	var lastElapsed int64
	return dev.Run(ctx, func(frame *platform.Frame) {
		var start = time.Now()
		m.Engine.Callback(frame, lastElapsed)
		lastElapsed = time.Since(start).Microseconds()
	})
}

// RunRx pumps bytes from the CDC transport into RxQ for MainLoop.drainRx to
// frame into REPL input, generalizing kissserial_listen_thread's dedicated
// read-and-post loop (one goroutine blocked in CDC.ReadChunk, posting each
// chunk to the queue the control loop drains). Blocks until ctx is
// cancelled or the transport returns an error; a nil CDC (e.g. a headless
// simulation with no REPL transport) just blocks on ctx.
func (m *Module) RunRx(ctx context.Context) error {
	if m.MainLoop.CDC == nil {
		<-ctx.Done()
		return ctx.Err()
	}

	var buf [64]byte
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var n, err = m.MainLoop.CDC.ReadChunk(buf[:])
		if err != nil {
			return err
		}
		if n == 0 {
			continue
		}

		var chunk USBRxChunk
		chunk.Len = copy(chunk.Data[:], buf[:n])
		m.RxQ.Post(chunk)
	}
}

// RunControl drives MainLoop.Iterate at the given period until ctx is
// cancelled.
func (m *Module) RunControl(ctx context.Context, period time.Duration) error {
	var ticker = time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			m.MainLoop.Iterate(now)
		}
	}
}
