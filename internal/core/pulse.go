package core

/*------------------------------------------------------------------
 *
 * Purpose:	Pulse output scheduling: a timed high/low pulse implemented
 *		as a clock-sleep continuation tagged with a monotonic
 *		pulse-id, so a superseding pulse invalidates the stale one
 *		without needing to cancel a clock slot (spec §5).
 *
 *------------------------------------------------------------------*/

const (
	pulseHeldHighThresholdSeconds = 100.0
)

// PulseOutput drives one pulse-output line.
type PulseOutput struct {
	channel int
	set     func(ch int, high bool)

	nextPulseID int
	currentID   int
}

func NewPulseOutput(channel int, set func(ch int, high bool)) *PulseOutput {
	return &PulseOutput{channel: channel, set: set}
}

// Pulse drives the line high for widthSeconds then low, via a clock
// scheduler Sleep wake condition registered as a native resume on disp so
// the dispatcher's clock-resume drain calls back into ResolvePulseLowEdge
// directly instead of forwarding to Lua. widthSeconds<=0 pulls the line low
// immediately; >100s is treated as held-high indefinitely (spec §8
// boundary behaviors).
func (p *PulseOutput) Pulse(clk *ClockScheduler, disp *Dispatcher, widthSeconds float64) {
	p.nextPulseID++
	var id = p.nextPulseID
	p.currentID = id

	if widthSeconds <= 0 {
		p.set(p.channel, false)
		return
	}

	p.set(p.channel, true)

	if widthSeconds > pulseHeldHighThresholdSeconds {
		return // held high indefinitely; no low-edge continuation scheduled
	}

	var coroID = clk.Schedule(WakeCondition{Kind: WakeSleep, SecondsRemaining: widthSeconds})
	disp.RegisterNativeResume(coroID, func() {
		p.ResolvePulseLowEdge(id)
	})
}

// ResolvePulseLowEdge is called by the control loop when a pulse's sleep
// continuation resumes; if id is stale (a newer pulse has since started)
// it is a no-op, otherwise the line goes low.
func (p *PulseOutput) ResolvePulseLowEdge(id int) {
	if id != p.currentID {
		return // stale continuation, superseded
	}
	p.set(p.channel, false)
}
