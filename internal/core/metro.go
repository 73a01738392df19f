package core

/*------------------------------------------------------------------
 *
 * Purpose:	Lightweight repeating tick sources, one free-running sample
 *		counter shared across all metro slots, plus derived
 *		coarser service-rate ticks for the timer and clock
 *		schedulers.
 *
 * Description:	Generalizes beacon.go's periodic-interval-against-a-
 *		free-running-counter pattern. Exact integer remainder carry
 *		keeps the derived ~1.5kHz timer-service and ~1kHz
 *		clock-service cadences drift-free over long runs, instead
 *		of accumulating floating-point rounding error.
 *
 *------------------------------------------------------------------*/

const (
	TimerServiceHz = 1500
	ClockServiceHz = 1000
)

type MetroSlot struct {
	enabled          bool
	intervalSamples  uint32
	countdownSamples uint32
	remainingEvents  int32 // -1 = infinite
	stage            int
}

// Metros owns all metro slots and the derived-rate accumulators. Tick runs
// in the audio domain. DerivedTicks runs in the control domain
// (MainLoop.serviceDerivedTicks) and touches only the remainder
// accumulators. Start/Stop/SetInterval/SetCount are control-domain calls
// mutating slot fields the audio tick loop reads -- matching spec 3.3
// (slope/detector/metro parameters are mutated by control-domain code only).
type Metros struct {
	slots []MetroSlot

	sampleRateHz int

	timerRemainder uint32
	clockRemainder uint32

	metroQ *Queue[MetroTick]
}

func NewMetros(count, sampleRateHz int, metroQ *Queue[MetroTick]) *Metros {
	return &Metros{
		slots:        make([]MetroSlot, count),
		sampleRateHz: sampleRateHz,
		metroQ:       metroQ,
	}
}

func (m *Metros) Start(id int, intervalS float64, count int32) {
	var samples = uint32(intervalS * float64(m.sampleRateHz))
	if samples < 1 {
		samples = 1
	}
	m.slots[id] = MetroSlot{
		enabled:          true,
		intervalSamples:  samples,
		countdownSamples: samples,
		remainingEvents:  count,
	}
}

func (m *Metros) Stop(id int) {
	m.slots[id].enabled = false
}

func (m *Metros) StopAll() {
	for i := range m.slots {
		m.slots[i].enabled = false
	}
}

func (m *Metros) SetInterval(id int, intervalS float64) {
	var samples = uint32(intervalS * float64(m.sampleRateHz))
	if samples < 1 {
		samples = 1
	}
	m.slots[id].intervalSamples = samples
}

func (m *Metros) SetCount(id int, stages int32) {
	m.slots[id].remainingEvents = stages
}

// Tick advances every enabled metro by one sample (audio-domain, called
// once per audio callback). When a metro's countdown reaches zero it posts
// a tick and reloads; when remainingEvents hits zero it disables itself so
// no further events fire.
func (m *Metros) Tick() {
	for i := range m.slots {
		var s = &m.slots[i]
		if !s.enabled {
			continue
		}

		s.countdownSamples--
		if s.countdownSamples == 0 {
			m.metroQ.Post(MetroTick{MetroID: i, StageIndex: s.stage})
			s.stage++

			if s.remainingEvents > 0 {
				s.remainingEvents--
			}
			if s.remainingEvents == 0 {
				s.enabled = false
			}

			s.countdownSamples = s.intervalSamples
		}
	}
}

// DerivedTicks reports, for one audio sample period, how many timer-service
// and clock-service ticks have now elapsed, using exact integer remainder carry
// so long runs never drift relative to the sample clock.
func (m *Metros) DerivedTicks() (timerTicks, clockTicks int) {
	m.timerRemainder += TimerServiceHz
	for m.timerRemainder >= uint32(m.sampleRateHz) {
		m.timerRemainder -= uint32(m.sampleRateHz)
		timerTicks++
	}

	m.clockRemainder += ClockServiceHz
	for m.clockRemainder >= uint32(m.sampleRateHz) {
		m.clockRemainder -= uint32(m.sampleRateHz)
		clockTicks++
	}

	return timerTicks, clockTicks
}
