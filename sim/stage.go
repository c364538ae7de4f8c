// Package sim is a virtual power stage for the stepper drive. It models
// the two windings as RL loads behind H-bridges and delivers the timer,
// ADC and comparator interrupts on a core.Scheduler clock counting system
// clock ticks.
package sim

import (
	"math"

	"rdkstepper/core"
	"rdkstepper/stepseq"
)

const (
	// ADCConversionTicks is the time from trigger to conversion complete
	ADCConversionTicks = 50

	// ADCMax is the full scale of the current sense converter
	ADCMax = 1023

	// ModelStepTicks bounds the integration step of the winding model
	ModelStepTicks = 500
)

// Motor is the electrical model of the motor and supply
type Motor struct {
	BusMilliVolts        uint32
	ResistanceMilliOhms  uint32
	InductanceMicroHenry uint32
}

// DefaultMotor matches the factory drive parameters
var DefaultMotor = Motor{
	BusMilliVolts:        24000,
	ResistanceMilliOhms:  750,
	InductanceMicroHenry: 2500,
}

type generator struct {
	period  uint32
	compare [2]uint32
}

// duty is the fraction of the period a comparator output is high on the
// up/down counter
func (g *generator) duty(ch core.Channel) float64 {
	if g.period == 0 {
		return 0
	}
	width := int64(g.period) - 2*int64(g.compare[ch])
	if width <= 0 {
		return 0
	}
	return math.Min(float64(width)/float64(g.period), 1)
}

type adcChannel struct {
	enabled bool
	trigger core.ADCTrigger
	sample  uint16
	count   int

	convert *core.Timer // conversion in flight
	hwTimer *core.Timer // periodic hardware trigger
}

type fixedTimer struct {
	load  uint32 // µs
	timer *core.Timer
}

type windingModel struct {
	legs    [3]core.PinDrive
	current float64 // A, positive flows from the positive leg
	adc     adcChannel
	fixed   fixedTimer
}

// PowerStage implements core.PowerStage on the simulated bridges
type PowerStage struct {
	sched *core.Scheduler
	motor Motor

	gens     [core.NumGenerators]generator
	windings [core.NumWindings]windingModel
	lastTick uint64
	tripped  bool
	celsius  int16

	model core.Timer

	// interrupt handlers, set with SetHandlers
	timerISR func(core.Winding)
	adcISR   func(core.Winding)

	// observe is called after every model step
	observe func()
}

// NewPowerStage creates the simulated stage. The model step timer starts
// immediately.
func NewPowerStage(sched *core.Scheduler, motor Motor) *PowerStage {
	ps := &PowerStage{sched: sched, motor: motor, celsius: 25}
	for i := range ps.windings {
		w := core.Winding(i)
		wm := &ps.windings[i]
		wm.legs = [3]core.PinDrive{core.PinOff, core.PinOff, core.PinOff}
		wm.adc.convert = &core.Timer{Handler: func(*core.Timer) uint8 {
			ps.completeConversion(w)
			return core.SF_DONE
		}}
		wm.adc.hwTimer = &core.Timer{Handler: func(t *core.Timer) uint8 {
			return ps.hardwareTrigger(w, t)
		}}
		wm.fixed.timer = &core.Timer{Handler: func(*core.Timer) uint8 {
			ps.integrate()
			if ps.timerISR != nil {
				ps.timerISR(w)
			}
			return core.SF_DONE
		}}
	}
	ps.model.Handler = func(t *core.Timer) uint8 {
		ps.integrate()
		if ps.observe != nil {
			ps.observe()
		}
		t.WakeTime += ModelStepTicks
		return core.SF_RESCHEDULE
	}
	ps.model.WakeTime = sched.Now() + ModelStepTicks
	sched.ScheduleTimer(&ps.model)
	return ps
}

// SetHandlers connects the winding interrupts to the driver
func (ps *PowerStage) SetHandlers(timerISR, adcISR func(core.Winding)) {
	ps.timerISR, ps.adcISR = timerISR, adcISR
}

// Current returns the simulated winding current in mA
func (ps *PowerStage) Current(w core.Winding) int32 {
	ps.integrate()
	return int32(math.Round(ps.windings[w].current * 1000))
}

// BusMilliVolts implements core.BusMonitor
func (ps *PowerStage) BusMilliVolts() uint32 { return ps.motor.BusMilliVolts }

// TemperatureCelsius implements core.BusMonitor
func (ps *PowerStage) TemperatureCelsius() int16 { return ps.celsius }

// SetBus changes the supply voltage
func (ps *PowerStage) SetBus(mV uint32) {
	ps.integrate()
	ps.motor.BusMilliVolts = mV
}

// SetTemperature sets the reported processor temperature
func (ps *PowerStage) SetTemperature(c int16) { ps.celsius = c }

// Output returns the drive state of a leg
func (ps *PowerStage) Output(w core.Winding, leg core.Leg) core.PinDrive {
	return ps.windings[w].legs[leg]
}

// trip forces every output off, as the bridge fault input does
func (ps *PowerStage) trip() {
	ps.integrate()
	ps.tripped = true
	for i := range ps.windings {
		ps.windings[i].legs = [3]core.PinDrive{core.PinOff, core.PinOff, core.PinOff}
	}
}

func (ps *PowerStage) SetOutput(w core.Winding, leg core.Leg, d core.PinDrive) {
	ps.integrate()
	if ps.tripped && d != core.PinOff {
		return
	}
	ps.windings[w].legs[leg] = d
}

func (ps *PowerStage) SetPeriod(gen core.Generator, period uint32) {
	ps.integrate()
	ps.gens[gen].period = period
}

func (ps *PowerStage) SetCompare(gen core.Generator, ch core.Channel, value uint32) {
	ps.integrate()
	ps.gens[gen].compare[ch] = value
}

// SyncGenerator restarts the counter; the hardware trigger sampling of the
// windings fed by gen is realigned to phase
func (ps *PowerStage) SyncGenerator(gen core.Generator, phase uint32) {
	for i := range ps.windings {
		w := core.Winding(i)
		if ps.triggerGenerator(w) == gen && ps.windings[i].adc.enabled {
			ps.startHardwareTrigger(w, uint64(phase))
		}
	}
}

func (ps *PowerStage) SetADCTrigger(w core.Winding, src core.ADCTrigger) {
	adc := &ps.windings[w].adc
	adc.trigger = src
	if src == core.TriggerProcessor {
		ps.sched.CancelTimer(adc.hwTimer)
	} else if adc.enabled {
		ps.startHardwareTrigger(w, 0)
	}
}

func (ps *PowerStage) EnableADC(w core.Winding) {
	adc := &ps.windings[w].adc
	adc.enabled = true
	if adc.trigger != core.TriggerProcessor && !adc.hwTimer.Pending() {
		ps.startHardwareTrigger(w, 0)
	}
}

func (ps *PowerStage) DisableADC(w core.Winding) {
	adc := &ps.windings[w].adc
	adc.enabled = false
	ps.sched.CancelTimer(adc.hwTimer)
}

// TriggerADC starts a software conversion. Ignored unless the sequencer
// is enabled with the processor trigger.
func (ps *PowerStage) TriggerADC(w core.Winding) {
	adc := &ps.windings[w].adc
	if !adc.enabled || adc.trigger != core.TriggerProcessor || adc.convert.Pending() {
		return
	}
	adc.convert.WakeTime = ps.sched.Now() + ADCConversionTicks
	ps.sched.ScheduleTimer(adc.convert)
}

func (ps *PowerStage) ReadADC(w core.Winding) (uint16, int) {
	adc := &ps.windings[w].adc
	sample, count := adc.sample, adc.count
	adc.count = 0
	return sample, count
}

func (ps *PowerStage) LoadTimer(w core.Winding, us uint32) {
	ps.windings[w].fixed.load = us
}

func (ps *PowerStage) StartTimer(w core.Winding) {
	ft := &ps.windings[w].fixed
	ft.timer.WakeTime = ps.sched.Now() + core.TicksFromUS(ft.load)
	ps.sched.ScheduleTimer(ft.timer)
}

func (ps *PowerStage) StopTimer(w core.Winding) {
	ps.sched.CancelTimer(ps.windings[w].fixed.timer)
}

// sample converts the winding current magnitude to ADC counts
func (ps *PowerStage) sample(w core.Winding) uint16 {
	mA := math.Abs(ps.windings[w].current) * 1000
	counts := stepseq.MilliampsToCounts(uint32(mA))
	if counts > ADCMax {
		counts = ADCMax
	}
	return uint16(counts)
}

func (ps *PowerStage) completeConversion(w core.Winding) {
	ps.integrate()
	adc := &ps.windings[w].adc
	if !adc.enabled {
		return
	}
	adc.sample = ps.sample(w)
	adc.count++
	if ps.adcISR != nil {
		ps.adcISR(w)
	}
}

func (ps *PowerStage) triggerGenerator(w core.Winding) core.Generator {
	switch ps.windings[w].adc.trigger {
	case core.TriggerBridgeB:
		return core.GenBridgeB
	case core.TriggerEnable:
		return core.GenEnable
	}
	return core.GenBridgeA
}

func (ps *PowerStage) startHardwareTrigger(w core.Winding, phase uint64) {
	adc := &ps.windings[w].adc
	period := uint64(ps.gens[ps.triggerGenerator(w)].period)
	if period == 0 {
		return
	}
	adc.hwTimer.WakeTime = ps.sched.Now() + period - phase%period
	ps.sched.ScheduleTimer(adc.hwTimer)
}

// hardwareTrigger samples once per generator period while the sequencer
// is enabled with a generator trigger
func (ps *PowerStage) hardwareTrigger(w core.Winding, t *core.Timer) uint8 {
	adc := &ps.windings[w].adc
	if !adc.enabled || adc.trigger == core.TriggerProcessor {
		return core.SF_DONE
	}
	period := uint64(ps.gens[ps.triggerGenerator(w)].period)
	if period == 0 {
		return core.SF_DONE
	}
	wake := t.WakeTime + period
	ps.completeConversion(w)
	if t.Pending() || !adc.enabled {
		// the handler restarted or stopped the trigger
		return core.SF_DONE
	}
	t.WakeTime = wake
	return core.SF_RESCHEDULE
}

func (ps *PowerStage) legFraction(w core.Winding, leg core.Leg) float64 {
	switch ps.windings[w].legs[leg] {
	case core.PinOn:
		return 1
	case core.PinPWM:
		if leg == core.LegEnable {
			return ps.gens[core.GenEnable].duty(core.EnableChannel(w))
		}
		return ps.gens[core.BridgeGenerator(w)].duty(core.ChanA)
	}
	return 0
}

// integrate advances both winding currents to the scheduler clock. The
// bridge voltage is averaged over the PWM period: with the enable on the
// high side legs set it, with the enable off the current decays through
// the body diodes against the supply.
func (ps *PowerStage) integrate() {
	now := ps.sched.Now()
	if now <= ps.lastTick {
		return
	}
	dt := float64(now-ps.lastTick) / core.SystemClock
	ps.lastTick = now

	vbus := float64(ps.motor.BusMilliVolts) / 1000
	r := float64(ps.motor.ResistanceMilliOhms) / 1000
	l := float64(ps.motor.InductanceMicroHenry) / 1e6
	if r <= 0 || l <= 0 {
		return
	}
	decay := math.Exp(-dt * r / l)

	for i := range ps.windings {
		w := core.Winding(i)
		wm := &ps.windings[i]
		i0 := wm.current

		e := ps.legFraction(w, core.LegEnable)
		drive := ps.legFraction(w, core.LegPos) - ps.legFraction(w, core.LegNeg)
		v := e * vbus * drive
		if i0 != 0 && e < 1 {
			v -= (1 - e) * vbus * math.Copysign(1, i0)
		}

		iInf := v / r
		i1 := iInf + (i0-iInf)*decay
		if e < 1 && i0*i1 < 0 {
			i1 = 0
		}
		wm.current = i1
	}
}
