package stepctrl

import "rdkstepper/core"

// resetOutputs disarms both windings and leaves the bridges with every
// leg off and the enables on
func (d *Driver) resetOutputs(period uint32, adc ADCState) {
	for i := range d.windings {
		w := &d.windings[i]
		w.disarm()
		d.hw.StopTimer(w.id)
		d.hw.SetOutput(w.id, core.LegPos, core.PinOff)
		d.hw.SetOutput(w.id, core.LegNeg, core.PinOff)
		d.hw.SetOutput(w.id, core.LegEnable, core.PinOn)
		d.hw.SetADCTrigger(w.id, core.TriggerProcessor)
		w.timerState = TimerIdle
		w.adcState = adc
		w.blankExtend = 1
		w.duty = 0
		w.arm()
	}
	for gen := core.Generator(0); gen < core.NumGenerators; gen++ {
		d.hw.SetPeriod(gen, period)
	}
	for i := range d.windings {
		d.TakePeakCurrent(core.Winding(i))
	}
}

// ChopMode configures the power stage for chopper regulation. The
// generators only run a minimal period since the legs are switched
// statically.
func (d *Driver) ChopMode() {
	d.resetOutputs(4, ADCChop)
}

// OpenPWMMode configures the power stage for open loop PWM with the given
// period in system clock counts
func (d *Driver) OpenPWMMode(period uint32) {
	d.period = period
	d.resetOutputs(period, ADCIdle)
}

// ClosedPWMMode configures the power stage for closed loop PWM. The three
// generators are staggered by a quarter period so the two winding samples
// and the enable edges do not coincide, and each bridge generator's
// comparator B marks the sample point just ahead of the pulse center.
func (d *Driver) ClosedPWMMode(period uint32) {
	d.OpenPWMMode(period)

	d.hw.SyncGenerator(core.GenBridgeA, 0)
	d.hw.SyncGenerator(core.GenBridgeB, period/4)
	d.hw.SyncGenerator(core.GenEnable, period/2)

	minCompare := d.pulseCompare(MinPWMCounts)
	d.hw.SetCompare(core.GenBridgeA, core.ChanA, minCompare)
	d.hw.SetCompare(core.GenBridgeB, core.ChanA, minCompare)
	d.hw.SetCompare(core.GenEnable, core.ChanA, minCompare)
	d.hw.SetCompare(core.GenEnable, core.ChanB, minCompare)

	d.hw.SetCompare(core.GenBridgeA, core.ChanB, period/2-AcqDelayCounts)
	d.hw.SetCompare(core.GenBridgeB, core.ChanB, period/2-AcqDelayCounts)

	d.hw.SetADCTrigger(core.WindingA, core.TriggerBridgeA)
	d.hw.SetADCTrigger(core.WindingB, core.TriggerBridgeB)

	for i := range d.windings {
		w := &d.windings[i]
		w.adcState = ADCClosedPWM
		w.duty = MinPWMCounts
		d.hw.EnableADC(w.id)
	}
}
