package stepctrl

import "rdkstepper/core"

// OpenPwmSlow drives a winding with open loop PWM on the active high side
// leg. The leg is held on for the fixed on time first so the current
// builds quickly, then the timer interrupt hands it to the generator.
func (d *Driver) OpenPwmSlow(id core.Winding, setting int32) {
	w := d.winding(id)
	w.disarm()

	d.hw.StopTimer(id)
	d.hw.LoadTimer(id, d.fixedOn)
	w.timerState = TimerIdle

	gen := core.BridgeGenerator(id)
	start := false
	if setting != 0 {
		leg, mag := magnitude(setting)
		w.duty = mag
		d.hw.SetCompare(gen, core.ChanA, d.pulseCompare(mag))
		d.hw.SetOutput(id, leg.Other(), core.PinOff)
		if d.fixedOn == 0 {
			d.hw.SetOutput(id, leg, core.PinPWM)
		} else {
			d.hw.SetOutput(id, leg, core.PinOn)
			w.ctl = control{kind: ctlLeg, leg: leg, drive: core.PinPWM, gen: gen}
			w.timerState = TimerFixedOn
			start = true
		}
	} else {
		w.duty = 0
		d.hw.SetOutput(id, core.LegPos, core.PinOff)
		d.hw.SetOutput(id, core.LegNeg, core.PinOff)
	}
	d.hw.SetOutput(id, core.LegEnable, core.PinOn)

	w.arm()
	if start {
		d.hw.StartTimer(id)
	}
}

// OpenPwmFast drives a winding with open loop PWM on the bridge enable,
// holding the direction legs static
func (d *Driver) OpenPwmFast(id core.Winding, setting int32) {
	w := d.winding(id)
	w.disarm()

	d.hw.StopTimer(id)
	d.hw.LoadTimer(id, d.fixedOn)
	w.timerState = TimerIdle

	start := false
	if setting != 0 {
		leg, mag := magnitude(setting)
		w.duty = mag
		d.hw.SetOutput(id, leg.Other(), core.PinOff)
		d.hw.SetOutput(id, leg, core.PinOn)
		d.hw.SetCompare(core.GenEnable, core.EnableChannel(id), d.pulseCompare(mag))
		if d.fixedOn == 0 {
			d.hw.SetOutput(id, core.LegEnable, core.PinPWM)
		} else {
			d.hw.SetOutput(id, core.LegEnable, core.PinOn)
			w.ctl = control{kind: ctlLeg, leg: core.LegEnable, drive: core.PinPWM, gen: core.GenEnable}
			w.timerState = TimerFixedOn
			start = true
		}
	} else {
		w.duty = 0
		d.hw.SetOutput(id, core.LegPos, core.PinOff)
		d.hw.SetOutput(id, core.LegNeg, core.PinOff)
		d.hw.SetOutput(id, core.LegEnable, core.PinOff)
	}

	w.arm()
	if start {
		d.hw.StartTimer(id)
	}
}

// ClosedPwmSlow drives a winding with closed loop PWM on the active high
// side leg. The ADC samples once per bridge generator period and the ADC
// interrupt recomputes the pulse width.
func (d *Driver) ClosedPwmSlow(id core.Winding, setting int32) {
	w := d.winding(id)
	w.disarm()

	gen := core.BridgeGenerator(id)
	d.hw.SetCompare(gen, core.ChanA, d.pulseCompare(MinPWMCounts))
	w.duty = MinPWMCounts

	if setting != 0 {
		leg, mag := magnitude(setting)
		w.threshold = mag
		d.hw.SetOutput(id, leg.Other(), core.PinOff)
		d.hw.SetOutput(id, leg, core.PinPWM)
		w.ctl = control{kind: ctlCompare, gen: gen, ch: core.ChanA}
	} else {
		w.threshold = 0
		d.hw.SetOutput(id, core.LegPos, core.PinOff)
		d.hw.SetOutput(id, core.LegNeg, core.PinOff)
	}
	d.hw.SetOutput(id, core.LegEnable, core.PinOn)

	if id == core.WindingA {
		d.hw.SetADCTrigger(id, core.TriggerBridgeA)
	} else {
		d.hw.SetADCTrigger(id, core.TriggerBridgeB)
	}
	d.hw.EnableADC(id)

	w.arm()
}

// ClosedPwmFast drives a winding with closed loop PWM on the bridge
// enable, sampling on the enable generator load event
func (d *Driver) ClosedPwmFast(id core.Winding, setting int32) {
	w := d.winding(id)
	w.disarm()

	ch := core.EnableChannel(id)
	d.hw.SetCompare(core.GenEnable, ch, d.pulseCompare(MinPWMCounts))
	w.duty = MinPWMCounts

	if setting != 0 {
		leg, mag := magnitude(setting)
		w.threshold = mag
		d.hw.SetOutput(id, leg.Other(), core.PinOff)
		d.hw.SetOutput(id, leg, core.PinOn)
		d.hw.SetOutput(id, core.LegEnable, core.PinPWM)
		w.ctl = control{kind: ctlCompare, gen: core.GenEnable, ch: ch}
	} else {
		w.threshold = 0
		d.hw.SetOutput(id, core.LegPos, core.PinOff)
		d.hw.SetOutput(id, core.LegNeg, core.PinOff)
		d.hw.SetOutput(id, core.LegEnable, core.PinOff)
	}

	d.hw.SetADCTrigger(id, core.TriggerEnable)
	d.hw.EnableADC(id)

	w.arm()
}
