package stepctrl

import "rdkstepper/core"

// ChopSlow drives a winding with chopper regulation and slow decay: the
// active high side leg is switched off on a trip while the enable stays on,
// so the current recirculates through the low side.
func (d *Driver) ChopSlow(id core.Winding, setting int32) {
	w := d.winding(id)
	w.disarm()

	d.hw.StopTimer(id)
	d.hw.LoadTimer(id, d.blankOff)
	w.timerState = TimerIdle

	if setting != 0 {
		leg, mag := magnitude(setting)
		w.threshold = mag
		w.ctl = control{kind: ctlLeg, leg: leg, drive: core.PinOn}
		d.hw.SetOutput(id, leg.Other(), core.PinOff)
		d.hw.SetOutput(id, leg, core.PinOn)
	} else {
		w.threshold = 0
		d.hw.SetOutput(id, core.LegPos, core.PinOff)
		d.hw.SetOutput(id, core.LegNeg, core.PinOff)
	}
	d.hw.SetOutput(id, core.LegEnable, core.PinOn)

	w.arm()
	if setting != 0 {
		d.hw.EnableADC(id)
		d.hw.TriggerADC(id)
	}
}

// ChopFast drives a winding with chopper regulation and fast decay: a trip
// switches the bridge enable off so the current decays through the body
// diodes against the supply.
func (d *Driver) ChopFast(id core.Winding, setting int32) {
	w := d.winding(id)
	w.disarm()

	d.hw.StopTimer(id)
	d.hw.LoadTimer(id, d.blankOff)
	w.timerState = TimerIdle

	if setting != 0 {
		leg, mag := magnitude(setting)
		w.threshold = mag
		w.ctl = control{kind: ctlLeg, leg: core.LegEnable, drive: core.PinOn}
		d.hw.SetOutput(id, leg.Other(), core.PinOff)
		d.hw.SetOutput(id, leg, core.PinOn)
		d.hw.SetOutput(id, core.LegEnable, core.PinOn)
	} else {
		w.threshold = 0
		d.hw.SetOutput(id, core.LegPos, core.PinOff)
		d.hw.SetOutput(id, core.LegNeg, core.PinOff)
		d.hw.SetOutput(id, core.LegEnable, core.PinOff)
	}

	w.arm()
	if setting != 0 {
		d.hw.EnableADC(id)
		d.hw.TriggerADC(id)
	}
}
