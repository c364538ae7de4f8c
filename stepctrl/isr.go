package stepctrl

import "rdkstepper/core"

// TimerISR handles expiry of a winding's fixed interval timer
func (d *Driver) TimerISR(id core.Winding) {
	w := d.winding(id)
	if w.state() != Armed || w.ctl.kind != ctlLeg {
		return
	}

	switch w.timerState {
	case TimerFixedOn:
		// Restart the generator so the first PWM cycle is a full one
		d.hw.SetOutput(id, w.ctl.leg, core.PinOff)
		d.hw.SyncGenerator(w.ctl.gen, 0)
		d.hw.SetOutput(id, w.ctl.leg, w.ctl.drive)
		w.timerState = TimerIdle

	case TimerBlankOff:
		d.hw.SetOutput(id, w.ctl.leg, w.ctl.drive)
		d.hw.LoadTimer(id, ADCDelayUS)
		d.hw.StartTimer(id)
		w.timerState = TimerADCDelay

	case TimerADCDelay:
		d.hw.EnableADC(id)
		d.hw.TriggerADC(id)
		w.timerState = TimerIdle
	}
}

// ADCISR handles completion of a winding current conversion
func (d *Driver) ADCISR(id core.Winding) {
	w := d.winding(id)
	sample, count := d.hw.ReadADC(id)

	if w.state() != Armed || w.adcState == ADCIdle {
		return
	}

	// Overrun or spurious completion: sample again
	if count != 1 {
		d.hw.TriggerADC(id)
		return
	}

	current := uint32(sample)
	w.notePeak(current)

	switch w.adcState {
	case ADCChop:
		if w.ctl.kind != ctlLeg {
			return
		}
		if current >= w.threshold {
			d.hw.SetOutput(id, w.ctl.leg, core.PinOff)
			d.hw.DisableADC(id)
			d.hw.LoadTimer(id, d.blankOff*w.blankExtend)
			core.RecordTiming(core.EvtChopTrip, uint8(id), 0, int32(current), int32(w.blankExtend))
			w.blankExtend++
			d.hw.StartTimer(id)
			w.timerState = TimerBlankOff
		} else {
			w.blankExtend = 1
			d.hw.TriggerADC(id)
		}

	case ADCClosedPWM:
		if w.ctl.kind != ctlCompare {
			return
		}
		w.duty = ClosedLoopDuty(d.period, w.threshold, current)
		d.hw.SetCompare(w.ctl.gen, w.ctl.ch, (d.period-w.duty)/2)
	}
}

// ClosedLoopDuty returns the pulse width for a measured current. At or
// above the threshold the pulse drops to the minimum that still allows a
// sample; below it the width grows linearly with the error and saturates
// just short of the full period.
func ClosedLoopDuty(period, threshold, current uint32) uint32 {
	if current >= threshold {
		return MinPWMCounts
	}
	delta := threshold - current
	if delta >= MaxCurrentDelta {
		return period - 4
	}
	duty := period * delta / MaxCurrentDelta
	// stricter than a full period check: the pulse never reaches 100%
	if duty > period-4 {
		duty = period - 4
	}
	if duty < MinPWMCounts {
		duty = MinPWMCounts
	}
	return duty
}
