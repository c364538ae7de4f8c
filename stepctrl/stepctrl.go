// Package stepctrl regulates the current in the two motor windings.
//
// Each winding is driven by one H-bridge. The sequencer hands the driver a
// signed setting per winding (ADC counts for the chopper and closed loop
// methods, PWM counts for open loop PWM) and the driver picks the bridge
// switch pattern and runs the regulation loop from the fixed timer and
// ADC interrupts.
package stepctrl

import (
	"sync/atomic"

	"rdkstepper/core"
)

const (
	MinPWMCounts      = 150  // shortest pulse that still allows a current sample
	AcqDelayCounts    = 50   // sample point offset ahead of the pulse center
	MaxCurrentDelta   = 375  // current error (ADC counts) that saturates the duty
	ADCDelayUS        = 2    // settle time between switch on and sample
	DefaultBlankOffUS = 100  // chopper off time after a trip
	DefaultFixedOnUS  = 1    // open loop PWM rise time
	DefaultPeriod     = 2500 // 20 kHz at the system clock
)

// TimerState is the fixed timer sub-state of a winding
type TimerState uint8

const (
	TimerIdle TimerState = iota
	TimerFixedOn
	TimerBlankOff
	TimerADCDelay
)

func (s TimerState) String() string {
	switch s {
	case TimerFixedOn:
		return "FIXED_ON"
	case TimerBlankOff:
		return "BLANK_OFF"
	case TimerADCDelay:
		return "ADC_DELAY"
	}
	return "IDLE"
}

// ADCState is the current sample sub-state of a winding
type ADCState uint8

const (
	ADCIdle ADCState = iota
	ADCChop
	ADCClosedPWM
)

func (s ADCState) String() string {
	switch s {
	case ADCChop:
		return "CHOP"
	case ADCClosedPWM:
		return "CLOSEDPWM"
	}
	return "IDLE"
}

// ArmState tells the interrupt handlers whether a winding may be acted on.
// Setters move a winding to Configuring before touching any output and to
// Armed once the whole configuration has been written.
type ArmState uint32

const (
	Idle ArmState = iota
	Configuring
	Armed
)

func (s ArmState) String() string {
	switch s {
	case Configuring:
		return "CONFIGURING"
	case Armed:
		return "ARMED"
	}
	return "IDLE"
}

type controlKind uint8

const (
	ctlNone controlKind = iota
	ctlLeg
	ctlCompare
)

// control is the output the interrupt handlers switch for a winding: either
// a leg that is toggled between off and drive, or a comparator that
// receives the closed loop duty.
type control struct {
	kind  controlKind
	leg   core.Leg
	drive core.PinDrive
	gen   core.Generator
	ch    core.Channel
}

type winding struct {
	id          core.Winding
	armed       uint32 // ArmState
	ctl         control
	threshold   uint32
	timerState  TimerState
	adcState    ADCState
	blankExtend uint32
	duty        uint32
	peak        uint32 // atomic, raw ADC counts
}

func (w *winding) state() ArmState {
	return ArmState(atomic.LoadUint32(&w.armed))
}

// disarm blocks the interrupt handlers and forgets the control target
func (w *winding) disarm() {
	atomic.StoreUint32(&w.armed, uint32(Configuring))
	w.ctl = control{}
}

// arm publishes the configuration. A winding without a control target
// goes back to Idle.
func (w *winding) arm() {
	if w.ctl.kind == ctlNone {
		atomic.StoreUint32(&w.armed, uint32(Idle))
		return
	}
	atomic.StoreUint32(&w.armed, uint32(Armed))
}

func (w *winding) notePeak(sample uint32) {
	for {
		old := atomic.LoadUint32(&w.peak)
		if sample <= old || atomic.CompareAndSwapUint32(&w.peak, old, sample) {
			return
		}
	}
}

// Driver owns both windings of the power stage
type Driver struct {
	hw       core.PowerStage
	windings [core.NumWindings]winding

	period   uint32 // PWM period in system clock counts
	blankOff uint32 // µs
	fixedOn  uint32 // µs
}

// NewDriver creates a winding driver in chopper mode
func NewDriver(hw core.PowerStage) *Driver {
	d := &Driver{
		hw:       hw,
		period:   DefaultPeriod,
		blankOff: DefaultBlankOffUS,
		fixedOn:  DefaultFixedOnUS,
	}
	for i := range d.windings {
		d.windings[i].id = core.Winding(i)
		d.windings[i].blankExtend = 1
	}
	d.ChopMode()
	return d
}

func (d *Driver) winding(id core.Winding) *winding {
	return &d.windings[id&1]
}

// Period returns the PWM period used by the open and closed loop methods
func (d *Driver) Period() uint32 {
	return d.period
}

// SetBlankOffTime sets the chopper off time in microseconds
func (d *Driver) SetBlankOffTime(us uint32) {
	d.blankOff = us
}

// SetFixedOnTime sets the open loop PWM rise time in microseconds.
// Zero switches straight to PWM.
func (d *Driver) SetFixedOnTime(us uint32) {
	d.fixedOn = us
}

// BlankOffTime returns the chopper off time in microseconds
func (d *Driver) BlankOffTime() uint32 {
	return d.blankOff
}

// FixedOnTime returns the open loop PWM rise time in microseconds
func (d *Driver) FixedOnTime() uint32 {
	return d.fixedOn
}

// PeakCurrent returns the highest current sample seen since the last reset
func (d *Driver) PeakCurrent(id core.Winding) uint32 {
	return atomic.LoadUint32(&d.winding(id).peak)
}

// TakePeakCurrent returns the peak current sample and resets it
func (d *Driver) TakePeakCurrent(id core.Winding) uint32 {
	return atomic.SwapUint32(&d.winding(id).peak, 0)
}

// WindingStatus is a snapshot of one winding's regulation state
type WindingStatus struct {
	Armed       ArmState
	Timer       TimerState
	ADC         ADCState
	Threshold   uint32
	BlankExtend uint32
	Duty        uint32
}

// Status returns the regulation state of a winding
func (d *Driver) Status(id core.Winding) WindingStatus {
	w := d.winding(id)
	return WindingStatus{
		Armed:       w.state(),
		Timer:       w.timerState,
		ADC:         w.adcState,
		Threshold:   w.threshold,
		BlankExtend: w.blankExtend,
		Duty:        w.duty,
	}
}

// magnitude splits a signed setting into the driven leg and its size
func magnitude(setting int32) (core.Leg, uint32) {
	if setting < 0 {
		return core.LegNeg, uint32(-int64(setting))
	}
	return core.LegPos, uint32(setting)
}

// pulseCompare converts a pulse width into the comparator value of an
// up/down counter so the pulse is centered in the period
func (d *Driver) pulseCompare(width uint32) uint32 {
	if width > d.period {
		width = d.period
	}
	return (d.period - width) / 2
}
