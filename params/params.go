// Package params holds the drive parameters: defaults, ranges, the
// persistent parameter block and the JSON configuration used by the host
// tools.
package params

import (
	"fmt"

	"go.uber.org/multierr"
	"periph.io/x/conn/v3/physic"

	"rdkstepper/stepseq"
)

// DriveParameters are the user settable drive settings. Field order is the
// persistent block layout.
type DriveParameters struct {
	_ struct{} `cbor:",toarray" json:"-"`

	ControlMode stepseq.ControlMode `json:"control_mode"`
	DecayMode   stepseq.DecayMode   `json:"decay_mode"`
	StepMode    stepseq.StepMode    `json:"step_mode"`

	Speed uint16 `json:"speed"` // steps/s
	Accel uint16 `json:"accel"` // steps/s²
	Decel uint16 `json:"decel"` // steps/s²

	FixedOnTime  uint16 `json:"fixed_on_time"` // µs
	PWMFrequency uint16 `json:"pwm_frequency"` // Hz
	BlankOffTime uint16 `json:"blank_off_time"`

	DriveCurrent uint16 `json:"drive_current"` // mA
	HoldCurrent  uint16 `json:"hold_current"`
	MaxCurrent   uint16 `json:"max_current"` // overcurrent trip
	Resistance   uint16 `json:"resistance"`  // mΩ
}

// Defaults returns the factory settings
func Defaults() DriveParameters {
	return DriveParameters{
		ControlMode:  stepseq.ControlChop,
		DecayMode:    stepseq.DecaySlow,
		StepMode:     stepseq.StepHalf,
		Speed:        200,
		Accel:        30000,
		Decel:        60000,
		FixedOnTime:  500,
		PWMFrequency: 20000,
		BlankOffTime: 100,
		DriveCurrent: 1500,
		HoldCurrent:  0,
		MaxCurrent:   6000,
		Resistance:   750,
	}
}

// Range is the accepted span of a parameter
type Range struct {
	Min, Max uint32
}

func (r Range) contains(v uint32) bool {
	return v >= r.Min && v <= r.Max
}

// Ranges of the settable parameters
var (
	SpeedRange        = Range{10, 10000}
	AccelRange        = Range{100, 60000}
	FixedOnRange      = Range{0, 10000}
	PWMFrequencyRange = Range{16000, 32000}
	BlankOffRange     = Range{20, 10000}
	DriveCurrentRange = Range{100, 3000}
	HoldCurrentRange  = Range{0, 3000}
	MaxCurrentRange   = Range{1000, 10000}
	ResistanceRange   = Range{100, 5000}
)

// Validate reports every out of range field
func (p *DriveParameters) Validate() error {
	var err error
	check := func(name string, v uint32, r Range) {
		if !r.contains(v) {
			err = multierr.Append(err, fmt.Errorf("%s %d out of range [%d, %d]", name, v, r.Min, r.Max))
		}
	}

	check("control mode", uint32(p.ControlMode), Range{0, uint32(stepseq.ControlClosedPWM)})
	check("decay mode", uint32(p.DecayMode), Range{0, uint32(stepseq.DecaySlow)})
	check("step mode", uint32(p.StepMode), Range{0, uint32(stepseq.StepWave)})
	check("speed", uint32(p.Speed), SpeedRange)
	check("accel", uint32(p.Accel), AccelRange)
	check("decel", uint32(p.Decel), AccelRange)
	check("fixed on time", uint32(p.FixedOnTime), FixedOnRange)
	check("pwm frequency", uint32(p.PWMFrequency), PWMFrequencyRange)
	check("blank off time", uint32(p.BlankOffTime), BlankOffRange)
	check("drive current", uint32(p.DriveCurrent), DriveCurrentRange)
	check("hold current", uint32(p.HoldCurrent), HoldCurrentRange)
	check("max current", uint32(p.MaxCurrent), MaxCurrentRange)
	check("resistance", uint32(p.Resistance), ResistanceRange)
	return err
}

// Engineering unit views for logs and the host tools

func (p *DriveParameters) Drive() physic.ElectricCurrent {
	return physic.ElectricCurrent(p.DriveCurrent) * physic.MilliAmpere
}

func (p *DriveParameters) Hold() physic.ElectricCurrent {
	return physic.ElectricCurrent(p.HoldCurrent) * physic.MilliAmpere
}

func (p *DriveParameters) Trip() physic.ElectricCurrent {
	return physic.ElectricCurrent(p.MaxCurrent) * physic.MilliAmpere
}

func (p *DriveParameters) WindingResistance() physic.ElectricResistance {
	return physic.ElectricResistance(p.Resistance) * physic.MilliOhm
}

func (p *DriveParameters) PWM() physic.Frequency {
	return physic.Frequency(p.PWMFrequency) * physic.Hertz
}

// FullScaleCurrent is the current through the winding at 100% PWM duty
// with the given bus voltage
func (p *DriveParameters) FullScaleCurrent(bus physic.ElectricPotential) physic.ElectricCurrent {
	if p.Resistance == 0 {
		return 0
	}
	mV := int64(bus / physic.MilliVolt)
	return physic.ElectricCurrent(mV*1000/int64(p.Resistance)) * physic.MilliAmpere
}

func (p *DriveParameters) String() string {
	return fmt.Sprintf("%s/%s/%s %d steps/s accel %d decel %d drive %s hold %s trip %s R %s PWM %s",
		p.ControlMode, p.DecayMode, p.StepMode, p.Speed, p.Accel, p.Decel,
		p.Drive(), p.Hold(), p.Trip(), p.WindingResistance(), p.PWM())
}
