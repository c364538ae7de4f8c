package ui

import (
	"math"

	"rdkstepper/protocol"
	"rdkstepper/stepseq"
)

// FirmwareVersion is reported by the firmware version parameter
const FirmwareVersion = 10636

// param describes one UI parameter. A zero step marks it read-only; a zero
// min and max disables range checking.
type param struct {
	id       byte
	size     int
	min, max uint32
	step     uint32

	get    func() uint32
	set    func(v uint32)
	update func()
}

// signed ranges are marked by min above max
func (p *param) signed() bool { return p.min > p.max }

// clamp limits v to the parameter range
func (p *param) clamp(v uint32) uint32 {
	if (p.min == 0 && p.max == 0) || p.size > 4 {
		return v
	}
	if p.signed() {
		sv := protocol.SignExtend(v, p.size)
		lo, hi := protocol.SignExtend(p.min, p.size), protocol.SignExtend(p.max, p.size)
		if sv < lo {
			sv = lo
		}
		if sv > hi {
			sv = hi
		}
		return uint32(sv)
	}
	if v < p.min {
		v = p.min
	}
	if v > p.max {
		v = p.max
	}
	return v
}

func u16(p *uint16) (func() uint32, func(uint32)) {
	return func() uint32 { return uint32(*p) }, func(v uint32) { *p = uint16(v) }
}

// buildParams lays out the parameter table. The order is the order of the
// GET_PARAMS reply and of the update calls on load.
func (u *UI) buildParams() []param {
	p := &u.params
	readOnly := func(id byte, size int, get func() uint32) param {
		return param{id: id, size: size, get: get}
	}
	rw := func(id byte, size int, min, max uint32, get func() uint32, set func(uint32), update func()) param {
		return param{id: id, size: size, min: min, max: max, step: 1, get: get, set: set, update: update}
	}

	speedGet, speedSet := u16(&p.Speed)
	accelGet, accelSet := u16(&p.Accel)
	decelGet, decelSet := u16(&p.Decel)
	fixedGet, fixedSet := u16(&p.FixedOnTime)
	pwmGet, pwmSet := u16(&p.PWMFrequency)
	blankGet, blankSet := u16(&p.BlankOffTime)
	driveGet, driveSet := u16(&p.DriveCurrent)
	holdGet, holdSet := u16(&p.HoldCurrent)
	maxGet, maxSet := u16(&p.MaxCurrent)
	resGet, resSet := u16(&p.Resistance)

	return []param{
		readOnly(protocol.ParamFirmwareVersion, 2, func() uint32 { return FirmwareVersion }),
		{
			id: protocol.ParamTargetPos, size: 4,
			min: uint32(1 << 31), max: math.MaxInt32, step: 256,
			get:    func() uint32 { return uint32(u.targetPos) },
			set:    func(v uint32) { u.targetPos = int32(v) },
			update: u.setMotion,
		},
		rw(protocol.ParamTargetSpeed, 2, 10, 10000, speedGet, speedSet, u.setMotion),
		rw(protocol.ParamAccel, 2, 100, 60000, accelGet, accelSet, u.setMotion),
		rw(protocol.ParamDecel, 2, 100, 60000, decelGet, decelSet, u.setMotion),
		readOnly(protocol.ParamCurrentPos, 4, func() uint32 { return uint32(u.st.Sequencer().Position()) }),
		readOnly(protocol.ParamCurrentSpeed, 2, u.rotorSpeed),
		rw(protocol.ParamControlMode, 1, 0, uint32(stepseq.ControlClosedPWM),
			func() uint32 { return uint32(p.ControlMode) },
			func(v uint32) { p.ControlMode = stepseq.ControlMode(v) },
			u.setControlMode),
		rw(protocol.ParamDecayMode, 1, 0, uint32(stepseq.DecaySlow),
			func() uint32 { return uint32(p.DecayMode) },
			func(v uint32) { p.DecayMode = stepseq.DecayMode(v) },
			func() { u.st.SetDecayMode(p.DecayMode) }),
		rw(protocol.ParamStepMode, 1, 0, uint32(stepseq.StepWave),
			func() uint32 { return uint32(p.StepMode) },
			func(v uint32) { p.StepMode = stepseq.StepMode(v) },
			u.setStepMode),
		rw(protocol.ParamFixedOnTime, 2, 0, 10000, fixedGet, fixedSet,
			func() { u.st.SetFixedOnTime(uint32(p.FixedOnTime)) }),
		rw(protocol.ParamPWMFrequency, 2, 16000, 32000, pwmGet, pwmSet, u.setPWMFreq),
		rw(protocol.ParamBlankOff, 2, 20, 10000, blankGet, blankSet,
			func() { u.st.SetBlankingTime(uint32(p.BlankOffTime)) }),
		rw(protocol.ParamTargetCurrent, 2, 100, 3000, driveGet, driveSet, u.setMotorParms),
		rw(protocol.ParamHoldingCurrent, 2, 0, 3000, holdGet, holdSet, u.setMotorParms),
		rw(protocol.ParamMaxCurrent, 2, 1000, 10000, maxGet, maxSet,
			func() { u.st.SetFaultParms(uint32(p.MaxCurrent)) }),
		rw(protocol.ParamResistance, 2, 100, 5000, resGet, resSet, u.setMotorParms),
		rw(protocol.ParamFaultStatus, 1, 0, 3,
			func() uint32 { return uint32(u.st.FaultFlags()) },
			func(uint32) {},
			u.st.ClearFaults),
		readOnly(protocol.ParamMotorStatus, 1, func() uint32 { return uint32(u.st.Sequencer().Status()) }),
		rw(protocol.ParamUseOnboardUI, 1, 0, 1,
			func() uint32 { return boolValue(u.onboard) },
			func(v uint32) { u.onboard = v != 0 },
			u.onBoard),
	}
}

func boolValue(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func (u *UI) findParam(id byte) *param {
	for i := range u.table {
		if u.table[i].id == id {
			return &u.table[i]
		}
	}
	return nil
}

// Update callbacks

// setMotion sends the motion command and reads back the target, which is
// unchanged while the motor is disabled
func (u *UI) setMotion() {
	p := &u.params
	u.st.SetMotion(u.targetPos, uint32(p.Speed), uint32(p.Accel), uint32(p.Decel))
	u.targetPos = u.st.TargetPosition()
}

func (u *UI) setMotorParms() {
	p := &u.params
	u.st.SetMotorParms(uint32(p.DriveCurrent), uint32(p.HoldCurrent), u.busMilliVolts, uint32(p.Resistance))
}

// The mode setters are gated while moving; read back what took effect

func (u *UI) setControlMode() {
	u.st.SetControlMode(u.params.ControlMode)
	u.params.ControlMode = u.st.Sequencer().Modes().Control
}

func (u *UI) setStepMode() {
	u.st.SetStepMode(u.params.StepMode)
	u.params.StepMode = u.st.Sequencer().Modes().Step
}

func (u *UI) setPWMFreq() {
	u.st.SetPWMFreq(uint32(u.params.PWMFrequency))
	u.params.PWMFrequency = uint16(u.st.Sequencer().Modes().PWMFreq)
}

// onBoard handles switching to the off-board interface. The target and
// actual positions are zeroed if the motor is at rest so a host starts
// from a known origin.
func (u *UI) onBoard() {
	if u.onboard || u.st.Sequencer().Status() != stepseq.PhaseStop {
		return
	}
	u.st.Enable()
	u.targetPos = 0
	u.st.ResetPosition(0)
	u.setMotion()
	u.st.Disable()
}
