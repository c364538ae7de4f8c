// Package stepper is the motion API of the stepper drive. It gates motion
// commands on the enable and fault state and reports the motor status.
package stepper

import (
	"rdkstepper/core"
	"rdkstepper/stepctrl"
	"rdkstepper/stepseq"
)

// FaultCurrent is set when the overcurrent comparator trips
const FaultCurrent uint8 = 0x01

// Status is a snapshot of the motor state
type Status struct {
	Position  int32 // 24.8 fixed point
	TargetPos int32
	Phase     stepseq.Phase

	StepMode    stepseq.StepMode
	ControlMode stepseq.ControlMode
	DecayMode   stepseq.DecayMode
	PWMFreq     uint32

	Speed   uint32    // whole steps per second
	Current [2]uint32 // peak winding current since the last snapshot, mA

	FaultFlags uint8
	Enabled    bool
}

// Stepper owns the sequencer and winding driver of one motor
type Stepper struct {
	drv   *stepctrl.Driver
	seq   *stepseq.Sequencer
	fault core.FaultComparator

	status Status
}

// New creates the motion API over a winding driver, the step timer and the
// overcurrent comparator. The motor starts disabled with fault detection
// off.
func New(drv *stepctrl.Driver, timer core.StepTimer, fault core.FaultComparator) *Stepper {
	s := &Stepper{
		drv:   drv,
		seq:   stepseq.New(drv, timer),
		fault: fault,
	}
	fault.DisableInterrupt()
	fault.ClearInterrupt()

	m := s.seq.Modes()
	s.status.StepMode = m.Step
	s.status.ControlMode = m.Control
	s.status.DecayMode = m.Decay
	s.status.PWMFreq = m.PWMFreq
	return s
}

// Sequencer returns the step sequencer, for wiring the step timer interrupt
func (s *Stepper) Sequencer() *stepseq.Sequencer {
	return s.seq
}

// Driver returns the winding driver, for wiring the winding interrupts
func (s *Stepper) Driver() *stepctrl.Driver {
	return s.drv
}

// TargetPosition returns the target of the last accepted motion command
func (s *Stepper) TargetPosition() int32 {
	return s.status.TargetPos
}

// FaultFlags returns the latched faults
func (s *Stepper) FaultFlags() uint8 {
	return s.status.FaultFlags
}

// Enabled reports whether motion commands are accepted
func (s *Stepper) Enabled() bool {
	return s.status.Enabled
}

// StepISR is the step timer interrupt
func (s *Stepper) StepISR() {
	s.seq.Handler()
}

// SetMotion moves to the 24.8 position pos. Ignored while disabled.
func (s *Stepper) SetMotion(pos int32, speed, accel, decel uint32) {
	if !s.status.Enabled {
		return
	}
	s.status.TargetPos = pos
	s.seq.Move(pos, speed, accel, decel)
}

// SetMotorParms sets the drive and hold currents (mA). The bus voltage
// (mV) and winding resistance (mΩ) give the current at full PWM duty.
func (s *Stepper) SetMotorParms(drive, hold, busMilliVolts, resistanceMilliOhms uint32) {
	var maxCurrent uint32
	if resistanceMilliOhms != 0 {
		maxCurrent = busMilliVolts * 1000 / resistanceMilliOhms
	}
	s.seq.Current(drive, hold, maxCurrent)
}

// SetPWMFreq sets the PWM frequency of the PWM control modes. Ignored
// while moving.
func (s *Stepper) SetPWMFreq(hz uint32) {
	if s.seq.Status() != stepseq.PhaseStop {
		return
	}
	s.seq.PWMFrequency(hz)
	s.status.PWMFreq = s.seq.Modes().PWMFreq
}

// SetFixedOnTime sets the open loop PWM rise time in µs
func (s *Stepper) SetFixedOnTime(us uint32) {
	s.drv.SetFixedOnTime(us)
}

// SetBlankingTime sets the chopper off time in µs
func (s *Stepper) SetBlankingTime(us uint32) {
	s.drv.SetBlankOffTime(us)
}

func (s *Stepper) SetDecayMode(m stepseq.DecayMode) {
	s.seq.DecayMode(m)
	s.status.DecayMode = m
}

// SetControlMode is ignored while moving
func (s *Stepper) SetControlMode(m stepseq.ControlMode) {
	if s.seq.Status() != stepseq.PhaseStop {
		return
	}
	s.status.ControlMode = m
	s.seq.ControlMode(m)
}

// SetStepMode is ignored while moving
func (s *Stepper) SetStepMode(m stepseq.StepMode) {
	if s.seq.Status() != stepseq.PhaseStop {
		return
	}
	s.status.StepMode = m
	s.seq.StepMode(m)
}

// SetFaultParms sets the overcurrent trip level in mA; 0 disables fault
// detection
func (s *Stepper) SetFaultParms(mA uint32) {
	s.fault.DisableInterrupt()
	s.fault.ClearInterrupt()
	if mA != 0 {
		s.fault.SetReference(FaultReference(mA))
		s.fault.EnableInterrupt()
	}
}

// FaultReference converts a trip current to a comparator reference step
func FaultReference(mA uint32) uint32 {
	return (mA + 687) / 1375
}

// GetMotorStatus refreshes and returns the status. Reading the winding
// currents restarts peak detection.
func (s *Stepper) GetMotorStatus() *Status {
	st := &s.status
	st.Position = s.seq.Position()
	st.Phase = s.seq.Status()
	st.Speed = s.seq.Speed() / st.StepMode.Scale()
	for w := core.WindingA; w < core.NumWindings; w++ {
		st.Current[w] = stepseq.CountsToMilliamps(s.drv.TakePeakCurrent(w))
	}
	return st
}

// Enable allows motion. Ignored while a fault is latched.
func (s *Stepper) Enable() {
	state := core.DisableInterrupts()
	if s.status.FaultFlags == 0 {
		s.status.Enabled = true
	}
	core.RestoreInterrupts(state)
}

// Disable stops the motor with the last deceleration rate and ignores
// further motion commands
func (s *Stepper) Disable() {
	s.seq.Stop()
	s.status.Enabled = false
}

// EmergencyStop turns both windings off at once. The position is no longer
// trustworthy afterwards.
func (s *Stepper) EmergencyStop() {
	s.seq.Shutdown()
	s.status.Enabled = false
}

// ResetPosition redefines the current position. Ignored while moving.
func (s *Stepper) ResetPosition(pos int32) {
	s.seq.ResetPosition(pos)
}

// ClearFaults clears the latched faults. The motor stays disabled.
func (s *Stepper) ClearFaults() {
	state := core.DisableInterrupts()
	s.status.FaultFlags = 0
	core.RestoreInterrupts(state)
}

// FaultISR is the overcurrent comparator interrupt. The hardware has
// already cut the bridge outputs.
func (s *Stepper) FaultISR() {
	s.fault.ClearInterrupt()
	s.EmergencyStop()
	s.status.FaultFlags |= FaultCurrent
	core.RecordTiming(core.EvtFault, 0, 0, s.seq.Position(), int32(s.status.FaultFlags))
	core.DebugAsync("stepper: overcurrent fault")
}
