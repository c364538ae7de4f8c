// Package stepseq generates the step sequence of a two winding stepper
// motor. It plans trapezoidal motion profiles, paces steps from a hardware
// timer and converts each position into winding currents.
package stepseq

import (
	"math"

	"rdkstepper/core"
)

// WindingDriver applies current settings to the windings. A setting is a
// signed magnitude: PWM compare counts in the PWM modes, ADC counts in
// chopper mode.
type WindingDriver interface {
	ChopSlow(id core.Winding, setting int32)
	ChopFast(id core.Winding, setting int32)
	OpenPwmSlow(id core.Winding, setting int32)
	OpenPwmFast(id core.Winding, setting int32)
	ClosedPwmSlow(id core.Winding, setting int32)
	ClosedPwmFast(id core.Winding, setting int32)

	ChopMode()
	OpenPWMMode(period uint32)
	ClosedPWMMode(period uint32)

	// Period returns the current PWM period in system clock counts
	Period() uint32
}

const (
	settingDrive = 0
	settingHold  = 1
)

// Defaults at reset
const (
	DefaultPWMFreq    = 20000
	DefaultMaxCurrent = 65535
)

// Profile is the motion profile. Positions and step times are 24.8 fixed
// point; a whole step is 0x100.
type Profile struct {
	Position int32
	Delta    int32 // signed increment per step, 0 when holding

	PosAccel int32 // acceleration starts
	PosRun   int32 // constant speed starts
	PosDecel int32 // deceleration starts
	PosStop  int32 // final position

	StepTime    uint32
	Step1Time   uint32
	MinStepTime uint32

	AccelDenom uint32
	DecelDenom uint32
	Denom      uint32

	Phase Phase
}

// MoveRequest is a move as passed to Move, in whole steps of the step
// mode it was requested in
type MoveRequest struct {
	Target int32 // 24.8 position
	Speed  uint32
	Accel  uint32
	Decel  uint32
}

// Sequencer owns the motion profile of one motor
type Sequencer struct {
	drv   WindingDriver
	timer core.StepTimer

	prof Profile

	stepMode    StepMode
	decayMode   DecayMode
	controlMode ControlMode
	pwmFreq     uint32

	deferred    MoveRequest
	hasDeferred bool
	stopping    bool
	lastDecel   uint32

	settingIdx  int
	prevLevel   [core.NumWindings]int32
	chopSetting [2]int32
	pwmSetting  [2]int32

	driveI, holdI, maxI uint32
}

// New creates a sequencer at rest in half step, slow decay, chopper mode
func New(drv WindingDriver, timer core.StepTimer) *Sequencer {
	s := &Sequencer{
		drv:         drv,
		timer:       timer,
		stepMode:    StepHalf,
		decayMode:   DecaySlow,
		controlMode: ControlChop,
		pwmFreq:     DefaultPWMFreq,
		maxI:        DefaultMaxCurrent,
	}
	s.prof.Delta = 0x100
	return s
}

// applyWinding drives one winding for the table row idx. The driver is
// only touched when the level changes.
func (s *Sequencer) applyWinding(id core.Winding, idx int) {
	level := stepLevel(idx, int(id), s.stepMode)
	if level != s.prevLevel[id] {
		base := s.chopSetting[s.settingIdx]
		if s.controlMode == ControlOpenPWM {
			base = s.pwmSetting[s.settingIdx]
		}
		setting := int32(int64(base) * int64(level) / fullLevel)

		slow := s.decayMode == DecaySlow || (s.prof.Delta == 0 && setting == 0)
		switch s.controlMode {
		case ControlOpenPWM:
			if slow {
				s.drv.OpenPwmSlow(id, setting)
			} else {
				s.drv.OpenPwmFast(id, setting)
			}
		case ControlClosedPWM:
			if slow {
				s.drv.ClosedPwmSlow(id, setting)
			} else {
				s.drv.ClosedPwmFast(id, setting)
			}
		default:
			if slow {
				s.drv.ChopSlow(id, setting)
			} else {
				s.drv.ChopFast(id, setting)
			}
		}
	}
	s.prevLevel[id] = level
}

func (s *Sequencer) setPhase(p Phase) {
	if s.prof.Phase != p {
		core.RecordTiming(core.EvtPhase, 0, 0, int32(p), s.prof.Position)
	}
	s.prof.Phase = p
}

func (s *Sequencer) loadStep() {
	s.timer.Load(timerCounts(s.prof.StepTime))
	s.timer.Enable()
}

// Handler advances the motor one step. It is the step timer interrupt.
func (s *Sequencer) Handler() {
	p := &s.prof

	p.Position += p.Delta
	idx := tableIndex(p.Position, s.stepMode)
	s.applyWinding(core.WindingA, idx)
	s.applyWinding(core.WindingB, idx)
	core.RecordTiming(core.EvtStep, 0, 0, p.Position, int32(p.StepTime))

	switch {
	case p.Delta == 0:
		// holding current applied, motor at rest
		s.timer.Disable()
		s.setPhase(PhaseStop)
		s.stopping = false
		p.StepTime = 0
		if s.hasDeferred {
			s.hasDeferred = false
			m := s.deferred
			s.Move(m.Target, m.Speed, m.Accel, m.Decel)
		}

	case p.Position == p.PosStop:
		// one more timeout to switch to holding current
		s.timer.Disable()
		s.settingIdx = settingHold
		p.Delta = 0
		s.prevLevel = [core.NumWindings]int32{math.MaxInt32, math.MaxInt32}
		s.loadStep()

	case p.Position == p.PosRun:
		s.timer.Disable()
		s.timer.SetPeriodic(true)
		p.StepTime = p.MinStepTime
		s.loadStep()
		s.setPhase(PhaseRun)

	case p.Position == p.PosDecel || p.Phase == PhaseDecel:
		s.timer.Disable()
		if p.Position == p.PosDecel {
			p.Denom = p.DecelDenom
			s.setPhase(PhaseDecel)
			s.timer.SetPeriodic(false)
		}
		p.StepTime += 2 * p.StepTime / p.Denom
		s.loadStep()
		if p.Denom > 4 {
			p.Denom -= 4
		}

	case p.Position == p.PosAccel || p.Phase == PhaseAccel:
		s.timer.Disable()
		if p.Position == p.PosAccel {
			p.Denom = p.AccelDenom
			s.setPhase(PhaseAccel)
			p.StepTime = p.Step1Time
			s.timer.SetPeriodic(false)
		} else {
			p.StepTime -= 2 * p.StepTime / p.Denom
		}
		s.loadStep()
		p.Denom += 4
	}
}

// Move plans a move to the 24.8 target position at speed (steps/s) with the
// given acceleration and deceleration (steps/s²). A move that cannot be
// blended into the current motion (reversal, too little room to
// decelerate) stops the motor first and runs once it is at rest.
func (s *Sequencer) Move(target int32, speed, accel, decel uint32) {
	s.timer.MaskInterrupt()
	defer s.timer.UnmaskInterrupt()

	p := &s.prof
	speed, accel, decel = max(speed, 1), max(accel, 1), max(decel, 1)
	req := MoveRequest{Target: target, Speed: speed, Accel: accel, Decel: decel}

	prevDelta := p.Delta
	moveSteps := target - p.Position
	scale := s.stepMode.Scale()
	p.Delta = s.stepMode.Delta()
	switch s.stepMode {
	case StepHalf:
		moveSteps >>= 7
	case StepMicro:
		moveSteps >>= 5
	default:
		moveSteps >>= 8
	}
	speed, accel, decel = speed*scale, accel*scale, decel*scale
	if moveSteps < 0 {
		p.Delta = -p.Delta
		moveSteps = -moveSteps
	}

	a := rampSteps(speed, accel)
	if a == 0 {
		a = 1
	}
	d := rampSteps(speed, decel)
	cur := p.Position

	if p.Phase == PhaseStop {
		if moveSteps == 0 {
			return
		}
		if a+d >= moveSteps {
			// triangular profile, split the move in proportion
			ad := a + d
			a = (moveSteps*a + ad/2) / ad
			d = moveSteps - a
			p.PosRun = cur - p.Delta
		} else {
			p.PosRun = cur + a*p.Delta
		}
		p.PosAccel = cur + p.Delta
		p.PosStop = cur + moveSteps*p.Delta
		p.PosDecel = p.PosStop - d*p.Delta
		if p.PosDecel == p.PosAccel {
			p.PosDecel = cur - p.Delta
		}
		p.AccelDenom = 5
		p.DecelDenom = uint32(4*d - 1)
		p.MinStepTime = minStepTime(speed)

		step0 := firstStepTime(accel)
		p.Step1Time = MulDiv(step0, 4056, 10000)
		p.StepTime = p.Step1Time

		s.timer.SetPeriodic(false)
		s.timer.Load(step0 >> 8)
		s.timer.Enable()
		s.setPhase(PhaseAccel)
		s.stopping = false
	} else {
		if d > moveSteps || prevDelta*p.Delta < 0 || moveSteps == 0 {
			s.deferred = req
			s.hasDeferred = true
			p.Delta = prevDelta
			core.RecordTiming(core.EvtDeferred, 0, 0, target, cur)
			s.stop()
			return
		}

		oldSpeed := stepRate(p.StepTime)
		oldA := rampSteps(oldSpeed, accel)
		oldD := rampSteps(oldSpeed, decel)

		switch {
		case speed > oldSpeed:
			a -= oldA
			if a == 0 {
				a = 1
			}
			p.AccelDenom = uint32(4*oldA + 1)
			p.Step1Time = p.StepTime
			p.PosAccel = cur + p.Delta
			p.PosStop = cur + moveSteps*p.Delta
			p.PosDecel = p.PosStop - d*p.Delta
			if a+d > moveSteps {
				p.PosRun = cur - p.Delta
			} else {
				p.PosRun = cur + a*p.Delta
			}
			p.DecelDenom = uint32(4*d - 1)
			p.MinStepTime = minStepTime(speed)
			s.setPhase(PhaseAccel)

		case speed < oldSpeed:
			p.Denom = uint32(4*oldD - 1)
			oldD -= d
			if oldD == 0 {
				oldD = 1
			}
			p.PosAccel = cur - p.Delta
			p.PosRun = cur + oldD*p.Delta
			p.PosStop = cur + moveSteps*p.Delta
			p.PosDecel = p.PosStop - d*p.Delta
			p.DecelDenom = uint32(4*d - 1)
			p.MinStepTime = minStepTime(speed)
			s.setPhase(PhaseDecel)

		default:
			p.PosAccel = cur - p.Delta
			p.PosRun = cur + p.Delta
			p.PosStop = cur + moveSteps*p.Delta
			p.PosDecel = p.PosStop - d*p.Delta
			p.DecelDenom = uint32(4*d - 1)
			p.MinStepTime = minStepTime(speed)
		}
		s.stopping = false
	}

	core.RecordTiming(core.EvtMove, 0, 0, target, moveSteps)
	s.settingIdx = settingDrive
	s.lastDecel = decel
}

// Stop decelerates the motor to rest at the last deceleration rate. The
// stop point is rounded to a whole step.
func (s *Sequencer) Stop() {
	s.timer.MaskInterrupt()
	defer s.timer.UnmaskInterrupt()
	s.stop()
}

func (s *Sequencer) stop() {
	p := &s.prof
	if p.Phase == PhaseStop || s.stopping {
		return
	}
	s.stopping = true

	d := rampSteps(stepRate(p.StepTime), max(s.lastDecel, 1))
	if d == 0 {
		d = 1
	}
	p.DecelDenom = uint32(4*d - 1)
	p.PosStop = p.Position + (d+1)*p.Delta
	switch s.stepMode {
	case StepHalf:
		p.PosStop += p.Delta
		p.PosStop &^= 0xff
	case StepMicro:
		p.PosStop += 8 * p.Delta
		p.PosStop &^= 0xff
	}
	p.PosDecel = p.PosStop - d*p.Delta
	p.PosRun = p.Position - p.Delta
	core.RecordTiming(core.EvtStop, 0, 0, p.PosStop, d)
}

// Shutdown turns both windings off and stops stepping immediately. Any
// deferred move is dropped.
func (s *Sequencer) Shutdown() {
	s.timer.Disable()
	s.drv.OpenPwmFast(core.WindingA, 0)
	s.drv.OpenPwmFast(core.WindingB, 0)
	// both windings are off, rewrite them on the next step
	s.prevLevel = [core.NumWindings]int32{math.MaxInt32, math.MaxInt32}
	s.setPhase(PhaseStop)
	s.stopping = false
	s.hasDeferred = false
	s.prof.StepTime = 0
	core.RecordTiming(core.EvtShutdown, 0, 0, s.prof.Position, 0)
}

// ControlMode switches the current control method. Ignored while the motor
// is moving or when the mode is unchanged.
func (s *Sequencer) ControlMode(m ControlMode) {
	if m == s.controlMode || s.prof.Phase != PhaseStop {
		return
	}
	s.controlMode = m
	s.applyControlMode()
}

func (s *Sequencer) applyControlMode() {
	switch s.controlMode {
	case ControlOpenPWM:
		s.drv.OpenPWMMode(core.PeriodFromFrequency(s.pwmFreq))
		s.pwmSetting[settingDrive] = s.pwmCounts(s.driveI)
		s.pwmSetting[settingHold] = s.pwmCounts(s.holdI)
	case ControlClosedPWM:
		s.drv.ClosedPWMMode(core.PeriodFromFrequency(s.pwmFreq))
	default:
		s.drv.ChopMode()
	}
	// mode setup turns every output off, rewrite both windings on the next step
	s.prevLevel = [core.NumWindings]int32{math.MaxInt32, math.MaxInt32}
}

// PWMFrequency sets the PWM frequency of the PWM control modes. It takes
// effect immediately when a PWM mode is active; ignored while moving.
func (s *Sequencer) PWMFrequency(hz uint32) {
	if s.prof.Phase != PhaseStop || hz == 0 {
		return
	}
	s.pwmFreq = hz
	if s.controlMode != ControlChop {
		s.applyControlMode()
	}
}

// StepMode selects full, half, micro or wave stepping. Ignored while
// moving.
func (s *Sequencer) StepMode(m StepMode) {
	if s.prof.Phase != PhaseStop {
		return
	}
	s.stepMode = m
}

func (s *Sequencer) DecayMode(m DecayMode) {
	s.decayMode = m
}

// Current sets the drive and hold currents in mA. max is the current
// (mA) that corresponds to 100% PWM duty in open loop PWM mode.
func (s *Sequencer) Current(drive, hold, maxCurrent uint32) {
	if maxCurrent == 0 {
		maxCurrent = DefaultMaxCurrent
	}
	s.driveI, s.holdI, s.maxI = drive, hold, maxCurrent

	s.chopSetting[settingDrive] = int32(MilliampsToCounts(drive))
	s.chopSetting[settingHold] = int32(MilliampsToCounts(hold))
	s.pwmSetting[settingDrive] = s.pwmCounts(drive)
	s.pwmSetting[settingHold] = s.pwmCounts(hold)
}

func (s *Sequencer) pwmCounts(mA uint32) int32 {
	return int32(uint64(s.drv.Period()) * uint64(mA) / uint64(s.maxI))
}

// MilliampsToCounts converts a winding current to ADC counts
func MilliampsToCounts(mA uint32) uint32 {
	return mA * 11253 / 30000
}

// CountsToMilliamps converts ADC counts to a winding current
func CountsToMilliamps(counts uint32) uint32 {
	return counts * 30000 / 11253
}

// Position returns the 24.8 position
func (s *Sequencer) Position() int32 { return s.prof.Position }

// Status returns the profile phase
func (s *Sequencer) Status() Phase { return s.prof.Phase }

// StepTime returns the 24.8 time of the current step in clock counts
func (s *Sequencer) StepTime() uint32 { return s.prof.StepTime }

// Speed returns the current step rate in steps/s of the active step mode
func (s *Sequencer) Speed() uint32 { return stepRate(s.prof.StepTime) }

// Profile returns a copy of the motion profile
func (s *Sequencer) Profile() Profile { return s.prof }

// Deferred returns the move waiting for the motor to come to rest
func (s *Sequencer) Deferred() (MoveRequest, bool) {
	return s.deferred, s.hasDeferred
}

func (s *Sequencer) Modes() Modes {
	return Modes{
		Step:    s.stepMode,
		Decay:   s.decayMode,
		Control: s.controlMode,
		PWMFreq: s.pwmFreq,
	}
}

// ResetPosition redefines the current position, truncated to a whole
// step. Ignored while moving.
func (s *Sequencer) ResetPosition(pos int32) {
	if s.prof.Phase != PhaseStop {
		return
	}
	s.prof.Position = pos &^ 0xff
}
