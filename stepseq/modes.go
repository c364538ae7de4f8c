package stepseq

// Phase is the motion profile state; values match the status wire format
type Phase uint8

const (
	PhaseStop Phase = iota
	PhaseRun
	PhaseAccel
	PhaseDecel
)

func (p Phase) String() string {
	switch p {
	case PhaseStop:
		return "stop"
	case PhaseRun:
		return "run"
	case PhaseAccel:
		return "accel"
	case PhaseDecel:
		return "decel"
	}
	return "unknown"
}

type StepMode uint8

const (
	StepFull StepMode = iota
	StepHalf
	StepMicro
	StepWave
)

func (m StepMode) String() string {
	switch m {
	case StepFull:
		return "full"
	case StepHalf:
		return "half"
	case StepMicro:
		return "micro"
	case StepWave:
		return "wave"
	}
	return "unknown"
}

// Delta returns the 24.8 position increment of one step in this mode
func (m StepMode) Delta() int32 {
	switch m {
	case StepHalf:
		return 0x80
	case StepMicro:
		return 0x20
	}
	return 0x100
}

// Scale returns the number of steps per whole step in this mode
func (m StepMode) Scale() uint32 {
	switch m {
	case StepHalf:
		return 2
	case StepMicro:
		return 8
	}
	return 1
}

type DecayMode uint8

const (
	DecayFast DecayMode = iota
	DecaySlow
)

func (m DecayMode) String() string {
	if m == DecaySlow {
		return "slow"
	}
	return "fast"
}

type ControlMode uint8

const (
	ControlOpenPWM ControlMode = iota
	ControlChop
	ControlClosedPWM
)

func (m ControlMode) String() string {
	switch m {
	case ControlOpenPWM:
		return "open-pwm"
	case ControlChop:
		return "chop"
	case ControlClosedPWM:
		return "closed-pwm"
	}
	return "unknown"
}

// Modes is a snapshot of the sequencer's operating modes
type Modes struct {
	Step    StepMode
	Decay   DecayMode
	Control ControlMode
	PWMFreq uint32
}
