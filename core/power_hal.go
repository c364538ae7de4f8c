package core

// Winding identifies one of the two motor phases
type Winding uint8

const (
	WindingA Winding = 0
	WindingB Winding = 1

	NumWindings = 2
)

func (w Winding) String() string {
	if w == WindingA {
		return "A"
	}
	return "B"
}

// Leg identifies an output pin of one winding's H-bridge
type Leg uint8

const (
	LegPos    Leg = 0 // high side of the positive half bridge
	LegNeg    Leg = 1 // high side of the negative half bridge
	LegEnable Leg = 2 // bridge enable (low side switching)
)

// Other returns the opposite bridge leg. LegEnable has no opposite.
func (l Leg) Other() Leg {
	switch l {
	case LegPos:
		return LegNeg
	case LegNeg:
		return LegPos
	}
	return LegEnable
}

// PinDrive is the state an output pin is forced to
type PinDrive uint8

const (
	PinOff PinDrive = 0 // static low
	PinOn  PinDrive = 1 // static high
	PinPWM PinDrive = 2 // driven by the generator comparator
)

// Generator identifies a PWM generator of the power stage.
// GenBridgeA/GenBridgeB drive both legs of their winding from comparator A.
// GenEnable drives the enable pins, comparator A for winding A and B for B.
type Generator uint8

const (
	GenBridgeA Generator = 0
	GenBridgeB Generator = 1
	GenEnable  Generator = 2

	NumGenerators = 3
)

// BridgeGenerator returns the generator that switches the legs of w
func BridgeGenerator(w Winding) Generator {
	if w == WindingA {
		return GenBridgeA
	}
	return GenBridgeB
}

// Channel selects one of the two comparators of a generator
type Channel uint8

const (
	ChanA Channel = 0
	ChanB Channel = 1
)

// EnableChannel returns the enable generator comparator used by w
func EnableChannel(w Winding) Channel {
	if w == WindingA {
		return ChanA
	}
	return ChanB
}

// ADCTrigger selects what starts a current sample conversion
type ADCTrigger uint8

const (
	TriggerProcessor ADCTrigger = 0 // software trigger only
	TriggerBridgeA   ADCTrigger = 1 // GenBridgeA comparator B falling edge
	TriggerBridgeB   ADCTrigger = 2 // GenBridgeB comparator B falling edge
	TriggerEnable    ADCTrigger = 3 // GenEnable counter load
)

// PowerStage is the hardware abstraction of the dual H-bridge: the leg
// outputs, the PWM generators, the winding current ADC and the per-winding
// fixed interval timers. All methods are called from interrupt context and
// must not block.
type PowerStage interface {
	// SetOutput forces a leg of winding w to the given drive state
	SetOutput(w Winding, leg Leg, d PinDrive)

	// SetPeriod sets the period of a generator in system clock counts
	SetPeriod(gen Generator, period uint32)

	// SetCompare sets one comparator of a generator. The output is high
	// while the up/down counter is above the compare value.
	SetCompare(gen Generator, ch Channel, value uint32)

	// SyncGenerator restarts the generator counter at the given phase
	SyncGenerator(gen Generator, phase uint32)

	// SetADCTrigger selects the conversion start source for winding w
	SetADCTrigger(w Winding, src ADCTrigger)

	// EnableADC arms the current sample sequencer of winding w
	EnableADC(w Winding)

	// DisableADC disarms the current sample sequencer of winding w
	DisableADC(w Winding)

	// TriggerADC starts a conversion from software
	TriggerADC(w Winding)

	// ReadADC drains the sequencer FIFO and returns the last sample and
	// the number of samples that were pending
	ReadADC(w Winding) (sample uint16, count int)

	// LoadTimer sets the fixed interval timer of winding w in microseconds
	LoadTimer(w Winding, us uint32)

	// StartTimer starts the fixed interval timer (one shot)
	StartTimer(w Winding)

	// StopTimer stops the fixed interval timer
	StopTimer(w Winding)
}
