package core

// StepTimer is the hardware timer that paces motor steps
type StepTimer interface {
	// SetPeriodic selects periodic (true) or one shot (false) operation
	SetPeriodic(periodic bool)

	// Load sets the timeout in system clock counts
	Load(counts uint32)

	// Enable starts counting
	Enable()

	// Disable stops counting
	Disable()

	// MaskInterrupt blocks timeout interrupts. The counter keeps running
	// and an expiry while masked is delivered on UnmaskInterrupt.
	MaskInterrupt()

	// UnmaskInterrupt allows timeout interrupts
	UnmaskInterrupt()
}

// FaultComparator is the analog comparator watching the total bridge
// current. On trip the hardware disables the bridge outputs on its own and
// raises an interrupt.
type FaultComparator interface {
	// SetReference sets the internal reference ladder step
	SetReference(step uint32)

	ClearInterrupt()
	EnableInterrupt()
	DisableInterrupt()
}

// BusMonitor reports supply side measurements for the data stream
type BusMonitor interface {
	// BusMilliVolts returns the bridge supply voltage
	BusMilliVolts() uint32

	// TemperatureCelsius returns the processor temperature
	TemperatureCelsius() int16
}
