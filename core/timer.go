package core

// Clock domains shared by the controller and its hardware
const (
	SystemClock    = 50000000 // step timer and PWM counts per second
	FixedTimerFreq = 1000000  // fixed interval timers count microseconds
)

// TicksFromUS converts microseconds to system clock ticks
func TicksFromUS(us uint32) uint64 {
	return uint64(us) * (SystemClock / FixedTimerFreq)
}

// TicksToUS converts system clock ticks to microseconds
func TicksToUS(ticks uint64) uint64 {
	return ticks / (SystemClock / FixedTimerFreq)
}

// PeriodFromFrequency returns the PWM period in system clock counts
func PeriodFromFrequency(hz uint32) uint32 {
	if hz == 0 {
		return 0
	}
	return SystemClock / hz
}
