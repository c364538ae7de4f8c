package stepseq

import "rdkstepper/core"

// Step timing is kept in 24.8 fixed point system clock counts.

// sqrt2Clock is core.SystemClock * sqrt(2), truncated
const sqrt2Clock = 70710678

// MulDiv returns v*num/den without overflowing 32 bits, for num and den
// below 65536
func MulDiv(v, num, den uint32) uint32 {
	hi := (v / 65536) * num
	return (hi/den)*65536 + ((hi%den)*65536)/den + ((v%65536)*num)/den
}

// LongDiv256 returns num*256/den without overflowing 32 bits
func LongDiv256(num, den uint32) uint32 {
	return (num/den)*256 + ((num%den)*256)/den
}

// isqrt returns the integer square root of v, rounded down
func isqrt(v uint32) uint32 {
	var root uint32
	bit := uint32(1) << 30
	for bit > v {
		bit >>= 2
	}
	for bit != 0 {
		if v >= root+bit {
			v -= root + bit
			root = root>>1 + bit
		} else {
			root >>= 1
		}
		bit >>= 2
	}
	return root
}

// firstStepTime returns the 24.8 time of the very first step when
// accelerating from rest at accel steps/s²
func firstStepTime(accel uint32) uint32 {
	return LongDiv256(sqrt2Clock, isqrt(accel))
}

// rampSteps returns the number of steps needed to reach speed (steps/s)
// from rest at rate (steps/s²)
func rampSteps(speed, rate uint32) int32 {
	s := uint64(speed)
	return int32((s*s + uint64(rate)) / (2 * uint64(rate)))
}

// minStepTime returns the 24.8 step time of the run phase at speed
func minStepTime(speed uint32) uint32 {
	return LongDiv256(core.SystemClock, speed)
}

// timerCounts converts a 24.8 step time into timer counts, rounded
func timerCounts(stepTime uint32) uint32 {
	return (stepTime + 128) >> 8
}

// stepRate returns the step rate (steps/s) that a 24.8 step time
// corresponds to, or 0 when stopped
func stepRate(stepTime uint32) uint32 {
	counts := timerCounts(stepTime)
	if stepTime == 0 || counts == 0 {
		return 0
	}
	return core.SystemClock / counts
}
