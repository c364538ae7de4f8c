//go:build rp2040

package main

import (
	"runtime/volatile"
	"unsafe"
)

// RP2040 timer peripheral, a 64-bit microsecond counter
const (
	timerBase     = 0x40054000
	timerTIMERAWH = timerBase + 0x24 // raw high word
	timerTIMERAWL = timerBase + 0x28 // raw low word
)

var (
	timerRAWH = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWH)))
	timerRAWL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWL)))
)

// uptimeMicros reads the full 64-bit timer
func uptimeMicros() uint64 {
	for {
		high1 := timerRAWH.Get()
		low := timerRAWL.Get()
		high2 := timerRAWH.Get()
		if high1 == high2 {
			return uint64(high1)<<32 | uint64(low)
		}
	}
}

// usageMeter measures the share of time the polling loop spends working
type usageMeter struct {
	busy, start uint64
}

func (m *usageMeter) add(us uint64) { m.busy += us }

// percent returns the usage since the last call once per second, ok is
// false in between
func (m *usageMeter) percent(now uint64) (pct uint8, ok bool) {
	if m.start == 0 {
		m.start = now
		return 0, false
	}
	elapsed := now - m.start
	if elapsed < 1000000 {
		return 0, false
	}
	pct = uint8(min(100, m.busy*100/elapsed))
	m.busy, m.start = 0, now
	return pct, true
}
