package core

import "testing"

func TestClockConversions(t *testing.T) {
	tests := []struct {
		us    uint32
		ticks uint64
	}{
		{0, 0},
		{1, 50},
		{100, 5000},
		{1000000, SystemClock},
	}
	for _, tt := range tests {
		if got := TicksFromUS(tt.us); got != tt.ticks {
			t.Errorf("TicksFromUS(%d) = %d, want %d", tt.us, got, tt.ticks)
		}
		if got := TicksToUS(tt.ticks); got != uint64(tt.us) {
			t.Errorf("TicksToUS(%d) = %d, want %d", tt.ticks, got, tt.us)
		}
	}

	// a 20 kHz PWM period is 50 µs
	if got := TicksToUS(uint64(PeriodFromFrequency(20000))); got != 50 {
		t.Errorf("20 kHz period = %d µs, want 50", got)
	}
	if got := TicksToUS(49); got != 0 {
		t.Errorf("TicksToUS(49) = %d, want 0", got)
	}
	if got := PeriodFromFrequency(0); got != 0 {
		t.Errorf("PeriodFromFrequency(0) = %d, want 0", got)
	}
}

func TestDebugPrintlnGated(t *testing.T) {
	var lines []string
	SetDebugWriter(func(s string) { lines = append(lines, s) })
	defer SetDebugWriter(func(string) {})
	defer SetDebugEnabled(false)

	SetDebugEnabled(false)
	DebugPrintln("hidden")
	if len(lines) != 0 {
		t.Errorf("Disabled debug wrote %v", lines)
	}

	SetDebugEnabled(true)
	DebugPrintln("shown")
	if len(lines) != 1 || lines[0] != "shown" {
		t.Errorf("Enabled debug wrote %v, want [shown]", lines)
	}
}
