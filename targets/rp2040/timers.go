//go:build rp2040

package main

// Step timer and per-winding fixed timers as PIO countdowns. Each state
// machine pulls a count, spins it down at the 50 MHz control clock and
// pulses its pin; the rising edge raises a GPIO interrupt.

import (
	"machine"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"

	"rdkstepper/core"
)

// countdownOverhead is the number of PIO cycles per countdown spent
// outside the delay loop
const countdownOverhead = 6

func buildCountdownProgram() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	return []uint16{
		// .wrap_target
		asm.Pull(false, true).Encode(),        // 0: pull block
		asm.Out(rp2pio.OutDestX, 32).Encode(), // 1: out x, 32
		// delay:
		asm.Jmp(2, rp2pio.JmpXNZeroDec).Encode(), // 2: jmp x--, delay
		// edge:
		asm.Set(rp2pio.SetDestPins, 1).Delay(1).Encode(), // 3: set pins, 1 [1]
		asm.Set(rp2pio.SetDestPins, 0).Encode(),          // 4: set pins, 0
		// .wrap
	}
}

const countdownOrigin = 0

// countdown is one PIO state machine running the countdown program
type countdown struct {
	sm     rp2pio.StateMachine
	pin    machine.Pin
	offset uint8
}

func loadCountdownProgram(pio *rp2pio.PIO) (uint8, error) {
	return pio.AddProgram(buildCountdownProgram(), countdownOrigin)
}

func newCountdown(pio *rp2pio.PIO, smNum uint8, offset uint8, pin machine.Pin, isr func(machine.Pin)) (*countdown, error) {
	c := &countdown{sm: pio.StateMachine(smNum), pin: pin, offset: offset}
	c.sm.TryClaim()

	pin.Configure(machine.PinConfig{Mode: pio.PinMode()})

	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetSetPins(pin, 1)
	cfg.SetOutShift(true, false, 32)
	cfg.SetWrap(offset+uint8(len(buildCountdownProgram()))-1, offset)
	// 125 MHz / 2.5 = core.SystemClock
	cfg.SetClkDivIntFrac(2, 128)

	c.sm.Init(offset, cfg)
	c.sm.SetPindirsConsecutive(pin, 1, true)
	c.sm.SetPinsConsecutive(pin, 1, false)
	c.sm.SetEnabled(true)

	if err := pin.SetInterrupt(machine.PinRising, isr); err != nil {
		return nil, err
	}
	return c, nil
}

// start begins a countdown of counts control clock cycles
func (c *countdown) start(counts uint32) {
	if counts > countdownOverhead {
		counts -= countdownOverhead
	} else {
		counts = 0
	}
	if !c.sm.IsTxFIFOFull() {
		c.sm.TxPut(counts)
	}
}

// stop abandons the running countdown
func (c *countdown) stop() {
	c.sm.SetEnabled(false)
	c.sm.ClearFIFOs()
	c.sm.Restart()
	c.sm.Exec(rp2pio.AssemblerV0{}.Jmp(c.offset, rp2pio.JmpAlways).Encode())
	c.sm.SetPinsConsecutive(c.pin, 1, false)
	c.sm.SetEnabled(true)
}

// pioStepTimer implements core.StepTimer
type pioStepTimer struct {
	cd  *countdown
	isr func()

	load     uint32
	periodic bool
	enabled  bool
	masked   bool
	pending  bool

	// bumped by every start and stop so expire can tell whether the
	// handler rescheduled
	gen uint32
}

func (t *pioStepTimer) SetPeriodic(periodic bool) { t.periodic = periodic }

func (t *pioStepTimer) Load(counts uint32) { t.load = counts }

func (t *pioStepTimer) Enable() {
	if t.enabled {
		return
	}
	t.enabled = true
	t.gen++
	t.cd.start(max(t.load, 1))
}

func (t *pioStepTimer) Disable() {
	t.enabled = false
	t.pending = false
	t.gen++
	t.cd.stop()
}

func (t *pioStepTimer) MaskInterrupt() { t.masked = true }

func (t *pioStepTimer) UnmaskInterrupt() {
	t.masked = false
	if t.pending {
		t.pending = false
		t.isr()
	}
}

func (t *pioStepTimer) expire(machine.Pin) {
	if !t.enabled {
		return
	}
	if !t.periodic {
		t.enabled = false
	}
	gen := t.gen
	if t.masked {
		t.pending = true
	} else {
		t.isr()
	}
	if t.periodic && t.enabled && gen == t.gen {
		t.cd.start(max(t.load, 1))
	}
}

// fixedTimers are the per-winding microsecond timers of the power stage
type fixedTimers struct {
	cd      [core.NumWindings]*countdown
	load    [core.NumWindings]uint32
	running [core.NumWindings]bool
	isr     func(core.Winding)
}

func (f *fixedTimers) expire(w core.Winding) {
	if !f.running[w] {
		return
	}
	f.running[w] = false
	if f.isr != nil {
		f.isr(w)
	}
}
