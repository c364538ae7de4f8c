//go:build rp2040

package main

import "machine"

const (
	pinFaultIn  = machine.GPIO10 // external comparator output, high on overcurrent
	pinFaultRef = machine.GPIO12 // PWM6 A, RC filtered into the comparator reference
)

// refSteps is the number of reference ladder steps across the 3.3 V
// reference output
const refSteps = 16

// gpioComparator implements core.FaultComparator with an external
// comparator on a GPIO edge. The PWM reference stands in for the internal
// ladder; the bridge shutdown is done by the interrupt handler.
type gpioComparator struct {
	stage *powerStage
	ref   *pwmSlice
	isr   func()

	enabled bool
}

func newGPIOComparator(stage *powerStage) *gpioComparator {
	c := &gpioComparator{stage: stage, ref: slice(6)}
	c.ref.CSR.Set(0)
	c.ref.DIV.Set(divInt1)
	c.ref.TOP.Set(refSteps*64 - 1)
	c.ref.CC.Set(0)
	c.ref.CSR.Set(csrEN)
	pinFaultRef.Configure(machine.PinConfig{Mode: machine.PinPWM})

	pinFaultIn.Configure(machine.PinConfig{Mode: machine.PinInputPulldown})
	pinFaultIn.SetInterrupt(machine.PinRising, c.trip)
	return c
}

func (c *gpioComparator) SetReference(step uint32) {
	c.ref.CC.Set(min(step, refSteps) * 64)
}

// ClearInterrupt releases the output latch
func (c *gpioComparator) ClearInterrupt() {
	if c.stage.tripped && !pinFaultIn.Get() {
		c.stage.release()
	}
}

func (c *gpioComparator) EnableInterrupt()  { c.enabled = true }
func (c *gpioComparator) DisableInterrupt() { c.enabled = false }

func (c *gpioComparator) trip(machine.Pin) {
	if !c.enabled {
		return
	}
	c.stage.trip()
	if c.isr != nil {
		c.isr()
	}
}
