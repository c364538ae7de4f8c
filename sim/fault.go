package sim

import "math"

// ReferenceStepMilliAmps is the bridge current per comparator reference
// step
const ReferenceStepMilliAmps = 1375

// Comparator implements core.FaultComparator. It watches the sum of both
// winding currents, cuts the bridge outputs on a rising crossing of the
// reference and raises its interrupt.
type Comparator struct {
	stage *PowerStage
	isr   func()

	ref     uint32
	enabled bool
	flag    bool
	above   bool
	trips   int
}

// NewComparator attaches a comparator to the model step of stage
func NewComparator(stage *PowerStage) *Comparator {
	c := &Comparator{stage: stage}
	stage.observe = c.check
	return c
}

// SetHandler connects the comparator interrupt
func (c *Comparator) SetHandler(isr func()) {
	c.isr = isr
}

func (c *Comparator) SetReference(step uint32) { c.ref = step }
func (c *Comparator) EnableInterrupt()         { c.enabled = true }
func (c *Comparator) DisableInterrupt()        { c.enabled = false }

// ClearInterrupt also releases the bridge outputs
func (c *Comparator) ClearInterrupt() {
	c.flag = false
	c.stage.tripped = false
}

// Trips returns the number of times the comparator cut the outputs
func (c *Comparator) Trips() int { return c.trips }

// Pending reports whether the interrupt flag is set
func (c *Comparator) Pending() bool { return c.flag }

// check runs after every model step. Tripping needs the interrupt
// enabled, which is how the drive arms fault detection.
func (c *Comparator) check() {
	if !c.enabled || c.ref == 0 {
		c.above = false
		return
	}
	var total float64
	for i := range c.stage.windings {
		total += math.Abs(c.stage.windings[i].current)
	}
	above := total*1000 >= float64(c.ref*ReferenceStepMilliAmps)
	rising := above && !c.above
	c.above = above
	if !rising {
		return
	}

	c.trips++
	c.stage.trip()
	c.flag = true
	if c.isr != nil {
		c.isr()
	}
}
