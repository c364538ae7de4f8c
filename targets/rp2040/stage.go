//go:build rp2040

package main

import (
	"machine"
	"runtime/volatile"
	"unsafe"

	"rdkstepper/core"
)

// Board pinout
const (
	pinBridgeAPos = machine.GPIO0 // PWM0 A
	pinBridgeANeg = machine.GPIO1 // PWM0 B
	pinBridgeBPos = machine.GPIO2 // PWM1 A
	pinBridgeBNeg = machine.GPIO3 // PWM1 B
	pinEnableA    = machine.GPIO4 // PWM2 A
	pinEnableB    = machine.GPIO5 // PWM2 B
)

// pwmSlice overlays the registers of one RP2040 PWM slice
type pwmSlice struct {
	CSR volatile.Register32
	DIV volatile.Register32
	CTR volatile.Register32
	CC  volatile.Register32
	TOP volatile.Register32
}

const (
	pwmBase   = 0x40050000
	pwmStride = 0x14

	csrEN        = 1 << 0
	csrPHCorrect = 1 << 1
	csrAInv      = 1 << 2
	csrBInv      = 1 << 3
	divInt1      = 1 << 4

	// never reached by the counter: output held low
	ccOff = 0xffff
)

func slice(n uintptr) *pwmSlice {
	return (*pwmSlice)(unsafe.Pointer(uintptr(pwmBase + n*pwmStride)))
}

// toPWM converts control clock counts to 125 MHz PWM counts
func toPWM(counts uint32) uint32 {
	return counts * 5 / 2
}

// generator is a phase correct PWM slice. A channel output is high while
// the counter is at or above its compare value.
type generator struct {
	hw      *pwmSlice
	compare [2]uint32 // PWM counts
	top     uint32
	period  uint32 // control clock counts
}

// powerStage implements core.PowerStage on the RP2040 PWM slices, the ADC
// and the PIO fixed timers
type powerStage struct {
	gens  [core.NumGenerators]generator
	drive [core.NumWindings][3]core.PinDrive

	// latched off by the fault comparator until cleared
	tripped bool

	sense  *currentSense
	timers *fixedTimers
}

func newPowerStage(sense *currentSense, timers *fixedTimers) *powerStage {
	ps := &powerStage{sense: sense, timers: timers}
	for i := range ps.gens {
		g := &ps.gens[i]
		g.hw = slice(uintptr(i))
		g.hw.CSR.Set(0)
		g.hw.DIV.Set(divInt1)
		g.hw.CC.Set(ccOff | ccOff<<16)
		g.hw.CSR.Set(csrPHCorrect | csrAInv | csrBInv | csrEN)
	}
	for _, pin := range []machine.Pin{pinBridgeAPos, pinBridgeANeg, pinBridgeBPos, pinBridgeBNeg, pinEnableA, pinEnableB} {
		pin.Configure(machine.PinConfig{Mode: machine.PinPWM})
	}
	return ps
}

// legSlot maps a winding leg to its generator and channel
func legSlot(w core.Winding, leg core.Leg) (core.Generator, core.Channel) {
	switch leg {
	case core.LegPos:
		return core.BridgeGenerator(w), core.ChanA
	case core.LegNeg:
		return core.BridgeGenerator(w), core.ChanB
	}
	return core.GenEnable, core.EnableChannel(w)
}

// legCompare is the compare register value realizing the drive of a leg
func (ps *powerStage) legCompare(w core.Winding, leg core.Leg) uint32 {
	if ps.tripped {
		return ccOff
	}
	switch ps.drive[w][leg] {
	case core.PinOn:
		return 0
	case core.PinPWM:
		gen, ch := legSlot(w, leg)
		if leg != core.LegEnable {
			// both bridge legs follow comparator A
			ch = core.ChanA
		}
		return ps.gens[gen].compare[ch]
	}
	return ccOff
}

// refresh rewrites the compare register of a generator from the leg states
func (ps *powerStage) refresh(gen core.Generator) {
	var cc [2]uint32
	if gen == core.GenEnable {
		cc[core.ChanA] = ps.legCompare(core.WindingA, core.LegEnable)
		cc[core.ChanB] = ps.legCompare(core.WindingB, core.LegEnable)
	} else {
		w := core.WindingA
		if gen == core.GenBridgeB {
			w = core.WindingB
		}
		cc[core.ChanA] = ps.legCompare(w, core.LegPos)
		cc[core.ChanB] = ps.legCompare(w, core.LegNeg)
	}
	ps.gens[gen].hw.CC.Set(min(cc[0], ccOff) | min(cc[1], ccOff)<<16)
}

func (ps *powerStage) SetOutput(w core.Winding, leg core.Leg, d core.PinDrive) {
	ps.drive[w][leg] = d
	gen, _ := legSlot(w, leg)
	ps.refresh(gen)
}

// SetPeriod sets the full up/down period
func (ps *powerStage) SetPeriod(gen core.Generator, period uint32) {
	g := &ps.gens[gen]
	g.period = period
	g.top = min(toPWM(period)/2, ccOff-1)
	g.hw.TOP.Set(g.top)
}

func (ps *powerStage) SetCompare(gen core.Generator, ch core.Channel, value uint32) {
	// high above value: the first count at or above is value+1
	ps.gens[gen].compare[ch] = toPWM(value) + 1
	ps.refresh(gen)
}

func (ps *powerStage) SyncGenerator(gen core.Generator, phase uint32) {
	ps.gens[gen].hw.CTR.Set(min(toPWM(phase), ps.gens[gen].top))
}

// trip forces every output low
func (ps *powerStage) trip() {
	ps.tripped = true
	for gen := range ps.gens {
		ps.gens[gen].hw.CC.Set(ccOff | ccOff<<16)
	}
}

// release lets the leg states drive the outputs again
func (ps *powerStage) release() {
	ps.tripped = false
	for gen := range ps.gens {
		ps.refresh(core.Generator(gen))
	}
}

func (ps *powerStage) SetADCTrigger(w core.Winding, src core.ADCTrigger) {
	ps.sense.trigger[w] = src
	if src != core.TriggerProcessor {
		// sample at the PWM rate of the triggering generator
		gen := core.GenEnable
		switch src {
		case core.TriggerBridgeA:
			gen = core.GenBridgeA
		case core.TriggerBridgeB:
			gen = core.GenBridgeB
		}
		ps.sense.periodUS[w] = max(uint32(core.TicksToUS(uint64(ps.gens[gen].period))), 1)
	}
}

func (ps *powerStage) EnableADC(w core.Winding)  { ps.sense.armed[w] = true }
func (ps *powerStage) DisableADC(w core.Winding) { ps.sense.armed[w] = false }

// TriggerADC requests a conversion from the polling loop. Ignored unless
// the winding is set to the processor trigger.
func (ps *powerStage) TriggerADC(w core.Winding) {
	if ps.sense.armed[w] && ps.sense.trigger[w] == core.TriggerProcessor {
		ps.sense.requested[w] = true
	}
}

func (ps *powerStage) ReadADC(w core.Winding) (uint16, int) {
	return ps.sense.read(w)
}

func (ps *powerStage) LoadTimer(w core.Winding, us uint32) {
	ps.timers.load[w] = us
}

func (ps *powerStage) StartTimer(w core.Winding) {
	ps.timers.running[w] = true
	ps.timers.cd[w].start(uint32(core.TicksFromUS(ps.timers.load[w])))
}

func (ps *powerStage) StopTimer(w core.Winding) {
	ps.timers.running[w] = false
	ps.timers.cd[w].stop()
}
