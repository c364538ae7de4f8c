//go:build rp2040

package main

import (
	"device/rp"
	"machine"

	"rdkstepper/core"
)

// Winding current sense inputs
var senseInputs = [core.NumWindings]machine.Pin{machine.ADC0, machine.ADC1}

// adcMax is the full scale of a current sample
const adcMax = 1023

// currentSense runs the winding current conversions from the polling
// loop. Hardware triggered windings are sampled once per PWM period,
// processor triggered ones when requested.
type currentSense struct {
	adc [core.NumWindings]machine.ADC

	trigger   [core.NumWindings]core.ADCTrigger
	armed     [core.NumWindings]bool
	requested [core.NumWindings]bool
	periodUS  [core.NumWindings]uint32
	due       [core.NumWindings]uint64

	sample  [core.NumWindings]uint16
	pending [core.NumWindings]int

	isr func(core.Winding)
}

func newCurrentSense() *currentSense {
	machine.InitADC()
	cs := &currentSense{}
	for w := range cs.adc {
		cs.adc[w] = machine.ADC{Pin: senseInputs[w]}
		cs.adc[w].Configure(machine.ADCConfig{})
	}
	return cs
}

// poll converts every winding that is due and runs the completion
// handler with interrupts off
func (cs *currentSense) poll(nowUS uint64) {
	for w := core.Winding(0); w < core.NumWindings; w++ {
		state := core.DisableInterrupts()
		due := cs.armed[w] && (cs.requested[w] ||
			cs.trigger[w] != core.TriggerProcessor && nowUS >= cs.due[w])
		core.RestoreInterrupts(state)
		if !due {
			continue
		}

		// 16 bit scaled reading down to the 10 bit sample range
		raw := cs.adc[w].Get() >> 6

		state = core.DisableInterrupts()
		cs.requested[w] = false
		cs.due[w] = nowUS + uint64(cs.periodUS[w])
		cs.sample[w] = min(raw, adcMax)
		cs.pending[w]++
		if cs.armed[w] && cs.isr != nil {
			cs.isr(w)
		}
		core.RestoreInterrupts(state)
	}
}

func (cs *currentSense) read(w core.Winding) (uint16, int) {
	n := cs.pending[w]
	cs.pending[w] = 0
	return cs.sample[w], n
}

// rawInternalTemp returns the 12-bit reading of the internal temperature
// sensor
func rawInternalTemp() uint16 {
	rp.ADC.CS.SetBits(rp.ADC_CS_TS_EN)

	const tempChannel = 4
	rp.ADC.CS.ReplaceBits(
		uint32(tempChannel)<<rp.ADC_CS_AINSEL_Pos,
		rp.ADC_CS_AINSEL_Msk,
		0,
	)
	rp.ADC.CS.SetBits(rp.ADC_CS_START_ONCE)
	for !rp.ADC.CS.HasBits(rp.ADC_CS_READY) {
	}
	return uint16(rp.ADC.RESULT.Get())
}

// dieTemperature converts the sensor reading: 27 °C at 0.706 V, falling
// 1.721 mV per degree
func dieTemperature() int16 {
	mV := int32(rawInternalTemp()) * 3300 / 4096
	return int16(27 - (mV-706)*1000/1721)
}
