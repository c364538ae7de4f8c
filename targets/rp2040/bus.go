//go:build rp2040

package main

import (
	"machine"

	"tinygo.org/x/drivers/ina260"
)

// INA260 on I2C1
const (
	pinBusSDA = machine.GPIO6
	pinBusSCL = machine.GPIO7
)

// busMonitor implements core.BusMonitor. The I2C transfer is too slow for
// interrupt context, so sample runs from the UI loop and the getters
// return the cached values.
type busMonitor struct {
	dev     ina260.Device
	present bool

	milliVolts uint32
	celsius    int16
}

func newBusMonitor(fallbackMilliVolts uint32) *busMonitor {
	b := &busMonitor{milliVolts: fallbackMilliVolts}

	i2c := machine.I2C1
	err := i2c.Configure(machine.I2CConfig{
		Frequency: 400 * machine.KHz,
		SDA:       pinBusSDA,
		SCL:       pinBusSCL,
	})
	if err != nil {
		return b
	}
	b.dev = ina260.New(i2c)
	if !b.dev.Connected() {
		return b
	}
	b.dev.Configure(ina260.Config{
		AverageMode:     ina260.AVGMODE_16,
		VoltConvTime:    ina260.CONVTIME_1100USEC,
		CurrentConvTime: ina260.CONVTIME_1100USEC,
		Mode:            ina260.MODE_CONTINUOUS | ina260.MODE_VOLTAGE | ina260.MODE_CURRENT,
	})
	b.present = true
	return b
}

func (b *busMonitor) sample() {
	if b.present {
		if uV := b.dev.Voltage(); uV > 0 {
			b.milliVolts = uint32(uV / 1000)
		}
	}
	b.celsius = dieTemperature()
}

func (b *busMonitor) BusMilliVolts() uint32 { return b.milliVolts }

func (b *busMonitor) TemperatureCelsius() int16 { return b.celsius }
