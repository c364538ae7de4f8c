//go:build rp2040

package main

import (
	"machine"
	"time"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"

	"rdkstepper/core"
	"rdkstepper/params"
	"rdkstepper/stepctrl"
	"rdkstepper/stepper"
	"rdkstepper/ui"
)

// PIO countdown edge pins
const (
	pinStepEdge   = machine.GPIO13
	pinFixedEdgeA = machine.GPIO14
	pinFixedEdgeB = machine.GPIO15
)

// defaultBusMilliVolts is reported when no INA260 answers
const defaultBusMilliVolts = 24000

func main() {
	// a watchdog left running by the previous image would reset us
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0}); err != nil {
		return
	}

	usb := initUSB()
	core.SetDebugWriter(func(s string) { println(s) })
	core.SetDebugEnabled(true)
	core.InitAsyncDebug()

	sense := newCurrentSense()
	timers := &fixedTimers{}
	stage := newPowerStage(sense, timers)
	fault := newGPIOComparator(stage)
	bus := newBusMonitor(defaultBusMilliVolts)
	bus.sample()

	stepTimer := &pioStepTimer{}
	if err := initCountdowns(stepTimer, timers); err != nil {
		core.DebugPrintln("pio: " + err.Error())
		return
	}

	drv := stepctrl.NewDriver(stage)
	st := stepper.New(drv, stepTimer, fault)
	sense.isr = drv.ADCISR
	timers.isr = drv.TimerISR
	stepTimer.isr = st.StepISR
	fault.isr = st.FaultISR

	// parameters live in RAM until a flash region driver exists
	store, err := params.NewStore(params.NewMemRegion(4 * params.BlockSize))
	if err != nil {
		core.DebugPrintln("params: " + err.Error())
	}

	link := ui.NewLink(withInterruptsOff)
	var u *ui.UI
	withInterruptsOff(func() {
		u = ui.New(st, store, bus, bus.BusMilliVolts(), link.Output())
	})
	link.Attach(u)

	go serveUSB(link, u, usb)
	go uiLoop(link, u, bus, st)

	var meter usageMeter
	for {
		start := uptimeMicros()
		sense.poll(start)
		end := uptimeMicros()
		meter.add(end - start)
		if pct, ok := meter.percent(end); ok {
			u.SetProcessorUsage(pct)
		}
		time.Sleep(10 * time.Microsecond)
	}
}

func initCountdowns(stepTimer *pioStepTimer, timers *fixedTimers) error {
	pio := rp2pio.PIO0
	offset, err := loadCountdownProgram(pio)
	if err != nil {
		return err
	}
	if stepTimer.cd, err = newCountdown(pio, 0, offset, pinStepEdge, stepTimer.expire); err != nil {
		return err
	}
	timers.cd[core.WindingA], err = newCountdown(pio, 1, offset, pinFixedEdgeA, func(machine.Pin) {
		timers.expire(core.WindingA)
	})
	if err != nil {
		return err
	}
	timers.cd[core.WindingB], err = newCountdown(pio, 2, offset, pinFixedEdgeB, func(machine.Pin) {
		timers.expire(core.WindingB)
	})
	return err
}

func withInterruptsOff(f func()) {
	state := core.DisableInterrupts()
	f()
	core.RestoreInterrupts(state)
}

func serveUSB(link *ui.Link, u *ui.UI, usb *usbStream) {
	for {
		if err := link.Serve(u, usb); err != nil {
			core.DebugPrintln("usb: " + err.Error())
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// uiLoop samples the bus and runs the UI task at ui.TickRate. A new fault
// dumps the timing ring.
func uiLoop(link *ui.Link, u *ui.UI, bus *busMonitor, st *stepper.Stepper) {
	var faults uint8
	for {
		time.Sleep(time.Second / ui.TickRate)
		bus.sample()
		link.Tick(u)

		var now uint8
		withInterruptsOff(func() { now = st.FaultFlags() })
		if now&^faults != 0 {
			core.DumpTimingRing()
		}
		faults = now
	}
}
