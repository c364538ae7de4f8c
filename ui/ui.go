// Package ui is the drive side of the serial user interface: the
// parameter table, the real-time data items and the command set served
// over protocol.Transport.
package ui

import (
	"errors"
	"sync"

	"rdkstepper/core"
	"rdkstepper/params"
	"rdkstepper/protocol"
	"rdkstepper/stepper"
	"rdkstepper/stepseq"
)

const (
	// TickRate is the rate Tick is expected to be called at, in Hz
	TickRate = 100

	// dataInterval is the number of ticks between real-time data frames
	dataInterval = TickRate / 20

	// busHysteresis is the bus voltage change (mV) that recomputes the
	// open loop PWM settings
	busHysteresis = 500
)

var ErrNoStore = errors.New("ui: no parameter store")

// UI owns the user-visible drive state and answers UI commands
type UI struct {
	mu sync.Mutex

	st    *stepper.Stepper
	store *params.Store
	bus   core.BusMonitor

	params    params.DriveParameters
	targetPos int32
	onboard   bool

	table []param
	items []dataItem

	enabled   [protocol.DataNumItems]bool
	streaming bool
	countdown int

	busMilliVolts uint32
	lastBus       uint32
	temperature   int16
	motorCurrent  uint32
	cpuUsage      uint8

	registry  *core.CommandRegistry
	transport *protocol.Transport
}

// New creates the UI for a motor. store and bus may be nil; without a bus
// monitor the bus voltage is taken as busMilliVolts. Replies and data
// frames are written to out.
func New(st *stepper.Stepper, store *params.Store, bus core.BusMonitor, busMilliVolts uint32, out protocol.OutputBuffer) *UI {
	u := &UI{
		st:            st,
		store:         store,
		bus:           bus,
		params:        params.Defaults(),
		busMilliVolts: busMilliVolts,
		countdown:     dataInterval,
		registry:      core.NewCommandRegistry(),
	}
	if bus != nil {
		u.busMilliVolts = bus.BusMilliVolts()
	}
	u.lastBus = u.busMilliVolts
	u.table = u.buildParams()
	u.items = u.buildItems()
	u.registerCommands()
	u.transport = protocol.NewTransport(out, func(cmd byte, data []byte) ([]byte, error) {
		return u.registry.Dispatch(cmd, data)
	})

	u.applyAll()
	return u
}

// Transport returns the serial transport, for setting a flush callback
func (u *UI) Transport() *protocol.Transport {
	return u.transport
}

// Registry returns the command registry
func (u *UI) Registry() *core.CommandRegistry {
	return u.registry
}

// Receive processes the complete command frames in input
func (u *UI) Receive(input protocol.InputBuffer) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.transport.Receive(input)
}

// Parameters returns a copy of the current drive parameters
func (u *UI) Parameters() params.DriveParameters {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.params
}

// SetProcessorUsage sets the value reported by the processor usage item
func (u *UI) SetProcessorUsage(pct uint8) {
	u.mu.Lock()
	u.cpuUsage = pct
	u.mu.Unlock()
}

// Streaming reports whether the real-time data stream is on
func (u *UI) Streaming() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.streaming
}

// Tick is the periodic UI task. It samples the motor status and the bus,
// refreshes the current settings when the bus voltage moves, and emits the
// real-time data frame.
func (u *UI) Tick() {
	u.mu.Lock()
	defer u.mu.Unlock()

	status := u.st.GetMotorStatus()
	u.motorCurrent = (status.Current[0] + status.Current[1] + 1) / 2

	if u.bus != nil {
		u.busMilliVolts = u.bus.BusMilliVolts()
		u.temperature = u.bus.TemperatureCelsius()
	}
	if diff := int64(u.busMilliVolts) - int64(u.lastBus); diff > busHysteresis || diff < -busHysteresis {
		u.setMotorParms()
		u.lastBus = u.busMilliVolts
	}

	if u.countdown > 0 {
		u.countdown--
		return
	}
	u.countdown = dataInterval
	if u.streaming {
		u.sendData()
	}
}

// LoadParams replaces the parameters with the newest saved block and
// applies them. Nothing changes while the motor is moving.
func (u *UI) LoadParams() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.loadParams()
}

func (u *UI) loadParams() error {
	if u.st.Sequencer().Status() != stepseq.PhaseStop {
		return params.ErrMoving
	}
	if u.store == nil {
		return ErrNoStore
	}
	p, err := u.store.Load()
	if err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	u.params = p
	u.applyAll()
	return nil
}

// SaveParams writes the current parameters to the store
func (u *UI) SaveParams() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.saveParams()
}

func (u *UI) saveParams() error {
	if u.store == nil {
		return ErrNoStore
	}
	p := u.params
	return u.store.Save(&p)
}

// applyAll runs every update callback, then sets the control mode again
// since its setup depends on the other parameters
func (u *UI) applyAll() {
	for i := range u.table {
		if u.table[i].update != nil {
			u.table[i].update()
		}
	}
	u.setControlMode()
}
