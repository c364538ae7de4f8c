package sim

import (
	"sync"
	"time"

	logger "github.com/d2r2/go-logger"

	"rdkstepper/core"
	"rdkstepper/stepctrl"
	"rdkstepper/stepper"
)

var lg = logger.NewPackageLogger("sim", logger.InfoLevel)

// Machine is a complete simulated drive: the stepper API wired to the
// simulated stage, step timer and fault comparator. All access goes
// through Do or Run so the virtual interrupts never overlap the caller.
type Machine struct {
	mu sync.Mutex

	Sched   *core.Scheduler
	Stage   *PowerStage
	Timer   *StepTimer
	Fault   *Comparator
	Stepper *stepper.Stepper
}

// NewMachine builds a drive around motor
func NewMachine(motor Motor) *Machine {
	m := &Machine{Sched: core.NewScheduler()}
	m.Stage = NewPowerStage(m.Sched, motor)
	m.Timer = NewStepTimer(m.Sched)
	m.Fault = NewComparator(m.Stage)

	drv := stepctrl.NewDriver(m.Stage)
	m.Stepper = stepper.New(drv, m.Timer, m.Fault)

	m.Stage.SetHandlers(drv.TimerISR, drv.ADCISR)
	m.Timer.SetHandler(m.Stepper.StepISR)
	m.Fault.SetHandler(m.Stepper.FaultISR)

	lg.Debugf("machine: bus %d mV, %d mΩ, %d µH",
		motor.BusMilliVolts, motor.ResistanceMilliOhms, motor.InductanceMicroHenry)
	return m
}

// Do runs f with the virtual interrupts held off
func (m *Machine) Do(f func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f()
}

// Run advances virtual time by d, delivering every interrupt due
func (m *Machine) Run(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sched.AdvanceTo(m.Sched.Now() + ticks(d))
}

// RunUntil advances virtual time in steps of step until cond holds or
// limit has passed. It reports whether cond was met.
func (m *Machine) RunUntil(cond func() bool, step, limit time.Duration) bool {
	for elapsed := time.Duration(0); elapsed < limit; elapsed += step {
		m.Run(step)
		done := false
		m.Do(func() { done = cond() })
		if done {
			return true
		}
	}
	return false
}

// Now returns the virtual time
func (m *Machine) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return time.Duration(m.Sched.Now()) * tickDuration
}

// tickDuration is one system clock tick
const tickDuration = time.Second / core.SystemClock

func ticks(d time.Duration) uint64 {
	return uint64(d / tickDuration)
}
