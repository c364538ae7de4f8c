package sim

import "rdkstepper/core"

// StepTimer implements core.StepTimer. A one shot timer disables itself
// on expiry; a periodic one reloads. Load takes effect at the next start
// or reload.
type StepTimer struct {
	sched *core.Scheduler
	isr   func()

	load     uint32
	periodic bool
	enabled  bool
	masked   bool
	pending  bool

	timer   core.Timer
	expired uint64 // expiry count
}

func NewStepTimer(sched *core.Scheduler) *StepTimer {
	st := &StepTimer{sched: sched}
	st.timer.Handler = st.expire
	return st
}

// SetHandler connects the timeout interrupt
func (st *StepTimer) SetHandler(isr func()) {
	st.isr = isr
}

func (st *StepTimer) SetPeriodic(periodic bool) { st.periodic = periodic }

func (st *StepTimer) Load(counts uint32) { st.load = counts }

func (st *StepTimer) Enable() {
	if st.enabled {
		return
	}
	st.enabled = true
	st.timer.WakeTime = st.sched.Now() + uint64(max(st.load, 1))
	st.sched.ScheduleTimer(&st.timer)
}

func (st *StepTimer) Disable() {
	st.enabled = false
	st.sched.CancelTimer(&st.timer)
}

func (st *StepTimer) MaskInterrupt() { st.masked = true }

// UnmaskInterrupt delivers a timeout that expired while masked
func (st *StepTimer) UnmaskInterrupt() {
	st.masked = false
	if st.pending {
		st.pending = false
		st.deliver()
	}
}

// Expired returns the number of timeouts so far
func (st *StepTimer) Expired() uint64 { return st.expired }

// Enabled reports whether the timer is counting
func (st *StepTimer) Enabled() bool { return st.enabled }

func (st *StepTimer) expire(t *core.Timer) uint8 {
	st.expired++
	wake := t.WakeTime + uint64(max(st.load, 1))
	if !st.periodic {
		st.enabled = false
	}

	if st.masked {
		st.pending = true
	} else {
		st.deliver()
	}

	if st.periodic && st.enabled && !t.Pending() {
		t.WakeTime = wake
		return core.SF_RESCHEDULE
	}
	return core.SF_DONE
}

func (st *StepTimer) deliver() {
	if st.isr != nil {
		st.isr()
	}
}
