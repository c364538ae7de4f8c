package core

// Timer represents a scheduled event
type Timer struct {
	WakeTime uint64
	Handler  func(*Timer) uint8
	Next     *Timer

	queued bool
}

const (
	SF_DONE       = 0
	SF_RESCHEDULE = 1
)

// Scheduler keeps timers sorted by wake time against its own clock.
// The simulator uses it to deliver hardware interrupts in virtual time.
type Scheduler struct {
	timerList *Timer
	now       uint64
}

// NewScheduler creates a scheduler with its clock at zero
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Now returns the scheduler clock
func (s *Scheduler) Now() uint64 {
	return s.now
}

// Pending reports whether t is queued
func (t *Timer) Pending() bool {
	return t.queued
}

// ScheduleTimer adds a timer to the schedule, moving it if already queued
func (s *Scheduler) ScheduleTimer(t *Timer) {
	state := DisableInterrupts()
	defer RestoreInterrupts(state)

	if t.queued {
		s.remove(t)
	}
	s.insertTimer(t)
}

// CancelTimer removes a timer from the schedule
func (s *Scheduler) CancelTimer(t *Timer) {
	state := DisableInterrupts()
	defer RestoreInterrupts(state)

	if t.queued {
		s.remove(t)
	}
}

// insertTimer inserts a timer in sorted order by WakeTime.
// Timers with equal wake times fire in insertion order.
func (s *Scheduler) insertTimer(t *Timer) {
	t.queued = true
	if s.timerList == nil || t.WakeTime < s.timerList.WakeTime {
		t.Next = s.timerList
		s.timerList = t
		return
	}

	current := s.timerList
	for current.Next != nil && current.Next.WakeTime <= t.WakeTime {
		current = current.Next
	}

	t.Next = current.Next
	current.Next = t
}

func (s *Scheduler) remove(t *Timer) {
	t.queued = false
	if s.timerList == t {
		s.timerList = t.Next
		t.Next = nil
		return
	}
	for cur := s.timerList; cur != nil; cur = cur.Next {
		if cur.Next == t {
			cur.Next = t.Next
			break
		}
	}
	t.Next = nil
}

// NextWake returns the wake time of the earliest timer
func (s *Scheduler) NextWake() (uint64, bool) {
	if s.timerList == nil {
		return 0, false
	}
	return s.timerList.WakeTime, true
}

// AdvanceTo runs every timer due up to and including end, moving the
// clock to each timer's wake time before calling its handler. Handlers may
// schedule further timers; those that fall inside the window also run.
func (s *Scheduler) AdvanceTo(end uint64) int {
	fired := 0
	for {
		state := DisableInterrupts()
		timer := s.timerList
		if timer == nil || timer.WakeTime > end {
			RestoreInterrupts(state)
			break
		}
		s.timerList = timer.Next
		timer.Next = nil // Clear Next pointer to avoid circular references
		timer.queued = false
		if timer.WakeTime > s.now {
			s.now = timer.WakeTime
		}
		RestoreInterrupts(state)

		fired++
		if timer.Handler(timer) == SF_RESCHEDULE {
			s.ScheduleTimer(timer)
		}
	}
	if end > s.now {
		s.now = end
	}
	return fired
}
