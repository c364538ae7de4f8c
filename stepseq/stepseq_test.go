package stepseq

import (
	"fmt"
	"strings"
	"testing"

	"rdkstepper/core"
)

// fakeTimer records step timer programming. Expiry is driven by the test.
type fakeTimer struct {
	enabled  bool
	periodic bool
	loads    []uint32
	masks    int
	unmasks  int
}

func (f *fakeTimer) SetPeriodic(p bool) { f.periodic = p }
func (f *fakeTimer) Load(c uint32)      { f.loads = append(f.loads, c) }
func (f *fakeTimer) Enable()            { f.enabled = true }
func (f *fakeTimer) Disable()           { f.enabled = false }
func (f *fakeTimer) MaskInterrupt()     { f.masks++ }
func (f *fakeTimer) UnmaskInterrupt()   { f.unmasks++ }

func (f *fakeTimer) loaded(c uint32) int {
	n := 0
	for _, l := range f.loads {
		if l == c {
			n++
		}
	}
	return n
}

// recDriver records winding driver calls as "Name(winding,setting)"
type recDriver struct {
	calls  []string
	period uint32
	modes  []string
}

func (r *recDriver) rec(name string, id core.Winding, setting int32) {
	r.calls = append(r.calls, fmt.Sprintf("%s(%s,%d)", name, id, setting))
}
func (r *recDriver) ChopSlow(id core.Winding, v int32)      { r.rec("ChopSlow", id, v) }
func (r *recDriver) ChopFast(id core.Winding, v int32)      { r.rec("ChopFast", id, v) }
func (r *recDriver) OpenPwmSlow(id core.Winding, v int32)   { r.rec("OpenPwmSlow", id, v) }
func (r *recDriver) OpenPwmFast(id core.Winding, v int32)   { r.rec("OpenPwmFast", id, v) }
func (r *recDriver) ClosedPwmSlow(id core.Winding, v int32) { r.rec("ClosedPwmSlow", id, v) }
func (r *recDriver) ClosedPwmFast(id core.Winding, v int32) { r.rec("ClosedPwmFast", id, v) }
func (r *recDriver) ChopMode() {
	r.period = 4
	r.modes = append(r.modes, "chop")
}
func (r *recDriver) OpenPWMMode(p uint32) {
	r.period = p
	r.modes = append(r.modes, fmt.Sprintf("open-pwm/%d", p))
}
func (r *recDriver) ClosedPWMMode(p uint32) {
	r.period = p
	r.modes = append(r.modes, fmt.Sprintf("closed-pwm/%d", p))
}
func (r *recDriver) Period() uint32 { return r.period }

func (r *recDriver) last(n int) []string {
	if len(r.calls) < n {
		return r.calls
	}
	return r.calls[len(r.calls)-n:]
}

func newTestSequencer(mode StepMode) (*Sequencer, *fakeTimer, *recDriver) {
	tm := &fakeTimer{}
	drv := &recDriver{period: 4}
	s := New(drv, tm)
	s.StepMode(mode)
	s.Current(1500, 300, 6000)
	return s, tm, drv
}

// runSteps fires the step timer until it stops, calling hook after every
// step. It returns the number of steps and the phases visited.
func runSteps(t *testing.T, s *Sequencer, tm *fakeTimer, hook func()) (int, []Phase) {
	t.Helper()
	phases := []Phase{PhaseStop}
	note := func() {
		if p := s.Status(); p != phases[len(phases)-1] {
			phases = append(phases, p)
		}
	}
	note()
	n := 0
	for tm.enabled {
		if n > 100000 {
			t.Fatalf("Motor did not come to rest, position %d", s.Position())
		}
		s.Handler()
		n++
		note()
		if hook != nil {
			hook()
			note()
		}
	}
	return n, phases
}

func samePhases(a, b []Phase) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestFixedPointHelpers(t *testing.T) {
	tests := []struct {
		name string
		got  uint32
		want uint32
	}{
		{"isqrt 0", isqrt(0), 0},
		{"isqrt 15", isqrt(15), 3},
		{"isqrt 16", isqrt(16), 4},
		{"isqrt 30000", isqrt(30000), 173},
		{"isqrt max", isqrt(0xffffffff), 65535},
		{"LongDiv256", LongDiv256(1000, 3), 85333},
		{"first step 30000", firstStepTime(30000), 104635454},
		{"step1", MulDiv(104635454, 4056, 10000), 42440139},
		{"MulDiv large", MulDiv(0xffffffff, 4056, 10000), 1742038733},
		{"run step 200", minStepTime(200), 64000000},
		{"rate", stepRate(64000000), 200},
		{"rate stopped", stepRate(0), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("Got %d, want %d", tt.got, tt.want)
			}
		})
	}

	if n := rampSteps(200, 30000); n != 1 {
		t.Errorf("rampSteps(200, 30000) = %d, want 1", n)
	}
	if n := rampSteps(200, 60000); n != 0 {
		t.Errorf("rampSteps(200, 60000) = %d, want 0", n)
	}
	// micro step scaling of the top speed must not overflow
	if n := rampSteps(80000, 800); n != 4000000 {
		t.Errorf("rampSteps(80000, 800) = %d, want 4000000", n)
	}
}

func TestStepLevels(t *testing.T) {
	tests := []struct {
		pos  int32
		mode StepMode
		a, b int32
	}{
		{0, StepFull, fullLevel, fullLevel},
		{0x100, StepFull, fullLevel, -fullLevel},
		{0x80, StepHalf, fullLevel, 0},
		{0x20, StepMicro, 54491, 36410},
		{-0x20, StepMicro, 36410, 54491},
		{0, StepWave, fullLevel, 0},
		{0x100, StepWave, 0, -fullLevel},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%d", tt.mode, tt.pos), func(t *testing.T) {
			idx := tableIndex(tt.pos, tt.mode)
			a, b := stepLevel(idx, 0, tt.mode), stepLevel(idx, 1, tt.mode)
			if a != tt.a || b != tt.b {
				t.Errorf("Levels (%d,%d), want (%d,%d)", a, b, tt.a, tt.b)
			}
		})
	}
}

func TestMoveShortDecelHasNoDecelPhase(t *testing.T) {
	s, tm, drv := newTestSequencer(StepFull)

	// 200 steps/s with 60000 steps/s² needs no deceleration steps, so the
	// motor runs straight into the stop position
	s.Move(51200, 200, 30000, 60000)
	p := s.Profile()
	if p.PosAccel != 256 || p.PosRun != 256 || p.PosStop != 51200 {
		t.Errorf("Unexpected plan %+v", p)
	}
	if p.DecelDenom != 0xffffffff {
		t.Errorf("DecelDenom = %#x, want wrapped 0xffffffff", p.DecelDenom)
	}
	if tm.loads[0] != 408732 {
		t.Errorf("First step load %d, want 408732", tm.loads[0])
	}

	n, phases := runSteps(t, s, tm, nil)
	want := []Phase{PhaseStop, PhaseAccel, PhaseRun, PhaseStop}
	if !samePhases(phases, want) {
		t.Errorf("Phases %v, want %v", phases, want)
	}
	if n != 201 {
		t.Errorf("Steps = %d, want 201", n)
	}
	if s.Position() != 51200 {
		t.Errorf("Position = %d, want 51200", s.Position())
	}
	if tm.loaded(250000) == 0 {
		t.Errorf("Run speed never loaded, loads %v", tm.loads)
	}
	hold := []string{"ChopSlow(A,112)", "ChopSlow(B,112)"}
	if got := drv.last(2); fmt.Sprint(got) != fmt.Sprint(hold) {
		t.Errorf("Final windings %v, want holding current %v", got, hold)
	}
	if s.Speed() != 0 || s.StepTime() != 0 {
		t.Errorf("Speed %d step time %d after stop", s.Speed(), s.StepTime())
	}
	if tm.masks != tm.unmasks {
		t.Errorf("Interrupt mask unbalanced: %d masks, %d unmasks", tm.masks, tm.unmasks)
	}
}

func TestMoveTrapezoid(t *testing.T) {
	s, tm, _ := newTestSequencer(StepFull)

	s.Move(51200, 200, 30000, 400)
	p := s.Profile()
	if p.PosDecel != 38400 || p.DecelDenom != 199 {
		t.Errorf("Unexpected plan %+v", p)
	}

	n, phases := runSteps(t, s, tm, nil)
	want := []Phase{PhaseStop, PhaseAccel, PhaseRun, PhaseDecel, PhaseStop}
	if !samePhases(phases, want) {
		t.Errorf("Phases %v, want %v", phases, want)
	}
	if n != 201 || s.Position() != 51200 {
		t.Errorf("Steps %d position %d, want 201 steps to 51200", n, s.Position())
	}
	last := tm.loads[len(tm.loads)-2:]
	if last[0] != 2401878 || last[1] != 2401878 {
		t.Errorf("Final loads %v, want the last step time repeated for the hold", last)
	}
}

func TestMoveSingleStep(t *testing.T) {
	s, tm, drv := newTestSequencer(StepFull)

	s.Move(256, 200, 30000, 60000)
	p := s.Profile()
	if p.PosRun != -256 || p.PosDecel != -256 {
		t.Errorf("Single step should skip run and decel, plan %+v", p)
	}

	n, phases := runSteps(t, s, tm, nil)
	want := []Phase{PhaseStop, PhaseAccel, PhaseStop}
	if !samePhases(phases, want) {
		t.Errorf("Phases %v, want %v", phases, want)
	}
	if n != 2 || s.Position() != 256 {
		t.Errorf("Steps %d position %d, want 2 steps to 256", n, s.Position())
	}
	wantCalls := []string{
		"ChopSlow(A,562)", "ChopSlow(B,-562)",
		"ChopSlow(A,112)", "ChopSlow(B,-112)",
	}
	if fmt.Sprint(drv.calls) != fmt.Sprint(wantCalls) {
		t.Errorf("Driver calls %v, want %v", drv.calls, wantCalls)
	}
}

func TestMoveZeroDistance(t *testing.T) {
	s, tm, drv := newTestSequencer(StepFull)

	s.Move(0, 200, 30000, 60000)
	if len(tm.loads) != 0 || tm.enabled {
		t.Errorf("Timer started for zero move, loads %v", tm.loads)
	}
	if s.Status() != PhaseStop || len(drv.calls) != 0 {
		t.Errorf("State changed: phase %s, calls %v", s.Status(), drv.calls)
	}
	if tm.masks != 1 || tm.unmasks != 1 {
		t.Errorf("Interrupt left masked: %d masks, %d unmasks", tm.masks, tm.unmasks)
	}
}

func TestMoveSpeedUpWhileRunning(t *testing.T) {
	s, tm, _ := newTestSequencer(StepFull)

	s.Move(512000, 500, 2000, 2000)
	replanned := false
	_, phases := runSteps(t, s, tm, func() {
		if replanned || s.Status() != PhaseRun || s.Position() != 51200 {
			return
		}
		replanned = true
		s.Move(512000, 1000, 2000, 2000)
		p := s.Profile()
		if p.Phase != PhaseAccel {
			t.Errorf("Phase after speed up %s, want accel", p.Phase)
		}
		// ramp continues from the current 500 steps/s
		if p.AccelDenom != 253 || p.PosRun != 99072 || p.PosDecel != 448000 {
			t.Errorf("Unexpected replan %+v", p)
		}
	})

	if !replanned {
		t.Fatal("Motor never reached run speed")
	}
	want := []Phase{PhaseStop, PhaseAccel, PhaseRun, PhaseAccel, PhaseRun, PhaseDecel, PhaseStop}
	if !samePhases(phases, want) {
		t.Errorf("Phases %v, want %v", phases, want)
	}
	if tm.loaded(50000) == 0 {
		t.Error("New run speed of 1000 steps/s never loaded")
	}
	if s.Position() != 512000 {
		t.Errorf("Position = %d, want 512000", s.Position())
	}
}

func TestMoveReversalIsDeferred(t *testing.T) {
	s, tm, _ := newTestSequencer(StepFull)

	s.Move(512000, 500, 2000, 2000)
	deferred := false
	_, phases := runSteps(t, s, tm, func() {
		if deferred || s.Status() != PhaseRun || s.Position() != 51200 {
			return
		}
		deferred = true
		s.Move(-2560, 500, 2000, 2000)
		m, ok := s.Deferred()
		if !ok || m != (MoveRequest{Target: -2560, Speed: 500, Accel: 2000, Decel: 2000}) {
			t.Errorf("Deferred move %+v %v", m, ok)
		}
		p := s.Profile()
		if p.Delta != 256 || p.PosStop != 67584 || p.PosDecel != 51456 {
			t.Errorf("Unexpected stop plan %+v", p)
		}
	})

	want := []Phase{
		PhaseStop, PhaseAccel, PhaseRun, PhaseDecel,
		PhaseStop, PhaseAccel, PhaseRun, PhaseDecel, PhaseStop,
	}
	if !samePhases(phases, want) {
		t.Errorf("Phases %v, want %v", phases, want)
	}
	if s.Position() != -2560 {
		t.Errorf("Position = %d, want -2560", s.Position())
	}
	if _, ok := s.Deferred(); ok {
		t.Error("Deferred move still pending")
	}
}

func TestStopRoundsToWholeStep(t *testing.T) {
	s, tm, _ := newTestSequencer(StepHalf)

	s.Move(256000, 400, 2000, 2000)
	stopped := false
	n, phases := runSteps(t, s, tm, func() {
		if stopped || s.Status() != PhaseRun || s.Position() != 25728 {
			return
		}
		stopped = true
		s.Stop()
		p := s.Profile()
		if p.PosStop != 36096 || p.PosDecel != 25856 || p.DecelDenom != 319 {
			t.Errorf("Unexpected stop plan %+v", p)
		}
		s.Stop()
		if p2 := s.Profile(); p2 != p {
			t.Error("Second Stop changed the plan")
		}
	})

	want := []Phase{PhaseStop, PhaseAccel, PhaseRun, PhaseDecel, PhaseStop}
	if !samePhases(phases, want) {
		t.Errorf("Phases %v, want %v", phases, want)
	}
	if n != 283 || s.Position() != 36096 {
		t.Errorf("Steps %d position %d, want 283 steps to 36096", n, s.Position())
	}
}

func TestMicroStepMove(t *testing.T) {
	s, tm, drv := newTestSequencer(StepMicro)

	s.Move(2560, 100, 1000, 1000)
	n, phases := runSteps(t, s, tm, nil)
	want := []Phase{PhaseStop, PhaseAccel, PhaseDecel, PhaseStop}
	if !samePhases(phases, want) {
		t.Errorf("Phases %v, want %v", phases, want)
	}
	if n != 81 || s.Position() != 2560 {
		t.Errorf("Steps %d position %d, want 81 steps to 2560", n, s.Position())
	}
	if len(drv.calls) != 162 {
		t.Errorf("Driver calls = %d, want 162", len(drv.calls))
	}
}

func TestFastDecayHoldsWithSlowDecay(t *testing.T) {
	s, tm, drv := newTestSequencer(StepFull)
	s.DecayMode(DecayFast)
	s.Current(1500, 0, 6000)

	s.Move(256, 200, 30000, 60000)
	runSteps(t, s, tm, nil)

	want := []string{
		"ChopFast(A,562)", "ChopFast(B,-562)",
		"ChopSlow(A,0)", "ChopSlow(B,0)",
	}
	if fmt.Sprint(drv.calls) != fmt.Sprint(want) {
		t.Errorf("Driver calls %v, want %v", drv.calls, want)
	}
}

func TestOpenPWMSettings(t *testing.T) {
	s, tm, drv := newTestSequencer(StepFull)

	s.ControlMode(ControlOpenPWM)
	if drv.period != 2500 {
		t.Fatalf("PWM period %d, want 2500", drv.period)
	}
	s.Move(256, 200, 30000, 60000)
	runSteps(t, s, tm, nil)

	want := []string{
		"OpenPwmSlow(A,625)", "OpenPwmSlow(B,-625)",
		"OpenPwmSlow(A,125)", "OpenPwmSlow(B,-125)",
	}
	if fmt.Sprint(drv.calls) != fmt.Sprint(want) {
		t.Errorf("Driver calls %v, want %v", drv.calls, want)
	}

	s.PWMFrequency(25000)
	if drv.modes[len(drv.modes)-1] != "open-pwm/2000" {
		t.Errorf("PWM frequency not applied, modes %v", drv.modes)
	}
	if s.pwmSetting[settingDrive] != 500 {
		t.Errorf("Drive setting %d, want 500", s.pwmSetting[settingDrive])
	}
}

func TestModeChangesGatedWhileMoving(t *testing.T) {
	s, _, drv := newTestSequencer(StepHalf)
	before := s.Modes()

	s.Move(25600, 200, 1000, 1000)
	s.ControlMode(ControlClosedPWM)
	s.StepMode(StepMicro)
	s.PWMFrequency(30000)
	s.ResetPosition(0x1000)

	if got := s.Modes(); got != before {
		t.Errorf("Modes changed while moving: %+v, want %+v", got, before)
	}
	if len(drv.modes) != 0 {
		t.Errorf("Driver reconfigured while moving: %v", drv.modes)
	}
	if s.Position() != 0 {
		t.Errorf("Position reset while moving: %d", s.Position())
	}

	// decay mode is not gated
	s.DecayMode(DecayFast)
	if s.Modes().Decay != DecayFast {
		t.Error("Decay mode not applied")
	}
}

func TestControlModeUnchangedIsIgnored(t *testing.T) {
	s, _, drv := newTestSequencer(StepHalf)
	s.ControlMode(ControlChop)
	if len(drv.modes) != 0 {
		t.Errorf("Same mode reconfigured the driver: %v", drv.modes)
	}
	s.ControlMode(ControlClosedPWM)
	if fmt.Sprint(drv.modes) != "[closed-pwm/2500]" {
		t.Errorf("Modes %v", drv.modes)
	}
}

func TestShutdown(t *testing.T) {
	s, tm, drv := newTestSequencer(StepFull)

	s.Move(512000, 500, 2000, 2000)
	for i := 0; i < 10; i++ {
		s.Handler()
	}
	s.Move(-2560, 500, 2000, 2000)
	if _, ok := s.Deferred(); !ok {
		t.Fatal("Reversal not deferred")
	}

	s.Shutdown()
	if tm.enabled {
		t.Error("Step timer still enabled")
	}
	if s.Status() != PhaseStop || s.Speed() != 0 {
		t.Errorf("Phase %s speed %d after shutdown", s.Status(), s.Speed())
	}
	if _, ok := s.Deferred(); ok {
		t.Error("Deferred move survived shutdown")
	}
	want := []string{"OpenPwmFast(A,0)", "OpenPwmFast(B,0)"}
	if got := drv.last(2); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Final windings %v, want %v", got, want)
	}
}

func TestMoveAfterShutdownDrivesBothWindings(t *testing.T) {
	s, tm, drv := newTestSequencer(StepFull)

	s.Move(2560, 200, 30000, 60000)
	s.Handler()
	s.Handler()
	s.Shutdown()

	s.Move(5120, 200, 30000, 60000)
	if !tm.enabled {
		t.Fatal("Move after shutdown did not start the step timer")
	}
	mark := len(drv.calls)
	s.Handler()
	got := drv.calls[mark:]
	if len(got) != 2 || !strings.HasPrefix(got[0], "ChopSlow(A,") || !strings.HasPrefix(got[1], "ChopSlow(B,") {
		t.Errorf("First step after shutdown drove %v, want both windings", got)
	}
}

func TestMoveSlowDownWhileRunning(t *testing.T) {
	s, tm, _ := newTestSequencer(StepFull)

	s.Move(512000, 1000, 2000, 2000)
	replanned := false
	_, phases := runSteps(t, s, tm, func() {
		if replanned || s.Status() != PhaseRun || s.Position() < 102400 {
			return
		}
		replanned = true
		cur := s.Position()
		s.Move(512000, 500, 2000, 2000)
		if _, ok := s.Deferred(); ok {
			t.Fatal("Slow down was deferred")
		}
		p := s.Profile()
		if p.Phase != PhaseDecel {
			t.Errorf("Phase after slow down %s, want decel", p.Phase)
		}
		// decelerate to the new speed, run, then decelerate to the target
		if p.PosRun <= cur || p.PosRun >= p.PosDecel || p.PosStop != 512000 {
			t.Errorf("Unexpected replan from %d: %+v", cur, p)
		}
	})

	if !replanned {
		t.Fatal("Motor never reached run speed")
	}
	want := []Phase{PhaseStop, PhaseAccel, PhaseRun, PhaseDecel, PhaseRun, PhaseDecel, PhaseStop}
	if !samePhases(phases, want) {
		t.Errorf("Phases %v, want %v", phases, want)
	}
	if tm.loaded(100000) == 0 {
		t.Error("New run speed of 500 steps/s never loaded")
	}
	if s.Position() != 512000 {
		t.Errorf("Position = %d, want 512000", s.Position())
	}
}

// Re-plans issued at many points of a move with varied rates. An accepted
// re-plan must leave room to decelerate before its stop position and the
// motor must never pass it; every re-plan, accepted or deferred, ends on
// its target.
func TestReplanLeavesRoomToDecelerate(t *testing.T) {
	const base = 800 * 256
	for i := 0; i < 80; i++ {
		at := 2 + i*8
		target := int32(base + (i%5-2)*25600)
		speed := uint32(300 + (i%7)*150)
		accel := uint32(1000 + (i%3)*2000)
		decel := uint32(1000 + (i%4)*1500)

		t.Run(fmt.Sprintf("step%d_to%d", at, target), func(t *testing.T) {
			s, tm, _ := newTestSequencer(StepFull)
			s.Move(base, 600, 3000, 3000)

			n := 0
			accepted := false
			var highest int32
			runSteps(t, s, tm, func() {
				n++
				if n == at {
					cur := s.Position()
					s.Move(target, speed, accel, decel)
					if _, deferred := s.Deferred(); !deferred {
						accepted = true
						p := s.Profile()
						if p.PosStop != target {
							t.Errorf("Stop position %d, want %d", p.PosStop, target)
						}
						if room := (p.PosDecel - cur) / p.Delta; room < 0 {
							t.Errorf("Deceleration starts %d steps behind position %d: %+v", -room, cur, p)
						}
					}
				}
				if s.Position() > highest {
					highest = s.Position()
				}
			})

			if n < at {
				t.Fatalf("Move finished after %d steps, before the re-plan", n)
			}
			if accepted && highest > target {
				t.Errorf("Motor passed the target %d, reached %d", target, highest)
			}
			if s.Position() != target {
				t.Errorf("Position = %d, want %d", s.Position(), target)
			}
		})
	}
}

func TestResetPosition(t *testing.T) {
	s, _, _ := newTestSequencer(StepHalf)
	s.ResetPosition(0x1280)
	if s.Position() != 0x1200 {
		t.Errorf("Position = %#x, want 0x1200", s.Position())
	}
}

func TestCurrentConversions(t *testing.T) {
	if c := MilliampsToCounts(1500); c != 562 {
		t.Errorf("MilliampsToCounts(1500) = %d", c)
	}
	if mA := CountsToMilliamps(562); mA != 1498 {
		t.Errorf("CountsToMilliamps(562) = %d", mA)
	}
}

func TestPhaseTimingEvents(t *testing.T) {
	core.SetTimingEnabled(true)
	defer core.SetTimingEnabled(false)
	core.ClearTimingRing()

	s, tm, _ := newTestSequencer(StepFull)
	s.Move(256, 200, 30000, 60000)
	runSteps(t, s, tm, nil)

	var phases []int32
	for _, ev := range core.TimingEvents() {
		if ev.EventType == core.EvtPhase {
			phases = append(phases, ev.Value1)
		}
	}
	want := []int32{int32(PhaseAccel), int32(PhaseStop)}
	if fmt.Sprint(phases) != fmt.Sprint(want) {
		t.Errorf("Phase events %v, want %v", phases, want)
	}
}
