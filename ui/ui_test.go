package ui

import (
	"bytes"
	"testing"

	"rdkstepper/core"
	"rdkstepper/params"
	"rdkstepper/protocol"
	"rdkstepper/stepctrl"
	"rdkstepper/stepper"
	"rdkstepper/stepseq"
)

type nopStage struct{}

func (nopStage) SetOutput(core.Winding, core.Leg, core.PinDrive) {}
func (nopStage) SetPeriod(core.Generator, uint32)                {}
func (nopStage) SetCompare(core.Generator, core.Channel, uint32) {}
func (nopStage) SyncGenerator(core.Generator, uint32)            {}
func (nopStage) SetADCTrigger(core.Winding, core.ADCTrigger)     {}
func (nopStage) EnableADC(core.Winding)                          {}
func (nopStage) DisableADC(core.Winding)                         {}
func (nopStage) TriggerADC(core.Winding)                         {}
func (nopStage) ReadADC(core.Winding) (uint16, int)              { return 0, 0 }
func (nopStage) LoadTimer(core.Winding, uint32)                  {}
func (nopStage) StartTimer(core.Winding)                         {}
func (nopStage) StopTimer(core.Winding)                          {}

type nopTimer struct{}

func (nopTimer) SetPeriodic(bool) {}
func (nopTimer) Load(uint32)      {}
func (nopTimer) Enable()          {}
func (nopTimer) Disable()         {}
func (nopTimer) MaskInterrupt()   {}
func (nopTimer) UnmaskInterrupt() {}

type nopComparator struct{}

func (nopComparator) SetReference(uint32) {}
func (nopComparator) ClearInterrupt()     {}
func (nopComparator) EnableInterrupt()    {}
func (nopComparator) DisableInterrupt()   {}

type fakeBus struct {
	mV   uint32
	temp int16
}

func (b *fakeBus) BusMilliVolts() uint32     { return b.mV }
func (b *fakeBus) TemperatureCelsius() int16 { return b.temp }

type rig struct {
	ui  *UI
	st  *stepper.Stepper
	out *protocol.ScratchOutput
	bus *fakeBus
}

func newRig(t *testing.T) *rig {
	t.Helper()
	store, err := params.NewStore(params.NewMemRegion(4 * params.BlockSize))
	if err != nil {
		t.Fatal(err)
	}
	r := &rig{
		st:  stepper.New(stepctrl.NewDriver(nopStage{}), nopTimer{}, nopComparator{}),
		out: protocol.NewScratchOutput(),
		bus: &fakeBus{mV: 24000, temp: 30},
	}
	r.ui = New(r.st, store, r.bus, 0, r.out)
	return r
}

// exchange sends one command and returns the status payload. ok is false
// when the drive did not answer.
func (r *rig) exchange(t *testing.T, cmd byte, payload ...byte) (resp []byte, ok bool) {
	t.Helper()
	r.out.Reset()
	frame, err := protocol.EncodeCommand(cmd, payload)
	if err != nil {
		t.Fatal(err)
	}
	r.ui.Receive(protocol.NewSliceInputBuffer(frame))

	reply := r.out.Result()
	if len(reply) == 0 {
		return nil, false
	}
	if reply[0] != protocol.TagStatus || int(reply[1]) != len(reply) || reply[2] != cmd {
		t.Fatalf("Malformed reply %x to command %#x", reply, cmd)
	}
	if protocol.Sum(reply) != 0 {
		t.Fatalf("Reply %x does not sum to zero", reply)
	}
	return append([]byte(nil), reply[3:len(reply)-1]...), true
}

func (r *rig) get(t *testing.T, id byte) uint32 {
	t.Helper()
	resp, _ := r.exchange(t, protocol.CmdGetParamValue, id)
	return protocol.Value(resp)
}

func (r *rig) set(t *testing.T, id byte, value ...byte) {
	t.Helper()
	if _, ok := r.exchange(t, protocol.CmdSetParamValue, append([]byte{id}, value...)...); !ok {
		t.Fatalf("No reply to set %#x", id)
	}
}

func TestTargetIdentification(t *testing.T) {
	r := newRig(t)
	for _, cmd := range []byte{protocol.CmdIDTarget, protocol.CmdDiscoverTarget} {
		resp, ok := r.exchange(t, cmd)
		if !ok || !bytes.Equal(resp, []byte{protocol.TargetStepper}) {
			t.Errorf("Command %#x answered %x", cmd, resp)
		}
	}
	for _, cmd := range []byte{protocol.CmdUpgrade, 0x40} {
		if resp, ok := r.exchange(t, cmd); ok {
			t.Errorf("Command %#x answered %x, want no reply", cmd, resp)
		}
	}
}

func TestGetParams(t *testing.T) {
	r := newRig(t)
	resp, _ := r.exchange(t, protocol.CmdGetParams)
	want := []byte{
		0x00, 0x08, 0x04, 0x06, 0x07, 0x09, 0x05, 0x22, 0x23, 0x24,
		0x25, 0x0f, 0x27, 0x32, 0x28, 0x17, 0x26, 0x2c, 0x2d, 0x1e,
	}
	if !bytes.Equal(resp, want) {
		t.Errorf("Parameter list %x, want %x", resp, want)
	}
}

func TestGetParamDesc(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    []byte
	}{
		{"speed", []byte{protocol.ParamTargetSpeed}, []byte{2, 10, 0, 0x10, 0x27, 1, 0}},
		{"signed target", []byte{protocol.ParamTargetPos},
			[]byte{4, 0, 0, 0, 0x80, 0xff, 0xff, 0xff, 0x7f, 0, 1, 0, 0}},
		{"read-only", []byte{protocol.ParamMotorStatus}, []byte{1, 0, 0, 0}},
		{"unknown", []byte{0x77}, []byte{0}},
		{"missing id", nil, []byte{0}},
	}
	r := newRig(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := r.exchange(t, protocol.CmdGetParamDesc, tt.payload...)
			if !bytes.Equal(resp, tt.want) {
				t.Errorf("Got %x, want %x", resp, tt.want)
			}
		})
	}
}

func TestGetParamValue(t *testing.T) {
	r := newRig(t)
	resp, _ := r.exchange(t, protocol.CmdGetParamValue, protocol.ParamFirmwareVersion)
	if !bytes.Equal(resp, []byte{0x8c, 0x29}) {
		t.Errorf("Firmware version %x", resp)
	}
	if got := r.get(t, protocol.ParamTargetSpeed); got != 200 {
		t.Errorf("Default speed %d", got)
	}
	if resp, ok := r.exchange(t, protocol.CmdGetParamValue, 0x77); !ok || len(resp) != 0 {
		t.Errorf("Unknown parameter answered %x (reply %v)", resp, ok)
	}
}

func TestSetParamValue(t *testing.T) {
	tests := []struct {
		name  string
		id    byte
		value []byte
		want  uint32
	}{
		{"in range", protocol.ParamTargetSpeed, []byte{0x90, 0x01}, 400},
		{"below min", protocol.ParamTargetSpeed, []byte{5, 0}, 10},
		{"above max", protocol.ParamTargetSpeed, []byte{0xff, 0xff}, 10000},
		{"missing high byte", protocol.ParamHoldingCurrent, []byte{0x05}, 5},
		{"extra bytes ignored", protocol.ParamBlankOff, []byte{0xc8, 0x00, 0x99}, 200},
		{"mode clamp", protocol.ParamDecayMode, []byte{9}, 1},
		{"read-only", protocol.ParamFirmwareVersion, []byte{1, 0}, FirmwareVersion},
	}
	r := newRig(t)
	r.set(t, protocol.ParamHoldingCurrent, 0x00, 0x02)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r.set(t, tt.id, tt.value...)
			if got := r.get(t, tt.id); got != tt.want {
				t.Errorf("Got %d, want %d", got, tt.want)
			}
		})
	}
	if p := r.ui.Parameters(); p.HoldCurrent != 5 || p.BlankOffTime != 200 {
		t.Errorf("Parameters %+v", p)
	}
	if r.st.Driver().BlankOffTime() != 200 {
		t.Errorf("Blank off time not applied: %d", r.st.Driver().BlankOffTime())
	}
}

func TestControlModeApplied(t *testing.T) {
	r := newRig(t)
	r.set(t, protocol.ParamPWMFrequency, 0x40, 0x9c) // 40000, clamps to 32000
	r.set(t, protocol.ParamControlMode, byte(stepseq.ControlOpenPWM))

	m := r.st.Sequencer().Modes()
	if m.Control != stepseq.ControlOpenPWM || m.PWMFreq != 32000 {
		t.Errorf("Modes %+v", m)
	}
	if r.st.Driver().Period() != 1562 {
		t.Errorf("Period %d, want 1562", r.st.Driver().Period())
	}
}

func TestTargetRequiresRun(t *testing.T) {
	r := newRig(t)
	r.set(t, protocol.ParamTargetPos, 0x00, 0x64, 0x00, 0x00)
	if got := r.get(t, protocol.ParamTargetPos); got != 0 {
		t.Errorf("Target %#x accepted while disabled", got)
	}

	r.exchange(t, protocol.CmdRun)
	if !r.st.Enabled() {
		t.Fatal("Run did not enable")
	}
	r.set(t, protocol.ParamTargetPos, 0x00, 0xfe, 0xff, 0xff) // -512
	if got := int32(r.get(t, protocol.ParamTargetPos)); got != -512 {
		t.Errorf("Target %d, want -512", got)
	}
	if r.st.Sequencer().Status() == stepseq.PhaseStop {
		t.Fatal("Motor did not start")
	}

	// mode changes are refused while moving and read back
	r.set(t, protocol.ParamStepMode, byte(stepseq.StepMicro))
	if got := r.get(t, protocol.ParamStepMode); got != uint32(stepseq.StepHalf) {
		t.Errorf("Step mode %d changed while moving", got)
	}
	if got := r.get(t, protocol.ParamMotorStatus); got != uint32(stepseq.PhaseAccel) {
		t.Errorf("Motor status %d", got)
	}

	r.exchange(t, protocol.CmdEmergencyStop)
	if r.st.Enabled() || r.st.Sequencer().Status() != stepseq.PhaseStop {
		t.Error("Emergency stop left the motor running")
	}
}

func TestRunStop(t *testing.T) {
	r := newRig(t)
	if _, ok := r.exchange(t, protocol.CmdRun); !ok || !r.st.Enabled() {
		t.Fatal("Run failed")
	}
	if _, ok := r.exchange(t, protocol.CmdStop); !ok || r.st.Enabled() {
		t.Error("Stop failed")
	}
}

func TestOffboardSwitchZeroesPosition(t *testing.T) {
	r := newRig(t)
	r.set(t, protocol.ParamUseOnboardUI, 1)
	r.st.ResetPosition(0x1400)
	if got := r.get(t, protocol.ParamCurrentPos); got != 0x1400 {
		t.Fatalf("Position %#x", got)
	}

	r.set(t, protocol.ParamUseOnboardUI, 0)
	if got := r.get(t, protocol.ParamCurrentPos); got != 0 {
		t.Errorf("Position %#x after switching off-board", got)
	}
	if r.st.Enabled() {
		t.Error("Motor left enabled")
	}
}

func TestDataStream(t *testing.T) {
	r := newRig(t)

	resp, _ := r.exchange(t, protocol.CmdGetDataItems)
	want := []byte{0x07, 2, 0x03, 2, 0x04, 2, 0x05, 4, 0x09, 1, 0x08, 1, 0x0b, 1, 0x0c, 2}
	if !bytes.Equal(resp, want) {
		t.Errorf("Data items %x, want %x", resp, want)
	}

	r.exchange(t, protocol.CmdEnableDataItem, protocol.DataTemperature)
	r.exchange(t, protocol.CmdEnableDataItem, protocol.DataBusVoltage)
	r.exchange(t, protocol.CmdEnableDataItem, 0x20)
	r.exchange(t, protocol.CmdStartDataStream)
	if !r.ui.Streaming() {
		t.Fatal("Stream not started")
	}

	r.bus.mV = 24300
	r.bus.temp = -5
	r.out.Reset()
	for i := 0; i < dataInterval; i++ {
		r.ui.Tick()
	}
	if len(r.out.Result()) != 0 {
		t.Fatalf("Early data frame %x", r.out.Result())
	}
	r.ui.Tick()
	frame := r.out.Result()
	// bus voltage then temperature, in item table order
	wantFrame := []byte{protocol.TagData, 7, 0xec, 0x5e, 0xfb, 0xff}
	wantFrame = append(wantFrame, protocol.Checksum(wantFrame))
	if !bytes.Equal(frame, wantFrame) {
		t.Errorf("Data frame %x, want %x", frame, wantFrame)
	}

	r.exchange(t, protocol.CmdDisableDataItem, protocol.DataTemperature)
	r.exchange(t, protocol.CmdStopDataStream)
	r.out.Reset()
	for i := 0; i <= dataInterval; i++ {
		r.ui.Tick()
	}
	if len(r.out.Result()) != 0 {
		t.Errorf("Data frame %x after stop", r.out.Result())
	}
}

func TestSaveLoad(t *testing.T) {
	r := newRig(t)
	r.set(t, protocol.ParamTargetSpeed, 0x90, 0x01)
	r.set(t, protocol.ParamStepMode, byte(stepseq.StepMicro))
	if _, ok := r.exchange(t, protocol.CmdSaveParams); !ok {
		t.Fatal("No reply to save")
	}

	r.set(t, protocol.ParamTargetSpeed, 0xf4, 0x01)
	r.set(t, protocol.ParamStepMode, byte(stepseq.StepFull))
	if _, ok := r.exchange(t, protocol.CmdLoadParams); !ok {
		t.Fatal("No reply to load")
	}
	if got := r.get(t, protocol.ParamTargetSpeed); got != 400 {
		t.Errorf("Loaded speed %d, want 400", got)
	}
	if m := r.st.Sequencer().Modes(); m.Step != stepseq.StepMicro {
		t.Errorf("Loaded step mode %s not applied", m.Step)
	}
}

func TestLoadSaveFailuresAreReported(t *testing.T) {
	r := newRig(t)
	resp, ok := r.exchange(t, protocol.CmdLoadParams)
	if !ok || !bytes.Equal(resp, []byte{protocol.ReplyFailed}) {
		t.Errorf("Load from an empty store answered %x (%v), want failure", resp, ok)
	}

	u := New(r.st, nil, nil, 24000, r.out)
	r.ui = u
	resp, ok = r.exchange(t, protocol.CmdSaveParams)
	if !ok || !bytes.Equal(resp, []byte{protocol.ReplyFailed}) {
		t.Errorf("Save without a store answered %x (%v), want failure", resp, ok)
	}
}

func TestLoadWithoutStore(t *testing.T) {
	st := stepper.New(stepctrl.NewDriver(nopStage{}), nopTimer{}, nopComparator{})
	u := New(st, nil, nil, 24000, protocol.NewScratchOutput())
	if err := u.LoadParams(); err != ErrNoStore {
		t.Errorf("LoadParams = %v, want ErrNoStore", err)
	}
	if err := u.SaveParams(); err != ErrNoStore {
		t.Errorf("SaveParams = %v, want ErrNoStore", err)
	}
}
