package protocol

import (
	"bytes"
	"errors"
	"testing"
)

type call struct {
	cmd  byte
	data []byte
}

func newTestTransport(h CommandHandler) (*Transport, *ScratchOutput) {
	out := NewScratchOutput()
	return NewTransport(out, h), out
}

func TestEncodeCommand(t *testing.T) {
	frame, err := EncodeCommand(CmdIDTarget, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(frame, []byte{0xff, 0x04, 0x00, 0xfd}) {
		t.Errorf("Frame %x", frame)
	}
	if Sum(frame) != 0 {
		t.Error("Frame does not sum to zero")
	}
	if _, err := EncodeCommand(CmdSetParamValue, make([]byte, 60)); err == nil {
		t.Error("Oversized payload accepted")
	}
}

func TestTransportDispatch(t *testing.T) {
	var calls []call
	tr, out := newTestTransport(func(cmd byte, data []byte) ([]byte, error) {
		calls = append(calls, call{cmd, append([]byte(nil), data...)})
		return []byte{TargetStepper}, nil
	})

	frame, _ := EncodeCommand(CmdIDTarget, nil)
	in := NewSliceInputBuffer(frame)
	tr.Receive(in)

	if len(calls) != 1 || calls[0].cmd != CmdIDTarget || len(calls[0].data) != 0 {
		t.Fatalf("Unexpected calls %v", calls)
	}
	if in.Available() != 0 {
		t.Errorf("%d bytes left in input", in.Available())
	}
	want := []byte{0xfe, 0x05, 0x00, 0x01, 0xfc}
	if !bytes.Equal(out.Result(), want) {
		t.Errorf("Reply %x, want %x", out.Result(), want)
	}
}

func TestTransportResync(t *testing.T) {
	var calls []call
	tr, _ := newTestTransport(func(cmd byte, data []byte) ([]byte, error) {
		calls = append(calls, call{cmd, append([]byte(nil), data...)})
		return nil, nil
	})

	good, _ := EncodeCommand(CmdGetParamValue, []byte{0x08})
	bad := append([]byte(nil), good...)
	bad[len(bad)-1]++

	var stream []byte
	stream = append(stream, 0x00, 0x42)       // noise
	stream = append(stream, 0xff, 0x02, 0x10) // size below minimum
	stream = append(stream, bad...)
	stream = append(stream, good...)
	stream = append(stream, good[:3]...) // partial

	in := NewSliceInputBuffer(stream)
	tr.Receive(in)

	if len(calls) != 1 || calls[0].cmd != CmdGetParamValue || !bytes.Equal(calls[0].data, []byte{0x08}) {
		t.Errorf("Unexpected calls %v", calls)
	}
	if in.Available() != 3 {
		t.Errorf("Partial frame not kept, %d bytes left", in.Available())
	}
	received, rejected := tr.Stats()
	if received != 1 || rejected < 2 {
		t.Errorf("Stats received=%d rejected=%d", received, rejected)
	}
}

func TestTransportNoReply(t *testing.T) {
	tr, out := newTestTransport(func(cmd byte, data []byte) ([]byte, error) {
		if cmd == CmdUpgrade {
			panic("upgrade")
		}
		return nil, ErrNoReply
	})

	a, _ := EncodeCommand(0x7f, nil)
	b, _ := EncodeCommand(CmdUpgrade, nil)
	tr.Receive(NewSliceInputBuffer(append(a, b...)))

	if out.CurPosition() != 0 {
		t.Errorf("Unexpected output %x", out.Result())
	}
}

func TestTransportFailureReply(t *testing.T) {
	tr, out := newTestTransport(func(cmd byte, data []byte) ([]byte, error) {
		return nil, &Failure{Err: errors.New("store empty")}
	})

	frame, _ := EncodeCommand(CmdLoadParams, nil)
	tr.Receive(NewSliceInputBuffer(frame))

	want := []byte{TagStatus, 5, CmdLoadParams, ReplyFailed}
	want = append(want, Checksum(want))
	if !bytes.Equal(out.Result(), want) {
		t.Errorf("Reply %x, want %x", out.Result(), want)
	}
}

func TestTransportDataFrame(t *testing.T) {
	tr, out := newTestTransport(nil)
	flushed := 0
	tr.SetFlushCallback(func() { flushed++ })

	tr.SendData([]byte{1, 2})
	want := []byte{0xfd, 0x05, 0x01, 0x02, 0xfb}
	if !bytes.Equal(out.Result(), want) {
		t.Errorf("Data frame %x, want %x", out.Result(), want)
	}
	if flushed != 1 {
		t.Errorf("Flushed %d times", flushed)
	}
}
