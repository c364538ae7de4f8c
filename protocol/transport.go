package protocol

import "errors"

// ErrNoReply is returned by a CommandHandler that answers nothing
var ErrNoReply = errors.New("protocol: no reply")

// ReplyFailed is the single byte status payload of a command that failed.
// Only commands whose success reply is empty report failures.
const ReplyFailed = 0xff

// Failure wraps a handler error that is reported to the host with a
// ReplyFailed status. Other handler errors get no reply.
type Failure struct {
	Err error
}

func (f *Failure) Error() string { return "command failed: " + f.Err.Error() }

func (f *Failure) Unwrap() error { return f.Err }

// CommandHandler runs one command and returns the status payload
type CommandHandler func(cmd byte, data []byte) ([]byte, error)

// Transport is the drive side of the serial link. It scans received bytes
// for command frames and answers each with a status frame.
type Transport struct {
	output  OutputBuffer
	handler CommandHandler

	flushCallback func()

	received, rejected uint32
}

func NewTransport(output OutputBuffer, handler CommandHandler) *Transport {
	return &Transport{output: output, handler: handler}
}

// Receive consumes every complete command frame in input. Bytes that do
// not start a valid frame are skipped one at a time; an incomplete frame
// is left for the next call.
func (t *Transport) Receive(input InputBuffer) {
	data := input.Data()

	for len(data) > 0 {
		if data[0] != TagCommand {
			data = data[1:]
			continue
		}
		if len(data) < 2 {
			break
		}
		size := int(data[1])
		if size < FrameMin || size > FrameMax {
			t.rejected++
			data = data[1:]
			continue
		}
		if len(data) < size {
			break
		}
		if Sum(data[:size]) != 0 {
			t.rejected++
			data = data[1:]
			continue
		}

		t.received++
		t.dispatch(data[2], data[3:size-1])
		data = data[size:]
	}

	if consumed := input.Available() - len(data); consumed > 0 {
		input.Pop(consumed)
	}
}

func (t *Transport) dispatch(cmd byte, payload []byte) {
	// a panicking handler must not take the link down
	defer func() {
		_ = recover()
	}()

	if t.handler == nil {
		return
	}
	resp, err := t.handler(cmd, payload)
	if err != nil {
		var failure *Failure
		if errors.As(err, &failure) {
			t.SendStatus(cmd, []byte{ReplyFailed})
		}
		return
	}
	t.SendStatus(cmd, resp)
}

// SendStatus emits a status frame. Payloads too large for one frame are
// truncated.
func (t *Transport) SendStatus(cmd byte, payload []byte) {
	if len(payload) > FrameMax-FrameMin {
		payload = payload[:FrameMax-FrameMin]
	}
	t.encode([]byte{TagStatus, 0, cmd}, payload)
}

// SendData emits a real-time data frame
func (t *Transport) SendData(items []byte) {
	if len(items) > FrameMax-DataFrameMin {
		items = items[:FrameMax-DataFrameMin]
	}
	t.encode([]byte{TagData, 0}, items)
}

func (t *Transport) encode(header, body []byte) {
	cursor := t.output.CurPosition()
	t.output.Output(header)
	t.output.Output(body)
	t.output.Update(cursor+1, byte(len(header)+len(body)+1))
	t.output.Output([]byte{Checksum(t.output.DataSince(cursor))})

	if t.flushCallback != nil {
		t.flushCallback()
	}
}

// SetFlushCallback sets a function called after every frame, for links
// that must push replies out immediately
func (t *Transport) SetFlushCallback(callback func()) {
	t.flushCallback = callback
}

// Stats returns the number of accepted and rejected command frames
func (t *Transport) Stats() (received, rejected uint32) {
	return t.received, t.rejected
}

// EncodeCommand builds a command frame
func EncodeCommand(cmd byte, payload []byte) ([]byte, error) {
	if len(payload) > FrameMax-FrameMin {
		return nil, errors.New("protocol: payload too long")
	}
	frame := make([]byte, 0, len(payload)+FrameMin)
	frame = append(frame, TagCommand, byte(len(payload)+FrameMin), cmd)
	frame = append(frame, payload...)
	return append(frame, Checksum(frame)), nil
}
