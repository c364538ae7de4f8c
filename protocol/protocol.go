// Package protocol implements the serial framing of the drive's user
// interface. Every frame is a tag byte, a size byte counting the whole
// frame, the body and a checksum byte that makes all bytes sum to zero.
package protocol

import "errors"

// Frame tags
const (
	TagCommand = 0xff // host to drive
	TagStatus  = 0xfe // drive reply to a command
	TagData    = 0xfd // drive real-time data stream
)

// Frame limits. Command and status frames carry a command byte, data
// frames do not.
const (
	FrameMin     = 4
	DataFrameMin = 3
	FrameMax     = 63
)

// Command IDs
const (
	CmdIDTarget        = 0x00
	CmdUpgrade         = 0x01
	CmdDiscoverTarget  = 0x02
	CmdGetParams       = 0x10
	CmdGetParamDesc    = 0x11
	CmdGetParamValue   = 0x12
	CmdSetParamValue   = 0x13
	CmdLoadParams      = 0x14
	CmdSaveParams      = 0x15
	CmdGetDataItems    = 0x20
	CmdEnableDataItem  = 0x21
	CmdDisableDataItem = 0x22
	CmdStartDataStream = 0x23
	CmdStopDataStream  = 0x24
	CmdRun             = 0x30
	CmdStop            = 0x31
	CmdEmergencyStop   = 0x32
)

// Target types answered to CmdIDTarget
const (
	TargetBLDC    = 0x00
	TargetStepper = 0x01
	TargetACIM    = 0x02
)

// Frame is a decoded frame. Cmd is unused for data frames.
type Frame struct {
	Tag     byte
	Cmd     byte
	Payload []byte
}

// Sum returns the 8 bit sum of b
func Sum(b []byte) byte {
	var s byte
	for _, v := range b {
		s += v
	}
	return s
}

// Checksum returns the byte that makes b sum to zero
func Checksum(b []byte) byte {
	return -Sum(b)
}

var (
	// ErrShortFrame means more bytes are needed to complete the frame
	ErrShortFrame = errors.New("protocol: incomplete frame")

	// ErrBadFrame means the first byte does not start a valid frame
	ErrBadFrame = errors.New("protocol: invalid frame")
)

// DecodeFrame decodes the frame at the start of b and returns it with the
// number of bytes it spans. The payload aliases b.
func DecodeFrame(b []byte) (*Frame, int, error) {
	if len(b) == 0 {
		return nil, 0, ErrShortFrame
	}
	tag := b[0]
	minSize := FrameMin
	switch tag {
	case TagCommand, TagStatus:
	case TagData:
		minSize = DataFrameMin
	default:
		return nil, 0, ErrBadFrame
	}
	if len(b) < 2 {
		return nil, 0, ErrShortFrame
	}
	size := int(b[1])
	if size < minSize || size > FrameMax {
		return nil, 0, ErrBadFrame
	}
	if len(b) < size {
		return nil, 0, ErrShortFrame
	}
	if Sum(b[:size]) != 0 {
		return nil, 0, ErrBadFrame
	}

	if tag == TagData {
		return &Frame{Tag: tag, Payload: b[2 : size-1]}, size, nil
	}
	return &Frame{Tag: tag, Cmd: b[2], Payload: b[3 : size-1]}, size, nil
}
