package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestDecodeFrame(t *testing.T) {
	status := []byte{TagStatus, 5, CmdGetParamValue, 0x2a}
	status = append(status, Checksum(status))
	data := []byte{TagData, 4, 0x07}
	data = append(data, Checksum(data))
	cmd, _ := EncodeCommand(CmdRun, nil)

	tests := []struct {
		name    string
		in      []byte
		tag     byte
		cmd     byte
		payload []byte
		n       int
		err     error
	}{
		{"status", status, TagStatus, CmdGetParamValue, []byte{0x2a}, 5, nil},
		{"data", data, TagData, 0, []byte{0x07}, 4, nil},
		{"command", cmd, TagCommand, CmdRun, []byte{}, 4, nil},
		{"trailing bytes", append(append([]byte(nil), status...), 0xff), TagStatus, CmdGetParamValue, []byte{0x2a}, 5, nil},
		{"empty", nil, 0, 0, nil, 0, ErrShortFrame},
		{"truncated", status[:3], 0, 0, nil, 0, ErrShortFrame},
		{"bad tag", []byte{0x12, 4, 0, 0}, 0, 0, nil, 0, ErrBadFrame},
		{"bad size", []byte{TagStatus, 2, 0, 0}, 0, 0, nil, 0, ErrBadFrame},
		{"bad checksum", []byte{TagStatus, 4, 0, 0}, 0, 0, nil, 0, ErrBadFrame},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, n, err := DecodeFrame(tt.in)
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Errorf("Error %v, want %v", err, tt.err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if n != tt.n || f.Tag != tt.tag || f.Cmd != tt.cmd || !bytes.Equal(f.Payload, tt.payload) {
				t.Errorf("Got %+v (%d bytes)", f, n)
			}
		})
	}
}
