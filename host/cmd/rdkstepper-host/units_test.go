package main

import (
	"testing"

	"rdkstepper/host/drive"
	"rdkstepper/protocol"
)

func TestParseParam(t *testing.T) {
	tests := []struct {
		id      byte
		in      string
		want    uint32
		wantErr bool
	}{
		{protocol.ParamTargetCurrent, "1.2A", 1200, false},
		{protocol.ParamTargetCurrent, "800mA", 800, false},
		{protocol.ParamTargetCurrent, "1500", 1500, false},
		{protocol.ParamPWMFrequency, "25kHz", 25000, false},
		{protocol.ParamResistance, "750mOhm", 750, false},
		{protocol.ParamBlankOff, "100us", 100, false},
		{protocol.ParamTargetPos, "-512", 0xfffffe00, false},
		{protocol.ParamTargetSpeed, "fast", 0, true},
		{protocol.ParamTargetCurrent, "3V", 0, true},
	}
	for _, tt := range tests {
		t.Run(protocol.ParamName(tt.id)+"/"+tt.in, func(t *testing.T) {
			got, err := parseParam(drive.ParamDesc{ID: tt.id, Size: 2}, tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error, got %d", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("Got %d, want %d", got, tt.want)
			}
		})
	}
}
