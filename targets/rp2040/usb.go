//go:build rp2040

package main

import (
	"machine"
	"time"
)

// usbStream adapts the USB CDC port to the blocking io.ReadWriter a
// ui.Link expects
type usbStream struct {
	failures uint32
}

func initUSB() *usbStream {
	machine.Serial.Configure(machine.UARTConfig{})
	return &usbStream{}
}

// Read waits for at least one byte, yielding to the other goroutines
func (u *usbStream) Read(p []byte) (int, error) {
	for machine.Serial.Buffered() == 0 {
		time.Sleep(100 * time.Microsecond)
	}
	n := 0
	for n < len(p) && machine.Serial.Buffered() > 0 {
		b, err := machine.Serial.ReadByte()
		if err != nil {
			return n, err
		}
		p[n] = b
		n++
	}
	return n, nil
}

// Write drops the data once the host has stopped reading, so a detached
// port cannot stall the drive
func (u *usbStream) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n, err := machine.Serial.Write(p[written:])
		if err != nil || n == 0 {
			u.failures++
			if u.failures > 10 {
				return len(p), nil
			}
			time.Sleep(time.Millisecond)
			continue
		}
		u.failures = 0
		written += n
	}
	return written, nil
}
