// Package serial opens the link to a drive: a native serial port or, for
// the simulator, a TCP connection.
package serial

import (
	"io"
	"strings"
)

// Port is an open link to a drive
type Port interface {
	io.ReadWriteCloser

	// Flush pushes out buffered data
	Flush() error
}

// Config holds link configuration
type Config struct {
	// Device path ("/dev/ttyACM0", "COM3") or "tcp://host:port"
	Device string

	// Baud rate, ignored for USB CDC and TCP
	Baud int

	// Read timeout in milliseconds (0 = blocking)
	ReadTimeout int
}

// DefaultConfig returns the configuration of the drive's UART
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 100,
	}
}

const tcpScheme = "tcp://"

// IsTCP reports whether device names a TCP endpoint
func IsTCP(device string) bool {
	return strings.HasPrefix(device, tcpScheme)
}
