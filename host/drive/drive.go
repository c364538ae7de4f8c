// Package drive is the host side client of the drive's serial user
// interface.
package drive

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"rdkstepper/host/serial"
	"rdkstepper/protocol"
)

// DefaultTimeout is how long a request waits for its status reply
const DefaultTimeout = time.Second

var ErrNotConnected = errors.New("not connected to drive")

// ErrCommandFailed is returned when the drive reports that a command failed
var ErrCommandFailed = errors.New("drive reported failure")

// ParamDesc describes a drive parameter
type ParamDesc struct {
	ID       byte
	Size     int
	Min, Max uint32
	Step     uint32
}

// ReadOnly reports whether the drive rejects writes to the parameter
func (d ParamDesc) ReadOnly() bool { return d.Step == 0 }

// Signed reports whether the parameter range is signed
func (d ParamDesc) Signed() bool { return d.Min > d.Max }

// DataItem is one entry of the real-time data stream
type DataItem struct {
	ID   byte
	Size int
}

// Sample is one decoded real-time data frame, keyed by item ID
type Sample map[byte]uint32

// Drive is a connection to a stepper drive
type Drive struct {
	transport *protocol.HostTransport
	port      serial.Port
	timeout   time.Duration

	// enabled stream items in frame order
	mu      sync.Mutex
	items   []DataItem
	streamC chan Sample

	connected bool
}

func NewDrive() *Drive {
	return &Drive{timeout: DefaultTimeout}
}

// Connect opens device and checks that a stepper drive answers
func (d *Drive) Connect(device string) error {
	return d.ConnectWithConfig(serial.DefaultConfig(device))
}

// ConnectWithConfig connects with a custom link configuration
func (d *Drive) ConnectWithConfig(cfg *serial.Config) error {
	port, err := serial.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open link: %w", err)
	}
	d.Attach(port)

	target, err := d.Identify()
	if err != nil {
		d.Close()
		return err
	}
	if target != protocol.TargetStepper {
		d.Close()
		return fmt.Errorf("target type %d is not a stepper drive", target)
	}
	return nil
}

// Attach uses an already open link
func (d *Drive) Attach(port serial.Port) {
	d.port = port
	d.transport = protocol.NewHostTransport(port)
	d.transport.SetDataHandler(d.handleData)
	d.streamC = make(chan Sample, 64)
	d.connected = true
}

// SetTimeout changes the reply timeout
func (d *Drive) SetTimeout(timeout time.Duration) {
	d.timeout = timeout
}

func (d *Drive) Close() error {
	d.connected = false
	if d.transport != nil {
		return d.transport.Close()
	}
	return nil
}

func (d *Drive) IsConnected() bool {
	return d.connected
}

func (d *Drive) request(cmd byte, payload ...byte) ([]byte, error) {
	if !d.connected {
		return nil, ErrNotConnected
	}
	resp, err := d.transport.Request(cmd, payload, d.timeout)
	if err != nil {
		return nil, err
	}
	return resp.Payload, nil
}

// command sends a command whose success reply is empty
func (d *Drive) command(cmd byte, payload ...byte) error {
	resp, err := d.request(cmd, payload...)
	if err != nil {
		return err
	}
	if len(resp) == 1 && resp[0] == protocol.ReplyFailed {
		return ErrCommandFailed
	}
	return nil
}

// Identify returns the target type of the drive
func (d *Drive) Identify() (byte, error) {
	resp, err := d.request(protocol.CmdIDTarget)
	if err != nil {
		return 0, fmt.Errorf("identify: %w", err)
	}
	if len(resp) != 1 {
		return 0, fmt.Errorf("identify: %d byte reply", len(resp))
	}
	return resp[0], nil
}

// ParamIDs lists the drive's parameters
func (d *Drive) ParamIDs() ([]byte, error) {
	resp, err := d.request(protocol.CmdGetParams)
	if err != nil {
		return nil, fmt.Errorf("get params: %w", err)
	}
	return resp, nil
}

// Describe fetches the size, range and step of a parameter
func (d *Drive) Describe(id byte) (ParamDesc, error) {
	resp, err := d.request(protocol.CmdGetParamDesc, id)
	if err != nil {
		return ParamDesc{}, fmt.Errorf("describe 0x%02x: %w", id, err)
	}
	if len(resp) == 0 || resp[0] == 0 {
		return ParamDesc{}, fmt.Errorf("describe 0x%02x: unknown parameter", id)
	}
	desc := ParamDesc{ID: id, Size: int(resp[0])}
	n := desc.Size
	if n > 4 {
		return desc, nil
	}
	if len(resp) != 1+3*n {
		return ParamDesc{}, fmt.Errorf("describe 0x%02x: %d byte reply", id, len(resp))
	}
	desc.Min = protocol.Value(resp[1 : 1+n])
	desc.Max = protocol.Value(resp[1+n : 1+2*n])
	desc.Step = protocol.Value(resp[1+2*n:])
	return desc, nil
}

// Get reads a parameter value
func (d *Drive) Get(id byte) (uint32, error) {
	resp, err := d.request(protocol.CmdGetParamValue, id)
	if err != nil {
		return 0, fmt.Errorf("get 0x%02x: %w", id, err)
	}
	if len(resp) == 0 {
		return 0, fmt.Errorf("get 0x%02x: unknown parameter", id)
	}
	return protocol.Value(resp), nil
}

// Set writes a parameter value. The drive clamps it to range; read it
// back to see what took effect.
func (d *Drive) Set(id byte, value uint32, size int) error {
	payload := protocol.AppendValue([]byte{id}, value, size)
	if err := d.command(protocol.CmdSetParamValue, payload...); err != nil {
		return fmt.Errorf("set 0x%02x: %w", id, err)
	}
	return nil
}

// Run enables the motor
func (d *Drive) Run() error {
	return d.command(protocol.CmdRun)
}

// Stop decelerates the motor and disables it
func (d *Drive) Stop() error {
	return d.command(protocol.CmdStop)
}

// EmergencyStop removes motor power at once
func (d *Drive) EmergencyStop() error {
	return d.command(protocol.CmdEmergencyStop)
}

// Save stores the parameters in the drive's non-volatile memory
func (d *Drive) Save() error {
	if err := d.command(protocol.CmdSaveParams); err != nil {
		return fmt.Errorf("save params: %w", err)
	}
	return nil
}

// Load restores the saved parameters. It fails while the motor is moving
// or when nothing has been saved.
func (d *Drive) Load() error {
	if err := d.command(protocol.CmdLoadParams); err != nil {
		return fmt.Errorf("load params: %w", err)
	}
	return nil
}

// DataItems lists the items the drive can stream
func (d *Drive) DataItems() ([]DataItem, error) {
	resp, err := d.request(protocol.CmdGetDataItems)
	if err != nil {
		return nil, fmt.Errorf("get data items: %w", err)
	}
	if len(resp)%2 != 0 {
		return nil, fmt.Errorf("get data items: odd reply length %d", len(resp))
	}
	items := make([]DataItem, 0, len(resp)/2)
	for i := 0; i < len(resp); i += 2 {
		items = append(items, DataItem{ID: resp[i], Size: int(resp[i+1])})
	}
	return items, nil
}

// EnableItem adds an item to the data stream
func (d *Drive) EnableItem(id byte) error {
	return d.command(protocol.CmdEnableDataItem, id)
}

// DisableItem removes an item from the data stream
func (d *Drive) DisableItem(id byte) error {
	return d.command(protocol.CmdDisableDataItem, id)
}

// StartStream turns the data stream on. items are the enabled items in
// the drive's table order, used to split the frames.
func (d *Drive) StartStream(items []DataItem) (<-chan Sample, error) {
	d.mu.Lock()
	d.items = append([]DataItem(nil), items...)
	d.mu.Unlock()
	if err := d.command(protocol.CmdStartDataStream); err != nil {
		return nil, err
	}
	return d.streamC, nil
}

// StopStream turns the data stream off
func (d *Drive) StopStream() error {
	return d.command(protocol.CmdStopDataStream)
}

func (d *Drive) handleData(frame []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := make(Sample, len(d.items))
	for _, it := range d.items {
		if len(frame) < it.Size {
			return
		}
		s[it.ID] = protocol.Value(frame[:it.Size])
		frame = frame[it.Size:]
	}
	select {
	case d.streamC <- s:
	default:
		// reader too slow, drop the sample
	}
}
