package protocol

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// ErrClosed is returned by requests on a closed transport
var ErrClosed = errors.New("transport closed")

// DataHandler receives the items of every real-time data frame
type DataHandler func(items []byte)

// HostTransport is the host side of the serial link. A background reader
// splits the byte stream into status replies and data frames.
type HostTransport struct {
	port io.ReadWriteCloser

	input     *FifoBuffer
	responses chan *Frame

	dataMu      sync.Mutex
	dataHandler DataHandler

	// one request in flight at a time
	requestMu sync.Mutex

	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
}

func NewHostTransport(port io.ReadWriteCloser) *HostTransport {
	t := &HostTransport{
		port:      port,
		input:     NewFifoBuffer(1024),
		responses: make(chan *Frame, 16),
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// Request sends a command and waits for the status frame answering it.
// Status frames for other commands are discarded.
func (t *HostTransport) Request(cmd byte, payload []byte, timeout time.Duration) (*Frame, error) {
	t.requestMu.Lock()
	defer t.requestMu.Unlock()

	frame, err := EncodeCommand(cmd, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to build command 0x%02x: %w", cmd, err)
	}

	t.drain()
	if err := t.write(frame); err != nil {
		return nil, fmt.Errorf("failed to write command 0x%02x: %w", cmd, err)
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case resp := <-t.responses:
			if resp.Cmd == cmd {
				return resp, nil
			}
		case <-deadline.C:
			return nil, fmt.Errorf("no reply to command 0x%02x after %v", cmd, timeout)
		case <-t.stopChan:
			return nil, ErrClosed
		}
	}
}

// Send writes a command without waiting for its reply
func (t *HostTransport) Send(cmd byte, payload []byte) error {
	frame, err := EncodeCommand(cmd, payload)
	if err != nil {
		return err
	}
	return t.write(frame)
}

func (t *HostTransport) write(frame []byte) error {
	n, err := t.port.Write(frame)
	if err != nil {
		return err
	}
	if n != len(frame) {
		return fmt.Errorf("incomplete write: %d/%d bytes", n, len(frame))
	}
	return nil
}

func (t *HostTransport) drain() {
	for {
		select {
		case <-t.responses:
		default:
			return
		}
	}
}

// SetDataHandler sets the callback for real-time data frames
func (t *HostTransport) SetDataHandler(handler DataHandler) {
	t.dataMu.Lock()
	t.dataHandler = handler
	t.dataMu.Unlock()
}

func (t *HostTransport) readLoop() {
	defer close(t.doneChan)

	buf := make([]byte, 256)
	for {
		select {
		case <-t.stopChan:
			return
		default:
		}

		n, err := t.port.Read(buf)
		if n > 0 {
			t.input.Write(buf[:n])
			t.scan()
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				t.stop()
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// scan extracts status and data frames from the input ring
func (t *HostTransport) scan() {
	data := t.input.Data()

	for len(data) > 0 {
		f, n, err := DecodeFrame(data)
		if errors.Is(err, ErrShortFrame) {
			break
		}
		if err != nil || f.Tag == TagCommand {
			data = data[1:]
			continue
		}

		payload := append([]byte(nil), f.Payload...)
		if f.Tag == TagData {
			t.dataMu.Lock()
			h := t.dataHandler
			t.dataMu.Unlock()
			if h != nil {
				h(payload)
			}
		} else {
			t.deliver(&Frame{Tag: f.Tag, Cmd: f.Cmd, Payload: payload})
		}
		data = data[n:]
	}

	if consumed := t.input.Available() - len(data); consumed > 0 {
		t.input.Pop(consumed)
	}
}

func (t *HostTransport) deliver(f *Frame) {
	select {
	case t.responses <- f:
	default:
		// drop the oldest reply
		select {
		case <-t.responses:
		default:
		}
		t.responses <- f
	}
}

func (t *HostTransport) stop() {
	t.stopOnce.Do(func() { close(t.stopChan) })
}

// Close stops the reader and closes the port
func (t *HostTransport) Close() error {
	t.stop()
	var err error
	if t.port != nil {
		err = t.port.Close()
	}
	<-t.doneChan
	return err
}
