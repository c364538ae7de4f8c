package ui

import (
	"io"
	"sync"

	"rdkstepper/protocol"
)

// Link serves a UI over a byte stream such as a TCP connection or a USB
// CDC port, one stream at a time. Every call into the UI goes through the
// lock function so it can be serialized with the motor's interrupts.
type Link struct {
	lock func(func())

	in  *protocol.FifoBuffer
	out *protocol.ScratchOutput

	// frames waiting to be written, guarded by lock
	pending []byte

	writeMu sync.Mutex
	rw      io.ReadWriter
}

// NewLink creates a link. lock may be nil when nothing else touches the
// motor concurrently.
func NewLink(lock func(func())) *Link {
	if lock == nil {
		lock = func(f func()) { f() }
	}
	return &Link{
		lock: lock,
		in:   protocol.NewFifoBuffer(1024),
		out:  protocol.NewScratchOutput(),
	}
}

// Output is the buffer to hand to New
func (l *Link) Output() protocol.OutputBuffer {
	return l.out
}

// Attach moves each frame the UI emits to the pending queue
func (l *Link) Attach(u *UI) {
	u.Transport().SetFlushCallback(func() {
		l.pending = append(l.pending, l.out.Result()...)
		l.out.Reset()
	})
}

// Serve reads commands from rw until it fails, answering each. Data
// frames go to rw while it is served and are dropped otherwise.
func (l *Link) Serve(u *UI, rw io.ReadWriter) error {
	l.writeMu.Lock()
	l.rw = rw
	l.writeMu.Unlock()
	defer func() {
		l.writeMu.Lock()
		l.rw = nil
		l.writeMu.Unlock()
	}()
	l.lock(l.in.Reset)

	buf := make([]byte, 256)
	for {
		n, err := rw.Read(buf)
		if n > 0 {
			l.lock(func() {
				for data := buf[:n]; len(data) > 0; {
					w := l.in.Write(data)
					u.Receive(l.in)
					if w == 0 {
						// ring full of garbage with no frame start
						l.in.Reset()
					}
					data = data[w:]
				}
			})
			if ferr := l.Flush(); ferr != nil {
				return ferr
			}
		}
		if err != nil {
			return err
		}
	}
}

// Tick runs the periodic UI task and writes out any data frame
func (l *Link) Tick(u *UI) error {
	l.lock(u.Tick)
	return l.Flush()
}

// Flush writes the pending frames
func (l *Link) Flush() error {
	var data []byte
	l.lock(func() {
		data = l.pending
		l.pending = nil
	})
	if len(data) == 0 {
		return nil
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if l.rw == nil {
		return nil
	}
	_, err := l.rw.Write(data)
	return err
}
