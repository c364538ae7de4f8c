package core

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// TimingEvent captures a control event for post-mortem analysis
type TimingEvent struct {
	EventType uint8  // Event type code
	Source    uint8  // Winding index or 0 for the sequencer
	Clock     uint32 // Step count or scheduler clock at the event
	Value1    int32  // Context-dependent value
	Value2    int32  // Context-dependent value
}

// Event type codes
const (
	EvtStep     = 1 // step timer fired: position, step time
	EvtPhase    = 2 // profile phase change: new phase, position
	EvtMove     = 3 // move planned: target, move steps
	EvtDeferred = 4 // move deferred behind a stop: target, position
	EvtStop     = 5 // graceful stop planned: stop position, decel steps
	EvtShutdown = 6 // immediate shutdown: position, 0
	EvtChopTrip = 7 // chopper over threshold: sample, blank extension
	EvtFault    = 8 // overcurrent comparator trip: position, flags
)

const (
	TimingRingSize = 32 // Keep last 32 events for post-mortem
)

var (
	// debugPrintln is the global debug print function (can be set by platform code)
	debugPrintln DebugWriter = func(s string) {}

	// Disabled by default; main enables it once a writer is set
	debugEnabled bool = false

	// Timing capture ring buffer (non-blocking, safe from interrupt context)
	timingRing     [TimingRingSize]TimingEvent
	timingRingHead uint8
	timingEnabled  bool = true

	// Async debug output channel
	debugChan chan string
)

// SetDebugWriter sets the platform-specific debug output function
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	return debugEnabled
}

// SetTimingEnabled turns the timing ring on or off
func SetTimingEnabled(enabled bool) {
	timingEnabled = enabled
}

// InitAsyncDebug starts the async debug output goroutine.
// Call this from main() after SetDebugWriter.
func InitAsyncDebug() {
	debugChan = make(chan string, 16)
	go debugOutputWorker()
}

func debugOutputWorker() {
	for msg := range debugChan {
		if debugPrintln != nil {
			debugPrintln(msg)
		}
	}
}

// DebugPrintln writes a debug message using the platform-specific writer.
// Blocks while the writer runs; use DebugAsync from interrupt context.
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// DebugAsync queues a debug message for async output.
// Drops the message when the channel is full.
func DebugAsync(msg string) {
	if debugEnabled && debugChan != nil {
		select {
		case debugChan <- msg:
		default:
		}
	}
}

// RecordTiming captures an event in the ring buffer
func RecordTiming(eventType, source uint8, clock uint32, value1, value2 int32) {
	if !timingEnabled {
		return
	}
	idx := timingRingHead
	timingRing[idx] = TimingEvent{
		EventType: eventType,
		Source:    source,
		Clock:     clock,
		Value1:    value1,
		Value2:    value2,
	}
	timingRingHead = (idx + 1) % TimingRingSize
}

// TimingEvents returns the recorded events from oldest to newest
func TimingEvents() []TimingEvent {
	events := make([]TimingEvent, 0, TimingRingSize)
	start := timingRingHead
	for i := uint8(0); i < TimingRingSize; i++ {
		evt := timingRing[(start+i)%TimingRingSize]
		if evt.EventType == 0 {
			continue
		}
		events = append(events, evt)
	}
	return events
}

// EventName returns the mnemonic for an event type
func EventName(eventType uint8) string {
	switch eventType {
	case EvtStep:
		return "STEP"
	case EvtPhase:
		return "PHASE"
	case EvtMove:
		return "MOVE"
	case EvtDeferred:
		return "DEFERRED"
	case EvtStop:
		return "STOP"
	case EvtShutdown:
		return "SHUTDOWN"
	case EvtChopTrip:
		return "CHOP_TRIP"
	case EvtFault:
		return "FAULT!"
	}
	return "UNKNOWN"
}

// DumpTimingRing outputs the timing ring buffer (call on shutdown/error)
func DumpTimingRing() {
	if debugPrintln == nil {
		return
	}

	debugPrintln("[TIMING] === Timing Ring Dump ===")
	for _, evt := range TimingEvents() {
		debugPrintln("[TIMING] " + EventName(evt.EventType) +
			" src=" + itoa(int(evt.Source)) +
			" clock=" + utoa(evt.Clock) +
			" v1=" + itoa(int(evt.Value1)) +
			" v2=" + itoa(int(evt.Value2)))
	}
	debugPrintln("[TIMING] === End Dump ===")
}

// ClearTimingRing clears the timing buffer
func ClearTimingRing() {
	for i := range timingRing {
		timingRing[i] = TimingEvent{}
	}
	timingRingHead = 0
}
