//go:build !tinygo

package core

// State is a placeholder for interrupt state on regular Go
type State uintptr

// DisableInterrupts is a no-op on regular Go (host tests and simulator run
// every interrupt handler from one goroutine)
func DisableInterrupts() State {
	return 0
}

// RestoreInterrupts is a no-op on regular Go
func RestoreInterrupts(state State) {
}
