package core

import (
	"errors"
	"sort"
	"sync"
)

// CommandHandler handles one command. It receives the command payload and
// returns the payload of the status reply.
type CommandHandler func(data []byte) ([]byte, error)

// Command represents a UI command
type Command struct {
	ID      uint8
	Name    string
	Handler CommandHandler
}

// ErrUnknownCommand is returned by Dispatch for an unregistered ID
var ErrUnknownCommand = errors.New("unknown command")

// CommandRegistry holds all registered commands
type CommandRegistry struct {
	mu       sync.RWMutex
	commands map[uint8]*Command
	nameToID map[string]uint8
}

// NewCommandRegistry creates a new command registry
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		commands: make(map[uint8]*Command),
		nameToID: make(map[string]uint8),
	}
}

// Register adds a command to the registry, replacing any handler already
// registered under the same ID
func (r *CommandRegistry) Register(id uint8, name string, handler CommandHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.commands[id]; ok {
		delete(r.nameToID, old.Name)
	}
	r.commands[id] = &Command{ID: id, Name: name, Handler: handler}
	r.nameToID[name] = id
}

// GetCommand retrieves a command by ID
func (r *CommandRegistry) GetCommand(id uint8) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[id]
	return cmd, ok
}

// Lookup returns the ID registered for name
func (r *CommandRegistry) Lookup(name string) (uint8, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.nameToID[name]
	return id, ok
}

// Count returns the number of registered commands
func (r *CommandRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// IDs returns the registered command IDs in ascending order
func (r *CommandRegistry) IDs() []uint8 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]uint8, 0, len(r.commands))
	for id := range r.commands {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Dispatch calls the appropriate command handler
func (r *CommandRegistry) Dispatch(id uint8, data []byte) ([]byte, error) {
	cmd, ok := r.GetCommand(id)
	if !ok || cmd.Handler == nil {
		return nil, ErrUnknownCommand
	}
	return cmd.Handler(data)
}
