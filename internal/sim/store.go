package sim

import "sync"

// Store holds the single current command shared by the input producers and
// the simulation loop. The zero value is ready to use and reports Stop.
type Store struct {
	mu  sync.RWMutex
	cmd Command
}

// NewStore creates a store preloaded with Stop.
func NewStore() *Store {
	return &Store{cmd: Stop}
}

// Set replaces the current command. Out-of-range values are stored as Stop.
func (s *Store) Set(cmd Command) {
	if !cmd.Valid() {
		cmd = Stop
	}
	s.mu.Lock()
	s.cmd = cmd
	s.mu.Unlock()
}

// Get returns the current command.
func (s *Store) Get() Command {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.cmd
}
