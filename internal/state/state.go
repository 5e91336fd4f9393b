// Package state holds the replicated application state: an integer sum with
// a single update operation. The state is deliberately tiny — the interesting
// part of the system is keeping copies of it alive, not the state itself.
package state

import (
	"strconv"

	"github.com/pkg/errors"
)

// State is the accumulating sum. It is not safe for concurrent use on its
// own; the replica serialises access behind its own mutex.
type State struct {
	sum int
}

// New returns a fresh state with sum 0.
func New() *State {
	return &State{}
}

// Parse restores a state from its decimal text form, as carried in the state
// field of a frame.
func Parse(text string) (*State, error) {
	sum, err := strconv.Atoi(text)
	if err != nil {
		return nil, errors.Wrapf(err, "state: parse %q", text)
	}
	return &State{sum: sum}, nil
}

// Update adds value to the sum and returns the new total.
func (s *State) Update(value int) int {
	s.sum += value
	return s.sum
}

// Sum returns the current total.
func (s *State) Sum() int {
	return s.sum
}

// String serialises the state as decimal text.
func (s *State) String() string {
	return strconv.Itoa(s.sum)
}
