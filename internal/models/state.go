package models

import (
	"fmt"
	"strings"
)

// State is the lifecycle state of a dataset acquisition.
type State string

const (
	StatePending State = "PENDING"
	StateStarted State = "STARTED"
	StateSuccess State = "SUCCESS"
	StateFailure State = "FAILURE"
)

// States lists every valid [State] in lifecycle order.
var States = []State{StatePending, StateStarted, StateSuccess, StateFailure}

// ParseState converts s (case-insensitive) into a [State].
func ParseState(s string) (State, error) {
	st := State(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("unknown state %q", s)
	}
	return st, nil
}

// Valid reports whether s is one of the four known states.
func (s State) Valid() bool {
	switch s {
	case StatePending, StateStarted, StateSuccess, StateFailure:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are expected.
func (s State) IsTerminal() bool {
	return s == StateSuccess || s == StateFailure
}

func (s State) String() string { return string(s) }
