package counter

import "github.com/pkg/errors"

type state string

const (
	idle         state = "idle"
	proposing    state = "proposing"
	refreshing   state = "refreshing"
	initializing state = "initializing"
)

type stateMachine struct {
	current     state
	transitions map[state]map[state]struct{}
}

var transitions = map[state]map[state]struct{}{
	idle: {
		proposing:    struct{}{},
		initializing: struct{}{},
	},
	proposing: {
		idle:         struct{}{},
		proposing:    struct{}{},
		refreshing:   struct{}{},
		initializing: struct{}{},
	},
	refreshing: {
		proposing:    struct{}{},
		initializing: struct{}{},
	},
	initializing: {
		idle:      struct{}{},
		proposing: struct{}{},
	},
}

func newStateMachine() *stateMachine {
	return &stateMachine{
		current:     idle,
		transitions: transitions,
	}
}

func (sm *stateMachine) Current() state {
	return sm.current
}

func (sm *stateMachine) Transition(next state) error {
	if allowed, ok := sm.transitions[sm.current]; ok {
		if _, ok = allowed[next]; ok {
			sm.current = next
			return nil
		}
	}

	return errors.Errorf("invalid state transition %s -> %s", sm.current, next)
}
