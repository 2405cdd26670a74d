// Package session models the lifecycle of one interactive analysis: a file is
// dropped, analyzed, its result shown, and the view reset for the next file.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/brunobiangulo/docstat"
)

var (
	// ErrInvalidTransition is returned when an event is not defined for the
	// current state. The state is left unchanged.
	ErrInvalidTransition = errors.New("session: invalid transition")

	// ErrBusy is returned by Analyze while another analysis is in flight.
	ErrBusy = errors.New("session: analysis in progress")
)

// State is the lifecycle state of a Session.
type State int

const (
	Idle State = iota
	Loading
	Result
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Result:
		return "result"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Event drives a transition.
type Event int

const (
	Start Event = iota
	Succeed
	Fail
	Reset
)

func (e Event) String() string {
	switch e {
	case Start:
		return "start"
	case Succeed:
		return "succeed"
	case Fail:
		return "fail"
	case Reset:
		return "reset"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// Next returns the state reached from s on e.
//
//	from \ event | Start   | Succeed | Fail  | Reset
//	Idle         | Loading |         |       | Idle
//	Loading      |         | Result  | Error |
//	Result       | Loading |         |       | Idle
//	Error        | Loading |         |       | Idle
func Next(s State, e Event) (State, error) {
	switch s {
	case Idle, Result, Error:
		switch e {
		case Start:
			return Loading, nil
		case Reset:
			return Idle, nil
		}
	case Loading:
		switch e {
		case Succeed:
			return Result, nil
		case Fail:
			return Error, nil
		}
	}
	return s, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, e, s)
}

// Analyzer is the part of docstat.Engine a Session needs.
type Analyzer interface {
	Analyze(ctx context.Context, data []byte, name string) (*docstat.Result, error)
}

// Listener observes transitions. It is called after the session lock is
// released, in transition order.
type Listener func(from, to State, ev Event)

// Snapshot is a consistent view of a Session. Err is set in Idle after a
// failed analysis.
type Snapshot struct {
	State  State           `json:"state"`
	Result *docstat.Result `json:"result,omitempty"`
	Err    error           `json:"-"`
}

// Session holds the current state plus the last result or error.
type Session struct {
	analyzer Analyzer

	mu        sync.Mutex
	state     State
	result    *docstat.Result
	err       error
	listeners []Listener
}

// New creates an idle Session that analyzes through a.
func New(a Analyzer) *Session {
	return &Session{analyzer: a, state: Idle}
}

// OnTransition registers l for all subsequent transitions.
func (s *Session) OnTransition(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns the state together with the retained result or error.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{State: s.state, Result: s.result, Err: s.err}
}

// Reset returns the session to Idle and discards the last result or error.
func (s *Session) Reset() error {
	s.mu.Lock()
	notify, err := s.fire(Reset, nil, nil)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	notify()
	return nil
}

// Analyze runs one analysis: Start, then Succeed or Fail depending on the
// engine outcome. A failure passes through Error and returns to Idle, with
// the error kept in the Snapshot. The engine error is returned unchanged.
func (s *Session) Analyze(ctx context.Context, data []byte, name string) (*docstat.Result, error) {
	s.mu.Lock()
	if s.state == Loading {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	notify, err := s.fire(Start, nil, nil)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	notify()

	res, aerr := s.analyzer.Analyze(ctx, data, name)

	s.mu.Lock()
	var notifies []func()
	if aerr != nil {
		notify, err = s.fire(Fail, nil, aerr)
		if err == nil {
			notifies = append(notifies, notify)
			// Error is left straight away for Idle; the error stays
			// readable until the next Start or Reset.
			notify, err = s.fire(Reset, nil, nil)
			s.err = aerr
		}
	} else {
		notify, err = s.fire(Succeed, res, nil)
	}
	if err == nil {
		notifies = append(notifies, notify)
	}
	s.mu.Unlock()
	for _, n := range notifies {
		n()
	}
	if err != nil {
		return nil, err
	}

	if aerr != nil {
		slog.Debug("session: analysis failed", "file", name, "error", aerr)
		return nil, aerr
	}
	return res, nil
}

// fire applies ev under s.mu and returns a func that notifies listeners.
func (s *Session) fire(ev Event, res *docstat.Result, err error) (func(), error) {
	from := s.state
	to, terr := Next(from, ev)
	if terr != nil {
		return nil, terr
	}

	s.state = to
	switch to {
	case Idle, Loading:
		s.result, s.err = nil, nil
	case Result:
		s.result, s.err = res, nil
	case Error:
		s.result, s.err = nil, err
	}

	listeners := append([]Listener(nil), s.listeners...)
	return func() {
		for _, l := range listeners {
			l(from, to, ev)
		}
	}, nil
}
