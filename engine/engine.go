// Package engine provides the step-function driven event loop that the
// training orchestration layer is built on. An Engine runs a user-supplied
// step function once per item from a data source, advancing through epochs
// and firing lifecycle events; handlers subscribe to events and read or
// mutate the engine's run State.
package engine

import (
	"fmt"

	"github.com/google/uuid"
)

// EventName identifies a trigger point in the engine's control flow.
type EventName string

// Built-in events, fired at fixed points by Run. Custom events must be
// registered with RegisterEvents and are fired explicitly by handler code.
const (
	Started            EventName = "started"
	EpochStarted       EventName = "epoch_started"
	IterationStarted   EventName = "iteration_started"
	IterationCompleted EventName = "iteration_completed"
	EpochCompleted     EventName = "epoch_completed"
	Completed          EventName = "completed"
)

var builtinEvents = []EventName{
	Started, EpochStarted, IterationStarted,
	IterationCompleted, EpochCompleted, Completed,
}

// Handler runs synchronously when its event fires. Handlers attached to the
// same event run in registration order; a non-nil error aborts the run.
type Handler func(*Engine) error

// StepFunc is the user-supplied per-batch computation. The returned map of
// metric name to scalar becomes State.Output for the iteration. An error is
// fatal: it propagates uncaught and Completed is never fired.
type StepFunc func(e *Engine, batch map[string]interface{}) (map[string]float64, error)

// DataSource is one epoch's worth of batches, addressable by index.
type DataSource interface {
	Len() int
	Batch(i int) (map[string]interface{}, error)
}

// State is the engine's mutable run state. It is owned exclusively by its
// engine and mutated only by handlers attached to that engine, on the run's
// single thread.
type State struct {
	Iteration   int
	Epoch       int
	MaxEpochs   int
	EpochLength int
	Seed        int64
	RunID       string

	Batch   map[string]interface{}
	Output  map[string]float64
	Metrics map[string]float64

	// EpochHistory maps qualified metric names (train/..., validation/...)
	// to one mean value per completed epoch. Never reset during a run.
	EpochHistory map[string][]float64

	// IterHistory holds the current epoch's per-iteration values, cleared
	// when each epoch starts.
	IterHistory map[string][]float64

	// PastIterHistory keeps one immutable value slice per epoch, so full
	// within-epoch trajectories survive epoch boundaries.
	PastIterHistory map[string][][]float64

	SavedModelPath string
	OutputFolder   string
}

// Engine drives a step function over a data source across epochs.
type Engine struct {
	step       StepFunc
	handlers   map[EventName][]Handler
	registered map[EventName]struct{}

	// State is reset at the start of every Run.
	State *State
}

// New creates an engine around the given step function. The built-in events
// are pre-registered.
func New(step StepFunc) *Engine {
	e := &Engine{
		step:       step,
		handlers:   make(map[EventName][]Handler),
		registered: make(map[EventName]struct{}),
		State:      &State{},
	}
	for _, name := range builtinEvents {
		e.registered[name] = struct{}{}
	}
	return e
}

// RegisterEvents makes custom event names known to the engine so handlers
// can be attached to them and they can be fired.
func (e *Engine) RegisterEvents(names ...EventName) {
	for _, name := range names {
		e.registered[name] = struct{}{}
	}
}

// On attaches a handler to an event. Handlers fire in the order they were
// attached.
func (e *Engine) On(name EventName, h Handler) error {
	if _, ok := e.registered[name]; !ok {
		return fmt.Errorf("event %q is not registered on this engine", name)
	}
	e.handlers[name] = append(e.handlers[name], h)
	return nil
}

// Fire executes every handler attached to the event, in registration order,
// stopping at the first error.
func (e *Engine) Fire(name EventName) error {
	if _, ok := e.registered[name]; !ok {
		return fmt.Errorf("cannot fire unregistered event %q", name)
	}
	for _, h := range e.handlers[name] {
		if err := h(e); err != nil {
			return err
		}
	}
	return nil
}

// SetSeed records the random seed on the run state. The seed travels into
// checkpoint metadata; consuming it is the step function's business.
func (e *Engine) SetSeed(seed int64) {
	e.State.Seed = seed
}

// Run executes maxEpochs full passes over the data source. Counters and
// per-run fields are reset at the start; histories are (re)initialized by
// whatever handlers subscribe to Started. A step or handler error unwinds
// immediately and Completed is not fired.
func (e *Engine) Run(data DataSource, maxEpochs int) error {
	s := e.State
	s.Iteration = 0
	s.Epoch = 0
	s.MaxEpochs = maxEpochs
	s.EpochLength = data.Len()
	s.RunID = uuid.NewString()
	s.Batch = nil
	s.Output = nil
	if s.Metrics == nil {
		s.Metrics = make(map[string]float64)
	}

	if err := e.Fire(Started); err != nil {
		return err
	}
	for s.Epoch < maxEpochs {
		s.Epoch++
		if err := e.Fire(EpochStarted); err != nil {
			return err
		}
		for i := 0; i < s.EpochLength; i++ {
			s.Iteration++
			batch, err := data.Batch(i)
			if err != nil {
				return err
			}
			s.Batch = batch
			if err := e.Fire(IterationStarted); err != nil {
				return err
			}
			output, err := e.step(e, s.Batch)
			if err != nil {
				return err
			}
			s.Output = output
			if err := e.Fire(IterationCompleted); err != nil {
				return err
			}
		}
		if err := e.Fire(EpochCompleted); err != nil {
			return err
		}
	}
	return e.Fire(Completed)
}

// Every wraps a handler so it only fires when the iteration counter is a
// multiple of n.
func Every(n int, h Handler) Handler {
	if n < 1 {
		n = 1
	}
	return func(e *Engine) error {
		if e.State.Iteration%n == 0 {
			return h(e)
		}
		return nil
	}
}
