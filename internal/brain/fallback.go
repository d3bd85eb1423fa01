package brain

import (
	"context"
	"errors"
	"fmt"

	"github.com/jeanpaul/jarbas/internal/provider"
)

// ErrAllModelsFailed is matched by every exhaustion error.
var ErrAllModelsFailed = errors.New("all models failed")

// AllModelsFailedError carries the last attempt's failure.
type AllModelsFailedError struct {
	Attempts int
	Last     error
	Kind     provider.FailureKind
}

func (e *AllModelsFailedError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("%s after %d attempts", ErrAllModelsFailed, e.Attempts)
	}
	return fmt.Sprintf("%s after %d attempts: %v", ErrAllModelsFailed, e.Attempts, e.Last)
}

func (e *AllModelsFailedError) Unwrap() []error {
	if e.Last == nil {
		return []error{ErrAllModelsFailed}
	}
	return []error{ErrAllModelsFailed, e.Last}
}

// State is a position in the fallback machine.
type State int

const (
	StatePending State = iota
	StateAttempting
	StateSucceeded
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateAttempting:
		return "attempting"
	case StateSucceeded:
		return "succeeded"
	case StateExhausted:
		return "exhausted"
	}
	return "unknown"
}

// Outcome is the tagged result of one model attempt. Exactly one of
// Success and Failure is set.
type Outcome struct {
	Model   provider.ModelSpec
	Success *Success
	Failure *Failure
}

type Success struct {
	Text  string
	Model string
}

type Failure struct {
	Kind   provider.FailureKind
	Detail string
	Err    error
}

// Fallback walks an ordered model list one attempt at a time:
// Pending -> Attempting(i) -> Succeeded | Exhausted.
type Fallback struct {
	models   []provider.ModelSpec
	state    State
	index    int
	outcomes []Outcome
}

func NewFallback(models []provider.ModelSpec) *Fallback {
	return &Fallback{models: models, state: StatePending, index: -1}
}

func (f *Fallback) State() State { return f.state }

// Index is the model currently or last attempted, -1 before the first.
func (f *Fallback) Index() int { return f.index }

func (f *Fallback) Outcomes() []Outcome { return f.outcomes }

// Next advances to the next model. It returns false once the machine has
// reached a terminal state.
func (f *Fallback) Next() (provider.ModelSpec, bool) {
	if f.state == StateSucceeded || f.state == StateExhausted {
		return provider.ModelSpec{}, false
	}
	if f.index+1 >= len(f.models) {
		f.state = StateExhausted
		return provider.ModelSpec{}, false
	}
	f.index++
	f.state = StateAttempting
	return f.models[f.index], true
}

// Record stores the outcome of the current attempt.
func (f *Fallback) Record(o Outcome) {
	if f.state != StateAttempting {
		return
	}
	f.outcomes = append(f.outcomes, o)
	if o.Success != nil {
		f.state = StateSucceeded
	}
}

// Result returns the winning success or the exhaustion error.
func (f *Fallback) Result() (Success, error) {
	if f.state == StateSucceeded {
		return *f.outcomes[len(f.outcomes)-1].Success, nil
	}
	err := &AllModelsFailedError{Attempts: len(f.outcomes)}
	if n := len(f.outcomes); n > 0 && f.outcomes[n-1].Failure != nil {
		err.Last = f.outcomes[n-1].Failure.Err
		err.Kind = f.outcomes[n-1].Failure.Kind
	}
	return Success{}, err
}

// attempt runs one model and converts the result into an Outcome.
func attempt(ctx context.Context, r provider.Reasoner, spec provider.ModelSpec, req provider.Request) Outcome {
	req.Model = spec.ID
	req.ThinkingBudget = 0
	if spec.SupportsThinking() {
		req.ThinkingBudget = spec.ThinkingBudget
	}
	text, err := r.Generate(ctx, req)
	if err != nil {
		return Outcome{Model: spec, Failure: &Failure{
			Kind:   provider.Classify(err),
			Detail: provider.Friendly(err),
			Err:    err,
		}}
	}
	return Outcome{Model: spec, Success: &Success{Text: text, Model: spec.ID}}
}
