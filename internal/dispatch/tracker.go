package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/coreeng/check-dispatch/internal/event"
)

// ErrUnknownDispatch is returned when completing a dispatch the tracker does
// not consider active.
var ErrUnknownDispatch = errors.New("unknown dispatch")

// Invoker hands a selected run to the external reusable workflow. It must
// not block beyond submitting the request; completion is reported later
// through Tracker.Complete.
type Invoker interface {
	Invoke(ctx context.Context, req Request) error
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, req Request) error

func (f InvokerFunc) Invoke(ctx context.Context, req Request) error {
	return f(ctx, req)
}

// Request is one run handed to an Invoker.
type Request struct {
	ID       string      `json:"id"`
	Workflow string      `json:"workflow"`
	Run      Run         `json:"run"`
	Event    event.Event `json:"-"`
}

// State is the lifecycle state of a dispatch.
type State string

const (
	StateIdle       State = "idle"
	StateDispatched State = "dispatched"
)

// Outcome is the recorded result of an external job.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeFailure   Outcome = "failure"
	OutcomeCancelled Outcome = "cancelled"
)

// ParseOutcome validates an outcome name.
func ParseOutcome(s string) (Outcome, error) {
	switch o := Outcome(s); o {
	case OutcomeSuccess, OutcomeFailure, OutcomeCancelled:
		return o, nil
	default:
		return "", fmt.Errorf("unknown outcome %q", s)
	}
}

// Recorder persists dispatch lifecycle transitions. RecordCompletion returns
// an error wrapping ErrUnknownDispatch for an ID that is not Dispatched.
type Recorder interface {
	RecordDispatch(ctx context.Context, req Request) error
	RecordCompletion(ctx context.Context, id string, outcome Outcome) error
}

// PendingLister is implemented by recorders that can report the dispatches
// they still hold in the Dispatched state.
type PendingLister interface {
	Pending(ctx context.Context) ([]Request, error)
}

// Tracker holds the dispatches that are currently Dispatched. A dispatch not
// held by the tracker is Idle.
type Tracker struct {
	mu       sync.Mutex
	active   map[string]Request
	recorder Recorder
}

// NewTracker returns a tracker that forwards transitions to r, which may be
// nil.
func NewTracker(r Recorder) *Tracker {
	return &Tracker{
		active:   make(map[string]Request),
		recorder: r,
	}
}

// Begin moves req from Idle to Dispatched.
func (t *Tracker) Begin(ctx context.Context, req Request) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.active[req.ID]; ok {
		return fmt.Errorf("dispatch %s is already active", req.ID)
	}
	if t.recorder != nil {
		if err := t.recorder.RecordDispatch(ctx, req); err != nil {
			return fmt.Errorf("record dispatch %s: %w", req.ID, err)
		}
	}
	t.active[req.ID] = req
	return nil
}

// Restore loads the dispatches the recorder still holds as Dispatched, so
// that a restarted process can complete them. It is a no-op when the
// recorder cannot list them.
func (t *Tracker) Restore(ctx context.Context) error {
	lister, ok := t.recorder.(PendingLister)
	if !ok {
		return nil
	}
	pending, err := lister.Pending(ctx)
	if err != nil {
		return fmt.Errorf("restore dispatches: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, req := range pending {
		if _, held := t.active[req.ID]; !held {
			t.active[req.ID] = req
		}
	}
	return nil
}

// Complete records the outcome of the dispatch with the given ID and returns
// it to Idle. A dispatch the tracker does not hold is still completed through
// the recorder, which may know it from an earlier process. When the recorder
// reports the dispatch unknown, the tracker drops it too and the error wraps
// ErrUnknownDispatch.
func (t *Tracker) Complete(ctx context.Context, id string, outcome Outcome) (Request, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	req, ok := t.active[id]
	if !ok && t.recorder == nil {
		return Request{}, fmt.Errorf("%w: %s", ErrUnknownDispatch, id)
	}
	if !ok {
		req = Request{ID: id}
	}

	if t.recorder != nil {
		if err := t.recorder.RecordCompletion(ctx, id, outcome); err != nil {
			if errors.Is(err, ErrUnknownDispatch) {
				delete(t.active, id)
			}
			return Request{}, fmt.Errorf("record completion %s: %w", id, err)
		}
	}
	delete(t.active, id)
	return req, nil
}

// State returns the lifecycle state of the dispatch with the given ID.
func (t *Tracker) State(id string) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.active[id]; ok {
		return StateDispatched
	}
	return StateIdle
}

// Active returns the dispatched requests ordered by ID.
func (t *Tracker) Active() []Request {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Request, 0, len(t.active))
	for _, req := range t.active {
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
