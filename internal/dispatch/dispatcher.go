// Package dispatch decides, for each repository event, whether the jobs of a
// trigger configuration document run and with which parameters, and hands
// runnable jobs to an Invoker.
//
// Evaluation is a pure function of the document and the event: a Dispatcher
// holds no per-event state and is safe for concurrent use.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/coreeng/check-dispatch/internal/event"
	"github.com/coreeng/check-dispatch/internal/guard"
	"github.com/coreeng/check-dispatch/internal/workflow"
)

var (
	// ErrInvocation wraps failures reported by an Invoker. The dispatcher
	// never retries them.
	ErrInvocation = errors.New("delegate invocation failed")

	// ErrNoInvoker is returned by Dispatch when no Invoker is configured.
	ErrNoInvoker = errors.New("no invoker configured")
)

// Reason explains why an event was skipped.
type Reason string

const (
	ReasonUnknownEvent Reason = "unknown-event"
	ReasonNoTrigger    Reason = "no-trigger"
	ReasonBranch       Reason = "branch"
	ReasonTag          Reason = "tag"
	ReasonAction       Reason = "action"
	ReasonPaths        Reason = "paths"
	ReasonGuard        Reason = "guard"
	ReasonNoJobs       Reason = "no-jobs"
)

func reasonFor(m workflow.Mismatch) Reason {
	switch m {
	case workflow.MismatchBranch:
		return ReasonBranch
	case workflow.MismatchTag:
		return ReasonTag
	case workflow.MismatchAction:
		return ReasonAction
	case workflow.MismatchPaths:
		return ReasonPaths
	default:
		return ReasonNoTrigger
	}
}

// Run is a job selected for execution together with the parameter bag it
// forwards to its reusable workflow.
type Run struct {
	Job    string          `json:"job"`
	Uses   workflow.Ref    `json:"uses"`
	Params workflow.Params `json:"with"`
}

// Decision is the outcome of evaluating one event. Either Runs is non-empty
// or Reason says why nothing runs.
type Decision struct {
	Workflow string     `json:"workflow"`
	Event    event.Kind `json:"event"`
	Reason   Reason     `json:"reason,omitempty"`
	Runs     []Run      `json:"runs,omitempty"`

	// Guarded lists jobs whose guard condition did not hold.
	Guarded []string `json:"guarded,omitempty"`
}

// Skipped reports whether no job runs for the event.
func (d Decision) Skipped() bool {
	return len(d.Runs) == 0
}

// Run returns the run for job, if it was selected.
func (d Decision) Run(job string) (Run, bool) {
	for _, r := range d.Runs {
		if r.Job == job {
			return r, true
		}
	}
	return Run{}, false
}

// Dispatcher evaluates events against a single document.
type Dispatcher struct {
	doc     *workflow.Document
	guards  map[string]*guard.Guard
	invoker Invoker
	tracker *Tracker
	logger  *slog.Logger
	newID   func() string
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger. It defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithInvoker sets the Invoker runnable jobs are handed to.
func WithInvoker(inv Invoker) Option {
	return func(d *Dispatcher) {
		d.invoker = inv
	}
}

// WithTracker sets the tracker dispatched jobs are registered with.
func WithTracker(t *Tracker) Option {
	return func(d *Dispatcher) {
		if t != nil {
			d.tracker = t
		}
	}
}

// New compiles the guards of doc and returns a Dispatcher for it.
func New(doc *workflow.Document, opts ...Option) (*Dispatcher, error) {
	if doc == nil {
		return nil, errors.New("workflow document is required")
	}

	compiler, err := guard.NewCompiler()
	if err != nil {
		return nil, err
	}

	d := &Dispatcher{
		doc:    doc,
		guards: make(map[string]*guard.Guard, len(doc.Jobs)),
		logger: slog.Default(),
		newID:  uuid.NewString,
	}
	for _, job := range doc.Jobs {
		g, err := compiler.Compile(job.If)
		if err != nil {
			return nil, fmt.Errorf("job %s: %w", job.ID, err)
		}
		d.guards[job.ID] = g
	}

	for _, opt := range opts {
		opt(d)
	}
	if d.tracker == nil {
		d.tracker = NewTracker(nil)
	}
	d.logger = d.logger.With("workflow", doc.Path)
	return d, nil
}

// Document returns the document the dispatcher evaluates.
func (d *Dispatcher) Document() *workflow.Document {
	return d.doc
}

// Tracker returns the tracker dispatched jobs are registered with.
func (d *Dispatcher) Tracker() *Tracker {
	return d.tracker
}

// Evaluate decides whether ev runs any job. Malformed events are rejected
// with an error wrapping event.ErrMalformedEvent; events that simply do not
// match yield a skipped Decision and no error. Event filters are checked
// before any job guard.
func (d *Dispatcher) Evaluate(ctx context.Context, ev event.Event) (Decision, error) {
	if err := ev.Validate(); err != nil {
		return Decision{}, err
	}

	dec := Decision{Workflow: d.doc.Path, Event: ev.Kind}

	if !ev.Kind.Known() {
		dec.Reason = ReasonUnknownEvent
		d.logSkip(ctx, ev, dec)
		return dec, nil
	}

	rule, ok := d.doc.Rule(ev.Kind)
	if !ok {
		dec.Reason = ReasonNoTrigger
		d.logSkip(ctx, ev, dec)
		return dec, nil
	}
	if m := rule.Match(ev); m != workflow.MismatchNone {
		dec.Reason = reasonFor(m)
		d.logSkip(ctx, ev, dec)
		return dec, nil
	}

	for _, job := range d.doc.Jobs {
		pass, err := d.guards[job.ID].Eval(ev)
		if err != nil {
			return Decision{}, fmt.Errorf("job %s: %w", job.ID, err)
		}
		if !pass {
			dec.Guarded = append(dec.Guarded, job.ID)
			continue
		}
		dec.Runs = append(dec.Runs, Run{
			Job:    job.ID,
			Uses:   job.Uses,
			Params: job.With.Clone(),
		})
	}

	if dec.Skipped() {
		dec.Reason = ReasonGuard
		if len(d.doc.Jobs) == 0 {
			dec.Reason = ReasonNoJobs
		}
		d.logSkip(ctx, ev, dec)
		return dec, nil
	}

	d.logger.DebugContext(ctx, "event matched",
		"event", ev.Kind,
		"branch", ev.BranchName(),
		"jobs", len(dec.Runs),
	)
	return dec, nil
}

func (d *Dispatcher) logSkip(ctx context.Context, ev event.Event, dec Decision) {
	d.logger.DebugContext(ctx, "event skipped",
		"event", ev.Kind,
		"branch", ev.BranchName(),
		"reason", dec.Reason,
	)
}

// Dispatch evaluates ev and hands every selected run to the configured
// Invoker, registering each with the tracker first. A failed invocation is
// recorded as a failed outcome and returned wrapped in ErrInvocation; runs
// after the failing one are not invoked.
func (d *Dispatcher) Dispatch(ctx context.Context, ev event.Event) (Decision, []Request, error) {
	dec, err := d.Evaluate(ctx, ev)
	if err != nil {
		return Decision{}, nil, err
	}
	if dec.Skipped() {
		return dec, nil, nil
	}
	if d.invoker == nil {
		return dec, nil, ErrNoInvoker
	}

	requests := make([]Request, 0, len(dec.Runs))
	for _, run := range dec.Runs {
		req := Request{
			ID:       d.newID(),
			Workflow: dec.Workflow,
			Run:      run,
			Event:    ev,
		}

		if err := d.tracker.Begin(ctx, req); err != nil {
			return dec, requests, err
		}

		if err := d.invoker.Invoke(ctx, req); err != nil {
			d.logger.ErrorContext(ctx, "delegate invocation failed",
				"id", req.ID,
				"job", run.Job,
				"uses", run.Uses.String(),
				"error", err,
			)
			if _, cerr := d.tracker.Complete(ctx, req.ID, OutcomeFailure); cerr != nil {
				d.logger.WarnContext(ctx, "record failed invocation", "id", req.ID, "error", cerr)
			}
			return dec, requests, fmt.Errorf("%w: job %s: %w", ErrInvocation, run.Job, err)
		}

		d.logger.InfoContext(ctx, "job dispatched",
			"id", req.ID,
			"job", run.Job,
			"uses", run.Uses.String(),
		)
		requests = append(requests, req)
	}

	return dec, requests, nil
}
