// Package ledger records dispatched jobs and their completion in SQLite. It
// implements dispatch.Recorder.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/coreeng/check-dispatch/internal/dispatch"
	"github.com/coreeng/check-dispatch/internal/event"
	"github.com/coreeng/check-dispatch/internal/workflow"
)

// ErrNotFound is returned when no dispatch has the requested ID, or when a
// completion names a dispatch that is not Dispatched. It is the tracker's
// ErrUnknownDispatch so that both layers agree on it.
var ErrNotFound = dispatch.ErrUnknownDispatch

const schema = `
CREATE TABLE IF NOT EXISTS dispatches (
	id            TEXT PRIMARY KEY,
	workflow      TEXT NOT NULL,
	job           TEXT NOT NULL,
	uses          TEXT NOT NULL,
	params        TEXT NOT NULL,
	event         TEXT NOT NULL,
	branch        TEXT NOT NULL,
	state         TEXT NOT NULL,
	outcome       TEXT NOT NULL DEFAULT '',
	dispatched_at TEXT NOT NULL,
	completed_at  TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS dispatches_dispatched_at ON dispatches (dispatched_at);
`

// Entry is one recorded dispatch.
type Entry struct {
	ID           string           `json:"id"`
	Workflow     string           `json:"workflow"`
	Job          string           `json:"job"`
	Uses         string           `json:"uses"`
	Params       workflow.Params  `json:"with"`
	Event        string           `json:"event"`
	Branch       string           `json:"branch"`
	State        dispatch.State   `json:"state"`
	Outcome      dispatch.Outcome `json:"outcome,omitempty"`
	DispatchedAt time.Time        `json:"dispatched_at"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
}

// Ledger is a SQLite-backed dispatch record.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the ledger database at path. ":memory:"
// gives a private in-memory ledger.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	// SQLite serializes writers; a single connection also keeps ":memory:"
	// databases from splitting across connections.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate ledger %s: %w", path, err)
	}
	return &Ledger{db: db, now: time.Now}, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// RecordDispatch stores req in the Dispatched state.
func (l *Ledger) RecordDispatch(ctx context.Context, req dispatch.Request) error {
	params, err := json.Marshal(req.Run.Params)
	if err != nil {
		return fmt.Errorf("encode parameters: %w", err)
	}

	_, err = l.db.ExecContext(ctx, `
INSERT INTO dispatches (id, workflow, job, uses, params, event, branch, state, dispatched_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID,
		req.Workflow,
		req.Run.Job,
		req.Run.Uses.String(),
		string(params),
		string(req.Event.Kind),
		req.Event.BranchName(),
		string(dispatch.StateDispatched),
		l.now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert dispatch %s: %w", req.ID, err)
	}
	return nil
}

// RecordCompletion stores the outcome of a dispatch and marks it Idle.
func (l *Ledger) RecordCompletion(ctx context.Context, id string, outcome dispatch.Outcome) error {
	res, err := l.db.ExecContext(ctx, `
UPDATE dispatches SET state = ?, outcome = ?, completed_at = ?
WHERE id = ? AND state = ?`,
		string(dispatch.StateIdle),
		string(outcome),
		l.now().UTC().Format(timeLayout),
		id,
		string(dispatch.StateDispatched),
	)
	if err != nil {
		return fmt.Errorf("update dispatch %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// timeLayout is fixed-width so that stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const selectColumns = `id, workflow, job, uses, params, event, branch, state, outcome, dispatched_at, completed_at`

// Get returns the dispatch with the given ID.
func (l *Ledger) Get(ctx context.Context, id string) (Entry, error) {
	row := l.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM dispatches WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, err
}

// List returns up to limit dispatches, most recent first. A limit of zero or
// less returns every dispatch.
func (l *Ledger) List(ctx context.Context, limit int) ([]Entry, error) {
	query := `SELECT ` + selectColumns + ` FROM dispatches ORDER BY dispatched_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list dispatches: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Pending returns the dispatches still in the Dispatched state, ordered by
// ID, as tracker requests. The event carries only its kind and branch.
func (l *Ledger) Pending(ctx context.Context) ([]dispatch.Request, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM dispatches WHERE state = ? ORDER BY id`,
		string(dispatch.StateDispatched),
	)
	if err != nil {
		return nil, fmt.Errorf("list pending dispatches: %w", err)
	}
	defer rows.Close()

	var out []dispatch.Request
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		var uses workflow.Ref
		if err := uses.UnmarshalText([]byte(e.Uses)); err != nil {
			return nil, fmt.Errorf("decode uses of %s: %w", e.ID, err)
		}
		out = append(out, dispatch.Request{
			ID:       e.ID,
			Workflow: e.Workflow,
			Run: dispatch.Run{
				Job:    e.Job,
				Uses:   uses,
				Params: e.Params,
			},
			Event: event.Event{Kind: event.Kind(e.Event), Branch: e.Branch},
		})
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var (
		e                         Entry
		params, state, outcome    string
		dispatchedAt, completedAt string
	)
	if err := s.Scan(&e.ID, &e.Workflow, &e.Job, &e.Uses, &params, &e.Event, &e.Branch, &state, &outcome, &dispatchedAt, &completedAt); err != nil {
		return Entry{}, err
	}

	if err := json.Unmarshal([]byte(params), &e.Params); err != nil {
		return Entry{}, fmt.Errorf("decode parameters of %s: %w", e.ID, err)
	}
	e.State = dispatch.State(state)
	e.Outcome = dispatch.Outcome(outcome)

	t, err := time.Parse(timeLayout, dispatchedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("decode dispatched_at of %s: %w", e.ID, err)
	}
	e.DispatchedAt = t

	if completedAt != "" {
		t, err := time.Parse(timeLayout, completedAt)
		if err != nil {
			return Entry{}, fmt.Errorf("decode completed_at of %s: %w", e.ID, err)
		}
		e.CompletedAt = &t
	}
	return e, nil
}
