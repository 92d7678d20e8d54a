// Package submit runs the validate, package and post sequence that sends a
// task's edits to its backend.
//
// A Pipeline belongs to one editing session. Submit holds an exclusive
// submission lock for its whole run and freezes the tree from packaging
// until the outcome is applied, so the diff that was sent is the diff that
// gets rebaselined.
package submit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/roach88/tasksync/internal/backend"
	"github.com/roach88/tasksync/internal/changes"
	"github.com/roach88/tasksync/internal/connector"
	"github.com/roach88/tasksync/internal/mapper"
	"github.com/roach88/tasksync/internal/reconcile"
	"github.com/roach88/tasksync/internal/store"
	"github.com/roach88/tasksync/internal/taskdata"
)

// State is a pipeline state.
type State string

const (
	StateIdle               State = "idle"
	StateValidating         State = "validating"
	StateRejectedLocally    State = "rejected-locally"
	StatePackaging          State = "packaging"
	StateSubmitting         State = "submitting"
	StateAccepted           State = "accepted"
	StateValidationRejected State = "validation-rejected"
	StateTransportFailed    State = "transport-failed"
)

// Persister stores what an accepted submission leaves behind.
// *store.Store implements it.
type Persister interface {
	SaveBaseline(ctx context.Context, repository, taskID string, tree *taskdata.Tree) error
	SetLastSelection(ctx context.Context, repository string, sel store.LastSelection) error
	RecordSubmission(ctx context.Context, sub store.Submission) (int64, error)
}

// Task identifies the task a pipeline submits. An empty ID means the task
// does not exist remotely yet.
type Task struct {
	Repository string
	ID         string
}

// Outcome describes one Submit call.
type Outcome struct {
	SubmissionID string
	State        State
	TaskID       string
	Payload      mapper.Payload
	Result       connector.Result
	Report       *reconcile.Report
}

// Pipeline submits one task.
type Pipeline struct {
	task      Task
	tree      *taskdata.Tree
	tracker   *changes.Tracker
	backend   backend.Backend
	conn      connector.Connector
	persister Persister
	ids       IDGenerator
	logger    *slog.Logger
	observers []func(from, to State)

	lock sync.Mutex

	mu    sync.Mutex
	state State
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithPersister stores baselines, remembered defaults and the submission log.
func WithPersister(s Persister) Option {
	return func(p *Pipeline) {
		p.persister = s
	}
}

// WithIDGenerator sets the submission id generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(p *Pipeline) {
		p.ids = g
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// WithObserver registers a function called on every state transition.
func WithObserver(fn func(from, to State)) Option {
	return func(p *Pipeline) {
		p.observers = append(p.observers, fn)
	}
}

// New creates a pipeline for task.
func New(task Task, b backend.Backend, conn connector.Connector, tree *taskdata.Tree, tracker *changes.Tracker, opts ...Option) *Pipeline {
	p := &Pipeline{
		task:    task,
		tree:    tree,
		tracker: tracker,
		backend: b,
		conn:    conn,
		ids:     UUIDv7Generator{},
		logger:  slog.Default(),
		state:   StateIdle,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns the current state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// TaskID returns the remote task id, which becomes known once a new task
// has been accepted.
func (p *Pipeline) TaskID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.task.ID
}

func (p *Pipeline) transition(to State) {
	p.mu.Lock()
	from := p.state
	p.state = to
	p.mu.Unlock()

	p.logger.Debug("submission state",
		"task_id", p.task.ID,
		"from", string(from),
		"to", string(to),
	)
	for _, fn := range p.observers {
		fn(from, to)
	}
}

// Submit validates, packages and posts the task's changes.
//
// It returns an error for local failures: a *LocalValidationError,
// ErrSubmissionInProgress, ErrCanceled, or a packaging failure. Remote
// outcomes, including transport failures, are reported through the
// Outcome's State and Result with a nil error.
func (p *Pipeline) Submit(ctx context.Context) (Outcome, error) {
	if !p.lock.TryLock() {
		return Outcome{State: p.State()}, ErrSubmissionInProgress
	}
	defer p.lock.Unlock()

	taskID := p.TaskID()
	isNew := taskID == ""

	p.transition(StateValidating)
	if err := p.validate(isNew); err != nil {
		p.transition(StateRejectedLocally)
		p.logger.Info("submission rejected locally",
			"task_id", taskID,
			"attribute", err.Field,
			"reason", err.Reason,
		)
		return Outcome{State: StateRejectedLocally, TaskID: taskID}, err
	}

	p.transition(StatePackaging)
	restore, err := p.forceToken(ctx, taskID, isNew)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			p.transition(StateIdle)
			return Outcome{State: StateIdle, TaskID: taskID}, fmt.Errorf("%w: %v", ErrCanceled, ctx.Err())
		}
		p.tree.Freeze()
		defer p.tree.Thaw()
		return p.finish(ctx, taskID, isNew, mapper.Payload{TaskID: taskID, New: isNew},
			connector.TransportFailed{Cause: fmt.Errorf("fetch continuity token: %w", err)})
	}

	// Frozen from packaging until the outcome is applied: edits made in
	// between would be rebaselined without having been sent.
	p.tree.Freeze()
	payload, err := p.backend.Mapper().ToBackendForm(taskID, p.tree, p.tracker.Diff())
	if err != nil {
		p.tree.Thaw()
		restore()
		p.transition(StateIdle)
		return Outcome{State: StateIdle, TaskID: taskID}, fmt.Errorf("package changes: %w", err)
	}

	p.transition(StateSubmitting)
	res, err := p.post(ctx, payload)
	if err != nil {
		p.tree.Thaw()
		restore()
		p.transition(StateIdle)
		p.logger.Info("submission canceled", "task_id", taskID)
		return Outcome{State: StateIdle, TaskID: taskID, Payload: payload}, err
	}
	defer p.tree.Thaw()
	return p.finish(ctx, taskID, isNew, payload, res)
}

// validate runs the required-field checks in order and stops at the first
// failure.
func (p *Pipeline) validate(isNew bool) *LocalValidationError {
	m := p.backend.Mapper()
	blank := func(id string) bool { return strings.TrimSpace(p.tree.Value(id)) == "" }

	if id := m.MapKey(taskdata.KeySummary); blank(id) {
		return &LocalValidationError{Field: id, Reason: "summary must not be empty"}
	}
	if isNew {
		if id := m.MapKey(taskdata.KeyComponent); blank(id) {
			return &LocalValidationError{Field: id, Reason: "a component must be selected"}
		}
		if id := m.MapKey(taskdata.KeyDescription); blank(id) {
			return &LocalValidationError{Field: id, Reason: "description must not be empty"}
		}
	}
	if p.tree.Value(m.MapKey(taskdata.KeyOperation)) == taskdata.OperationDuplicate {
		if id := taskdata.OperationPrefix + taskdata.OperationDuplicate; blank(id) {
			return &LocalValidationError{Field: id, Reason: "the id of the duplicated task is required"}
		}
	}
	if isNew {
		if cc, ok := p.backend.(backend.CreationChecker); ok {
			if field, reason := cc.CheckNew(p.tree); field != "" {
				return &LocalValidationError{Field: field, Reason: reason}
			}
		}
	}
	return nil
}

// forceToken overwrites the continuity token with the value from a fresh
// fetch of the task. The returned function puts the previous value back.
func (p *Pipeline) forceToken(ctx context.Context, taskID string, isNew bool) (func(), error) {
	noop := func() {}
	id := backend.TokenAttribute(p.backend)
	if id == "" || isNew {
		return noop, nil
	}
	fresh, err := p.conn.FetchTask(ctx, taskID)
	if err != nil {
		return noop, err
	}
	if fresh == nil || !fresh.Has(id) {
		return noop, nil
	}

	if !p.tree.Has(id) {
		tmpl, _ := fresh.Get(id)
		tmpl.Values = nil
		if err := p.tree.Add(tmpl); err != nil {
			return noop, err
		}
	}
	prev := p.tree.Values(id)
	if err := p.tree.Set(id, fresh.Values(id)...); err != nil {
		return noop, err
	}
	return func() {
		if err := p.tree.Set(id, prev...); err != nil {
			p.logger.Warn("restore continuity token", "task_id", taskID, "error", err)
		}
	}, nil
}

type postReply struct {
	res connector.Result
	err error
}

// post calls the connector. Caller cancellation returns ErrCanceled; a
// deadline or connector error becomes a TransportFailed result.
func (p *Pipeline) post(ctx context.Context, payload mapper.Payload) (connector.Result, error) {
	ch := make(chan postReply, 1)
	go func() {
		res, err := p.conn.Post(ctx, payload)
		ch <- postReply{res: res, err: err}
	}()

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return connector.TransportFailed{Cause: ctx.Err()}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrCanceled, ctx.Err())
	case r := <-ch:
		if r.err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil, fmt.Errorf("%w: %v", ErrCanceled, ctx.Err())
			}
			return connector.TransportFailed{Cause: r.err}, nil
		}
		if r.res == nil {
			return connector.TransportFailed{Cause: errors.New("connector returned no result")}, nil
		}
		return r.res, nil
	}
}

// finish applies a remote outcome.
func (p *Pipeline) finish(ctx context.Context, taskID string, isNew bool, payload mapper.Payload, res connector.Result) (Outcome, error) {
	out := Outcome{
		SubmissionID: p.ids.Generate(),
		TaskID:       taskID,
		Payload:      payload,
		Result:       res,
	}

	switch r := res.(type) {
	case connector.Accepted:
		out.State = StateAccepted
		p.tracker.Rebaseline()
		if isNew && r.Reference != "" {
			out.TaskID = r.Reference
			p.mu.Lock()
			p.task.ID = r.Reference
			p.mu.Unlock()
		}
		p.transition(StateAccepted)
		p.logger.Info("submission accepted",
			"task_id", out.TaskID,
			"submission_id", out.SubmissionID,
			"fields", len(payload.Fields),
		)
		p.persistAccepted(ctx, out.TaskID, isNew)

	case connector.ValidationRejected:
		out.State = StateValidationRejected
		rep := reconcile.Reconcile(p.tree, r, reconcile.WithFieldNames(p.backend.Mapper().AttributeID))
		out.Report = &rep
		p.transition(StateValidationRejected)
		p.logger.Warn("submission rejected by backend",
			"task_id", taskID,
			"submission_id", out.SubmissionID,
			"severity", string(rep.Severity),
			"fields", r.FieldErrors.Fields(),
		)

	default:
		out.State = StateTransportFailed
		p.transition(StateTransportFailed)
		p.logger.Warn("submission transport failed",
			"task_id", taskID,
			"submission_id", out.SubmissionID,
			"error", res,
		)
	}

	p.record(ctx, out)
	return out, nil
}

// persistAccepted stores the new baseline and, for new tasks, the product
// and component as defaults for the next task. Failures are logged; the
// submission itself already succeeded.
func (p *Pipeline) persistAccepted(ctx context.Context, taskID string, isNew bool) {
	if p.persister == nil {
		return
	}
	if taskID != "" {
		if err := p.persister.SaveBaseline(ctx, p.task.Repository, taskID, p.tree); err != nil {
			p.logger.Warn("persist baseline", "task_id", taskID, "error", err)
		}
	}
	if !isNew {
		return
	}
	m := p.backend.Mapper()
	sel := store.LastSelection{
		Product:   p.tree.Value(m.MapKey(taskdata.KeyProduct)),
		Component: p.tree.Value(m.MapKey(taskdata.KeyComponent)),
	}
	if err := p.persister.SetLastSelection(ctx, p.task.Repository, sel); err != nil {
		p.logger.Warn("persist last selection", "task_id", taskID, "error", err)
	}
}

func (p *Pipeline) record(ctx context.Context, out Outcome) {
	if p.persister == nil {
		return
	}
	sub := store.Submission{
		ID:         out.SubmissionID,
		Repository: p.task.Repository,
		TaskID:     out.TaskID,
		Outcome:    string(out.State),
		Fields:     out.Payload.Names(),
	}
	if a, ok := out.Result.(connector.Accepted); ok {
		sub.Reference = a.Reference
	}
	if _, err := p.persister.RecordSubmission(context.WithoutCancel(ctx), sub); err != nil {
		p.logger.Warn("record submission", "submission_id", out.SubmissionID, "error", err)
	}
}
