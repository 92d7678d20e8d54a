// Package session ties one task's tree, change tracker, dependency
// resolver and submission pipeline together.
//
// A Session is owned by a single goroutine. Sessions for the same
// repository share only the metadata registry, whose snapshots are
// immutable and swapped atomically.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/tasksync/internal/backend"
	"github.com/roach88/tasksync/internal/changes"
	"github.com/roach88/tasksync/internal/connector"
	"github.com/roach88/tasksync/internal/mapper"
	"github.com/roach88/tasksync/internal/metadata"
	"github.com/roach88/tasksync/internal/resolver"
	"github.com/roach88/tasksync/internal/store"
	"github.com/roach88/tasksync/internal/submit"
	"github.com/roach88/tasksync/internal/taskdata"
)

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("session closed")

// Store is the persistence a session uses. *store.Store implements it.
type Store interface {
	submit.Persister
	LoadBaseline(ctx context.Context, repository, taskID string) (*taskdata.Tree, bool, error)
	BaselineFingerprint(ctx context.Context, repository, taskID string) (string, error)
	LastSelection(ctx context.Context, repository string) (store.LastSelection, error)
}

// Deps are the collaborators a session is built from.
type Deps struct {
	Backend   backend.Backend
	Connector connector.Connector
	Metadata  *metadata.Registry

	// Store is optional. Without it nothing survives the process.
	Store Store

	// IDs generates submission ids. Defaults to UUIDv7.
	IDs submit.IDGenerator

	// Observer is called on every pipeline state transition.
	Observer func(from, to submit.State)

	Logger *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// Refresher redraws one attribute after its value, options or metadata
// changed.
type Refresher interface {
	Refresh(a taskdata.Attribute)
}

// RefreshFunc adapts a function to Refresher.
type RefreshFunc func(a taskdata.Attribute)

// Refresh calls f.
func (f RefreshFunc) Refresh(a taskdata.Attribute) { f(a) }

// Session is one open task.
type Session struct {
	id       string
	deps     Deps
	logger   *slog.Logger
	tree     *taskdata.Tree
	tracker  *changes.Tracker
	resolver *resolver.Resolver
	pipeline *submit.Pipeline
	tables   *tableCache

	refreshers map[string]Refresher
	closed     bool
}

// Open loads an existing task. When the task cannot be fetched, the stored
// baseline is used instead if there is one.
func Open(ctx context.Context, deps Deps, taskID string) (*Session, error) {
	if taskID == "" {
		return nil, errors.New("open session: empty task id")
	}
	logger := deps.logger()
	repo := deps.Metadata.Repository()

	tree, err := deps.Connector.FetchTask(ctx, taskID)
	if err != nil {
		stored, ok, serr := loadStored(ctx, deps, taskID)
		if serr != nil || !ok {
			return nil, fmt.Errorf("open task %s: %w", taskID, err)
		}
		logger.Warn("task fetch failed, opening stored baseline",
			"task_id", taskID,
			"error", err,
		)
		tree = stored
	} else {
		warnIfChanged(ctx, deps, taskID, tree)
	}

	snap := currentSnapshot(ctx, deps)
	if snap != nil {
		if err := deps.Backend.InitializeTask(tree, snap); err != nil {
			return nil, fmt.Errorf("open task %s: %w", taskID, err)
		}
	} else {
		logger.Warn("no repository configuration, option sets not loaded",
			"repository", repo,
			"task_id", taskID,
		)
	}

	s := build(deps, taskID, tree)
	if snap != nil {
		if err := s.resolver.Prime(tree); err != nil {
			logger.Warn("dependent option sets incomplete", "task_id", taskID, "error", err)
		}
		s.tracker.Rebaseline()
	}
	logger.Info("session opened",
		"session_id", s.id,
		"task_id", taskID,
		"backend", deps.Backend.Kind(),
	)
	return s, nil
}

// New starts a task that does not exist remotely yet. The product and
// component remembered from the last created task are preselected when they
// are still offered.
func New(ctx context.Context, deps Deps) (*Session, error) {
	snap := currentSnapshot(ctx, deps)
	if snap == nil {
		return nil, metadata.Unavailable(deps.Metadata.Repository(), "cannot create a task without repository configuration", nil)
	}
	tree, err := backend.NewTask(deps.Backend, snap)
	if err != nil {
		return nil, fmt.Errorf("new task: %w", err)
	}

	s := build(deps, "", tree)
	s.applyRemembered(ctx)
	s.tracker.Rebaseline()

	s.logger.Info("session created",
		"session_id", s.id,
		"backend", deps.Backend.Kind(),
		"product", tree.Value(s.mapper().MapKey(taskdata.KeyProduct)),
	)
	return s, nil
}

func build(deps Deps, taskID string, tree *taskdata.Tree) *Session {
	logger := deps.logger()
	tables := &tableCache{backend: deps.Backend, registry: deps.Metadata}
	s := &Session{
		id:         uuid.Must(uuid.NewV7()).String(),
		deps:       deps,
		logger:     logger,
		tree:       tree,
		tables:     tables,
		refreshers: make(map[string]Refresher),
	}
	s.resolver = resolver.New(tables, resolver.WithLogger(logger))
	s.resolver.Attach(tree)
	s.tracker = changes.NewTracker(tree,
		changes.WithComparer(deps.Backend.Mapper().Comparer()),
		changes.WithLogger(logger),
	)
	tree.Subscribe(taskdata.ListenerFunc(s.forward))

	opts := []submit.Option{submit.WithLogger(logger)}
	if deps.Store != nil {
		opts = append(opts, submit.WithPersister(deps.Store))
	}
	if deps.IDs != nil {
		opts = append(opts, submit.WithIDGenerator(deps.IDs))
	}
	if deps.Observer != nil {
		opts = append(opts, submit.WithObserver(deps.Observer))
	}
	task := submit.Task{Repository: deps.Metadata.Repository(), ID: taskID}
	s.pipeline = submit.New(task, deps.Backend, deps.Connector, tree, s.tracker, opts...)
	return s
}

func currentSnapshot(ctx context.Context, deps Deps) *metadata.Snapshot {
	if snap := deps.Metadata.Current(); snap != nil {
		return snap
	}
	snap, _ := deps.Metadata.Refresh(ctx, deps.Connector)
	return snap
}

func loadStored(ctx context.Context, deps Deps, taskID string) (*taskdata.Tree, bool, error) {
	if deps.Store == nil {
		return nil, false, nil
	}
	return deps.Store.LoadBaseline(ctx, deps.Metadata.Repository(), taskID)
}

// warnIfChanged logs when the fetched task differs from the baseline stored
// after our last submission, meaning someone else edited it since.
func warnIfChanged(ctx context.Context, deps Deps, taskID string, fetched *taskdata.Tree) {
	if deps.Store == nil {
		return
	}
	stored, err := deps.Store.BaselineFingerprint(ctx, deps.Metadata.Repository(), taskID)
	if err != nil || stored == "" {
		return
	}
	fp, err := taskdata.Fingerprint(fetched)
	if err != nil || fp == stored {
		return
	}
	deps.logger().Info("task changed remotely since last submission",
		"task_id", taskID,
		"stored_fingerprint", stored,
		"fetched_fingerprint", fp,
	)
}

func (s *Session) applyRemembered(ctx context.Context) {
	if s.deps.Store == nil {
		return
	}
	sel, err := s.deps.Store.LastSelection(ctx, s.deps.Metadata.Repository())
	if err != nil {
		s.logger.Warn("load remembered selection", "error", err)
		return
	}
	m := s.mapper()
	for _, pick := range []struct{ id, value string }{
		{m.MapKey(taskdata.KeyProduct), sel.Product},
		{m.MapKey(taskdata.KeyComponent), sel.Component},
	} {
		if pick.value == "" {
			continue
		}
		a, ok := s.tree.Get(pick.id)
		if !ok || !a.HasOption(pick.value) {
			continue
		}
		if err := s.tree.Set(pick.id, pick.value); err != nil {
			s.logger.Warn("apply remembered selection", "attribute", pick.id, "error", err)
		}
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// TaskID returns the remote task id, or "" for a task not yet created.
func (s *Session) TaskID() string { return s.pipeline.TaskID() }

// Backend returns the session's backend.
func (s *Session) Backend() backend.Backend { return s.deps.Backend }

// Tree returns the session's tree. Callers must not mutate it from another
// goroutine.
func (s *Session) Tree() *taskdata.Tree { return s.tree }

// Diff returns the pending changes.
func (s *Session) Diff() changes.ChangeSet { return s.tracker.Diff() }

// IsDirty reports whether an attribute differs from the baseline.
func (s *Session) IsDirty(id string) bool { return s.tracker.IsDirty(id) }

// State returns the submission pipeline state.
func (s *Session) State() submit.State { return s.pipeline.State() }

// LastCascade describes the most recent dependency cascade.
func (s *Session) LastCascade() resolver.Cascade { return s.resolver.LastCascade() }

// OnDirty registers a listener for dirty-state changes.
func (s *Session) OnDirty(l changes.DirtyListener) { s.tracker.Subscribe(l) }

func (s *Session) mapper() mapper.Mapper { return s.deps.Backend.Mapper() }

// Set writes an attribute. Dependent attributes are recomputed before Set
// returns.
func (s *Session) Set(id string, values ...string) error {
	if s.closed {
		return ErrClosed
	}
	return s.tree.Set(id, values...)
}

// SetKey writes the attribute a generic key maps to.
func (s *Session) SetKey(key string, values ...string) error {
	return s.Set(s.mapper().MapKey(key), values...)
}

// Submit sends the pending changes.
func (s *Session) Submit(ctx context.Context) (submit.Outcome, error) {
	if s.closed {
		return submit.Outcome{State: s.pipeline.State()}, ErrClosed
	}
	return s.pipeline.Submit(ctx)
}

// Reload refreshes repository configuration and reapplies option sets.
// Values are kept. On failure the previous configuration stays in effect.
func (s *Session) Reload(ctx context.Context) error {
	if s.closed {
		return ErrClosed
	}
	snap, err := s.deps.Metadata.Refresh(ctx, s.deps.Connector)
	if err != nil {
		return err
	}
	if err := s.deps.Backend.InitializeTask(s.tree, snap); err != nil {
		return err
	}
	return s.resolver.Prime(s.tree)
}

// Clone copies compatible attribute values into target, typically a fresh
// session for a new task. It returns the target attribute ids written.
func (s *Session) Clone(target *Session) ([]string, error) {
	if s.closed || target.closed {
		return nil, ErrClosed
	}
	return mapper.CopyCompatible(s.tree, target.tree, s.mapper(), target.mapper())
}

// RegisterRefresher makes r the refresher of an attribute, replacing any
// previous one.
func (s *Session) RegisterRefresher(id string, r Refresher) {
	s.refreshers[id] = r
}

// UnregisterRefresher removes an attribute's refresher.
func (s *Session) UnregisterRefresher(id string) {
	delete(s.refreshers, id)
}

// Refreshers returns the ids that have a refresher, sorted.
func (s *Session) Refreshers() []string {
	ids := make([]string, 0, len(s.refreshers))
	for id := range s.refreshers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (s *Session) forward(tree *taskdata.Tree, ev taskdata.Event) {
	if s.closed {
		return
	}
	switch ev.Type {
	case taskdata.EventChanged, taskdata.EventOptions, taskdata.EventMetadata, taskdata.EventRefresh:
	default:
		return
	}
	r, ok := s.refreshers[ev.AttributeID]
	if !ok {
		return
	}
	if a, ok := tree.Get(ev.AttributeID); ok {
		r.Refresh(a)
	}
}

// Close releases the session. Further edits and submissions fail with
// ErrClosed.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	clear(s.refreshers)
	s.logger.Debug("session closed", "session_id", s.id, "task_id", s.TaskID())
	return nil
}

// tableCache builds the backend's rule table once per published snapshot.
type tableCache struct {
	backend  backend.Backend
	registry *metadata.Registry

	mu    sync.Mutex
	snap  *metadata.Snapshot
	table *metadata.Table
}

// Table implements resolver.TableSource.
func (c *tableCache) Table() (*metadata.Table, error) {
	snap := c.registry.Current()
	if snap == nil {
		return nil, metadata.Unavailable(c.registry.Repository(), "no repository configuration loaded", nil)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if snap == c.snap && c.table != nil {
		return c.table, nil
	}
	t, err := c.backend.Rules(snap)
	if err != nil {
		return nil, err
	}
	c.snap, c.table = snap, t
	return t, nil
}
