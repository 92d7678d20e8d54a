// Package changes tracks a task's edits against its last synced baseline.
package changes

import (
	"log/slog"

	"github.com/roach88/tasksync/internal/taskdata"
)

// DirtyListener is told when an attribute starts or stops differing from
// the baseline.
type DirtyListener interface {
	Dirty(id string, dirty bool)
}

// DirtyFunc adapts a function to DirtyListener.
type DirtyFunc func(id string, dirty bool)

// Dirty calls f.
func (f DirtyFunc) Dirty(id string, dirty bool) { f(id, dirty) }

// Tracker compares a live tree with an immutable baseline copy.
//
// The baseline is replaced wholesale by SnapshotBaseline or Rebaseline and
// never mutated in place.
type Tracker struct {
	tree      *taskdata.Tree
	baseline  *taskdata.Tree
	comparer  Comparer
	logger    *slog.Logger
	dirty     map[string]bool
	listeners []DirtyListener
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithComparer replaces the kind-based comparer.
func WithComparer(c Comparer) Option {
	return func(t *Tracker) {
		if c != nil {
			t.comparer = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = l
	}
}

// NewTracker tracks tree, taking its current state as the baseline.
func NewTracker(tree *taskdata.Tree, opts ...Option) *Tracker {
	t := &Tracker{
		tree:     tree,
		baseline: tree.Clone(),
		comparer: KindComparer{},
		logger:   slog.Default(),
		dirty:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(t)
	}
	tree.Subscribe(t)
	return t
}

// Subscribe registers a dirty-state listener.
func (t *Tracker) Subscribe(l DirtyListener) {
	t.listeners = append(t.listeners, l)
}

// Baseline returns a copy of the baseline tree.
func (t *Tracker) Baseline() *taskdata.Tree {
	return t.baseline.Clone()
}

// SnapshotBaseline replaces the baseline with a deep copy of base, typically
// a persisted or freshly fetched record of the task.
func (t *Tracker) SnapshotBaseline(base *taskdata.Tree) {
	t.baseline = base.Clone()
	t.recheckAll()
}

// Rebaseline replaces the baseline with a deep copy of the current tree.
// Call it only after the backend accepted a submission.
func (t *Tracker) Rebaseline() {
	t.SnapshotBaseline(t.tree)
	t.logger.Debug("rebaselined", "attributes", t.tree.Len())
}

// Diff returns every attribute whose current value differs from the
// baseline. Attributes added since the baseline are included when they hold
// a value; removed attributes are included with no new value.
func (t *Tracker) Diff() ChangeSet {
	var out []Change
	for _, a := range t.tree.Attributes() {
		old := t.baseline.Values(a.ID)
		if t.equal(a.Meta.Kind, old, a.Values) {
			continue
		}
		out = append(out, Change{ID: a.ID, Kind: a.Meta.Kind, Old: old, New: a.Values})
	}
	for _, b := range t.baseline.Attributes() {
		if t.tree.Has(b.ID) || len(b.Values) == 0 {
			continue
		}
		out = append(out, Change{ID: b.ID, Kind: b.Meta.Kind, Old: b.Values})
	}
	return ChangeSet{changes: out}
}

// IsDirty reports whether id differs from the baseline.
func (t *Tracker) IsDirty(id string) bool {
	kind := t.kindOf(id)
	return !t.equal(kind, t.baseline.Values(id), t.tree.Values(id))
}

// AttributeChanged implements taskdata.Listener.
func (t *Tracker) AttributeChanged(_ *taskdata.Tree, ev taskdata.Event) {
	switch ev.Type {
	case taskdata.EventChanged, taskdata.EventAdded, taskdata.EventRemoved:
		t.recheck(ev.AttributeID)
	}
}

func (t *Tracker) equal(kind taskdata.Kind, a, b []string) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return t.comparer.Equal(kind, a, b)
}

func (t *Tracker) kindOf(id string) taskdata.Kind {
	if a, ok := t.tree.Get(id); ok {
		return a.Meta.Kind
	}
	a, _ := t.baseline.Get(id)
	return a.Meta.Kind
}

func (t *Tracker) recheck(id string) {
	now := t.IsDirty(id)
	if t.dirty[id] == now {
		return
	}
	if now {
		t.dirty[id] = true
	} else {
		delete(t.dirty, id)
	}
	for _, l := range t.listeners {
		l.Dirty(id, now)
	}
}

func (t *Tracker) recheckAll() {
	for id := range t.dirty {
		t.recheck(id)
	}
	for _, id := range t.tree.IDs() {
		t.recheck(id)
	}
}
