package changes

import (
	"slices"
	"sort"

	"github.com/roach88/tasksync/internal/taskdata"
)

// Change is one attribute whose current value differs from the baseline.
type Change struct {
	ID   string
	Kind taskdata.Kind
	Old  []string
	New  []string
}

// ChangeSet is the delta between the current tree and its baseline, in
// tree order. Removed attributes follow the current tree's attributes.
type ChangeSet struct {
	changes []Change
}

// NewChangeSet builds a change set from changes in the given order.
func NewChangeSet(changes ...Change) ChangeSet {
	return ChangeSet{changes: slices.Clone(changes)}
}

// Empty reports whether nothing changed.
func (cs ChangeSet) Empty() bool { return len(cs.changes) == 0 }

// Len returns the number of changed attributes.
func (cs ChangeSet) Len() int { return len(cs.changes) }

// Changes returns the changes in tree order.
func (cs ChangeSet) Changes() []Change {
	return slices.Clone(cs.changes)
}

// Has reports whether id changed.
func (cs ChangeSet) Has(id string) bool {
	_, ok := cs.Get(id)
	return ok
}

// Get returns the change for id.
func (cs ChangeSet) Get(id string) (Change, bool) {
	for _, c := range cs.changes {
		if c.ID == id {
			return c, true
		}
	}
	return Change{}, false
}

// IDs returns the changed attribute ids sorted lexically.
func (cs ChangeSet) IDs() []string {
	out := make([]string, len(cs.changes))
	for i, c := range cs.changes {
		out[i] = c.ID
	}
	sort.Strings(out)
	return out
}
