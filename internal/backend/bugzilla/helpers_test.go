package bugzilla

import (
	"sort"
	"testing"

	"github.com/roach88/tasksync/internal/changes"
	"github.com/roach88/tasksync/internal/mapper"
	"github.com/roach88/tasksync/internal/taskdata"
)

func mapperPayload(fields map[string]string) mapper.Payload {
	names := make([]string, 0, len(fields))
	for n := range fields {
		names = append(names, n)
	}
	sort.Strings(names)
	var p mapper.Payload
	for _, n := range names {
		p.Set(n, fields[n])
	}
	return p
}

// changesFor diffs tree against an empty-operation copy of itself.
func changesFor(t *testing.T, tree *taskdata.Tree) changes.ChangeSet {
	t.Helper()
	base := tree.Clone()
	_ = base.Set(AttrOperation)
	_ = base.Set(taskdata.OperationPrefix + OpDuplicate)
	tr := changes.NewTracker(tree)
	tr.SnapshotBaseline(base)
	return tr.Diff()
}
