package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/tasksync/internal/taskdata"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestTree creates a small task tree with a summary and a component.
func createTestTree(t *testing.T, summary string) *taskdata.Tree {
	t.Helper()
	tree := taskdata.NewTree()
	if err := tree.Add(taskdata.Attribute{
		ID:     "short_desc",
		Meta:   taskdata.Metadata{Label: "Summary", Kind: taskdata.KindText},
		Values: []string{summary},
	}); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if err := tree.Add(taskdata.Attribute{
		ID:      "component",
		Meta:    taskdata.Metadata{Label: "Component", Kind: taskdata.KindSingleSelect},
		Options: taskdata.OptionsFromValues([]string{"A", "B"}),
		Values:  []string{"A"},
	}); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	return tree
}
