package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

const testRepo = "https://bugs.example.com"

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		name     string
		expected string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"},
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
		{"user_version", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.pragma(tt.name)
			if err != nil {
				t.Fatalf("pragma(%s) failed: %v", tt.name, err)
			}
			if got != tt.expected {
				t.Errorf("%s = %q, expected %q", tt.name, got, tt.expected)
			}
		})
	}
}

func TestOpen_MigrationsAreRecorded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	s.Close()

	// Reopening must not reapply anything.
	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	version, err := s.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion() failed: %v", err)
	}
	if want := migrations[len(migrations)-1].version; version != want {
		t.Errorf("SchemaVersion() = %d, expected %d", version, want)
	}
}

func TestBaseline_SaveAndLoad(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.LoadBaseline(ctx, testRepo, "42"); err != nil || ok {
		t.Fatalf("LoadBaseline() on empty store = ok %v, err %v", ok, err)
	}

	if err := s.SaveBaseline(ctx, testRepo, "42", createTestTree(t, "first")); err != nil {
		t.Fatalf("SaveBaseline() failed: %v", err)
	}
	if err := s.SaveBaseline(ctx, testRepo, "42", createTestTree(t, "second")); err != nil {
		t.Fatalf("SaveBaseline() overwrite failed: %v", err)
	}

	tree, ok, err := s.LoadBaseline(ctx, testRepo, "42")
	if err != nil || !ok {
		t.Fatalf("LoadBaseline() = ok %v, err %v", ok, err)
	}
	if got := tree.Value("short_desc"); got != "second" {
		t.Errorf("short_desc = %q, want %q", got, "second")
	}
	comp, _ := tree.Get("component")
	if len(comp.Options) != 2 {
		t.Errorf("component options = %v, want 2 entries", comp.Options)
	}

	fp, err := s.BaselineFingerprint(ctx, testRepo, "42")
	if err != nil {
		t.Fatalf("BaselineFingerprint() failed: %v", err)
	}
	if len(fp) != 64 {
		t.Errorf("fingerprint length = %d, want 64", len(fp))
	}
}

func TestBaseline_ScopedByRepository(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.SaveBaseline(ctx, testRepo, "1", createTestTree(t, "bugzilla")); err != nil {
		t.Fatalf("SaveBaseline() failed: %v", err)
	}
	if _, ok, _ := s.LoadBaseline(ctx, "https://trac.example.com", "1"); ok {
		t.Error("baseline leaked across repositories")
	}
}

func TestProperties_LastSelection(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	sel, err := s.LastSelection(ctx, testRepo)
	if err != nil {
		t.Fatalf("LastSelection() failed: %v", err)
	}
	if sel != (LastSelection{}) {
		t.Errorf("LastSelection() on empty store = %+v", sel)
	}

	if err := s.SetLastSelection(ctx, testRepo, LastSelection{Product: "Widgets", Component: "A"}); err != nil {
		t.Fatalf("SetLastSelection() failed: %v", err)
	}
	if err := s.SetLastSelection(ctx, testRepo, LastSelection{Product: "Widgets", Component: "B"}); err != nil {
		t.Fatalf("SetLastSelection() failed: %v", err)
	}

	sel, err = s.LastSelection(ctx, testRepo)
	if err != nil {
		t.Fatalf("LastSelection() failed: %v", err)
	}
	want := LastSelection{Product: "Widgets", Component: "B"}
	if sel != want {
		t.Errorf("LastSelection() = %+v, want %+v", sel, want)
	}

	if v, _ := s.Property(ctx, testRepo, KeyLastProduct); v != "Widgets" {
		t.Errorf("Property(%s) = %q", KeyLastProduct, v)
	}
}

func TestSubmissions_OrderedBySeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, sub := range []Submission{
		{ID: "z-first", Repository: testRepo, TaskID: "42", Outcome: "accepted", Reference: "42", Fields: []string{"short_desc"}},
		{ID: "a-second", Repository: testRepo, TaskID: "42", Outcome: "validation-rejected"},
		{ID: "m-other", Repository: testRepo, TaskID: "7", Outcome: "transport-failed"},
	} {
		if _, err := s.RecordSubmission(ctx, sub); err != nil {
			t.Fatalf("RecordSubmission(%s) failed: %v", sub.ID, err)
		}
	}

	got, err := s.Submissions(ctx, testRepo, "42")
	if err != nil {
		t.Fatalf("Submissions() failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Submissions() returned %d entries, want 2", len(got))
	}
	if got[0].ID != "z-first" || got[1].ID != "a-second" {
		t.Errorf("order = %s, %s; want z-first, a-second", got[0].ID, got[1].ID)
	}
	if got[0].Seq >= got[1].Seq {
		t.Errorf("seq not increasing: %d, %d", got[0].Seq, got[1].Seq)
	}
	if len(got[0].Fields) != 1 || got[0].Fields[0] != "short_desc" {
		t.Errorf("fields = %v", got[0].Fields)
	}
	if got[1].Fields == nil {
		t.Error("fields should decode to an empty slice, not nil")
	}

	all, err := s.Submissions(ctx, testRepo, "")
	if err != nil {
		t.Fatalf("Submissions() failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Submissions(all) returned %d entries, want 3", len(all))
	}
}

func TestSubmissions_DuplicateIDIgnored(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	sub := Submission{ID: "dup", Repository: testRepo, TaskID: "1", Outcome: "accepted"}

	seq, err := s.RecordSubmission(ctx, sub)
	if err != nil || seq != 1 {
		t.Fatalf("first RecordSubmission() = %d, %v", seq, err)
	}
	seq, err = s.RecordSubmission(ctx, sub)
	if err != nil || seq != 0 {
		t.Fatalf("duplicate RecordSubmission() = %d, %v; want 0, nil", seq, err)
	}
}
