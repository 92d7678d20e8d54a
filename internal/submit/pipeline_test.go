package submit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tasksync/internal/backend"
	"github.com/roach88/tasksync/internal/backend/bugzilla"
	"github.com/roach88/tasksync/internal/changes"
	"github.com/roach88/tasksync/internal/connector"
	"github.com/roach88/tasksync/internal/mapper"
	"github.com/roach88/tasksync/internal/metadata"
	"github.com/roach88/tasksync/internal/store"
	"github.com/roach88/tasksync/internal/taskdata"
	"github.com/roach88/tasksync/internal/testutil"
)

const testRepo = "https://bugs.example.com"

type memPersister struct {
	mu          sync.Mutex
	fail        error
	baselines   map[string]*taskdata.Tree
	selection   store.LastSelection
	submissions []store.Submission
}

func newMemPersister() *memPersister {
	return &memPersister{baselines: make(map[string]*taskdata.Tree)}
}

func (m *memPersister) SaveBaseline(_ context.Context, _, taskID string, tree *taskdata.Tree) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.baselines[taskID] = tree.Clone()
	return nil
}

func (m *memPersister) SetLastSelection(_ context.Context, _ string, sel store.LastSelection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.selection = sel
	return nil
}

func (m *memPersister) RecordSubmission(_ context.Context, sub store.Submission) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return 0, m.fail
	}
	m.submissions = append(m.submissions, sub)
	return int64(len(m.submissions)), nil
}

func testSnapshot() *metadata.Snapshot {
	return &metadata.Snapshot{
		Repository:     testRepo,
		Kind:           bugzilla.Kind,
		InstallVersion: "5.0",
		Revision:       1,
		Products: []metadata.Product{
			{Name: "Widgets", Components: []string{"C", "A", "B"}, Versions: []string{"unspecified"}, Milestones: []string{"---"}},
		},
	}
}

type fixture struct {
	backend   *bugzilla.Backend
	tree      *taskdata.Tree
	tracker   *changes.Tracker
	spy       *testutil.SpyConnector
	persister *memPersister
	pipeline  *Pipeline
}

func newFixture(t *testing.T, taskID string, tree *taskdata.Tree, opts ...Option) *fixture {
	t.Helper()
	b := bugzilla.New()
	if tree == nil {
		var err error
		tree, err = backend.NewTask(b, testSnapshot())
		require.NoError(t, err)
	}
	f := &fixture{
		backend:   b,
		tree:      tree,
		tracker:   changes.NewTracker(tree, changes.WithComparer(b.Mapper().Comparer())),
		spy:       testutil.NewSpyConnector(),
		persister: newMemPersister(),
	}
	opts = append([]Option{
		WithPersister(f.persister),
		WithIDGenerator(NewFixedGenerator("sub-1", "sub-2", "sub-3")),
	}, opts...)
	f.pipeline = New(Task{Repository: testRepo, ID: taskID}, b, f.spy, tree, f.tracker, opts...)
	return f
}

func fillNewTask(t *testing.T, tree *taskdata.Tree) {
	t.Helper()
	require.NoError(t, tree.Set(bugzilla.AttrProduct, "Widgets"))
	require.NoError(t, tree.Set(bugzilla.AttrComponent, "A"))
	require.NoError(t, tree.Set(bugzilla.AttrSummary, "Crash on start"))
	require.NoError(t, tree.Set(bugzilla.AttrComment, "Steps to reproduce"))
}

func existingTree(t *testing.T, token string) *taskdata.Tree {
	t.Helper()
	tree, err := bugzilla.New().Mapper().FromBackendForm(mapper.Payload{TaskID: "42", Fields: []mapper.Field{
		{Name: bugzilla.AttrBugID, Values: []string{"42"}},
		{Name: bugzilla.AttrSummary, Values: []string{"Crash"}},
		{Name: bugzilla.AttrProduct, Values: []string{"Widgets"}},
		{Name: bugzilla.AttrComponent, Values: []string{"A"}},
		{Name: bugzilla.AttrToken, Values: []string{token}},
	}})
	require.NoError(t, err)
	return tree
}

// =============================================================================
// Local validation
// =============================================================================

func TestSubmit_EmptySummaryNeverReachesConnector(t *testing.T) {
	f := newFixture(t, "", nil)
	fillNewTask(t, f.tree)
	require.NoError(t, f.tree.Set(bugzilla.AttrSummary, "   "))

	out, err := f.pipeline.Submit(context.Background())

	require.Error(t, err)
	assert.True(t, IsLocalValidation(err))
	var le *LocalValidationError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, bugzilla.AttrSummary, le.Field)
	assert.Equal(t, StateRejectedLocally, out.State)
	assert.Equal(t, StateRejectedLocally, f.pipeline.State())
	assert.Zero(t, f.spy.PostCount())
	assert.Empty(t, f.persister.submissions)
}

func TestSubmit_ValidationOrder(t *testing.T) {
	tests := []struct {
		name   string
		taskID string
		tree   func(t *testing.T) *taskdata.Tree
		edit   func(t *testing.T, tree *taskdata.Tree)
		field  string
	}{
		{
			name:  "summary before component",
			edit:  func(t *testing.T, tree *taskdata.Tree) {},
			field: bugzilla.AttrSummary,
		},
		{
			name: "component on new task",
			edit: func(t *testing.T, tree *taskdata.Tree) {
				require.NoError(t, tree.Set(bugzilla.AttrSummary, "s"))
			},
			field: bugzilla.AttrComponent,
		},
		{
			name: "description on new task",
			edit: func(t *testing.T, tree *taskdata.Tree) {
				require.NoError(t, tree.Set(bugzilla.AttrSummary, "s"))
				require.NoError(t, tree.Set(bugzilla.AttrComponent, "A"))
			},
			field: bugzilla.AttrComment,
		},
		{
			name: "backend check last",
			edit: func(t *testing.T, tree *taskdata.Tree) {
				require.NoError(t, tree.Set(bugzilla.AttrSummary, "s"))
				require.NoError(t, tree.Set(bugzilla.AttrComponent, "A"))
				require.NoError(t, tree.Set(bugzilla.AttrComment, "d"))
			},
			field: bugzilla.AttrProduct,
		},
		{
			name:   "duplicate needs target",
			taskID: "42",
			tree:   func(t *testing.T) *taskdata.Tree { return existingTree(t, "tok") },
			edit: func(t *testing.T, tree *taskdata.Tree) {
				require.NoError(t, tree.Set(bugzilla.AttrOperation, bugzilla.OpDuplicate))
			},
			field: taskdata.OperationPrefix + taskdata.OperationDuplicate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tree *taskdata.Tree
			if tt.tree != nil {
				tree = tt.tree(t)
			}
			f := newFixture(t, tt.taskID, tree)
			tt.edit(t, f.tree)

			_, err := f.pipeline.Submit(context.Background())

			var le *LocalValidationError
			require.ErrorAs(t, err, &le)
			assert.Equal(t, tt.field, le.Field)
			assert.Zero(t, f.spy.PostCount())
		})
	}
}

func TestSubmit_ExistingTaskSkipsCreationChecks(t *testing.T) {
	f := newFixture(t, "42", existingTree(t, "tok"))
	f.spy.WithTask("42", existingTree(t, "tok"))
	require.NoError(t, f.tree.Set(bugzilla.AttrComponent))

	out, err := f.pipeline.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateAccepted, out.State)
}

// =============================================================================
// Remote outcomes
// =============================================================================

func TestSubmit_AcceptedNewTask(t *testing.T) {
	var seen []State
	f := newFixture(t, "", nil, WithObserver(func(_, to State) { seen = append(seen, to) }))
	fillNewTask(t, f.tree)
	f.spy.Respond(connector.Accepted{Reference: "42"})

	out, err := f.pipeline.Submit(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateAccepted, out.State)
	assert.Equal(t, "sub-1", out.SubmissionID)
	assert.Equal(t, "42", out.TaskID)
	assert.Equal(t, "42", f.pipeline.TaskID())
	assert.True(t, out.Payload.New)
	assert.True(t, f.tracker.Diff().Empty())
	assert.Equal(t, []State{StateValidating, StatePackaging, StateSubmitting, StateAccepted}, seen)

	assert.Equal(t, store.LastSelection{Product: "Widgets", Component: "A"}, f.persister.selection)
	require.Contains(t, f.persister.baselines, "42")
	assert.Equal(t, "Crash on start", f.persister.baselines["42"].Value(bugzilla.AttrSummary))
	require.Len(t, f.persister.submissions, 1)
	sub := f.persister.submissions[0]
	assert.Equal(t, "sub-1", sub.ID)
	assert.Equal(t, "42", sub.Reference)
	assert.Equal(t, string(StateAccepted), sub.Outcome)
	assert.Empty(t, f.spy.Fetches(), "new tasks have no token to refresh")
}

func TestSubmit_ExistingTaskForcesFreshToken(t *testing.T) {
	f := newFixture(t, "42", existingTree(t, "stale"))
	f.spy.WithTask("42", existingTree(t, "fresh"))
	require.NoError(t, f.tree.Set(bugzilla.AttrSummary, "Crash on start"))

	out, err := f.pipeline.Submit(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"42"}, f.spy.Fetches())
	require.Equal(t, 1, f.spy.PostCount())
	posted := f.spy.Posts()[0]
	assert.Equal(t, "fresh", posted.Value(bugzilla.AttrToken))
	assert.Equal(t, "Crash on start", posted.Value(bugzilla.AttrSummary))
	assert.Equal(t, "fresh", f.tree.Value(bugzilla.AttrToken))
	assert.Equal(t, "42", out.TaskID)
	assert.Equal(t, store.LastSelection{}, f.persister.selection, "only new tasks remember their selection")
}

func TestSubmit_ValidationRejectedLeavesTreeAlone(t *testing.T) {
	f := newFixture(t, "", nil)
	fillNewTask(t, f.tree)
	before := f.tree.Clone()
	var fe connector.FieldErrors
	fe.Add(bugzilla.AttrComponent, connector.MessagePrefix+"Component does not exist", "A-Widgets")
	f.spy.Respond(connector.ValidationRejected{FieldErrors: fe})

	out, err := f.pipeline.Submit(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateValidationRejected, out.State)
	require.NotNil(t, out.Report)
	fr, ok := out.Report.Field(bugzilla.AttrComponent)
	require.True(t, ok)
	assert.Equal(t, "Component", fr.Label)
	assert.Equal(t, []string{"A-Widgets"}, fr.Candidates)

	assert.Equal(t, before.Attributes(), f.tree.Attributes())
	assert.False(t, f.tracker.Diff().Empty(), "rejected edits stay pending")
	assert.Equal(t, "", f.pipeline.TaskID())
	require.Len(t, f.persister.submissions, 1)
	assert.Equal(t, string(StateValidationRejected), f.persister.submissions[0].Outcome)
}

func TestSubmit_RejectedOperationInputMapsToAttribute(t *testing.T) {
	f := newFixture(t, "42", existingTree(t, "stale"))
	f.spy.WithTask("42", existingTree(t, "fresh"))
	dup := taskdata.OperationPrefix + bugzilla.OpDuplicate
	require.NoError(t, f.tree.Set(bugzilla.AttrOperation, bugzilla.OpDuplicate))
	require.NoError(t, f.tree.Set(dup, "999"))
	var fe connector.FieldErrors
	fe.Add("dup_id", connector.MessagePrefix+"bug 999 does not exist")
	f.spy.Respond(connector.ValidationRejected{FieldErrors: fe})

	out, err := f.pipeline.Submit(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, f.spy.PostCount())
	assert.Equal(t, "999", f.spy.Posts()[0].Value("dup_id"))
	require.NotNil(t, out.Report)
	require.Len(t, out.Report.Fields, 1)
	fr := out.Report.Fields[0]
	assert.Equal(t, dup, fr.AttributeID)
	assert.Equal(t, "Mark as duplicate of", fr.Label)
	assert.Equal(t, []string{"bug 999 does not exist"}, fr.Messages)
	assert.True(t, f.tree.Has(fr.AttributeID))
}

func TestSubmit_TransportFailure(t *testing.T) {
	f := newFixture(t, "", nil)
	fillNewTask(t, f.tree)
	f.spy.Script(testutil.Reply{Err: errors.New("connection reset")})

	out, err := f.pipeline.Submit(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateTransportFailed, out.State)
	tf, ok := out.Result.(connector.TransportFailed)
	require.True(t, ok)
	assert.EqualError(t, tf.Cause, "connection reset")
	assert.False(t, f.tracker.Diff().Empty())
}

func TestSubmit_NilResultIsTransportFailure(t *testing.T) {
	f := newFixture(t, "", nil)
	fillNewTask(t, f.tree)
	f.spy.Script(testutil.Reply{})

	out, err := f.pipeline.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateTransportFailed, out.State)
}

func TestSubmit_TokenFetchFailureIsTransportFailure(t *testing.T) {
	f := newFixture(t, "42", existingTree(t, "stale"))
	f.spy.FailFetch(errors.New("dial tcp: timeout"))
	require.NoError(t, f.tree.Set(bugzilla.AttrSummary, "Crash on start"))

	out, err := f.pipeline.Submit(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateTransportFailed, out.State)
	assert.Zero(t, f.spy.PostCount())
	assert.Equal(t, "stale", f.tree.Value(bugzilla.AttrToken))
}

func TestSubmit_PersistenceFailureDoesNotFailSubmission(t *testing.T) {
	f := newFixture(t, "", nil)
	f.persister.fail = errors.New("disk full")
	fillNewTask(t, f.tree)

	out, err := f.pipeline.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateAccepted, out.State)
	assert.Equal(t, testutil.DefaultReference, out.TaskID)
}

// =============================================================================
// Concurrency and cancellation
// =============================================================================

type idFunc func() string

func (f idFunc) Generate() string { return f() }

// Edits made once the changes are packaged must neither reach the new
// baseline unsent nor be lost.
func TestSubmit_EditsDuringSubmissionAreNotBaselined(t *testing.T) {
	tests := []struct {
		name   string
		opts   func(edit func()) []Option
		posted bool
	}{
		{
			name: "observer at packaging",
			opts: func(edit func()) []Option {
				return []Option{WithObserver(func(_, to State) {
					if to == StatePackaging {
						edit()
					}
				})}
			},
			posted: true,
		},
		{
			name: "observer at submitting",
			opts: func(edit func()) []Option {
				return []Option{WithObserver(func(_, to State) {
					if to == StateSubmitting {
						edit()
					}
				})}
			},
		},
		{
			name: "id generator",
			opts: func(edit func()) []Option {
				return []Option{WithIDGenerator(idFunc(func() string {
					edit()
					return "sub-1"
				}))}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := existingTree(t, "stale")
			var editErr error
			edit := func() { editErr = tree.Set(bugzilla.AttrWhiteboard, "late edit") }

			f := newFixture(t, "42", tree, tt.opts(edit)...)
			f.spy.WithTask("42", existingTree(t, "fresh"))
			require.NoError(t, tree.Set(bugzilla.AttrSummary, "Crash on start"))

			out, err := f.pipeline.Submit(context.Background())
			require.NoError(t, err)
			assert.Equal(t, StateAccepted, out.State)
			assert.False(t, tree.Frozen())
			assert.True(t, f.tracker.Diff().Empty())

			_, posted := f.spy.Posts()[0].Get(bugzilla.AttrWhiteboard)
			assert.Equal(t, tt.posted, posted)
			if tt.posted {
				require.NoError(t, editErr)
				assert.Equal(t, "late edit", tree.Value(bugzilla.AttrWhiteboard))
				return
			}
			require.Error(t, editErr)
			assert.True(t, taskdata.IsFrozen(editErr))
			assert.Empty(t, tree.Value(bugzilla.AttrWhiteboard))
		})
	}
}

func TestSubmit_CancelReturnsToIdle(t *testing.T) {
	f := newFixture(t, "42", existingTree(t, "stale"))
	f.spy.WithTask("42", existingTree(t, "fresh"))
	require.NoError(t, f.tree.Set(bugzilla.AttrSummary, "Crash on start"))
	release := f.spy.Block()
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		out Outcome
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := f.pipeline.Submit(ctx)
		done <- result{out, err}
	}()

	<-f.spy.Entered()
	assert.Equal(t, StateSubmitting, f.pipeline.State())
	assert.True(t, f.tree.Frozen())
	assert.Error(t, f.tree.Set(bugzilla.AttrSummary, "edited while in flight"))
	cancel()

	r := <-done
	require.ErrorIs(t, r.err, ErrCanceled)
	assert.Equal(t, StateIdle, r.out.State)
	assert.Equal(t, StateIdle, f.pipeline.State())
	assert.False(t, f.tree.Frozen())
	assert.Equal(t, "stale", f.tree.Value(bugzilla.AttrToken), "token restored")
	assert.Equal(t, "Crash on start", f.tree.Value(bugzilla.AttrSummary))
	assert.True(t, f.tracker.IsDirty(bugzilla.AttrSummary), "no rebaseline after cancel")
	assert.Empty(t, f.persister.submissions)
}

func TestSubmit_DeadlineIsTransportFailure(t *testing.T) {
	f := newFixture(t, "", nil)
	fillNewTask(t, f.tree)
	release := f.spy.Block()
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	out, err := f.pipeline.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateTransportFailed, out.State)
	assert.False(t, f.tracker.Diff().Empty())
}

func TestSubmit_SecondSubmitWhileInFlight(t *testing.T) {
	f := newFixture(t, "", nil)
	fillNewTask(t, f.tree)
	release := f.spy.Block()

	done := make(chan Outcome, 1)
	go func() {
		out, err := f.pipeline.Submit(context.Background())
		assert.NoError(t, err)
		done <- out
	}()

	<-f.spy.Entered()
	out, err := f.pipeline.Submit(context.Background())
	assert.ErrorIs(t, err, ErrSubmissionInProgress)
	assert.Equal(t, StateSubmitting, out.State)

	release()
	assert.Equal(t, StateAccepted, (<-done).State)
	assert.Equal(t, 1, f.spy.PostCount())
}

// =============================================================================
// IDs
// =============================================================================

func TestFixedGenerator(t *testing.T) {
	g := NewFixedGenerator("a", "b")
	assert.Equal(t, "a", g.Generate())
	assert.Equal(t, "b", g.Generate())
	assert.Panics(t, func() { g.Generate() })
}

func TestUUIDv7Generator(t *testing.T) {
	g := UUIDv7Generator{}
	a, b := g.Generate(), g.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}
