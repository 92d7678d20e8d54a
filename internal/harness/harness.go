package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/tasksync/internal/backend"
	"github.com/roach88/tasksync/internal/backend/bugzilla"
	"github.com/roach88/tasksync/internal/backend/trac"
	"github.com/roach88/tasksync/internal/config"
	"github.com/roach88/tasksync/internal/connector"
	"github.com/roach88/tasksync/internal/mapper"
	"github.com/roach88/tasksync/internal/metadata"
	"github.com/roach88/tasksync/internal/session"
	"github.com/roach88/tasksync/internal/store"
	"github.com/roach88/tasksync/internal/submit"
	"github.com/roach88/tasksync/internal/testutil"
)

// Backends returns the registry of every supported backend.
func Backends() *backend.Registry {
	return backend.NewRegistry(bugzilla.New(), trac.New())
}

// Option configures a run.
type Option func(*Harness)

// WithLogger sets the logger handed to the session. Runs are silent by
// default.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = l
	}
}

// Harness executes one scenario.
type Harness struct {
	store   *store.Store
	spy     *testutil.SpyConnector
	session *session.Session
	logger  *slog.Logger
	result  *Result

	lastOutcome submit.Outcome
	lastErr     error
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory database and a scripted
// connector. Submission ids are sub-1, sub-2, ... in submit order.
//
// Execution flow:
// 1. Load the repository definition and resolve its backend
// 2. Seed the remote task and remembered selection
// 3. Open or create the session
// 4. Execute steps, checking expect steps as they come
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	ctx := context.Background()

	snap, err := config.LoadRepository(scenario.Repository)
	if err != nil {
		return nil, fmt.Errorf("failed to load repository: %w", err)
	}
	b, err := Backends().Resolve(snap.Kind)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:  st,
		spy:    testutil.NewSpyConnector().WithSnapshot(snap),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		result: NewResult(),
	}
	for _, opt := range opts {
		opt(h)
	}

	if r := scenario.Remembered; r != nil {
		sel := store.LastSelection{Product: r.Product, Component: r.Component}
		if err := st.SetLastSelection(ctx, snap.Repository, sel); err != nil {
			return nil, fmt.Errorf("failed to seed remembered selection: %w", err)
		}
	}

	deps := session.Deps{
		Backend:   b,
		Connector: &tracingConnector{SpyConnector: h.spy, result: h.result},
		Metadata:  metadata.NewRegistry(snap.Repository, snap).WithLogger(h.logger),
		Store:     st,
		IDs:       submit.NewFixedGenerator(submissionIDs(scenario)...),
		Observer: func(from, to submit.State) {
			h.result.record(TraceEvent{Type: EventTransition, From: string(from), To: string(to)})
		},
		Logger: h.logger,
	}

	if t := scenario.Task; t != nil {
		tree, err := b.Mapper().FromBackendForm(remotePayload(t))
		if err != nil {
			return nil, fmt.Errorf("failed to build remote task: %w", err)
		}
		h.spy.WithTask(t.ID, tree)
		h.session, err = session.Open(ctx, deps, t.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to open task %s: %w", t.ID, err)
		}
		h.result.record(TraceEvent{Type: EventSession, Outcome: "open", Reference: t.ID})
	} else {
		h.session, err = session.New(ctx, deps)
		if err != nil {
			return nil, fmt.Errorf("failed to create task: %w", err)
		}
		h.result.record(TraceEvent{Type: EventSession, Outcome: "new"})
	}
	defer h.session.Close()

	for i, step := range scenario.Steps {
		switch {
		case step.Set != nil:
			if err := h.set(step.Set); err != nil {
				return nil, fmt.Errorf("steps[%d]: %w", i, err)
			}
		case step.Submit != nil:
			h.submit(ctx, step.Submit)
		case step.Expect != nil:
			h.expect(ctx, i, step.Expect, snap.Repository)
		}
	}
	return h.result, nil
}

func submissionIDs(s *Scenario) []string {
	var ids []string
	for _, step := range s.Steps {
		if step.Submit != nil {
			ids = append(ids, fmt.Sprintf("sub-%d", len(ids)+1))
		}
	}
	return ids
}

// remotePayload builds a fetched task with fields in name order.
func remotePayload(t *RemoteTask) mapper.Payload {
	p := mapper.Payload{TaskID: t.ID}
	for _, name := range slices.Sorted(maps.Keys(t.Fields)) {
		p.Set(name, t.Fields[name]...)
	}
	return p
}

func (h *Harness) set(step *SetStep) error {
	id := step.Attribute
	if step.Key != "" {
		id = h.session.Backend().Mapper().MapKey(step.Key)
	}
	before := h.session.Tree().Values(id)
	if err := h.session.Set(id, step.Values...); err != nil {
		return fmt.Errorf("set %s: %w", id, err)
	}

	ev := TraceEvent{Type: EventSet, Attribute: id, Values: step.Values}
	if c := h.session.LastCascade(); c.Trigger == id && !slices.Equal(before, h.session.Tree().Values(id)) {
		ev.Fired = c.Fired
		ev.Touched = c.Touched
	}
	h.result.record(ev)
	return nil
}

func (h *Harness) submit(ctx context.Context, step *SubmitStep) {
	switch step.Reply {
	case ReplyRejected:
		var fe connector.FieldErrors
		for _, f := range step.FieldErrors {
			fe.Add(f.Field, f.Reasons...)
		}
		h.spy.Respond(connector.ValidationRejected{
			FieldErrors: fe,
			Severity:    connector.Severity(step.Severity),
		})
	case ReplyTransport:
		h.spy.Script(testutil.Reply{Err: errors.New(step.Error)})
	default:
		h.spy.Respond(connector.Accepted{Reference: step.Reference})
	}

	out, err := h.session.Submit(ctx)
	h.lastOutcome, h.lastErr = out, err
	// A submission rejected before posting leaves its reply unused.
	h.spy.DropScript()

	ev := TraceEvent{Type: EventOutcome, Outcome: string(out.State)}
	switch r := out.Result.(type) {
	case connector.Accepted:
		ev.Reference = r.Reference
	case connector.TransportFailed:
		ev.Error = r.Error()
	}
	if out.Report != nil {
		for _, f := range out.Report.Fields {
			ev.Fields = append(ev.Fields, f.AttributeID)
		}
	}
	if err != nil {
		ev.Error = err.Error()
	}
	h.result.record(ev)
}

func (h *Harness) expect(ctx context.Context, i int, e *Expect, repository string) {
	fail := func(format string, args ...any) {
		h.result.AddError(fmt.Sprintf("steps[%d].expect: ", i) + fmt.Sprintf(format, args...))
	}
	tree := h.session.Tree()

	for _, id := range slices.Sorted(maps.Keys(e.Values)) {
		if got := tree.Values(id); !sameValues(got, e.Values[id]) {
			fail("%s = %v, expected %v", id, got, e.Values[id])
		}
	}
	for _, id := range slices.Sorted(maps.Keys(e.Options)) {
		a, ok := tree.Get(id)
		if !ok {
			fail("%s not in tree", id)
			continue
		}
		if got := a.OptionValues(); !sameValues(got, e.Options[id]) {
			fail("%s options = %v, expected %v", id, got, e.Options[id])
		}
	}

	diff := h.session.Diff()
	if e.Clean && !diff.Empty() {
		fail("expected no pending changes, got %v", diff.IDs())
	}
	if e.Dirty != nil && !slices.Equal(diff.IDs(), sortedCopy(e.Dirty)) {
		fail("dirty = %v, expected %v", diff.IDs(), sortedCopy(e.Dirty))
	}
	if e.State != "" && string(h.session.State()) != e.State {
		fail("state = %s, expected %s", h.session.State(), e.State)
	}
	if e.TaskID != "" && h.session.TaskID() != e.TaskID {
		fail("task id = %q, expected %q", h.session.TaskID(), e.TaskID)
	}
	if e.Posts != nil && h.spy.PostCount() != *e.Posts {
		fail("posts = %d, expected %d", h.spy.PostCount(), *e.Posts)
	}
	if len(e.Posted) > 0 {
		posts := h.spy.Posts()
		if len(posts) == 0 {
			fail("nothing was posted")
		} else {
			last := posts[len(posts)-1]
			for _, name := range slices.Sorted(maps.Keys(e.Posted)) {
				got, _ := last.Get(name)
				if !sameValues(got, e.Posted[name]) {
					fail("posted %s = %v, expected %v", name, got, e.Posted[name])
				}
			}
		}
	}
	if e.Error != "" {
		if h.lastErr == nil || !strings.Contains(h.lastErr.Error(), e.Error) {
			fail("last submit error = %v, expected it to contain %q", h.lastErr, e.Error)
		}
	}
	if e.Report != nil {
		h.expectReport(fail, e.Report)
	}
	if e.Remembered != nil {
		sel, err := h.store.LastSelection(ctx, repository)
		want := store.LastSelection{Product: e.Remembered.Product, Component: e.Remembered.Component}
		if err != nil {
			fail("load remembered selection: %v", err)
		} else if sel != want {
			fail("remembered = %+v, expected %+v", sel, want)
		}
	}
}

func (h *Harness) expectReport(fail func(string, ...any), e *ReportExpect) {
	rep := h.lastOutcome.Report
	if rep == nil {
		fail("no rejection report")
		return
	}
	if e.Severity != "" && string(rep.Severity) != e.Severity {
		fail("report severity = %s, expected %s", rep.Severity, e.Severity)
	}
	if e.Summary != "" && rep.Summary != e.Summary {
		fail("report summary = %q, expected %q", rep.Summary, e.Summary)
	}
	for _, id := range slices.Sorted(maps.Keys(e.Messages)) {
		f, _ := rep.Field(id)
		if !sameValues(f.Messages, e.Messages[id]) {
			fail("report %s messages = %v, expected %v", id, f.Messages, e.Messages[id])
		}
	}
	for _, id := range slices.Sorted(maps.Keys(e.Candidates)) {
		f, _ := rep.Field(id)
		if !sameValues(f.Candidates, e.Candidates[id]) {
			fail("report %s candidates = %v, expected %v", id, f.Candidates, e.Candidates[id])
		}
	}
}

// sameValues compares value lists, treating nil and empty as equal.
func sameValues(a, b []string) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return slices.Equal(a, b)
}

func sortedCopy(s []string) []string {
	out := slices.Clone(s)
	slices.Sort(out)
	return out
}

// tracingConnector records each Post in the trace before delegating.
type tracingConnector struct {
	*testutil.SpyConnector
	result *Result
}

func (c *tracingConnector) Post(ctx context.Context, p mapper.Payload) (connector.Result, error) {
	c.result.record(TraceEvent{Type: EventPost, Reference: p.TaskID, Fields: p.Names()})
	return c.SpyConnector.Post(ctx, p)
}
