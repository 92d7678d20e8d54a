// Package testutil provides test doubles shared by package tests and the
// scenario harness.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/tasksync/internal/connector"
	"github.com/roach88/tasksync/internal/mapper"
	"github.com/roach88/tasksync/internal/metadata"
	"github.com/roach88/tasksync/internal/taskdata"
)

// DefaultReference is the reference an unscripted Post accepts with.
const DefaultReference = "1"

// Reply is one scripted Post response.
type Reply struct {
	Result connector.Result
	Err    error
}

// SpyConnector is a scripted connector that records every call.
//
// Post replies are consumed in order. Once the script runs out, Post
// accepts with DefaultReference.
//
// Thread-safety: all methods are safe for concurrent use.
type SpyConnector struct {
	mu       sync.Mutex
	replies  []Reply
	posts    []mapper.Payload
	fetches  []string
	tasks    map[string]*taskdata.Tree
	snapshot *metadata.Snapshot
	fetchErr error

	gate    chan struct{}
	entered chan struct{}
}

// NewSpyConnector creates a connector with an empty script.
func NewSpyConnector() *SpyConnector {
	return &SpyConnector{
		tasks:   make(map[string]*taskdata.Tree),
		entered: make(chan struct{}, 16),
	}
}

// Script appends Post replies.
func (s *SpyConnector) Script(replies ...Reply) *SpyConnector {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, replies...)
	return s
}

// Respond appends a Post reply with the given result.
func (s *SpyConnector) Respond(res connector.Result) *SpyConnector {
	return s.Script(Reply{Result: res})
}

// DropScript discards replies no Post consumed.
func (s *SpyConnector) DropScript() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = nil
}

// WithSnapshot sets what FetchMetadata returns.
func (s *SpyConnector) WithSnapshot(snap *metadata.Snapshot) *SpyConnector {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = snap
	return s
}

// WithTask registers the tree FetchTask returns for id. The tree is cloned
// on every fetch.
func (s *SpyConnector) WithTask(id string, tree *taskdata.Tree) *SpyConnector {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[id] = tree.Clone()
	return s
}

// FailFetch makes FetchTask and FetchMetadata return err.
func (s *SpyConnector) FailFetch(err error) *SpyConnector {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchErr = err
	return s
}

// Block makes Post wait until the returned release function is called or
// the context is done.
func (s *SpyConnector) Block() (release func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gate := make(chan struct{})
	s.gate = gate
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// Entered receives a value each time Post starts.
func (s *SpyConnector) Entered() <-chan struct{} {
	return s.entered
}

// Post implements connector.Connector.
func (s *SpyConnector) Post(ctx context.Context, p mapper.Payload) (connector.Result, error) {
	s.mu.Lock()
	s.posts = append(s.posts, p)
	gate := s.gate
	s.mu.Unlock()

	select {
	case s.entered <- struct{}{}:
	default:
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.replies) == 0 {
		return connector.Accepted{Reference: DefaultReference}, nil
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r.Result, r.Err
}

// FetchMetadata implements connector.Connector.
func (s *SpyConnector) FetchMetadata(ctx context.Context) (*metadata.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	if s.snapshot == nil {
		return nil, metadata.Unavailable("", "no configuration scripted", nil)
	}
	return s.snapshot, nil
}

// FetchTask implements connector.Connector.
func (s *SpyConnector) FetchTask(ctx context.Context, id string) (*taskdata.Tree, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches = append(s.fetches, id)
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	tree, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %q not found", id)
	}
	return tree.Clone(), nil
}

// Posts returns the payloads posted so far.
func (s *SpyConnector) Posts() []mapper.Payload {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]mapper.Payload, len(s.posts))
	copy(out, s.posts)
	return out
}

// PostCount returns how many times Post was called.
func (s *SpyConnector) PostCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.posts)
}

// Fetches returns the ids passed to FetchTask so far.
func (s *SpyConnector) Fetches() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.fetches))
	copy(out, s.fetches)
	return out
}

var _ connector.Connector = (*SpyConnector)(nil)
