// Package backend defines the per-repository-type behaviour a session needs
// and a registry that resolves it once, by kind, when a session is built.
//
// Optional behaviour is expressed as capability interfaces (CreationChecker,
// TokenBearer) checked with a type assertion, never by comparing kind strings.
package backend

import (
	"errors"
	"fmt"
	"sort"

	"github.com/roach88/tasksync/internal/mapper"
	"github.com/roach88/tasksync/internal/metadata"
	"github.com/roach88/tasksync/internal/taskdata"
)

// Backend is one repository type.
type Backend interface {
	// Kind is the repository type tag, e.g. "bugzilla".
	Kind() string

	// Mapper translates trees to and from this backend's fields.
	Mapper() mapper.Mapper

	// Rules builds the dependency rule table for a configuration snapshot.
	// A nil snapshot yields a ConfigurationUnavailable error.
	Rules(snap *metadata.Snapshot) (*metadata.Table, error)

	// InitializeTask applies the snapshot's static option sets to tree
	// without changing any value.
	InitializeTask(tree *taskdata.Tree, snap *metadata.Snapshot) error
}

// CreationChecker adds backend-specific required-field checks for new tasks.
// It returns the failing attribute id and a reason, or "" when the tree is
// acceptable.
type CreationChecker interface {
	CheckNew(tree *taskdata.Tree) (field, reason string)
}

// TokenBearer names the attribute holding the backend's continuity token.
type TokenBearer interface {
	TokenAttribute() string
}

// ErrUnknownBackend is returned when no backend is registered for a kind.
var ErrUnknownBackend = errors.New("unknown backend kind")

// Registry maps kinds to backends.
type Registry struct {
	backends map[string]Backend
}

// NewRegistry creates a registry holding bs. Later duplicates replace
// earlier ones.
func NewRegistry(bs ...Backend) *Registry {
	r := &Registry{backends: make(map[string]Backend, len(bs))}
	for _, b := range bs {
		r.backends[b.Kind()] = b
	}
	return r
}

// Resolve returns the backend for kind.
func (r *Registry) Resolve(kind string) (Backend, error) {
	b, ok := r.backends[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, kind)
	}
	return b, nil
}

// Kinds returns the registered kinds sorted.
func (r *Registry) Kinds() []string {
	out := make([]string, 0, len(r.backends))
	for k := range r.backends {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ApplyOptions sets the option set of every attribute named in the
// snapshot's repository-wide options, and the product list on productID.
// Values are left as they are.
func ApplyOptions(tree *taskdata.Tree, snap *metadata.Snapshot, productID string) error {
	if snap == nil {
		return metadata.Unavailable("", "no repository configuration", nil)
	}
	if productID != "" && tree.Has(productID) && len(snap.Products) > 0 {
		names := metadata.OrderLexical.Sort(snap.ProductNames())
		if err := tree.SetOptions(productID, taskdata.OptionsFromValues(names)); err != nil {
			return err
		}
	}
	ids := make([]string, 0, len(snap.Options))
	for id := range snap.Options {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if !tree.Has(id) {
			continue
		}
		opts := taskdata.OptionsFromValues(snap.OptionSet(id))
		if err := tree.SetOptions(id, opts); err != nil {
			return err
		}
	}
	return nil
}

// NewTask builds an empty tree from b's mapper and applies snapshot options.
func NewTask(b Backend, snap *metadata.Snapshot) (*taskdata.Tree, error) {
	tree, err := b.Mapper().FromBackendForm(mapper.Payload{New: true})
	if err != nil {
		return nil, err
	}
	if err := b.InitializeTask(tree, snap); err != nil {
		return nil, err
	}
	return tree, nil
}

// TokenAttribute returns b's continuity token attribute, or "" when b has
// none.
func TokenAttribute(b Backend) string {
	if tb, ok := b.(TokenBearer); ok {
		return tb.TokenAttribute()
	}
	return ""
}
