package taskdata

import (
	"slices"
	"sync/atomic"
)

// EventType identifies what happened to an attribute.
type EventType string

const (
	EventChanged  EventType = "changed"
	EventOptions  EventType = "options"
	EventAdded    EventType = "added"
	EventRemoved  EventType = "removed"
	EventMetadata EventType = "metadata"
	EventRefresh  EventType = "refresh"
)

// Event is delivered to listeners after a tree mutation.
type Event struct {
	Type        EventType
	AttributeID string
}

// Listener receives tree events synchronously.
type Listener interface {
	AttributeChanged(tree *Tree, ev Event)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(tree *Tree, ev Event)

// AttributeChanged calls f.
func (f ListenerFunc) AttributeChanged(tree *Tree, ev Event) {
	f(tree, ev)
}

// Tree is an ordered, mutable collection of attributes.
//
// Tree is not safe for concurrent mutation: one editing session owns it.
// Freeze makes every mutation fail so a submission can read a stable tree
// while its network call is in flight.
type Tree struct {
	attrs     map[string]*Attribute
	order     []string
	listeners []Listener
	frozen    atomic.Bool
}

// NewTree creates an empty tree.
func NewTree() *Tree {
	return &Tree{attrs: make(map[string]*Attribute)}
}

// Subscribe registers a listener. Listeners are called in registration order.
func (t *Tree) Subscribe(l Listener) {
	t.listeners = append(t.listeners, l)
}

// Freeze rejects all mutations until Thaw is called.
func (t *Tree) Freeze() {
	t.frozen.Store(true)
}

// Thaw re-enables mutations.
func (t *Tree) Thaw() {
	t.frozen.Store(false)
}

// Frozen reports whether mutations are currently rejected.
func (t *Tree) Frozen() bool {
	return t.frozen.Load()
}

// Len returns the number of attributes.
func (t *Tree) Len() int {
	return len(t.order)
}

// IDs returns attribute ids in insertion order.
func (t *Tree) IDs() []string {
	return slices.Clone(t.order)
}

// Has reports whether the attribute exists.
func (t *Tree) Has(id string) bool {
	_, ok := t.attrs[id]
	return ok
}

// Get returns a copy of the attribute.
func (t *Tree) Get(id string) (Attribute, bool) {
	a, ok := t.attrs[id]
	if !ok {
		return Attribute{}, false
	}
	return a.Clone(), true
}

// Value returns the first value of the attribute, or "" if absent or empty.
func (t *Tree) Value(id string) string {
	a, ok := t.attrs[id]
	if !ok || len(a.Values) == 0 {
		return ""
	}
	return a.Values[0]
}

// Values returns a copy of the attribute's values.
func (t *Tree) Values(id string) []string {
	a, ok := t.attrs[id]
	if !ok {
		return nil
	}
	return slices.Clone(a.Values)
}

// Add inserts a new attribute. Its values must satisfy its option set.
func (t *Tree) Add(attr Attribute) error {
	if err := t.checkFrozen(attr.ID); err != nil {
		return err
	}
	if _, exists := t.attrs[attr.ID]; exists {
		return &AttributeError{
			Code:        ErrCodeDuplicateAttribute,
			AttributeID: attr.ID,
			Message:     "attribute already exists",
		}
	}
	a := attr.Clone()
	a.Values = normalizeValues(a.Values)
	if err := a.validate(a.Values); err != nil {
		return err
	}
	t.attrs[a.ID] = &a
	t.order = append(t.order, a.ID)
	t.notify(Event{Type: EventAdded, AttributeID: a.ID})
	return nil
}

// Remove deletes an attribute. Removing a missing attribute is an error.
func (t *Tree) Remove(id string) error {
	if err := t.checkFrozen(id); err != nil {
		return err
	}
	if _, ok := t.attrs[id]; !ok {
		return unknownAttribute(id)
	}
	delete(t.attrs, id)
	t.order = slices.DeleteFunc(t.order, func(s string) bool { return s == id })
	t.notify(Event{Type: EventRemoved, AttributeID: id})
	return nil
}

// Set replaces the attribute's values. Empty strings are dropped, so
// Set(id) and Set(id, "") both clear the attribute.
//
// Set fails with an InvalidOption error when a value is outside a non-empty
// option set and the attribute does not allow overrides. Setting the current
// values again is a no-op and emits no event.
func (t *Tree) Set(id string, values ...string) error {
	if err := t.checkFrozen(id); err != nil {
		return err
	}
	a, ok := t.attrs[id]
	if !ok {
		return unknownAttribute(id)
	}
	vals := normalizeValues(values)
	if err := a.validate(vals); err != nil {
		return err
	}
	if slices.Equal(a.Values, vals) {
		return nil
	}
	a.Values = vals
	t.notify(Event{Type: EventChanged, AttributeID: id})
	return nil
}

// SetOptions replaces the attribute's option set. The current value is not
// altered even if it is no longer a member; callers resolve validity.
func (t *Tree) SetOptions(id string, options []Option) error {
	if err := t.checkFrozen(id); err != nil {
		return err
	}
	a, ok := t.attrs[id]
	if !ok {
		return unknownAttribute(id)
	}
	if slices.Equal(a.Options, options) {
		return nil
	}
	a.Options = slices.Clone(options)
	t.notify(Event{Type: EventOptions, AttributeID: id})
	return nil
}

// UpdateMetadata applies fn to the attribute's metadata.
func (t *Tree) UpdateMetadata(id string, fn func(m *Metadata)) error {
	if err := t.checkFrozen(id); err != nil {
		return err
	}
	a, ok := t.attrs[id]
	if !ok {
		return unknownAttribute(id)
	}
	m := a.Meta.clone()
	fn(&m)
	a.Meta = m
	t.notify(Event{Type: EventMetadata, AttributeID: id})
	return nil
}

// Refresh emits a refresh event for presentation collaborators.
func (t *Tree) Refresh(id string) {
	if _, ok := t.attrs[id]; ok {
		t.notify(Event{Type: EventRefresh, AttributeID: id})
	}
}

// Clone returns a deep copy of the attributes. Listeners and the frozen
// state are not copied.
func (t *Tree) Clone() *Tree {
	c := &Tree{
		attrs: make(map[string]*Attribute, len(t.attrs)),
		order: slices.Clone(t.order),
	}
	for id, a := range t.attrs {
		cp := a.Clone()
		c.attrs[id] = &cp
	}
	return c
}

// Attributes returns copies of all attributes in insertion order.
func (t *Tree) Attributes() []Attribute {
	out := make([]Attribute, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.attrs[id].Clone())
	}
	return out
}

func (t *Tree) checkFrozen(id string) error {
	if t.frozen.Load() {
		return &AttributeError{
			Code:        ErrCodeFrozen,
			AttributeID: id,
			Message:     "tree is frozen while a submission is in flight",
		}
	}
	return nil
}

func (t *Tree) notify(ev Event) {
	for _, l := range t.listeners {
		l.AttributeChanged(t, ev)
	}
}
