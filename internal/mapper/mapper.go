// Package mapper translates task trees to and from backend payloads.
//
// Tree attribute ids are backend-native. A Mapper resolves the generic
// semantic keys in taskdata (summary, product, assignee, ...) to the ids its
// backend uses, and renames ids to wire field names where the backend's
// submission form differs from its read form.
package mapper

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/tasksync/internal/changes"
	"github.com/roach88/tasksync/internal/taskdata"
)

// Mapper translates between a task tree and one backend's fields.
type Mapper interface {
	// Kind names the backend schema, e.g. "bugzilla".
	Kind() string

	// MapKey returns the native attribute id for a generic key, or key
	// itself when the backend uses the generic name.
	MapKey(key string) string

	// ToBackendForm packages a submission. An empty taskID means a new task.
	ToBackendForm(taskID string, tree *taskdata.Tree, cs changes.ChangeSet) (Payload, error)

	// FromBackendForm builds a tree from fetched fields.
	FromBackendForm(p Payload) (*taskdata.Tree, error)

	// AttributeID returns the attribute id a submission field name was
	// packaged from, or field itself when nothing renames it.
	AttributeID(field string) string

	// Comparer compares attribute values for change detection.
	Comparer() changes.Comparer
}

// Schema declares one backend's attributes and naming.
type Schema struct {
	Kind string

	// Keys maps generic keys to native attribute ids.
	Keys map[string]string

	// Wire maps attribute ids to submission field names where they differ.
	Wire map[string]string

	// Attributes are the templates a fetched task is built from, in
	// presentation order. Values are ignored.
	Attributes []taskdata.Attribute

	// Always lists attribute ids sent with every update of an existing task.
	Always []string

	// AlwaysNew lists attribute ids sent with every new task, even empty.
	AlwaysNew []string

	// Compare overrides kind-based comparison.
	Compare changes.Comparer
}

// Standard is a Mapper driven entirely by a Schema.
type Standard struct {
	schema Schema
	native map[string]string
}

// New creates a schema-driven mapper.
func New(schema Schema) *Standard {
	native := make(map[string]string, len(schema.Wire))
	for id, wire := range schema.Wire {
		native[wire] = id
	}
	// Operation inputs go out under the field their operation names.
	for _, a := range schema.Attributes {
		if in := a.Meta.AssociatedID; in != "" {
			if _, taken := native[in]; !taken {
				native[in] = a.ID
			}
		}
	}
	return &Standard{schema: schema, native: native}
}

// Kind implements Mapper.
func (m *Standard) Kind() string { return m.schema.Kind }

// MapKey implements Mapper.
func (m *Standard) MapKey(key string) string {
	if id, ok := m.schema.Keys[key]; ok {
		return id
	}
	return key
}

// WireName returns the submission field name of an attribute id.
func (m *Standard) WireName(id string) string {
	if w, ok := m.schema.Wire[id]; ok {
		return w
	}
	return id
}

// AttributeID implements Mapper.
func (m *Standard) AttributeID(field string) string {
	if id, ok := m.native[field]; ok {
		return id
	}
	return field
}

// Comparer implements Mapper.
func (m *Standard) Comparer() changes.Comparer {
	if m.schema.Compare != nil {
		return m.schema.Compare
	}
	return changes.KindComparer{}
}

// Attributes returns copies of the schema templates.
func (m *Standard) Attributes() []taskdata.Attribute {
	out := make([]taskdata.Attribute, len(m.schema.Attributes))
	for i, a := range m.schema.Attributes {
		out[i] = a.Clone()
	}
	return out
}

// ToBackendForm implements Mapper.
//
// New tasks send every non-empty attribute plus AlwaysNew. Existing tasks
// send the change set plus Always. The selected operation is sent under its
// wire name together with the input its operation attribute names.
func (m *Standard) ToBackendForm(taskID string, tree *taskdata.Tree, cs changes.ChangeSet) (Payload, error) {
	p := Payload{TaskID: taskID, New: taskID == ""}
	opID := m.MapKey(taskdata.KeyOperation)

	if p.New {
		for _, a := range tree.Attributes() {
			if skipOutbound(a, opID) {
				continue
			}
			if a.Empty() && !slices.Contains(m.schema.AlwaysNew, a.ID) {
				continue
			}
			p.Set(m.WireName(a.ID), NFC(a.Values)...)
		}
	} else {
		for _, c := range cs.Changes() {
			a, ok := tree.Get(c.ID)
			if !ok {
				a = taskdata.Attribute{ID: c.ID, Meta: taskdata.Metadata{Kind: c.Kind}}
			}
			if skipOutbound(a, opID) {
				continue
			}
			p.Set(m.WireName(c.ID), NFC(c.New)...)
		}
		for _, id := range m.schema.Always {
			if tree.Has(id) {
				p.Set(m.WireName(id), tree.Values(id)...)
			}
		}
	}

	if op := tree.Value(opID); op != "" {
		p.Set(m.WireName(opID), op)
		if in, ok := tree.Get(taskdata.OperationPrefix + op); ok && in.Meta.AssociatedID != "" {
			p.Set(in.Meta.AssociatedID, NFC(in.Values)...)
		}
	}
	return p, nil
}

// FromBackendForm implements Mapper. Schema attributes come first in schema
// order; unknown fields follow as plain text attributes. Fetched values are
// loaded even when they are outside the template's option set.
func (m *Standard) FromBackendForm(p Payload) (*taskdata.Tree, error) {
	tree := taskdata.NewTree()
	seen := make(map[string]bool)
	inputs := make(map[string]bool)

	for _, tmpl := range m.schema.Attributes {
		if tmpl.Meta.AssociatedID != "" {
			inputs[tmpl.Meta.AssociatedID] = true
		}
	}

	for _, tmpl := range m.schema.Attributes {
		a := tmpl.Clone()
		wire := m.WireName(a.ID)
		seen[wire] = true
		a.Values, _ = p.Get(wire)
		if a.Meta.AssociatedID != "" {
			a.Values, _ = p.Get(a.Meta.AssociatedID)
		}
		a.Values = NFC(a.Values)
		if err := addLoaded(tree, a); err != nil {
			return nil, fmt.Errorf("load %s: %w", a.ID, err)
		}
	}

	for _, f := range p.Fields {
		if seen[f.Name] || inputs[f.Name] {
			continue
		}
		id := f.Name
		if n, ok := m.native[f.Name]; ok {
			id = n
		}
		kind := taskdata.KindText
		if len(f.Values) > 1 {
			kind = taskdata.KindMultiSelect
		}
		a := taskdata.Attribute{
			ID:     id,
			Meta:   taskdata.Metadata{Label: id, Kind: kind},
			Values: NFC(f.Values),
		}
		if err := addLoaded(tree, a); err != nil {
			return nil, fmt.Errorf("load %s: %w", id, err)
		}
	}
	return tree, nil
}

// addLoaded inserts a fetched attribute, applying its option set after the
// values so that stale server values survive loading.
func addLoaded(tree *taskdata.Tree, a taskdata.Attribute) error {
	opts := a.Options
	a.Options = nil
	if err := tree.Add(a); err != nil {
		return err
	}
	if len(opts) == 0 {
		return nil
	}
	return tree.SetOptions(a.ID, opts)
}

func skipOutbound(a taskdata.Attribute, opID string) bool {
	return a.ID == opID ||
		a.Meta.Kind == taskdata.KindOperation ||
		strings.HasPrefix(a.ID, taskdata.OperationPrefix)
}

// NFC returns values in Unicode normalization form C.
func NFC(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = norm.NFC.String(v)
	}
	return out
}
