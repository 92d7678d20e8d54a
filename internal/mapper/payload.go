package mapper

import "slices"

// Field is one named backend field with its values.
type Field struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// Payload is the backend form of a task: primitive fields in deterministic
// order. TaskID is empty for tasks that do not exist remotely yet.
type Payload struct {
	TaskID string  `json:"task_id,omitempty"`
	New    bool    `json:"new"`
	Fields []Field `json:"fields"`
}

// Get returns the values of the named field.
func (p Payload) Get(name string) ([]string, bool) {
	for _, f := range p.Fields {
		if f.Name == name {
			return slices.Clone(f.Values), true
		}
	}
	return nil, false
}

// Value returns the first value of the named field or "".
func (p Payload) Value(name string) string {
	v, _ := p.Get(name)
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

// Set replaces the named field's values, appending the field when absent.
func (p *Payload) Set(name string, values ...string) {
	for i, f := range p.Fields {
		if f.Name == name {
			p.Fields[i].Values = slices.Clone(values)
			return
		}
	}
	p.Fields = append(p.Fields, Field{Name: name, Values: slices.Clone(values)})
}

// Names returns the field names in payload order.
func (p Payload) Names() []string {
	out := make([]string, len(p.Fields))
	for i, f := range p.Fields {
		out[i] = f.Name
	}
	return out
}
