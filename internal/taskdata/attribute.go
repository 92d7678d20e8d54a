package taskdata

import "slices"

// Option is one selectable value of an attribute.
type Option struct {
	Label string `json:"label" yaml:"label"`
	Value string `json:"value" yaml:"value"`
}

// Metadata describes how an attribute is presented and validated.
type Metadata struct {
	Label    string `json:"label"`
	Kind     Kind   `json:"kind"`
	ReadOnly bool   `json:"read_only,omitempty"`
	Hidden   bool   `json:"hidden,omitempty"`

	// AllowOverride permits values outside the option set. Used for
	// in-flight corrections such as a proposed person identifier.
	AllowOverride bool `json:"allow_override,omitempty"`

	// Controls names the attributes whose option sets this attribute governs.
	Controls []string `json:"controls,omitempty"`

	// AssociatedID names the input attribute an operation needs
	// (e.g. the duplicate-of task id for a duplicate operation).
	AssociatedID string `json:"associated_id,omitempty"`
}

func (m Metadata) clone() Metadata {
	m.Controls = slices.Clone(m.Controls)
	return m
}

// Attribute is a single named, typed field of a task.
// Values returned by Tree accessors are copies; mutate through the Tree.
type Attribute struct {
	ID      string   `json:"id"`
	Meta    Metadata `json:"meta"`
	Options []Option `json:"options,omitempty"`
	Values  []string `json:"values,omitempty"`
}

// Value returns the first value or "" when the attribute is empty.
func (a Attribute) Value() string {
	if len(a.Values) == 0 {
		return ""
	}
	return a.Values[0]
}

// Empty reports whether the attribute holds no value.
func (a Attribute) Empty() bool {
	return len(a.Values) == 0
}

// HasOption reports whether value is one of the attribute's option values.
func (a Attribute) HasOption(value string) bool {
	for _, o := range a.Options {
		if o.Value == value {
			return true
		}
	}
	return false
}

// OptionValues returns the option values in declared order.
func (a Attribute) OptionValues() []string {
	out := make([]string, len(a.Options))
	for i, o := range a.Options {
		out[i] = o.Value
	}
	return out
}

// Clone returns a deep copy of the attribute.
func (a Attribute) Clone() Attribute {
	return Attribute{
		ID:      a.ID,
		Meta:    a.Meta.clone(),
		Options: slices.Clone(a.Options),
		Values:  slices.Clone(a.Values),
	}
}

// OptionsFromValues builds options whose label equals their value.
func OptionsFromValues(values []string) []Option {
	out := make([]Option, len(values))
	for i, v := range values {
		out[i] = Option{Label: v, Value: v}
	}
	return out
}

// normalizeValues drops empty strings so that Set(id, "") clears the attribute.
func normalizeValues(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// validate checks values against the attribute's kind and option set.
func (a Attribute) validate(values []string) error {
	if len(values) > 1 && !a.Meta.Kind.MultiValued() {
		return &AttributeError{
			Code:        ErrCodeMultipleValues,
			AttributeID: a.ID,
			Message:     "attribute holds a single value",
		}
	}
	if len(a.Options) == 0 || a.Meta.AllowOverride {
		return nil
	}
	for _, v := range values {
		if !a.HasOption(v) {
			return &AttributeError{
				Code:        ErrCodeInvalidOption,
				AttributeID: a.ID,
				Value:       v,
				Message:     "value is not a valid option",
			}
		}
	}
	return nil
}
