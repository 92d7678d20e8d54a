package connector

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

// FieldError lists the reasons one field was rejected.
type FieldError struct {
	Field   string   `json:"field"`
	Reasons []string `json:"reasons"`
}

// FieldErrors are rejected fields in the order the backend reported them.
type FieldErrors []FieldError

// Fields returns the field ids in order.
func (fe FieldErrors) Fields() []string {
	out := make([]string, len(fe))
	for i, e := range fe {
		out[i] = e.Field
	}
	return out
}

// Reasons returns the reasons for a field.
func (fe FieldErrors) Reasons(field string) []string {
	for _, e := range fe {
		if e.Field == field {
			return slices.Clone(e.Reasons)
		}
	}
	return nil
}

// Add appends reasons to field, creating it on first use.
func (fe *FieldErrors) Add(field string, reasons ...string) {
	for i, e := range *fe {
		if e.Field == field {
			(*fe)[i].Reasons = append((*fe)[i].Reasons, reasons...)
			return
		}
	}
	*fe = append(*fe, FieldError{Field: field, Reasons: slices.Clone(reasons)})
}

// DecodeFieldErrors parses the {"field": ["reason", ...]} failure payload,
// keeping the document's key order. Repeated keys are merged.
func DecodeFieldErrors(data []byte) (FieldErrors, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("decode field errors: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("decode field errors: expected object, got %v", tok)
	}

	var out FieldErrors
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("decode field errors: %w", err)
		}
		field, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("decode field errors: expected field name, got %v", tok)
		}
		var reasons []string
		if err := dec.Decode(&reasons); err != nil {
			return nil, fmt.Errorf("decode field errors: field %q: %w", field, err)
		}
		out.Add(field, reasons...)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("decode field errors: %w", err)
	}
	return out, nil
}

// MarshalJSON encodes field errors as an object in field order.
func (fe FieldErrors) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range fe {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.Field)
		if err != nil {
			return nil, err
		}
		reasons := e.Reasons
		if reasons == nil {
			reasons = []string{}
		}
		v, err := json.Marshal(reasons)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes field errors with DecodeFieldErrors.
func (fe *FieldErrors) UnmarshalJSON(data []byte) error {
	out, err := DecodeFieldErrors(data)
	if err != nil {
		return err
	}
	*fe = out
	return nil
}
