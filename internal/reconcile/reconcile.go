// Package reconcile turns a backend's field-level rejection into a report
// addressed to the task's attributes.
package reconcile

import (
	"fmt"
	"strings"

	"github.com/roach88/tasksync/internal/connector"
	"github.com/roach88/tasksync/internal/taskdata"
)

// FieldReport is the rejection of one attribute.
type FieldReport struct {
	AttributeID string   `json:"attribute_id"`
	Label       string   `json:"label"`
	Messages    []string `json:"messages,omitempty"`
	Candidates  []string `json:"candidates,omitempty"`
}

// Report aggregates a rejection for presentation.
type Report struct {
	Severity connector.Severity `json:"severity"`
	Summary  string             `json:"summary"`
	Detail   string             `json:"detail"`
	Fields   []FieldReport      `json:"fields"`
}

// Field returns the report for an attribute.
func (r Report) Field(id string) (FieldReport, bool) {
	for _, f := range r.Fields {
		if f.AttributeID == id {
			return f, true
		}
	}
	return FieldReport{}, false
}

// Option configures Reconcile.
type Option func(*options)

type options struct {
	attributeID func(field string) string
}

// WithFieldNames maps the submission field names a backend reports errors
// under back to attribute ids. Without it field names are used as ids.
func WithFieldNames(fn func(field string) string) Option {
	return func(o *options) {
		o.attributeID = fn
	}
}

// Reconcile partitions each field's reasons into display messages (reasons
// carrying the message prefix, prefix removed) and candidate values
// (everything else). Fields keep the order the backend reported them in.
// Labels come from tree; a field the tree does not know is labelled by its id.
func Reconcile(tree *taskdata.Tree, rej connector.ValidationRejected, opts ...Option) Report {
	o := options{attributeID: func(field string) string { return field }}
	for _, opt := range opts {
		opt(&o)
	}
	rep := Report{}
	hasCandidates := false

	for _, fe := range rej.FieldErrors {
		id := o.attributeID(fe.Field)
		fr := FieldReport{AttributeID: id, Label: id}
		if tree != nil {
			if a, ok := tree.Get(id); ok && a.Meta.Label != "" {
				fr.Label = a.Meta.Label
			}
		}
		for _, reason := range fe.Reasons {
			if msg, ok := strings.CutPrefix(reason, connector.MessagePrefix); ok {
				fr.Messages = append(fr.Messages, msg)
				continue
			}
			fr.Candidates = append(fr.Candidates, reason)
		}
		if len(fr.Candidates) > 0 {
			hasCandidates = true
		}
		rep.Fields = append(rep.Fields, fr)
	}

	rep.Severity = rej.Severity
	if rep.Severity == connector.SeverityUnset {
		rep.Severity = connector.SeverityHardFailure
		if hasCandidates {
			rep.Severity = connector.SeverityNeedsConfirmation
		}
	}
	rep.Summary = summary(rep)
	rep.Detail = detail(rep)
	return rep
}

func summary(rep Report) string {
	labels := make([]string, len(rep.Fields))
	for i, f := range rep.Fields {
		labels[i] = f.Label
	}
	var head string
	switch len(labels) {
	case 0:
		head = "The submission was rejected."
	case 1:
		head = fmt.Sprintf("The submission was rejected because of %s.", labels[0])
	default:
		head = fmt.Sprintf("The submission was rejected because of %s and %s.",
			strings.Join(labels[:len(labels)-1], ", "), labels[len(labels)-1])
	}
	return head + " " + callToAction(rep.Severity)
}

func callToAction(s connector.Severity) string {
	if s == connector.SeverityNeedsConfirmation {
		return "Confirm one of the proposed values and submit again."
	}
	return "Correct the highlighted fields and submit again."
}

func detail(rep Report) string {
	var b strings.Builder
	for _, f := range rep.Fields {
		b.WriteString(f.Label)
		b.WriteByte('\n')
		for _, m := range f.Messages {
			b.WriteString("\t\t" + m + "\n")
		}
		for _, c := range f.Candidates {
			b.WriteString("\t\t" + c + "\n")
		}
	}
	return b.String()
}
