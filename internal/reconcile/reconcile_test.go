package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tasksync/internal/connector"
	"github.com/roach88/tasksync/internal/taskdata"
)

func labelledTree(t *testing.T) *taskdata.Tree {
	t.Helper()
	tree := taskdata.NewTree()
	require.NoError(t, tree.Add(taskdata.Attribute{
		ID:   "assigned_to",
		Meta: taskdata.Metadata{Label: "Assigned to", Kind: taskdata.KindPerson},
	}))
	require.NoError(t, tree.Add(taskdata.Attribute{
		ID:   "cc",
		Meta: taskdata.Metadata{Label: "CC", Kind: taskdata.KindPersonList},
	}))
	return tree
}

func TestReconcile_WithFieldNames(t *testing.T) {
	tree := labelledTree(t)
	require.NoError(t, tree.Add(taskdata.Attribute{
		ID:   "operation-duplicate",
		Meta: taskdata.Metadata{Label: "Mark as duplicate of", Kind: taskdata.KindText},
	}))
	fe, err := connector.DecodeFieldErrors([]byte(`{"dup_id": ["#msg#bug 999 does not exist"]}`))
	require.NoError(t, err)
	names := map[string]string{"dup_id": "operation-duplicate"}

	rep := Reconcile(tree, connector.ValidationRejected{FieldErrors: fe},
		WithFieldNames(func(field string) string {
			if id, ok := names[field]; ok {
				return id
			}
			return field
		}))

	require.Len(t, rep.Fields, 1)
	assert.Equal(t, "operation-duplicate", rep.Fields[0].AttributeID)
	assert.Equal(t, "Mark as duplicate of", rep.Fields[0].Label)
	assert.Contains(t, rep.Summary, "Mark as duplicate of")
}

func TestReconcile_PartitionsMessagesAndCandidates(t *testing.T) {
	fe, err := connector.DecodeFieldErrors([]byte(`{"assigned_to": ["#msg#no such user", "alice@example.com", "bob@example.com"]}`))
	require.NoError(t, err)

	rep := Reconcile(labelledTree(t), connector.ValidationRejected{FieldErrors: fe})

	require.Len(t, rep.Fields, 1)
	f := rep.Fields[0]
	assert.Equal(t, "assigned_to", f.AttributeID)
	assert.Equal(t, []string{"no such user"}, f.Messages)
	assert.Equal(t, []string{"alice@example.com", "bob@example.com"}, f.Candidates)
	assert.Equal(t, connector.SeverityNeedsConfirmation, rep.Severity)
}

func TestReconcile_MessageOnlyIsHardFailure(t *testing.T) {
	rej := connector.ValidationRejected{FieldErrors: connector.FieldErrors{
		{Field: "assigned_to", Reasons: []string{"#msg#no such user"}},
	}}

	rep := Reconcile(labelledTree(t), rej)

	assert.Equal(t, connector.SeverityHardFailure, rep.Severity)
	assert.Empty(t, rep.Fields[0].Candidates)
	assert.Contains(t, rep.Summary, "Correct the highlighted fields")
}

func TestReconcile_ExplicitSeverityWins(t *testing.T) {
	rej := connector.ValidationRejected{
		Severity:    connector.SeverityHardFailure,
		FieldErrors: connector.FieldErrors{{Field: "cc", Reasons: []string{"carol@example.com"}}},
	}

	rep := Reconcile(labelledTree(t), rej)
	assert.Equal(t, connector.SeverityHardFailure, rep.Severity)
}

func TestReconcile_SummaryOrderedByFirstSeenField(t *testing.T) {
	rej := connector.ValidationRejected{FieldErrors: connector.FieldErrors{
		{Field: "cc", Reasons: []string{"carol@example.com"}},
		{Field: "qa_contact", Reasons: []string{"#msg#unknown"}},
		{Field: "assigned_to", Reasons: []string{"alice@example.com"}},
	}}

	rep := Reconcile(labelledTree(t), rej)

	assert.Equal(t,
		"The submission was rejected because of CC, qa_contact and Assigned to. Confirm one of the proposed values and submit again.",
		rep.Summary)
	assert.Equal(t, "CC\n\t\tcarol@example.com\nqa_contact\n\t\tunknown\nAssigned to\n\t\talice@example.com\n", rep.Detail)

	f, ok := rep.Field("qa_contact")
	require.True(t, ok)
	assert.Equal(t, "qa_contact", f.Label, "unknown attributes are labelled by id")
}

func TestReconcile_SingleField(t *testing.T) {
	rej := connector.ValidationRejected{FieldErrors: connector.FieldErrors{
		{Field: "cc", Reasons: []string{"#msg#bad address"}},
	}}
	rep := Reconcile(nil, rej)
	assert.Equal(t, "The submission was rejected because of cc. Correct the highlighted fields and submit again.", rep.Summary)
}
