// Package trac implements the Trac backend.
package trac

import (
	"strings"

	"github.com/roach88/tasksync/internal/backend"
	"github.com/roach88/tasksync/internal/mapper"
	"github.com/roach88/tasksync/internal/metadata"
	"github.com/roach88/tasksync/internal/taskdata"
)

// Kind is the repository type tag.
const Kind = "trac"

// TicketURL separates a repository URL from a ticket id in task URLs.
const TicketURL = "/ticket/"

// Native attribute ids.
const (
	AttrSummary     = "summary"
	AttrReporter    = "reporter"
	AttrDescription = "description"
	AttrType        = "type"
	AttrPriority    = "priority"
	AttrMilestone   = "milestone"
	AttrComponent   = "component"
	AttrVersion     = "version"
	AttrSeverity    = "severity"
	AttrKeywords    = "keywords"
	AttrCC          = "cc"
	AttrOwner       = "owner"
	AttrResolution  = "resolution"
	AttrStatus      = "status"
	AttrTimestamp   = "_ts"
	AttrAction      = "action"
)

// StatusClosed is the status of a completed ticket.
const StatusClosed = "closed"

// Schema returns the Trac attribute schema.
func Schema() mapper.Schema {
	a := func(id, label string, kind taskdata.Kind) taskdata.Attribute {
		return taskdata.Attribute{ID: id, Meta: taskdata.Metadata{Label: label, Kind: kind}}
	}
	reporter := a(AttrReporter, "Reporter", taskdata.KindPerson)
	reporter.Meta.ReadOnly = true
	status := a(AttrStatus, "Status", taskdata.KindSingleSelect)
	status.Meta.ReadOnly = true
	ts := a(AttrTimestamp, AttrTimestamp, taskdata.KindText)
	ts.Meta.Hidden = true
	action := a(AttrAction, "Action", taskdata.KindOperation)
	action.Options = taskdata.OptionsFromValues([]string{"leave", "accept", "resolve", "reassign"})
	resolve := a(taskdata.OperationPrefix+"resolve", "Resolve as", taskdata.KindSingleSelect)
	resolve.Meta.AssociatedID = "action_resolve_resolve_resolution"
	reassign := a(taskdata.OperationPrefix+"reassign", "Reassign to", taskdata.KindPerson)
	reassign.Meta.AssociatedID = "action_reassign_reassign_owner"

	return mapper.Schema{
		Kind: Kind,
		Keys: map[string]string{
			taskdata.KeyAssignee:  AttrOwner,
			taskdata.KeyOperation: AttrAction,
			taskdata.KeyToken:     AttrTimestamp,
		},
		Attributes: []taskdata.Attribute{
			a(AttrSummary, "Summary", taskdata.KindText),
			reporter,
			a(AttrDescription, "Description", taskdata.KindLongText),
			a(AttrType, "Type", taskdata.KindSingleSelect),
			a(AttrPriority, "Priority", taskdata.KindSingleSelect),
			a(AttrMilestone, "Milestone", taskdata.KindSingleSelect),
			a(AttrComponent, "Component", taskdata.KindSingleSelect),
			a(AttrVersion, "Version", taskdata.KindSingleSelect),
			a(AttrSeverity, "Severity", taskdata.KindSingleSelect),
			a(AttrKeywords, "Keywords", taskdata.KindText),
			a(AttrCC, "CC", taskdata.KindPersonList),
			a(AttrOwner, "Owner", taskdata.KindPerson),
			a(AttrResolution, "Resolution", taskdata.KindSingleSelect),
			status,
			ts,
			action,
			resolve,
			reassign,
		},
		Always:    []string{AttrTimestamp},
		AlwaysNew: []string{AttrDescription},
	}
}

// Backend is the Trac backend. Trac has no product hierarchy, so its rule
// table is empty.
type Backend struct {
	mapper *mapper.Standard
}

// New creates the Trac backend.
func New() *Backend {
	return &Backend{mapper: mapper.New(Schema())}
}

// Kind implements backend.Backend.
func (b *Backend) Kind() string { return Kind }

// Mapper implements backend.Backend.
func (b *Backend) Mapper() mapper.Mapper { return b.mapper }

// TokenAttribute implements backend.TokenBearer. Trac rejects updates whose
// change timestamp is not the latest.
func (b *Backend) TokenAttribute() string { return AttrTimestamp }

// Rules implements backend.Backend.
func (b *Backend) Rules(snap *metadata.Snapshot) (*metadata.Table, error) {
	if snap == nil {
		return nil, metadata.Unavailable("", "no repository configuration", nil)
	}
	return metadata.NewTable(nil, nil)
}

// InitializeTask implements backend.Backend.
func (b *Backend) InitializeTask(tree *taskdata.Tree, snap *metadata.Snapshot) error {
	return backend.ApplyOptions(tree, snap, "")
}

// RepositoryURL returns the repository part of a ticket URL, or "" when url
// does not address a ticket.
func RepositoryURL(url string) string {
	i := strings.LastIndex(url, TicketURL)
	if i == -1 {
		return ""
	}
	return url[:i]
}

// TicketLabel is the one-line description of a ticket.
func TicketLabel(id, summary string) string {
	return id + ": " + summary
}

// IsCompleted reports whether a ticket status means the work is done.
func IsCompleted(status string) bool {
	return status == StatusClosed
}

// Priority maps a Trac priority name to a P1..P5 level. Unknown names map
// to P3.
func Priority(name string) string {
	switch name {
	case "blocker":
		return "P1"
	case "critical":
		return "P2"
	case "minor":
		return "P4"
	case "trivial":
		return "P5"
	default:
		return "P3"
	}
}

var (
	_ backend.Backend     = (*Backend)(nil)
	_ backend.TokenBearer = (*Backend)(nil)
)
