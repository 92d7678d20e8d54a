// Package bugzilla implements the Bugzilla backend: attribute schema, field
// naming, product-driven dependency rules and value comparison.
package bugzilla

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/tasksync/internal/backend"
	"github.com/roach88/tasksync/internal/changes"
	"github.com/roach88/tasksync/internal/mapper"
	"github.com/roach88/tasksync/internal/metadata"
	"github.com/roach88/tasksync/internal/taskdata"
)

// Kind is the repository type tag.
const Kind = "bugzilla"

// Native attribute ids.
const (
	AttrBugID                = "bug_id"
	AttrSummary              = "short_desc"
	AttrProduct              = "product"
	AttrComponent            = "component"
	AttrVersion              = "version"
	AttrMilestone            = "target_milestone"
	AttrPriority             = "priority"
	AttrSeverity             = "bug_severity"
	AttrOpSys                = "op_sys"
	AttrPlatform             = "rep_platform"
	AttrStatus               = "bug_status"
	AttrResolution           = "resolution"
	AttrAssignee             = "assigned_to"
	AttrQAContact            = "qa_contact"
	AttrCC                   = "cc"
	AttrKeywords             = "keywords"
	AttrURL                  = "bug_file_loc"
	AttrWhiteboard           = "status_whiteboard"
	AttrComment              = "comment"
	AttrModified             = "delta_ts"
	AttrToken                = "token"
	AttrSetDefaultAssignee   = "set_default_assignee"
	AttrConfirmProductChange = "confirm_product_change"
	AttrOperation            = "operation"
)

// Sentinel values selected when a recomputed option set has several members.
const (
	MilestoneSentinel = "---"
	VersionSentinel   = "unspecified"
)

// Operation values.
const (
	OpNone        = "none"
	OpAccept      = "accept"
	OpResolve     = "resolve"
	OpDuplicate   = taskdata.OperationDuplicate
	OpReassign    = "reassign"
	OpUnconfirmed = "unconfirmed"
)

func attr(id, label string, kind taskdata.Kind) taskdata.Attribute {
	return taskdata.Attribute{ID: id, Meta: taskdata.Metadata{Label: label, Kind: kind}}
}

func hidden(id string, kind taskdata.Kind) taskdata.Attribute {
	return taskdata.Attribute{ID: id, Meta: taskdata.Metadata{Label: id, Kind: kind, Hidden: true}}
}

// Schema returns the Bugzilla attribute schema.
func Schema() mapper.Schema {
	product := attr(AttrProduct, "Product", taskdata.KindSingleSelect)
	product.Meta.Controls = []string{AttrComponent, AttrMilestone, AttrVersion}

	bugID := attr(AttrBugID, "Bug", taskdata.KindText)
	bugID.Meta.ReadOnly = true
	status := attr(AttrStatus, "Status", taskdata.KindSingleSelect)
	status.Meta.ReadOnly = true
	modified := attr(AttrModified, "Modified", taskdata.KindDate)
	modified.Meta.ReadOnly = true

	op := attr(AttrOperation, "Action", taskdata.KindOperation)
	op.Options = taskdata.OptionsFromValues([]string{OpNone, OpAccept, OpResolve, OpDuplicate, OpReassign, OpUnconfirmed})
	dup := attr(taskdata.OperationPrefix+OpDuplicate, "Mark as duplicate of", taskdata.KindText)
	dup.Meta.AssociatedID = "dup_id"
	unconfirmed := attr(taskdata.OperationPrefix+OpUnconfirmed, "Mark as unconfirmed", taskdata.KindText)

	return mapper.Schema{
		Kind: Kind,
		Keys: map[string]string{
			taskdata.KeySummary:     AttrSummary,
			taskdata.KeyDescription: AttrComment,
			taskdata.KeyMilestone:   AttrMilestone,
			taskdata.KeyStatus:      AttrStatus,
			taskdata.KeyAssignee:    AttrAssignee,
			taskdata.KeyCC:          AttrCC,
			taskdata.KeyOperation:   AttrOperation,
			taskdata.KeyToken:       AttrToken,
		},
		Wire: map[string]string{AttrOperation: "knob"},
		Attributes: []taskdata.Attribute{
			bugID,
			attr(AttrSummary, "Summary", taskdata.KindText),
			product,
			attr(AttrComponent, "Component", taskdata.KindSingleSelect),
			attr(AttrVersion, "Version", taskdata.KindSingleSelect),
			attr(AttrMilestone, "Target milestone", taskdata.KindSingleSelect),
			attr(AttrPriority, "Priority", taskdata.KindSingleSelect),
			attr(AttrSeverity, "Severity", taskdata.KindSingleSelect),
			attr(AttrOpSys, "OS", taskdata.KindSingleSelect),
			attr(AttrPlatform, "Platform", taskdata.KindSingleSelect),
			status,
			attr(AttrResolution, "Resolution", taskdata.KindSingleSelect),
			attr(AttrAssignee, "Assigned to", taskdata.KindPerson),
			attr(AttrQAContact, "QA contact", taskdata.KindPerson),
			attr(AttrCC, "CC", taskdata.KindPersonList),
			attr(AttrKeywords, "Keywords", taskdata.KindMultiSelect),
			attr(AttrURL, "URL", taskdata.KindText),
			attr(AttrWhiteboard, "Whiteboard", taskdata.KindText),
			attr(AttrComment, "Description", taskdata.KindLongText),
			modified,
			hidden(AttrToken, taskdata.KindText),
			hidden(AttrSetDefaultAssignee, taskdata.KindBoolean),
			hidden(AttrConfirmProductChange, taskdata.KindBoolean),
			op,
			dup,
			unconfirmed,
		},
		Always:    []string{AttrToken},
		AlwaysNew: []string{AttrComment},
		Compare:   Comparer{},
	}
}

// Backend is the Bugzilla backend.
type Backend struct {
	mapper *mapper.Standard
}

// New creates the Bugzilla backend.
func New() *Backend {
	return &Backend{mapper: mapper.New(Schema())}
}

// Kind implements backend.Backend.
func (b *Backend) Kind() string { return Kind }

// Mapper implements backend.Backend.
func (b *Backend) Mapper() mapper.Mapper { return b.mapper }

// TokenAttribute implements backend.TokenBearer.
func (b *Backend) TokenAttribute() string { return AttrToken }

// InitializeTask implements backend.Backend.
func (b *Backend) InitializeTask(tree *taskdata.Tree, snap *metadata.Snapshot) error {
	return backend.ApplyOptions(tree, snap, AttrProduct)
}

// CheckNew implements backend.CreationChecker.
func (b *Backend) CheckNew(tree *taskdata.Tree) (string, string) {
	if tree.Value(AttrProduct) == "" {
		return AttrProduct, "a product must be selected"
	}
	return "", ""
}

// Rules implements backend.Backend.
//
// A product change recomputes components (first one selected), target
// milestones and versions (sentinel selected when several remain), asks the
// server to apply the component's default assignee and to accept the product
// move without an extra confirmation page. On new tasks against Bugzilla 4.0
// or later it also toggles whether the unconfirmed state may be chosen.
func (b *Backend) Rules(snap *metadata.Snapshot) (*metadata.Table, error) {
	if snap == nil {
		return nil, metadata.Unavailable("", "no repository configuration", nil)
	}
	perProduct := func(list func(string) []string) metadata.OptionFunc {
		return func(product string) ([]string, error) {
			if product == "" {
				return nil, nil
			}
			if _, ok := snap.Product(product); !ok {
				return nil, fmt.Errorf("product %q not in configuration revision %d", product, snap.Revision)
			}
			return list(product), nil
		}
	}

	rules := []metadata.Rule{
		{
			Controller: AttrProduct,
			Dependent:  AttrComponent,
			Options:    perProduct(snap.Components),
			Selection:  metadata.SelectFirst,
		},
		{
			Controller: AttrProduct,
			Dependent:  AttrMilestone,
			Options:    perProduct(snap.Milestones),
			Sentinels:  []string{MilestoneSentinel},
		},
		{
			Controller: AttrProduct,
			Dependent:  AttrVersion,
			Options:    perProduct(snap.Versions),
			Sentinels:  []string{VersionSentinel},
		},
	}
	hooks := []metadata.Hook{
		{Name: "default-assignee", Controller: AttrProduct, Apply: setFlag(AttrSetDefaultAssignee)},
		{Name: "confirm-product-change", Controller: AttrProduct, Apply: setFlag(AttrConfirmProductChange)},
		{Name: "unconfirmed-allowed", Controller: AttrProduct, Apply: unconfirmedAllowed(snap)},
	}
	return metadata.NewTable(rules, hooks)
}

// setFlag sets a hidden boolean to "1", adding the attribute when missing.
func setFlag(id string) func(*taskdata.Tree, string) error {
	return func(tree *taskdata.Tree, _ string) error {
		if !tree.Has(id) {
			if err := tree.Add(hidden(id, taskdata.KindBoolean)); err != nil {
				return err
			}
		}
		return tree.Set(id, "1")
	}
}

func unconfirmedAllowed(snap *metadata.Snapshot) func(*taskdata.Tree, string) error {
	return func(tree *taskdata.Tree, product string) error {
		if tree.Value(AttrBugID) != "" || !AtLeast(snap.InstallVersion, 4, 0) {
			return nil
		}
		p, ok := snap.Product(product)
		opID := taskdata.OperationPrefix + OpUnconfirmed
		if !ok || p.UnconfirmedAllowed == nil || !tree.Has(opID) {
			return nil
		}
		allowed := *p.UnconfirmedAllowed
		return tree.UpdateMetadata(opID, func(m *taskdata.Metadata) {
			m.ReadOnly = !allowed
		})
	}
}

// AtLeast reports whether a dotted install version is at least
// major.minor. Unparseable or empty versions count as the oldest supported.
func AtLeast(version string, major, minor int) bool {
	parts := strings.SplitN(version, ".", 3)
	if len(parts) < 2 {
		return false
	}
	maj, err := strconv.Atoi(parts[0])
	if err != nil {
		return false
	}
	mnr, err := strconv.Atoi(leadingDigits(parts[1]))
	if err != nil {
		return false
	}
	if maj != major {
		return maj > major
	}
	return mnr >= minor
}

// leadingDigits strips suffixes such as "rc1" from a version component.
func leadingDigits(s string) string {
	i := strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' })
	if i == -1 {
		return s
	}
	return s[:i]
}

var (
	_ backend.Backend         = (*Backend)(nil)
	_ backend.CreationChecker = (*Backend)(nil)
	_ backend.TokenBearer     = (*Backend)(nil)
	_ changes.Comparer        = Comparer{}
)
