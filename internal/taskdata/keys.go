package taskdata

// Generic semantic keys. Backends map these to their native attribute ids.
const (
	KeySummary     = "summary"
	KeyDescription = "description"
	KeyKeywords    = "keywords"
	KeyPriority    = "priority"
	KeyProduct     = "product"
	KeyComponent   = "component"
	KeyVersion     = "version"
	KeyMilestone   = "milestone"
	KeyResolution  = "resolution"
	KeyStatus      = "status"
	KeyAssignee    = "assignee"
	KeyCC          = "cc"
	KeyOperation   = "operation"
	KeyToken       = "token"
)

// OperationPrefix prefixes the per-operation attributes that describe each
// selectable operation (e.g. "operation-duplicate").
const OperationPrefix = "operation-"

// OperationDuplicate is the operation value that marks a task as a duplicate.
const OperationDuplicate = "duplicate"

// CommonKeys are copied between trees of different backends.
var CommonKeys = []string{
	KeyKeywords,
	KeyPriority,
	KeyProduct,
	KeyComponent,
	KeyResolution,
	KeyAssignee,
	KeyCC,
}
