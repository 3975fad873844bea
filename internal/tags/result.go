package tags

import "github.com/tgienger/stmtags/internal/models"

// Action identifies which transition a successful operation performed
type Action int

const (
	ActionCreated Action = iota + 1
	ActionRenamed
	ActionUnchanged // rename to the current name, nothing written
	ActionDeleted
)

func (a Action) String() string {
	switch a {
	case ActionCreated:
		return "created"
	case ActionRenamed:
		return "renamed"
	case ActionUnchanged:
		return "unchanged"
	case ActionDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Result describes a successful tag operation.
//
// Tag holds the stored state after the operation. For a delete it holds
// the tag as it was before removal, or only its UUID when the tag was
// already gone. OldName and NewName are set for renames, including the
// unchanged case where they are equal.
type Result struct {
	Action  Action
	Tag     models.Tag
	OldName string
	NewName string
}
