// Package rbac decides what a room participant may do.
package rbac

type Role string
type Action string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
)

const (
	// ActionRead covers loading a document and receiving room traffic.
	ActionRead Action = "read"
	// ActionWrite covers saving a document and sending room traffic.
	ActionWrite   Action = "write"
	ActionRewrite Action = "rewrite"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleEditor:
		return action == ActionRead || action == ActionWrite || action == ActionRewrite
	case RoleViewer:
		return action == ActionRead
	default:
		return false
	}
}

// Normalize maps unknown roles to viewer.
func Normalize(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleEditor:
		return Role(role)
	default:
		return RoleViewer
	}
}
