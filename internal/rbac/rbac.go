package rbac

type Role string
type Action string

const (
	RoleMember Role = "member"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

const (
	ActionRead    Action = "read"
	ActionWrite   Action = "write"
	ActionReview  Action = "review"
	ActionPublish Action = "publish"
	ActionAdmin   Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleEditor:
		return action == ActionRead || action == ActionWrite || action == ActionReview || action == ActionPublish
	case RoleMember:
		return action == ActionRead || action == ActionWrite
	default:
		return false
	}
}

// IsModerator reports whether the role carries review privileges.
func IsModerator(role Role) bool {
	return role == RoleEditor || role == RoleAdmin
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleMember, RoleEditor, RoleAdmin:
		return Role(role)
	default:
		return RoleMember
	}
}
