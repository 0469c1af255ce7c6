package model

// Role is the RBAC role carried in a caller's token.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleScheduler Role = "scheduler"
	RoleOperator  Role = "operator"
)

// RoleRank returns the numeric rank of a role (higher = more privileges).
// Only relative ordering matters; RoleAtLeast uses >= comparison.
func RoleRank(r Role) int {
	switch r {
	case RoleAdmin:
		return 3
	case RoleScheduler:
		return 2
	case RoleOperator:
		return 1
	default:
		return 0
	}
}

// RoleAtLeast returns true if role r has at least the privileges of minRole.
func RoleAtLeast(r, minRole Role) bool {
	return RoleRank(r) >= RoleRank(minRole)
}

// ValidRole reports whether r is a known role.
func ValidRole(r Role) bool {
	return RoleRank(r) > 0
}
