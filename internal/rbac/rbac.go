package rbac

// Role is the fixed, totally ordered privilege set.
type Role string

const (
	RoleUser   Role = "user"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

// Rank maps a role onto the privilege order user < editor < admin. Unknown
// roles rank below everything.
func Rank(r Role) int {
	switch r {
	case RoleUser:
		return 0
	case RoleEditor:
		return 1
	case RoleAdmin:
		return 2
	default:
		return -1
	}
}

func Valid(r Role) bool { return Rank(r) >= 0 }

// Authorize reports whether the caller meets the minimum required role. A rank
// comparison instead of list membership: a future higher role passes every
// existing check without touching call sites.
func Authorize(caller, min Role) bool {
	if !Valid(min) {
		return false
	}
	c := Rank(caller)
	return c >= 0 && c >= Rank(min)
}
