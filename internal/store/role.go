package store

// Role is the totally ordered member role lattice. Every permission
// check is "role >= required"; higher dominates lower.
type Role int

const (
	RoleLeft Role = iota
	RoleBanned
	RoleGuest
	RoleMember
	RoleAdminMsg
	RoleAdminBan
	RoleAdminAdmin
	RoleAdmin
	RoleCreator
)

func (r Role) String() string {
	switch r {
	case RoleLeft:
		return "left"
	case RoleBanned:
		return "banned"
	case RoleGuest:
		return "guest"
	case RoleMember:
		return "member"
	case RoleAdminMsg:
		return "message admin"
	case RoleAdminBan:
		return "ban admin"
	case RoleAdminAdmin:
		return "senior admin"
	case RoleAdmin:
		return "admin"
	case RoleCreator:
		return "creator"
	default:
		return "unknown"
	}
}

// IsBanned reports whether the member currently holds the BANNED role.
func (m *Member) IsBanned() bool {
	return m.Role == RoleBanned
}

// Validate returns a permission-denied OperationError unless the
// member's role reaches the required threshold.
func (m *Member) Validate(required Role) error {
	if m.Role >= required {
		return nil
	}
	return NewOperationError("permission denied")
}
