package directory

// Role is a coarse access level attached to a user.
type Role string

const (
	RoleViewer Role = "viewer"
	RoleAdmin  Role = "admin"
)

// Valid reports whether the role is one of the known levels.
func (r Role) Valid() bool {
	return r == RoleViewer || r == RoleAdmin
}

// Permission names a single guarded capability.
type Permission string

const (
	PermViewDashboard   Permission = "view:dashboard"
	PermManageSessions  Permission = "manage:sessions"
	PermRevokeTokens    Permission = "revoke:tokens"
	PermBroadcastGlobal Permission = "broadcast:global"
)

var rolePermissions = map[Role][]Permission{
	RoleViewer: {
		PermViewDashboard,
	},
	RoleAdmin: {
		PermViewDashboard,
		PermManageSessions,
		PermRevokeTokens,
		PermBroadcastGlobal,
	},
}

// Can reports whether the role grants the permission. Unknown roles grant
// nothing.
func (r Role) Can(p Permission) bool {
	for _, granted := range rolePermissions[r] {
		if granted == p {
			return true
		}
	}
	return false
}

// Permissions returns the role's granted permissions.
func (r Role) Permissions() []Permission {
	perms := rolePermissions[r]
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}
