package metadata

// Roles.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleMember  = "member"
)

var Roles = []string{RoleAdmin, RoleManager, RoleMember}

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	for _, r := range Roles {
		if r == role {
			return true
		}
	}
	return false
}

// UserContext represents the authenticated user, set by auth middleware.
type UserContext struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role"`
}

// HasRole checks whether the user holds any of the given roles.
func (u *UserContext) HasRole(roles ...string) bool {
	for _, r := range roles {
		if u.Role == r {
			return true
		}
	}
	return false
}

// IsAdmin checks whether the user has the admin role.
func (u *UserContext) IsAdmin() bool {
	return u.HasRole(RoleAdmin)
}
