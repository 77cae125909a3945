package engine

import (
	"fmt"

	"tours-backend/internal/metadata"
)

// Actions checked by CheckPermission.
const (
	ActionRead   = "read"
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

var (
	anyRole     = []string{metadata.RoleAdmin, metadata.RoleManager, metadata.RoleMember}
	managerRole = []string{metadata.RoleAdmin, metadata.RoleManager}
)

// collectionPolicies maps collection -> action -> roles allowed. Admins are
// allowed everything and are not listed.
var collectionPolicies = map[string]map[string][]string{
	metadata.CollectionBookings: {
		ActionRead:   anyRole,
		ActionCreate: managerRole,
		ActionUpdate: managerRole,
	},
	metadata.CollectionAssets: {
		ActionRead:   anyRole,
		ActionCreate: managerRole,
		ActionUpdate: managerRole,
	},
	metadata.CollectionWebhookLogs: {
		ActionRead: managerRole,
	},
}

// CheckPermission verifies that the user may perform action on collection.
// Returns nil if allowed, or an UNAUTHORIZED / FORBIDDEN AppError.
func CheckPermission(user *metadata.UserContext, collection, action string) error {
	if user == nil {
		return UnauthorizedError("Authentication required")
	}
	if user.IsAdmin() {
		return nil
	}

	roles := collectionPolicies[collection][action]
	if len(roles) == 0 {
		return ForbiddenError(fmt.Sprintf("No permission for %s on %s", action, collection))
	}
	if !user.HasRole(roles...) {
		return ForbiddenError(fmt.Sprintf("Permission denied for %s on %s", action, collection))
	}
	return nil
}
