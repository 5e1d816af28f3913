// Package roles implements dynamic role management: role and edge storage
// contracts, minimal-delta edge reconciliation, the per-user permission
// cache and the service that sequences validation, mutation and cache
// revocation.
package roles

// Role is a dynamically managed role. The engine treats the identifier as
// an opaque string and never interprets Values; they carry extension
// fields such as name or description for the host application.
type Role struct {
	ID     string         `json:"id"`
	Values map[string]any `json:"values"`
}

// CreateRoleArgs describes one role to create. Nil slices are treated as
// empty: a role may be created without users or permissions.
type CreateRoleArgs struct {
	UserIDs     []string       `json:"userIds"`
	Permissions []string       `json:"permissions"`
	Values      map[string]any `json:"values"`
}

// UpdateRoleArgs describes one role update. For UserIDs and Permissions a
// nil slice leaves that edge kind untouched, an empty slice removes every
// existing edge, and a non-empty slice is reconciled into add/remove
// deltas against the stored state. A nil Values map leaves the role's
// extension values untouched.
type UpdateRoleArgs struct {
	ID          string         `json:"id"`
	UserIDs     []string       `json:"userIds"`
	Permissions []string       `json:"permissions"`
	Values      map[string]any `json:"values"`
}

// ShouldUpdateUsers reports whether a target user edge set was supplied.
func (a UpdateRoleArgs) ShouldUpdateUsers() bool { return a.UserIDs != nil }

// ShouldUpdatePermissions reports whether a target permission edge set was supplied.
func (a UpdateRoleArgs) ShouldUpdatePermissions() bool { return a.Permissions != nil }

// ShouldUpdateValues reports whether extension values were supplied.
func (a UpdateRoleArgs) ShouldUpdateValues() bool { return a.Values != nil }

// UpdateUserRolesArgs replaces one user's role set with RoleIDs. Unlike
// UpdateRoleArgs, the target set is always required: an empty set removes
// the user from every role.
type UpdateUserRolesArgs struct {
	UserID  string   `json:"userId"`
	RoleIDs []string `json:"roleIds"`
}
