package roles

import "context"

// Store is the persistence boundary for roles and their edges. Mutation
// methods are durable on return; the Service issues cache revocations only
// after a mutation method returns successfully.
//
// Bulk read methods return maps keyed by identifier. Edge queries
// (GetUserRoles, GetUserPermissions, GetRolePermissions, GetUsersByRoleIDs)
// key the result by every requested identifier, with an empty slice when
// nothing is linked. Entity lookups (GetRolesByID) omit missing roles from
// the map; absence is not an error.
type Store interface {
	// CreateRoles persists new roles with their initial user and
	// permission edges and returns the minted role ids, in args order.
	CreateRoles(ctx context.Context, args []CreateRoleArgs) ([]string, error)

	// DeleteRoles removes the roles and all their edges.
	DeleteRoles(ctx context.Context, roleIDs []string) error

	// ListRoles returns every role keyed by id.
	ListRoles(ctx context.Context) (map[string]Role, error)

	// GetRolesByID returns the matching roles keyed by id.
	GetRolesByID(ctx context.Context, roleIDs []string) (map[string]Role, error)

	// UpdateRoles applies the nil-vs-empty-vs-set semantics of
	// UpdateRoleArgs, reconciling supplied edge sets into minimal deltas.
	UpdateRoles(ctx context.Context, args []UpdateRoleArgs) error

	// UpdateUsersRoles reconciles each user's role assignments to the
	// supplied target set.
	UpdateUsersRoles(ctx context.Context, args []UpdateUserRolesArgs) error

	// GetUserRoles returns role ids keyed by each requested user id.
	GetUserRoles(ctx context.Context, userIDs []string) (map[string][]string, error)

	// GetUserPermissions returns the deduplicated permission kinds granted
	// through each user's roles, keyed by each requested user id.
	GetUserPermissions(ctx context.Context, userIDs []string) (map[string][]string, error)

	// GetRolePermissions returns permission kinds keyed by each requested role id.
	GetRolePermissions(ctx context.Context, roleIDs []string) (map[string][]string, error)

	// GetUsersByRoleIDs returns user ids keyed by each requested role id.
	GetUsersByRoleIDs(ctx context.Context, roleIDs []string) (map[string][]string, error)
}
