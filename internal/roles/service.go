package roles

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/webinex/dynroles/internal/permissions"
)

// WarmQueue schedules background permission warmup for users whose cache
// entries were just revoked. jobs.Client satisfies it.
type WarmQueue interface {
	EnqueueWarmUserPermissions(ctx context.Context, userIDs []string) error
}

// Service sequences validation, store mutation and cache revocation for
// every role operation. Mutations follow validate → mutate → revoke;
// validation failures always precede the first store write, and the
// revoke is issued only after the store reports the mutation durable.
type Service struct {
	store     Store
	validator *permissions.Validator
	holder    *permissions.Holder
	cache     UserPermissionsCache
	warmQueue WarmQueue
	logger    *slog.Logger
}

// NewService builds a Service. Pass NoopUserPermissionsCache when caching
// is disabled.
func NewService(store Store, validator *permissions.Validator, holder *permissions.Holder, cache UserPermissionsCache, logger *slog.Logger) *Service {
	if cache == nil {
		cache = NoopUserPermissionsCache{}
	}
	return &Service{store: store, validator: validator, holder: holder, cache: cache, logger: logger}
}

// WithWarmQueue makes the service schedule cache warmup for every user it
// revokes. The queue is optional; without it revoked users are rebuilt
// lazily on their next read.
func (s *Service) WithWarmQueue(queue WarmQueue) *Service {
	s.warmQueue = queue
	return s
}

// PermissionsConfiguration returns the active permission catalog.
func (s *Service) PermissionsConfiguration() *permissions.Catalog {
	return s.holder.Current()
}

// CreateRoles validates the union of submitted permissions, creates the
// roles and revokes cached permissions for every user named in args. Only
// those users can be affected: a new role grants nothing to anyone else.
func (s *Service) CreateRoles(ctx context.Context, args []CreateRoleArgs) ([]string, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: no roles to create", ErrInvalidArgument)
	}
	var kinds []string
	var userIDs []string
	for _, arg := range args {
		kinds = append(kinds, arg.Permissions...)
		userIDs = append(userIDs, arg.UserIDs...)
	}
	if err := s.validator.Validate(ctx, kinds); err != nil {
		return nil, err
	}

	ids, err := s.store.CreateRoles(ctx, args)
	if err != nil {
		return nil, err
	}
	s.cache.Revoke(ctx, userIDs)
	s.scheduleWarmup(ctx, userIDs)
	return ids, nil
}

// UpdateRoles validates role existence and submitted permissions, applies
// the updates and revokes cached permissions for both the users assigned
// to the roles before the update and the users targeted by it. Users
// being removed from a role are in the first group; that is why the
// assignment snapshot is taken before mutating.
func (s *Service) UpdateRoles(ctx context.Context, args []UpdateRoleArgs) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: no roles to update", ErrInvalidArgument)
	}
	roleIDs := make([]string, 0, len(args))
	var kinds []string
	var targetUsers []string
	for _, arg := range args {
		if arg.ID == "" {
			return fmt.Errorf("%w: empty role id", ErrInvalidArgument)
		}
		roleIDs = append(roleIDs, arg.ID)
		kinds = append(kinds, arg.Permissions...)
		targetUsers = append(targetUsers, arg.UserIDs...)
	}
	if err := s.requireRolesExist(ctx, roleIDs); err != nil {
		return err
	}
	if err := s.validator.Validate(ctx, kinds); err != nil {
		return err
	}

	usersByRole, err := s.store.GetUsersByRoleIDs(ctx, roleIDs)
	if err != nil {
		return err
	}

	if err := s.store.UpdateRoles(ctx, args); err != nil {
		return err
	}

	affected := targetUsers
	for _, users := range usersByRole {
		affected = append(affected, users...)
	}
	s.cache.Revoke(ctx, affected)
	s.scheduleWarmup(ctx, affected)
	return nil
}

// UpdateUsersRoles reconciles each user's role set to the supplied target
// and revokes those users' cached permissions.
func (s *Service) UpdateUsersRoles(ctx context.Context, args []UpdateUserRolesArgs) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: no user role updates", ErrInvalidArgument)
	}
	var roleIDs []string
	userIDs := make([]string, 0, len(args))
	for _, arg := range args {
		if arg.UserID == "" {
			return fmt.Errorf("%w: empty user id", ErrInvalidArgument)
		}
		roleIDs = append(roleIDs, arg.RoleIDs...)
		userIDs = append(userIDs, arg.UserID)
	}
	if err := s.requireRolesExist(ctx, roleIDs); err != nil {
		return err
	}

	if err := s.store.UpdateUsersRoles(ctx, args); err != nil {
		return err
	}
	s.cache.Revoke(ctx, userIDs)
	s.scheduleWarmup(ctx, userIDs)
	return nil
}

// DeleteRoles removes the roles and all their edges, revoking cached
// permissions for every user that was assigned to any of them.
func (s *Service) DeleteRoles(ctx context.Context, roleIDs []string) error {
	roleIDs = dedupe(roleIDs)
	if len(roleIDs) == 0 {
		return fmt.Errorf("%w: no role ids", ErrInvalidArgument)
	}
	if err := s.requireRolesExist(ctx, roleIDs); err != nil {
		return err
	}

	usersByRole, err := s.store.GetUsersByRoleIDs(ctx, roleIDs)
	if err != nil {
		return err
	}

	if err := s.store.DeleteRoles(ctx, roleIDs); err != nil {
		return err
	}

	var affected []string
	for _, users := range usersByRole {
		affected = append(affected, users...)
	}
	s.cache.Revoke(ctx, affected)
	s.scheduleWarmup(ctx, affected)
	return nil
}

// GetUserPermissions resolves permission sets for the requested users,
// serving from cache where possible and back-filling the cache with
// store results for the misses.
//
// A concurrent writer can revoke between our store read and cache fill,
// leaving a pre-mutation value cached until its TTL elapses or the next
// revocation. This staleness window is accepted and bounded by the cache
// TTL; serializing reads against writes is deliberately out of scope.
func (s *Service) GetUserPermissions(ctx context.Context, userIDs []string) (map[string][]string, error) {
	userIDs = dedupe(userIDs)
	if len(userIDs) == 0 {
		return nil, fmt.Errorf("%w: no user ids", ErrInvalidArgument)
	}

	hits, missing := s.cache.Get(ctx, userIDs)

	result := make(map[string][]string, len(userIDs))
	for userID, perms := range hits {
		result[userID] = perms
	}
	if len(missing) > 0 {
		fromStore, err := s.store.GetUserPermissions(ctx, missing)
		if err != nil {
			return nil, err
		}
		s.cache.Set(ctx, fromStore)
		for userID, perms := range fromStore {
			result[userID] = perms
		}
	}
	return result, nil
}

// GetUserRoles returns role ids keyed by user id. Role assignments are
// read far less often than permissions, so they go straight to the store.
func (s *Service) GetUserRoles(ctx context.Context, userIDs []string) (map[string][]string, error) {
	userIDs = dedupe(userIDs)
	if len(userIDs) == 0 {
		return nil, fmt.Errorf("%w: no user ids", ErrInvalidArgument)
	}
	return s.store.GetUserRoles(ctx, userIDs)
}

// GetRolePermissions returns permission kinds keyed by role id.
func (s *Service) GetRolePermissions(ctx context.Context, roleIDs []string) (map[string][]string, error) {
	roleIDs = dedupe(roleIDs)
	if len(roleIDs) == 0 {
		return nil, fmt.Errorf("%w: no role ids", ErrInvalidArgument)
	}
	return s.store.GetRolePermissions(ctx, roleIDs)
}

// GetUsersByRoleIDs returns user ids keyed by role id.
func (s *Service) GetUsersByRoleIDs(ctx context.Context, roleIDs []string) (map[string][]string, error) {
	roleIDs = dedupe(roleIDs)
	if len(roleIDs) == 0 {
		return nil, fmt.Errorf("%w: no role ids", ErrInvalidArgument)
	}
	return s.store.GetUsersByRoleIDs(ctx, roleIDs)
}

// ListRoles returns every role keyed by id.
func (s *Service) ListRoles(ctx context.Context) (map[string]Role, error) {
	return s.store.ListRoles(ctx)
}

// GetRolesByID returns the matching roles keyed by id; missing ids are
// simply absent.
func (s *Service) GetRolesByID(ctx context.Context, roleIDs []string) (map[string]Role, error) {
	roleIDs = dedupe(roleIDs)
	if len(roleIDs) == 0 {
		return nil, fmt.Errorf("%w: no role ids", ErrInvalidArgument)
	}
	return s.store.GetRolesByID(ctx, roleIDs)
}

// scheduleWarmup asks the warm queue to rebuild cache entries for the
// given users. Enqueue failures never fail the mutation that triggered
// them; the warmup is an optimization, not part of the write.
func (s *Service) scheduleWarmup(ctx context.Context, userIDs []string) {
	if s.warmQueue == nil {
		return
	}
	userIDs = dedupe(userIDs)
	if len(userIDs) == 0 {
		return
	}
	if err := s.warmQueue.EnqueueWarmUserPermissions(ctx, userIDs); err != nil && s.logger != nil {
		s.logger.Warn("enqueue permissions warmup", slog.Any("error", err))
	}
}

// requireRolesExist fails with RolesNotFoundError naming every referenced
// role id the store does not know. Identifier matching is
// case-insensitive here and only here; role ids are UUID-like strings and
// callers routinely differ in hex casing.
func (s *Service) requireRolesExist(ctx context.Context, roleIDs []string) error {
	roleIDs = dedupe(roleIDs)
	if len(roleIDs) == 0 {
		return nil
	}
	found, err := s.store.GetRolesByID(ctx, roleIDs)
	if err != nil {
		return err
	}
	foundLower := make(map[string]struct{}, len(found))
	for id := range found {
		foundLower[strings.ToLower(id)] = struct{}{}
	}
	var missing []string
	for _, id := range roleIDs {
		if _, ok := foundLower[strings.ToLower(id)]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return &RolesNotFoundError{IDs: missing}
	}
	return nil
}
