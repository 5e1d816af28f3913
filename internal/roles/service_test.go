package roles

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webinex/dynroles/internal/permissions"
)

// memStore is an in-memory Store for service tests. It honors the same
// contracts as PostgresStore: nil update fields leave state unchanged,
// edge queries key every requested id.
type memStore struct {
	roles     map[string]Role
	roleUsers map[string][]string
	rolePerms map[string][]string
	mutations int
}

func newMemStore() *memStore {
	return &memStore{
		roles:     map[string]Role{},
		roleUsers: map[string][]string{},
		rolePerms: map[string][]string{},
	}
}

func (s *memStore) CreateRoles(_ context.Context, args []CreateRoleArgs) ([]string, error) {
	s.mutations++
	ids := make([]string, 0, len(args))
	for _, arg := range args {
		id := uuid.NewString()
		values := arg.Values
		if values == nil {
			values = map[string]any{}
		}
		s.roles[id] = Role{ID: id, Values: values}
		s.roleUsers[id] = append([]string{}, dedupe(arg.UserIDs)...)
		s.rolePerms[id] = append([]string{}, dedupe(arg.Permissions)...)
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *memStore) DeleteRoles(_ context.Context, roleIDs []string) error {
	s.mutations++
	for _, id := range roleIDs {
		delete(s.roles, id)
		delete(s.roleUsers, id)
		delete(s.rolePerms, id)
	}
	return nil
}

func (s *memStore) ListRoles(_ context.Context) (map[string]Role, error) {
	out := make(map[string]Role, len(s.roles))
	for id, role := range s.roles {
		out[id] = role
	}
	return out, nil
}

func (s *memStore) GetRolesByID(_ context.Context, roleIDs []string) (map[string]Role, error) {
	out := map[string]Role{}
	for _, id := range dedupe(roleIDs) {
		if role, ok := s.roles[id]; ok {
			out[id] = role
		}
	}
	return out, nil
}

func (s *memStore) UpdateRoles(_ context.Context, args []UpdateRoleArgs) error {
	s.mutations++
	for _, arg := range args {
		role := s.roles[arg.ID]
		if arg.ShouldUpdateValues() {
			role.Values = arg.Values
			s.roles[arg.ID] = role
		}
		if arg.ShouldUpdateUsers() {
			s.roleUsers[arg.ID] = append([]string{}, dedupe(arg.UserIDs)...)
		}
		if arg.ShouldUpdatePermissions() {
			s.rolePerms[arg.ID] = append([]string{}, dedupe(arg.Permissions)...)
		}
	}
	return nil
}

func (s *memStore) UpdateUsersRoles(_ context.Context, args []UpdateUserRolesArgs) error {
	s.mutations++
	for _, arg := range args {
		for roleID, users := range s.roleUsers {
			s.roleUsers[roleID] = removeString(users, arg.UserID)
		}
		for _, roleID := range dedupe(arg.RoleIDs) {
			s.roleUsers[roleID] = append(s.roleUsers[roleID], arg.UserID)
		}
	}
	return nil
}

func (s *memStore) GetUserRoles(_ context.Context, userIDs []string) (map[string][]string, error) {
	out := seedKeys(userIDs)
	for roleID, users := range s.roleUsers {
		for _, userID := range users {
			if _, ok := out[userID]; ok {
				out[userID] = append(out[userID], roleID)
			}
		}
	}
	return out, nil
}

func (s *memStore) GetUserPermissions(_ context.Context, userIDs []string) (map[string][]string, error) {
	out := seedKeys(userIDs)
	for roleID, users := range s.roleUsers {
		for _, userID := range users {
			if _, ok := out[userID]; ok {
				out[userID] = append(out[userID], s.rolePerms[roleID]...)
			}
		}
	}
	for userID := range out {
		out[userID] = dedupe(out[userID])
		sort.Strings(out[userID])
	}
	return out, nil
}

func (s *memStore) GetRolePermissions(_ context.Context, roleIDs []string) (map[string][]string, error) {
	out := seedKeys(roleIDs)
	for _, roleID := range dedupe(roleIDs) {
		out[roleID] = append(out[roleID], s.rolePerms[roleID]...)
	}
	return out, nil
}

func (s *memStore) GetUsersByRoleIDs(_ context.Context, roleIDs []string) (map[string][]string, error) {
	out := seedKeys(roleIDs)
	for _, roleID := range dedupe(roleIDs) {
		out[roleID] = append(out[roleID], s.roleUsers[roleID]...)
	}
	return out, nil
}

func seedKeys(ids []string) map[string][]string {
	out := make(map[string][]string, len(ids))
	for _, id := range dedupe(ids) {
		out[id] = []string{}
	}
	return out
}

func removeString(values []string, target string) []string {
	out := values[:0]
	for _, v := range values {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}

// recordingCache is an in-memory UserPermissionsCache that records every
// revocation batch.
type recordingCache struct {
	entries map[string][]string
	revoked [][]string
}

func newRecordingCache() *recordingCache {
	return &recordingCache{entries: map[string][]string{}}
}

func (c *recordingCache) Get(_ context.Context, userIDs []string) (map[string][]string, []string) {
	hits := map[string][]string{}
	var missing []string
	for _, id := range dedupe(userIDs) {
		if perms, ok := c.entries[id]; ok {
			hits[id] = perms
		} else {
			missing = append(missing, id)
		}
	}
	return hits, missing
}

func (c *recordingCache) Set(_ context.Context, permissionsByUserID map[string][]string) {
	for id, perms := range permissionsByUserID {
		c.entries[id] = perms
	}
}

func (c *recordingCache) Revoke(_ context.Context, userIDs []string) {
	c.revoked = append(c.revoked, dedupe(userIDs))
	for _, id := range userIDs {
		delete(c.entries, id)
	}
}

func (c *recordingCache) revokedUsers() []string {
	var out []string
	for _, batch := range c.revoked {
		out = append(out, batch...)
	}
	out = dedupe(out)
	sort.Strings(out)
	return out
}

func newTestService(t *testing.T, configs []permissions.Config) (*Service, *memStore, *recordingCache) {
	t.Helper()
	catalog, err := permissions.NewCatalog(configs)
	require.NoError(t, err)
	holder, err := permissions.NewHolder(context.Background(), permissions.NewStaticSource(catalog))
	require.NoError(t, err)
	store := newMemStore()
	cache := newRecordingCache()
	service := NewService(store, permissions.NewValidator(holder), holder, cache, slog.Default())
	return service, store, cache
}

var salesConfigs = []permissions.Config{
	{Kind: "sales.read"},
	{Kind: "sales.write", Includes: []string{"sales.read"}},
	{Kind: "audit.read"},
}

func TestService_CreateRoles(t *testing.T) {
	ctx := context.Background()

	t.Run("creates roles and revokes named users", func(t *testing.T) {
		service, store, cache := newTestService(t, salesConfigs)
		cache.entries["u1"] = []string{"stale"}

		ids, err := service.CreateRoles(ctx, []CreateRoleArgs{
			{UserIDs: []string{"u1"}, Permissions: []string{"sales.read"}},
		})
		require.NoError(t, err)
		require.Len(t, ids, 1)
		assert.Contains(t, store.roles, ids[0])
		assert.Equal(t, []string{"u1"}, cache.revokedUsers())
		assert.NotContains(t, cache.entries, "u1")
	})

	t.Run("unknown permission blocks the store write", func(t *testing.T) {
		service, store, cache := newTestService(t, salesConfigs)

		_, err := service.CreateRoles(ctx, []CreateRoleArgs{
			{Permissions: []string{"sales.read", "billing.read"}},
		})
		var unknown *permissions.UnknownPermissionError
		require.ErrorAs(t, err, &unknown)
		assert.Equal(t, "billing.read", unknown.Kind)
		assert.Zero(t, store.mutations)
		assert.Empty(t, cache.revoked)
	})

	t.Run("missing includes block the store write", func(t *testing.T) {
		service, store, _ := newTestService(t, salesConfigs)

		_, err := service.CreateRoles(ctx, []CreateRoleArgs{
			{Permissions: []string{"sales.write"}},
		})
		var missing *permissions.MissingIncludesError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, []string{"sales.read"}, missing.Missing)
		assert.Zero(t, store.mutations)
	})

	t.Run("includes satisfied across the batch union", func(t *testing.T) {
		service, _, _ := newTestService(t, salesConfigs)

		_, err := service.CreateRoles(ctx, []CreateRoleArgs{
			{Permissions: []string{"sales.write"}},
			{Permissions: []string{"sales.read"}},
		})
		require.NoError(t, err)
	})

	t.Run("empty batch is invalid", func(t *testing.T) {
		service, _, _ := newTestService(t, salesConfigs)
		_, err := service.CreateRoles(ctx, nil)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})
}

func TestService_UpdateRoles(t *testing.T) {
	ctx := context.Background()

	t.Run("revokes removed users via the pre-update snapshot", func(t *testing.T) {
		service, _, cache := newTestService(t, salesConfigs)
		ids, err := service.CreateRoles(ctx, []CreateRoleArgs{
			{UserIDs: []string{"u1", "u2"}, Permissions: []string{"sales.read"}},
		})
		require.NoError(t, err)
		cache.revoked = nil

		// u2 loses the role, u3 gains it. All three must be revoked.
		err = service.UpdateRoles(ctx, []UpdateRoleArgs{
			{ID: ids[0], UserIDs: []string{"u1", "u3"}},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"u1", "u2", "u3"}, cache.revokedUsers())

		users, err := service.GetUsersByRoleIDs(ctx, ids)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"u1", "u3"}, users[ids[0]])
	})

	t.Run("nil fields leave state unchanged, empty slices clear it", func(t *testing.T) {
		service, store, _ := newTestService(t, salesConfigs)
		ids, err := service.CreateRoles(ctx, []CreateRoleArgs{
			{UserIDs: []string{"u1"}, Permissions: []string{"sales.read"}, Values: map[string]any{"name": "Sales"}},
		})
		require.NoError(t, err)

		err = service.UpdateRoles(ctx, []UpdateRoleArgs{{ID: ids[0], Permissions: []string{}}})
		require.NoError(t, err)
		assert.Empty(t, store.rolePerms[ids[0]])
		assert.Equal(t, []string{"u1"}, store.roleUsers[ids[0]])
		assert.Equal(t, map[string]any{"name": "Sales"}, store.roles[ids[0]].Values)
	})

	t.Run("unknown role ids fail listing every missing id", func(t *testing.T) {
		service, store, _ := newTestService(t, salesConfigs)
		store.mutations = 0

		err := service.UpdateRoles(ctx, []UpdateRoleArgs{
			{ID: "ghost-1"},
			{ID: "ghost-2"},
		})
		var notFound *RolesNotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, []string{"ghost-1", "ghost-2"}, notFound.IDs)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Zero(t, store.mutations)
	})

	t.Run("existing role passes the check", func(t *testing.T) {
		service, _, _ := newTestService(t, salesConfigs)
		ids, err := service.CreateRoles(ctx, []CreateRoleArgs{{Permissions: []string{"sales.read"}}})
		require.NoError(t, err)

		err = service.UpdateRoles(ctx, []UpdateRoleArgs{{ID: ids[0]}})
		require.NoError(t, err)
	})
}

func TestService_UpdateUsersRoles(t *testing.T) {
	ctx := context.Background()

	t.Run("reassigns and revokes the users", func(t *testing.T) {
		service, store, cache := newTestService(t, salesConfigs)
		ids, err := service.CreateRoles(ctx, []CreateRoleArgs{
			{Permissions: []string{"sales.read"}},
			{Permissions: []string{"audit.read"}},
		})
		require.NoError(t, err)
		cache.revoked = nil

		err = service.UpdateUsersRoles(ctx, []UpdateUserRolesArgs{
			{UserID: "u1", RoleIDs: []string{ids[0], ids[1]}},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"u1"}, cache.revokedUsers())

		userRoles, err := service.GetUserRoles(ctx, []string{"u1"})
		require.NoError(t, err)
		assert.ElementsMatch(t, ids, userRoles["u1"])
		assert.Contains(t, store.roleUsers[ids[0]], "u1")
	})

	t.Run("referencing an unknown role fails before mutation", func(t *testing.T) {
		service, store, _ := newTestService(t, salesConfigs)
		store.mutations = 0

		err := service.UpdateUsersRoles(ctx, []UpdateUserRolesArgs{
			{UserID: "u1", RoleIDs: []string{"ghost"}},
		})
		var notFound *RolesNotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Zero(t, store.mutations)
	})

	t.Run("empty role list clears all assignments", func(t *testing.T) {
		service, _, _ := newTestService(t, salesConfigs)
		ids, err := service.CreateRoles(ctx, []CreateRoleArgs{
			{UserIDs: []string{"u1"}, Permissions: []string{"sales.read"}},
		})
		require.NoError(t, err)
		_ = ids

		err = service.UpdateUsersRoles(ctx, []UpdateUserRolesArgs{
			{UserID: "u1", RoleIDs: []string{}},
		})
		require.NoError(t, err)

		userRoles, err := service.GetUserRoles(ctx, []string{"u1"})
		require.NoError(t, err)
		assert.Empty(t, userRoles["u1"])
	})
}

func TestService_DeleteRoles(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes and revokes assigned users", func(t *testing.T) {
		service, store, cache := newTestService(t, salesConfigs)
		ids, err := service.CreateRoles(ctx, []CreateRoleArgs{
			{UserIDs: []string{"u1", "u2"}, Permissions: []string{"sales.read"}},
		})
		require.NoError(t, err)
		cache.revoked = nil

		require.NoError(t, service.DeleteRoles(ctx, []string{ids[0]}))
		assert.NotContains(t, store.roles, ids[0])
		assert.Equal(t, []string{"u1", "u2"}, cache.revokedUsers())
	})

	t.Run("unknown ids fail before mutation", func(t *testing.T) {
		service, store, _ := newTestService(t, salesConfigs)
		store.mutations = 0

		err := service.DeleteRoles(ctx, []string{"ghost"})
		var notFound *RolesNotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Zero(t, store.mutations)
	})
}

func TestService_GetUserPermissions(t *testing.T) {
	ctx := context.Background()

	t.Run("cache misses are back-filled from the store", func(t *testing.T) {
		service, _, cache := newTestService(t, salesConfigs)
		ids, err := service.CreateRoles(ctx, []CreateRoleArgs{
			{UserIDs: []string{"u1"}, Permissions: []string{"sales.read", "sales.write"}},
		})
		require.NoError(t, err)
		_ = ids

		result, err := service.GetUserPermissions(ctx, []string{"u1", "u2"})
		require.NoError(t, err)
		assert.Equal(t, []string{"sales.read", "sales.write"}, result["u1"])
		assert.Empty(t, result["u2"])

		// Both resolved sets are now cached, the empty one included.
		assert.Equal(t, []string{"sales.read", "sales.write"}, cache.entries["u1"])
		assert.NotNil(t, cache.entries["u2"])
	})

	t.Run("hits are served without touching the store", func(t *testing.T) {
		service, store, cache := newTestService(t, salesConfigs)
		cache.entries["u1"] = []string{"cached.perm"}
		store.mutations = 0

		result, err := service.GetUserPermissions(ctx, []string{"u1"})
		require.NoError(t, err)
		assert.Equal(t, []string{"cached.perm"}, result["u1"])
	})

	t.Run("mixed hit and miss merge", func(t *testing.T) {
		service, _, cache := newTestService(t, salesConfigs)
		_, err := service.CreateRoles(ctx, []CreateRoleArgs{
			{UserIDs: []string{"u2"}, Permissions: []string{"audit.read"}},
		})
		require.NoError(t, err)
		cache.entries["u1"] = []string{"cached.perm"}

		result, err := service.GetUserPermissions(ctx, []string{"u1", "u2"})
		require.NoError(t, err)
		assert.Equal(t, []string{"cached.perm"}, result["u1"])
		assert.Equal(t, []string{"audit.read"}, result["u2"])
	})

	t.Run("empty input is invalid", func(t *testing.T) {
		service, _, _ := newTestService(t, salesConfigs)
		_, err := service.GetUserPermissions(ctx, nil)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})
}

func TestService_RevokeOnWriteCycle(t *testing.T) {
	ctx := context.Background()
	service, _, cache := newTestService(t, salesConfigs)

	ids, err := service.CreateRoles(ctx, []CreateRoleArgs{
		{UserIDs: []string{"u1"}, Permissions: []string{"sales.read"}},
	})
	require.NoError(t, err)

	// Read caches the resolved set.
	first, err := service.GetUserPermissions(ctx, []string{"u1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"sales.read"}, first["u1"])
	assert.Contains(t, cache.entries, "u1")

	// Mutation invalidates it, the next read sees the new state.
	err = service.UpdateRoles(ctx, []UpdateRoleArgs{
		{ID: ids[0], Permissions: []string{"sales.read", "sales.write"}},
	})
	require.NoError(t, err)
	assert.NotContains(t, cache.entries, "u1")

	second, err := service.GetUserPermissions(ctx, []string{"u1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"sales.read", "sales.write"}, second["u1"])
}

// recordingWarmQueue captures every warmup batch the service schedules.
type recordingWarmQueue struct {
	batches [][]string
	err     error
}

func (q *recordingWarmQueue) EnqueueWarmUserPermissions(_ context.Context, userIDs []string) error {
	if q.err != nil {
		return q.err
	}
	q.batches = append(q.batches, append([]string{}, userIDs...))
	return nil
}

func (q *recordingWarmQueue) warmedUsers() []string {
	var out []string
	for _, batch := range q.batches {
		out = append(out, batch...)
	}
	out = dedupe(out)
	sort.Strings(out)
	return out
}

func TestService_WarmupAfterRevocation(t *testing.T) {
	ctx := context.Background()

	t.Run("mutations schedule warmup for every revoked user", func(t *testing.T) {
		service, _, _ := newTestService(t, salesConfigs)
		queue := &recordingWarmQueue{}
		service = service.WithWarmQueue(queue)

		ids, err := service.CreateRoles(ctx, []CreateRoleArgs{
			{UserIDs: []string{"u1", "u2"}, Permissions: []string{"sales.read"}},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"u1", "u2"}, queue.warmedUsers())

		// Reassignment warms both the removed and the added users.
		queue.batches = nil
		err = service.UpdateRoles(ctx, []UpdateRoleArgs{
			{ID: ids[0], UserIDs: []string{"u3"}},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"u1", "u2", "u3"}, queue.warmedUsers())

		queue.batches = nil
		err = service.DeleteRoles(ctx, ids)
		require.NoError(t, err)
		assert.Equal(t, []string{"u3"}, queue.warmedUsers())
	})

	t.Run("enqueue failure does not fail the mutation", func(t *testing.T) {
		service, store, cache := newTestService(t, salesConfigs)
		service = service.WithWarmQueue(&recordingWarmQueue{err: errors.New("queue down")})

		ids, err := service.CreateRoles(ctx, []CreateRoleArgs{
			{UserIDs: []string{"u1"}, Permissions: []string{"sales.read"}},
		})
		require.NoError(t, err)
		require.Len(t, ids, 1)
		assert.Equal(t, 1, store.mutations)
		assert.Equal(t, []string{"u1"}, cache.revokedUsers())
	})

	t.Run("no queue configured is a no-op", func(t *testing.T) {
		service, _, cache := newTestService(t, salesConfigs)

		_, err := service.CreateRoles(ctx, []CreateRoleArgs{
			{UserIDs: []string{"u1"}, Permissions: []string{"sales.read"}},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"u1"}, cache.revokedUsers())
	})
}
