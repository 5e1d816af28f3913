package roles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/webinex/dynroles/internal/platform/db"
)

// PostgresStore persists roles and edges in PostgreSQL. Expected schema:
//
//	roles(id text primary key, values jsonb not null default '{}')
//	role_users(role_id text references roles(id) on delete cascade,
//	           user_id text not null, primary key (role_id, user_id))
//	role_permissions(role_id text references roles(id) on delete cascade,
//	           permission text not null, primary key (role_id, permission))
//
// Each UpdateRoles/UpdateUsersRoles batch runs in one transaction, so a
// failed entry rolls back the whole batch and the durable-on-return
// contract holds for the batch as a unit.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs a store backed by the provided pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// CreateRoles inserts roles with their initial edges, minting UUID ids.
func (s *PostgresStore) CreateRoles(ctx context.Context, args []CreateRoleArgs) ([]string, error) {
	ids := make([]string, 0, len(args))
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		for _, arg := range args {
			id := uuid.NewString()
			values := arg.Values
			if values == nil {
				values = map[string]any{}
			}
			payload, err := json.Marshal(values)
			if err != nil {
				return fmt.Errorf("roles: encode values: %w", err)
			}
			if _, err := tx.Exec(ctx, `INSERT INTO roles (id, values) VALUES ($1, $2)`, id, payload); err != nil {
				return mapPgError(err)
			}
			for _, userID := range dedupe(arg.UserIDs) {
				if _, err := tx.Exec(ctx, `INSERT INTO role_users (role_id, user_id) VALUES ($1, $2)`, id, userID); err != nil {
					return mapPgError(err)
				}
			}
			for _, kind := range dedupe(arg.Permissions) {
				if _, err := tx.Exec(ctx, `INSERT INTO role_permissions (role_id, permission) VALUES ($1, $2)`, id, kind); err != nil {
					return mapPgError(err)
				}
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// DeleteRoles removes the roles; edges go with them via cascade.
func (s *PostgresStore) DeleteRoles(ctx context.Context, roleIDs []string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM roles WHERE id = ANY($1)`, roleIDs)
	if err != nil {
		return mapPgError(err)
	}
	return nil
}

// ListRoles returns all roles keyed by id.
func (s *PostgresStore) ListRoles(ctx context.Context) (map[string]Role, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, values FROM roles`)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()
	return scanRoles(rows)
}

// GetRolesByID returns the matching roles keyed by id.
func (s *PostgresStore) GetRolesByID(ctx context.Context, roleIDs []string) (map[string]Role, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, values FROM roles WHERE id = ANY($1)`, roleIDs)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()
	return scanRoles(rows)
}

// UpdateRoles applies each entry's values update and edge reconciliation
// inside a single transaction.
func (s *PostgresStore) UpdateRoles(ctx context.Context, args []UpdateRoleArgs) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		for _, arg := range args {
			if arg.ShouldUpdateValues() {
				payload, err := json.Marshal(arg.Values)
				if err != nil {
					return fmt.Errorf("roles: encode values: %w", err)
				}
				if _, err := tx.Exec(ctx, `UPDATE roles SET values = $2 WHERE id = $1`, arg.ID, payload); err != nil {
					return mapPgError(err)
				}
			}
			if arg.ShouldUpdatePermissions() {
				if err := reconcileEdges(ctx, tx, "role_permissions", "permission", arg.ID, arg.Permissions); err != nil {
					return err
				}
			}
			if arg.ShouldUpdateUsers() {
				if err := reconcileEdges(ctx, tx, "role_users", "user_id", arg.ID, arg.UserIDs); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// reconcileEdges brings one role's edge set to the desired target state
// with minimal deletes and inserts.
func reconcileEdges(ctx context.Context, tx pgx.Tx, table, column, roleID string, desired []string) error {
	rows, err := tx.Query(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE role_id = $1`, column, table), roleID)
	if err != nil {
		return mapPgError(err)
	}
	current, err := scanStrings(rows)
	if err != nil {
		return err
	}

	toAdd, toRemove := Reconcile(current, desired)
	if len(toRemove) > 0 {
		query := fmt.Sprintf(`DELETE FROM %s WHERE role_id = $1 AND %s = ANY($2)`, table, column)
		if _, err := tx.Exec(ctx, query, roleID, toRemove); err != nil {
			return mapPgError(err)
		}
	}
	for _, value := range toAdd {
		query := fmt.Sprintf(`INSERT INTO %s (role_id, %s) VALUES ($1, $2)`, table, column)
		if _, err := tx.Exec(ctx, query, roleID, value); err != nil {
			return mapPgError(err)
		}
	}
	return nil
}

// UpdateUsersRoles reconciles each user's role assignments in one transaction.
func (s *PostgresStore) UpdateUsersRoles(ctx context.Context, args []UpdateUserRolesArgs) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		for _, arg := range args {
			rows, err := tx.Query(ctx, `SELECT role_id FROM role_users WHERE user_id = $1`, arg.UserID)
			if err != nil {
				return mapPgError(err)
			}
			current, err := scanStrings(rows)
			if err != nil {
				return err
			}

			toAdd, toRemove := Reconcile(current, arg.RoleIDs)
			if len(toRemove) > 0 {
				if _, err := tx.Exec(ctx, `DELETE FROM role_users WHERE user_id = $1 AND role_id = ANY($2)`, arg.UserID, toRemove); err != nil {
					return mapPgError(err)
				}
			}
			for _, roleID := range toAdd {
				if _, err := tx.Exec(ctx, `INSERT INTO role_users (role_id, user_id) VALUES ($1, $2)`, roleID, arg.UserID); err != nil {
					return mapPgError(err)
				}
			}
		}
		return nil
	})
}

// GetUserRoles returns role ids keyed by each requested user id.
func (s *PostgresStore) GetUserRoles(ctx context.Context, userIDs []string) (map[string][]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT user_id, role_id FROM role_users WHERE user_id = ANY($1)`, userIDs)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()
	return scanEdges(rows, userIDs)
}

// GetUserPermissions resolves each user's roles into the union of those
// roles' permissions.
func (s *PostgresStore) GetUserPermissions(ctx context.Context, userIDs []string) (map[string][]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT ru.user_id, rp.permission
		FROM role_users ru
		JOIN role_permissions rp ON rp.role_id = ru.role_id
		WHERE ru.user_id = ANY($1)`, userIDs)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()
	return scanEdges(rows, userIDs)
}

// GetRolePermissions returns permission kinds keyed by each requested role id.
func (s *PostgresStore) GetRolePermissions(ctx context.Context, roleIDs []string) (map[string][]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT role_id, permission FROM role_permissions WHERE role_id = ANY($1)`, roleIDs)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()
	return scanEdges(rows, roleIDs)
}

// GetUsersByRoleIDs returns user ids keyed by each requested role id.
func (s *PostgresStore) GetUsersByRoleIDs(ctx context.Context, roleIDs []string) (map[string][]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT role_id, user_id FROM role_users WHERE role_id = ANY($1)`, roleIDs)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()
	return scanEdges(rows, roleIDs)
}

func scanRoles(rows pgx.Rows) (map[string]Role, error) {
	result := make(map[string]Role)
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("roles: scan: %w", err)
		}
		values := map[string]any{}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &values); err != nil {
				return nil, fmt.Errorf("roles: decode values: %w", err)
			}
		}
		result[id] = Role{ID: id, Values: values}
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError(err)
	}
	return result, nil
}

func scanStrings(rows pgx.Rows) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("roles: scan: %w", err)
		}
		out = append(out, value)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError(err)
	}
	return out, nil
}

// scanEdges collects (key, value) rows into a map seeded with an empty
// slice for every requested key, so callers always see each requested id.
func scanEdges(rows pgx.Rows, requested []string) (map[string][]string, error) {
	result := make(map[string][]string, len(requested))
	for _, id := range dedupe(requested) {
		result[id] = []string{}
	}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("roles: scan: %w", err)
		}
		result[key] = append(result[key], value)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError(err)
	}
	return result, nil
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}
