package roles

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/webinex/dynroles/internal/permissions"
)

// HTTPStore implements Store against a remote dynroles HTTP API. It also
// implements permissions.Source, so a satellite service can share the
// central instance's permission catalog.
type HTTPStore struct {
	baseURL string
	client  *http.Client
}

// NewHTTPStore builds a client for the API mounted at baseURL, e.g.
// "http://dynroles:8080/api/dynroles".
func NewHTTPStore(baseURL string, client *http.Client) *HTTPStore {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPStore{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// Load fetches the remote permission catalog.
func (s *HTTPStore) Load(ctx context.Context) (*permissions.Catalog, error) {
	var payload struct {
		Permissions []permissions.Config `json:"permissions"`
	}
	if err := s.do(ctx, http.MethodGet, "/permissions/configuration", nil, nil, &payload); err != nil {
		return nil, err
	}
	return permissions.NewCatalog(payload.Permissions)
}

// CreateRoles creates the roles remotely and returns the minted ids.
func (s *HTTPStore) CreateRoles(ctx context.Context, args []CreateRoleArgs) ([]string, error) {
	var ids []string
	if err := s.do(ctx, http.MethodPost, "/roles", nil, args, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// DeleteRoles deletes the roles remotely.
func (s *HTTPStore) DeleteRoles(ctx context.Context, roleIDs []string) error {
	return s.do(ctx, http.MethodDelete, "/roles", nil, roleIDs, nil)
}

// ListRoles returns all remote roles keyed by id.
func (s *HTTPStore) ListRoles(ctx context.Context) (map[string]Role, error) {
	var result map[string]Role
	if err := s.do(ctx, http.MethodGet, "/roles", nil, nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetRolesByID returns the matching remote roles keyed by id.
func (s *HTTPStore) GetRolesByID(ctx context.Context, roleIDs []string) (map[string]Role, error) {
	var result map[string]Role
	if err := s.do(ctx, http.MethodGet, "/roles/by-id", idQuery("roleId", roleIDs), nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateRoles applies the updates remotely.
func (s *HTTPStore) UpdateRoles(ctx context.Context, args []UpdateRoleArgs) error {
	body := make([]updateRoleRequest, 0, len(args))
	for _, arg := range args {
		body = append(body, updateRoleRequest{ID: arg.ID, UserIDs: arg.UserIDs, Permissions: arg.Permissions, Values: arg.Values})
	}
	return s.do(ctx, http.MethodPut, "/roles", nil, body, nil)
}

// UpdateUsersRoles reconciles user role assignments remotely.
func (s *HTTPStore) UpdateUsersRoles(ctx context.Context, args []UpdateUserRolesArgs) error {
	body := make([]updateUserRolesRequest, 0, len(args))
	for _, arg := range args {
		body = append(body, updateUserRolesRequest{UserID: arg.UserID, RoleIDs: arg.RoleIDs})
	}
	return s.do(ctx, http.MethodPut, "/users/roles", nil, body, nil)
}

// GetUserRoles returns role ids keyed by each requested user id.
func (s *HTTPStore) GetUserRoles(ctx context.Context, userIDs []string) (map[string][]string, error) {
	var result map[string][]string
	if err := s.do(ctx, http.MethodGet, "/users/roles", idQuery("userId", userIDs), nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetUserPermissions returns permission kinds keyed by each requested user id.
func (s *HTTPStore) GetUserPermissions(ctx context.Context, userIDs []string) (map[string][]string, error) {
	var result map[string][]string
	if err := s.do(ctx, http.MethodGet, "/users/permissions", idQuery("userId", userIDs), nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetRolePermissions returns permission kinds keyed by each requested role id.
func (s *HTTPStore) GetRolePermissions(ctx context.Context, roleIDs []string) (map[string][]string, error) {
	var result map[string][]string
	if err := s.do(ctx, http.MethodGet, "/roles/permissions", idQuery("roleId", roleIDs), nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetUsersByRoleIDs returns user ids keyed by each requested role id.
func (s *HTTPStore) GetUsersByRoleIDs(ctx context.Context, roleIDs []string) (map[string][]string, error) {
	var result map[string][]string
	if err := s.do(ctx, http.MethodGet, "/roles/users", idQuery("roleId", roleIDs), nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func idQuery(key string, ids []string) url.Values {
	query := url.Values{}
	for _, id := range ids {
		query.Add(key, id)
	}
	return query
}

func (s *HTTPStore) do(ctx context.Context, method, path string, query url.Values, body, target any) error {
	endpoint := s.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("roles: encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("roles: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("roles: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return s.mapStatus(resp, method, path)
	}
	if target == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("roles: decode response: %w", err)
	}
	return nil
}

func (s *HTTPStore) mapStatus(resp *http.Response, method, path string) error {
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s %s: %s", ErrNotFound, method, path, detail)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s %s: %s", ErrDuplicate, method, path, detail)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s %s: %s", ErrInvalidArgument, method, path, detail)
	default:
		return fmt.Errorf("roles: %s %s: unexpected status %d: %s", method, path, resp.StatusCode, detail)
	}
}
