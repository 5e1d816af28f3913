// Package jobs holds background task definitions and the Asynq worker
// wrapper.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/webinex/dynroles/internal/permissions"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeWarmUserPermissions pre-resolves permission sets into the
	// cache, so first requests after a deploy or mass revocation do not
	// all fall through to the store.
	TaskTypeWarmUserPermissions = "permissions:warm"
	// TaskTypeReloadCatalog re-reads the permission catalog source.
	TaskTypeReloadCatalog = "permissions:reload"
)

// WarmUserPermissionsPayload lists the users whose permission sets
// should be resolved and cached.
type WarmUserPermissionsPayload struct {
	UserIDs []string `json:"userIds"`
}

// NewWarmUserPermissionsTask constructs an Asynq task.
func NewWarmUserPermissionsTask(payload WarmUserPermissionsPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeWarmUserPermissions, data), nil
}

// NewReloadCatalogTask constructs an Asynq task with no payload.
func NewReloadCatalogTask() *asynq.Task {
	return asynq.NewTask(TaskTypeReloadCatalog, nil)
}

// PermissionsWarmer resolves user permission sets, filling the cache as a
// side effect. *roles.Service satisfies it.
type PermissionsWarmer interface {
	GetUserPermissions(ctx context.Context, userIDs []string) (map[string][]string, error)
}

// WarmUserPermissionsHandler returns the handler for warmup tasks.
func WarmUserPermissionsHandler(warmer PermissionsWarmer, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload WarmUserPermissionsPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if len(payload.UserIDs) == 0 {
			return nil
		}
		resolved, err := warmer.GetUserPermissions(ctx, payload.UserIDs)
		if err != nil {
			return err
		}
		logger.Info("warmed user permissions", slog.Int("users", len(resolved)))
		return nil
	}
}

// ReloadCatalogHandler returns the handler for catalog reload tasks.
func ReloadCatalogHandler(holder *permissions.Holder, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		if err := holder.Reload(ctx); err != nil {
			return err
		}
		logger.Info("reloaded permission catalog",
			slog.Int("kinds", len(holder.Current().Configs())))
		return nil
	}
}
