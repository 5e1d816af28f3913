package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/webinex/dynroles/internal/rbac"
	"github.com/webinex/dynroles/internal/roles"
	"github.com/webinex/dynroles/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger       *slog.Logger
	Config       *Config
	RolesHandler *roles.Handler

	// JobsHandler is set only when the deployment runs the task queue.
	JobsHandler *jobs.Handler

	// Guard and ManagePolicy gate the management API when set. A nil
	// Guard mounts the API unprotected, which is fine behind a trusted
	// gateway.
	Guard        *rbac.Guard
	ManagePolicy string
	Registry     *rbac.Registry
}

// NewRouter constructs the chi.Router.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.JobsHandler != nil {
		r.Route("/jobs", params.JobsHandler.MountRoutes)
	}

	r.Route("/api/dynroles", func(r chi.Router) {
		if params.Guard != nil && params.ManagePolicy != "" {
			r.Use(params.Guard.RequirePolicy(params.Registry, params.ManagePolicy))
		}
		params.RolesHandler.MountRoutes(r)
	})

	return r
}
