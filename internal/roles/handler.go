package roles

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/webinex/dynroles/internal/permissions"
	"github.com/webinex/dynroles/internal/platform/httpx"
)

// Handler exposes role management over HTTP. Routes mirror the Store
// operations so HTTPStore can run against another dynroles instance.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/permissions/configuration", h.permissionsConfiguration)

	r.Get("/users/permissions", h.userPermissions)
	r.Get("/users/roles", h.userRoles)
	r.Put("/users/roles", h.updateUsersRoles)

	r.Get("/roles", h.listRoles)
	r.Post("/roles", h.createRoles)
	r.Put("/roles", h.updateRoles)
	r.Delete("/roles", h.deleteRoles)
	r.Get("/roles/by-id", h.rolesByID)
	r.Get("/roles/permissions", h.rolePermissions)
	r.Get("/roles/users", h.usersByRoleIDs)
}

type permissionConfigurationResponse struct {
	Permissions []permissions.Config `json:"permissions"`
}

func (h *Handler) permissionsConfiguration(w http.ResponseWriter, r *http.Request) {
	catalog := h.service.PermissionsConfiguration()
	httpx.JSON(w, http.StatusOK, permissionConfigurationResponse{Permissions: catalog.Configs()})
}

func (h *Handler) userPermissions(w http.ResponseWriter, r *http.Request) {
	userIDs := r.URL.Query()["userId"]
	result, err := h.service.GetUserPermissions(r.Context(), userIDs)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) userRoles(w http.ResponseWriter, r *http.Request) {
	userIDs := r.URL.Query()["userId"]
	result, err := h.service.GetUserRoles(r.Context(), userIDs)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

type updateUserRolesRequest struct {
	UserID  string   `json:"userId" validate:"required"`
	RoleIDs []string `json:"roleIds" validate:"required"`
}

func (h *Handler) updateUsersRoles(w http.ResponseWriter, r *http.Request) {
	var body []updateUserRolesRequest
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	args := make([]UpdateUserRolesArgs, 0, len(body))
	for _, item := range body {
		if err := h.validate.Struct(item); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		args = append(args, UpdateUserRolesArgs{UserID: item.UserID, RoleIDs: item.RoleIDs})
	}
	if err := h.service.UpdateUsersRoles(r.Context(), args); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

type createRoleRequest struct {
	UserIDs     []string       `json:"userIds"`
	Permissions []string       `json:"permissions"`
	Values      map[string]any `json:"values"`
}

func (h *Handler) createRoles(w http.ResponseWriter, r *http.Request) {
	var body []createRoleRequest
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	args := make([]CreateRoleArgs, 0, len(body))
	for _, item := range body {
		args = append(args, CreateRoleArgs{UserIDs: item.UserIDs, Permissions: item.Permissions, Values: item.Values})
	}
	ids, err := h.service.CreateRoles(r.Context(), args)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ids)
}

type updateRoleRequest struct {
	ID          string         `json:"id" validate:"required"`
	UserIDs     []string       `json:"userIds"`
	Permissions []string       `json:"permissions"`
	Values      map[string]any `json:"values"`
}

func (h *Handler) updateRoles(w http.ResponseWriter, r *http.Request) {
	var body []updateRoleRequest
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	args := make([]UpdateRoleArgs, 0, len(body))
	for _, item := range body {
		if err := h.validate.Struct(item); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		args = append(args, UpdateRoleArgs{ID: item.ID, UserIDs: item.UserIDs, Permissions: item.Permissions, Values: item.Values})
	}
	if err := h.service.UpdateRoles(r.Context(), args); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteRoles(w http.ResponseWriter, r *http.Request) {
	var roleIDs []string
	if err := httpx.DecodeJSON(r, &roleIDs); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.service.DeleteRoles(r.Context(), roleIDs); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) rolesByID(w http.ResponseWriter, r *http.Request) {
	roleIDs := r.URL.Query()["roleId"]
	result, err := h.service.GetRolesByID(r.Context(), roleIDs)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) rolePermissions(w http.ResponseWriter, r *http.Request) {
	roleIDs := r.URL.Query()["roleId"]
	result, err := h.service.GetRolePermissions(r.Context(), roleIDs)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) usersByRoleIDs(w http.ResponseWriter, r *http.Request) {
	roleIDs := r.URL.Query()["roleId"]
	result, err := h.service.GetUsersByRoleIDs(r.Context(), roleIDs)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var notFound *RolesNotFoundError
	var unknown *permissions.UnknownPermissionError
	var missingIncludes *permissions.MissingIncludesError
	switch {
	case errors.As(err, &notFound):
		httpx.Problem(w, http.StatusNotFound, "Roles Not Found", notFound.Error())
	case errors.As(err, &unknown):
		httpx.Problem(w, http.StatusBadRequest, "Unknown Permission", unknown.Error())
	case errors.As(err, &missingIncludes):
		httpx.Problem(w, http.StatusBadRequest, "Missing Included Permissions", missingIncludes.Error())
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, permissions.ErrInvalidArgument):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", err.Error())
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicate):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	default:
		if h.logger != nil {
			h.logger.Error("roles handler", slog.Any("error", err))
		}
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
