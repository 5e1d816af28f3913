package rbac

import (
	"context"
	"log/slog"
	"net/http"

	"golang.org/x/sync/singleflight"

	"github.com/webinex/dynroles/internal/permissions"
	"github.com/webinex/dynroles/internal/platform/httpx"
)

// PermissionsResolver resolves permission sets per user id. *roles.Service
// and roles.HTTPStore both satisfy it.
type PermissionsResolver interface {
	GetUserPermissions(ctx context.Context, userIDs []string) (map[string][]string, error)
}

// Guard produces chi middleware that rejects requests whose user does not
// satisfy a permission expression. Concurrent resolutions for the same
// user collapse into one resolver call.
type Guard struct {
	resolver PermissionsResolver
	logger   *slog.Logger
	group    singleflight.Group
}

// NewGuard builds a Guard on top of the resolver.
func NewGuard(resolver PermissionsResolver, logger *slog.Logger) *Guard {
	return &Guard{resolver: resolver, logger: logger}
}

// Require guards with an explicit expression.
func (g *Guard) Require(expr permissions.Expression) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserIDFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}

			granted, err := g.resolve(r.Context(), userID)
			if err != nil {
				if g.logger != nil {
					g.logger.Error("resolve user permissions",
						slog.String("user_id", userID),
						slog.Any("error", err))
				}
				httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
				return
			}

			if !expr.EvaluateList(granted) {
				httpx.RespondError(w, httpx.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAny guards with an Any expression over kinds.
func (g *Guard) RequireAny(kinds ...string) func(http.Handler) http.Handler {
	return g.Require(mustExpression(permissions.Any, kinds))
}

// RequireAll guards with an All expression over kinds.
func (g *Guard) RequireAll(kinds ...string) func(http.Handler) http.Handler {
	return g.Require(mustExpression(permissions.All, kinds))
}

// RequirePolicy guards with a named policy from the registry. Unknown
// names panic at mount time rather than failing requests later.
func (g *Guard) RequirePolicy(registry *Registry, name string) func(http.Handler) http.Handler {
	expr, ok := registry.Lookup(name)
	if !ok {
		panic("rbac: unknown policy " + name)
	}
	return g.Require(expr)
}

func (g *Guard) resolve(ctx context.Context, userID string) ([]string, error) {
	// The closure runs once for all collapsed callers but captures only
	// the first caller's context. Detach it from cancellation so one
	// cancelled request cannot fail the others sharing the result.
	resolveCtx := context.WithoutCancel(ctx)
	result, err, _ := g.group.Do(userID, func() (any, error) {
		byUser, err := g.resolver.GetUserPermissions(resolveCtx, []string{userID})
		if err != nil {
			return nil, err
		}
		return byUser[userID], nil
	})
	if err != nil {
		return nil, err
	}
	granted, _ := result.([]string)
	return granted, nil
}

func mustExpression(op permissions.Operator, kinds []string) permissions.Expression {
	expr, err := permissions.NewExpression(op, kinds)
	if err != nil {
		panic(err)
	}
	return expr
}
