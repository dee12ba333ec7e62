package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/care-access/internal"
	"github.com/frahmantamala/care-access/internal/core/access"
	"github.com/frahmantamala/care-access/internal/transport"
	"github.com/google/uuid"
)

type PermissionChecker interface {
	HasPermission(ctx context.Context, user uuid.UUID, name string, facility *int64) bool
}

type ModuleChecker interface {
	HasModuleAccess(ctx context.Context, user uuid.UUID, module access.ModuleName) bool
}

// RequirePermissions lets the request through when the user holds any of permissions.
func RequirePermissions(checker PermissionChecker, permissions ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := internal.UserIDFromContext(r.Context())
			if userID == uuid.Nil {
				writeAppError(w, internal.ErrMissingToken)
				return
			}

			for _, p := range permissions {
				if checker.HasPermission(r.Context(), userID, p, nil) {
					next.ServeHTTP(w, r)
					return
				}
			}

			slog.Warn("access denied: user lacks required permissions",
				"user_id", userID,
				"required_permissions", permissions)
			writeAppError(w, internal.ErrAccessDenied)
		})
	}
}

// RequireFacilityPermission checks permission against the facility_id query parameter.
func RequireFacilityPermission(checker PermissionChecker, permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := internal.UserIDFromContext(r.Context())
			if userID == uuid.Nil {
				writeAppError(w, internal.ErrMissingToken)
				return
			}

			facility, err := transport.ParseFacilityID(r.URL.Query().Get("facility_id"))
			if err != nil {
				writeAppError(w, err)
				return
			}

			if !checker.HasPermission(r.Context(), userID, permission, facility) {
				slog.Warn("access denied: user lacks facility permission",
					"user_id", userID,
					"permission", permission,
					"facility_id", facility)
				writeAppError(w, internal.ErrAccessDenied)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireModule guards a module's routes.
func RequireModule(checker ModuleChecker, module access.ModuleName) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := internal.UserIDFromContext(r.Context())
			if userID == uuid.Nil {
				writeAppError(w, internal.ErrMissingToken)
				return
			}
			if !checker.HasModuleAccess(r.Context(), userID, module) {
				writeAppError(w, internal.ErrAccessDenied)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeAppError(w http.ResponseWriter, err error) {
	appErr, ok := internal.IsAppError(err)
	if !ok {
		appErr = internal.NewInternalError("internal server error", err)
	}
	status, body := appErr.ToHTTPResponse()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
