package rest

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/care-access/api"
	"github.com/frahmantamala/care-access/internal"
	"github.com/frahmantamala/care-access/internal/auth"
	"github.com/frahmantamala/care-access/internal/core/access"
	"github.com/frahmantamala/care-access/internal/core/observability"
	"github.com/frahmantamala/care-access/internal/module"
	"github.com/frahmantamala/care-access/internal/permission"
	"github.com/frahmantamala/care-access/internal/preference"
	"github.com/frahmantamala/care-access/internal/role"
	"github.com/frahmantamala/care-access/internal/routing"
	"github.com/frahmantamala/care-access/internal/transport/middleware"
	"github.com/frahmantamala/care-access/internal/transport/swagger"
	"github.com/go-chi/chi"
)

type Handlers struct {
	Auth       *auth.Handler
	Role       *role.Handler
	Permission *permission.Handler
	Module     *module.Handler
	Preference *preference.Handler
	Routing    *routing.Handler
}

type Options struct {
	Health          map[string]Check
	Permissions     middleware.PermissionChecker
	Modules         middleware.ModuleChecker
	AdminPermission string
	AllowedOrigins  string
	RateLimit       internal.RateLimitConfig
	OpenAPI         *middleware.OpenAPIValidator
	MetricsPath     string
	MetricsHandler  http.Handler
	Metrics         *observability.Metrics
	Logger          *slog.Logger
}

func RegisterAllRoutes(router *chi.Mux, h Handlers, opts Options) {
	healthHandler := NewHealthHandler(opts.Health)

	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(opts.Logger))
	router.Use(middleware.CORS(opts.AllowedOrigins))
	router.Use(middleware.LoggingMiddleware(opts.Logger, opts.Metrics))

	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(api.OpenAPISpec)
	})
	router.Handle("/swagger/*", swagger.Handler())
	if opts.MetricsHandler != nil && opts.MetricsPath != "" {
		router.Handle(opts.MetricsPath, opts.MetricsHandler)
	}

	admin := middleware.RequirePermissions(opts.Permissions, opts.AdminPermission)

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		r.Group(func(pr chi.Router) {
			pr.Use(h.Auth.AuthMiddleware)
			if opts.RateLimit.Enabled {
				pr.Use(middleware.RateLimit(opts.RateLimit.Requests, opts.RateLimit.Window))
			}
			if opts.OpenAPI != nil {
				pr.Use(opts.OpenAPI.Middleware)
			}

			pr.Get("/roles", h.Role.ListRoles)
			pr.Get("/modules", h.Module.GetModules)

			pr.Route("/me", func(mr chi.Router) {
				mr.Get("/", h.Auth.WhoAmI)
				mr.Get("/roles", h.Role.GetMyRoles)

				mr.Get("/permissions", h.Permission.GetMyPermissions)
				mr.Get("/permissions/check", h.Permission.CheckPermission)
				mr.Post("/permissions/validate", h.Permission.ValidatePermissions)

				mr.Get("/modules", h.Module.GetMyModules)
				mr.Get("/modules/{module}/access", h.Module.CheckModuleAccess)

				mr.Get("/preferences", h.Preference.GetPreferences)
				mr.Patch("/preferences", h.Preference.UpdatePreferences)
				mr.Get("/progress", h.Preference.GetProgress)
				mr.Post("/progress", h.Preference.RecordProgress)

				mr.Get("/route", h.Routing.GetBestRoute)
				mr.Post("/route", h.Routing.PerformRouting)
				mr.Get("/route/session", h.Routing.GetSession)
				mr.Post("/navigation", h.Routing.ReportNavigation)
			})

			pr.Route("/admin", func(ar chi.Router) {
				ar.Use(admin)

				ar.Post("/modules", h.Module.CreateModule)
				ar.Delete("/modules/{module}", h.Module.DeactivateModule)
				ar.Post("/modules/{module}/activate", h.Module.ActivateModule)
				ar.Post("/roles/{role}/modules", h.Module.AssignModuleToRole)
				ar.Post("/permissions/{permission}/refresh", h.Permission.RefreshPermission)

				ar.Route("/users/{userID}", func(ur chi.Router) {
					ur.Use(middleware.RequireModule(opts.Modules, access.ModuleUsers))

					ur.Get("/roles", h.Role.GetUserRoles)
					ur.Post("/roles", h.Role.AssignRole)
					ur.Delete("/roles/{role}", h.Role.RemoveRole)

					ur.Get("/permissions", h.Permission.GetUserPermissions)
					ur.Post("/permissions", h.Permission.GrantPermission)
					ur.Delete("/permissions/{permission}", h.Permission.RevokePermission)

					ur.Get("/modules", h.Module.GetUserModules)
					ur.Post("/modules", h.Module.AssignModuleToUser)
					ur.Delete("/modules/{module}", h.Module.RevokeModuleFromUser)
				})
			})
		})
	})
}
