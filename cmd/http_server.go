package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/care-access/api"
	"github.com/frahmantamala/care-access/internal/auth"
	"github.com/frahmantamala/care-access/internal/module"
	"github.com/frahmantamala/care-access/internal/permission"
	"github.com/frahmantamala/care-access/internal/preference"
	"github.com/frahmantamala/care-access/internal/role"
	"github.com/frahmantamala/care-access/internal/routing"
	"github.com/frahmantamala/care-access/internal/transport"
	"github.com/frahmantamala/care-access/internal/transport/middleware"
	"github.com/frahmantamala/care-access/internal/transport/rest"
	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := startHTTPServer(cmd.Context()); err != nil {
			fmt.Fprintf(os.Stderr, "server: %v\n", err)
			os.Exit(1)
		}
	},
}

func startHTTPServer(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	deps, err := buildServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()
	lg := deps.Logger

	router, err := setupRoutes(ctx, deps)
	if err != nil {
		return err
	}

	if cfg.Expiry.Enabled {
		if err := deps.Sweeper.Start(cfg.Expiry.Schedule); err != nil {
			return err
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			deps.Sweeper.Stop(stopCtx)
		}()
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		lg.Info("starting HTTP server", "address", addr)
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		lg.Info("received signal, shutting down", "signal", sig.String())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("server shutdown error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	if pending := deps.PrefKV.Pending(); pending > 0 {
		lg.Warn("preference writes still pending in memory at shutdown", "count", pending)
	}
	lg.Info("server stopped")
	return nil
}

func setupRoutes(ctx context.Context, deps *Services) (*chi.Mux, error) {
	cfg := deps.Config
	base := transport.NewBaseHandler(deps.Logger)
	tokens := auth.NewJWTTokenGenerator(cfg.Security.JWTSecret, cfg.Security.AccessTokenDuration)
	if cfg.Security.Issuer != "" {
		tokens.Issuer = cfg.Security.Issuer
	}

	validator, err := middleware.NewOpenAPIValidator(ctx, api.OpenAPISpec)
	if err != nil {
		return nil, err
	}

	checks := map[string]rest.Check{"postgres": deps.DB.PingContext}
	if deps.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return deps.Redis.Ping(ctx).Err() }
	}

	opts := rest.Options{
		Health:          checks,
		Permissions:     deps.Permissions,
		Modules:         deps.Modules,
		AdminPermission: cfg.Access.AdminPermission,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		RateLimit:       cfg.RateLimit,
		OpenAPI:         validator,
		Metrics:         deps.Metrics,
		Logger:          deps.Logger,
	}
	if cfg.Observability.Metrics.Enabled {
		opts.MetricsPath = cfg.Observability.Metrics.Path
		opts.MetricsHandler = promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})
	}

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, rest.Handlers{
		Auth:       auth.NewHandler(base, tokens),
		Role:       role.NewHandler(base, deps.Roles),
		Permission: permission.NewHandler(base, deps.Permissions),
		Module:     module.NewHandler(base, deps.Modules),
		Preference: preference.NewHandler(base, deps.Preferences),
		Routing:    routing.NewHandler(base, deps.Engine),
	}, opts)
	return router, nil
}
