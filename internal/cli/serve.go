package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/aimd54/datestreak/internal/api/dashboard"
	gameapi "github.com/aimd54/datestreak/internal/api/game"
	"github.com/aimd54/datestreak/internal/api/middleware"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and background jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), rootOpts, migrate)
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply migrations before serving")
	return cmd
}

func runServe(ctx context.Context, opts *RootOptions, migrate bool) error {
	a, err := newApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()

	if migrate {
		if err := a.db.Migrate(); err != nil {
			return err
		}
	}
	if _, err := a.badges.SeedCatalog(a.cfg.Badges); err != nil {
		return fmt.Errorf("failed to seed badges: %w", err)
	}

	if err := a.scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer a.scheduler.Stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		a.log.Info().Int("port", a.cfg.Server.Port).Str("environment", a.cfg.Server.Environment).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	a.log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (a *app) router() *gin.Engine {
	if a.cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.Metrics())

	r.GET("/health", a.health)
	if a.cfg.Metrics.Prometheus.Enabled {
		r.GET(a.cfg.Metrics.Prometheus.Path, gin.WrapH(promhttp.Handler()))
	}

	// Game.Location was validated when the app was built.
	loc, _ := a.cfg.Game.Location()

	api := r.Group("/api/v1")
	api.Use(
		middleware.Session(loc, nil),
		middleware.RateLimiter(a.cfg.Server.RateLimitPerSecond, a.cfg.Server.RateLimitBurst),
	)
	gameapi.NewHandler(a.game, a.protection, a.log).RegisterRoutes(api)
	dashboard.NewHandler(a.badges, a.leaderboard, a.log).RegisterRoutes(api)

	return r
}

func (a *app) health(c *gin.Context) {
	status := http.StatusOK
	checks := gin.H{"database": "ok", "redis": "ok"}

	if err := a.db.Health(); err != nil {
		status = http.StatusServiceUnavailable
		checks["database"] = err.Error()
	}
	if err := a.store.Health(c.Request.Context()); err != nil {
		status = http.StatusServiceUnavailable
		checks["redis"] = err.Error()
	}

	c.JSON(status, gin.H{"status": http.StatusText(status), "checks": checks})
}
