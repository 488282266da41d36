package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/intake/intake/internal/config"
	"github.com/intake/intake/internal/domain/catalog"
	"github.com/intake/intake/internal/domain/submission"
	"github.com/intake/intake/internal/domain/tenant"
	"github.com/intake/intake/internal/domain/widget"
	"github.com/intake/intake/internal/platform/auth"
	"github.com/intake/intake/internal/platform/cache"
	"github.com/intake/intake/internal/platform/db"
	"github.com/intake/intake/internal/platform/middleware"
	"github.com/intake/intake/internal/platform/notification"
	"github.com/intake/intake/internal/platform/webhook"
	"github.com/intake/intake/migrations"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "intake-server",
		Short: "Consultation intake widget API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tenantCmd())
	rootCmd.AddCommand(webhookCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the widget API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// connect loads config and opens the database pool for one-shot commands.
func connect(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	return cfg, pool, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			_, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, migrations.FS).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			_, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrations.FS).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printMigrationStatus(cmd.OutOrStdout(), statuses)
			return nil
		},
	})

	return cmd
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create an active tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			slug, _ := cmd.Flags().GetString("slug")
			if name == "" || slug == "" {
				return fmt.Errorf("--name and --slug are required")
			}

			ctx := context.Background()
			_, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			t, err := tenant.NewService(tenant.NewRepo(pool)).Create(ctx, name, slug)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created tenant %s (%s)\n", t.Slug, t.ID)
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Practice name")
	createCmd.Flags().String("slug", "", "Public widget slug")
	cmd.AddCommand(createCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Activate, deactivate or suspend a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			slug, _ := cmd.Flags().GetString("slug")
			status, _ := cmd.Flags().GetString("status")

			ctx := context.Background()
			cfg, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			t, err := tenant.NewService(tenant.NewRepo(pool)).SetStatus(ctx, slug, tenant.Status(status))
			if err != nil {
				return err
			}
			// Shared cache only; process-local caches expire on their own.
			if cfg.RedisURL != "" {
				client, err := cache.NewRedisClient(ctx, cfg.RedisURL)
				if err != nil {
					return err
				}
				defer client.Close()
				if err := cache.NewRedisStore(client, "").Delete(ctx, widget.CacheKey(t.Slug)); err != nil {
					return fmt.Errorf("invalidate config cache: %w", err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Tenant %s is now %s\n", t.Slug, t.Status)
			return nil
		},
	}
	statusCmd.Flags().String("slug", "", "Tenant slug")
	statusCmd.Flags().String("status", "", "active, inactive or suspended")
	_ = statusCmd.MarkFlagRequired("slug")
	_ = statusCmd.MarkFlagRequired("status")
	cmd.AddCommand(statusCmd)

	return cmd
}

func webhookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Manage webhook deliveries",
	}

	redeliverCmd := &cobra.Command{
		Use:   "redeliver",
		Short: "Re-send the webhook of a failed submission",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantSlug, _ := cmd.Flags().GetString("tenant")
			rawID, _ := cmd.Flags().GetString("id")
			id, err := uuid.Parse(rawID)
			if err != nil {
				return fmt.Errorf("invalid --id: %w", err)
			}

			ctx := context.Background()
			cfg, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			logger := newLogger(cfg.Env)

			tenants := tenant.NewService(tenant.NewRepo(pool))
			t, err := tenants.Active(ctx, tenantSlug)
			if err != nil {
				return err
			}

			repo := submission.NewRepo(pool)
			dispatcher := webhook.NewDispatcher(
				webhook.NewDeliverer(webhook.WithTimeout(cfg.WebhookTimeout)),
				submission.NewDeliveryRecorder(repo),
				logger,
				webhook.DispatcherConfig{Workers: 1, QueueSize: 1},
			)
			dispatcher.Start(ctx)

			relay := submission.NewRelay(tenants, widget.NewRepo(pool), repo, dispatcher, nil, logger)
			if _, err := relay.Redeliver(ctx, t.ID, id); err != nil {
				_ = dispatcher.Stop(ctx)
				return err
			}
			if err := dispatcher.Stop(ctx); err != nil {
				return err
			}

			s, err := relay.Get(ctx, t.ID, id)
			if err != nil {
				return err
			}
			status := "none"
			if s.WebhookStatus != nil {
				status = string(*s.WebhookStatus)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Submission %s webhook status: %s\n", s.ID, status)
			return nil
		},
	}
	redeliverCmd.Flags().String("tenant", "", "Tenant slug")
	redeliverCmd.Flags().String("id", "", "Submission id")
	_ = redeliverCmd.MarkFlagRequired("tenant")
	_ = redeliverCmd.MarkFlagRequired("id")
	cmd.AddCommand(redeliverCmd)

	return cmd
}

func printMigrationStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	for _, s := range statuses {
		status, appliedAt := "pending", ""
		if s.Applied {
			status = "applied"
		}
		if s.AppliedAt != nil {
			appliedAt = s.AppliedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func rateLimitConfig(cfg *config.Config) middleware.RateLimitConfig {
	rl := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rl.RequestsPerSecond = cfg.RateLimitRPS
	}
	if cfg.RateLimitBurst > 0 {
		rl.BurstSize = cfg.RateLimitBurst
	}
	return rl
}

func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	jwtMW := auth.JWTMiddleware(auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		JWKSURL:    cfg.AuthJWKSURL,
		SigningKey: []byte(cfg.AuthSigningKey),
	})
	if cfg.IsDev() {
		return auth.DevAuthMiddleware(jwtMW)
	}
	return jwtMW
}

func emailSender(cfg *config.Config, logger zerolog.Logger) notification.EmailSender {
	if cfg.SMTPAddr == "" {
		return notification.LogSender{Logger: logger}
	}
	return notification.NewSMTPSender(notification.SMTPConfig{
		Addr:     cfg.SMTPAddr,
		From:     cfg.SMTPFrom,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
	})
}

func configStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (cache.Store, func(), error) {
	if cfg.RedisURL == "" {
		logger.Info().Msg("using in-process config cache")
		return cache.NewMemoryStore(0), func() {}, nil
	}
	client, err := cache.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	logger.Info().Msg("using redis config cache")
	return cache.NewRedisStore(client, ""), func() { client.Close() }, nil
}

type handlers struct {
	widget     *widget.Handler
	submission *submission.Handler
	dbHealth   echo.HandlerFunc
}

func preflight(c echo.Context) error { return c.NoContent(http.StatusNoContent) }

// newRouter assembles the HTTP surface: public widget endpoints open to any
// origin, health checks, and the authenticated staff API.
func newRouter(cfg *config.Config, logger zerolog.Logger, h handlers) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	if h.dbHealth != nil {
		e.GET("/health/db", h.dbHealth)
	}

	widgetGroup := e.Group("/widget",
		middleware.WidgetCORS(),
		middleware.WidgetSecurityHeaders(),
		middleware.BodyLimit("64K"),
		middleware.RateLimit(rateLimitConfig(cfg)),
	)
	widgetGroup.OPTIONS("/config", preflight)
	widgetGroup.OPTIONS("/submit", preflight)
	h.widget.RegisterRoutes(widgetGroup)
	h.submission.RegisterPublicRoutes(widgetGroup)

	api := e.Group("/api/v1",
		middleware.AdminCORS(cfg.CORSOrigins),
		middleware.SecurityHeaders(),
		authMiddleware(cfg),
		middleware.RateLimit(rateLimitConfig(cfg)),
	)
	h.submission.RegisterRoutes(api)

	return e
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := newLogger("")
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	store, closeStore, err := configStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer closeStore()

	// Domain wiring
	tenantRepo := tenant.NewRepo(pool)
	tenantSvc := tenant.NewService(tenantRepo)
	catalogRepo := catalog.NewRepo(pool)
	resolver := catalog.NewResolver(tenantRepo, catalogRepo)
	widgetRepo := widget.NewRepo(pool)
	assembler := widget.NewAssembler(tenantSvc, resolver, catalogRepo, widgetRepo)
	configs := widget.NewCachedAssembler(assembler, store, cfg.ConfigCacheTTL, logger)

	submissionRepo := submission.NewRepo(pool)
	dispatcher := webhook.NewDispatcher(
		webhook.NewDeliverer(webhook.WithTimeout(cfg.WebhookTimeout)),
		submission.NewDeliveryRecorder(submissionRepo),
		logger,
		webhook.DispatcherConfig{Workers: cfg.WebhookWorkers, QueueSize: cfg.WebhookQueueSize},
	)
	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	dispatcher.Start(workerCtx)

	notifier := notification.NewNotifier(emailSender(cfg, logger), logger)
	relay := submission.NewRelay(tenantSvc, widgetRepo, submissionRepo, dispatcher, notifier, logger)

	// Recovery waits for queue room, so it must not hold up serving.
	go func() {
		if n, err := relay.Recover(workerCtx, cfg.PendingRecoveryAge); err != nil {
			logger.Warn().Err(err).Int("count", n).Msg("pending webhook recovery stopped early")
		} else if n > 0 {
			logger.Info().Int("count", n).Msg("recovered pending webhooks")
		}
	}()

	e := newRouter(cfg, logger, handlers{
		widget:     widget.NewHandler(configs, logger),
		submission: submission.NewHandler(relay, logger),
		dbHealth:   db.HealthHandler(pool),
	})

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Bool("tls", cfg.TLSEnabled).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	// Undelivered jobs stay pending and are picked up by Recover on the next start.
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), cfg.WebhookTimeout+2*time.Second)
	defer cancelDrain()
	if err := dispatcher.Stop(drainCtx); err != nil {
		logger.Warn().Err(err).Msg("webhook queue not fully drained")
	}
	relay.Wait()
	logger.Info().Msg("server stopped")
	return nil
}
