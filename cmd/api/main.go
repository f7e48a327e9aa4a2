// AngelaMos | 2026
// main.go

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/carterperez-dev/acey-control-center/internal/admin"
	"github.com/carterperez-dev/acey-control-center/internal/auth"
	"github.com/carterperez-dev/acey-control-center/internal/collaborator"
	"github.com/carterperez-dev/acey-control-center/internal/config"
	"github.com/carterperez-dev/acey-control-center/internal/control"
	"github.com/carterperez-dev/acey-control-center/internal/core"
	"github.com/carterperez-dev/acey-control-center/internal/entitlement"
	"github.com/carterperez-dev/acey-control-center/internal/health"
	"github.com/carterperez-dev/acey-control-center/internal/lifecycle"
	"github.com/carterperez-dev/acey-control-center/internal/middleware"
	"github.com/carterperez-dev/acey-control-center/internal/permission"
	"github.com/carterperez-dev/acey-control-center/internal/platform"
	"github.com/carterperez-dev/acey-control-center/internal/server"
	"github.com/carterperez-dev/acey-control-center/internal/skill"
)

const (
	drainDelay = 5 * time.Second
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	generateKeys := flag.Bool("generate-keys", false, "write a new ES256 key pair to the configured paths and exit")
	issueToken := flag.String("issue-token", "", "print a development access token for user:role:tier and exit")
	flag.Parse()

	var err error
	switch {
	case *generateKeys:
		err = writeKeys(*configPath)
	case *issueToken != "":
		err = printToken(*configPath, *issueToken)
	default:
		err = run(*configPath)
	}

	if err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

//nolint:funlen // bootstrap code is inherently verbose
func run(configPath string) error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"name", cfg.App.Name,
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	telemetry, err := core.NewTelemetry(ctx, cfg.Otel, cfg.App)
	if err != nil {
		logger.Warn("failed to initialize telemetry", "error", err)
		//nolint:errcheck // a disabled exporter cannot fail
		telemetry, _ = core.NewTelemetry(ctx, config.OtelConfig{ServiceName: cfg.Otel.ServiceName}, cfg.App)
	} else if cfg.Otel.Enabled {
		logger.Info("OpenTelemetry tracer initialized",
			"endpoint", cfg.Otel.Endpoint,
		)
	}
	tracer := telemetry.Tracer

	catalog, err := permission.LoadCatalog(cfg.Catalog.Path)
	if err != nil {
		return err
	}
	hierarchy, err := catalog.Hierarchy()
	if err != nil {
		return err
	}
	rules := entitlement.NewResolver(hierarchy)
	bundles := permission.NewResolver(catalog)
	logger.Info("permission catalog loaded",
		"path", cfg.Catalog.Path,
		"tiers", len(catalog.Tiers),
		"skills", len(catalog.Skills),
	)

	db, err := core.NewDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	logger.Info("database connected",
		"max_open_conns", cfg.Database.MaxOpenConns,
		"max_idle_conns", cfg.Database.MaxIdleConns,
	)

	if err := platform.Migrate(ctx, db.DB); err != nil {
		return err
	}

	redis, err := core.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	logger.Info("redis connected",
		"pool_size", cfg.Redis.PoolSize,
	)

	jwtManager, err := auth.NewJWTManager(cfg.JWT)
	if err != nil {
		return err
	}
	logger.Info("JWT manager initialized",
		"algorithm", "ES256",
		"key_id", jwtManager.GetKeyID(),
	)

	backend := platform.NewService(
		platform.NewRepository(db.DB),
		rules,
		bundles,
		platform.NewPreparationTracker(redis.Client, cfg.Lifecycle.PreparationTTL),
		platform.NewOrchestrator(redis.Client, cfg.Lifecycle.StreamMaxLen),
		platform.NewEventLog(redis.Client, cfg.Notifications.Capacity),
		logger.With("component", "platform"),
	)

	registry := lifecycle.NewRegistry(lifecycle.Config{
		Client:             collaborator.WithTimeout(backend, cfg.Lifecycle.CollaboratorTimeout),
		Machine:            lifecycle.NewMachine(rules),
		Bundles:            bundles,
		Locker:             platform.NewLocker(redis.Client, cfg.Lifecycle.LockTTL),
		Logger:             logger.With("component", "lifecycle"),
		Tracer:             tracer,
		UpgradeConcurrency: cfg.Lifecycle.UpgradeConcurrency,
	}, cfg.Lifecycle.SessionIdleTTL)
	go registry.Run(ctx, cfg.Lifecycle.SweepInterval)

	controlHandler := control.NewHandler(registry, hierarchy, bundles, logger)

	healthHandler := health.NewHandler(
		health.Dependency{Name: "database", Checker: db},
		health.Dependency{Name: "redis", Checker: redis},
	)

	adminHandler := admin.NewHandler(admin.HandlerConfig{
		DBStats:    db.Stats,
		RedisStats: redis.PoolStats,
		DBPing:     db.Ping,
		RedisPing:  redis.Ping,
		Sessions:   registry,
	})

	srv := server.New(server.Config{
		ServerConfig:  cfg.Server,
		HealthHandler: healthHandler,
		Logger:        logger,
	})

	router := srv.Router()

	router.Use(chimw.RealIP)
	router.Use(middleware.RequestID)
	router.Use(middleware.Tracing(tracer))
	router.Use(middleware.Logger(logger))
	router.Use(chimw.Recoverer)
	limiter := middleware.NewLimiter(redis.Client, logger)
	router.Use(limiter.PerIP(middleware.Allowance(
		cfg.RateLimit.Requests,
		cfg.RateLimit.Burst,
		cfg.RateLimit.Window,
	)))
	router.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	router.Use(middleware.CORS(cfg.CORS))

	healthHandler.RegisterRoutes(router)

	router.Get("/.well-known/jwks.json", jwtManager.GetJWKSHandler())

	authenticator := middleware.Authenticator(jwtManager)

	controlHandler.RegisterRoutes(router, authenticator,
		limiter.PerTier(middleware.NewTierLimits(hierarchy, middleware.Allowance(
			cfg.RateLimit.TierRequests,
			cfg.RateLimit.TierBurst,
			cfg.RateLimit.Window,
		))),
	)
	adminHandler.RegisterRoutes(router, authenticator, middleware.RequireOwner)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		cfg.Server.ShutdownTimeout+drainDelay+5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx, drainDelay); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		logger.Error("telemetry shutdown error", "error", err)
	}

	if err := redis.Close(); err != nil {
		logger.Error("redis close error", "error", err)
	}

	if err := db.Close(); err != nil {
		logger.Error("database close error", "error", err)
	}

	logger.Info("application stopped", "open_sessions", registry.Len())
	return nil
}

// writeKeys falls back to the default key paths when the config does not
// load, so keys can be generated before the rest of the config exists.
func writeKeys(configPath string) error {
	privatePath, publicPath := "keys/private.pem", "keys/public.pem"
	if cfg, err := config.Load(configPath); err == nil {
		privatePath, publicPath = cfg.JWT.PrivateKeyPath, cfg.JWT.PublicKeyPath
	}

	if err := auth.GenerateKeyPair(privatePath, publicPath); err != nil {
		return err
	}

	slog.Info("key pair written", "private", privatePath, "public", publicPath)
	return nil
}

func printToken(configPath, spec string) error {
	parts := strings.Split(spec, ":")
	if len(parts) != 3 || parts[0] == "" {
		return fmt.Errorf("issue-token: want user:role:tier, got %q", spec)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	jwtManager, err := auth.NewJWTManager(cfg.JWT)
	if err != nil {
		return err
	}

	token, err := jwtManager.CreateAccessToken(auth.AccessTokenClaims{
		UserID: parts[0],
		Role:   skill.Role(parts[1]),
		Tier:   parts[2],
	})
	if err != nil {
		return err
	}

	fmt.Println(token)
	return nil
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
