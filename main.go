// Command relay is the main entrypoint for the chat relay API and pollers.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Recovers monitors that were active before the last shutdown.
//   - Starts the OAuth token refresher.
//   - Exposes the HTTP API with auth, stream, settings, health, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/atlist/relay/config"
	"github.com/atlist/relay/db"
	"github.com/atlist/relay/discord"
	"github.com/atlist/relay/googleauth"
	"github.com/atlist/relay/monitor"
	"github.com/atlist/relay/oauth"
	"github.com/atlist/relay/server"
	"github.com/atlist/relay/telemetry"
	"github.com/atlist/relay/youtubeapi"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateGoogleReady(); err != nil {
		slog.Warn("google oauth not fully configured, sign-in disabled", slog.Any("err", err))
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdownTracing, err := telemetry.InitTracing("relay", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	// DB
	database, err := db.Connect(cfg.DBDsn)
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	// Run database migrations: versioned migrations first, embedded SQL as a
	// fallback for deployments that predate the schema_migrations table.
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.RunMigrations(database); err != nil {
		slog.Warn("versioned migrations failed, attempting fallback to embedded SQL",
			slog.Any("err", err),
			slog.String("component", "db_migrate"))
		if err := db.Migrate(context.Background(), database); err != nil {
			slog.Error("failed to migrate db (both versioned and embedded SQL failed)", slog.Any("err", err))
			os.Exit(1)
		}
		slog.Info("embedded SQL migration completed", slog.String("component", "db_migrate"))
	} else {
		slog.Info("versioned migrations completed", slog.String("component", "db_migrate"))
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	auth := googleauth.New(cfg, &db.UserStoreAdapter{DB: database})
	manager := monitor.New(
		&monitor.SQLStore{DB: database},
		auth,
		&youtubeapi.Client{},
		&discord.Sender{Username: cfg.RelayUsername},
		monitor.DefaultIntervals(),
	)
	defer manager.Shutdown()

	// Centralized OAuth token refresher keeps stored Google tokens fresh so
	// long-running monitors do not stall on expiry.
	oauth.StartRefresher(ctx, database, auth, 5*time.Minute, 15*time.Minute)

	// HTTP server
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	h := server.NewHandlers(ctx, database, cfg, auth, manager)
	go func() {
		if err := server.Start(ctx, h, addr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Resume monitors that were active before the last restart. Runs off the
	// serving path: a slow token refresh for one user must not keep /healthz
	// from answering.
	go func() {
		if err := manager.RecoverActiveSessions(ctx); err != nil {
			slog.Error("session recovery failed", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
}
