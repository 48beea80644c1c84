// caster-platform runs the coordination service: it accepts candidate
// scripts, hands out evaluation batches, ingests validator result sets,
// maintains the champion roster, and serves chain weights behind the
// functioning-window gate.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/caster-hub/caster/pkg/api"
	"github.com/caster-hub/caster/pkg/artifacts"
	"github.com/caster-hub/caster/pkg/auth"
	"github.com/caster-hub/caster/pkg/config"
	"github.com/caster-hub/caster/pkg/gate"
	"github.com/caster-hub/caster/pkg/observability"
	"github.com/caster-hub/caster/pkg/platform"
	"github.com/caster-hub/caster/pkg/registry"
	"github.com/caster-hub/caster/pkg/roster"
)

func main() {
	if err := run(); err != nil {
		slog.Error("platform exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.LoadPlatform()
	logger := observability.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telemetry, err := observability.New(ctx, observability.Config{
		ServiceName:  "caster-platform",
		OTLPEndpoint: cfg.OTLPEndpoint,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetry.Shutdown(shutdownCtx)
	}()

	db, err := sql.Open("sqlite", "file:"+cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	gateStore, err := gate.NewSQLiteStore(db)
	if err != nil {
		return err
	}
	rosterStore, err := roster.NewStore(db)
	if err != nil {
		return err
	}
	rosterState, _, err := rosterStore.Load(ctx)
	if err != nil {
		return fmt.Errorf("load roster: %w", err)
	}

	store, err := artifactStore(ctx, cfg)
	if err != nil {
		return err
	}

	server := platform.NewServer(
		store,
		platform.NewScriptRegistry(),
		gate.New(gateStore),
		roster.NewEngine(rosterState),
		rosterStore,
		logger,
	)

	mux := http.NewServeMux()
	server.Routes(mux)

	authMW := auth.NewMiddleware(auth.NewVerifier(), registryFromEnv(), false)
	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		api.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	root.Handle("/", authMW(mux))

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("platform listening", "port", cfg.Port, "database", cfg.DatabasePath)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// artifactStore picks S3 when a bucket is configured, local disk otherwise.
func artifactStore(ctx context.Context, cfg *config.Platform) (artifacts.Store, error) {
	if cfg.S3Bucket != "" {
		return artifacts.NewS3Store(ctx, artifacts.S3Config{
			Bucket:   cfg.S3Bucket,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3Endpoint,
		})
	}
	return artifacts.NewFileStore(cfg.ArtifactDir)
}

func registryFromEnv() registry.Client {
	roles := make(map[string]registry.Role)
	for _, pair := range strings.Split(os.Getenv("CASTER_REGISTRY"), ",") {
		key, role, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || key == "" {
			continue
		}
		roles[key] = registry.Role(role)
	}
	return registry.NewCached(registry.NewStatic(roles), 30*time.Second)
}
