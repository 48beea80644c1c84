// caster-validator runs one validator node: it authenticates platform
// traffic, executes evaluation batches in sandboxes, proxies tool calls
// under session budgets, and reports results back to the platform.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ChainSafe/go-schnorrkel"

	"github.com/caster-hub/caster/pkg/api"
	"github.com/caster-hub/caster/pkg/artifacts"
	"github.com/caster-hub/caster/pkg/auth"
	"github.com/caster-hub/caster/pkg/batch"
	"github.com/caster-hub/caster/pkg/budget"
	"github.com/caster-hub/caster/pkg/config"
	"github.com/caster-hub/caster/pkg/observability"
	"github.com/caster-hub/caster/pkg/platform"
	"github.com/caster-hub/caster/pkg/receipts"
	"github.com/caster-hub/caster/pkg/registry"
	"github.com/caster-hub/caster/pkg/sandbox"
	"github.com/caster-hub/caster/pkg/scoring"
	"github.com/caster-hub/caster/pkg/session"
	"github.com/caster-hub/caster/pkg/tools"
)

func main() {
	if err := run(); err != nil {
		slog.Error("validator exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.LoadValidator()
	logger := observability.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telemetry, err := observability.New(ctx, observability.Config{
		ServiceName:  "caster-validator",
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

	secret, err := secretFromSeed(cfg.SeedHex)
	if err != nil {
		return err
	}
	client := platform.NewClient(cfg.PlatformURL, cfg.Hotkey, secret)

	cache, err := artifacts.NewFileStore(cfg.ArtifactCacheDir)
	if err != nil {
		return err
	}
	resolver := artifacts.NewResolver(cache, client, logger)

	sessions := session.NewManager(session.NewTokenRegistry())
	ledger := budget.NewLedger()
	receiptLog := receipts.NewLog()
	usage := tools.NewUsageTracker()

	catalog, err := tools.NewCatalog()
	if err != nil {
		return err
	}
	executor := tools.NewExecutor(
		catalog,
		toolAdapters(cfg),
		sessions, ledger, receiptLog, usage,
		tools.DefaultPricing(),
		tools.ExecutorOptions{},
		logger,
	)

	scorer := scoring.NewScorer(receiptLog, nil, nil)
	runner := sandbox.NewWasiRunner(sandbox.DefaultWasiConfig())

	uploader := &resultUploader{client: client, logger: logger}
	coordinator := batch.NewCoordinator(
		resolver, sessions, ledger, runner, scorer, executor, usage, receiptLog,
		uploader,
		logger,
		batch.Options{
			MaxWorkers:  cfg.MaxWorkers,
			UnitTimeout: cfg.UnitTimeout,
			SessionTTL:  cfg.SessionTTL,
		},
	)
	uploader.coordinator = coordinator
	coordinator.Start(ctx)

	if err := client.Register(ctx, "http://"+hostnameOr("validator")+":"+cfg.Port); err != nil {
		logger.Warn("platform registration failed, continuing", "error", err)
	}

	// Batch RPCs are reachable only by registered identities holding the
	// validator role; the platform's signing hotkey must be registered as one.
	reg := registryFromEnv()
	authMW := auth.NewMiddleware(auth.NewVerifier(), reg, true)

	mux := http.NewServeMux()
	mux.Handle("POST /rpc/evaluations/batch", authMW(handleAcceptBatch(coordinator)))
	mux.Handle("GET /rpc/evaluations/{batch_id}/progress", authMW(handleProgress(coordinator)))
	mux.HandleFunc("POST /rpc/tools/execute", handleToolExecute(executor))
	mux.HandleFunc("GET /rpc/status", handleStatus(coordinator))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		api.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("validator listening", "port", cfg.Port, "platform_url", cfg.PlatformURL)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	coordinator.Wait()
	return nil
}

func hostnameOr(fallback string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return fallback
	}
	return host
}

func secretFromSeed(seedHex string) (*schnorrkel.SecretKey, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(seedHex, "0x"))
	if err != nil || len(raw) != 32 {
		return nil, errors.New("VALIDATOR_SEED_HEX must be 32 hex-encoded bytes")
	}
	var seed [32]byte
	copy(seed[:], raw)
	key, err := schnorrkel.NewMiniSecretKeyFromRaw(seed)
	if err != nil {
		return nil, fmt.Errorf("derive secret key: %w", err)
	}
	return key.ExpandEd25519(), nil
}

func toolAdapters(cfg *config.Validator) map[string]tools.Adapter {
	adapters := map[string]tools.Adapter{
		tools.ToolTest: tools.TestAdapter{},
		tools.ToolLLMChat: &tools.LLMAdapter{
			BaseURL:      cfg.LLMBaseURL,
			APIKey:       cfg.LLMAPIKey,
			DefaultModel: cfg.LLMModel,
			Provider:     "openai",
		},
	}
	if cfg.SearchBaseURL != "" {
		adapters[tools.ToolSearchWeb] = &tools.SearchAdapter{
			BaseURL: cfg.SearchBaseURL, APIKey: cfg.SearchAPIKey, Source: "web",
		}
		adapters[tools.ToolSearchX] = &tools.SearchAdapter{
			BaseURL: cfg.SearchBaseURL, APIKey: cfg.SearchAPIKey, Source: "x",
		}
	}
	return adapters
}

// registryFromEnv parses CASTER_REGISTRY ("ss58=role,ss58=role") into a
// cached static registry. A production deployment swaps in a chain-backed
// client here.
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
