package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/wellbridge/careguard/internal/audit"
	"github.com/wellbridge/careguard/internal/auth"
	"github.com/wellbridge/careguard/internal/config"
	"github.com/wellbridge/careguard/internal/engine"
	"github.com/wellbridge/careguard/internal/gateway"
	"github.com/wellbridge/careguard/internal/guardrail"
	"github.com/wellbridge/careguard/internal/handlers"
	"github.com/wellbridge/careguard/internal/intent"
	"github.com/wellbridge/careguard/internal/llm"
	"github.com/wellbridge/careguard/internal/policy"
	"github.com/wellbridge/careguard/internal/ratelimit"
	"github.com/wellbridge/careguard/internal/router"
	"github.com/wellbridge/careguard/internal/store"
	"github.com/wellbridge/careguard/internal/telemetry"
)

var version = "dev"

const grpcServiceName = "careguard.v1.Assistant"

func main() {
	configDir := flag.String("config", "configs", "path to configuration directory")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	loader := config.NewLoader(*configDir, logger)
	if err := loader.Load(); err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	cfg := loader.Config()

	logger = newLogger(cfg.Telemetry)
	slog.SetDefault(logger)

	if err := loader.Watch(); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	}

	metrics := telemetry.NewMetrics()

	dbPool, err := store.NewPool(context.Background(), cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	if err := dbPool.Ping(context.Background()); err != nil {
		logger.Warn("database not reachable (requests will fail until it is)", "error", err)
	} else {
		logger.Info("database connected")
	}
	data := store.New(dbPool)

	var rdb *redis.Client
	if len(cfg.Redis.Addresses) > 0 && cfg.Redis.Addresses[0] != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addresses[0],
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis not reachable (caches off, local rate limits)", "error", err)
			rdb = nil
		} else {
			logger.Info("redis connected")
		}
	}

	// Generation client
	providerRegistry := llm.BuildFromConfig(loader.Providers())
	providerHealth := llm.NewHealthTracker(
		cfg.Generation.CircuitBreaker.FailureThreshold,
		cfg.Generation.CircuitBreaker.RecoveryProbeInterval,
	)
	generationCfg := func() config.GenerationConfig { return loader.Config().Generation }
	client := llm.NewClient(providerRegistry, providerHealth, loader.Models, generationCfg, metrics)

	var embedder llm.Embedder
	if cfg.Embedding.Enabled {
		embedder = llm.NewOpenAIEmbedder(cfg.Embedding)
		logger.Info("record embeddings enabled", "model", cfg.Embedding.Model)
	}

	// Guardrail and audit
	recorder := audit.NewRecorder(data, metrics, cfg.Guardrail.AuditWriteTimeout, cfg.Guardrail.MaxRawChars)
	scanner := guardrail.NewScanner(guardrail.DefaultRuleSet(), recorder)
	if err := scanner.Reload(cfg.Guardrail.RulesFile); err != nil {
		logger.Warn("guardrail rules file not loaded, using built-in rules", "path", cfg.Guardrail.RulesFile, "error", err)
	}

	gate := policy.NewGate(func() config.PolicyConfig { return loader.Config().Policy })
	if gate.Enabled() {
		if err := gate.Load(); err != nil {
			logger.Error("failed to load intent policy", "error", err)
			os.Exit(1)
		}
	}

	loader.OnReload(func() {
		c := loader.Config()
		providerRegistry.Replace(llm.BuildFromConfig(loader.Providers()))
		logger.Info("provider registry reloaded")

		if err := scanner.Reload(c.Guardrail.RulesFile); err != nil {
			logger.Error("guardrail rules rejected, keeping previous set", "error", err)
		}
		if gate.Enabled() {
			if err := gate.Load(); err != nil {
				logger.Error("intent policy rejected, keeping previous policy", "error", err)
			}
		}
	})

	// Turn pipeline
	classifier := intent.NewClassifier(client, func() config.ClassifierConfig { return loader.Config().Classifier }, metrics)
	intents := router.New(&handlers.Deps{
		LLM:        client,
		Retriever:  data,
		Embedder:   embedder,
		Retrieval:  func() config.RetrievalConfig { return loader.Config().Retrieval },
		Generation: generationCfg,
	})
	turns := engine.New(data, classifier, intents, gate, scanner,
		func() config.EngineConfig { return loader.Config().Engine }, metrics)

	// Identity
	var jwks *auth.JWKSCache
	if cfg.Auth.JWKSURL != "" {
		jwks = auth.NewJWKSCache(cfg.Auth.JWKSURL, cfg.Auth.JWKSRefresh, &http.Client{Timeout: 5 * time.Second})
	}
	resolver := auth.NewResolver(cfg.Auth, auth.NewCachedKeyStore(dbPool, rdb), jwks)
	tenants := auth.NewTenantDirectory(dbPool, rdb, cfg.Auth.TenantCacheTTL)
	if cfg.Auth.DevMode {
		logger.Warn("auth dev mode is on; unauthenticated requests resolve to the dev identity",
			"tenant_id", cfg.Auth.DevTenantID, "user_id", cfg.Auth.DevUserID)
	}

	limiter := ratelimit.Middleware(
		ratelimit.NewLimiter(rdb),
		ratelimit.NewDailyQuota(rdb),
		func() config.RateLimitConfig { return loader.Config().RateLimit },
		metrics,
	)
	handler := gateway.NewHandler(data, data, embedder, turns, audit.NewExporter(data))

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)

	// Unauthenticated routes
	r.Get("/careguard/v1/health", healthHandler(data, providerHealth))

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(resolver, tenants))
		handler.Mount(r, limiter)
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	metricsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Telemetry.MetricsPort),
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcSrv := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)
	healthSrv.SetServingStatus(grpcServiceName, healthpb.HealthCheckResponse_SERVING)

	errCh := make(chan error, 3)
	go func() {
		logger.Info("careguard starting", "addr", addr, "version", version)
		errCh <- srv.ListenAndServe()
	}()
	go func() {
		logger.Info("metrics listening", "addr", metricsSrv.Addr)
		errCh <- metricsSrv.ListenAndServe()
	}()
	if cfg.Server.HealthGRPCPort > 0 {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.HealthGRPCPort))
		if err != nil {
			logger.Error("failed to listen for grpc health", "error", err)
			os.Exit(1)
		}
		go func() {
			logger.Info("grpc health listening", "addr", lis.Addr().String())
			errCh <- grpcSrv.Serve(lis)
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	healthSrv.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	_ = metricsSrv.Shutdown(ctx)
	grpcSrv.GracefulStop()
	logger.Info("careguard stopped")
}

func newLogger(cfg config.TelemetryConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

type pinger interface {
	Ping(ctx context.Context) error
}

func healthHandler(db pinger, providers *llm.HealthTracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status, code := "healthy", http.StatusOK
		if err := db.Ping(ctx); err != nil {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    status,
			"version":   version,
			"providers": providers.Snapshot(),
		})
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = generateRequestID()
		}
		w.Header().Set("X-Request-ID", reqID)
		ctx := context.WithValue(r.Context(), requestIDKey, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type contextKey string

const requestIDKey contextKey = "request_id"

func generateRequestID() string {
	now := time.Now()
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("req_%d_%s", now.UnixMilli(), hex.EncodeToString(b))
}
