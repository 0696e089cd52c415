package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/alannreyes/uwia-sub001/internal/config"
	dbRedis "github.com/alannreyes/uwia-sub001/internal/db/redis"
	"github.com/alannreyes/uwia-sub001/internal/domain"
	logpkg "github.com/alannreyes/uwia-sub001/internal/logger"
	"github.com/alannreyes/uwia-sub001/internal/metrics"
	"github.com/alannreyes/uwia-sub001/internal/repository/embcache"
	sessionrepo "github.com/alannreyes/uwia-sub001/internal/repository/session"
	anthropicModel "github.com/alannreyes/uwia-sub001/internal/transport/anthropic"
	geminiModel "github.com/alannreyes/uwia-sub001/internal/transport/gemini"
	"github.com/alannreyes/uwia-sub001/internal/transport/httpapi"
	openaiTransport "github.com/alannreyes/uwia-sub001/internal/transport/openai"
	"github.com/alannreyes/uwia-sub001/internal/usecase/combine"
	"github.com/alannreyes/uwia-sub001/internal/usecase/extraction"
	healthuc "github.com/alannreyes/uwia-sub001/internal/usecase/health"
	judgeuc "github.com/alannreyes/uwia-sub001/internal/usecase/judge"
	"github.com/alannreyes/uwia-sub001/internal/usecase/retrieval"
	"github.com/alannreyes/uwia-sub001/internal/usecase/strategy"
	"github.com/alannreyes/uwia-sub001/internal/usecase/targeting"
	"github.com/alannreyes/uwia-sub001/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting uwia extraction API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create session store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Session store not ready", zap.Error(err))
	}
	logger.Info("Connected to session store")

	// Register extraction metrics explicitly (no init())
	metrics.RegisterExtractionMetrics()

	// Model roster — composition root
	primary, closePrimary, err := buildModel(ctx, cfg.Models.Primary, logger)
	if err != nil {
		logger.Fatal("Failed to create primary model", zap.Error(err))
	}
	defer closePrimary()

	secondary, closeSecondary, err := buildModel(ctx, cfg.Models.Secondary, logger)
	if err != nil {
		logger.Fatal("Failed to create secondary model", zap.Error(err))
	}
	defer closeSecondary()

	judgeModel, closeJudge, err := buildModel(ctx, cfg.Models.Judge, logger)
	if err != nil {
		logger.Fatal("Failed to create judge model", zap.Error(err))
	}
	defer closeJudge()

	logger.Info("Models created",
		zap.String("primary", primary.ID()),
		zap.String("secondary", secondary.ID()),
		zap.String("judge", judgeModel.ID()),
	)

	// Retrieval path is optional: no embedding model configured means
	// oversized documents degrade to page-split.
	var (
		retriever    extraction.Retriever
		sessions     httpapi.SessionStore
		embedChecker healthuc.EmbeddingChecker
	)
	if cfg.Embedding.Model != "" {
		base := openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
			APIKey:     cfg.Embedding.APIKey,
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
			Logger:     logger,
		})
		embedder := embcache.New(base, store, metrics.EmbeddingCacheTotal, logger)
		embedChecker = base

		sessionTTL := time.Duration(cfg.Extraction.SessionTTLHours) * time.Hour
		sessionRepo := sessionrepo.New(store, sessionTTL).
			WithActiveGauge(metrics.SessionsActive)

		retrievalSvc := retrieval.New(
			sessionRepo, embedder, primary,
			cfg.Extraction.RetrievalTopK, cfg.Extraction.MaxContextTokens,
			logger,
		)
		retriever = retrievalSvc
		sessions = retrievalSvc

		logger.Info("Retrieval path enabled",
			zap.String("embedding_model", cfg.Embedding.Model),
			zap.Int("top_k", cfg.Extraction.RetrievalTopK),
			zap.Duration("session_ttl", sessionTTL),
		)
	} else {
		logger.Warn("Retrieval path disabled: no embedding model configured")
	}

	// Use case services
	selector := strategy.New(cfg.Extraction.MinTextPerMB)
	targeter := targeting.New(primary, logger)
	judge := judgeuc.New(judgeModel, logger)

	extractor := extraction.New(primary, secondary, judge, selector, targeter, retriever, extraction.Params{
		BatchSize:          cfg.Extraction.BatchSize,
		BatchDelay:         time.Duration(cfg.Extraction.BatchDelayMS) * time.Millisecond,
		AgreementThreshold: cfg.Extraction.AgreementThreshold,
		NotFoundThreshold:  cfg.Extraction.NotFoundThreshold,
		EarlyExitThreshold: cfg.Extraction.EarlyExitThreshold,
	}, logger).WithCombiner(combine.New(
		combine.WithMargins(cfg.Extraction.PlaceholderMargin, cfg.Extraction.StableMargin),
	))

	healthSvc := healthuc.New(store, embedChecker)

	server := httpapi.NewServer(extractor, sessions, healthSvc, logger).
		WithAPIKeys(cfg.Auth.APIKeys).
		WithMaxBodyBytes(int64(cfg.HTTP.MaxBodyMB) << 20)

	var handler http.Handler = server.Router()
	handler = wideEventMiddleware(logger)(handler)
	handler = chiMiddleware.RequestID(handler)
	handler = jsonRecoverer(logger)(handler)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildModel creates one extraction model backend by provider. The returned
// closer releases provider resources; only gemini holds any.
func buildModel(ctx context.Context, mc config.ModelConfig, logger *zap.Logger) (domain.Model, func(), error) {
	switch mc.Provider {
	case "openai":
		m := openaiTransport.NewModel(&openaiTransport.ModelConfig{
			APIKey:  mc.APIKey,
			BaseURL: mc.BaseURL,
			Model:   mc.Model,
			Logger:  logger,
		})
		return m, func() {}, nil
	case "anthropic":
		m := anthropicModel.New(&anthropicModel.Config{
			APIKey:  mc.APIKey,
			BaseURL: mc.BaseURL,
			Model:   mc.Model,
			Logger:  logger,
		})
		return m, func() {}, nil
	case "gemini":
		m, err := geminiModel.New(ctx, &geminiModel.Config{
			APIKey: mc.APIKey,
			Model:  mc.Model,
			Logger: logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return m, func() { _ = m.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown model provider %q", mc.Provider)
	}
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
