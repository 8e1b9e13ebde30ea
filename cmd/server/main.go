package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/mathspractice/adaptive/internal/api"
	"github.com/mathspractice/adaptive/internal/events"
	"github.com/mathspractice/adaptive/internal/infrastructure/config"
	"github.com/mathspractice/adaptive/internal/observability"
	"github.com/mathspractice/adaptive/internal/service"
	"github.com/mathspractice/adaptive/internal/store"

	_ "github.com/mathspractice/adaptive/docs" // generated swagger docs
)

// @title           Adaptive Maths Practice API
// @version         1.0
// @description     Adaptive difficulty for maths practice sessions: confidence scoring, checkpoint interventions and level recommendations.

// @host      localhost:8080
// @BasePath  /

func main() {
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	engineCfg, err := config.LoadEngine(cfg.AdaptiveConfigFile, cfg.AdaptiveEnabled)
	if err != nil {
		logger.Error("invalid adaptive configuration", "error", err)
		os.Exit(1)
	}

	// ── Dependencies ────────────────────────────────────────────────
	db, err := store.NewSQLite(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	var publisher events.Publisher = events.NewLogPublisher(logger)
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		logger.Info("publishing events to kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}
	defer publisher.Close()

	metrics := observability.NewMetrics(nil)
	sessions, err := service.NewSessionService(db, engineCfg, publisher, metrics, logger)
	if err != nil {
		logger.Error("failed to create session service", "error", err)
		os.Exit(1)
	}

	cleanupCtx, cancelCleanup := context.WithTimeout(context.Background(), 30*time.Second)
	if _, err := sessions.Cleanup(cleanupCtx, cfg.SessionRetention); err != nil {
		logger.Warn("session cleanup failed", "error", err)
	}
	cancelCleanup()

	handler := api.NewHandler(db, sessions, logger)

	// ── Routes ──────────────────────────────────────────────────────
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "ok"}`))
	})
	mux.Handle("GET /metrics", metrics.Handler())

	api.RegisterRoutes(mux, handler, metrics)

	// Swagger UI served at /swagger/
	mux.Handle("GET /swagger/", httpSwagger.WrapHandler)

	// ── Middleware chain: Logging → CORS → mux ──────────────────────
	logged := api.Logging(logger)(api.CORS(mux))

	// ── Server ──────────────────────────────────────────────────────
	server := &http.Server{
		Addr:              cfg.ServerAddress,
		Handler:           logged,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		logger.Info("shutting down server", "active_sessions", sessions.ActiveSessions())
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("server forced to shutdown", "error", err)
		}
	}()

	logger.Info("starting server",
		"address", cfg.ServerAddress,
		"database", cfg.DatabasePath,
		"adaptive_enabled", engineCfg.Enabled,
	)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed to start", "error", err)
		os.Exit(1)
	}
}
