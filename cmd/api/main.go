package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/klinikos/clinic-ai-platform/cmd/mainconfig"
	"github.com/klinikos/clinic-ai-platform/internal/actions"
	"github.com/klinikos/clinic-ai-platform/internal/api/router"
	"github.com/klinikos/clinic-ai-platform/internal/channels/whatsapp"
	"github.com/klinikos/clinic-ai-platform/internal/clinic"
	appconfig "github.com/klinikos/clinic-ai-platform/internal/config"
	"github.com/klinikos/clinic-ai-platform/internal/conversation"
	"github.com/klinikos/clinic-ai-platform/internal/messagelog"
	"github.com/klinikos/clinic-ai-platform/internal/observability/metrics"
	"github.com/klinikos/clinic-ai-platform/internal/patients"
	"github.com/klinikos/clinic-ai-platform/internal/session"
	"github.com/klinikos/clinic-ai-platform/internal/simulator"
	"github.com/klinikos/clinic-ai-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.NewWithFormat(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting clinic-ai-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisOpts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() { _ = redisClient.Close() }()

	msgLog := messagelog.NewStore(pool)
	sessionStore := session.NewStore(redisClient, msgLog)
	sessionLock := session.NewLock(redisClient, cfg.SessionLockTTL)
	clinicStore := clinic.NewStore(pool)
	patientRepo := patients.NewRepository(pool)

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	primary := conversation.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg))

	var secondary conversation.LLMClient
	if cfg.GeminiAPIKey != "" {
		gemini, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			logger.Error("failed to create gemini client", "error", err)
			os.Exit(1)
		}
		secondary = gemini
	}
	llm := conversation.NewFallbackLLMClient(primary, secondary, logger.Component("llm"))

	registry := actions.NewRegistry(logger.Component("actions"),
		actions.NewCreateAppointmentHandler(pool),
		actions.NewCreatePatientHandler(pool),
	)

	orchestrator := conversation.NewOrchestrator(conversation.OrchestratorConfig{
		Sessions:     sessionStore,
		Locks:        sessionLock,
		Patients:     patientRepo,
		Clinics:      clinicStore,
		LLM:          llm,
		Executor:     registry,
		Logger:       logger.Component("orchestrator"),
		ModelID:      cfg.BedrockModelID,
		ModelTimeout: cfg.ModelTimeout,
		MaxTokens:    int32(cfg.ModelMaxTokens),
	})

	gateway, err := whatsapp.NewClient(whatsapp.ClientConfig{
		BaseURL:    cfg.GatewayBaseURL,
		APIKey:     cfg.GatewayAPIKey,
		HTTPClient: &http.Client{Timeout: cfg.OutboundTimeout},
		Logger:     logger.Component("whatsapp"),
	})
	if err != nil {
		logger.Error("failed to create gateway client", "error", err)
		os.Exit(1)
	}

	convMetrics := metrics.NewConversationMetrics(nil)

	webhookHandler := whatsapp.NewWebhookHandler(
		clinicStore,
		orchestrator,
		msgLog,
		gateway,
		convMetrics,
		logger.Component("webhook"),
	)
	simulatorHandler := simulator.NewHandler(
		orchestrator,
		sessionStore,
		convMetrics,
		logger.Component("simulator"),
	)

	r := router.New(&router.Config{
		Logger:             logger,
		WebhookHandler:     webhookHandler,
		SimulatorHandler:   simulatorHandler,
		MetricsHandler:     promhttp.Handler(),
		TenantJWTSecret:    cfg.TenantJWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
