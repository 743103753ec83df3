package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/avdeev-dm/triage-bot/internal/api/router"
	"github.com/avdeev-dm/triage-bot/internal/booking"
	appconfig "github.com/avdeev-dm/triage-bot/internal/config"
	"github.com/avdeev-dm/triage-bot/internal/dialogue"
	"github.com/avdeev-dm/triage-bot/internal/extract"
	"github.com/avdeev-dm/triage-bot/internal/llm"
	"github.com/avdeev-dm/triage-bot/internal/observability/metrics"
	"github.com/avdeev-dm/triage-bot/internal/session"
	"github.com/avdeev-dm/triage-bot/internal/webchat"
	"github.com/avdeev-dm/triage-bot/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting triage-bot API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	store := buildSessionStore(cfg, logger)
	archive := buildArchive(cfg, logger)
	gateway := buildGateway(ctx, cfg, logger)
	connector := buildConnector(ctx, cfg, logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	dialogueMetrics := metrics.NewDialogueMetrics(registry)

	extractor := extract.New(cfg.SpecialistVocab, cfg.AffirmativeTokens)

	engine := dialogue.NewEngine(store, extractor, gateway, connector, archive, dialogueMetrics, dialogue.Config{
		SystemPrompt:      cfg.SystemPrompt,
		DefaultSpecialist: cfg.DefaultSpecialist,
		ClarificationCap:  cfg.ClarificationCap,
		ConfirmOffset:     cfg.ConfirmOffset,
		EventDuration:     cfg.EventDuration,
		Timezone:          cfg.Timezone,
		CalendarID:        cfg.CalendarID,
	}, logger)

	r := router.New(&router.Config{
		Logger:             logger,
		DialogueHandler:    dialogue.NewHandler(engine, logger),
		WebchatHandler:     webchat.NewHandler(engine, store, logger),
		MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitRPS:       cfg.RateLimitRPS,
		RateLimitBurst:     cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
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

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// buildSessionStore prefers Redis; without REDIS_ADDR sessions live in
// process memory and do not survive a restart.
func buildSessionStore(cfg *appconfig.Config, logger *logging.Logger) session.Store {
	if cfg.RedisAddr == "" {
		logger.Warn("REDIS_ADDR not set, using in-memory session store")
		return session.NewMemoryStore()
	}

	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Error("redis ping failed", "addr", cfg.RedisAddr, "error", err)
		os.Exit(1)
	}

	logger.Info("using redis session store", "addr", cfg.RedisAddr, "ttl", cfg.SessionTTL)
	return session.NewRedisStore(client, cfg.SessionTTL, nil)
}

// buildArchive opens the optional Postgres transcript archive. Without
// DATABASE_URL archiving is disabled and sessions live only in the store.
func buildArchive(cfg *appconfig.Config, logger *logging.Logger) *session.Archive {
	if cfg.DatabaseURL == "" {
		logger.Info("DATABASE_URL not set, transcript archive disabled")
		return nil
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		logger.Error("database ping failed", "error", err)
		os.Exit(1)
	}

	logger.Info("transcript archive enabled")
	return session.NewArchive(db)
}

// buildGateway wires DeepSeek as the primary model with an optional Gemini
// fallback behind the never-fail gateway.
func buildGateway(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) *llm.Gateway {
	primary, err := llm.NewDeepSeekClient(llm.DeepSeekConfig{
		BaseURL: cfg.DeepSeekAPIURL,
		APIKey:  cfg.DeepSeekAPIKey,
		Model:   cfg.DeepSeekModel,
		Timeout: cfg.LLMTimeout,
	})
	if err != nil {
		logger.Error("failed to build DeepSeek client", "error", err)
		os.Exit(1)
	}

	var client llm.Client = primary
	if cfg.GeminiAPIKey != "" {
		secondary, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			logger.Error("failed to build Gemini client", "error", err)
			os.Exit(1)
		}
		client = llm.NewFallbackClient(primary, secondary, logger)
		logger.Info("gemini fallback enabled", "model", cfg.GeminiModelID)
	}

	return llm.NewGateway(client, llm.GatewayConfig{
		Timeout:     cfg.LLMTimeout,
		Temperature: cfg.LLMTemperature,
		MaxTokens:   cfg.LLMMaxTokens,
	}, logger)
}

// buildConnector picks Google Calendar when credentials are configured; the
// fake connector requires an explicit opt-in so a misconfigured deployment
// fails loudly instead of silently booking nothing.
func buildConnector(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) booking.Connector {
	if cfg.GoogleCredentialsFile != "" {
		connector, err := booking.NewGoogleCalendarConnector(ctx, booking.GoogleCalendarConfig{
			CredentialsFile: cfg.GoogleCredentialsFile,
			CalendarID:      cfg.CalendarID,
			Timeout:         cfg.BookingTimeout,
		})
		if err != nil {
			logger.Error("failed to build calendar connector", "error", err)
			os.Exit(1)
		}
		logger.Info("google calendar connector enabled", "calendar_id", cfg.CalendarID)
		return connector
	}

	if cfg.AllowFakeBookings {
		logger.Warn("using fake booking connector")
		return booking.NewFakeConnector(logger)
	}

	logger.Error("no booking connector configured: set GOOGLE_CREDENTIALS_FILE or ALLOW_FAKE_BOOKINGS=true")
	os.Exit(1)
	return nil
}
