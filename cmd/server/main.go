// Command server runs the chat backend: the HTTP API, the durable job queue,
// and the worker pool that produces AI replies asynchronously.
//
// Startup order: env → config → logging → tracing → database → cache →
// queue → services → workers → HTTP. Shutdown reverses it: the HTTP server
// stops accepting requests, the pool stops leasing and drains in-flight jobs
// within the grace period, then the cache and database close.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/language"

	"github.com/deepanshu1531/gemini-backend-clone/internal/ai"
	"github.com/deepanshu1531/gemini-backend-clone/internal/billing"
	"github.com/deepanshu1531/gemini-backend-clone/internal/cache"
	"github.com/deepanshu1531/gemini-backend-clone/internal/config"
	httpapi "github.com/deepanshu1531/gemini-backend-clone/internal/http"
	"github.com/deepanshu1531/gemini-backend-clone/internal/observability"
	"github.com/deepanshu1531/gemini-backend-clone/internal/queue"
	"github.com/deepanshu1531/gemini-backend-clone/internal/repo"
	"github.com/deepanshu1531/gemini-backend-clone/internal/services"
	"github.com/deepanshu1531/gemini-backend-clone/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Best effort; a missing .env is normal outside development.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	logger := log.With().Str("service", cfg.OTEL.ServiceName).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		logger.Fatal().Err(err).Msg("tracing setup failed")
	}
	defer func() {
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shCtx); err != nil {
			logger.Warn().Err(err).Msg("tracer shutdown failed")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.DBPath).Msg("database open failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		logger.Fatal().Err(err).Msg("migration failed")
	}

	var store cache.Store
	switch cfg.Cache.Backend {
	case "redis":
		store, err = cache.NewRedis(ctx, cfg.Cache.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Str("url", cfg.Cache.RedisURL).Msg("redis connect failed")
		}
	default:
		store = cache.NewMemory()
	}

	q := queue.New(db, queue.Options{
		MaxAttempts: cfg.Queue.MaxAttempts,
		BackoffBase: cfg.Queue.BackoffBase,
		DeadSetCap:  cfg.Queue.DeadSetCap,
	})

	chatSvc := &services.ChatroomService{
		DB:             db,
		Repo:           services.NewGormChatroomRepo(),
		Cache:          store,
		CacheTTL:       cfg.Cache.TTL,
		Queue:          q,
		Responder:      ai.NewClient(cfg.AI),
		Log:            logger,
		MaxPromptRunes: 4000,
		TitleLocale:    language.English,
		TitleMaxLen:    60,
	}
	subSvc := &services.SubscriptionService{
		DB:         db,
		Repo:       services.NewGormSubscriptionRepo(),
		DailyQuota: cfg.DailyQuota,
		Log:        logger,
	}
	ingestor := &billing.Ingestor{
		DB:        db,
		Secret:    cfg.Billing.WebhookSecret,
		Tolerance: cfg.Billing.Tolerance,
		EventTTL:  cfg.Billing.EventTTL,
		Log:       logger,
	}

	pool := queue.NewPool(q, chatSvc, queue.PoolOptions{
		Concurrency:      cfg.Queue.Concurrency,
		RatePerSecond:    cfg.Queue.RatePerSecond,
		PollInterval:     cfg.Queue.PollInterval,
		PurgeOnFailure:   cfg.Queue.PurgeOnFailure,
		BreakerThreshold: cfg.Queue.BreakerThreshold,
		BreakerCooldown:  cfg.Queue.BreakerCooldown,
	}, logger)
	pool.Start(ctx)

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		Rooms:   chatSvc,
		Quota:   subSvc,
		Webhook: ingestor,
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server failed")
		}
	}

	// Stop accepting requests, then drain workers, then release resources.
	shCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown incomplete")
	}

	stop() // cancels the pool's lease loop
	if err := pool.Stop(cfg.ShutdownGrace); err != nil {
		logger.Warn().Err(err).Msg("worker drain incomplete; jobs will be retried on restart")
	}

	if err := store.Close(); err != nil {
		logger.Warn().Err(err).Msg("cache close failed")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	logger.Info().Msg("server stopped")
}
