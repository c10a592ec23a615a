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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/paintconnect/foreman/internal/api"
	"github.com/paintconnect/foreman/internal/circuitbreaker"
	"github.com/paintconnect/foreman/internal/config"
	"github.com/paintconnect/foreman/internal/db"
	"github.com/paintconnect/foreman/internal/dispatch"
	"github.com/paintconnect/foreman/internal/events"
	"github.com/paintconnect/foreman/internal/mail"
	"github.com/paintconnect/foreman/internal/metrics"
	"github.com/paintconnect/foreman/internal/observ"
	"github.com/paintconnect/foreman/internal/push"
	"github.com/paintconnect/foreman/internal/redis"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup logger
	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting foreman dispatcher",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
		zap.String("timezone", cfg.Timezone),
		zap.String("push_driver", cfg.PushDriver),
	)

	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}

	// Initialize database connection
	ctx := context.Background()
	dbConfig := db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}

	database, err := db.New(ctx, dbConfig, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	logger.Info("database connection established",
		zap.String("host", cfg.DBHost),
		zap.Int("port", cfg.DBPort),
		zap.String("database", cfg.DBName),
	)

	// Initialize repository
	repo := db.NewRepository(database, logger)

	// Initialize Redis for the dedupe fast path and rate limiting
	redisConfig := redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	redisClient, err := redis.New(ctx, redisConfig, logger)
	if err != nil {
		logger.Warn("redis unavailable, dedupe falls back to the database claim",
			zap.Error(err),
			zap.String("host", cfg.RedisHost),
		)
		redisClient = nil
	}

	var guard dispatch.Guard
	var rateLimiter *redis.RateLimiter
	if redisClient != nil {
		guard = redis.NewDedupeGuard(redisClient, logger)
		rateLimiter = redis.NewRateLimiter(redisClient, logger, redis.RateLimitConfig{
			Limit:  60,              // 60 requests
			Window: 1 * time.Minute, // per minute per client IP
		})
		defer redisClient.Close()
	}

	// Select the push provider
	var sender push.Sender
	switch cfg.PushDriver {
	case "sns":
		snsSender, err := push.NewSNSSender(ctx, push.SNSConfig{Region: cfg.SNSRegion}, logger)
		if err != nil {
			logger.Warn("SNS sender unavailable, reminders will not be delivered", zap.Error(err))
			sender = push.NewDisabledSender("sns unavailable")
		} else {
			sender = snsSender
		}
	case "webpush":
		wpSender, err := push.NewWebPushSender(push.WebPushConfig{
			Subscriber: cfg.VAPIDSubscriber,
			PublicKey:  cfg.VAPIDPublicKey,
			PrivateKey: cfg.VAPIDPrivateKey,
		}, logger)
		if err != nil {
			logger.Warn("web push sender unavailable, reminders will not be delivered", zap.Error(err))
			sender = push.NewDisabledSender("webpush misconfigured")
		} else {
			sender = wpSender
		}
	default:
		sender = push.NewLogSender(logger)
	}

	var protected *circuitbreaker.ProtectedSender
	if cfg.PushBreakerOn {
		breaker := circuitbreaker.New(circuitbreaker.DefaultConfig(sender.Name()), logger)
		protected = circuitbreaker.NewProtectedSender(sender, breaker, logger)
		sender = protected
	}

	logger.Info("push sender initialized", zap.String("provider", sender.Name()))

	// Optional SQS audit events
	var auditor dispatch.Auditor
	if cfg.SQSAuditQueue != "" {
		producer, err := events.NewProducer(ctx, events.Config{
			Region:   cfg.AWSRegion,
			QueueURL: cfg.SQSAuditQueue,
		}, logger)
		if err != nil {
			logger.Warn("sqs producer unavailable, audit events disabled", zap.Error(err))
		} else {
			auditor = producer
			defer producer.Close()
		}
	}

	// Optional SES run summaries
	var mailer api.SummaryMailer
	if cfg.SummaryEmail != "" {
		summaryMailer, err := mail.NewSummaryMailer(ctx, mail.Config{
			Region:    cfg.AWSRegion,
			FromEmail: cfg.SESFromEmail,
			ToEmail:   cfg.SummaryEmail,
		}, logger)
		if err != nil {
			logger.Warn("summary mailer unavailable, run summaries disabled", zap.Error(err))
		} else {
			mailer = summaryMailer
		}
	}

	dispatcher := dispatch.New(repo, sender, dispatch.Config{
		WindowMinutes: cfg.WindowMinutes,
		Location:      location,
	}, logger)
	if guard != nil {
		dispatcher = dispatcher.WithGuard(guard)
	}
	if auditor != nil {
		dispatcher = dispatcher.WithAuditor(auditor)
	}

	// Internal cron. Most deployments trigger runs through the HTTP
	// endpoint instead and leave this off.
	if cfg.CronEnabled {
		cronCtx, cronCancel := context.WithCancel(context.Background())
		defer cronCancel()

		var onReport func(*dispatch.Report)
		if mailer != nil {
			onReport = func(rep *dispatch.Report) {
				if err := mailer.SendRunSummary(cronCtx, rep); err != nil {
					logger.Warn("run summary mail not sent", zap.Error(err))
				}
			}
		}
		go dispatcher.Loop(cronCtx, cfg.CronInterval, onReport)

		logger.Info("internal cron started", zap.Duration("interval", cfg.CronInterval))
	}

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// Custom logging middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration_ms", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	})

	// API routes
	var handler *api.Handler
	if mailer != nil {
		handler = api.NewHandlerWithMailer(logger, dispatcher, repo, mailer)
	} else {
		handler = api.NewHandler(logger, dispatcher, repo)
	}
	r.Route("/v1", func(r chi.Router) {
		r.Use(api.RateLimitMiddleware(rateLimiter, logger, api.IPKeyFunc))

		r.Post("/dispatch/run", handler.RunDispatch)
		r.Get("/notification-logs", handler.ListNotificationLogs)
	})

	// Health check: DB ping plus the push breaker snapshot when enabled
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := map[string]any{"status": "ok"}
		if err := database.Health(r.Context()); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "unavailable"
			body["database"] = err.Error()
		}
		if protected != nil {
			body["push_breaker"] = protected.Breaker().Stats()
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	})

	// Prometheus metrics endpoint
	r.Handle("/metrics", metrics.Handler())

	// Setup HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	// Listen for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a signal or server error
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		// Give outstanding requests 10 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		logger.Info("server stopped gracefully")
	}

	return nil
}
