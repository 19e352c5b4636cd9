/**
 * @description
 * This is the main entry point for the remit-service. It is responsible for
 * initializing all components of the service, including configuration, database
 * connection, external API clients, message brokers, repositories, the core
 * application services, the reminder scheduler and the HTTP server. It wires
 * everything together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/stripeclient, pkg/mobilemoney, pkg/mailer, pkg/rabbitmq: External integration clients.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/volapay/remit-service/internal/api"
	"github.com/volapay/remit-service/internal/app"
	"github.com/volapay/remit-service/internal/config"
	"github.com/volapay/remit-service/internal/store"
	"github.com/volapay/remit-service/pkg/mailer"
	"github.com/volapay/remit-service/pkg/mobilemoney"
	"github.com/volapay/remit-service/pkg/rabbitmq"
	"github.com/volapay/remit-service/pkg/stripeclient"
)

func main() {
	// Load a local .env if present; real deployments configure via environment.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"jwt secret must be configured\" env=JWT_SECRET")
	}
	if strings.TrimSpace(cfg.StripeWebhookSecret) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"webhook secret must be configured\" env=STRIPE_WEBHOOK_SECRET")
	}

	log.Printf("level=info component=bootstrap msg=\"starting remit-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}
	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer for the ops-console event feed. A
	// missing broker degrades to the no-op fallback.
	var producer rabbitmq.Publisher
	rabbitProducer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		producer = &rabbitmq.EventProducerFallback{}
	} else {
		defer rabbitProducer.Close()
		producer = rabbitProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Optional Redis: caches the exchange rate and backs the per-user rate
	// limiter. Without it rates come straight from the database and limiting
	// is disabled.
	var redisClient *redis.Client
	if strings.TrimSpace(cfg.RedisURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing; rate cache and limiter disabled\" env=REDIS_URL")
	} else {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; rate cache and limiter disabled\" err=%v", parseErr)
		} else {
			redisClient = redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelPing()
			if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; rate cache and limiter disabled\" err=%v", pingErr)
				redisClient.Close()
				redisClient = nil
			} else {
				defer redisClient.Close()
				log.Println("level=info component=bootstrap msg=\"redis connected\"")
			}
		}
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// External integration clients.
	stripeClient := stripeclient.NewClient(cfg.StripeAPIBaseURL, cfg.StripeAPIKey)
	momoClient := mobilemoney.NewClient(cfg.MobileMoneyBaseURL, cfg.MobileMoneyAPIKey)
	mailClient := mailer.NewClient(cfg.MailerBaseURL, cfg.MailerAPIKey, "no-reply@volapay.ca")

	// Core application services.
	auditLogger := app.NewAuditLogger(repository)
	notifier := app.NewNotifier(repository, producer)
	rateCache := app.NewRateCache(repository, redisClient, time.Duration(cfg.ExchangeRateCacheTTLSeconds)*time.Second)
	tracker := app.NewTracker(repository, app.TrackerConfig{
		AlertThreshold:      cfg.ReliabilityAlertThreshold,
		ComplianceThreshold: cfg.ReliabilityComplianceThreshold,
		Window:              time.Duration(cfg.ReliabilityWindowHours) * time.Hour,
	})

	limits := app.TransferLimits{
		MinCADCents: cfg.TransferMinCADCents,
		MaxCADCents: cfg.TransferMaxCADCents,
		FeePercent:  decimal.NewFromFloat(cfg.TransferFeePercent),
	}
	transferService := app.NewTransferService(repository, rateCache, notifier, auditLogger, momoClient, limits)
	subscriptionService := app.NewSubscriptionService(repository, stripeClient, tracker, notifier, auditLogger, limits)
	billingPipeline := app.NewBillingPipeline(repository, rateCache, transferService, notifier, auditLogger, mailClient)

	limiter := app.NewRedisTransferRateLimiter(redisClient, cfg.RedisRateLimitPrefix)

	// Reminder scheduler for upcoming recurring transfers.
	slogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	scheduler := app.NewScheduler(repository, notifier, slogger, cfg.ReminderSchedule)
	scheduler.Start()
	defer func() {
		stopCtx := scheduler.Stop()
		<-stopCtx.Done()
	}()

	// Initialize the API handlers and router.
	handlers := api.NewHandlers(transferService, subscriptionService, repository, limiter)
	complianceHandlers := api.NewComplianceHandlers(tracker, repository, auditLogger)
	webhookHandler := api.NewWebhookHandler(billingPipeline, cfg.StripeWebhookSecret)

	router := api.Routes(handlers, complianceHandlers, webhookHandler, auditLogger, cfg.JWTSecret, cfg.AllowedOrigins)

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server failed\" err=%v", err)
		}
	}()

	// Wait for termination signal to gracefully shut down.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("level=info component=bootstrap msg=\"shutdown signal received\"")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("level=error component=http msg=\"server shutdown failed\" err=%v", err)
	}
	log.Println("level=info component=bootstrap msg=\"server stopped gracefully\"")
}
