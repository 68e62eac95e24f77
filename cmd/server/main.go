/**
 * @description
 * This is the main entry point for the invoicing service. It is responsible
 * for initializing all components of the service, including configuration,
 * database connection, the Solana RPC client, message brokers, repositories,
 * the core application service, the cron scheduler, and the HTTP server. It
 * wires everything together and starts the service.
 *
 * @dependencies
 * - log, log/slog, net/http: Standard Go libraries for logging and HTTP.
 * - github.com/joho/godotenv: To load .env files for local development.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/redis/go-redis/v9: Redis client for rate limiting and nonces.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages.
 * - pkg/solana, pkg/rabbitmq: Solana RPC and RabbitMQ clients.
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

	"github.com/offmylawn101/invoicenow/internal/api"
	"github.com/offmylawn101/invoicenow/internal/app"
	"github.com/offmylawn101/invoicenow/internal/config"
	"github.com/offmylawn101/invoicenow/internal/store"
	"github.com/offmylawn101/invoicenow/pkg/rabbitmq"
	"github.com/offmylawn101/invoicenow/pkg/solana"
)

func main() {
	// Load .env file for local development. In production, env vars are set directly.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"jwt secret must be configured\" env=JWT_SECRET")
	}

	log.Printf("level=info component=bootstrap msg=\"starting invoicenow\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}
	poolConfig.MaxConns = 50
	poolConfig.MinConns = 10
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer to publish events. Publishing degrades
	// to a no-op fallback when the broker is unreachable.
	var publisher rabbitmq.Publisher
	rabbitProducer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, cfg.EventExchange)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
	} else {
		defer rabbitProducer.Close()
		publisher = rabbitProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Redis backs the distributed rate limiter and the sign-in nonce store.
	var redisClient *redis.Client
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; redis features disabled\" err=%v", parseErr)
		} else {
			redisClient = redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelPing()
			if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; redis features disabled\" err=%v", pingErr)
				redisClient.Close()
				redisClient = nil
			} else {
				defer redisClient.Close()
				log.Println("level=info component=bootstrap msg=\"redis connected\"")
			}
		}
	}

	// Initialize the Solana RPC client.
	chainClient := solana.NewClient(cfg.SolanaRPCURL)
	log.Printf("level=info component=bootstrap msg=\"solana rpc client initialized\" endpoint=%s", cfg.SolanaRPCURL)

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Initialize the core application service with its dependencies.
	service := app.NewService(
		repository,
		chainClient,
		publisher,
		cfg.PaymentLinkBaseURL,
		cfg.PaymentLabel,
		app.LotteryConfig{
			HouseEdgePercent:  cfg.HouseEdgePercent,
			MinReservePercent: cfg.MinReservePercent,
			MaxPayoutPercent:  cfg.MaxPayoutPercent,
			MaxRiskPercent:    cfg.MaxRiskPercent,
		},
	)
	if redisClient != nil {
		service.ConfigureRateLimits(
			app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix),
			cfg.LotteryEntryRateLimitPerMinute,
			cfg.LotterySettleRateLimitPerMinute,
		)
	}

	// Sign-in nonces live in Redis when available so challenges survive
	// restarts; otherwise fall back to the in-process store.
	nonceTTL := time.Duration(cfg.AuthNonceTTLSeconds) * time.Second
	var nonceStore api.NonceStore
	if redisClient != nil {
		nonceStore = api.NewRedisNonceStore(redisClient, "", nonceTTL)
	} else {
		log.Println("level=warn component=bootstrap msg=\"redis unavailable; using in-memory nonce store\"")
		nonceStore = api.NewMemoryNonceStore(nonceTTL)
	}

	// Initialize the API handlers and router.
	handlers := api.NewHandlers(service, nonceStore, cfg.JWTSecret, time.Duration(cfg.JWTTTLMinutes)*time.Minute)
	router := api.Routes(handlers, api.RouterConfig{
		JWTSecret:          cfg.JWTSecret,
		InternalAPIKey:     cfg.InternalAPIKey,
		CORSAllowedOrigins: splitOrigins(cfg.CORSAllowedOrigins),
	})

	// Consume payment confirmations published by chain watchers.
	rabbitConsumer, err := rabbitmq.NewConsumer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq consumer unavailable; payment confirmations disabled\" err=%v", err)
	} else {
		defer rabbitConsumer.Close()
		if err := rabbitConsumer.ConsumeWithBindings(cfg.EventExchange, cfg.PaymentEventQueue, service.ConsumerBindings()); err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"payment consumer start failed\" err=%v", err)
		}
		log.Println("level=info component=bootstrap msg=\"payment confirmation consumer started\"")
	}

	// Start the cron scheduler for reminder scans and pool reconciliation.
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	jobs := app.NewJobs(repository, publisher, logger, app.ReminderOptions{
		BackoffHours: cfg.ReminderBackoffHours,
		MaxCount:     cfg.ReminderMaxCount,
		LeadHours:    cfg.ReminderLeadHours,
	})
	scheduler := app.NewScheduler(jobs, logger, app.SchedulerConfig{
		ReminderSchedule:      cfg.ReminderSchedule,
		PoolReconcileSchedule: cfg.PoolReconcileSchedule,
	})
	scheduler.Start()

	// Start the HTTP server.
	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	// Let in-flight cron jobs finish before exiting.
	<-scheduler.Stop().Done()

	log.Println("level=info component=http msg=\"shutdown complete\"")
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, origin := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
