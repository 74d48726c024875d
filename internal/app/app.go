// Package app assembles the engine and its adapters from configuration.
// cmd/server and cmd/worker share it so both binaries run the same wiring.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/postify/drip-engine/internal/config"
	"github.com/postify/drip-engine/internal/mailing"
	"github.com/postify/drip-engine/internal/metrics"
	"github.com/postify/drip-engine/internal/pkg/distlock"
	"github.com/postify/drip-engine/internal/pkg/logger"
	"github.com/postify/drip-engine/internal/repository/dynamo"
	"github.com/postify/drip-engine/internal/repository/memory"
	"github.com/postify/drip-engine/internal/repository/postgres"
	"github.com/postify/drip-engine/internal/service/drip"
	"github.com/postify/drip-engine/internal/tracking"
	"github.com/postify/drip-engine/internal/worker"
	"github.com/redis/go-redis/v9"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// App holds everything a binary needs. DB and Redis are nil when not
// configured.
type App struct {
	Config    *config.Config
	DB        *sql.DB
	Redis     *redis.Client
	Engine    *drip.Engine
	Runner    *worker.SweepRunner
	Metrics   *metrics.Recorder
	publisher *tracking.Publisher
}

// ConfigureLogging applies the logging section to the default logger.
func ConfigureLogging(cfg config.LoggingConfig) {
	logger.SetLevel(logger.ParseLevel(cfg.Level))
	if cfg.RedactPII != nil {
		logger.SetRedactPII(*cfg.RedactPII)
	}
}

// New connects to the configured backends and builds the engine.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	a := &App{Config: cfg, Metrics: metrics.New()}

	deps := drip.Deps{
		Renderer: mailing.NewTemplateRenderer(cfg.Drip.FrontendURL),
		Recorder: a.Metrics,
	}

	switch cfg.Database.Driver {
	case "memory":
		log.Println("[app] Using in-memory stores (data is lost on exit)")
		deps.Events = memory.NewEventLog()
		deps.Sequences = memory.NewSequenceStore()
		deps.Pending = memory.NewPendingQueue()
		deps.Deliveries = memory.NewDeliveryLog()
		deps.Users = memory.NewUserStore()
	default:
		db, err := openDB(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		a.DB = db
		deps.Events = postgres.NewEventRepo(db)
		deps.Sequences = postgres.NewSequenceRepo(db)
		deps.Pending = postgres.NewPendingRepo(db)
		deps.Deliveries = postgres.NewDeliveryRepo(db)
		deps.Users = postgres.NewUserRepo(db)
	}

	if cfg.DeliveryLog.Backend == "dynamodb" {
		dl, err := dynamo.New(ctx, cfg.DeliveryLog.DynamoDBTable, cfg.DeliveryLog.AWSRegion)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("dynamodb delivery log: %w", err)
		}
		deps.Deliveries = dl
		log.Printf("[app] Delivery log: DynamoDB table %s", cfg.DeliveryLog.DynamoDBTable)
	}

	if cfg.Redis.Addr != "" {
		client, err := openRedis(ctx, cfg.Redis)
		if err != nil {
			// The advisory lock still keeps sweeps exclusive.
			log.Printf("[app] WARNING: Redis unavailable, using Postgres advisory lease: %v", err)
		} else {
			a.Redis = client
		}
	}

	gw, err := NewGateway(ctx, cfg.Delivery)
	if err != nil {
		a.Close()
		return nil, err
	}
	deps.Gateway = throttle(gw, a.Redis, cfg.Delivery)

	if cfg.Tracking.QueueURL != "" {
		pub, err := tracking.NewPublisherFromRegion(ctx, cfg.Tracking.AWSRegion, cfg.Tracking.QueueURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("tracking publisher: %w", err)
		}
		a.publisher = pub
		deps.Notifier = pub
		log.Printf("[app] Lifecycle events -> %s", cfg.Tracking.QueueURL)
	}

	engine, err := drip.New(Settings(cfg.Drip), deps)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build engine: %w", err)
	}
	a.Engine = engine

	var lease distlock.DistLock
	if a.Redis != nil || a.DB != nil {
		lease = distlock.NewLock(a.Redis, a.DB, worker.SweepLeaseKey, cfg.Worker.LeaseTTL())
	}
	a.Runner = worker.NewSweepRunner(engine, lease, worker.RunnerConfig{
		Interval:     cfg.Worker.Interval(),
		StartupDelay: time.Duration(cfg.Worker.StartupDelaySeconds) * time.Second,
		LeaseTTL:     cfg.Worker.LeaseTTL(),
	}, a.Metrics)

	return a, nil
}

// Settings converts the drip config section into engine settings.
func Settings(c config.DripConfig) drip.Settings {
	return drip.Settings{
		Steps:           c.Steps,
		TriggerAfter:    c.TriggerAfter(),
		Cooldown:        c.Cooldown(),
		PaidPlans:       c.PaidPlans,
		BatchSize:       c.BatchSize,
		ClaimTTL:        c.ClaimTTL(),
		DeliveryTimeout: c.DeliveryTimeout(),
		Policy: drip.FailurePolicy{
			Mode:        drip.FailureMode(c.FailurePolicy.Mode),
			MaxAttempts: c.FailurePolicy.MaxAttempts,
			RetryDelay:  c.FailurePolicy.RetryDelay(),
		},
	}
}

// NewGateway picks the delivery gateway named by cfg.Provider.
func NewGateway(ctx context.Context, cfg config.DeliveryConfig) (mailing.Gateway, error) {
	from := mailing.Sender{Email: cfg.SenderEmail, Name: cfg.SenderName}
	switch cfg.Provider {
	case "ses":
		gw, err := mailing.NewSESGateway(ctx, cfg.SESAccessKey, cfg.SESSecretKey, cfg.SESRegion, from)
		if err != nil {
			return nil, fmt.Errorf("ses gateway: %w", err)
		}
		log.Printf("[app] Delivery: SES (%s)", cfg.SESRegion)
		return gw, nil
	case "sparkpost":
		log.Println("[app] Delivery: SparkPost")
		return mailing.NewSparkPostGateway(cfg.SparkPostAPIKey, cfg.SparkPostURL, from, cfg.Timeout()), nil
	case "mock", "":
		log.Println("[app] Delivery: mock (emails are logged, not sent)")
		return mailing.NewMockGateway(), nil
	}
	return nil, fmt.Errorf("unknown delivery provider %q", cfg.Provider)
}

// throttle wraps gw in the shared Redis rate limiter when limits are set.
func throttle(gw mailing.Gateway, client *redis.Client, cfg config.DeliveryConfig) mailing.Gateway {
	limits := mailing.RateLimit{
		PerSecond: cfg.RateLimit.PerSecond,
		PerMinute: cfg.RateLimit.PerMinute,
		PerDay:    cfg.RateLimit.PerDay,
	}
	if !limits.Enabled() {
		return gw
	}
	if client == nil {
		log.Println("[app] WARNING: delivery.rate_limit set but Redis is unavailable, sending unthrottled")
		return gw
	}
	log.Printf("[app] Delivery rate limit: %d/s %d/min %d/day", limits.PerSecond, limits.PerMinute, limits.PerDay)
	return mailing.NewThrottledGateway(gw, mailing.NewRateLimiter(client, cfg.Provider, limits))
}

func openDB(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database.url (DATABASE_URL) is required for the postgres driver")
	}
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	log.Println("[app] Connected to PostgreSQL")
	return db, nil
}

// openRedis accepts either a redis:// URL or a bare host:port.
func openRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	var opts *redis.Options
	if strings.Contains(cfg.Addr, "://") {
		parsed, err := redis.ParseURL(cfg.Addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: cfg.Addr, DB: cfg.DB}
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	log.Printf("[app] Connected to Redis at %s", opts.Addr)
	return client, nil
}

// Close flushes pending lifecycle publishes and closes connections.
func (a *App) Close() {
	if a.publisher != nil {
		a.publisher.Flush()
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
