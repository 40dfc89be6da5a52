// povoice is the PO voice dispatch engine: a single binary running the
// HTTP API, the batch dispatcher, the callback scheduler, and the
// spreadsheet upload pipeline.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"go.povoice.tech/internal/agent"
	"go.povoice.tech/internal/api"
	"go.povoice.tech/internal/common/health"
	"go.povoice.tech/internal/common/leader"
	"go.povoice.tech/internal/common/lifecycle"
	"go.povoice.tech/internal/common/mongo"
	"go.povoice.tech/internal/common/secrets"
	"go.povoice.tech/internal/config"
	"go.povoice.tech/internal/dispatch"
	"go.povoice.tech/internal/eventbus"
	"go.povoice.tech/internal/ingest"
	"go.povoice.tech/internal/queuestore"
	"go.povoice.tech/internal/reconcile"
	"go.povoice.tech/internal/store/activity"
	"go.povoice.tech/internal/store/agentrun"
	"go.povoice.tech/internal/store/batch"
	"go.povoice.tech/internal/store/batchlog"
	"go.povoice.tech/internal/store/conflict"
	"go.povoice.tech/internal/store/purchaseorder"
	"go.povoice.tech/internal/store/supplier"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	// .env is optional; deployments configure through the environment
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogging(cfg.DevMode)

	slog.Info("Starting povoice dispatch engine",
		"version", version,
		"build_time", buildTime)

	ctx := context.Background()

	resolveSecrets(ctx, cfg)

	// Durable store
	mongoClient, err := mongo.Connect(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to MongoDB", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			slog.Warn("MongoDB disconnect failed", "error", err)
		}
	}()

	if err := mongo.NewIndexInitializer(mongoClient).Initialize(ctx); err != nil {
		slog.Error("Failed to initialize indexes", "error", err)
		os.Exit(1)
	}

	db := mongoClient.Database()
	batches := batch.NewRepository(db)
	pos := purchaseorder.NewRepository(db)
	suppliers := supplier.NewRepository(db)
	runs := agentrun.NewRepository(db)
	logs := batchlog.NewRepository(db)
	activityRepo := activity.NewRepository(db)
	conflicts := conflict.NewRepository(db)

	// Queue store
	redisOpts, err := redis.ParseURL(cfg.QueueStore.URL)
	if err != nil {
		slog.Error("Invalid queue store URL", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	queue := queuestore.New(redisClient, cfg.QueueStore.KeyPrefix)
	if err := queue.Ping(ctx); err != nil {
		slog.Error("Failed to connect to queue store", "error", err)
		os.Exit(1)
	}

	// Event bus
	var bus *eventbus.NATSBus
	if cfg.EventBus.URL == "embedded" {
		bus, err = eventbus.StartEmbedded()
	} else {
		bus, err = eventbus.Connect(cfg.EventBus.URL)
	}
	if err != nil {
		slog.Error("Failed to start event bus", "error", err)
		os.Exit(1)
	}
	defer bus.Close()

	// Agent provider
	var agentClient agent.Client
	providerConfigured := cfg.Agent.ProviderURL != ""
	if providerConfigured {
		agentClient, err = agent.NewHTTPClient(cfg.Agent)
		if err != nil {
			slog.Error("Failed to create agent provider client", "error", err)
			os.Exit(1)
		}
	} else {
		slog.Warn("No agent provider configured; dispatching is disabled until AGENT_PROVIDER_URL is set")
		agentClient = agent.Disabled{}
	}

	// Leader election
	var elector *leader.Elector
	if cfg.Leader.Enabled {
		electorCfg := leader.DefaultElectorConfig("dispatcher-leader")
		if cfg.Leader.InstanceID != "" {
			electorCfg.InstanceID = cfg.Leader.InstanceID
		}
		if cfg.Leader.TTL > 0 {
			electorCfg.TTL = cfg.Leader.TTL
		}
		if cfg.Leader.RefreshInterval > 0 {
			electorCfg.RefreshInterval = cfg.Leader.RefreshInterval
		}
		elector = leader.NewElector(redisClient, electorCfg)
		if err := elector.Start(ctx); err != nil {
			slog.Error("Failed to start leader election", "error", err)
			os.Exit(1)
		}
		defer elector.Stop()
	}

	// Dispatch loop
	hours, err := dispatch.NewHours(
		cfg.Dispatch.BusinessHoursStart,
		cfg.Dispatch.BusinessHoursEnd,
		cfg.Dispatch.BusinessTimezone)
	if err != nil {
		slog.Error("Invalid business hours configuration", "error", err)
		os.Exit(1)
	}

	dispatcher := dispatch.NewDispatcher(cfg.Dispatch, cfg.WebhookCallbackURL(), hours, dispatch.Deps{
		Queue:     queue,
		Batches:   batches,
		POs:       pos,
		Suppliers: suppliers,
		Runs:      runs,
		Logs:      logs,
		Agent:     agentClient,
		Bus:       bus,
		Txn:       mongoClient,
		Elector:   elector,
	})
	callbackScheduler := dispatch.NewCallbackScheduler(cfg.Dispatch.PollInterval, queue, batches, elector)

	// Webhook reconciler
	reconciler := reconcile.NewReconciler(batches, pos, runs, logs, conflicts, activityRepo, queue, bus)

	// Upload pipeline
	jobs := ingest.NewJobTracker(cfg.Upload.JobTTL)
	builder := ingest.NewBuilder(batches, pos, suppliers, conflicts, queue, bus, mongoClient,
		cfg.Upload.MaxPOsPerBatch, cfg.Upload.ChunkSize, cfg.Dispatch.MaxAttempts)
	coordinator := ingest.NewCoordinator(ingest.NewXLSXParser(), builder, jobs, bus, activityRepo)

	// Health checks
	checker := health.NewChecker()
	checker.AddReadinessCheck(health.MongoDBCheck(func() error { return mongoClient.Ping(ctx) }))
	checker.AddReadinessCheck(health.RedisCheck(func() error { return queue.Ping(ctx) }))
	checker.AddReadinessCheck(health.NATSCheck(bus.Connected))
	if providerConfigured {
		checker.AddReadinessCheck(health.DispatcherCheck(dispatcher.IsRunning))
	}

	// HTTP API
	server := api.NewServer(cfg, api.Deps{
		Batches:   batches,
		POs:       pos,
		Suppliers: suppliers,
		Runs:      runs,
		Logs:      logs,
		Activity:  activityRepo,
		Conflicts: conflicts,
		Queue:     queue,
		Bus:       bus,
		Uploads:   coordinator,
		Dispatch:  dispatcher,
		Webhooks:  reconciler,
		Checker:   checker,
	})

	httpServer := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:     server.Routes(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
		// No WriteTimeout: SSE streams stay open indefinitely
	}

	sweeper := lifecycle.NewServiceFunc("upload-job-sweeper",
		func(ctx context.Context) error {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					jobs.Sweep(time.Now())
				}
			}
		},
		func(ctx context.Context) error { return nil },
	)

	services := []lifecycle.Service{
		callbackScheduler,
		sweeper,
		lifecycle.NewHTTPService("http-api", httpServer),
	}
	if providerConfigured {
		services = append([]lifecycle.Service{dispatcher}, services...)
	}

	if err := lifecycle.Run(ctx, services...); err != nil {
		slog.Error("Engine exited with error", "error", err)
		os.Exit(1)
	}

	slog.Info("Engine stopped")
}

func setupLogging(dev bool) {
	logLevel := slog.LevelInfo
	if dev {
		logLevel = slog.LevelDebug
	}

	var handler slog.Handler
	if dev {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	slog.SetDefault(slog.New(handler))
}

// resolveSecrets overlays sensitive config values from the configured
// secrets provider. Lookup failures fall back to the environment
// values already loaded.
func resolveSecrets(ctx context.Context, cfg *config.Config) {
	provider, err := secrets.NewProvider(secrets.LoadConfigFromEnv())
	if err != nil {
		slog.Warn("Secrets provider unavailable, using environment values", "error", err)
		return
	}

	overlay := func(key string, dst *string) {
		value, err := provider.Get(ctx, key)
		if err != nil || value == "" {
			return
		}
		*dst = value
	}

	overlay("agent-provider-api-key", &cfg.Agent.APIKey)
	overlay("agent-webhook-secret", &cfg.Agent.WebhookSecret)
}
