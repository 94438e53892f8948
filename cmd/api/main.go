package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/visionfy/visionfy/internal/api"
	"github.com/visionfy/visionfy/internal/auth"
	"github.com/visionfy/visionfy/internal/config"
	"github.com/visionfy/visionfy/internal/database"
	"github.com/visionfy/visionfy/internal/generation"
	"github.com/visionfy/visionfy/internal/history"
	"github.com/visionfy/visionfy/internal/logger"
	mw "github.com/visionfy/visionfy/internal/middleware"
	inats "github.com/visionfy/visionfy/internal/nats"
	"github.com/visionfy/visionfy/internal/provider"
	"github.com/visionfy/visionfy/internal/quota"
	"github.com/visionfy/visionfy/internal/ratelimit"
	iredis "github.com/visionfy/visionfy/internal/redis"
	"github.com/visionfy/visionfy/internal/server"
	"github.com/visionfy/visionfy/internal/storage"
	"github.com/visionfy/visionfy/internal/usage"
	"github.com/visionfy/visionfy/internal/users"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	// PostgreSQL
	if err := database.RunMigrations(cfg.DB.DSN(), cfg.Server.MigrationsPath); err != nil {
		return err
	}
	pool, err := database.NewPostgresPool(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer pool.Close()

	// Redis
	redisClient, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	// NATS (optional): generation events fan out to the postgres history consumer.
	var natsClient *inats.Client
	var publisher history.EventPublisher
	if cfg.NATS.Enabled() {
		natsClient, err = inats.NewClient(ctx, cfg.NATS, "visionfy-api")
		if err != nil {
			return err
		}
		defer natsClient.Close()
		publisher = inats.NewPublisher(natsClient.JetStream())

		consumer := history.NewConsumer(history.NewRepository(pool), inats.NewConsumerManager(natsClient.JetStream()))
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("history consumer stopped", "error", err)
			}
		}()
	}

	// Auth
	jwtManager := auth.NewJWTManager(
		cfg.JWT.AccessSecret,
		cfg.JWT.RefreshSecret,
		cfg.JWT.AccessExpiry,
		cfg.JWT.RefreshExpiry,
	)
	authSvc := auth.NewService(jwtManager, redisClient)
	userSvc := users.NewService(users.NewRepository(pool))
	authHandler := auth.NewHandler(authSvc, userSvc)

	// Generation pipeline
	uploader, err := storage.NewUploader(cfg.Storage)
	if err != nil {
		return err
	}
	openai := provider.NewOpenAIClient(cfg.Provider)
	invoker := generation.NewInvoker(openai, openai, uploader)
	counter := quota.NewCounter(redisClient, cfg.Limits.DailyQuota)
	recorder := history.NewRecorder(redisClient, publisher)

	window := cfg.Limits.Window
	genHandler := generation.NewHandler(invoker, counter, recorder, generation.Endpoints{
		Generate:  generation.Endpoint{Limiter: ratelimit.NewFixedWindow(redisClient, "generate", window), Limit: cfg.Limits.GeneratePerMinute},
		Edit:      generation.Endpoint{Limiter: ratelimit.NewFixedWindow(redisClient, "edit", window), Limit: cfg.Limits.EditPerMinute},
		Variation: generation.Endpoint{Limiter: ratelimit.NewFixedWindow(redisClient, "variation", window), Limit: cfg.Limits.VariationPerMinute},
	})
	usageHandler := usage.NewHandler(counter, userSvc)

	authLimiter := mw.NewIPRateLimiter(ratelimit.NewFixedWindow(redisClient, "auth", window), cfg.Limits.AuthPerMinute)

	router := api.NewRouter(api.RouterConfig{
		CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
		AuthRateLimiter:    authLimiter.Middleware,
		Probes:             probes(pool, redisClient, natsClient),
	}, api.HandlerSet{
		Register: authHandler.Register,
		Login:    authHandler.Login,
		Refresh:  authHandler.Refresh,
		Logout:   authHandler.Logout,

		GenerateImages:  genHandler.Generate,
		EditImage:       genHandler.Edit,
		ImageVariations: genHandler.Variations,
		GetUsage:        usageHandler.Get,

		AuthMiddleware: auth.Middleware(authSvc),
	})

	srv := server.New(cfg.Server, cfg.Provider.Timeout, router)
	return srv.Run(ctx)
}

func probes(pool *pgxpool.Pool, rdb goredis.Cmdable, nc *inats.Client) []api.Probe {
	out := []api.Probe{
		{Name: "database", Check: func(ctx context.Context) error { return database.HealthCheck(ctx, pool) }},
		{Name: "redis", Check: func(ctx context.Context) error { return iredis.HealthCheck(ctx, rdb) }},
		{Name: "nats"},
	}
	if nc != nil {
		out[2].Check = nc.Ping
	}
	return out
}
