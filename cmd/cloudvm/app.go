package main

import (
	"context"
	"log/slog"

	"github.com/jacksonzamorano/cloudvm"
	"github.com/jacksonzamorano/cloudvm/cloudvm-api"
	"github.com/jacksonzamorano/cloudvm/cloudvm-cache"
	"github.com/jacksonzamorano/cloudvm/cloudvm-config"
	"github.com/jacksonzamorano/cloudvm/cloudvm-db"
	"github.com/jacksonzamorano/cloudvm/cloudvm-exchange"
	"github.com/jacksonzamorano/cloudvm/cloudvm-metrics"
)

// application is a fully wired server and the resources it owns.
type application struct {
	server  *cloudvm.Server
	router  *cloudvm.Router
	store   cloudvm_db.DocumentStore
	cache   cloudvm_cache.Cache
	metrics *cloudvm_metrics.Collector
}

func openStore(ctx context.Context, cfg *cloudvm_config.Config, memoryStore bool, logger *slog.Logger) (cloudvm_db.DocumentStore, error) {
	if memoryStore || !cfg.Database.Configured() {
		if !memoryStore {
			logger.Warn("no database configured, using the in-memory store")
		}
		return cloudvm_db.NewMemoryStore(), nil
	}
	poolConfig := cloudvm_db.DefaultPoolConfig(cfg.Database.GetConnectionString())
	poolConfig.MaxConns = cfg.Database.MaxConns
	poolConfig.Logger = logger
	store, err := cloudvm_db.NewPostgresStore(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func openCache(ctx context.Context, cfg *cloudvm_config.Config, logger *slog.Logger) cloudvm_cache.Cache {
	cacheConfig := &cloudvm_cache.Config{DefaultTTL: cfg.Redis.CacheTTL, Prefix: "cloudvm:"}
	if cfg.Redis.Addr == "" {
		return cloudvm_cache.NewMemoryCache(cacheConfig)
	}
	redisConfig := cloudvm_cache.DefaultRedisConfig()
	redisConfig.Config = cacheConfig
	redisConfig.Addr = cfg.Redis.Addr
	redisConfig.Password = cfg.Redis.Password
	redisConfig.DB = cfg.Redis.DB
	redisConfig.Logger = logger
	return cloudvm_cache.Connect(ctx, redisConfig, logger)
}

func buildApplication(ctx context.Context, cfg *cloudvm_config.Config, memoryStore bool, logger *slog.Logger) (*application, error) {
	secret := cfg.Auth.SigningKey
	if secret == "" {
		secret = cloudvm_exchange.GetSecret()
	}
	issuer, err := cloudvm_exchange.NewTokenIssuer(secret, cfg.Auth.TokenTTL)
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, cfg, memoryStore, logger)
	if err != nil {
		return nil, err
	}
	cache := openCache(ctx, cfg, logger)
	metrics := cloudvm_metrics.NewCollector(nil, nil)

	api := cloudvm_api.NewApi(store, issuer, cloudvm_exchange.NewPasswordHasher())
	api.Cache = cache
	api.CacheTTL = cfg.Redis.CacheTTL
	api.Metrics = metrics
	api.Logger = logger
	api.Cors = cloudvm_api.CorsOptions{Origin: cfg.Cors.Origin, Headers: cfg.Cors.Headers, Methods: cfg.Cors.Methods}

	router := cloudvm.NewRouter()
	if err := api.Register(ctx, router); err != nil {
		cache.Close()
		store.Close()
		return nil, err
	}

	server := cloudvm.NewServer(cfg.Server.Host, cfg.Server.Port, router)
	server.Backlog = cfg.Server.Backlog
	server.WorkerCount = cfg.Server.Workers
	server.BufferSize = cfg.Server.BufferSize
	server.ReadTimeout = cfg.Server.ReadTimeout
	server.Logger = logger
	server.Observer = metrics
	metrics.RegisterPool(server.PoolStats)

	return &application{
		server:  server,
		router:  router,
		store:   store,
		cache:   cache,
		metrics: metrics,
	}, nil
}

func (app *application) Close() error {
	app.store.Close()
	return app.cache.Close()
}
