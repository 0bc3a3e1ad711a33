package commands

import (
	"context"
	"fmt"

	"github.com/wonny/portfolioviz/internal/backend"
	"github.com/wonny/portfolioviz/internal/backend/cache"
	"github.com/wonny/portfolioviz/internal/dashboard"
	"github.com/wonny/portfolioviz/pkg/config"
	"github.com/wonny/portfolioviz/pkg/httputil"
	"github.com/wonny/portfolioviz/pkg/logger"
	"github.com/wonny/portfolioviz/pkg/redis"
)

// app is the wired object graph shared by the commands
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	client  *backend.Client
	manager *dashboard.Manager
	redis   *redis.Client
	memory  *cache.Memory // nil unless BACKEND_MEMORY_CACHE and Redis is off
}

// loadApp loads config, applies global flags and wires the backend and the session manager
func loadApp(ctx context.Context) (*app, error) {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if backendURL != "" {
		cfg.Backend.BaseURL = backendURL
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	// 3. Create backend client
	httpClient := httputil.New(cfg.Backend, log)
	client := backend.NewClient(cfg.Backend.BaseURL, httpClient, log)

	// 4. Optional response cache: Redis first, then in-process
	rdb, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	var memory *cache.Memory
	switch {
	case rdb.Enabled():
		client.WithCache(redis.NewCache(rdb, "portfolioviz"), cfg.Backend.CacheTTL)
		log.WithField("ttl", cfg.Backend.CacheTTL).Info("Backend response cache enabled (redis)")
	case cfg.Backend.MemoryCache:
		memory = cache.NewMemory(log.Component("cache"))
		client.WithCache(memory, cfg.Backend.CacheTTL)
		log.WithField("ttl", cfg.Backend.CacheTTL).Info("Backend response cache enabled (memory)")
	}

	// 5. Create session manager
	manager, err := dashboard.NewManager(dashboard.Deps{
		Fetcher: client,
		Lister:  client,
		Config:  cfg.Dashboard,
		Logger:  log,
	})
	if err != nil {
		rdb.Close()
		return nil, fmt.Errorf("create session manager: %w", err)
	}

	return &app{
		cfg:     cfg,
		log:     log,
		client:  client,
		manager: manager,
		redis:   rdb,
		memory:  memory,
	}, nil
}

func (a *app) Close() {
	a.manager.CloseAll()
	if err := a.redis.Close(); err != nil {
		a.log.WithError(err).Warn("Failed to close redis")
	}
}
