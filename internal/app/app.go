// Package app wires configuration into the services shared by the api,
// worker and dbtool binaries.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"shootday/internal/checkin"
	"shootday/internal/config"
	"shootday/internal/monitor"
	"shootday/internal/queue"
	"shootday/internal/routing"
	"shootday/internal/store"
	"shootday/internal/traveltime"
)

// Runtime holds the process-wide dependencies. Close releases them.
type Runtime struct {
	Config   config.App
	Log      *zap.Logger
	Clock    clock.Clock
	Location *time.Location

	DB    *store.DB
	Redis *store.Redis
	Repo  store.Repository

	Travel   *traveltime.Cache
	Checkins *checkin.Service
	Monitor  *monitor.Monitor
	Queue    queue.Queue
}

// Build connects the configured backends. Postgres is migrated on open.
func Build(ctx context.Context, cfg config.App, log *zap.Logger) (*Runtime, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	start, end, err := cfg.ActiveWindow()
	if err != nil {
		return nil, err
	}

	rt := &Runtime{Config: cfg, Log: log, Clock: clock.New(), Location: loc}

	switch cfg.StoreBackend {
	case "memory":
		log.Warn("using in-memory store; data is lost on restart")
		rt.Repo = store.NewMemory()
	case "postgres":
		db, err := store.OpenDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		rt.DB = db
		if err := store.Migrate(ctx, db.Client); err != nil {
			rt.Close()
			return nil, err
		}
		rt.Repo = db.Repository()
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	if cfg.CacheBackend == "redis" || cfg.QueueBackend == "redis" {
		rt.Redis = store.NewRedis(cfg.RedisAddr)
	}

	var travelStore traveltime.Store
	switch cfg.CacheBackend {
	case "memory":
		travelStore = traveltime.NewMemoryStore()
	case "redis":
		travelStore = traveltime.NewRedisStore(rt.Redis.Client)
	default:
		rt.Close()
		return nil, fmt.Errorf("unknown CACHE_BACKEND %q", cfg.CacheBackend)
	}

	switch cfg.QueueBackend {
	case "memory":
		rt.Queue = queue.NewInMemory(64)
	case "redis":
		rt.Queue = queue.NewRedisQueue(rt.Redis.Client, "", log)
	default:
		rt.Close()
		return nil, fmt.Errorf("unknown QUEUE_BACKEND %q", cfg.QueueBackend)
	}

	// Without a key every lookup falls back to the manual default.
	var provider traveltime.Provider
	if cfg.KakaoAPIKey != "" {
		kakao, err := routing.NewKakao(cfg.KakaoAPIKey, nil)
		if err != nil {
			rt.Close()
			return nil, err
		}
		provider = kakao
	} else {
		log.Warn("KAKAO_REST_API_KEY not set; travel estimates use the default")
	}

	rt.Travel = traveltime.New(travelStore, provider, rt.Clock, traveltime.Options{
		OKTTL:     cfg.TravelOKTTL,
		FailedTTL: cfg.TravelFailedTTL,
		Timeout:   cfg.ProviderTimeout,
	}, log.Named("traveltime"))
	rt.Checkins = checkin.NewService(rt.Repo, rt.Clock, loc, log.Named("checkin"))
	rt.Monitor = monitor.New(rt.Repo, rt.Travel, loc, monitor.Config{
		WakeBuffer:           cfg.WakeBuffer,
		Grace:                cfg.AlertGrace,
		LookaheadDays:        cfg.LookaheadDays,
		DefaultTravelMinutes: cfg.DefaultTravelMinutes,
		ActiveStart:          start,
		ActiveEnd:            end,
		Concurrency:          cfg.EstimateConcurrency,
	}, log.Named("monitor"))
	return rt, nil
}

// HealthChecks lists the reachability checks of the configured backends.
func (rt *Runtime) HealthChecks() map[string]func(context.Context) error {
	checks := make(map[string]func(context.Context) error)
	if rt.DB != nil {
		checks["postgres"] = rt.DB.Client.PingContext
	}
	if rt.Redis != nil {
		checks["redis"] = rt.Redis.Ping
	}
	return checks
}

// Close releases connections. It is safe to call on a partly built runtime.
func (rt *Runtime) Close() {
	if err := rt.Redis.Close(); err != nil {
		rt.Log.Warn("close redis", zap.Error(err))
	}
	if err := rt.DB.Close(); err != nil {
		rt.Log.Warn("close postgres", zap.Error(err))
	}
}
