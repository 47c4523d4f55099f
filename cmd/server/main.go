package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"cedrus/internal/admin"
	busredis "cedrus/internal/bus/redis"
	"cedrus/internal/bus/noop"
	cacheinproc "cedrus/internal/cache/inproc"
	cacheredis "cedrus/internal/cache/redis"
	"cedrus/internal/cache/tiered"
	"cedrus/internal/cache"
	"cedrus/internal/config"
	"cedrus/internal/engine"
	"cedrus/internal/httpapi"
	"cedrus/internal/model"
	"cedrus/internal/observability"
	"cedrus/internal/store"
	"cedrus/internal/store/document"
	"cedrus/internal/store/kvstore"
	"cedrus/internal/bus"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	shutdownTracer, err := observability.InitTracer(ctx, cfg.Observability.ServiceName, observability.Config{
		Enabled:  cfg.Observability.Enabled,
		Endpoint: cfg.Observability.Endpoint,
	})
	if err != nil {
		log.Printf("failed to initialize tracer: %v", err)
	} else {
		defer func() {
			if err := shutdownTracer(ctx); err != nil {
				log.Printf("failed to shutdown tracer: %v", err)
			}
		}()
	}

	st, closeStore, err := newStore(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to open durable store: %v", err)
	}
	defer closeStore()

	var redisClient *goredis.Client
	if cfg.CacheBackend != "inproc" || cfg.BusBackend == "redis" {
		redisClient = goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPass})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Fatalf("redis unavailable: %v", err)
		}
		defer func() { _ = redisClient.Close() }()
	}

	c := newCache(cfg, redisClient)

	pubsub := newBus(cfg, redisClient)
	defer func() { _ = pubsub.Close() }()

	eng := engine.New(cfg.NodeID, c)

	var operatorIdentitySource *model.IdentitySource
	if cfg.BootstrapPath != "" {
		src, err := loadOperatorIdentitySource(cfg.BootstrapPath)
		if err != nil {
			log.Fatalf("failed to load operator identity source: %v", err)
		}
		operatorIdentitySource = src
	}
	if err := eng.Bootstrap(ctx, st, operatorIdentitySource); err != nil {
		log.Fatalf("bootstrap failed: %v", err)
	}

	ctrl := admin.New(cfg.NodeID, st, c, eng, pubsub)

	eventCtx, cancelEvents := context.WithCancel(ctx)
	go consumeEvents(eventCtx, pubsub, eng, cfg.NodeID)

	router := httpapi.NewRouter(httpapi.Config{
		CORSOrigins:       cfg.CORSOrigins,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
	}, ctrl, eng)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		log.Printf("cedrus node %s listening on %s", cfg.NodeID, cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sig := <-shutdownChan
	log.Printf("received signal %v, shutting down...", sig)

	cancelEvents()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http server shutdown error: %v", err)
	}

	log.Printf("graceful shutdown complete")
}

func newStore(ctx context.Context, cfg config.Config) (store.Store, func(), error) {
	switch cfg.StoreBackend {
	case "dynamodb":
		client, err := kvstore.NewClient(ctx, cfg.AWSRegion, cfg.DynamoEndpoint)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to dynamodb: %w", err)
		}
		return kvstore.New(cfg.DynamoTable, client), func() {}, nil
	default:
		db, err := document.NewDB(ctx, cfg.DBURL, cfg.DBReadURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		return document.New(db), func() { db.Close() }, nil
	}
}

func newCache(cfg config.Config, rdb *goredis.Client) cache.Cache {
	switch cfg.CacheBackend {
	case "redis":
		return cacheredis.New(rdb, cfg.AuthzCacheTTL)
	case "tiered":
		return tiered.New(cacheinproc.New(cfg.AuthzCacheTTL), cacheredis.New(rdb, cfg.AuthzCacheTTL))
	default:
		return cacheinproc.New(cfg.AuthzCacheTTL)
	}
}

func newBus(cfg config.Config, rdb *goredis.Client) bus.PubSub {
	if cfg.BusBackend == "redis" {
		return busredis.New(rdb, cfg.NodeID)
	}
	return noop.New()
}

// consumeEvents drains the shared bus and applies every peer-published
// event to local engine state, skipping this node's own publications
// (already applied synchronously by the admin controller before publish).
func consumeEvents(ctx context.Context, pubsub bus.PubSub, eng *engine.Engine, nodeID string) {
	events, err := pubsub.Subscribe(ctx)
	if err != nil {
		log.Printf("event subscription failed: %v", err)
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.SenderID == nodeID {
				continue
			}
			if err := eng.ApplyEvent(ctx, ev); err != nil {
				log.Printf("apply event %s for project %s failed: %v", ev.Type, ev.ProjectID, err)
			}
		}
	}
}

func loadOperatorIdentitySource(path string) (*model.IdentitySource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bootstrap identity source: %w", err)
	}
	var src model.IdentitySource
	if err := src.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("decode bootstrap identity source: %w", err)
	}
	return &src, nil
}
