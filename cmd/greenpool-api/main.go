// README: Entry point; loads config, wires the route store, traffic supplier, match feed and Kafka publisher, starts the HTTP server.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"greenpool/internal/config"
	"greenpool/internal/events"
	httptransport "greenpool/internal/http"
	"greenpool/internal/infra"
	"greenpool/internal/maps"
	"greenpool/internal/modules/impact"
	"greenpool/internal/modules/matching"
	"greenpool/internal/modules/routes"
)

// store is what the feed needs from a route backend.
type store interface {
	routes.Source
	routes.Directory
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := infra.NewLogger(cfg.Development())
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	routeStore, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("route store init", zap.String("backend", cfg.Store.Backend), zap.Error(err))
	}
	defer closeStore()

	supplier, closeSupplier, err := buildSupplier(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("traffic supplier init", zap.Error(err))
	}
	defer closeSupplier()

	matchingSvc := matching.NewService(logger.Named("matching"))
	feed := matching.NewFeed(routeStore, routeStore, supplier, matchingSvc, logger.Named("feed"))

	var watcher *events.Watcher
	if len(cfg.Kafka.Brokers) > 0 {
		publisher := events.NewPublisher(infra.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic))
		defer func() { _ = publisher.Close() }()
		watcher = events.NewWatcher(feed, publisher, logger.Named("watcher"))
		defer watcher.Close()
	} else {
		logger.Info("kafka brokers not configured; match publishing disabled")
	}

	handler := httptransport.NewServer(httptransport.ServerDeps{
		Feed:     feed,
		Matching: matchingSvc,
		Supplier: supplier,
		Watcher:  watcher,
		Logger:   logger.Named("http"),
	})

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", cfg.HTTP.Addr), zap.String("store", cfg.Store.Backend))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("http server", zap.Error(err))
	}
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (store, func(), error) {
	switch cfg.Store.Backend {
	case config.StoreFirestore:
		client, err := infra.NewFirestore(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			return nil, nil, err
		}
		return routes.NewFirestoreStore(client, logger.Named("firestore")), func() { _ = client.Close() }, nil
	case config.StorePostgres:
		pool, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			return nil, nil, err
		}
		s := routes.NewPostgresStore(pool, logger.Named("postgres"))
		if err := s.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return s, pool.Close, nil
	default:
		return routes.NewMemoryStore(), func() {}, nil
	}
}

// buildSupplier picks Google Maps when a key is configured, else the fixed
// figures, and puts the Redis cache in front when Redis is configured.
func buildSupplier(ctx context.Context, cfg config.Config, logger *zap.Logger) (impact.Supplier, func(), error) {
	var supplier impact.Supplier = impact.FixedSupplier{Data: impact.Known(
		cfg.Matching.DefaultDistanceKm,
		cfg.Matching.DefaultDurationSeconds,
		cfg.Matching.DefaultTrafficLevel,
	)}
	if cfg.Maps.APIKey != "" {
		svc, err := maps.NewTrafficService(cfg.Maps.APIKey)
		if err != nil {
			return nil, nil, err
		}
		supplier = svc
	}
	if cfg.Redis.Addr == "" {
		return supplier, func() {}, nil
	}
	client, err := infra.NewRedis(ctx, cfg.Redis.Addr)
	if err != nil {
		return nil, nil, err
	}
	cached := impact.NewCachedSupplier(impact.NewStore(client), supplier, cfg.Redis.TrafficCacheTTL, logger.Named("traffic_cache"))
	return cached, func() { _ = client.Close() }, nil
}
