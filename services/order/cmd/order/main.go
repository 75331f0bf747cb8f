package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	pkgdb "github.com/Skotchmaster/restaurant_orders/pkg/db"
	"github.com/Skotchmaster/restaurant_orders/pkg/events"
	"github.com/Skotchmaster/restaurant_orders/pkg/logging"
	loggingmw "github.com/Skotchmaster/restaurant_orders/pkg/middleware/logging"

	ordercfg "github.com/Skotchmaster/restaurant_orders/services/order/internal/config"
	"github.com/Skotchmaster/restaurant_orders/services/order/internal/httpserver"
	"github.com/Skotchmaster/restaurant_orders/services/order/internal/live"
	"github.com/Skotchmaster/restaurant_orders/services/order/internal/replica"
	"github.com/Skotchmaster/restaurant_orders/services/order/internal/replication"
	"github.com/Skotchmaster/restaurant_orders/services/order/internal/repo"
	"github.com/Skotchmaster/restaurant_orders/services/order/internal/service"
)

func main() {
	if err := godotenv.Load("services/order/.env"); err != nil {
		log.Printf("warning: could not load .env: %v", err)
	}

	cfg := ordercfg.Load()

	logger := logging.New(cfg.LogLevel).With("service", cfg.ServiceName)
	slog.SetDefault(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := pkgdb.Open(ctx, cfg.DatabaseURL, cfg.Pool)
	cancel()
	if err != nil {
		log.Fatalf("db open: %v", err)
	}
	if err := repo.Migrate(pool.DB()); err != nil {
		log.Fatalf("db migrate: %v", err)
	}

	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	client := replication.NewClient(replication.Options{
		Attempts:       cfg.Replication.Attempts,
		BaseDelay:      cfg.Replication.BaseDelay,
		AttemptTimeout: cfg.Replication.AttemptTimeout,
	}, logger)
	dispatcher := replication.NewDispatcher(cfg.Replication.MaxInFlight, logger)

	var producer *events.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer, err = events.NewProducer(cfg.KafkaBrokers)
		if err != nil {
			log.Fatalf("kafka producer: %v", err)
		}
	} else {
		logger.Warn("kafka_disabled", "reason", "KAFKA_BROKERS is empty")
	}

	hub := live.NewHub(logger)
	go hub.Run(appCtx)

	r := &repo.GormRepo{}
	orders := &service.OrderService{
		Pool:               pool,
		Repo:               r,
		Replicator:         client,
		Dispatcher:         dispatcher,
		Live:               hub,
		TaxRate:            cfg.TaxRate,
		EventsTopic:        cfg.OrderEventsTopic,
		ReplicaReadTimeout: cfg.Replication.ReadTimeout,
		TombstoneTimeout:   cfg.Replication.AttemptTimeout,
	}
	if producer != nil {
		orders.Events = producer
	}
	menu := &service.MenuService{
		Pool:       pool,
		Repo:       r,
		Replicator: client,
		Dispatcher: dispatcher,
		Live:       hub,
	}

	go bindReplica(appCtx, cfg, client, orders, logger)

	e := echo.New()
	e.HideBanner = true
	e.Validator = httpserver.NewValidator()
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(loggingmw.RequestLogger(logger))
	e.Use(echomw.CORS())

	httpserver.Register(e, &httpserver.Deps{
		OrderHandler: &httpserver.OrderHTTP{Svc: orders},
		MenuHandler:  &httpserver.MenuHTTP{Svc: menu},
		Health:       &httpserver.Health{Pool: pool, Replicator: client},
		Live:         hub,
		JWTSecret:    cfg.JWTAccessSecret,
	})

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.ServerPort),
		Handler:           e,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
	}

	go func() {
		logger.Info("order_listening", "addr", srv.Addr, "replica_backend", cfg.ReplicaBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	appCancel()

	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.Warn("dispatcher_close_error", "error", err)
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.Warn("kafka_close_error", "error", err)
		}
	}
	if store := client.Unbind(); store != nil {
		if err := store.Close(shutdownCtx); err != nil {
			logger.Warn("replica_close_error", "error", err)
		}
	}
	if err := pool.Close(); err != nil {
		logger.Warn("db_close_error", "error", err)
	}

	logger.Info("order_stopped")
}

// bindReplica connects to the configured replica until it succeeds or ctx
// ends, binds it, and then keeps the replica reconciled.
func bindReplica(ctx context.Context, cfg ordercfg.ServiceConfig, client *replication.Client, orders *service.OrderService, logger *slog.Logger) {
	l := logger.With("component", "replica_binder", "backend", cfg.ReplicaBackend)
	startedAt := time.Now()

	delay := time.Second
	for {
		store, err := openReplica(ctx, cfg)
		if err == nil {
			client.Bind(store)
			l.Info("replica_bound")
			break
		}
		l.Warn("replica_connect_failed", "error", err, "retry_in", delay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		if delay < 30*time.Second {
			delay *= 2
		}
	}

	// writes made before the replica was bound were never replicated
	since := startedAt.Add(-cfg.ReconcileInterval)
	for {
		runAt := time.Now()
		if _, err := orders.Reconcile(ctx, since); err != nil && !errors.Is(err, context.Canceled) {
			l.Warn("reconcile_error", "error", err)
		} else {
			since = runAt.Add(-time.Minute)
		}

		if cfg.ReconcileInterval <= 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(cfg.ReconcileInterval):
		}
	}
}

func openReplica(ctx context.Context, cfg ordercfg.ServiceConfig) (replica.Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	switch cfg.ReplicaBackend {
	case ordercfg.ReplicaMemory:
		return replica.NewMemoryStore(), nil

	case ordercfg.ReplicaSurrealDB:
		return replica.NewSurrealStore(connectCtx, replica.SurrealConfig{
			URL:       cfg.Surreal.URL,
			Namespace: cfg.Surreal.Namespace,
			Database:  cfg.Surreal.Database,
			Username:  cfg.Surreal.User,
			Password:  cfg.Surreal.Password,
		})

	case ordercfg.ReplicaElasticsearch:
		store, err := replica.NewElasticStore(replica.ElasticConfig{
			Addresses: []string{cfg.Elastic.URL},
			Username:  cfg.Elastic.User,
			Password:  cfg.Elastic.Password,
		})
		if err != nil {
			return nil, err
		}
		if err := store.Ping(connectCtx); err != nil {
			return nil, err
		}
		if err := store.EnsureIndices(connectCtx); err != nil {
			return nil, err
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown REPLICA_BACKEND %q", cfg.ReplicaBackend)
	}
}
