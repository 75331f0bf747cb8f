package config

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Skotchmaster/restaurant_orders/pkg/config"
	pkgdb "github.com/Skotchmaster/restaurant_orders/pkg/db"
)

const (
	ReplicaElasticsearch = "elasticsearch"
	ReplicaSurrealDB     = "surrealdb"
	ReplicaMemory        = "memory"
)

type ElasticConfig struct {
	URL      string
	User     string
	Password string
}

type SurrealConfig struct {
	URL       string
	Namespace string
	Database  string
	User      string
	Password  string
}

type ReplicationConfig struct {
	Attempts       int
	BaseDelay      time.Duration
	AttemptTimeout time.Duration
	MaxInFlight    int
	ReadTimeout    time.Duration
}

type ServiceConfig struct {
	config.Config

	TaxRate decimal.Decimal
	Pool    pkgdb.PoolConfig

	ReplicaBackend string
	Elastic        ElasticConfig
	Surreal        SurrealConfig
	Replication    ReplicationConfig

	ReconcileInterval time.Duration
	OrderEventsTopic  string
}

func Load() ServiceConfig {
	cfg := config.Load()
	if cfg.ServiceName == "" {
		cfg.ServiceName = "order"
	}

	config.MustNonEmpty(cfg.DatabaseURL, "DATABASE_URL")
	config.MustNonEmptyBytes(cfg.JWTAccessSecret, "JWT_SECRET")

	return FromBase(cfg)
}

// FromBase fills the order-specific settings on top of an already loaded base
// config. It never exits the process.
func FromBase(cfg config.Config) ServiceConfig {
	pool := pkgdb.DefaultPoolConfig()
	pool.MaxOpenConns = config.EnvIntDefault("DB_POOL_SIZE", pool.MaxOpenConns)
	if pool.MaxIdleConns > pool.MaxOpenConns {
		pool.MaxIdleConns = pool.MaxOpenConns
	}
	pool.AcquireTimeout = config.EnvDurationDefault("DB_ACQUIRE_TIMEOUT", pool.AcquireTimeout)
	pool.TxTimeout = config.EnvDurationDefault("DB_TX_TIMEOUT", pool.TxTimeout)

	taxRate := decimal.NewFromFloat(config.EnvFloatDefault("TAX_RATE", 0.05))
	if taxRate.IsNegative() {
		taxRate = decimal.NewFromFloat(0.05)
	}

	backend := strings.ToLower(config.EnvDefault("REPLICA_BACKEND", ReplicaElasticsearch))
	switch backend {
	case ReplicaElasticsearch, ReplicaSurrealDB, ReplicaMemory:
	default:
		backend = ReplicaElasticsearch
	}

	attempts := config.EnvIntDefault("REPLICATION_ATTEMPTS", 3)
	if attempts < 1 {
		attempts = 1
	}

	return ServiceConfig{
		Config:  cfg,
		TaxRate: taxRate,
		Pool:    pool,

		ReplicaBackend: backend,
		Elastic: ElasticConfig{
			URL:      config.EnvDefault("ES_URL", "http://localhost:9200"),
			User:     config.EnvDefault("ES_USER", ""),
			Password: config.EnvDefault("ES_PASSWORD", ""),
		},
		Surreal: SurrealConfig{
			URL:       config.EnvDefault("SURREAL_URL", "ws://localhost:8000"),
			Namespace: config.EnvDefault("SURREAL_NS", "restaurant"),
			Database:  config.EnvDefault("SURREAL_DB", "orders"),
			User:      config.EnvDefault("SURREAL_USER", "root"),
			Password:  config.EnvDefault("SURREAL_PASS", "root"),
		},
		Replication: ReplicationConfig{
			Attempts:       attempts,
			BaseDelay:      config.EnvDurationDefault("REPLICATION_BASE_DELAY", time.Second),
			AttemptTimeout: config.EnvDurationDefault("REPLICATION_ATTEMPT_TIMEOUT", 5*time.Second),
			MaxInFlight:    config.EnvIntDefault("REPLICATION_MAX_IN_FLIGHT", 64),
			ReadTimeout:    config.EnvDurationDefault("REPLICA_READ_TIMEOUT", 500*time.Millisecond),
		},

		ReconcileInterval: config.EnvDurationDefault("RECONCILE_INTERVAL", 5*time.Minute),
		OrderEventsTopic:  config.EnvDefault("ORDER_EVENTS_TOPIC", "order_events"),
	}
}
