package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	StoreSQLite     = "sqlite"
	StoreClickHouse = "clickhouse"

	FeedLocal = "local"
	FeedNATS  = "nats"
)

type Config struct {
	ServiceName string `env:"JOBTRACKER_SERVICE_NAME" envDefault:"jobtracker"`
	HTTPAddr    string `env:"JOBTRACKER_HTTP_ADDR" envDefault:":8080"`
	Development bool   `env:"JOBTRACKER_DEV" envDefault:"false"`

	// DataStore selects the data store binding: sqlite or clickhouse.
	DataStore  string `env:"JOBTRACKER_DATA_STORE" envDefault:"sqlite"`
	SQLitePath string `env:"JOBTRACKER_SQLITE_PATH" envDefault:"data/jobtracker.db"`

	// ChangeFeed selects how change notifications travel: local or nats.
	ChangeFeed      string        `env:"JOBTRACKER_CHANGE_FEED" envDefault:"local"`
	NATSURL         string        `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	NATSConnTimeout time.Duration `env:"NATS_CONN_TIMEOUT" envDefault:"10s"`

	ClickHouseDSN          string        `env:"CLICKHOUSE_DSN" envDefault:"localhost:9000"`
	ClickHouseMaxOpenConns int           `env:"CLICKHOUSE_MAX_OPEN_CONNS" envDefault:"10"`
	ClickHouseMaxIdleConns int           `env:"CLICKHOUSE_MAX_IDLE_CONNS" envDefault:"5"`
	ClickHouseConnMaxLife  time.Duration `env:"CLICKHOUSE_CONN_MAX_LIFE" envDefault:"1h"`
	ClickHouseUsername     string        `env:"CLICKHOUSE_USERNAME" envDefault:"default"`
	ClickHousePassword     string        `env:"CLICKHOUSE_PASSWORD"`
	ClickHouseDatabase     string        `env:"CLICKHOUSE_DATABASE" envDefault:"jobtracker"`

	// RedisAddr empty keeps sessions and profiles in process memory.
	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	CacheTTL      time.Duration `env:"CACHE_TTL" envDefault:"1h"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"168h"`

	// OTELCollectorURL empty disables trace export.
	OTELCollectorURL string `env:"OTEL_COLLECTOR_URL"`
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.DataStore {
	case StoreSQLite, StoreClickHouse:
	default:
		return fmt.Errorf("JOBTRACKER_DATA_STORE: unsupported value %q", c.DataStore)
	}
	switch c.ChangeFeed {
	case FeedLocal, FeedNATS:
	default:
		return fmt.Errorf("JOBTRACKER_CHANGE_FEED: unsupported value %q", c.ChangeFeed)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}
	return nil
}
