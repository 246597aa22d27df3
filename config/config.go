package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
	"hermannm.dev/wrap"
)

type Config struct {
	BaseConfig
	ClickHouse    ClickHouse
	Elasticsearch Elasticsearch
}

type BaseConfig struct {
	IsProduction bool           `env:"PRODUCTION"`
	Store        SupportedStore `env:"METRICS_STORE"`
	API          API
	Metrics      Metrics
}

type API struct {
	Port string `env:"API_PORT"`
}

type Metrics struct {
	// When true, journeys belonging to designated test accounts are excluded from every
	// count and sum.
	ExcludeTestRecords bool `env:"EXCLUDE_TEST_RECORDS" envDefault:"true"`

	// Budget for ordinary metric queries (stage counts, monetary sums).
	QueryTimeout time.Duration `env:"METRICS_QUERY_TIMEOUT" envDefault:"8s"`
	// Budget for expensive, non-critical queries (merchant breakdown, revenue pivot).
	BreakdownTimeout time.Duration `env:"METRICS_BREAKDOWN_TIMEOUT" envDefault:"3s"`
	// Deadline for a whole metrics request. Must stay below the host environment's hard
	// execution limit, so callers get a degraded payload instead of a cut connection.
	RequestDeadline time.Duration `env:"METRICS_REQUEST_DEADLINE" envDefault:"25s"`
}

type ClickHouse struct {
	Address      string `env:"CLICKHOUSE_ADDRESS"`
	DatabaseName string `env:"CLICKHOUSE_DB_NAME"`
	Username     string `env:"CLICKHOUSE_USERNAME"`
	Password     string `env:"CLICKHOUSE_PASSWORD"`
	Debug        bool   `env:"CLICKHOUSE_DEBUG_ENABLED" envDefault:"false"`
}

type Elasticsearch struct {
	Address string `env:"ELASTICSEARCH_ADDRESS"`
	Debug   bool   `env:"ELASTICSEARCH_DEBUG_ENABLED" envDefault:"false"`
}

type SupportedStore string

const (
	StoreClickHouse    SupportedStore = "clickhouse"
	StoreElasticsearch SupportedStore = "elasticsearch"
)

func ReadFromEnv() (Config, error) {
	// A .env file is only expected in local development, so a missing one is not an
	// error.
	_ = godotenv.Load()

	parseOptions := env.Options{RequiredIfNoDef: true}

	var config Config

	if err := env.ParseWithOptions(&config.BaseConfig, parseOptions); err != nil {
		return Config{}, err
	}

	switch config.Store {
	case StoreClickHouse:
		if err := env.ParseWithOptions(&config.ClickHouse, parseOptions); err != nil {
			return Config{}, err
		}
	case StoreElasticsearch:
		if err := env.ParseWithOptions(&config.Elasticsearch, parseOptions); err != nil {
			return Config{}, err
		}
	default:
		err := fmt.Errorf("must be one of: '%s', '%s'", StoreClickHouse, StoreElasticsearch)
		return Config{}, wrap.Errorf(
			err, "unsupported value '%s' for METRICS_STORE in env", config.Store,
		)
	}

	return config, nil
}
