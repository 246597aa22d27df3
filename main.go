package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"hermannm.dev/devlog"
	"hermannm.dev/devlog/log"
	"loanmetrics/api"
	"loanmetrics/config"
	"loanmetrics/db"
	"loanmetrics/db/clickhouse"
	"loanmetrics/db/elasticsearch"
)

func main() {
	logHandler := devlog.NewHandler(os.Stdout, &devlog.Options{Level: slog.LevelDebug})
	slog.SetDefault(slog.New(logHandler))

	conf, err := config.ReadFromEnv()
	if err != nil {
		log.ErrorCause(err, "failed to read config from env")
		os.Exit(1)
	}

	store, err := initializeStore(conf)
	if err != nil {
		log.ErrorCause(err, "failed to initialize metrics store")
		os.Exit(1)
	}
	defer store.Close()

	metricsAPI := api.NewMetricsAPI(store, http.NewServeMux(), conf)

	log.Infof("Listening on port %s...", conf.API.Port)
	if err := metricsAPI.ListenAndServe(); err != nil {
		log.ErrorCause(err, "server stopped")
		os.Exit(1)
	}
}

func initializeStore(conf config.Config) (db.MetricsStore, error) {
	switch conf.Store {
	case config.StoreClickHouse:
		store, err := clickhouse.NewClickHouseStore(conf)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.StoreElasticsearch:
		store, err := elasticsearch.NewElasticsearchStore(conf)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported metrics store '%s'", conf.Store)
	}
}
