package api

import (
	"fmt"
	"net/http"

	"loanmetrics/config"
	"loanmetrics/db"
	"loanmetrics/funnel"
)

type MetricsAPI struct {
	aggregator funnel.Aggregator
	store      db.MetricsStore
	router     *http.ServeMux
	config     config.API
}

func NewMetricsAPI(
	store db.MetricsStore,
	router *http.ServeMux,
	config config.Config,
) MetricsAPI {
	api := MetricsAPI{
		aggregator: funnel.NewAggregator(store, config.Metrics),
		store:      store,
		router:     router,
		config:     config.API,
	}

	api.router.HandleFunc("/metrics", api.GetMetrics)
	api.router.HandleFunc("/health", api.GetHealth)

	return api
}

func (api MetricsAPI) ListenAndServe() error {
	return http.ListenAndServe(fmt.Sprintf(":%s", api.config.Port), api.router)
}
