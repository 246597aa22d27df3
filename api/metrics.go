package api

import (
	"net/http"
	"time"

	"loanmetrics/funnel"
)

// Expects:
//   - optional query parameters 'from' and 'to': ISO dates bounding the metrics, both
//     or neither
//
// Returns:
//   - JSON-encoded funnel.MetricsPayload; status 503 when the whole batch failed (the
//     payload is still well-formed, with every metric null and the error field set)
func (api MetricsAPI) GetMetrics(res http.ResponseWriter, req *http.Request) {
	dateRange, err := funnel.ParseDateRange(
		req.URL.Query().Get("from"),
		req.URL.Query().Get("to"),
	)
	if err != nil {
		sendClientError(res, err, "invalid date range in request")
		return
	}

	metrics := api.aggregator.GatherMetrics(req.Context(), dateRange)
	payload := funnel.AssemblePayload(metrics, time.Now().UTC())

	statusCode := http.StatusOK
	if payload.Error != "" {
		statusCode = http.StatusServiceUnavailable
	}

	sendJSON(res, statusCode, payload)
}

// Returns 200 when the metrics store is reachable, 503 otherwise.
func (api MetricsAPI) GetHealth(res http.ResponseWriter, req *http.Request) {
	type healthResponse struct {
		Status string `json:"status"`
		Error  string `json:"error,omitempty"`
	}

	if err := api.store.Ping(req.Context()); err != nil {
		sendJSON(
			res,
			http.StatusServiceUnavailable,
			healthResponse{Status: "unreachable", Error: err.Error()},
		)
		return
	}

	sendJSON(res, http.StatusOK, healthResponse{Status: "ok"})
}
