package api

import (
	"net/http"

	"github.com/meridianlabs/ferry/delivery"
	"github.com/meridianlabs/ferry/endpoint"
	"github.com/meridianlabs/ferry/ledger"
)

// statsResponse is the body for GET /stats.
type statsResponse struct {
	Endpoints            map[string]int   `json:"endpoints"`
	Tasks                map[string]int64 `json:"tasks"`
	TotalDeliveries      int64            `json:"total_deliveries"`
	SuccessfulDeliveries int64            `json:"successful_deliveries"`
	FailedDeliveries     int64            `json:"failed_deliveries"`
	SuccessRate          float64          `json:"success_rate"`
	AvgResponseTimeMs    float64          `json:"avg_response_time_ms"`
}

// recentAttemptSample bounds how many ledger records per endpoint feed the
// average response time.
const recentAttemptSample = 20

func (h *Handler) getStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp := statsResponse{
		Endpoints: make(map[string]int),
		Tasks:     make(map[string]int64),
	}

	eps, err := h.ferry.Endpoints().List(ctx, queryParam(r, "owner_id"), endpoint.ListOpts{})
	if err != nil {
		handleError(w, err)
		return
	}

	var latencySum, latencyCount int64
	for _, ep := range eps {
		resp.Endpoints[string(ep.Status)]++
		resp.TotalDeliveries += ep.TotalDeliveries
		resp.SuccessfulDeliveries += ep.SuccessfulDeliveries
		resp.FailedDeliveries += ep.FailedDeliveries

		recent, err := h.ferry.Ledger().ListByEndpoint(ctx, ep.ID, ledger.ListOpts{Limit: recentAttemptSample})
		if err != nil {
			handleError(w, err)
			return
		}
		for _, rec := range recent {
			if rec.ResponseTimeMs > 0 {
				latencySum += int64(rec.ResponseTimeMs)
				latencyCount++
			}
		}
	}

	if done := resp.SuccessfulDeliveries + resp.FailedDeliveries; done > 0 {
		resp.SuccessRate = float64(resp.SuccessfulDeliveries) / float64(done)
	}
	if latencyCount > 0 {
		resp.AvgResponseTimeMs = float64(latencySum) / float64(latencyCount)
	}

	for _, state := range []delivery.State{
		delivery.StateQueued,
		delivery.StateSending,
		delivery.StateRetrying,
		delivery.StateSucceeded,
		delivery.StateFailed,
	} {
		n, err := h.ferry.Store().CountTasksByState(ctx, state)
		if err != nil {
			handleError(w, err)
			return
		}
		resp.Tasks[string(state)] = n
	}

	writeJSON(w, http.StatusOK, resp)
}
