package api

import (
	"net/http"

	"github.com/meridianlabs/ferry/delivery"
	"github.com/meridianlabs/ferry/id"
	"github.com/meridianlabs/ferry/ledger"
)

func (h *Handler) getTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := id.ParseTaskID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}

	t, err := h.ferry.Store().GetTask(r.Context(), taskID)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) retryTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := id.ParseTaskID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}

	t, err := h.ferry.Retry(r.Context(), taskID)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, t)
}

func (h *Handler) listTaskAttempts(w http.ResponseWriter, r *http.Request) {
	taskID, err := id.ParseTaskID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}

	attempts, err := h.ferry.Ledger().ListByTask(r.Context(), taskID)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"attempts": attempts, "count": len(attempts)})
}

func (h *Handler) listTasksByEndpoint(w http.ResponseWriter, r *http.Request) {
	epID, err := id.ParseEndpointID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid endpoint id")
		return
	}

	opts := delivery.ListOpts{
		Offset: queryInt(r, "offset", 0),
		Limit:  queryInt(r, "limit", 50),
	}
	if s := queryParam(r, "state"); s != "" {
		state := delivery.State(s)
		switch state {
		case delivery.StateQueued, delivery.StateSending, delivery.StateSucceeded,
			delivery.StateRetrying, delivery.StateFailed:
		default:
			writeError(w, http.StatusBadRequest, "unknown state: "+s)
			return
		}
		opts.State = &state
	}

	tasks, err := h.ferry.Store().ListTasksByEndpoint(r.Context(), epID, opts)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks, "count": len(tasks)})
}

func (h *Handler) listEndpointAttempts(w http.ResponseWriter, r *http.Request) {
	epID, err := id.ParseEndpointID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid endpoint id")
		return
	}

	opts := ledger.ListOpts{
		Offset: queryInt(r, "offset", 0),
		Limit:  queryInt(r, "limit", 50),
	}

	attempts, err := h.ferry.Ledger().ListByEndpoint(r.Context(), epID, opts)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"attempts": attempts, "count": len(attempts)})
}
