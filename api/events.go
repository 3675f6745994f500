package api

import (
	"net/http"
	"time"

	"github.com/meridianlabs/ferry/event"
	"github.com/meridianlabs/ferry/id"
)

// publishEventRequest is the body for POST /events.
type publishEventRequest struct {
	// ID is optional; supplying one makes the publish idempotent.
	ID         string    `json:"id,omitempty"`
	Type       string    `json:"type"`
	Data       any       `json:"data"`
	OccurredAt time.Time `json:"occurred_at,omitempty"`
}

func (h *Handler) publishEvent(w http.ResponseWriter, r *http.Request) {
	var req publishEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Type == "" {
		writeError(w, http.StatusBadRequest, "type is required")
		return
	}

	evt := &event.Event{
		Type:       req.Type,
		Data:       req.Data,
		OccurredAt: req.OccurredAt,
	}
	if req.ID != "" {
		evtID, err := id.ParseEventID(req.ID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid event id")
			return
		}
		evt.ID = evtID
	}

	if err := h.ferry.Publish(r.Context(), evt); err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"event_id": evt.ID.String()})
}

func (h *Handler) getEvent(w http.ResponseWriter, r *http.Request) {
	evtID, err := id.ParseEventID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	evt, err := h.ferry.Store().GetEvent(r.Context(), evtID)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, evt)
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	opts := event.ListOpts{
		Offset: queryInt(r, "offset", 0),
		Limit:  queryInt(r, "limit", 50),
		Type:   queryParam(r, "type"),
	}
	if v := queryParam(r, "from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from timestamp")
			return
		}
		opts.From = &t
	}
	if v := queryParam(r, "to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to timestamp")
			return
		}
		opts.To = &t
	}

	events, err := h.ferry.Store().ListEvents(r.Context(), opts)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

func (h *Handler) listTasksByEvent(w http.ResponseWriter, r *http.Request) {
	evtID, err := id.ParseEventID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	tasks, err := h.ferry.Store().ListTasksByEvent(r.Context(), evtID)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks, "count": len(tasks)})
}
