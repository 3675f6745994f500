package api

import (
	"net/http"

	"github.com/meridianlabs/ferry/catalog"
)

// createEventTypeRequest is the body for POST /event-types.
type createEventTypeRequest struct {
	catalog.Definition
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (h *Handler) createEventType(w http.ResponseWriter, r *http.Request) {
	var req createEventTypeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	var opts []catalog.RegisterOption
	if req.Metadata != nil {
		opts = append(opts, catalog.WithMetadata(req.Metadata))
	}

	et, err := h.ferry.RegisterEventType(r.Context(), req.Definition, opts...)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, et)
}

func (h *Handler) getEventType(w http.ResponseWriter, r *http.Request) {
	et, err := h.ferry.Catalog().GetType(r.Context(), r.PathValue("name"))
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, et)
}

func (h *Handler) listEventTypes(w http.ResponseWriter, r *http.Request) {
	opts := catalog.ListOpts{
		Offset:            queryInt(r, "offset", 0),
		Limit:             queryInt(r, "limit", 50),
		Group:             queryParam(r, "group"),
		IncludeDeprecated: queryParam(r, "include_deprecated") == "true",
	}

	types, err := h.ferry.Catalog().ListTypes(r.Context(), opts)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"event_types": types, "count": len(types)})
}

func (h *Handler) deleteEventType(w http.ResponseWriter, r *http.Request) {
	if err := h.ferry.Catalog().DeleteType(r.Context(), r.PathValue("name")); err != nil {
		handleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
