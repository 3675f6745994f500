package api

import (
	"context"
	"net/http"

	"github.com/meridianlabs/ferry/endpoint"
	"github.com/meridianlabs/ferry/id"
)

// endpointResponse wraps an endpoint together with its signing secret.
// The secret is only included on create and rotation; reads omit it.
type endpointResponse struct {
	*endpoint.Endpoint
	Secret string `json:"secret,omitempty"`
}

func (h *Handler) createEndpoint(w http.ResponseWriter, r *http.Request) {
	var in endpoint.Input
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	ep, err := h.ferry.Endpoints().Create(r.Context(), in)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, endpointResponse{Endpoint: ep, Secret: ep.Secret})
}

func (h *Handler) getEndpoint(w http.ResponseWriter, r *http.Request) {
	epID, err := id.ParseEndpointID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid endpoint id")
		return
	}

	ep, err := h.ferry.Endpoints().Get(r.Context(), epID)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ep)
}

func (h *Handler) listEndpoints(w http.ResponseWriter, r *http.Request) {
	opts := endpoint.ListOpts{
		Offset: queryInt(r, "offset", 0),
		Limit:  queryInt(r, "limit", 50),
	}
	if s := queryParam(r, "status"); s != "" {
		status := endpoint.Status(s)
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, "unknown status: "+s)
			return
		}
		opts.Status = &status
	}

	eps, err := h.ferry.Endpoints().List(r.Context(), queryParam(r, "owner_id"), opts)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"endpoints": eps, "count": len(eps)})
}

func (h *Handler) updateEndpoint(w http.ResponseWriter, r *http.Request) {
	epID, err := id.ParseEndpointID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid endpoint id")
		return
	}

	var in endpoint.Input
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	ep, err := h.ferry.Endpoints().Update(r.Context(), epID, in)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ep)
}

func (h *Handler) deleteEndpoint(w http.ResponseWriter, r *http.Request) {
	epID, err := id.ParseEndpointID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid endpoint id")
		return
	}

	if err := h.ferry.Endpoints().Delete(r.Context(), epID); err != nil {
		handleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) pauseEndpoint(w http.ResponseWriter, r *http.Request) {
	h.setEndpointStatus(w, r, h.ferry.Endpoints().Pause)
}

func (h *Handler) resumeEndpoint(w http.ResponseWriter, r *http.Request) {
	h.setEndpointStatus(w, r, h.ferry.Endpoints().Resume)
}

func (h *Handler) disableEndpoint(w http.ResponseWriter, r *http.Request) {
	h.setEndpointStatus(w, r, h.ferry.Endpoints().Disable)
}

func (h *Handler) setEndpointStatus(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, epID id.ID) error) {
	epID, err := id.ParseEndpointID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid endpoint id")
		return
	}

	if err := fn(r.Context(), epID); err != nil {
		handleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) rotateSecret(w http.ResponseWriter, r *http.Request) {
	epID, err := id.ParseEndpointID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid endpoint id")
		return
	}

	secret, err := h.ferry.Endpoints().RotateSecret(r.Context(), epID)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"secret": secret})
}

func (h *Handler) testEndpoint(w http.ResponseWriter, r *http.Request) {
	epID, err := id.ParseEndpointID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid endpoint id")
		return
	}

	rec, err := h.ferry.TestDelivery(r.Context(), epID)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) pauseAllEndpoints(w http.ResponseWriter, r *http.Request) {
	h.bulkStatus(w, r, h.ferry.Endpoints().PauseAll)
}

func (h *Handler) resumeAllEndpoints(w http.ResponseWriter, r *http.Request) {
	h.bulkStatus(w, r, h.ferry.Endpoints().ResumeAll)
}

func (h *Handler) bulkStatus(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, ownerID string) (int, error)) {
	ownerID := queryParam(r, "owner_id")
	if ownerID == "" {
		writeError(w, http.StatusBadRequest, "owner_id is required")
		return
	}

	count, err := fn(r.Context(), ownerID)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"updated": count})
}
