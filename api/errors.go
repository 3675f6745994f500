package api

import (
	"errors"
	"net/http"

	"github.com/meridianlabs/ferry"
	"github.com/meridianlabs/ferry/endpoint"
)

// handleError maps domain errors to HTTP responses.
func handleError(w http.ResponseWriter, err error) {
	var ve *endpoint.ValidationError

	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Error())
	case errors.Is(err, ferry.ErrEndpointNotFound),
		errors.Is(err, ferry.ErrEventNotFound),
		errors.Is(err, ferry.ErrTaskNotFound),
		errors.Is(err, ferry.ErrEventTypeNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ferry.ErrTaskNotRetryable),
		errors.Is(err, ferry.ErrEndpointDisabled),
		errors.Is(err, ferry.ErrDuplicateEvent):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ferry.ErrEventTypeDeprecated):
		writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, ferry.ErrPayloadValidationFailed):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
