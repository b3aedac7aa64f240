package utils

import (
	"encoding/json"
	"errors"
	"net/http"

	"farmiot/internal/models"

	log "github.com/sirupsen/logrus"
)

// DegradedWarning is sent with reads served empty because the time-series
// store failed.
const DegradedWarning = `199 farmiot "time-series store unavailable"`

// RespondWithError sends a JSON error response using the APIError model.
func RespondWithError(writer http.ResponseWriter, apiErr models.APIError) {
	RespondWithJSON(writer, apiErr.StatusCode, apiErr)
}

// RespondWithJSON sends a JSON response with the given status code.
func RespondWithJSON(writer http.ResponseWriter, statusCode int, payload interface{}) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(statusCode)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(writer).Encode(payload); err != nil {
		log.Printf("Failed to encode JSON response: %v", err)
	}
}

// RespondDegraded answers 200 with an empty payload and the degraded
// warning header.
func RespondDegraded(writer http.ResponseWriter, empty interface{}) {
	writer.Header().Set("Warning", DegradedWarning)
	RespondWithJSON(writer, http.StatusOK, empty)
}

// APIErrorFrom maps an error onto the status and code the API reports.
// Upstream details stay in the logs; the client only sees the class.
func APIErrorFrom(err error) models.APIError {
	switch {
	case errors.Is(err, models.ErrInvalidRegistrationCode):
		return models.NewAPIError(models.ErrorCodeInvalidRegistrationCode, "Invalid or expired registration code", nil, http.StatusBadRequest)
	case errors.Is(err, models.ErrValidation):
		return models.NewAPIError(models.ErrorCodeValidationFailed, err.Error(), nil, http.StatusBadRequest)
	case errors.Is(err, models.ErrConflict):
		return models.NewAPIError(models.ErrorCodeDuplicateResource, err.Error(), nil, http.StatusBadRequest)
	case errors.Is(err, models.ErrNotFound):
		return models.NewAPIError(models.ErrorCodeResourceNotFound, err.Error(), nil, http.StatusBadRequest)
	case errors.Is(err, models.ErrAuthenticationGap):
		return models.NewAPIError(models.ErrorCodeUpstreamPermissionDenied, "Upstream store denied access; check service credentials", nil, http.StatusInternalServerError)
	case errors.Is(err, models.ErrUpstreamTimeout):
		return models.NewAPIError(models.ErrorCodeUpstreamTimeout, "Upstream store timed out, retry later", nil, http.StatusServiceUnavailable)
	case errors.Is(err, models.ErrUpstreamUnavailable):
		return models.NewAPIError(models.ErrorCodeUpstreamUnavailable, "Upstream store unavailable", nil, http.StatusInternalServerError)
	default:
		return models.NewAPIError(models.ErrorCodeInternalServerError, "Internal server error", nil, http.StatusInternalServerError)
	}
}

// MissingUser is the response for requests without X-User-ID.
func MissingUser() models.APIError {
	return models.NewAPIError(models.ErrorCodeUnauthorized, "X-User-ID header is required", nil, http.StatusUnauthorized)
}
