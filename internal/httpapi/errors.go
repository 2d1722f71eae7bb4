package httpapi

import (
	"encoding/json"
	"net/http"

	"tunerd/internal/identity"
	"tunerd/internal/store"
	"tunerd/internal/trainer"
	"tunerd/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusForError maps domain errors onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case store.IsNotFound(err),
		trainer.IsModelNotFound(err),
		trainer.IsDatasetNotFound(err):
		return http.StatusNotFound
	case trainer.IsJobActive(err), trainer.IsNoActiveJob(err):
		return http.StatusConflict
	case trainer.IsDatasetLoadFailed(err), identity.IsNoUpstreamIdentity(err):
		return http.StatusBadRequest
	case trainer.IsProcessError(err):
		return http.StatusBadGateway
	default:
		if he, ok := err.(HTTPError); ok {
			return he.StatusCode()
		}
		return http.StatusInternalServerError
	}
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

// writeDomainError maps err and writes it as JSON.
func writeDomainError(w http.ResponseWriter, err error) {
	writeJSONError(w, statusForError(err), err.Error())
}
