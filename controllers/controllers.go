package controllers

import (
	"encoding/json"
	"net/http"

	"blindshake_server/apperrors"
)

// HealthCheckHandler provides a basic health check
func HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSONResponse(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// WelcomeHandler provides a welcome message
func WelcomeHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSONResponse(w, http.StatusOK, map[string]string{"message": "Welcome to BlindShake."})
}

// WriteJSONResponse writes payload as JSON with the given status.
func WriteJSONResponse(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// WriteError writes the error envelope with the status for err's code.
func WriteError(w http.ResponseWriter, err error) {
	WriteJSONResponse(w, apperrors.HTTPStatus(err), apperrors.ToBody(err))
}

// decodeBody decodes an optional JSON body into dst. An empty body leaves
// dst untouched.
func decodeBody(r *http.Request, dst interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperrors.InvalidArg("invalid request body")
	}
	return nil
}
