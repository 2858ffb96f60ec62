package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"chemviz/internal/api"
	"chemviz/internal/config"
	"chemviz/internal/dashboard"
)

// Version is set at build time
var Version = "dev"

// JSONResponse sends a JSON response
func JSONResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		config.Logger.Warnf("⚠️  Failed to encode JSON response: %v", err)
	}
}

// JSONError sends a JSON error response
func JSONError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// backendError maps a dashboard operation error onto an HTTP response.
func backendError(w http.ResponseWriter, err error) {
	var res api.Result
	switch {
	case errors.Is(err, api.ErrAuthExpired):
		JSONError(w, "Session expired. Please sign in again.", http.StatusUnauthorized)
	case errors.Is(err, dashboard.ErrNoReport):
		JSONError(w, "No report loaded.", http.StatusConflict)
	case errors.As(err, &res):
		JSONError(w, res.Message(), http.StatusBadGateway)
	default:
		JSONError(w, err.Error(), http.StatusInternalServerError)
	}
}
