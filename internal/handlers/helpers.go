package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/strideapp/stride/internal/goal"
)

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]any{
		"success":   true,
		"data":      data,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// sanitizeErrorMessage trims error messages before they reach the client
func sanitizeErrorMessage(message string) string {
	if len(message) > 200 {
		return message[:200] + "..."
	}
	return message
}

// respondJSONError sends an error JSON response
func respondJSONError(w http.ResponseWriter, status int, errorType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]any{
		"success":   false,
		"error":     errorType,
		"message":   sanitizeErrorMessage(message),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// respondServiceError maps lifecycle error codes to HTTP statuses. The code
// set is closed so the mapping is exhaustive; anything unclassified reports
// as a storage failure.
func respondServiceError(w http.ResponseWriter, err error) {
	code := goal.CodeOf(err)
	switch code {
	case goal.CodeNotFound:
		respondJSONError(w, http.StatusNotFound, "Not Found", err.Error())
	case goal.CodeInvalidState, goal.CodeConflict:
		respondJSONError(w, http.StatusConflict, string(code), err.Error())
	case goal.CodeValidationFailed:
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
	case goal.CodePreconditionFailed:
		respondJSONError(w, http.StatusPreconditionFailed, string(code), err.Error())
	case goal.CodeRateLimited:
		respondJSONError(w, http.StatusTooManyRequests, "Too Many Requests", err.Error())
	case goal.CodeExternalService:
		respondJSONError(w, http.StatusBadGateway, "Bad Gateway", err.Error())
	default:
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Storage failure")
	}
}
