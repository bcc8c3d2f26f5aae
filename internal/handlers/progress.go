package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/strideapp/stride/internal/goal"
	"github.com/strideapp/stride/internal/models"
	"github.com/strideapp/stride/internal/request"
)

// ProgressHandler handles progress entry requests
type ProgressHandler struct {
	goals *goal.Service
}

// NewProgressHandler creates a new progress handler
func NewProgressHandler(goals *goal.Service) *ProgressHandler {
	return &ProgressHandler{goals: goals}
}

// RegisterRoutes registers progress routes on the given router.
// The router should already have the /goals prefix.
func (h *ProgressHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/{id}/progress", h.ListProgress).Methods("GET")
	r.HandleFunc("/{id}/progress", h.AddProgress).Methods("POST")
	r.HandleFunc("/{id}/progress/{entry_id}", h.UpdateProgress).Methods("PATCH")
	r.HandleFunc("/{id}/progress/{entry_id}", h.DeleteProgress).Methods("DELETE")
}

// ProgressRequest represents a create or update progress entry request
type ProgressRequest struct {
	Value decimal.Decimal `json:"value" validate:"required"`
	Notes *string         `json:"notes,omitempty"`
}

// ListProgress lists a goal's progress entries, oldest first
func (h *ProgressHandler) ListProgress(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	goalID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	entries, err := h.goals.ListProgress(r.Context(), user.ID, goalID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if entries == nil {
		entries = []*models.ProgressEntry{}
	}

	respondJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// AddProgress records a progress entry against an active goal
func (h *ProgressHandler) AddProgress(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	goalID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req ProgressRequest
	if !decodeBody(w, r, &req) {
		return
	}

	entry, err := h.goals.AddProgress(r.Context(), user.ID, goalID, goal.ProgressParams{
		Value: req.Value,
		Notes: req.Notes,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, entry)
}

// UpdateProgress edits an entry while the owning goal is still active
func (h *ProgressHandler) UpdateProgress(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	goalID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	entryID, ok := pathUUID(w, r, "entry_id")
	if !ok {
		return
	}

	var req ProgressRequest
	if !decodeBody(w, r, &req) {
		return
	}

	entry, err := h.goals.UpdateProgress(r.Context(), user.ID, goalID, entryID, goal.ProgressParams{
		Value: req.Value,
		Notes: req.Notes,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, entry)
}

// DeleteProgress removes an entry while the owning goal is still active
func (h *ProgressHandler) DeleteProgress(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	goalID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	entryID, ok := pathUUID(w, r, "entry_id")
	if !ok {
		return
	}

	if err := h.goals.DeleteProgress(r.Context(), user.ID, goalID, entryID); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"deleted": true})
}
