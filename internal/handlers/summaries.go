package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/strideapp/stride/internal/request"
	"github.com/strideapp/stride/internal/summary"
)

// SummaryHandler handles retrospective summary requests
type SummaryHandler struct {
	summaries *summary.Service
}

// NewSummaryHandler creates a new summary handler
func NewSummaryHandler(summaries *summary.Service) *SummaryHandler {
	return &SummaryHandler{summaries: summaries}
}

// RegisterRoutes registers summary routes on the given router.
// The router should already have the /goals prefix.
func (h *SummaryHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/{id}/summary", h.GenerateSummary).Methods("POST")
	r.HandleFunc("/{id}/summary", h.UpdateSummary).Methods("PATCH")
}

// UpdateSummaryRequest represents a manual summary edit
type UpdateSummaryRequest struct {
	Summary string `json:"summary" validate:"required,min=1,max=2000"`
}

// GenerateSummary generates a retrospective for a finished goal. Pass
// ?force=true to regenerate over an existing summary.
func (h *SummaryHandler) GenerateSummary(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	goalID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	force := r.URL.Query().Get("force") == "true"

	g, err := h.summaries.Generate(r.Context(), user.ID, goalID, force)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, g)
}

// UpdateSummary replaces the summary text on a finished goal
func (h *SummaryHandler) UpdateSummary(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	goalID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req UpdateSummaryRequest
	if !decodeBody(w, r, &req) {
		return
	}

	g, err := h.summaries.UpdateSummary(r.Context(), user.ID, goalID, req.Summary)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, g)
}
