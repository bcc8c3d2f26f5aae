package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/strideapp/stride/internal/goal"
	"github.com/strideapp/stride/internal/models"
	"github.com/strideapp/stride/internal/request"
	"github.com/strideapp/stride/internal/validation"
)

// LifecycleHandler handles goal state transitions: abandon, complete,
// retry, continue and the automatic status sync pass.
type LifecycleHandler struct {
	goals *goal.Service
}

// NewLifecycleHandler creates a new lifecycle handler
func NewLifecycleHandler(goals *goal.Service) *LifecycleHandler {
	return &LifecycleHandler{goals: goals}
}

// RegisterRoutes registers lifecycle routes on the given router.
// The router should already have the /goals prefix.
func (h *LifecycleHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/sync", h.SyncStatuses).Methods("POST")
	r.HandleFunc("/{id}/abandon", h.AbandonGoal).Methods("POST")
	r.HandleFunc("/{id}/complete", h.CompleteGoal).Methods("POST")
	r.HandleFunc("/{id}/retry", h.RetryGoal).Methods("POST")
	r.HandleFunc("/{id}/continue", h.ContinueGoal).Methods("POST")
}

// AbandonGoalRequest represents an abandon goal request
type AbandonGoalRequest struct {
	Reason string `json:"reason" validate:"required,min=1,max=1000"`
}

// IterationRequest represents a retry or continue request
type IterationRequest struct {
	Name        string          `json:"name,omitempty"`
	TargetValue decimal.Decimal `json:"target_value" validate:"required"`
	Deadline    string          `json:"deadline" validate:"required"`
}

// SyncRequest represents a status sync request, optionally scoped to ids
type SyncRequest struct {
	GoalIDs []uuid.UUID `json:"goal_ids,omitempty"`
}

// AbandonGoal abandons an active goal with a required reason
func (h *LifecycleHandler) AbandonGoal(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	goalID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req AbandonGoalRequest
	if !decodeBody(w, r, &req) {
		return
	}

	g, err := h.goals.Abandon(r.Context(), user.ID, goalID, validation.SanitizeText(req.Reason))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, g)
}

// CompleteGoal marks an active goal as successfully completed, provided its
// summed progress has reached the target
func (h *LifecycleHandler) CompleteGoal(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	goalID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	g, err := h.goals.Complete(r.Context(), user.ID, goalID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, g)
}

// RetryGoal spawns a new iteration from a failed or abandoned goal
func (h *LifecycleHandler) RetryGoal(w http.ResponseWriter, r *http.Request) {
	h.iterate(w, r, h.goals.Retry)
}

// ContinueGoal spawns a new iteration from a successfully completed goal
func (h *LifecycleHandler) ContinueGoal(w http.ResponseWriter, r *http.Request) {
	h.iterate(w, r, h.goals.Continue)
}

func (h *LifecycleHandler) iterate(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, userID, goalID uuid.UUID, params goal.IterationParams) (*models.Goal, error)) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	goalID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req IterationRequest
	if !decodeBody(w, r, &req) {
		return
	}

	deadline, err := parseDeadline(req.Deadline)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	g, err := op(r.Context(), user.ID, goalID, goal.IterationParams{
		Name:        validation.SanitizeText(req.Name),
		TargetValue: req.TargetValue,
		Deadline:    deadline,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, g)
}

// SyncStatuses applies automatic status transitions to the caller's active
// goals. An empty body syncs all of them, bounded to the batch limit.
func (h *LifecycleHandler) SyncStatuses(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	var req SyncRequest
	if r.ContentLength > 0 {
		if !decodeBody(w, r, &req) {
			return
		}
	}

	result, err := h.goals.SyncStatuses(r.Context(), user.ID, req.GoalIDs)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}
