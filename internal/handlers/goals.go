package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/strideapp/stride/internal/goal"
	"github.com/strideapp/stride/internal/models"
	"github.com/strideapp/stride/internal/request"
	"github.com/strideapp/stride/internal/validation"
)

// GoalHandler handles goal CRUD and history requests
type GoalHandler struct {
	goals *goal.Service
}

// NewGoalHandler creates a new goal handler
func NewGoalHandler(goals *goal.Service) *GoalHandler {
	return &GoalHandler{goals: goals}
}

// RegisterRoutes registers goal routes on the given router.
// The router should already have the /goals prefix.
func (h *GoalHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.ListGoals).Methods("GET")
	r.HandleFunc("", h.CreateGoal).Methods("POST")
	r.HandleFunc("/{id}", h.GetGoal).Methods("GET")
	r.HandleFunc("/{id}", h.UpdateGoal).Methods("PATCH")
	r.HandleFunc("/{id}", h.DeleteGoal).Methods("DELETE")
	r.HandleFunc("/{id}/history", h.GetGoalHistory).Methods("GET")
}

const (
	// MaxGoalNameLength mirrors the service-level limit; the validate tag on
	// CreateGoalRequest must stay in step with it
	MaxGoalNameLength = goal.MaxGoalNameLength
	// DefaultPageSize is the default page size for pagination
	DefaultPageSize = 50
	// MaxPageSize is the maximum page size for pagination
	MaxPageSize = 200
)

// CreateGoalRequest represents a create goal request
type CreateGoalRequest struct {
	Name         string          `json:"name" validate:"required,min=1,max=255"`
	TargetValue  decimal.Decimal `json:"target_value" validate:"required"`
	Deadline     string          `json:"deadline" validate:"required"`
	ParentGoalID *uuid.UUID      `json:"parent_goal_id,omitempty"`
}

// UpdateGoalRequest represents an update goal request
type UpdateGoalRequest struct {
	Name            *string          `json:"name,omitempty"`
	TargetValue     *decimal.Decimal `json:"target_value,omitempty"`
	Deadline        *string          `json:"deadline,omitempty"`
	ReflectionNotes *string          `json:"reflection_notes,omitempty"`
}

// ListGoalsResponse represents the paginated response for listing goals
type ListGoalsResponse struct {
	Goals      []*models.Goal `json:"goals"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
	Total      int            `json:"total"`
	TotalPages int            `json:"total_pages"`
}

// parseDeadline accepts a calendar date or a full RFC3339 timestamp; either
// way only the date portion is kept. Deadlines before today (UTC) are
// rejected at the edge; the service itself stays permissive so existing
// overdue goals keep working.
func parseDeadline(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("deadline must be YYYY-MM-DD or RFC3339")
	}
	if goal.DateOnly(t).Before(goal.DateOnly(time.Now())) {
		return time.Time{}, fmt.Errorf("deadline cannot be in the past")
	}
	return t, nil
}

// ListGoals lists goals for the authenticated user with pagination
func (h *GoalHandler) ListGoals(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		if parsed, err := strconv.Atoi(p); err == nil && parsed > 0 {
			page = parsed
		}
	}

	pageSize := DefaultPageSize
	if ps := r.URL.Query().Get("page_size"); ps != "" {
		if parsed, err := strconv.Atoi(ps); err == nil && parsed > 0 {
			pageSize = parsed
			if pageSize > MaxPageSize {
				pageSize = MaxPageSize
			}
		}
	}

	var status *models.GoalStatus
	if s := r.URL.Query().Get("status"); s != "" {
		if err := validation.ValidateGoalStatus(s); err != nil {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
			return
		}
		sEnum := models.GoalStatus(s)
		status = &sEnum
	}

	goals, total, err := h.goals.ListGoals(r.Context(), user.ID, status, page, pageSize)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	totalPages := (total + pageSize - 1) / pageSize
	if totalPages == 0 {
		totalPages = 1
	}

	respondJSON(w, http.StatusOK, ListGoalsResponse{
		Goals:      goals,
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
	})
}

// CreateGoal creates a new goal
func (h *GoalHandler) CreateGoal(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	var req CreateGoalRequest
	if !decodeBody(w, r, &req) {
		return
	}

	deadline, err := parseDeadline(req.Deadline)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	g, err := h.goals.CreateGoal(r.Context(), user.ID, goal.CreateGoalParams{
		Name:         validation.SanitizeText(req.Name),
		TargetValue:  req.TargetValue,
		Deadline:     deadline,
		ParentGoalID: req.ParentGoalID,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, g)
}

// GetGoal returns a goal with its live progress rollup
func (h *GoalHandler) GetGoal(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	goalID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	detail, err := h.goals.GetGoal(r.Context(), user.ID, goalID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, detail)
}

// UpdateGoal applies user edits to a goal
func (h *GoalHandler) UpdateGoal(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	goalID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req UpdateGoalRequest
	if !decodeBody(w, r, &req) {
		return
	}

	params := goal.UpdateGoalParams{
		TargetValue:     req.TargetValue,
		ReflectionNotes: req.ReflectionNotes,
	}
	if req.Name != nil {
		name := validation.SanitizeText(*req.Name)
		if name == "" || len(name) > MaxGoalNameLength {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", fmt.Sprintf("Name must be 1-%d characters", MaxGoalNameLength))
			return
		}
		params.Name = &name
	}
	if req.Deadline != nil {
		deadline, err := parseDeadline(*req.Deadline)
		if err != nil {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
			return
		}
		params.Deadline = &deadline
	}

	g, err := h.goals.UpdateGoal(r.Context(), user.ID, goalID, params)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, g)
}

// DeleteGoal deletes a goal that has no recorded progress
func (h *GoalHandler) DeleteGoal(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	goalID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.goals.DeleteGoal(r.Context(), user.ID, goalID); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// GetGoalHistory returns the goal's full iteration chain, oldest first
func (h *GoalHandler) GetGoalHistory(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	goalID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	chain, err := h.goals.GetGoalHistory(r.Context(), user.ID, goalID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"chain": chain})
}

// pathUUID parses a UUID path variable, writing a 400 on failure
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", fmt.Sprintf("Invalid %s", name))
		return uuid.Nil, false
	}
	return id, true
}

// decodeBody decodes and validates a JSON request body, writing the error
// response itself when decoding or validation fails.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if maxBytesErr, ok := err.(*http.MaxBytesError); ok {
			respondJSONError(w, http.StatusRequestEntityTooLarge, "Request Entity Too Large", fmt.Sprintf("Request body exceeds maximum size of %d bytes", maxBytesErr.Limit))
			return false
		}
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid request body")
		return false
	}

	if err := validation.Validate.Struct(dst); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok && len(validationErrors) > 0 {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", fmt.Sprintf("Validation failed: %s", validationErrors[0].Error()))
			return false
		}
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Validation failed")
		return false
	}

	return true
}
