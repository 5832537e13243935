package handler

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"
	"time"

	"dicedecision/internal/domain"
	"dicedecision/internal/middleware"
	"dicedecision/internal/service"
	"dicedecision/pkg/errors"
	"dicedecision/pkg/logger"

	"github.com/go-chi/chi/v5"
)

// IdempotencyKeyHeader lets a client retry a reroll safely
const IdempotencyKeyHeader = middleware.IdempotencyKeyHeader

type DecisionHandler struct {
	decisions   *service.DecisionService
	idempotency service.IdempotencyStore
	events      service.EventBacklog
	logger      *logger.Logger
}

// NewDecisionHandler creates the decision endpoints. idempotency may be nil.
func NewDecisionHandler(decisions *service.DecisionService, idempotency service.IdempotencyStore, logger *logger.Logger) *DecisionHandler {
	return &DecisionHandler{
		decisions:   decisions,
		idempotency: idempotency,
		logger:      logger,
	}
}

// UseEvents enables the chat event backlog endpoint
func (h *DecisionHandler) UseEvents(events service.EventBacklog) {
	h.events = events
}

// Routes mounts the decision API on r
func (h *DecisionHandler) Routes(r chi.Router) {
	r.Route("/groups/{groupId}/decisions", func(r chi.Router) {
		r.Post("/", h.CreateDecision)
		r.Get("/", h.ListDecisions)
		r.Get("/open", h.GetOpenDecision)
		r.Get("/status", h.GetOpenStatus)
		r.Get("/events", h.ListEvents)
	})
	r.Route("/decisions/{decisionId}", func(r chi.Router) {
		r.Get("/", h.GetDecision)
		r.Post("/votes", h.ToggleVote)
		r.Post("/reroll", h.RerollDecision)
	})
}

// CreateDecision handles POST /api/v1/groups/{groupId}/decisions
func (h *DecisionHandler) CreateDecision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	groupID := chi.URLParam(r, "groupId")

	var req domain.CreateDecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, errors.NewValidationError("Invalid request body", nil))
		return
	}
	if !req.Category.Valid() {
		h.respondError(w, r, errors.NewValidationError("Unknown decision category", map[string]interface{}{
			"category": req.Category,
			"allowed":  domain.Categories,
		}))
		return
	}

	d, err := h.decisions.CreateDecision(ctx, groupID, middleware.ActorFromContext(ctx), req.Category)
	if err != nil {
		if stderrors.Is(err, domain.ErrOpenDecisionExists) {
			h.respondOpenExists(w, r, groupID, err)
			return
		}
		h.respondError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, d)
}

// ListDecisions handles GET /api/v1/groups/{groupId}/decisions?limit=N
func (h *DecisionHandler) ListDecisions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			h.respondError(w, r, errors.NewValidationError("limit must be a positive integer", nil))
			return
		}
		limit = parsed
	}

	decisions, err := h.decisions.ListDecisions(r.Context(), chi.URLParam(r, "groupId"), limit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"decisions": decisions,
		"count":     len(decisions),
	})
}

// GetOpenDecision handles GET /api/v1/groups/{groupId}/decisions/open
func (h *DecisionHandler) GetOpenDecision(w http.ResponseWriter, r *http.Request) {
	d, err := h.decisions.GetOpenDecision(r.Context(), chi.URLParam(r, "groupId"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if d == nil {
		h.respondError(w, r, errors.NewNotFoundError("No open decision for this group"))
		return
	}

	h.respondJSON(w, http.StatusOK, d)
}

// GetOpenStatus handles GET /api/v1/groups/{groupId}/decisions/status
func (h *DecisionHandler) GetOpenStatus(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupId")
	d, err := h.decisions.GetOpenDecision(r.Context(), groupID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, domain.OpenDecisionStatus{
		GroupID:  groupID,
		HasOpen:  d != nil,
		Decision: d,
	})
}

// ListEvents handles GET /api/v1/groups/{groupId}/decisions/events.
// Without a chat backlog the list is always empty.
func (h *DecisionHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupId")
	events := []service.DecisionEvent{}
	if h.events != nil {
		backlog, err := h.events.Backlog(r.Context(), groupID)
		if err != nil {
			h.respondError(w, r, errors.NewInternalError("Could not read decision events", err))
			return
		}
		events = backlog
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"group_id": groupID,
		"events":   events,
		"count":    len(events),
	})
}

// GetDecision handles GET /api/v1/decisions/{decisionId}
func (h *DecisionHandler) GetDecision(w http.ResponseWriter, r *http.Request) {
	d, err := h.decisions.GetDecision(r.Context(), chi.URLParam(r, "decisionId"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, d)
}

// ToggleVote handles POST /api/v1/decisions/{decisionId}/votes
func (h *DecisionHandler) ToggleVote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	outcome, err := h.decisions.ToggleVote(ctx, chi.URLParam(r, "decisionId"), middleware.ActorFromContext(ctx))
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, outcome)
}

// RerollDecision handles POST /api/v1/decisions/{decisionId}/reroll
func (h *DecisionHandler) RerollDecision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := r.Header.Get(IdempotencyKeyHeader)
	if len(key) > 128 {
		h.respondError(w, r, errors.NewValidationError(IdempotencyKeyHeader+" is too long", nil))
		return
	}

	d, replayed, err := h.decisions.RerollOnce(ctx, h.idempotency, chi.URLParam(r, "decisionId"), middleware.ActorFromContext(ctx), key)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	if replayed {
		w.Header().Set(middleware.ReplayedHeader, "true")
		h.respondJSON(w, http.StatusOK, d)
		return
	}
	h.respondJSON(w, http.StatusCreated, d)
}

// respondOpenExists returns the 409 with the group's live decision attached,
// so the client can show it instead of creating a duplicate
func (h *DecisionHandler) respondOpenExists(w http.ResponseWriter, r *http.Request, groupID string, cause error) {
	appErr := errors.FromDecisionError(cause)
	existing, err := h.decisions.GetOpenDecision(r.Context(), groupID)
	if err != nil {
		h.logger.WithError(err).Warn("Failed to load existing open decision")
	} else if existing != nil {
		appErr = &errors.AppError{
			Type:       appErr.Type,
			Message:    appErr.Message,
			StatusCode: appErr.StatusCode,
			Internal:   cause,
			Details:    map[string]interface{}{"decision": existing},
		}
	}
	h.respondError(w, r, appErr)
}

func (h *DecisionHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *DecisionHandler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := errors.FromDecisionError(err)

	log := h.logger.WithError(err).WithFields(map[string]interface{}{
		"path":   r.URL.Path,
		"status": appErr.StatusCode,
	})
	if appErr.StatusCode >= http.StatusInternalServerError {
		log.Error("Request failed")
	} else {
		log.Debug("Request rejected")
	}

	response := &errors.ErrorResponse{}
	response.Error.Type = appErr.Type
	response.Error.Message = appErr.Message
	response.Error.Retryable = appErr.Retryable
	response.Error.Details = appErr.Details
	response.Error.RequestID = middleware.RequestIDFromContext(r.Context())
	response.Error.Timestamp = time.Now().UTC().Format(time.RFC3339)

	h.respondJSON(w, appErr.StatusCode, response)
}
