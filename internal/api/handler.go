package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paintconnect/foreman/internal/db"
	"github.com/paintconnect/foreman/internal/dispatch"
)

// Runner triggers one dispatcher invocation.
type Runner interface {
	Run(ctx context.Context) (*dispatch.Report, error)
}

// LogStore reads the notification log for the audit endpoint.
type LogStore interface {
	ListNotificationLogs(ctx context.Context, projectID *uuid.UUID, limit, offset int) ([]*db.NotificationLog, error)
}

// SummaryMailer emails a run report to the ops address. Optional.
type SummaryMailer interface {
	SendRunSummary(ctx context.Context, rep *dispatch.Report) error
}

// ErrorResponse represents an error in problem+json format
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Handler holds dependencies for API handlers
type Handler struct {
	logger *zap.Logger
	runner Runner
	logs   LogStore
	mailer SummaryMailer // nil if no summary address configured
}

// NewHandler creates a new API handler
func NewHandler(logger *zap.Logger, runner Runner, logs LogStore) *Handler {
	return &Handler{
		logger: logger,
		runner: runner,
		logs:   logs,
	}
}

// NewHandlerWithMailer creates a handler that also emails run summaries.
func NewHandlerWithMailer(logger *zap.Logger, runner Runner, logs LogStore, mailer SummaryMailer) *Handler {
	return &Handler{
		logger: logger,
		runner: runner,
		logs:   logs,
		mailer: mailer,
	}
}

// RunDispatch handles POST /v1/dispatch/run, the external scheduler's
// trigger. No request body. Partial failures still return 200 with the
// trace; only a failure to reach the store at all produces a non-200.
func (h *Handler) RunDispatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rep, err := h.runner.Run(ctx)
	if err != nil {
		h.logger.Error("dispatch run failed", zap.Error(err))
		if rep == nil {
			h.writeError(w, http.StatusInternalServerError, "dispatch_error", "Dispatch run failed", err.Error())
			return
		}
		h.writeJSON(w, http.StatusInternalServerError, rep)
		return
	}

	if h.mailer != nil {
		if err := h.mailer.SendRunSummary(ctx, rep); err != nil {
			h.logger.Warn("run summary mail not sent", zap.Error(err))
		}
	}

	h.writeJSON(w, http.StatusOK, rep)
}

// ListNotificationLogs handles GET /v1/notification-logs with optional
// project_id, limit and offset query parameters.
func (h *Handler) ListNotificationLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var projectID *uuid.UUID
	if raw := r.URL.Query().Get("project_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid project_id", "project_id must be a valid UUID")
			return
		}
		projectID = &id
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid limit", "limit must be between 1 and 200")
			return
		}
		limit = n
	}

	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid offset", "offset must be >= 0")
			return
		}
		offset = n
	}

	logs, err := h.logs.ListNotificationLogs(ctx, projectID, limit, offset)
	if err != nil {
		h.logger.Error("failed to list notification logs", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list notification logs", "")
		return
	}

	if logs == nil {
		logs = []*db.NotificationLog{}
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"logs":   logs,
		"limit":  limit,
		"offset": offset,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}
