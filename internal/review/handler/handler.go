package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"kycgate/internal/review/service"
	"kycgate/internal/verification/models"
	id "kycgate/pkg/domain"
	dErrors "kycgate/pkg/domain-errors"
	"kycgate/pkg/platform/httputil"
	"kycgate/pkg/requestcontext"
)

// Service defines the review operations exposed over HTTP.
type Service interface {
	Override(ctx context.Context, sessionID id.SessionID, reviewerID string, expectedVersion int64, decision models.ReviewDecision, reason string) (*models.OverrideDecision, error)
	History(ctx context.Context, sessionID id.SessionID) ([]service.HistoryItem, error)
}

// OverrideRequest is the body of POST /sessions/{id}/override.
type OverrideRequest struct {
	ReviewerID string `json:"reviewer_id"`
	Version    int64  `json:"version"`
	Decision   string `json:"decision"`
	Reason     string `json:"reason"`
}

func (r *OverrideRequest) Validate() error {
	if r.Version < 1 {
		return dErrors.New(dErrors.CodeValidation, "version must be at least 1")
	}
	r.Decision = strings.ToLower(strings.TrimSpace(r.Decision))
	if _, ok := models.ReviewDecision(r.Decision).ResultingStatus(); !ok {
		return dErrors.New(dErrors.CodeValidation, "decision must be approve, flag or reject")
	}
	r.ReviewerID = strings.TrimSpace(r.ReviewerID)
	return nil
}

// HistoryResponse is returned by GET /sessions/{id}/history.
type HistoryResponse struct {
	SessionID id.SessionID          `json:"session_id"`
	Decisions []service.HistoryItem `json:"decisions"`
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts reviewer endpoints. Callers wrap r with the reviewer
// authentication middleware when a signing key is configured.
func (h *Handler) Register(r chi.Router) {
	r.Post("/sessions/{sessionID}/override", h.HandleOverride)
	r.Get("/sessions/{sessionID}/history", h.HandleHistory)
}

func (h *Handler) HandleOverride(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	sessionID, err := id.ParseSessionID(chi.URLParam(r, "sessionID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[OverrideRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	reviewerID := req.ReviewerID
	if authenticated := requestcontext.ReviewerID(ctx); authenticated != "" {
		if reviewerID != "" && reviewerID != authenticated {
			httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "reviewer_id does not match the authenticated reviewer"))
			return
		}
		reviewerID = authenticated
	}

	decision, err := h.service.Override(ctx, sessionID, reviewerID, req.Version, models.ReviewDecision(req.Decision), req.Reason)
	if err != nil {
		h.logger.WarnContext(ctx, "override failed",
			"request_id", requestID,
			"session_id", sessionID,
			"reviewer_id", reviewerID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, decision)
}

func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, err := id.ParseSessionID(chi.URLParam(r, "sessionID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	items, err := h.service.History(ctx, sessionID)
	if err != nil {
		h.logger.WarnContext(ctx, "history failed",
			"request_id", requestcontext.RequestID(ctx),
			"session_id", sessionID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, HistoryResponse{SessionID: sessionID, Decisions: items})
}
