package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"kycgate/internal/verification/models"
	"kycgate/internal/verification/service"
	id "kycgate/pkg/domain"
	dErrors "kycgate/pkg/domain-errors"
	"kycgate/pkg/platform/audit"
	"kycgate/pkg/platform/httputil"
	"kycgate/pkg/requestcontext"
)

// Service defines the verification operations exposed over HTTP.
type Service interface {
	StartSession(ctx context.Context, subject id.SubjectRef) (*models.Session, error)
	GetSession(ctx context.Context, sessionID id.SessionID) (*models.Session, error)
	ListSessions(ctx context.Context, filter models.ListFilter) ([]*models.Session, error)
	SubmitStage(ctx context.Context, sessionID id.SessionID, expectedVersion int64, kind models.StageKind, raw json.RawMessage) (*service.Submission, error)
	SkipStage(ctx context.Context, sessionID id.SessionID, expectedVersion int64, kind models.StageKind, reason string) (*service.Submission, error)
	CompleteSession(ctx context.Context, sessionID id.SessionID) (*models.RiskAssessment, error)
	AuditTrail(ctx context.Context, sessionID id.SessionID) ([]audit.Entry, error)
}

// Handler serves session endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts session endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/sessions", h.HandleStartSession)
	r.Get("/sessions", h.HandleListSessions)
	r.Get("/sessions/{sessionID}", h.HandleGetSession)
	r.Post("/sessions/{sessionID}/stages/{stageKind}", h.HandleSubmitStage)
	r.Post("/sessions/{sessionID}/stages/{stageKind}/skip", h.HandleSkipStage)
	r.Post("/sessions/{sessionID}/complete", h.HandleCompleteSession)
	r.Get("/sessions/{sessionID}/audit", h.HandleExportAudit)
}

func (h *Handler) HandleStartSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[StartSessionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	session, err := h.service.StartSession(ctx, req.parsedSubject)
	if err != nil {
		h.fail(ctx, w, "start session failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, StartSessionResponse{
		SessionID: session.ID,
		Version:   session.Version,
		State:     session.State,
	})
}

func (h *Handler) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var filter models.ListFilter
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := models.ParseStatus(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		filter.Status = status
	}
	sessions, err := h.service.ListSessions(ctx, filter)
	if err != nil {
		h.fail(ctx, w, "list sessions failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromSessions(sessions))
}

func (h *Handler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := parseSessionID(w, r)
	if !ok {
		return
	}
	session, err := h.service.GetSession(ctx, sessionID)
	if err != nil {
		h.fail(ctx, w, "get session failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromSession(session))
}

func (h *Handler) HandleSubmitStage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	sessionID, ok := parseSessionID(w, r)
	if !ok {
		return
	}
	kind, err := models.ParseStageKind(chi.URLParam(r, "stageKind"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[SubmitStageRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	sub, err := h.service.SubmitStage(ctx, sessionID, req.Version, kind, req.Evidence)
	if err != nil {
		h.fail(ctx, w, "submit stage failed", err, "session_id", sessionID, "stage", kind)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sub)
}

func (h *Handler) HandleSkipStage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	sessionID, ok := parseSessionID(w, r)
	if !ok {
		return
	}
	kind, err := models.ParseStageKind(chi.URLParam(r, "stageKind"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[SkipStageRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	sub, err := h.service.SkipStage(ctx, sessionID, req.Version, kind, req.Reason)
	if err != nil {
		h.fail(ctx, w, "skip stage failed", err, "session_id", sessionID, "stage", kind)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sub)
}

func (h *Handler) HandleCompleteSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := parseSessionID(w, r)
	if !ok {
		return
	}
	assessment, err := h.service.CompleteSession(ctx, sessionID)
	if err != nil {
		h.fail(ctx, w, "complete session failed", err, "session_id", sessionID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, assessment)
}

// HandleExportAudit streams the session's ledger slice as JSON lines or CSV.
func (h *Handler) HandleExportAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := parseSessionID(w, r)
	if !ok {
		return
	}
	format, err := audit.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, err.Error()))
		return
	}
	entries, err := h.service.AuditTrail(ctx, sessionID)
	if err != nil {
		h.fail(ctx, w, "audit export failed", err, "session_id", sessionID)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.WriteHeader(http.StatusOK)
	if err := audit.Export(w, format, entries); err != nil {
		h.logger.ErrorContext(ctx, "audit export interrupted",
			"request_id", requestcontext.RequestID(ctx),
			"session_id", sessionID,
			"error", err,
		)
	}
}

func parseSessionID(w http.ResponseWriter, r *http.Request) (id.SessionID, bool) {
	sessionID, err := id.ParseSessionID(chi.URLParam(r, "sessionID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.SessionID{}, false
	}
	return sessionID, true
}

// fail logs at a level matching the error class and writes the response.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error, attrs ...any) {
	attrs = append([]any{"request_id", requestcontext.RequestID(ctx), "error", err}, attrs...)
	if de, ok := dErrors.As(err); ok && httputil.StatusFor(de.Code) < http.StatusInternalServerError {
		h.logger.WarnContext(ctx, msg, attrs...)
	} else {
		h.logger.ErrorContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}
