package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"kycgate/internal/fusion"
	"kycgate/internal/verification/models"
	id "kycgate/pkg/domain"
	dErrors "kycgate/pkg/domain-errors"
	"kycgate/pkg/platform/audit"
	"kycgate/pkg/platform/sentinel"
	"kycgate/pkg/platform/tracing"
	"kycgate/pkg/requestcontext"
)

// StartSession opens a session for subject. A subject may hold one new
// session per duplicate window.
func (s *Service) StartSession(ctx context.Context, subject id.SubjectRef) (*models.Session, error) {
	if subject == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "subject_ref is required")
	}
	if s.guard != nil {
		if err := s.guard.Claim(ctx, subject, s.window); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				s.metrics.IncDuplicateRejected()
				return nil, dErrors.New(dErrors.CodeDuplicateSession, "subject already has a session in progress")
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "duplicate check failed")
		}
	}

	session := models.NewSession(id.NewSessionID(), subject, requestcontext.Now(ctx))
	err := s.tx.RunInTx(context.WithoutCancel(ctx), func(txCtx context.Context) error {
		if err := s.sessions.Create(txCtx, session); err != nil {
			return wrapStoreErr(err, "failed to create session")
		}
		return s.emit(txCtx, session.ID, audit.EventSessionStarted, SessionStartedDetail{
			SubjectRef: subject,
			Version:    session.Version,
		})
	})
	if err != nil {
		if s.guard != nil {
			if relErr := s.guard.Release(context.WithoutCancel(ctx), subject); relErr != nil {
				s.logger.WarnContext(ctx, "failed to release duplicate guard", "error", relErr)
			}
		}
		return nil, err
	}

	s.metrics.IncSessionStarted()
	s.logger.InfoContext(ctx, "session started",
		"request_id", requestcontext.RequestID(ctx),
		"session_id", session.ID,
	)
	return session.Clone(), nil
}

// GetSession returns a snapshot. It never waits on detectors.
func (s *Service) GetSession(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	return s.load(ctx, sessionID)
}

// ListSessions returns sessions matching filter, oldest first.
func (s *Service) ListSessions(ctx context.Context, filter models.ListFilter) ([]*models.Session, error) {
	sessions, err := s.sessions.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list sessions")
	}
	return sessions, nil
}

// CompleteSession fuses the recorded evidence and makes the session terminal.
func (s *Service) CompleteSession(ctx context.Context, sessionID id.SessionID) (result *models.RiskAssessment, err error) {
	ctx, end := tracing.StartSpan(ctx, "verification.complete_session",
		attribute.String("session.id", sessionID.String()))
	defer func() { end(err) }()

	unlock, err := s.lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.IsTerminal() {
		return nil, dErrors.New(dErrors.CodeSessionTerminal, "session already assessed")
	}
	if session.State != models.StateVoiceVerified {
		return nil, dErrors.New(dErrors.CodeInvalidTransition,
			"session cannot be completed from state "+string(session.State))
	}

	now := requestcontext.Now(ctx)
	assessment := fusion.Fuse(session.ID, session.Results, now)
	expected := session.Version
	updated := session.Clone()
	updated.Assess(assessment, now)

	err = s.tx.RunInTx(context.WithoutCancel(ctx), func(txCtx context.Context) error {
		if err := s.sessions.Save(txCtx, updated, expected); err != nil {
			return wrapStoreErr(err, "failed to save assessment")
		}
		return s.emit(txCtx, session.ID, audit.EventRiskAssessed, AssessmentDetail{
			Version:    updated.Version,
			Assessment: assessment,
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncAssessed(string(assessment.Disposition))
	s.logger.InfoContext(ctx, "session assessed",
		"request_id", requestcontext.RequestID(ctx),
		"session_id", session.ID,
		"risk_points", assessment.RiskPoints,
		"disposition", assessment.Disposition,
		"evidence_complete", assessment.EvidenceComplete,
	)
	out := assessment.Clone()
	return &out, nil
}
