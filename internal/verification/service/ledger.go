package service

import (
	"context"
	"fmt"

	"kycgate/internal/verification/models"
	id "kycgate/pkg/domain"
	dErrors "kycgate/pkg/domain-errors"
	"kycgate/pkg/platform/audit"
	"kycgate/pkg/requestcontext"
)

// SessionStartedDetail is the ledger detail of a session_started entry.
type SessionStartedDetail struct {
	SubjectRef id.SubjectRef `json:"subject_ref"`
	Version    int64         `json:"version"`
}

// StageDetail is the ledger detail of stage_recorded and stage_skipped.
type StageDetail struct {
	Version int64              `json:"version"`
	State   models.State       `json:"state"`
	Result  models.StageResult `json:"result"`
}

// AssessmentDetail is the ledger detail of risk_assessed.
type AssessmentDetail struct {
	Version    int64                 `json:"version"`
	Assessment models.RiskAssessment `json:"assessment"`
}

func (s *Service) emit(ctx context.Context, sessionID id.SessionID, event audit.EventType, detail any) error {
	entry, err := audit.NewEntry(sessionID, event, audit.ActorSystem, requestcontext.Now(ctx), detail)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to build ledger entry")
	}
	if _, err := s.ledger.Emit(ctx, entry); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, fmt.Sprintf("failed to record %s", event))
	}
	return nil
}

// AuditTrail returns the session's ledger slice in sequence order.
func (s *Service) AuditTrail(ctx context.Context, sessionID id.SessionID) ([]audit.Entry, error) {
	if s.reader == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "ledger reader not configured")
	}
	if _, err := s.load(ctx, sessionID); err != nil {
		return nil, err
	}
	entries, err := s.reader.Query(ctx, sessionID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read ledger")
	}
	return entries, nil
}
