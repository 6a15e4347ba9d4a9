// Package service is the review override gate. Reviewers replace the
// effective status of an assessed session; the automated assessment and its
// ledger entry are never altered.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"kycgate/internal/review/metrics"
	"kycgate/internal/verification/models"
	"kycgate/internal/verification/store"
	id "kycgate/pkg/domain"
	dErrors "kycgate/pkg/domain-errors"
	"kycgate/pkg/platform/audit"
	"kycgate/pkg/platform/keylock"
	"kycgate/pkg/platform/sentinel"
	"kycgate/pkg/platform/tracing"
	"kycgate/pkg/requestcontext"
)

const maxReviewerIDLen = 128

type SessionStore interface {
	FindByID(ctx context.Context, sessionID id.SessionID) (*models.Session, error)
	Save(ctx context.Context, session *models.Session, expectedVersion int64) error
}

type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Ledger interface {
	Emit(ctx context.Context, entry audit.Entry) (*audit.Entry, error)
}

type LedgerReader interface {
	Query(ctx context.Context, sessionID id.SessionID) ([]audit.Entry, error)
}

// Service applies reviewer overrides.
type Service struct {
	sessions SessionStore
	ledger   Ledger
	reader   LedgerReader
	tx       TxRunner
	locks    *keylock.Locker[id.SessionID]
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithTx(tx TxRunner) Option {
	return func(s *Service) { s.tx = tx }
}

// WithLocks must receive the same table the verification service uses, so
// overrides and stage submissions on one session never interleave.
func WithLocks(locks *keylock.Locker[id.SessionID]) Option {
	return func(s *Service) { s.locks = locks }
}

func New(sessions SessionStore, ledger Ledger, reader LedgerReader, opts ...Option) *Service {
	s := &Service{sessions: sessions, ledger: ledger, reader: reader}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = store.MemoryTx{}
	}
	if s.locks == nil {
		s.locks = keylock.New[id.SessionID]()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Override records a reviewer decision on an assessed session.
func (s *Service) Override(ctx context.Context, sessionID id.SessionID, reviewerID string, expectedVersion int64, decision models.ReviewDecision, reason string) (result *models.OverrideDecision, err error) {
	ctx, end := tracing.StartSpan(ctx, "review.override",
		attribute.String("session.id", sessionID.String()),
		attribute.String("review.decision", string(decision)))
	defer func() { end(err) }()

	reviewerID = strings.TrimSpace(reviewerID)
	if reviewerID == "" || len(reviewerID) > maxReviewerIDLen {
		return nil, dErrors.New(dErrors.CodeValidation, "reviewer_id is required")
	}
	resulting, ok := decision.ResultingStatus()
	if !ok {
		return nil, dErrors.New(dErrors.CodeValidation, "decision must be approve, flag or reject")
	}
	reason, err = models.ValidateReason(reason)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locks.Lock(ctx, sessionID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "request cancelled while waiting for session")
	}
	defer unlock()

	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsTerminal() {
		return nil, dErrors.New(dErrors.CodeInvalidTransition, "session not assessed")
	}
	if expectedVersion != session.Version {
		return nil, dErrors.New(dErrors.CodeConflict,
			fmt.Sprintf("stale version: expected %d, current %d", expectedVersion, session.Version))
	}

	now := requestcontext.Now(ctx)
	override := models.OverrideDecision{
		SessionID:       session.ID,
		ReviewerID:      reviewerID,
		Decision:        decision,
		Reason:          reason,
		Timestamp:       now,
		BasedOnVersion:  session.Version,
		PreviousStatus:  session.Status,
		ResultingStatus: resulting,
	}
	updated := session.Clone()
	updated.ApplyOverride(override, now)

	err = s.tx.RunInTx(context.WithoutCancel(ctx), func(txCtx context.Context) error {
		if err := s.sessions.Save(txCtx, updated, session.Version); err != nil {
			return wrapStoreErr(err, "failed to save override")
		}
		entry, err := audit.NewEntry(session.ID, audit.EventOverrideApplied, reviewerID, now, override)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to build ledger entry")
		}
		if _, err := s.ledger.Emit(txCtx, entry); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record override")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncOverride(string(decision), resulting != session.AutomatedStatus)
	s.logger.InfoContext(ctx, "override applied",
		"request_id", requestcontext.RequestID(ctx),
		"session_id", session.ID,
		"reviewer_id", reviewerID,
		"decision", decision,
		"previous_status", override.PreviousStatus,
		"resulting_status", resulting,
	)
	return &override, nil
}

// HistoryKind distinguishes automated and reviewer decisions.
type HistoryKind string

const (
	HistoryAutomated HistoryKind = "automated"
	HistoryOverride  HistoryKind = "override"
)

// HistoryItem is one decision in a session's history.
type HistoryItem struct {
	Sequence   int64                    `json:"sequence"`
	Kind       HistoryKind              `json:"kind"`
	Actor      string                   `json:"actor"`
	Status     models.Status            `json:"status"`
	Timestamp  time.Time                `json:"timestamp"`
	Assessment *models.RiskAssessment   `json:"assessment,omitempty"`
	Override   *models.OverrideDecision `json:"override,omitempty"`
}

// History rebuilds the decision history from the ledger: the automated
// assessment followed by every override in order.
func (s *Service) History(ctx context.Context, sessionID id.SessionID) ([]HistoryItem, error) {
	if _, err := s.load(ctx, sessionID); err != nil {
		return nil, err
	}
	entries, err := s.reader.Query(ctx, sessionID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read ledger")
	}

	items := make([]HistoryItem, 0, 2)
	for _, e := range entries {
		item := HistoryItem{Sequence: e.Sequence, Actor: e.Actor, Timestamp: e.Timestamp}
		switch e.EventType {
		case audit.EventRiskAssessed:
			var detail struct {
				Assessment models.RiskAssessment `json:"assessment"`
			}
			if err := json.Unmarshal(e.Detail, &detail); err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "unreadable assessment entry")
			}
			item.Kind = HistoryAutomated
			item.Status = detail.Assessment.Disposition
			item.Assessment = &detail.Assessment
		case audit.EventOverrideApplied:
			var d models.OverrideDecision
			if err := json.Unmarshal(e.Detail, &d); err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "unreadable override entry")
			}
			item.Kind = HistoryOverride
			item.Status = d.ResultingStatus
			item.Override = &d
		default:
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *Service) load(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to load session")
	}
	return session, nil
}

func wrapStoreErr(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "session not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "stale version: session changed concurrently")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}
