package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"kycgate/internal/capability"
	"kycgate/internal/verification/models"
	id "kycgate/pkg/domain"
	dErrors "kycgate/pkg/domain-errors"
	"kycgate/pkg/platform/audit"
	"kycgate/pkg/platform/tracing"
	"kycgate/pkg/requestcontext"
)

// Submission is the answer to a stage submission or skip.
type Submission struct {
	SessionID id.SessionID       `json:"session_id"`
	Version   int64              `json:"version"`
	State     models.State       `json:"state"`
	Result    models.StageResult `json:"result"`
	// Replayed is true when an identical earlier submission was returned
	// unchanged.
	Replayed bool `json:"replayed"`
}

// SubmitStage records evidence for the next stage. Checks run in a fixed
// order before anything is mutated: existence, replay, terminal, transition,
// version, schema. Detector calls happen outside any transaction; the save
// and its ledger entry commit together and are not cancelled by the caller
// once started.
func (s *Service) SubmitStage(ctx context.Context, sessionID id.SessionID, expectedVersion int64, kind models.StageKind, raw json.RawMessage) (sub *Submission, err error) {
	start := time.Now()
	ctx, end := tracing.StartSpan(ctx, "verification.submit_stage",
		attribute.String("session.id", sessionID.String()),
		attribute.String("stage.kind", string(kind)))
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

	evidence, digest, decodeErr := models.DecodeEvidence(s.hashKey, kind, raw)
	if decodeErr == nil {
		if replay, ok := s.replay(ctx, session, kind, digest); ok {
			return replay, nil
		}
	}
	next, err := checkTransition(session, kind, expectedVersion)
	if err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	now := requestcontext.Now(ctx)
	if err := evidence.Validate(now); err != nil {
		return nil, err
	}

	result := models.StageResult{
		StageKind:      kind,
		Outcome:        models.OutcomeCompleted,
		EvidenceDigest: digest,
	}
	if pi, ok := evidence.(*models.PersonalInfoEvidence); ok {
		result.SubjectIDHash = pi.NationalIDHash(s.hashKey, session.SubjectRef)
	}
	if targets := evidence.Targets(); len(targets) > 0 {
		result.Checks = s.runChecks(ctx, session.ID, targets)
		result.Flags = flagsOf(result.Checks)
	}

	// A caller that gave up while detectors ran gets nothing committed.
	if err := ctx.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "submission cancelled before commit")
	}
	result.RecordedAt = requestcontext.Now(ctx)

	sub, err = s.commitStage(ctx, session, result, next, audit.EventStageRecorded)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveStage(string(kind), start)
	s.logger.InfoContext(ctx, "stage recorded",
		"request_id", requestcontext.RequestID(ctx),
		"session_id", session.ID,
		"stage", kind,
		"version", sub.Version,
		"degraded", result.Degraded(),
	)
	return sub, nil
}

// SkipStage records an optional stage as skipped.
func (s *Service) SkipStage(ctx context.Context, sessionID id.SessionID, expectedVersion int64, kind models.StageKind, reason string) (sub *Submission, err error) {
	ctx, end := tracing.StartSpan(ctx, "verification.skip_stage",
		attribute.String("session.id", sessionID.String()),
		attribute.String("stage.kind", string(kind)))
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

	reason, reasonErr := models.ValidateReason(reason)
	digest := models.SkipDigest(kind, reason)
	if reasonErr == nil {
		if replay, ok := s.replay(ctx, session, kind, digest); ok {
			return replay, nil
		}
	}
	next, err := checkTransition(session, kind, expectedVersion)
	if err != nil {
		return nil, err
	}
	if !s.optional[kind] {
		return nil, dErrors.New(dErrors.CodeInvalidTransition, "stage "+string(kind)+" is not optional")
	}
	if reasonErr != nil {
		return nil, reasonErr
	}

	result := models.StageResult{
		StageKind:      kind,
		Outcome:        models.OutcomeSkipped,
		EvidenceDigest: digest,
		SkipReason:     reason,
		RecordedAt:     requestcontext.Now(ctx),
	}
	sub, err = s.commitStage(ctx, session, result, next, audit.EventStageSkipped)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "stage skipped",
		"request_id", requestcontext.RequestID(ctx),
		"session_id", session.ID,
		"stage", kind,
		"version", sub.Version,
	)
	return sub, nil
}

// replay answers a resubmission of an already recorded stage with identical
// content. Nothing is written.
func (s *Service) replay(ctx context.Context, session *models.Session, kind models.StageKind, digest string) (*Submission, bool) {
	prior, ok := session.Result(kind)
	if !ok || prior.EvidenceDigest != digest {
		return nil, false
	}
	s.metrics.IncReplay()
	s.logger.InfoContext(ctx, "stage replayed",
		"request_id", requestcontext.RequestID(ctx),
		"session_id", session.ID,
		"stage", kind,
	)
	return &Submission{
		SessionID: session.ID,
		Version:   session.Version,
		State:     session.State,
		Result:    prior.Clone(),
		Replayed:  true,
	}, true
}

func checkTransition(session *models.Session, kind models.StageKind, expectedVersion int64) (models.State, error) {
	if session.IsTerminal() {
		return "", dErrors.New(dErrors.CodeSessionTerminal, "session already assessed")
	}
	t, ok := models.NextTransition(session.State)
	if !ok || t.Stage != kind {
		want := "none"
		if ok {
			want = string(t.Stage)
		}
		return "", dErrors.New(dErrors.CodeInvalidTransition,
			fmt.Sprintf("stage %s not allowed in state %s, expected %s", kind, session.State, want))
	}
	if expectedVersion != session.Version {
		return "", dErrors.New(dErrors.CodeConflict,
			fmt.Sprintf("stale version: expected %d, current %d", expectedVersion, session.Version))
	}
	return t.Next, nil
}

func (s *Service) commitStage(ctx context.Context, session *models.Session, result models.StageResult, next models.State, event audit.EventType) (*Submission, error) {
	expected := session.Version
	updated := session.Clone()
	updated.Record(result, next, result.RecordedAt)

	err := s.tx.RunInTx(context.WithoutCancel(ctx), func(txCtx context.Context) error {
		if err := s.sessions.Save(txCtx, updated, expected); err != nil {
			return wrapStoreErr(err, "failed to save stage result")
		}
		return s.emit(txCtx, session.ID, event, StageDetail{
			Version: updated.Version,
			State:   updated.State,
			Result:  result,
		})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncStageRecorded(string(result.StageKind), string(result.Outcome))
	return &Submission{
		SessionID: updated.ID,
		Version:   updated.Version,
		State:     updated.State,
		Result:    result.Clone(),
	}, nil
}

// runChecks calls one detector per target concurrently. Failures never
// abort the stage; they come back as degraded sub-checks.
func (s *Service) runChecks(ctx context.Context, sessionID id.SessionID, targets []models.Target) []models.SubCheck {
	checks := make([]models.SubCheck, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, target := range targets {
		g.Go(func() error {
			checks[i] = s.runCheck(gctx, sessionID, target)
			return nil
		})
	}
	_ = g.Wait()
	return checks
}

func (s *Service) runCheck(ctx context.Context, sessionID id.SessionID, target models.Target) (check models.SubCheck) {
	ctx, end := tracing.StartSpan(ctx, "capability.analyze",
		attribute.String("capability.variant", string(target.Variant)))
	start := time.Now()
	check = models.SubCheck{Variant: target.Variant, Target: target.MediaRef}

	var err error
	defer func() {
		elapsed := time.Since(start)
		check.LatencyMS = elapsed.Milliseconds()
		s.metrics.ObserveProvider(string(target.Variant), string(check.Status), elapsed)
		end(err)
	}()

	provider, err := s.providers.Get(target.Variant)
	if err != nil {
		check.ProviderID = "unregistered"
		return degrade(check, capability.ErrorUnavailable)
	}
	check.ProviderID = provider.ID()
	resp, err := capability.Invoke(ctx, provider, capability.Request{
		Variant:   target.Variant,
		SessionID: sessionID.String(),
		MediaRef:  target.MediaRef,
		Hints:     target.Hints,
	}, s.timeout)
	if err != nil {
		s.logger.WarnContext(ctx, "detector call degraded",
			"request_id", requestcontext.RequestID(ctx),
			"session_id", sessionID,
			"variant", target.Variant,
			"provider_id", check.ProviderID,
			"error", err,
		)
		return degrade(check, capability.GetCategory(err))
	}
	check.Status = models.CheckOK
	check.Score = resp.Score
	check.Label = resp.Label
	check.Artifacts = resp.Artifacts
	check.Confidence = resp.Confidence
	check.Flagged = s.thresholds.Flag(target.Variant, resp.Score)
	return check
}

func degrade(check models.SubCheck, category capability.ErrorCategory) models.SubCheck {
	check.Status = models.CheckDegraded
	check.ErrorCategory = category
	check.Flagged = true
	return check
}

func flagsOf(checks []models.SubCheck) map[capability.Variant]bool {
	flags := make(map[capability.Variant]bool, len(checks))
	for _, c := range checks {
		flags[c.Variant] = flags[c.Variant] || c.Flagged
	}
	return flags
}
