package models

import (
	"time"

	"kycgate/internal/capability"
	id "kycgate/pkg/domain"
)

// Status is the session's effective disposition.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusVerified   Status = "verified"
	StatusSuspicious Status = "suspicious"
	StatusRejected   Status = "rejected"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusInProgress, StatusVerified, StatusSuspicious, StatusRejected:
		return true
	}
	return false
}

// Outcome says whether a stage ran or was explicitly skipped.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeSkipped   Outcome = "skipped"
)

// CheckStatus says whether a sub-check produced a usable answer.
type CheckStatus string

const (
	CheckOK       CheckStatus = "ok"
	CheckDegraded CheckStatus = "degraded"
)

// SubCheck is one capability invocation inside a stage. Score, Label,
// Artifacts and Confidence are the provider's verbatim output; a degraded
// sub-check carries the failure category instead and is always flagged.
type SubCheck struct {
	Variant       capability.Variant       `json:"variant"`
	ProviderID    string                   `json:"provider_id"`
	Target        string                   `json:"target"`
	Status        CheckStatus              `json:"status"`
	Score         float64                  `json:"score"`
	Label         *string                  `json:"label,omitempty"`
	Artifacts     []string                 `json:"artifacts,omitempty"`
	Confidence    float64                  `json:"confidence"`
	ErrorCategory capability.ErrorCategory `json:"error_category,omitempty"`
	Flagged       bool                     `json:"flagged"`
	LatencyMS     int64                    `json:"latency_ms"`
}

// StageResult is the immutable record of one completed or skipped stage.
type StageResult struct {
	StageKind      StageKind                   `json:"stage_kind"`
	Outcome        Outcome                     `json:"outcome"`
	Checks         []SubCheck                  `json:"checks,omitempty"`
	Flags          map[capability.Variant]bool `json:"flags,omitempty"`
	EvidenceDigest string                      `json:"evidence_digest,omitempty"`
	SubjectIDHash  string                      `json:"subject_id_hash,omitempty"`
	SkipReason     string                      `json:"skip_reason,omitempty"`
	RecordedAt     time.Time                   `json:"recorded_at"`
}

// Degraded reports whether any sub-check lacks a usable answer.
func (r StageResult) Degraded() bool {
	for _, c := range r.Checks {
		if c.Status == CheckDegraded {
			return true
		}
	}
	return false
}

// Clone deep-copies the result.
func (r StageResult) Clone() StageResult {
	if r.Checks != nil {
		checks := make([]SubCheck, len(r.Checks))
		for i, c := range r.Checks {
			if c.Label != nil {
				label := *c.Label
				c.Label = &label
			}
			if c.Artifacts != nil {
				c.Artifacts = append([]string(nil), c.Artifacts...)
			}
			checks[i] = c
		}
		r.Checks = checks
	}
	if r.Flags != nil {
		flags := make(map[capability.Variant]bool, len(r.Flags))
		for k, v := range r.Flags {
			flags[k] = v
		}
		r.Flags = flags
	}
	return r
}

// Session is the verification session aggregate.
type Session struct {
	ID              id.SessionID      `json:"session_id"`
	SubjectRef      id.SubjectRef     `json:"subject_ref"`
	State           State             `json:"state"`
	Results         []StageResult     `json:"results"`
	Status          Status            `json:"status"`
	AutomatedStatus Status            `json:"automated_status,omitempty"`
	Version         int64             `json:"version"`
	Assessment      *RiskAssessment   `json:"assessment,omitempty"`
	Override        *OverrideDecision `json:"override,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// NewSession returns a fresh session in the created state.
func NewSession(sessionID id.SessionID, subject id.SubjectRef, now time.Time) *Session {
	return &Session{
		ID:         sessionID,
		SubjectRef: subject,
		State:      StateCreated,
		Results:    []StageResult{},
		Status:     StatusInProgress,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// IsTerminal reports whether the session has been assessed.
func (s *Session) IsTerminal() bool {
	return s.Status != StatusInProgress
}

// Result returns the recorded result for kind.
func (s *Session) Result(kind StageKind) (StageResult, bool) {
	for _, r := range s.Results {
		if r.StageKind == kind {
			return r, true
		}
	}
	return StageResult{}, false
}

// Record appends result and advances to next. Callers have already checked
// the transition.
func (s *Session) Record(result StageResult, next State, now time.Time) {
	s.Results = append(s.Results, result.Clone())
	s.State = next
	s.Version++
	s.UpdatedAt = now
}

// Assess stores the automated outcome and makes the session terminal.
func (s *Session) Assess(a RiskAssessment, now time.Time) {
	s.Assessment = &a
	s.AutomatedStatus = a.Disposition
	s.Status = a.Disposition
	s.State = StateAssessed
	s.Version++
	s.UpdatedAt = now
}

// ApplyOverride replaces the effective status. The automated outcome and
// assessment stay as computed.
func (s *Session) ApplyOverride(d OverrideDecision, now time.Time) {
	s.Override = &d
	s.Status = d.ResultingStatus
	s.Version++
	s.UpdatedAt = now
}

// Clone returns a deep copy safe to hand to callers.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Results = make([]StageResult, len(s.Results))
	for i, r := range s.Results {
		out.Results[i] = r.Clone()
	}
	if s.Assessment != nil {
		a := s.Assessment.Clone()
		out.Assessment = &a
	}
	if s.Override != nil {
		o := *s.Override
		out.Override = &o
	}
	return &out
}

// ListFilter narrows ListSessions.
type ListFilter struct {
	Status Status
}
