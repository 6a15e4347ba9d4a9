package models

import (
	"time"

	"kycgate/internal/capability"
	id "kycgate/pkg/domain"
)

// RiskTier buckets the numeric risk.
type RiskTier string

const (
	TierLow    RiskTier = "low"
	TierMedium RiskTier = "medium"
	TierHigh   RiskTier = "high"
)

// FactorSource says why a factor counted.
type FactorSource string

const (
	// SourceDetected: a provider answered with a score above threshold.
	SourceDetected FactorSource = "detected"
	// SourceDegraded: a provider timed out, was unavailable or broke the
	// response contract.
	SourceDegraded FactorSource = "degraded"
	// SourceMissing: the stage supplying the signal was skipped or absent.
	SourceMissing FactorSource = "missing"
)

// Factor is one line of the assessment's explanation.
type Factor struct {
	Signal capability.Variant `json:"signal"`
	Stage  StageKind          `json:"stage"`
	Weight int                `json:"weight"`
	Source FactorSource       `json:"source"`
	// Capping is true when the factor prevents automatic verification.
	Capping bool `json:"capping"`
}

// RiskAssessment is the fused, explainable decision for a session.
type RiskAssessment struct {
	SessionID        id.SessionID `json:"session_id"`
	RiskPoints       int          `json:"risk_points"`
	RiskTier         RiskTier     `json:"risk_tier"`
	ConfidenceScore  int          `json:"confidence_score"`
	Disposition      Status       `json:"disposition"`
	Factors          []Factor     `json:"factors"`
	EvidenceComplete bool         `json:"evidence_complete"`
	ComputedAt       time.Time    `json:"computed_at"`
}

// Clone deep-copies the assessment.
func (a RiskAssessment) Clone() RiskAssessment {
	a.Factors = append([]Factor(nil), a.Factors...)
	return a
}

// ReviewDecision is a reviewer's verdict.
type ReviewDecision string

const (
	DecisionApprove ReviewDecision = "approve"
	DecisionFlag    ReviewDecision = "flag"
	DecisionReject  ReviewDecision = "reject"
)

// ResultingStatus maps a decision onto the effective session status.
func (d ReviewDecision) ResultingStatus() (Status, bool) {
	switch d {
	case DecisionApprove:
		return StatusVerified, true
	case DecisionFlag:
		return StatusSuspicious, true
	case DecisionReject:
		return StatusRejected, true
	}
	return "", false
}

// OverrideDecision records a reviewer replacing the effective status.
type OverrideDecision struct {
	SessionID       id.SessionID   `json:"session_id"`
	ReviewerID      string         `json:"reviewer_id"`
	Decision        ReviewDecision `json:"decision"`
	Reason          string         `json:"reason"`
	Timestamp       time.Time      `json:"timestamp"`
	BasedOnVersion  int64          `json:"based_on_version"`
	PreviousStatus  Status         `json:"previous_status"`
	ResultingStatus Status         `json:"resulting_status"`
}
