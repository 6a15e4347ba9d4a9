// Package fusion turns recorded stage results into one deterministic risk
// assessment.
//
// Five weighted signals feed the score. Each counts at most once no matter how
// many sub-checks raised it. Evidence that is missing, skipped or degraded
// raises its signal and also prevents an automatic Verified outcome.
package fusion

import (
	"time"

	"kycgate/internal/capability"
	"kycgate/internal/verification/models"
	id "kycgate/pkg/domain"
)

const (
	maxRiskPoints     = 100
	minConfidence     = 10
	rejectRiskPoints  = 30
	suspiciousAtLeast = 1
)

// signal is one weighted input and the stages that can supply it.
type signal struct {
	variant capability.Variant
	weight  int
	stages  []models.StageKind
}

// signals is ordered by weight so factor lists read most-severe first.
var signals = []signal{
	{capability.VariantDeepfakeFace, 40, []models.StageKind{models.StageSelfie}},
	{capability.VariantGANFace, 30, []models.StageKind{models.StageSelfie}},
	{capability.VariantSpoof, 25, []models.StageKind{models.StageSelfie, models.StageLiveness}},
	{capability.VariantVoiceClone, 20, []models.StageKind{models.StageVoice}},
	{capability.VariantLipSync, 15, []models.StageKind{models.StageVoice}},
}

// Weight returns the points a flagged variant contributes. Variants that
// carry no weight return 0.
func Weight(v capability.Variant) int {
	for _, s := range signals {
		if s.variant == v {
			return s.weight
		}
	}
	return 0
}

// Fuse computes the assessment. It is a pure function of its arguments.
func Fuse(sessionID id.SessionID, results []models.StageResult, computedAt time.Time) models.RiskAssessment {
	byStage := make(map[models.StageKind]models.StageResult, len(results))
	for _, r := range results {
		byStage[r.StageKind] = r
	}

	var (
		factors []models.Factor
		points  int
		capped  bool
	)

	for _, sig := range signals {
		f, ok := evaluate(sig, byStage)
		if !ok {
			continue
		}
		points += sig.weight
		capped = capped || f.Capping
		factors = append(factors, f)
	}

	// Identity stages carry no weight, but an unproven identity can never be
	// auto-verified.
	for _, f := range identityFactors(byStage) {
		capped = true
		factors = append(factors, f)
	}

	if points > maxRiskPoints {
		points = maxRiskPoints
	}
	tier, disposition := Classify(points)
	if capped && disposition == models.StatusVerified {
		tier, disposition = models.TierMedium, models.StatusSuspicious
	}

	return models.RiskAssessment{
		SessionID:        sessionID,
		RiskPoints:       points,
		RiskTier:         tier,
		ConfidenceScore:  Confidence(points),
		Disposition:      disposition,
		Factors:          factors,
		EvidenceComplete: !capped,
		ComputedAt:       computedAt,
	}
}

// Classify maps risk points onto tier and disposition.
func Classify(points int) (models.RiskTier, models.Status) {
	switch {
	case points >= rejectRiskPoints:
		return models.TierHigh, models.StatusRejected
	case points >= suspiciousAtLeast:
		return models.TierMedium, models.StatusSuspicious
	default:
		return models.TierLow, models.StatusVerified
	}
}

// Confidence is 100 minus the risk points, never below 10.
func Confidence(points int) int {
	c := 100 - points
	if c < minConfidence {
		return minConfidence
	}
	return c
}

// evaluate decides whether sig is raised. A capping reason (missing or
// degraded evidence) wins over a detection so the explanation names why the
// outcome was capped.
func evaluate(sig signal, byStage map[models.StageKind]models.StageResult) (models.Factor, bool) {
	factor := func(kind models.StageKind, source models.FactorSource) models.Factor {
		return models.Factor{
			Signal:  sig.variant,
			Stage:   kind,
			Weight:  sig.weight,
			Source:  source,
			Capping: source != models.SourceDetected,
		}
	}

	var capping, detected *models.Factor
	for _, kind := range sig.stages {
		r, ok := byStage[kind]
		if !ok || r.Outcome == models.OutcomeSkipped || !hasCheck(r, sig.variant) {
			f := factor(kind, models.SourceMissing)
			return f, true
		}
		for _, c := range r.Checks {
			if c.Variant != sig.variant {
				continue
			}
			if c.Status == models.CheckDegraded && capping == nil {
				f := factor(kind, models.SourceDegraded)
				capping = &f
			}
		}
		if r.Flags[sig.variant] && detected == nil {
			f := factor(kind, models.SourceDetected)
			detected = &f
		}
	}
	if capping != nil {
		return *capping, true
	}
	if detected != nil {
		return *detected, true
	}
	return models.Factor{}, false
}

func identityFactors(byStage map[models.StageKind]models.StageResult) []models.Factor {
	var out []models.Factor
	if r, ok := byStage[models.StagePersonalInfo]; !ok || r.Outcome == models.OutcomeSkipped {
		out = append(out, models.Factor{Stage: models.StagePersonalInfo, Source: models.SourceMissing, Capping: true})
	}
	r, ok := byStage[models.StageDocuments]
	if !ok || r.Outcome == models.OutcomeSkipped {
		return append(out, models.Factor{Signal: capability.VariantDocumentAuthenticity, Stage: models.StageDocuments, Source: models.SourceMissing, Capping: true})
	}
	switch {
	case r.Degraded() || !hasCheck(r, capability.VariantDocumentAuthenticity):
		out = append(out, models.Factor{Signal: capability.VariantDocumentAuthenticity, Stage: models.StageDocuments, Source: models.SourceDegraded, Capping: true})
	case r.Flags[capability.VariantDocumentAuthenticity]:
		out = append(out, models.Factor{Signal: capability.VariantDocumentAuthenticity, Stage: models.StageDocuments, Source: models.SourceDetected, Capping: true})
	}
	return out
}

func hasCheck(r models.StageResult, v capability.Variant) bool {
	for _, c := range r.Checks {
		if c.Variant == v {
			return true
		}
	}
	return false
}
