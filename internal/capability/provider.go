// Package capability defines the contract between the verification pipeline
// and the external detectors that score evidence.
//
// A Provider analyzes one media reference for one Variant and returns the
// probability that the attack it detects is present. Providers never see raw
// media through this package, only references resolved by the caller's
// capture layer.
package capability

import (
	"context"
	"fmt"
	"math"

	pstrings "kycgate/pkg/platform/strings"
)

// Variant identifies the kind of analysis a provider performs.
type Variant string

const (
	VariantDeepfakeFace         Variant = "deepfake_face"
	VariantGANFace              Variant = "gan_face"
	VariantSpoof                Variant = "spoof"
	VariantVoiceClone           Variant = "voice_clone"
	VariantLipSync              Variant = "lip_sync"
	VariantDocumentAuthenticity Variant = "document_authenticity"
)

// AllVariants lists every supported variant in a stable order.
func AllVariants() []Variant {
	return []Variant{
		VariantDeepfakeFace,
		VariantGANFace,
		VariantSpoof,
		VariantVoiceClone,
		VariantLipSync,
		VariantDocumentAuthenticity,
	}
}

// IsValid reports whether v is a supported variant.
func (v Variant) IsValid() bool {
	for _, known := range AllVariants() {
		if v == known {
			return true
		}
	}
	return false
}

// ParseVariant validates a variant name from configuration.
func ParseVariant(s string) (Variant, error) {
	v := Variant(s)
	if !v.IsValid() {
		return "", fmt.Errorf("unknown capability variant %q", s)
	}
	return v, nil
}

// Request is the input to one analysis call.
type Request struct {
	Variant   Variant           `json:"variant"`
	SessionID string            `json:"session_id"`
	MediaRef  string            `json:"media_ref"`
	Hints     map[string]string `json:"hints,omitempty"`
}

// Response is the verbatim detector output.
//
// Score is the probability in [0,1] that the detected attack is present: for
// lip_sync that audio and lips disagree, for document_authenticity that the
// document is forged. Artifacts has set semantics.
type Response struct {
	Score      float64  `json:"score"`
	Label      *string  `json:"label,omitempty"`
	Artifacts  []string `json:"artifacts,omitempty"`
	Confidence float64  `json:"confidence"`
}

// Validate checks the response contract.
func (r *Response) Validate() error {
	if r == nil {
		return fmt.Errorf("empty response")
	}
	if !inUnitRange(r.Score) {
		return fmt.Errorf("score %v out of range [0,1]", r.Score)
	}
	if !inUnitRange(r.Confidence) {
		return fmt.Errorf("confidence %v out of range [0,1]", r.Confidence)
	}
	return nil
}

// Normalized returns a copy with duplicate artifacts removed, keeping first
// occurrence order.
func (r Response) Normalized() Response {
	r.Artifacts = pstrings.Dedupe(r.Artifacts)
	if r.Label != nil {
		label := *r.Label
		r.Label = &label
	}
	return r
}

func inUnitRange(f float64) bool {
	return !math.IsNaN(f) && f >= 0 && f <= 1
}

// Provider is implemented by every detector adapter.
type Provider interface {
	// ID names the concrete provider instance, recorded with each sub-check.
	ID() string
	// Variant is the single analysis this provider performs.
	Variant() Variant
	// Analyze scores one media reference. Failures are *ProviderError.
	Analyze(ctx context.Context, req Request) (*Response, error)
}
