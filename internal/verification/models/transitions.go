package models

import (
	"strings"

	"kycgate/internal/capability"
	dErrors "kycgate/pkg/domain-errors"
)

// State is the session's position in the verification sequence.
type State string

const (
	StateCreated               State = "created"
	StatePersonalInfoCollected State = "personal_info_collected"
	StateDocumentsSubmitted    State = "documents_submitted"
	StateSelfieCaptured        State = "selfie_captured"
	StateLivenessVerified      State = "liveness_verified"
	StateVoiceVerified         State = "voice_verified"
	StateAssessed              State = "assessed"
)

// StageKind names one evidentiary step.
type StageKind string

const (
	StagePersonalInfo StageKind = "personal_info"
	StageDocuments    StageKind = "documents"
	StageSelfie       StageKind = "selfie"
	StageLiveness     StageKind = "liveness"
	StageVoice        StageKind = "voice"
)

// Transition is the single legal step out of a state.
type Transition struct {
	Stage StageKind
	Next  State
}

var transitions = map[State]Transition{
	StateCreated:               {Stage: StagePersonalInfo, Next: StatePersonalInfoCollected},
	StatePersonalInfoCollected: {Stage: StageDocuments, Next: StateDocumentsSubmitted},
	StateDocumentsSubmitted:    {Stage: StageSelfie, Next: StateSelfieCaptured},
	StateSelfieCaptured:        {Stage: StageLiveness, Next: StateLivenessVerified},
	StateLivenessVerified:      {Stage: StageVoice, Next: StateVoiceVerified},
}

// stageVariants lists the capability variants each stage invokes.
var stageVariants = map[StageKind][]capability.Variant{
	StagePersonalInfo: nil,
	StageDocuments:    {capability.VariantDocumentAuthenticity},
	StageSelfie:       {capability.VariantDeepfakeFace, capability.VariantGANFace, capability.VariantSpoof},
	StageLiveness:     {capability.VariantSpoof},
	StageVoice:        {capability.VariantVoiceClone, capability.VariantLipSync},
}

// StageOrder lists stage kinds in the order they must be submitted.
func StageOrder() []StageKind {
	return []StageKind{StagePersonalInfo, StageDocuments, StageSelfie, StageLiveness, StageVoice}
}

// NextTransition returns the legal step out of state. Assessed and unknown
// states have none.
func NextTransition(state State) (Transition, bool) {
	t, ok := transitions[state]
	return t, ok
}

// Variants returns the capability variants the stage invokes.
func (k StageKind) Variants() []capability.Variant {
	return append([]capability.Variant(nil), stageVariants[k]...)
}

// IsValid reports whether k is a known stage kind.
func (k StageKind) IsValid() bool {
	_, ok := stageVariants[k]
	return ok
}

// ParseStageKind validates a stage kind from a request path.
func ParseStageKind(s string) (StageKind, error) {
	k := StageKind(strings.TrimSpace(s))
	if !k.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidTransition, "unknown stage kind: "+s)
	}
	return k, nil
}

// ParseStatus validates a status filter.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.TrimSpace(s))
	if !st.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown status: "+s)
	}
	return st, nil
}
