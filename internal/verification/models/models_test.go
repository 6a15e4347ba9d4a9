package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kycgate/internal/capability"
	id "kycgate/pkg/domain"
	dErrors "kycgate/pkg/domain-errors"
)

var (
	now     = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	testKey = []byte("models-test-hash-key")
)

func TestTransitionTable_WalksStagesInOrder(t *testing.T) {
	state := StateCreated
	for _, kind := range StageOrder() {
		tr, ok := NextTransition(state)
		require.True(t, ok, "state %s has no transition", state)
		assert.Equal(t, kind, tr.Stage)
		state = tr.Next
	}
	assert.Equal(t, StateVoiceVerified, state)

	_, ok := NextTransition(StateVoiceVerified)
	assert.False(t, ok, "voice_verified only leaves through completion")
	_, ok = NextTransition(StateAssessed)
	assert.False(t, ok)
}

func TestStageVariants(t *testing.T) {
	assert.Empty(t, StagePersonalInfo.Variants())
	assert.Equal(t, []capability.Variant{capability.VariantDeepfakeFace, capability.VariantGANFace, capability.VariantSpoof}, StageSelfie.Variants())
	assert.Equal(t, []capability.Variant{capability.VariantVoiceClone, capability.VariantLipSync}, StageVoice.Variants())
}

func TestDecodeEvidence_DigestIgnoresFormatting(t *testing.T) {
	_, a, err := DecodeEvidence(testKey, StageVoice, json.RawMessage(`{"audio_ref":"a.wav","video_ref":"v.mp4","phrase":"my voice is my password","duration_ms":3200}`))
	require.NoError(t, err)
	_, b, err := DecodeEvidence(testKey, StageVoice, json.RawMessage(`{ "duration_ms": 3200, "phrase":" my voice is my password ", "video_ref":"v.mp4", "audio_ref":"a.wav" }`))
	require.NoError(t, err)
	assert.Equal(t, a, b)

	_, c, err := DecodeEvidence(testKey, StageVoice, json.RawMessage(`{"audio_ref":"b.wav","video_ref":"v.mp4","phrase":"my voice is my password","duration_ms":3200}`))
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestDecodeEvidence_RejectsShapeErrors(t *testing.T) {
	cases := map[string]string{
		"unknown field": `{"frame_ref":"f.jpg","extra":true}`,
		"wrong type":    `{"frame_ref":42}`,
		"empty":         ``,
		"two objects":   `{"frame_ref":"a"}{"frame_ref":"b"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := DecodeEvidence(testKey, StageSelfie, json.RawMessage(raw))
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeMalformedEvidence))
		})
	}
}

func TestEvidenceValidate(t *testing.T) {
	cases := []struct {
		name  string
		kind  StageKind
		raw   string
		valid bool
	}{
		{"personal info ok", StagePersonalInfo, `{"first_name":"Asha","last_name":"Rao","date_of_birth":"1990-04-12","national_id_last4":"1234"}`, true},
		{"future birth date", StagePersonalInfo, `{"first_name":"Asha","last_name":"Rao","date_of_birth":"2090-04-12","national_id_last4":"1234"}`, false},
		{"letters in id", StagePersonalInfo, `{"first_name":"Asha","last_name":"Rao","date_of_birth":"1990-04-12","national_id_last4":"12a4"}`, false},
		{"missing last name", StagePersonalInfo, `{"first_name":"Asha","date_of_birth":"1990-04-12","national_id_last4":"1234"}`, false},
		{"documents ok", StageDocuments, `{"documents":[{"ref":"doc-1","file_name":"id.png","doc_type":"national_id"}]}`, true},
		{"no documents", StageDocuments, `{"documents":[]}`, false},
		{"repeated document", StageDocuments, `{"documents":[{"ref":"d"},{"ref":"d"}]}`, false},
		{"selfie without frame", StageSelfie, `{"frame_ref":"  "}`, false},
		{"liveness ok", StageLiveness, `{"video_ref":"v.mp4","challenges":["blink","smile","turn_left"]}`, true},
		{"unknown challenge", StageLiveness, `{"video_ref":"v.mp4","challenges":["wink"]}`, false},
		{"repeated challenge", StageLiveness, `{"video_ref":"v.mp4","challenges":["blink","blink"]}`, false},
		{"voice zero duration", StageVoice, `{"audio_ref":"a","video_ref":"v","phrase":"p","duration_ms":0}`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, _, err := DecodeEvidence(testKey, tc.kind, json.RawMessage(tc.raw))
			require.NoError(t, err)
			err = ev.Validate(now)
			if tc.valid {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeMalformedEvidence))
		})
	}
}

func TestTargets(t *testing.T) {
	ev, _, err := DecodeEvidence(testKey, StageDocuments, json.RawMessage(`{"documents":[{"ref":"front"},{"ref":"back","doc_type":"passport"}]}`))
	require.NoError(t, err)
	targets := ev.Targets()
	require.Len(t, targets, 2)
	assert.Equal(t, "back", targets[1].MediaRef)
	assert.Equal(t, "passport", targets[1].Hints["doc_type"])

	ev, _, err = DecodeEvidence(testKey, StageLiveness, json.RawMessage(`{"video_ref":"v.mp4","challenges":["smile","open_mouth"]}`))
	require.NoError(t, err)
	assert.Equal(t, "smile,open_mouth", ev.Targets()[0].Hints["challenges"])
}

func TestNationalIDHash_IsKeyed(t *testing.T) {
	ev := &PersonalInfoEvidence{NationalIDLast4: "4321"}
	h := ev.NationalIDHash(testKey, id.SubjectRef("subject-1"))
	assert.Len(t, h, 64)
	assert.NotContains(t, h, "4321")
	assert.Equal(t, h, ev.NationalIDHash(testKey, id.SubjectRef("subject-1")))
	assert.NotEqual(t, h, ev.NationalIDHash(testKey, id.SubjectRef("subject-2")))
	assert.NotEqual(t, h, ev.NationalIDHash([]byte("other-key"), id.SubjectRef("subject-1")))
}

func TestDecodeEvidence_DigestDependsOnKey(t *testing.T) {
	raw := json.RawMessage(`{"first_name":"Ada","last_name":"Lovelace","date_of_birth":"1990-01-02","national_id_last4":"1234"}`)
	_, a, err := DecodeEvidence(testKey, StagePersonalInfo, raw)
	require.NoError(t, err)
	_, b, err := DecodeEvidence([]byte("other-key"), StagePersonalInfo, raw)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestSession_CloneIsDeep(t *testing.T) {
	s := NewSession(id.NewSessionID(), "subject-1", now)
	label := "StyleGAN3"
	s.Record(StageResult{
		StageKind: StageSelfie,
		Outcome:   OutcomeCompleted,
		Checks:    []SubCheck{{Variant: capability.VariantGANFace, Label: &label, Artifacts: []string{"grid"}}},
		Flags:     map[capability.Variant]bool{capability.VariantGANFace: true},
	}, StateSelfieCaptured, now)

	c := s.Clone()
	c.Results[0].Flags[capability.VariantGANFace] = false
	*c.Results[0].Checks[0].Label = "other"
	c.Results[0].Checks[0].Artifacts[0] = "x"

	orig, _ := s.Result(StageSelfie)
	assert.True(t, orig.Flags[capability.VariantGANFace])
	assert.Equal(t, "StyleGAN3", *orig.Checks[0].Label)
	assert.Equal(t, "grid", orig.Checks[0].Artifacts[0])
	assert.Equal(t, int64(2), s.Version)
}

func TestReviewDecision_ResultingStatus(t *testing.T) {
	for d, want := range map[ReviewDecision]Status{
		DecisionApprove: StatusVerified,
		DecisionFlag:    StatusSuspicious,
		DecisionReject:  StatusRejected,
	} {
		got, ok := d.ResultingStatus()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
	_, ok := ReviewDecision("escalate").ResultingStatus()
	assert.False(t, ok)
}
