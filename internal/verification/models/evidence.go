package models

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"kycgate/internal/capability"
	id "kycgate/pkg/domain"
	dErrors "kycgate/pkg/domain-errors"
)

// Evidence is the typed payload of one stage submission. It only carries
// references to captured media, never the media itself.
type Evidence interface {
	Kind() StageKind
	// Validate checks the stage schema. now bounds date fields.
	Validate(now time.Time) error
	// Targets lists the capability calls the evidence requires.
	Targets() []Target
}

// Target is one capability call derived from evidence.
type Target struct {
	Variant  capability.Variant
	MediaRef string
	Hints    map[string]string
}

// Challenge is one liveness prompt shown to the subject.
type Challenge string

const (
	ChallengeBlink     Challenge = "blink"
	ChallengeSmile     Challenge = "smile"
	ChallengeTurnLeft  Challenge = "turn_left"
	ChallengeTurnRight Challenge = "turn_right"
	ChallengeOpenMouth Challenge = "open_mouth"
)

func (c Challenge) isValid() bool {
	switch c {
	case ChallengeBlink, ChallengeSmile, ChallengeTurnLeft, ChallengeTurnRight, ChallengeOpenMouth:
		return true
	}
	return false
}

const (
	maxNameLen      = 100
	maxRefLen       = 512
	maxDocuments    = 5
	maxChallenges   = 5
	maxPhraseLen    = 200
	maxReasonLen    = 1000
	dateLayout      = "2006-01-02"
	earliestBirthYr = 1900
)

// PersonalInfoEvidence identifies the subject. Only a hash of the national
// ID fragment survives into the stage result.
type PersonalInfoEvidence struct {
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	DateOfBirth     string `json:"date_of_birth"`
	NationalIDLast4 string `json:"national_id_last4"`
}

func (e *PersonalInfoEvidence) Kind() StageKind    { return StagePersonalInfo }
func (e *PersonalInfoEvidence) Targets() []Target { return nil }

func (e *PersonalInfoEvidence) normalize() {
	e.FirstName = strings.TrimSpace(e.FirstName)
	e.LastName = strings.TrimSpace(e.LastName)
	e.DateOfBirth = strings.TrimSpace(e.DateOfBirth)
	e.NationalIDLast4 = strings.TrimSpace(e.NationalIDLast4)
}

func (e *PersonalInfoEvidence) Validate(now time.Time) error {
	if err := requireText("first_name", e.FirstName, maxNameLen); err != nil {
		return err
	}
	if err := requireText("last_name", e.LastName, maxNameLen); err != nil {
		return err
	}
	dob, err := time.Parse(dateLayout, e.DateOfBirth)
	if err != nil {
		return malformed("date_of_birth must be YYYY-MM-DD")
	}
	if !dob.Before(now) || dob.Year() < earliestBirthYr {
		return malformed("date_of_birth must be in the past")
	}
	if len(e.NationalIDLast4) != 4 || strings.Trim(e.NationalIDLast4, "0123456789") != "" {
		return malformed("national_id_last4 must be exactly 4 digits")
	}
	return nil
}

// NationalIDHash returns an HMAC-SHA256 of the ID fragment bound to the
// subject. Four digits are trivially enumerable, so the hash is only as
// private as key.
func (e *PersonalInfoEvidence) NationalIDHash(key []byte, subject id.SubjectRef) string {
	return keyedDigest(key, "national_id:"+string(subject)+":", []byte(e.NationalIDLast4))
}

// Document references one uploaded identity document.
type Document struct {
	Ref      string `json:"ref"`
	FileName string `json:"file_name,omitempty"`
	DocType  string `json:"doc_type,omitempty"`
}

type DocumentsEvidence struct {
	Documents []Document `json:"documents"`
}

func (e *DocumentsEvidence) Kind() StageKind { return StageDocuments }

func (e *DocumentsEvidence) normalize() {
	for i := range e.Documents {
		e.Documents[i].Ref = strings.TrimSpace(e.Documents[i].Ref)
		e.Documents[i].FileName = strings.TrimSpace(e.Documents[i].FileName)
		e.Documents[i].DocType = strings.TrimSpace(e.Documents[i].DocType)
	}
}

func (e *DocumentsEvidence) Validate(time.Time) error {
	if len(e.Documents) == 0 || len(e.Documents) > maxDocuments {
		return malformed(fmt.Sprintf("documents must contain 1 to %d entries", maxDocuments))
	}
	seen := make(map[string]struct{}, len(e.Documents))
	for i, d := range e.Documents {
		if err := requireText(fmt.Sprintf("documents[%d].ref", i), d.Ref, maxRefLen); err != nil {
			return err
		}
		if _, dup := seen[d.Ref]; dup {
			return malformed(fmt.Sprintf("documents[%d].ref is repeated", i))
		}
		seen[d.Ref] = struct{}{}
		if len(d.FileName) > maxNameLen || len(d.DocType) > maxNameLen {
			return malformed(fmt.Sprintf("documents[%d] metadata too long", i))
		}
	}
	return nil
}

func (e *DocumentsEvidence) Targets() []Target {
	out := make([]Target, 0, len(e.Documents))
	for _, d := range e.Documents {
		hints := map[string]string{}
		if d.DocType != "" {
			hints["doc_type"] = d.DocType
		}
		if d.FileName != "" {
			hints["file_name"] = d.FileName
		}
		out = append(out, Target{Variant: capability.VariantDocumentAuthenticity, MediaRef: d.Ref, Hints: hints})
	}
	return out
}

// SelfieEvidence references one captured face frame. Deepfake, GAN and spoof
// detectors all run against the same frame.
type SelfieEvidence struct {
	FrameRef string `json:"frame_ref"`
}

func (e *SelfieEvidence) Kind() StageKind { return StageSelfie }
func (e *SelfieEvidence) normalize()      { e.FrameRef = strings.TrimSpace(e.FrameRef) }

func (e *SelfieEvidence) Validate(time.Time) error {
	return requireText("frame_ref", e.FrameRef, maxRefLen)
}

func (e *SelfieEvidence) Targets() []Target {
	return []Target{
		{Variant: capability.VariantDeepfakeFace, MediaRef: e.FrameRef},
		{Variant: capability.VariantGANFace, MediaRef: e.FrameRef},
		{Variant: capability.VariantSpoof, MediaRef: e.FrameRef},
	}
}

// LivenessEvidence references the challenge recording.
type LivenessEvidence struct {
	VideoRef   string      `json:"video_ref"`
	Challenges []Challenge `json:"challenges"`
}

func (e *LivenessEvidence) Kind() StageKind { return StageLiveness }
func (e *LivenessEvidence) normalize()      { e.VideoRef = strings.TrimSpace(e.VideoRef) }

func (e *LivenessEvidence) Validate(time.Time) error {
	if err := requireText("video_ref", e.VideoRef, maxRefLen); err != nil {
		return err
	}
	if len(e.Challenges) == 0 || len(e.Challenges) > maxChallenges {
		return malformed(fmt.Sprintf("challenges must contain 1 to %d entries", maxChallenges))
	}
	seen := make(map[Challenge]struct{}, len(e.Challenges))
	for _, c := range e.Challenges {
		if !c.isValid() {
			return malformed("unknown challenge: " + string(c))
		}
		if _, dup := seen[c]; dup {
			return malformed("challenge repeated: " + string(c))
		}
		seen[c] = struct{}{}
	}
	return nil
}

func (e *LivenessEvidence) Targets() []Target {
	names := make([]string, len(e.Challenges))
	for i, c := range e.Challenges {
		names[i] = string(c)
	}
	return []Target{{
		Variant:  capability.VariantSpoof,
		MediaRef: e.VideoRef,
		Hints:    map[string]string{"challenges": strings.Join(names, ",")},
	}}
}

// VoiceEvidence references the spoken-phrase recording and its video.
type VoiceEvidence struct {
	AudioRef   string `json:"audio_ref"`
	VideoRef   string `json:"video_ref"`
	Phrase     string `json:"phrase"`
	DurationMS int64  `json:"duration_ms"`
}

func (e *VoiceEvidence) Kind() StageKind { return StageVoice }

func (e *VoiceEvidence) normalize() {
	e.AudioRef = strings.TrimSpace(e.AudioRef)
	e.VideoRef = strings.TrimSpace(e.VideoRef)
	e.Phrase = strings.TrimSpace(e.Phrase)
}

func (e *VoiceEvidence) Validate(time.Time) error {
	if err := requireText("audio_ref", e.AudioRef, maxRefLen); err != nil {
		return err
	}
	if err := requireText("video_ref", e.VideoRef, maxRefLen); err != nil {
		return err
	}
	if err := requireText("phrase", e.Phrase, maxPhraseLen); err != nil {
		return err
	}
	if e.DurationMS <= 0 {
		return malformed("duration_ms must be positive")
	}
	return nil
}

func (e *VoiceEvidence) Targets() []Target {
	return []Target{
		{Variant: capability.VariantVoiceClone, MediaRef: e.AudioRef},
		{Variant: capability.VariantLipSync, MediaRef: e.VideoRef,
			Hints: map[string]string{"audio_ref": e.AudioRef, "phrase": e.Phrase}},
	}
}

type normalizer interface {
	Evidence
	normalize()
}

func newEvidence(kind StageKind) (normalizer, bool) {
	switch kind {
	case StagePersonalInfo:
		return &PersonalInfoEvidence{}, true
	case StageDocuments:
		return &DocumentsEvidence{}, true
	case StageSelfie:
		return &SelfieEvidence{}, true
	case StageLiveness:
		return &LivenessEvidence{}, true
	case StageVoice:
		return &VoiceEvidence{}, true
	}
	return nil, false
}

// DecodeEvidence strictly decodes raw into the stage's evidence type and
// returns it with its digest: an HMAC-SHA256 under key of the normalized JSON
// encoding. Two submissions with the same content yield the same digest
// regardless of field order or surrounding whitespace. It does not run
// Validate.
func DecodeEvidence(key []byte, kind StageKind, raw json.RawMessage) (Evidence, string, error) {
	ev, ok := newEvidence(kind)
	if !ok {
		return nil, "", dErrors.New(dErrors.CodeInvalidTransition, "unknown stage kind: "+string(kind))
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, "", malformed("evidence is required")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(ev); err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeMalformedEvidence, "evidence does not match the "+string(kind)+" schema")
	}
	if dec.More() {
		return nil, "", malformed("evidence must be a single JSON object")
	}
	ev.normalize()
	canonical, err := json.Marshal(ev)
	if err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeMalformedEvidence, "evidence cannot be encoded")
	}
	return ev, keyedDigest(key, string(kind)+":", canonical), nil
}

func keyedDigest(key []byte, prefix string, body []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(prefix))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// SkipDigest is the digest recorded for a skipped stage, so a repeated skip
// with the same reason replays.
func SkipDigest(kind StageKind, reason string) string {
	sum := sha256.Sum256([]byte("skip:" + string(kind) + ":" + reason))
	return hex.EncodeToString(sum[:])
}

// ValidateReason checks a free-text justification from a reviewer or caller.
func ValidateReason(reason string) (string, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return "", dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	if !utf8.ValidString(reason) || len(reason) > maxReasonLen {
		return "", dErrors.New(dErrors.CodeValidation, fmt.Sprintf("reason must be valid text of at most %d bytes", maxReasonLen))
	}
	return reason, nil
}

func requireText(field, value string, maxLen int) error {
	if value == "" {
		return malformed(field + " is required")
	}
	if !utf8.ValidString(value) || len(value) > maxLen {
		return malformed(fmt.Sprintf("%s must be valid text of at most %d bytes", field, maxLen))
	}
	return nil
}

func malformed(msg string) error {
	return dErrors.New(dErrors.CodeMalformedEvidence, msg)
}
