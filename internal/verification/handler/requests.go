package handler

import (
	"encoding/json"

	id "kycgate/pkg/domain"
	dErrors "kycgate/pkg/domain-errors"
)

// StartSessionRequest is the body of POST /sessions.
type StartSessionRequest struct {
	SubjectRef string `json:"subject_ref"`

	parsedSubject id.SubjectRef
}

// Validate implements httputil.Validatable.
func (r *StartSessionRequest) Validate() error {
	subject, err := id.ParseSubjectRef(r.SubjectRef)
	if err != nil {
		return err
	}
	r.parsedSubject = subject
	return nil
}

// SubmitStageRequest is the body of POST /sessions/{id}/stages/{kind}.
// Evidence is decoded against the stage schema by the service.
type SubmitStageRequest struct {
	Version  int64           `json:"version"`
	Evidence json.RawMessage `json:"evidence"`
}

func (r *SubmitStageRequest) Validate() error {
	if r.Version < 1 {
		return dErrors.New(dErrors.CodeValidation, "version must be at least 1")
	}
	return nil
}

// SkipStageRequest is the body of POST /sessions/{id}/stages/{kind}/skip.
type SkipStageRequest struct {
	Version int64  `json:"version"`
	Reason  string `json:"reason"`
}

func (r *SkipStageRequest) Validate() error {
	if r.Version < 1 {
		return dErrors.New(dErrors.CodeValidation, "version must be at least 1")
	}
	return nil
}
