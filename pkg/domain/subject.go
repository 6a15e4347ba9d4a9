package domain

import (
	"strings"
	"unicode/utf8"

	dErrors "kycgate/pkg/domain-errors"
)

// SubjectRef is the caller's opaque reference to the person being verified.
// It is never interpreted, only compared.
type SubjectRef string

const maxSubjectRefLen = 128

// ParseSubjectRef validates a subject reference from external input.
func ParseSubjectRef(s string) (SubjectRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "subject_ref is required")
	}
	if !utf8.ValidString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "subject_ref must be valid UTF-8")
	}
	if len(s) > maxSubjectRefLen {
		return "", dErrors.New(dErrors.CodeInvalidInput, "subject_ref must be at most 128 bytes")
	}
	return SubjectRef(s), nil
}

func (s SubjectRef) String() string { return string(s) }
