package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "kycgate/pkg/domain-errors"
)

// TestParseSessionID_Invariants validates the parsing invariant:
// "session IDs must be valid, non-empty, non-nil UUIDs"
func TestParseSessionID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseSessionID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseSessionID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseSessionID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		valid := uuid.New()
		got, err := ParseSessionID(valid.String())
		require.NoError(t, err)
		assert.Equal(t, SessionID(valid), got)
	})
}

// TestParseID_SecurityInvariants validates trust-boundary parsing rules.
func TestParseID_SecurityInvariants(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"SQL injection attempt", "'; DROP TABLE sessions;--", true},
		{"Path traversal", "../../../etc/passwd", true},
		{"Null byte injection", "550e8400\x00-e29b-41d4-a716-446655440000", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Unicode zero-width space", "550e8400\u200B-e29b-41d4-a716-446655440000", true},

		{"Empty string", "", true},
		{"Nil UUID", uuid.Nil.String(), true},
		{"Whitespace only", "   ", true},
		{"Uppercase valid UUID", "550E8400-E29B-41D4-A716-446655440000", false},
		{"Surrounding whitespace", " 550e8400-e29b-41d4-a716-446655440000 ", false},

		{"Valid UUID lowercase", "550e8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errSession := ParseSessionID(tt.input)
			_, errEntry := ParseEntryID(tt.input)
			if tt.wantErr {
				require.Error(t, errSession)
				require.Error(t, errEntry)
				assert.True(t, dErrors.HasCode(errSession, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, errSession)
				require.NoError(t, errEntry)
			}
		})
	}
}

func TestSessionID_TextRoundTrip(t *testing.T) {
	original := NewSessionID()
	text, err := original.MarshalText()
	require.NoError(t, err)

	var decoded SessionID
	require.NoError(t, decoded.UnmarshalText(text))
	assert.Equal(t, original, decoded)
}

func TestParseSubjectRef(t *testing.T) {
	t.Run("trims and accepts", func(t *testing.T) {
		ref, err := ParseSubjectRef("  applicant-42 ")
		require.NoError(t, err)
		assert.Equal(t, SubjectRef("applicant-42"), ref)
	})

	t.Run("rejects blank", func(t *testing.T) {
		_, err := ParseSubjectRef("   ")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects oversized", func(t *testing.T) {
		_, err := ParseSubjectRef(strings.Repeat("x", 129))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}
