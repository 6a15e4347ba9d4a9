package handler

import (
	"time"

	"kycgate/internal/verification/models"
	id "kycgate/pkg/domain"
)

// StartSessionResponse is returned by POST /sessions.
type StartSessionResponse struct {
	SessionID id.SessionID `json:"session_id"`
	Version   int64        `json:"version"`
	State     models.State `json:"state"`
}

// SessionResponse is the session snapshot.
type SessionResponse struct {
	SessionID       id.SessionID             `json:"session_id"`
	SubjectRef      id.SubjectRef            `json:"subject_ref"`
	State           models.State             `json:"state"`
	Status          models.Status            `json:"status"`
	AutomatedStatus models.Status            `json:"automated_status,omitempty"`
	Version         int64                    `json:"version"`
	Results         []models.StageResult     `json:"results"`
	Assessment      *models.RiskAssessment   `json:"assessment,omitempty"`
	Override        *models.OverrideDecision `json:"override,omitempty"`
	NextStage       models.StageKind         `json:"next_stage,omitempty"`
	CreatedAt       time.Time                `json:"created_at"`
	UpdatedAt       time.Time                `json:"updated_at"`
}

func FromSession(s *models.Session) SessionResponse {
	resp := SessionResponse{
		SessionID:       s.ID,
		SubjectRef:      s.SubjectRef,
		State:           s.State,
		Status:          s.Status,
		AutomatedStatus: s.AutomatedStatus,
		Version:         s.Version,
		Results:         s.Results,
		Assessment:      s.Assessment,
		Override:        s.Override,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
	if t, ok := models.NextTransition(s.State); ok && !s.IsTerminal() {
		resp.NextStage = t.Stage
	}
	return resp
}

// SessionListResponse is returned by GET /sessions.
type SessionListResponse struct {
	Sessions []SessionResponse `json:"sessions"`
	Total    int               `json:"total"`
}

func FromSessions(sessions []*models.Session) SessionListResponse {
	out := SessionListResponse{Sessions: make([]SessionResponse, 0, len(sessions)), Total: len(sessions)}
	for _, s := range sessions {
		out.Sessions = append(out.Sessions, FromSession(s))
	}
	return out
}
