// Package audit is the append-only verification ledger.
//
// Every state change of a verification session (start, stage recorded or
// skipped, automated assessment, reviewer override) produces exactly one Entry.
// Entries are never edited or deleted. Each entry is chained to its
// predecessor by a SHA-256 hash so tampering anywhere in the ledger is
// detectable with VerifyChain.
package audit

import (
	"context"
	"encoding/json"
	"time"

	id "kycgate/pkg/domain"
)

// EventType names the kind of session change an entry records.
type EventType string

const (
	EventSessionStarted  EventType = "session_started"
	EventStageRecorded   EventType = "stage_recorded"
	EventStageSkipped    EventType = "stage_skipped"
	EventRiskAssessed    EventType = "risk_assessed"
	EventOverrideApplied EventType = "override_applied"
)

// IsValid reports whether t is one of the known event types.
func (t EventType) IsValid() bool {
	switch t {
	case EventSessionStarted, EventStageRecorded, EventStageSkipped,
		EventRiskAssessed, EventOverrideApplied:
		return true
	}
	return false
}

// ActorSystem is recorded for entries produced by the automated pipeline.
const ActorSystem = "system"

// Entry is one immutable ledger record. Sequence, PrevHash and Hash are
// assigned by the store on Append.
type Entry struct {
	ID        id.EntryID      `json:"id"`
	Sequence  int64           `json:"sequence"`
	SessionID id.SessionID    `json:"session_id"`
	EventType EventType       `json:"event_type"`
	Actor     string          `json:"actor"`
	Timestamp time.Time       `json:"timestamp"`
	Detail    json.RawMessage `json:"detail"`
	PrevHash  string          `json:"prev_hash"`
	Hash      string          `json:"hash"`
}

// Clone returns a copy that shares no memory with e.
func (e Entry) Clone() Entry {
	if e.Detail != nil {
		e.Detail = append(json.RawMessage(nil), e.Detail...)
	}
	return e
}

// Store persists ledger entries. Append is the only mutator.
type Store interface {
	// Append seals entry onto the end of the ledger and returns the stored
	// copy. It is safe for concurrent use across sessions.
	Append(ctx context.Context, entry Entry) (*Entry, error)
	// Query returns the entries of one session ordered by sequence.
	Query(ctx context.Context, sessionID id.SessionID) ([]Entry, error)
	// All returns the whole ledger ordered by sequence.
	All(ctx context.Context) ([]Entry, error)
}

// NewEntry builds an unsealed entry with detail marshaled to JSON.
func NewEntry(sessionID id.SessionID, eventType EventType, actor string, at time.Time, detail any) (Entry, error) {
	raw, err := json.Marshal(detail)
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		SessionID: sessionID,
		EventType: eventType,
		Actor:     actor,
		Timestamp: at,
		Detail:    raw,
	}, nil
}
