package memory

import (
	"context"
	"sync"

	id "kycgate/pkg/domain"
	audit "kycgate/pkg/platform/audit"
)

// InMemoryStore keeps the ledger in process. Appends are serialized so the
// hash chain has a single tail.
type InMemoryStore struct {
	mu        sync.RWMutex
	entries   []audit.Entry
	bySession map[id.SessionID][]int
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{bySession: make(map[id.SessionID][]int)}
}

func (s *InMemoryStore) Append(_ context.Context, entry audit.Entry) (*audit.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var prev *audit.Entry
	if n := len(s.entries); n > 0 {
		prev = &s.entries[n-1]
	}
	sealed := audit.Seal(prev, entry.Clone())
	s.entries = append(s.entries, sealed)
	s.bySession[sealed.SessionID] = append(s.bySession[sealed.SessionID], len(s.entries)-1)

	out := sealed.Clone()
	return &out, nil
}

func (s *InMemoryStore) Query(_ context.Context, sessionID id.SessionID) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.bySession[sessionID]
	out := make([]audit.Entry, 0, len(idx))
	for _, i := range idx {
		out = append(out, s.entries[i].Clone())
	}
	return out, nil
}

func (s *InMemoryStore) All(_ context.Context) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]audit.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.Clone())
	}
	return out, nil
}

// Len returns the number of entries. Test helper.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Tamper overwrites the stored detail of the entry at sequence seq without
// resealing. It exists so chain verification can be exercised in tests.
func (s *InMemoryStore) Tamper(seq int64, detail []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if s.entries[i].Sequence == seq {
			s.entries[i].Detail = append([]byte(nil), detail...)
			return true
		}
	}
	return false
}
