package store

import (
	"context"
	"sync"
	"time"

	id "kycgate/pkg/domain"
	"kycgate/pkg/platform/sentinel"
	"kycgate/pkg/requestcontext"
)

// guardSweepInterval spaces out purges of expired claims so Claim stays
// constant time between them.
const guardSweepInterval = time.Minute

// MemoryGuard remembers which subjects started a session recently.
type MemoryGuard struct {
	mu        sync.Mutex
	expires   map[id.SubjectRef]time.Time
	lastSweep time.Time
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{expires: make(map[id.SubjectRef]time.Time)}
}

// Claim reserves subject for window. It fails with sentinel.ErrAlreadyUsed
// while an earlier claim is still live.
func (g *MemoryGuard) Claim(ctx context.Context, subject id.SubjectRef, window time.Duration) error {
	now := requestcontext.Now(ctx)
	g.mu.Lock()
	defer g.mu.Unlock()
	if exp, ok := g.expires[subject]; ok && now.Before(exp) {
		return sentinel.ErrAlreadyUsed
	}
	g.expires[subject] = now.Add(window)
	g.sweep(now)
	return nil
}

// Release drops a claim, used when session creation fails after claiming.
func (g *MemoryGuard) Release(_ context.Context, subject id.SubjectRef) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.expires, subject)
	return nil
}

func (g *MemoryGuard) sweep(now time.Time) {
	if now.Sub(g.lastSweep) < guardSweepInterval {
		return
	}
	g.lastSweep = now
	for subject, exp := range g.expires {
		if !now.Before(exp) {
			delete(g.expires, subject)
		}
	}
}
