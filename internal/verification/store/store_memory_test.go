package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"kycgate/internal/verification/models"
	id "kycgate/pkg/domain"
	"kycgate/pkg/platform/sentinel"
	"kycgate/pkg/requestcontext"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
	now   time.Time
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.ctx = context.Background()
	s.now = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
}

func (s *InMemoryStoreSuite) newSession(offset time.Duration) *models.Session {
	session := models.NewSession(id.NewSessionID(), "subject", s.now.Add(offset))
	s.Require().NoError(s.store.Create(s.ctx, session))
	return session
}

func (s *InMemoryStoreSuite) TestSaveComparesVersion() {
	session := s.newSession(0)

	s.Run("matching version saves", func() {
		session.Record(models.StageResult{StageKind: models.StagePersonalInfo, Outcome: models.OutcomeCompleted}, models.StatePersonalInfoCollected, s.now)
		s.Require().NoError(s.store.Save(s.ctx, session, 1))

		got, err := s.store.FindByID(s.ctx, session.ID)
		s.Require().NoError(err)
		s.Equal(int64(2), got.Version)
	})

	s.Run("stale version conflicts", func() {
		err := s.store.Save(s.ctx, session, 1)
		s.ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("unknown session is not found", func() {
		other := models.NewSession(id.NewSessionID(), "x", s.now)
		s.ErrorIs(s.store.Save(s.ctx, other, 1), sentinel.ErrNotFound)
	})
}

func (s *InMemoryStoreSuite) TestTxRollsBackOnFailure() {
	session := s.newSession(0)
	boom := errors.New("ledger unavailable")

	err := MemoryTx{}.RunInTx(s.ctx, func(ctx context.Context) error {
		updated := session.Clone()
		updated.Record(models.StageResult{StageKind: models.StagePersonalInfo}, models.StatePersonalInfoCollected, s.now)
		if err := s.store.Save(ctx, updated, 1); err != nil {
			return err
		}
		fresh := models.NewSession(id.NewSessionID(), "other", s.now)
		if err := s.store.Create(ctx, fresh); err != nil {
			return err
		}
		return boom
	})
	s.Require().ErrorIs(err, boom)

	got, err := s.store.FindByID(s.ctx, session.ID)
	s.Require().NoError(err)
	s.Equal(int64(1), got.Version, "save is undone")
	s.Equal(models.StateCreated, got.State)

	all, err := s.store.List(s.ctx, models.ListFilter{})
	s.Require().NoError(err)
	s.Len(all, 1, "create is undone")
}

func (s *InMemoryStoreSuite) TestListFiltersAndSorts() {
	later := s.newSession(2 * time.Minute)
	earlier := s.newSession(time.Minute)
	flagged := s.newSession(3 * time.Minute)
	flagged.Assess(models.RiskAssessment{Disposition: models.StatusSuspicious}, s.now)
	s.Require().NoError(s.store.Save(s.ctx, flagged, 1))

	all, err := s.store.List(s.ctx, models.ListFilter{})
	s.Require().NoError(err)
	s.Require().Len(all, 3)
	s.Equal(earlier.ID, all[0].ID)
	s.Equal(later.ID, all[1].ID)

	suspicious, err := s.store.List(s.ctx, models.ListFilter{Status: models.StatusSuspicious})
	s.Require().NoError(err)
	s.Require().Len(suspicious, 1)
	s.Equal(flagged.ID, suspicious[0].ID)
}

func (s *InMemoryStoreSuite) TestReturnedSessionsAreCopies() {
	session := s.newSession(0)
	got, err := s.store.FindByID(s.ctx, session.ID)
	s.Require().NoError(err)
	got.Status = models.StatusVerified

	again, err := s.store.FindByID(s.ctx, session.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusInProgress, again.Status)
}

func TestMemoryGuard(t *testing.T) {
	guard := NewMemoryGuard()
	start := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	at := func(d time.Duration) context.Context {
		return requestcontext.WithTime(context.Background(), start.Add(d))
	}

	if err := guard.Claim(at(0), "subject-1", 15*time.Minute); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if err := guard.Claim(at(time.Minute), "subject-1", 15*time.Minute); !errors.Is(err, sentinel.ErrAlreadyUsed) {
		t.Fatalf("expected ErrAlreadyUsed inside the window, got %v", err)
	}
	if err := guard.Claim(at(time.Minute), "subject-2", 15*time.Minute); err != nil {
		t.Fatalf("other subject: %v", err)
	}
	if err := guard.Claim(at(16*time.Minute), "subject-1", 15*time.Minute); err != nil {
		t.Fatalf("claim after window: %v", err)
	}
	_ = guard.Release(context.Background(), "subject-2")
	if err := guard.Claim(at(17*time.Minute), "subject-2", 15*time.Minute); err != nil {
		t.Fatalf("claim after release: %v", err)
	}
}

func TestMemoryGuardSweepsOnInterval(t *testing.T) {
	guard := NewMemoryGuard()
	start := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	claim := func(subject id.SubjectRef, d time.Duration) {
		t.Helper()
		ctx := requestcontext.WithTime(context.Background(), start.Add(d))
		if err := guard.Claim(ctx, subject, 10*time.Second); err != nil {
			t.Fatalf("claim %s: %v", subject, err)
		}
	}

	claim("subject-1", 0)
	claim("subject-2", 30*time.Second)
	if got := len(guard.expires); got != 2 {
		t.Fatalf("expected expired claim to linger until the next sweep, have %d entries", got)
	}
	// An expired claim that has not been swept yet does not block.
	claim("subject-1", 40*time.Second)

	claim("subject-3", guardSweepInterval+time.Second)
	if got := len(guard.expires); got != 1 {
		t.Fatalf("expected only the live claim after a sweep, have %d entries", got)
	}
	if _, ok := guard.expires["subject-3"]; !ok {
		t.Fatal("live claim was swept")
	}
}
