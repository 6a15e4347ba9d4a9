// Package service runs the verification session state machine: it orders
// stage submissions, fans out to detectors, and commits each transition
// together with its ledger entry.
package service

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"time"

	"kycgate/internal/capability"
	"kycgate/internal/verification/metrics"
	"kycgate/internal/verification/models"
	"kycgate/internal/verification/store"
	id "kycgate/pkg/domain"
	dErrors "kycgate/pkg/domain-errors"
	"kycgate/pkg/platform/audit"
	"kycgate/pkg/platform/keylock"
	"kycgate/pkg/platform/sentinel"
)

// DefaultDuplicateWindow is how long a subject is barred from opening a
// second session.
const DefaultDuplicateWindow = 15 * time.Minute

type SessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	FindByID(ctx context.Context, sessionID id.SessionID) (*models.Session, error)
	Save(ctx context.Context, session *models.Session, expectedVersion int64) error
	List(ctx context.Context, filter models.ListFilter) ([]*models.Session, error)
}

// TxRunner commits everything fn writes, or nothing.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type DuplicateGuard interface {
	Claim(ctx context.Context, subject id.SubjectRef, window time.Duration) error
	Release(ctx context.Context, subject id.SubjectRef) error
}

// Ledger appends audit entries. A failed append must fail the mutation.
type Ledger interface {
	Emit(ctx context.Context, entry audit.Entry) (*audit.Entry, error)
}

type LedgerReader interface {
	Query(ctx context.Context, sessionID id.SessionID) ([]audit.Entry, error)
}

// Service orchestrates verification sessions.
type Service struct {
	sessions   SessionStore
	providers  *capability.Registry
	ledger     Ledger
	reader     LedgerReader
	tx         TxRunner
	guard      DuplicateGuard
	locks      *keylock.Locker[id.SessionID]
	logger     *slog.Logger
	metrics    *metrics.Metrics
	thresholds capability.Thresholds
	timeout    time.Duration
	window     time.Duration
	optional   map[models.StageKind]bool
	hashKey    []byte
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTx sets the transaction runner shared by the session store and ledger.
func WithTx(tx TxRunner) Option {
	return func(s *Service) { s.tx = tx }
}

func WithDuplicateGuard(guard DuplicateGuard, window time.Duration) Option {
	return func(s *Service) {
		s.guard = guard
		s.window = window
	}
}

// WithLocks shares the per-session lock table with other writers such as
// the review gate.
func WithLocks(locks *keylock.Locker[id.SessionID]) Option {
	return func(s *Service) { s.locks = locks }
}

func WithThresholds(t capability.Thresholds) Option {
	return func(s *Service) { s.thresholds = t }
}

func WithProviderTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

func WithLedgerReader(r LedgerReader) Option {
	return func(s *Service) { s.reader = r }
}

// WithHashKey sets the secret that keys evidence digests and the national ID
// hash. Digests only replay across restarts when the key is stable.
func WithHashKey(key []byte) Option {
	return func(s *Service) { s.hashKey = append([]byte(nil), key...) }
}

// WithOptionalStages marks stage kinds that may be skipped.
func WithOptionalStages(kinds ...models.StageKind) Option {
	return func(s *Service) {
		for _, k := range kinds {
			s.optional[k] = true
		}
	}
}

// New constructs a Service. Without WithTx it assumes the in-memory stores.
func New(sessions SessionStore, providers *capability.Registry, ledger Ledger, opts ...Option) *Service {
	s := &Service{
		sessions:  sessions,
		providers: providers,
		ledger:    ledger,
		timeout:   capability.DefaultTimeout,
		window:    DefaultDuplicateWindow,
		optional:  make(map[models.StageKind]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = store.MemoryTx{}
	}
	if s.locks == nil {
		s.locks = keylock.New[id.SessionID]()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.providers == nil {
		s.providers, _ = capability.NewRegistry()
	}
	if len(s.hashKey) == 0 {
		s.hashKey = make([]byte, 32)
		_, _ = rand.Read(s.hashKey)
	}
	return s
}

// Locks exposes the per-session lock table so other writers can share it.
func (s *Service) Locks() *keylock.Locker[id.SessionID] {
	return s.locks
}

// IsOptional reports whether kind may be skipped.
func (s *Service) IsOptional(kind models.StageKind) bool {
	return s.optional[kind]
}

// lock takes the per-session critical section.
func (s *Service) lock(ctx context.Context, sessionID id.SessionID) (func(), error) {
	unlock, err := s.locks.Lock(ctx, sessionID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "request cancelled while waiting for session")
	}
	return unlock, nil
}

func (s *Service) load(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to load session")
	}
	return session, nil
}

func wrapStoreErr(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "session not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "stale version: session changed concurrently")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}
