// Package compliance provides the fail-closed ledger publisher.
//
// Emit writes synchronously and returns an error when the entry could not be
// persisted. Callers MUST fail the mutation they were recording: a session
// change without its ledger entry is never committed.
package compliance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	audit "kycgate/pkg/platform/audit"
)

// Publisher emits ledger entries with fail-closed semantics.
type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics
	relay   chan<- audit.Entry
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets a logger for error reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// WithRelay forwards every persisted entry to ch for streaming. Sends never
// block; a full channel drops the copy and counts it. The ledger remains the
// system of record.
func WithRelay(ch chan<- audit.Entry) Option {
	return func(p *Publisher) {
		p.relay = ch
	}
}

// New creates a compliance publisher over store.
func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit validates and persists entry, returning the sealed copy.
func (p *Publisher) Emit(ctx context.Context, entry audit.Entry) (*audit.Entry, error) {
	start := time.Now()

	if entry.SessionID.IsNil() {
		return nil, fmt.Errorf("ledger entry requires SessionID")
	}
	if !entry.EventType.IsValid() {
		return nil, fmt.Errorf("ledger entry has unknown event type %q", entry.EventType)
	}
	if entry.Actor == "" {
		return nil, fmt.Errorf("ledger entry requires Actor")
	}

	sealed, err := p.store.Append(ctx, entry)
	if err != nil {
		p.metrics.IncPersistFailures()
		if p.logger != nil {
			p.logger.ErrorContext(ctx, "CRITICAL: ledger append failed",
				"event_type", entry.EventType,
				"session_id", entry.SessionID,
				"error", err,
			)
		}
		return nil, fmt.Errorf("ledger persistence failed: %w", err)
	}

	p.metrics.ObservePersistDuration(time.Since(start).Seconds())
	p.metrics.IncEventsEmitted(string(entry.EventType))

	if p.relay != nil {
		select {
		case p.relay <- sealed.Clone():
		default:
			p.metrics.IncRelayDropped()
		}
	}
	return sealed, nil
}
