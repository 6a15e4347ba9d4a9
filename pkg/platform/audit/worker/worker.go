// Package worker relays persisted ledger entries to an external stream.
package worker

import (
	"context"
	"log/slog"

	audit "kycgate/pkg/platform/audit"
)

// Sink receives relayed entries.
type Sink interface {
	Publish(ctx context.Context, entry audit.Entry) error
}

// Worker consumes entries from the publisher's relay channel and hands them to
// a sink. Delivery is best effort: a failed publish is logged and the worker
// moves on, since the ledger already holds the entry.
type Worker struct {
	sink   Sink
	inbox  <-chan audit.Entry
	logger *slog.Logger
}

func NewWorker(sink Sink, inbox <-chan audit.Entry, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Worker{sink: sink, inbox: inbox, logger: logger}
}

// Run blocks until ctx is done or the inbox is closed. Entries still buffered
// when the inbox closes are delivered before Run returns.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case entry, ok := <-w.inbox:
			if !ok {
				return nil
			}
			if err := w.sink.Publish(ctx, entry); err != nil {
				w.logger.WarnContext(ctx, "ledger relay publish failed",
					"sequence", entry.Sequence,
					"session_id", entry.SessionID,
					"error", err,
				)
			}
		}
	}
}
