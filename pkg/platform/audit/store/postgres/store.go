package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	id "kycgate/pkg/domain"
	audit "kycgate/pkg/platform/audit"
	"kycgate/pkg/platform/sentinel"
	txcontext "kycgate/pkg/platform/tx"
)

// ledgerLockKey is the advisory lock that serializes appends so the hash
// chain has exactly one tail.
const ledgerLockKey = 0x6b79636c6564 // "kycled"

// uniqueViolation is the PostgreSQL SQLSTATE for unique constraint failures.
const uniqueViolation = "23505"

// Store implements audit.Store on the audit_ledger table. Append joins the
// caller's transaction when one is carried in ctx, so a session save and its
// ledger entry commit or roll back together.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL ledger store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Append seals entry onto the ledger tail.
func (s *Store) Append(ctx context.Context, entry audit.Entry) (*audit.Entry, error) {
	var sealed audit.Entry
	err := txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		ex := s.execer(ctx)
		if _, err := ex.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, ledgerLockKey); err != nil {
			return fmt.Errorf("lock ledger: %w", err)
		}

		var prev *audit.Entry
		var tail audit.Entry
		err := ex.QueryRowContext(ctx,
			`SELECT sequence, hash FROM audit_ledger ORDER BY sequence DESC LIMIT 1`,
		).Scan(&tail.Sequence, &tail.Hash)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("read ledger tail: %w", err)
		default:
			prev = &tail
		}

		sealed = audit.Seal(prev, entry.Clone())
		_, err = ex.ExecContext(ctx, `
			INSERT INTO audit_ledger (
				id, sequence, session_id, event_type, actor,
				timestamp, detail, prev_hash, hash
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`,
			uuid.UUID(sealed.ID),
			sealed.Sequence,
			uuid.UUID(sealed.SessionID),
			string(sealed.EventType),
			sealed.Actor,
			sealed.Timestamp,
			string(sealed.Detail),
			sealed.PrevHash,
			sealed.Hash,
		)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
				return fmt.Errorf("ledger tail moved: %w", sentinel.ErrConflict)
			}
			return fmt.Errorf("insert ledger entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &sealed, nil
}

const selectColumns = `
	SELECT id, sequence, session_id, event_type, actor,
		   timestamp, detail, prev_hash, hash
	FROM audit_ledger
`

// Query returns one session's entries ordered by sequence.
func (s *Store) Query(ctx context.Context, sessionID id.SessionID) ([]audit.Entry, error) {
	rows, err := s.execer(ctx).QueryContext(ctx,
		selectColumns+` WHERE session_id = $1 ORDER BY sequence`,
		uuid.UUID(sessionID),
	)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// All returns the whole ledger ordered by sequence.
func (s *Store) All(ctx context.Context) ([]audit.Entry, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, selectColumns+` ORDER BY sequence`)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]audit.Entry, error) {
	var entries []audit.Entry
	for rows.Next() {
		var (
			e         audit.Entry
			entryID   uuid.UUID
			sessionID uuid.UUID
			eventType string
			detail    sql.NullString
		)
		if err := rows.Scan(
			&entryID,
			&e.Sequence,
			&sessionID,
			&eventType,
			&e.Actor,
			&e.Timestamp,
			&detail,
			&e.PrevHash,
			&e.Hash,
		); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.ID = id.EntryID(entryID)
		e.SessionID = id.SessionID(sessionID)
		e.EventType = audit.EventType(eventType)
		e.Timestamp = e.Timestamp.UTC()
		if detail.Valid {
			e.Detail = []byte(detail.String)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}
	return entries, nil
}
