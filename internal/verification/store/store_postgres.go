package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"kycgate/internal/verification/models"
	id "kycgate/pkg/domain"
	"kycgate/pkg/platform/sentinel"
	txcontext "kycgate/pkg/platform/tx"
)

const uniqueViolation = "23505"

// PostgresStore persists sessions in verification_sessions. Stage results,
// the assessment and the override are stored as JSONB documents.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// PostgresTx runs fn in one SQL transaction shared through ctx, so the
// session write and its ledger entry commit together.
type PostgresTx struct {
	DB *sql.DB
}

func (t PostgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return txcontext.Run(ctx, t.DB, fn)
}

type sessionDocs struct {
	results    []byte
	assessment []byte
	override   []byte
}

func encodeDocs(session *models.Session) (sessionDocs, error) {
	var docs sessionDocs
	var err error
	results := session.Results
	if results == nil {
		results = []models.StageResult{}
	}
	if docs.results, err = json.Marshal(results); err != nil {
		return docs, fmt.Errorf("marshal results: %w", err)
	}
	if session.Assessment != nil {
		if docs.assessment, err = json.Marshal(session.Assessment); err != nil {
			return docs, fmt.Errorf("marshal assessment: %w", err)
		}
	}
	if session.Override != nil {
		if docs.override, err = json.Marshal(session.Override); err != nil {
			return docs, fmt.Errorf("marshal override: %w", err)
		}
	}
	return docs, nil
}

func (s *PostgresStore) Create(ctx context.Context, session *models.Session) error {
	docs, err := encodeDocs(session)
	if err != nil {
		return err
	}
	_, err = s.execer(ctx).ExecContext(ctx, `
		INSERT INTO verification_sessions (
			id, subject_ref, state, status, automated_status, version,
			results, assessment, override, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		uuid.UUID(session.ID),
		string(session.SubjectRef),
		string(session.State),
		string(session.Status),
		string(session.AutomatedStatus),
		session.Version,
		string(docs.results),
		nullableJSON(docs.assessment),
		nullableJSON(docs.override),
		session.CreatedAt,
		session.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, session *models.Session, expectedVersion int64) error {
	docs, err := encodeDocs(session)
	if err != nil {
		return err
	}
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE verification_sessions
		SET state = $2, status = $3, automated_status = $4, version = $5,
			results = $6, assessment = $7, override = $8, updated_at = $9
		WHERE id = $1 AND version = $10
	`,
		uuid.UUID(session.ID),
		string(session.State),
		string(session.Status),
		string(session.AutomatedStatus),
		session.Version,
		string(docs.results),
		nullableJSON(docs.assessment),
		nullableJSON(docs.override),
		session.UpdatedAt,
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n == 1 {
		return nil
	}
	var exists bool
	if err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM verification_sessions WHERE id = $1)`,
		uuid.UUID(session.ID),
	).Scan(&exists); err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrConflict
}

const sessionColumns = `
	SELECT id, subject_ref, state, status, automated_status, version,
		   results, assessment, override, created_at, updated_at
	FROM verification_sessions
`

func (s *PostgresStore) FindByID(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	row := s.execer(ctx).QueryRowContext(ctx, sessionColumns+` WHERE id = $1`, uuid.UUID(sessionID))
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return session, err
}

func (s *PostgresStore) List(ctx context.Context, filter models.ListFilter) ([]*models.Session, error) {
	query := sessionColumns
	var args []any
	if filter.Status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []*models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var (
		session         models.Session
		sessionID       uuid.UUID
		subject         string
		state           string
		status          string
		automatedStatus string
		results         []byte
		assessment      []byte
		override        []byte
	)
	err := row.Scan(
		&sessionID, &subject, &state, &status, &automatedStatus, &session.Version,
		&results, &assessment, &override, &session.CreatedAt, &session.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	session.ID = id.SessionID(sessionID)
	session.SubjectRef = id.SubjectRef(subject)
	session.State = models.State(state)
	session.Status = models.Status(status)
	session.AutomatedStatus = models.Status(automatedStatus)
	session.CreatedAt = session.CreatedAt.UTC()
	session.UpdatedAt = session.UpdatedAt.UTC()

	if err := json.Unmarshal(results, &session.Results); err != nil {
		return nil, fmt.Errorf("decode results: %w", err)
	}
	if len(assessment) > 0 {
		session.Assessment = &models.RiskAssessment{}
		if err := json.Unmarshal(assessment, session.Assessment); err != nil {
			return nil, fmt.Errorf("decode assessment: %w", err)
		}
	}
	if len(override) > 0 {
		session.Override = &models.OverrideDecision{}
		if err := json.Unmarshal(override, session.Override); err != nil {
			return nil, fmt.Errorf("decode override: %w", err)
		}
	}
	return &session, nil
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
