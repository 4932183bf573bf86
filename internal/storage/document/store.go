// Package document is the document-store session backend, backed by SQLite.
package document

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/salescoach/advisor/internal/domain"
	"github.com/salescoach/advisor/internal/storage"
)

// Store is a SQLite-backed Gateway implementation. The canonical storage
// key is persisted alongside the row and every query filters on the tenant
// column, so isolation stays namespace-based.
type Store struct {
	db *sql.DB
}

var _ storage.Gateway = (*Store)(nil)

// New opens (or creates) the database at dsn.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			storage_key TEXT NOT NULL,
			user_id TEXT,
			team_id TEXT,
			created_at TIMESTAMP NOT NULL,
			success INTEGER NOT NULL DEFAULT 1,
			pinned INTEGER NOT NULL DEFAULT 0,
			tags TEXT NOT NULL DEFAULT '[]',
			payload TEXT,
			PRIMARY KEY (tenant_id, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_tenant ON sessions(tenant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(tenant_id, created_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Save(ctx context.Context, tenantID string, session *domain.Session) (string, error) {
	stored := *session
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	stored.TenantID = tenantID
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	stored.Tags = domain.NormalizeTags(stored.Tags)

	tags, err := json.Marshal(stored.Tags)
	if err != nil {
		return "", err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO sessions
			(id, tenant_id, storage_key, user_id, team_id, created_at, success, pinned, tags, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stored.ID, tenantID, storage.Key(tenantID, stored.ID),
		stored.UserID, stored.TeamID, stored.CreatedAt,
		stored.Success, stored.Pinned, string(tags), string(stored.Payload))
	if err != nil {
		return "", err
	}
	return stored.ID, nil
}

func (s *Store) Get(ctx context.Context, tenantID, sessionID string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, user_id, team_id, created_at, success, pinned, tags, payload
		 FROM sessions WHERE tenant_id = ? AND id = ?`,
		tenantID, sessionID)

	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound("session %s not found", sessionID)
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (s *Store) List(ctx context.Context, tenantID string, filter domain.ListFilter) ([]*domain.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, user_id, team_id, created_at, success, pinned, tags, payload
		 FROM sessions WHERE tenant_id = ?
		 ORDER BY pinned DESC, created_at DESC`,
		tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		if filter.Match(session) {
			sessions = append(sessions, session)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return storage.ApplyWindow(sessions, filter), nil
}

func (s *Store) Export(ctx context.Context, tenantID string, format domain.ExportFormat) ([]byte, error) {
	sessions, err := s.List(ctx, tenantID, domain.ListFilter{})
	if err != nil {
		return nil, err
	}
	return storage.EncodeSessions(sessions, format)
}

func (s *Store) Delete(ctx context.Context, tenantID, sessionID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE tenant_id = ? AND id = ?`,
		tenantID, sessionID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound("session %s not found", sessionID)
	}
	return nil
}

func (s *Store) SetPinned(ctx context.Context, tenantID, sessionID string, pinned bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET pinned = ? WHERE tenant_id = ? AND id = ?`,
		pinned, tenantID, sessionID)
	if err != nil {
		return err
	}
	return requireAffected(res, sessionID)
}

func (s *Store) UpdateTags(ctx context.Context, tenantID, sessionID string, tags []string) error {
	encoded, err := json.Marshal(domain.NormalizeTags(tags))
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET tags = ? WHERE tenant_id = ? AND id = ?`,
		string(encoded), tenantID, sessionID)
	if err != nil {
		return err
	}
	return requireAffected(res, sessionID)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func requireAffected(res sql.Result, sessionID string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound("session %s not found", sessionID)
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*domain.Session, error) {
	var (
		session domain.Session
		userID  sql.NullString
		teamID  sql.NullString
		tags    string
		payload sql.NullString
	)
	if err := row.Scan(&session.ID, &session.TenantID, &userID, &teamID,
		&session.CreatedAt, &session.Success, &session.Pinned, &tags, &payload); err != nil {
		return nil, err
	}

	session.UserID = userID.String
	session.TeamID = teamID.String
	if err := json.Unmarshal([]byte(tags), &session.Tags); err != nil {
		session.Tags = nil
	}
	if payload.Valid {
		session.Payload = json.RawMessage(payload.String)
	}
	return &session, nil
}
