// Package local is the filesystem-backed session store. Each session lives
// at <root>/tenants/<tenant_id>/sessions/<session_id>.json.
package local

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/salescoach/advisor/internal/domain"
	"github.com/salescoach/advisor/internal/storage"
)

// Store is a file-based Gateway implementation.
type Store struct {
	root string
}

var _ storage.Gateway = (*Store)(nil)

// New creates a local store rooted at dir.
func New(dir string) (*Store, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, domain.ErrConfiguration("resolve data dir %q", dir).WithCause(err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, domain.ErrConfiguration("create data dir %q", root).WithCause(err)
	}
	return &Store{root: root}, nil
}

func (s *Store) sessionPath(tenantID, sessionID string) string {
	return filepath.Join(s.root, filepath.FromSlash(storage.Key(tenantID, sessionID))+".json")
}

func (s *Store) sessionsDir(tenantID string) string {
	return filepath.Join(s.root, filepath.FromSlash(storage.KeyPrefix(tenantID)))
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

	dir := s.sessionsDir(tenantID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(&stored, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(s.sessionPath(tenantID, stored.ID), data, 0o644); err != nil {
		return "", err
	}
	return stored.ID, nil
}

func (s *Store) Get(ctx context.Context, tenantID, sessionID string) (*domain.Session, error) {
	data, err := os.ReadFile(s.sessionPath(tenantID, sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrNotFound("session %s not found", sessionID)
		}
		return nil, err
	}

	var session domain.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *Store) List(ctx context.Context, tenantID string, filter domain.ListFilter) ([]*domain.Session, error) {
	entries, err := os.ReadDir(s.sessionsDir(tenantID))
	if err != nil {
		if os.IsNotExist(err) {
			return []*domain.Session{}, nil
		}
		return nil, err
	}

	sessions := make([]*domain.Session, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.sessionsDir(tenantID), entry.Name()))
		if err != nil {
			continue
		}
		var session domain.Session
		if err := json.Unmarshal(data, &session); err != nil {
			// Unreadable files are skipped, not fatal to the listing.
			continue
		}
		if filter.Match(&session) {
			sessions = append(sessions, &session)
		}
	}

	domain.SortSessions(sessions)
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
	err := os.Remove(s.sessionPath(tenantID, sessionID))
	if os.IsNotExist(err) {
		return domain.ErrNotFound("session %s not found", sessionID)
	}
	return err
}

func (s *Store) SetPinned(ctx context.Context, tenantID, sessionID string, pinned bool) error {
	return s.mutate(ctx, tenantID, sessionID, func(session *domain.Session) {
		session.Pinned = pinned
	})
}

func (s *Store) UpdateTags(ctx context.Context, tenantID, sessionID string, tags []string) error {
	return s.mutate(ctx, tenantID, sessionID, func(session *domain.Session) {
		session.Tags = domain.NormalizeTags(tags)
	})
}

// mutate is a read-modify-write on one session file. Tenant ownership is
// re-validated on every mutation because the read goes through the
// tenant-derived path.
func (s *Store) mutate(ctx context.Context, tenantID, sessionID string, fn func(*domain.Session)) error {
	session, err := s.Get(ctx, tenantID, sessionID)
	if err != nil {
		return err
	}
	fn(session)

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.sessionPath(tenantID, sessionID), data, 0o644)
}

func (s *Store) Close() error {
	return nil
}
