package object

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/salescoach/advisor/internal/domain"
	"github.com/salescoach/advisor/internal/storage"
)

// Store is an object-store-backed Gateway implementation. Objects live at
// <prefix>/tenants/<tenant_id>/sessions/<session_id>.json.
type Store struct {
	client Client
	prefix string
}

var _ storage.Gateway = (*Store)(nil)

// New creates an object-backed store. prefix may be empty.
func New(client Client, prefix string) *Store {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) objectKey(tenantID, sessionID string) string {
	return s.prefix + storage.Key(tenantID, sessionID) + ".json"
}

func (s *Store) tenantPrefix(tenantID string) string {
	return s.prefix + storage.KeyPrefix(tenantID)
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

	data, err := json.Marshal(&stored)
	if err != nil {
		return "", err
	}
	if err := s.client.Put(ctx, s.objectKey(tenantID, stored.ID), data); err != nil {
		return "", err
	}
	return stored.ID, nil
}

func (s *Store) Get(ctx context.Context, tenantID, sessionID string) (*domain.Session, error) {
	data, err := s.client.Get(ctx, s.objectKey(tenantID, sessionID))
	if err != nil {
		if domain.IsKind(err, domain.KindNotFound) {
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
	keys, err := s.client.List(ctx, s.tenantPrefix(tenantID))
	if err != nil {
		return nil, err
	}

	sessions := make([]*domain.Session, 0, len(keys))
	for _, key := range keys {
		if !strings.HasSuffix(key, ".json") {
			continue
		}
		data, err := s.client.Get(ctx, key)
		if err != nil {
			continue
		}
		var session domain.Session
		if err := json.Unmarshal(data, &session); err != nil {
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
	err := s.client.Delete(ctx, s.objectKey(tenantID, sessionID))
	if domain.IsKind(err, domain.KindNotFound) {
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

func (s *Store) mutate(ctx context.Context, tenantID, sessionID string, fn func(*domain.Session)) error {
	session, err := s.Get(ctx, tenantID, sessionID)
	if err != nil {
		return err
	}
	fn(session)

	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.client.Put(ctx, s.objectKey(tenantID, sessionID), data)
}

func (s *Store) Close() error {
	return nil
}
