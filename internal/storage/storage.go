// Package storage defines the uniform session persistence contract and the
// tenant isolation guard in front of it.
package storage

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/salescoach/advisor/internal/domain"
)

// Gateway is the uniform persistence contract. Every backend adapter
// implements it with the identical error taxonomy; swapping backends must
// not change caller-visible behavior beyond latency.
type Gateway interface {
	// Save persists a session under the tenant's namespace and returns
	// the session ID. Saving the same content twice produces two
	// independent sessions.
	Save(ctx context.Context, tenantID string, session *domain.Session) (string, error)

	// Get returns a session, or a not_found error on a miss.
	Get(ctx context.Context, tenantID, sessionID string) (*domain.Session, error)

	// List returns the tenant's sessions, pinned first then newest first.
	List(ctx context.Context, tenantID string, filter domain.ListFilter) ([]*domain.Session, error)

	// Export serializes the tenant's sessions in the requested format.
	Export(ctx context.Context, tenantID string, format domain.ExportFormat) ([]byte, error)

	// Delete removes a session, or fails with not_found.
	Delete(ctx context.Context, tenantID, sessionID string) error

	// SetPinned updates a session's pinned state.
	SetPinned(ctx context.Context, tenantID, sessionID string, pinned bool) error

	// UpdateTags overwrites a session's tags after normalization.
	UpdateTags(ctx context.Context, tenantID, sessionID string, tags []string) error

	Close() error
}

// Key builds the canonical storage key for a session. Isolation is
// key-based: the tenant namespace always prefixes the session, and access
// decisions never trust payload-embedded tenant fields.
func Key(tenantID, sessionID string) string {
	return fmt.Sprintf("tenants/%s/sessions/%s", tenantID, sessionID)
}

// KeyPrefix builds the canonical listing prefix for a tenant.
func KeyPrefix(tenantID string) string {
	return fmt.Sprintf("tenants/%s/sessions/", tenantID)
}

// ApplyWindow applies a filter's limit and offset after ordering. Negative
// values come straight from client query strings and are treated as zero.
func ApplyWindow(sessions []*domain.Session, filter domain.ListFilter) []*domain.Session {
	start := filter.Offset
	if start < 0 {
		start = 0
	}
	if start >= len(sessions) {
		return []*domain.Session{}
	}
	end := len(sessions)
	if filter.Limit > 0 && start+filter.Limit < end {
		end = start + filter.Limit
	}
	return sessions[start:end]
}

// exportColumns is the fixed CSV column set.
var exportColumns = []string{
	"session_id", "user_id", "team_id", "created_at",
	"success", "pinned", "tags", "type",
}

// EncodeSessions serializes sessions for export.
func EncodeSessions(sessions []*domain.Session, format domain.ExportFormat) ([]byte, error) {
	switch format {
	case domain.ExportJSON:
		return json.MarshalIndent(sessions, "", "  ")

	case domain.ExportCSV:
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		if err := w.Write(exportColumns); err != nil {
			return nil, err
		}
		for _, s := range sessions {
			row := []string{
				s.ID,
				s.UserID,
				s.TeamID,
				s.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
				fmt.Sprintf("%t", s.Success),
				fmt.Sprintf("%t", s.Pinned),
				strings.Join(s.Tags, ","),
				payloadType(s.Payload),
			}
			if err := w.Write(row); err != nil {
				return nil, err
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	return nil, domain.ErrConfiguration("unsupported export format %q", format)
}

// payloadType extracts the advice type from a session payload for the CSV
// export.
func payloadType(payload json.RawMessage) string {
	var meta struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &meta); err != nil {
		return ""
	}
	return meta.Type
}
