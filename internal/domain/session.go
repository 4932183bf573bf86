package domain

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// Session is one saved advice interaction. It is written and read only
// through the storage gateway; tenant isolation is enforced by the storage
// key shape, never by the payload content.
type Session struct {
	ID        string          `json:"session_id"`
	TenantID  string          `json:"tenant_id"`
	UserID    string          `json:"user_id,omitempty"`
	TeamID    string          `json:"team_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	Success   bool            `json:"success"`
	Pinned    bool            `json:"pinned"`
	Tags      []string        `json:"tags"`
	Payload   json.RawMessage `json:"data"`
}

// NormalizeTags trims, drops empties, and de-duplicates while preserving
// first-seen order.
func NormalizeTags(tags []string) []string {
	normalized := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		name := strings.TrimSpace(t)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		normalized = append(normalized, name)
	}
	return normalized
}

// ListFilter narrows a session listing. Zero value lists everything.
type ListFilter struct {
	Tag        string
	PinnedOnly bool
	Limit      int
	Offset     int
}

// Match reports whether a session passes the filter's predicates.
// Limit/Offset are applied by the caller after ordering.
func (f ListFilter) Match(s *Session) bool {
	if f.PinnedOnly && !s.Pinned {
		return false
	}
	if f.Tag != "" {
		found := false
		for _, t := range s.Tags {
			if t == f.Tag {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// ExportFormat selects the serialization used by StorageGateway.Export.
type ExportFormat string

const (
	ExportJSON ExportFormat = "json"
	ExportCSV  ExportFormat = "csv"
)

// ParseExportFormat validates a format string.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch ExportFormat(s) {
	case ExportJSON, ExportCSV:
		return ExportFormat(s), nil
	}
	return "", ErrConfiguration("unsupported export format %q", s)
}

// SortSessions orders sessions the way listings are presented: pinned
// first, then newest first.
func SortSessions(sessions []*Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		if sessions[i].Pinned != sessions[j].Pinned {
			return sessions[i].Pinned
		}
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
}

// UsageRecord is one append-only token consumption entry.
type UsageRecord struct {
	TenantID   string    `json:"tenant_id"`
	UserID     string    `json:"user_id"`
	TokensUsed int       `json:"tokens_used"`
	Timestamp  time.Time `json:"timestamp"`
}
