package local

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/salescoach/advisor/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return store
}

func TestStore_SaveGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Save(ctx, "t1", &domain.Session{
		UserID:  "u1",
		TeamID:  "team-a",
		Success: true,
		Tags:    []string{"q3", "q3", " enterprise "},
		Payload: json.RawMessage(`{"type":"pre_advice","input":{}}`),
	})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if id == "" {
		t.Fatal("Save() returned an empty session ID")
	}

	got, err := store.Get(ctx, "t1", id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.TenantID != "t1" || got.UserID != "u1" || got.TeamID != "team-a" {
		t.Fatalf("Get() = %+v", got)
	}
	if !got.Success {
		t.Fatal("Success should round-trip")
	}
	if got.CreatedAt.IsZero() {
		t.Fatal("CreatedAt should be stamped on save")
	}
	if len(got.Tags) != 2 {
		t.Fatalf("Tags = %v, want normalized to 2", got.Tags)
	}
	if string(got.Payload) != `{"type":"pre_advice","input":{}}` {
		t.Fatalf("Payload = %s", got.Payload)
	}
}

func TestStore_SaveTwiceIndependentSessions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	session := &domain.Session{Payload: json.RawMessage(`{"type":"icebreaker"}`)}
	first, err := store.Save(ctx, "t1", session)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	second, err := store.Save(ctx, "t1", &domain.Session{Payload: session.Payload})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if first == second {
		t.Fatal("identical content saved twice must produce independent sessions")
	}
}

func TestStore_GetMiss(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get(context.Background(), "t1", "nope")
	if !domain.IsKind(err, domain.KindNotFound) {
		t.Fatalf("Get(miss) error = %v, want not_found", err)
	}
}

func TestStore_TenantIsolation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Save(ctx, "t1", &domain.Session{Payload: json.RawMessage(`{}`)})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// The other tenant cannot see it.
	if _, err := store.Get(ctx, "t2", id); !domain.IsKind(err, domain.KindNotFound) {
		t.Fatalf("cross-tenant Get() error = %v, want not_found", err)
	}
	sessions, err := store.List(ctx, "t2", domain.ListFilter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("cross-tenant List() = %d sessions, want 0", len(sessions))
	}
}

func TestStore_ListOrdering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	seed := []*domain.Session{
		{ID: "old", CreatedAt: base},
		{ID: "new", CreatedAt: base.Add(2 * time.Hour)},
		{ID: "pinned", CreatedAt: base.Add(time.Hour), Pinned: true},
	}
	for _, s := range seed {
		if _, err := store.Save(ctx, "t1", s); err != nil {
			t.Fatalf("Save(%s) error = %v", s.ID, err)
		}
	}

	sessions, err := store.List(ctx, "t1", domain.ListFilter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	wantOrder := []string{"pinned", "new", "old"}
	if len(sessions) != len(wantOrder) {
		t.Fatalf("List() len = %d, want %d", len(sessions), len(wantOrder))
	}
	for i, want := range wantOrder {
		if sessions[i].ID != want {
			t.Fatalf("List()[%d] = %q, want %q", i, sessions[i].ID, want)
		}
	}
}

func TestStore_ListFilterAndWindow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, tags := range [][]string{{"won"}, {"lost"}, {"won"}} {
		s := &domain.Session{
			Tags:      tags,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if _, err := store.Save(ctx, "t1", s); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	won, err := store.List(ctx, "t1", domain.ListFilter{Tag: "won"})
	if err != nil {
		t.Fatalf("List(tag) error = %v", err)
	}
	if len(won) != 2 {
		t.Fatalf("List(tag=won) = %d sessions, want 2", len(won))
	}

	windowed, err := store.List(ctx, "t1", domain.ListFilter{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("List(window) error = %v", err)
	}
	if len(windowed) != 1 {
		t.Fatalf("List(limit 1, offset 1) = %d sessions, want 1", len(windowed))
	}
}

func TestStore_Delete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Save(ctx, "t1", &domain.Session{Payload: json.RawMessage(`{}`)})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Delete(ctx, "t1", id); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, "t1", id); !domain.IsKind(err, domain.KindNotFound) {
		t.Fatalf("Get() after delete error = %v, want not_found", err)
	}
	if err := store.Delete(ctx, "t1", id); !domain.IsKind(err, domain.KindNotFound) {
		t.Fatalf("second Delete() error = %v, want not_found", err)
	}
}

func TestStore_SetPinnedAndUpdateTags(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Save(ctx, "t1", &domain.Session{Payload: json.RawMessage(`{}`)})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := store.SetPinned(ctx, "t1", id, true); err != nil {
		t.Fatalf("SetPinned() error = %v", err)
	}
	if err := store.UpdateTags(ctx, "t1", id, []string{" won ", "won", "renewal"}); err != nil {
		t.Fatalf("UpdateTags() error = %v", err)
	}

	got, err := store.Get(ctx, "t1", id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !got.Pinned {
		t.Fatal("Pinned should persist")
	}
	if len(got.Tags) != 2 {
		t.Fatalf("Tags = %v, want normalized to 2", got.Tags)
	}

	if err := store.SetPinned(ctx, "t1", "missing", true); !domain.IsKind(err, domain.KindNotFound) {
		t.Fatalf("SetPinned(missing) error = %v, want not_found", err)
	}
}

func TestStore_Export(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Save(ctx, "t1", &domain.Session{
		UserID:  "u1",
		Success: true,
		Tags:    []string{"won"},
		Payload: json.RawMessage(`{"type":"post_review"}`),
	}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	data, err := store.Export(ctx, "t1", domain.ExportJSON)
	if err != nil {
		t.Fatalf("Export(json) error = %v", err)
	}
	var sessions []*domain.Session
	if err := json.Unmarshal(data, &sessions); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("exported %d sessions, want 1", len(sessions))
	}

	csvData, err := store.Export(ctx, "t1", domain.ExportCSV)
	if err != nil {
		t.Fatalf("Export(csv) error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(csvData)), "\n")
	if len(lines) != 2 {
		t.Fatalf("CSV export has %d lines, want header + 1 row", len(lines))
	}
	if !strings.HasPrefix(lines[0], "session_id,") {
		t.Fatalf("CSV header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "post_review") {
		t.Fatalf("CSV row should include the advice type: %q", lines[1])
	}
}
