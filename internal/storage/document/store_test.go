package document

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/salescoach/advisor/internal/domain"
)

var dbSeq atomic.Int64

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:doctest%d?mode=memory&cache=shared", dbSeq.Add(1))
	store, err := New(dsn)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_SaveGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Save(ctx, "t1", &domain.Session{
		UserID:  "u1",
		TeamID:  "team-a",
		Success: true,
		Tags:    []string{"renewal", "renewal", "q3"},
		Payload: json.RawMessage(`{"type":"post_review","response":{}}`),
	})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Get(ctx, "t1", id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.TenantID != "t1" || got.UserID != "u1" || got.TeamID != "team-a" || !got.Success {
		t.Fatalf("Get() = %+v", got)
	}
	if len(got.Tags) != 2 {
		t.Fatalf("Tags = %v, want normalized to 2", got.Tags)
	}
	if string(got.Payload) != `{"type":"post_review","response":{}}` {
		t.Fatalf("Payload = %s", got.Payload)
	}
}

func TestStore_GetMiss(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get(context.Background(), "t1", "absent")
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

	if _, err := store.Get(ctx, "t2", id); !domain.IsKind(err, domain.KindNotFound) {
		t.Fatalf("cross-tenant Get() error = %v, want not_found", err)
	}
	if err := store.Delete(ctx, "t2", id); !domain.IsKind(err, domain.KindNotFound) {
		t.Fatalf("cross-tenant Delete() error = %v, want not_found", err)
	}
	sessions, err := store.List(ctx, "t2", domain.ListFilter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("cross-tenant List() = %d, want 0", len(sessions))
	}

	// The owner still sees it.
	if _, err := store.Get(ctx, "t1", id); err != nil {
		t.Fatalf("owner Get() error = %v", err)
	}
}

func TestStore_ListOrdering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for _, s := range []*domain.Session{
		{ID: "old", CreatedAt: base},
		{ID: "new", CreatedAt: base.Add(2 * time.Hour)},
		{ID: "pinned", CreatedAt: base.Add(time.Hour), Pinned: true},
	} {
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

func TestStore_MutationsRequireExistingRow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SetPinned(ctx, "t1", "absent", true); !domain.IsKind(err, domain.KindNotFound) {
		t.Fatalf("SetPinned(absent) error = %v, want not_found", err)
	}
	if err := store.UpdateTags(ctx, "t1", "absent", []string{"x"}); !domain.IsKind(err, domain.KindNotFound) {
		t.Fatalf("UpdateTags(absent) error = %v, want not_found", err)
	}

	id, err := store.Save(ctx, "t1", &domain.Session{Payload: json.RawMessage(`{}`)})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.SetPinned(ctx, "t1", id, true); err != nil {
		t.Fatalf("SetPinned() error = %v", err)
	}
	if err := store.UpdateTags(ctx, "t1", id, []string{" won ", "won"}); err != nil {
		t.Fatalf("UpdateTags() error = %v", err)
	}

	got, err := store.Get(ctx, "t1", id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !got.Pinned || len(got.Tags) != 1 || got.Tags[0] != "won" {
		t.Fatalf("Get() after mutations = %+v", got)
	}
}

func TestStore_ExportJSON(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Save(ctx, "t1", &domain.Session{
		Payload: json.RawMessage(`{"type":"icebreaker"}`),
	}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	data, err := store.Export(ctx, "t1", domain.ExportJSON)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	var sessions []*domain.Session
	if err := json.Unmarshal(data, &sessions); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("exported %d sessions, want 1", len(sessions))
	}
}
