package storage

import (
	"context"
	"testing"

	"github.com/salescoach/advisor/internal/domain"
)

// recordingBackend fails the test if any call reaches it.
type recordingBackend struct {
	t      *testing.T
	called bool
}

func (b *recordingBackend) Save(ctx context.Context, tenantID string, s *domain.Session) (string, error) {
	b.called = true
	return "id", nil
}

func (b *recordingBackend) Get(ctx context.Context, tenantID, sessionID string) (*domain.Session, error) {
	b.called = true
	return &domain.Session{}, nil
}

func (b *recordingBackend) List(ctx context.Context, tenantID string, f domain.ListFilter) ([]*domain.Session, error) {
	b.called = true
	return nil, nil
}

func (b *recordingBackend) Export(ctx context.Context, tenantID string, f domain.ExportFormat) ([]byte, error) {
	b.called = true
	return nil, nil
}

func (b *recordingBackend) Delete(ctx context.Context, tenantID, sessionID string) error {
	b.called = true
	return nil
}

func (b *recordingBackend) SetPinned(ctx context.Context, tenantID, sessionID string, pinned bool) error {
	b.called = true
	return nil
}

func (b *recordingBackend) UpdateTags(ctx context.Context, tenantID, sessionID string, tags []string) error {
	b.called = true
	return nil
}

func (b *recordingBackend) Close() error { return nil }

func TestTenantGuard_EmptyTenant(t *testing.T) {
	backend := &recordingBackend{t: t}
	guard := Guard(backend)
	ctx := context.Background()

	if _, err := guard.Save(ctx, "", &domain.Session{}); !domain.IsKind(err, domain.KindTenantRequired) {
		t.Fatalf("Save() error = %v, want tenant_required", err)
	}
	if _, err := guard.Save(ctx, "   ", &domain.Session{}); !domain.IsKind(err, domain.KindTenantRequired) {
		t.Fatalf("Save(whitespace) error = %v, want tenant_required", err)
	}
	if _, err := guard.Get(ctx, "", "s1"); !domain.IsKind(err, domain.KindTenantRequired) {
		t.Fatalf("Get() error = %v, want tenant_required", err)
	}
	if _, err := guard.List(ctx, "", domain.ListFilter{}); !domain.IsKind(err, domain.KindTenantRequired) {
		t.Fatalf("List() error = %v, want tenant_required", err)
	}
	if _, err := guard.Export(ctx, "", domain.ExportJSON); !domain.IsKind(err, domain.KindTenantRequired) {
		t.Fatalf("Export() error = %v, want tenant_required", err)
	}
	if err := guard.Delete(ctx, "", "s1"); !domain.IsKind(err, domain.KindTenantRequired) {
		t.Fatalf("Delete() error = %v, want tenant_required", err)
	}
	if err := guard.SetPinned(ctx, "", "s1", true); !domain.IsKind(err, domain.KindTenantRequired) {
		t.Fatalf("SetPinned() error = %v, want tenant_required", err)
	}
	if err := guard.UpdateTags(ctx, "", "s1", nil); !domain.IsKind(err, domain.KindTenantRequired) {
		t.Fatalf("UpdateTags() error = %v, want tenant_required", err)
	}

	if backend.called {
		t.Fatal("backend must never be reached without a tenant")
	}
}

func TestTenantGuard_UnsafeTenantIdentifier(t *testing.T) {
	backend := &recordingBackend{t: t}
	guard := Guard(backend)
	ctx := context.Background()

	for _, tenantID := range []string{"../other", "a/b", `a\b`, ".."} {
		if _, err := guard.Get(ctx, tenantID, "s1"); !domain.IsKind(err, domain.KindTenantRequired) {
			t.Fatalf("Get(tenant=%q) error = %v, want tenant_required", tenantID, err)
		}
	}
	if backend.called {
		t.Fatal("backend must never see an unsafe tenant identifier")
	}
}

func TestTenantGuard_UnsafeSessionIdentifier(t *testing.T) {
	backend := &recordingBackend{t: t}
	guard := Guard(backend)
	ctx := context.Background()

	for _, sessionID := range []string{"", "../s1", "a/b", ".."} {
		if _, err := guard.Get(ctx, "t1", sessionID); !domain.IsKind(err, domain.KindNotFound) {
			t.Fatalf("Get(session=%q) error = %v, want not_found", sessionID, err)
		}
	}
	if backend.called {
		t.Fatal("backend must never see an unsafe session identifier")
	}
}

func TestTenantGuard_PassesThroughValidCalls(t *testing.T) {
	backend := &recordingBackend{t: t}
	guard := Guard(backend)

	if _, err := guard.Get(context.Background(), "t1", "s1"); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !backend.called {
		t.Fatal("valid call should reach the backend")
	}
}

func TestKeyShape(t *testing.T) {
	if got := Key("t1", "s1"); got != "tenants/t1/sessions/s1" {
		t.Fatalf("Key() = %q", got)
	}
	if got := KeyPrefix("t1"); got != "tenants/t1/sessions/" {
		t.Fatalf("KeyPrefix() = %q", got)
	}
}

func TestApplyWindow(t *testing.T) {
	sessions := []*domain.Session{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}}

	got := ApplyWindow(sessions, domain.ListFilter{Limit: 2, Offset: 1})
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "c" {
		t.Fatalf("ApplyWindow(limit 2, offset 1) = %v", ids(got))
	}

	if got := ApplyWindow(sessions, domain.ListFilter{Offset: 10}); len(got) != 0 {
		t.Fatalf("ApplyWindow(offset beyond end) = %v", ids(got))
	}

	if got := ApplyWindow(sessions, domain.ListFilter{}); len(got) != 4 {
		t.Fatalf("ApplyWindow(zero filter) = %v", ids(got))
	}
}

func TestApplyWindow_NegativeValues(t *testing.T) {
	sessions := []*domain.Session{{ID: "a"}, {ID: "b"}}

	// Offset and limit arrive unvalidated from query strings; negative
	// values must behave like zero, never panic.
	got := ApplyWindow(sessions, domain.ListFilter{Offset: -1})
	if len(got) != 2 || got[0].ID != "a" {
		t.Fatalf("ApplyWindow(offset -1) = %v", ids(got))
	}

	if got := ApplyWindow(sessions, domain.ListFilter{Limit: -5}); len(got) != 2 {
		t.Fatalf("ApplyWindow(limit -5) = %v", ids(got))
	}

	if got := ApplyWindow(sessions, domain.ListFilter{Limit: -1, Offset: -100}); len(got) != 2 {
		t.Fatalf("ApplyWindow(both negative) = %v", ids(got))
	}
}

func ids(sessions []*domain.Session) []string {
	out := make([]string, len(sessions))
	for i, s := range sessions {
		out[i] = s.ID
	}
	return out
}
