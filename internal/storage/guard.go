package storage

import (
	"context"
	"strings"

	"github.com/salescoach/advisor/internal/domain"
)

// TenantGuard intercepts every gateway operation and enforces presence and
// shape of the tenant identifier before anything reaches the backend.
// Isolation itself is key-based: the guarded backend derives its namespace
// from the tenant argument, never from payload content.
type TenantGuard struct {
	backend Gateway
}

var _ Gateway = (*TenantGuard)(nil)

// Guard wraps a backend with tenant enforcement.
func Guard(backend Gateway) *TenantGuard {
	return &TenantGuard{backend: backend}
}

// checkTenant rejects empty or path-unsafe tenant identifiers.
func checkTenant(tenantID string) error {
	if strings.TrimSpace(tenantID) == "" {
		return domain.ErrTenantRequired("tenant identifier is required")
	}
	if !safeIdentifier(tenantID) {
		return domain.ErrTenantRequired("tenant identifier %q contains path separators", tenantID)
	}
	return nil
}

// checkSession rejects session identifiers that could escape the tenant
// namespace.
func checkSession(sessionID string) error {
	if sessionID == "" {
		return domain.ErrNotFound("session identifier is empty")
	}
	if !safeIdentifier(sessionID) {
		return domain.ErrNotFound("session identifier %q is invalid", sessionID)
	}
	return nil
}

func safeIdentifier(id string) bool {
	return !strings.ContainsAny(id, "/\\") && !strings.Contains(id, "..")
}

func (g *TenantGuard) Save(ctx context.Context, tenantID string, session *domain.Session) (string, error) {
	if err := checkTenant(tenantID); err != nil {
		return "", err
	}
	if session.ID != "" {
		if err := checkSession(session.ID); err != nil {
			return "", err
		}
	}
	return g.backend.Save(ctx, tenantID, session)
}

func (g *TenantGuard) Get(ctx context.Context, tenantID, sessionID string) (*domain.Session, error) {
	if err := checkTenant(tenantID); err != nil {
		return nil, err
	}
	if err := checkSession(sessionID); err != nil {
		return nil, err
	}
	return g.backend.Get(ctx, tenantID, sessionID)
}

func (g *TenantGuard) List(ctx context.Context, tenantID string, filter domain.ListFilter) ([]*domain.Session, error) {
	if err := checkTenant(tenantID); err != nil {
		return nil, err
	}
	return g.backend.List(ctx, tenantID, filter)
}

func (g *TenantGuard) Export(ctx context.Context, tenantID string, format domain.ExportFormat) ([]byte, error) {
	if err := checkTenant(tenantID); err != nil {
		return nil, err
	}
	if _, err := domain.ParseExportFormat(string(format)); err != nil {
		return nil, err
	}
	return g.backend.Export(ctx, tenantID, format)
}

func (g *TenantGuard) Delete(ctx context.Context, tenantID, sessionID string) error {
	if err := checkTenant(tenantID); err != nil {
		return err
	}
	if err := checkSession(sessionID); err != nil {
		return err
	}
	return g.backend.Delete(ctx, tenantID, sessionID)
}

func (g *TenantGuard) SetPinned(ctx context.Context, tenantID, sessionID string, pinned bool) error {
	if err := checkTenant(tenantID); err != nil {
		return err
	}
	if err := checkSession(sessionID); err != nil {
		return err
	}
	return g.backend.SetPinned(ctx, tenantID, sessionID, pinned)
}

func (g *TenantGuard) UpdateTags(ctx context.Context, tenantID, sessionID string, tags []string) error {
	if err := checkTenant(tenantID); err != nil {
		return err
	}
	if err := checkSession(sessionID); err != nil {
		return err
	}
	return g.backend.UpdateTags(ctx, tenantID, sessionID, tags)
}

func (g *TenantGuard) Close() error {
	return g.backend.Close()
}
