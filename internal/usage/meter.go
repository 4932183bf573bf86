// Package usage tracks per-tenant, per-user token consumption and enforces
// the configured quota.
package usage

import (
	"log/slog"
	"sync"
	"time"

	"github.com/salescoach/advisor/internal/domain"
)

type key struct {
	tenantID string
	userID   string
}

// Meter aggregates token consumption. Recording is append-and-aggregate
// under a single mutex so concurrent recordings for the same key are
// linearizable: no lost updates, no torn reads.
type Meter struct {
	mu      sync.Mutex
	totals  map[key]int
	records []domain.UsageRecord

	limit  int
	hard   bool
	logger *slog.Logger
}

// Options configures a Meter.
type Options struct {
	// TokenLimit is the per-(tenant,user) ceiling. Zero disables quota
	// checks.
	TokenLimit int
	// Hard makes CheckQuota block instead of warn at the limit.
	Hard   bool
	Logger *slog.Logger
}

// NewMeter creates a usage meter.
func NewMeter(opts Options) *Meter {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Meter{
		totals: make(map[key]int),
		limit:  opts.TokenLimit,
		hard:   opts.Hard,
		logger: opts.Logger,
	}
}

// Record appends a usage record and bumps the aggregate counter, returning
// the new total for the key.
func (m *Meter) Record(tenantID, userID string, tokens int) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key{tenantID: tenantID, userID: userID}
	m.totals[k] += tokens
	m.records = append(m.records, domain.UsageRecord{
		TenantID:   tenantID,
		UserID:     userID,
		TokensUsed: tokens,
		Timestamp:  time.Now(),
	})
	return m.totals[k]
}

// Total returns the aggregate token count for a (tenant, user) pair.
func (m *Meter) Total(tenantID, userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totals[key{tenantID: tenantID, userID: userID}]
}

// Records returns a snapshot of the append-only usage log. Rotation and
// export are an external concern.
func (m *Meter) Records() []domain.UsageRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.UsageRecord(nil), m.records...)
}

// CheckQuota reports whether a call for this key may proceed. In advisory
// mode an exceeded quota is logged and allowed; in hard mode it fails with
// quota_exceeded.
func (m *Meter) CheckQuota(tenantID, userID string) error {
	if m.limit <= 0 {
		return nil
	}

	total := m.Total(tenantID, userID)
	if total < m.limit {
		return nil
	}

	if !m.hard {
		m.logger.Warn("token quota exceeded (advisory)",
			slog.String("tenant_id", tenantID),
			slog.String("user_id", userID),
			slog.Int("total", total),
			slog.Int("limit", m.limit))
		return nil
	}

	return domain.ErrQuotaExceeded("token quota exhausted for tenant %s", tenantID)
}

// Limit returns the configured per-key token ceiling.
func (m *Meter) Limit() int {
	return m.limit
}
