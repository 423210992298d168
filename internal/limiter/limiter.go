// Package limiter enforces per-tenant daily post quotas.
package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/crossposter/relay/internal/repository"
)

// Decision is the outcome of a quota check.
type Decision int

// Quota check outcomes.
const (
	Allowed Decision = iota
	QuotaExceeded
)

// DailyLimitDetail is the failure detail recorded for quota-skipped
// deliveries, so the audit trail distinguishes them from transport failures.
const DailyLimitDetail = "daily limit reached"

// DailyQuotaLimiter checks a tenant's successful deliveries for the current
// UTC day against its configured quota. The count is a live aggregate over
// the delivery ledger; concurrent checks for the same tenant may both pass
// before either record commits, which bounds overshoot by the concurrency of
// a single webhook burst.
type DailyQuotaLimiter struct {
	tenants *repository.TenantsRepository
	records *repository.RecordsRepository

	// now is swappable for tests
	now func() time.Time
}

// New creates a DailyQuotaLimiter.
func New(tenants *repository.TenantsRepository, records *repository.RecordsRepository) *DailyQuotaLimiter {
	return &DailyQuotaLimiter{
		tenants: tenants,
		records: records,
		now:     time.Now,
	}
}

// SetNow overrides the clock. Tests only.
func (l *DailyQuotaLimiter) SetNow(now func() time.Time) {
	l.now = now
}

// CheckAndReserve reports whether the tenant may post right now. This is a
// check, not an atomic reservation (see package comment).
func (l *DailyQuotaLimiter) CheckAndReserve(ctx context.Context, tenantID uuid.UUID) (Decision, error) {
	quota, err := l.tenants.DailyPostQuota(ctx, tenantID)
	if err != nil {
		return QuotaExceeded, fmt.Errorf("load tenant quota: %w", err)
	}

	startOfDay := l.startOfUTCDay()
	used, err := l.records.CountSuccessSince(ctx, tenantID, startOfDay)
	if err != nil {
		return QuotaExceeded, fmt.Errorf("count today's deliveries: %w", err)
	}

	if used >= int64(quota) {
		return QuotaExceeded, nil
	}
	return Allowed, nil
}

// Remaining returns how many posts the tenant has left today. May be zero.
func (l *DailyQuotaLimiter) Remaining(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	quota, err := l.tenants.DailyPostQuota(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("load tenant quota: %w", err)
	}

	used, err := l.records.CountSuccessSince(ctx, tenantID, l.startOfUTCDay())
	if err != nil {
		return 0, fmt.Errorf("count today's deliveries: %w", err)
	}

	remaining := int64(quota) - used
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (l *DailyQuotaLimiter) startOfUTCDay() time.Time {
	now := l.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
