// Package entitlement derives what the current user may do from their
// subscription tier and the locally tracked AI usage quota.
//
// The quota resets lazily: every decision first compares the calendar
// (year, month) of now with that of the last reset, so a long-idle device
// still resets on its next use. Usage is recorded only after a gated action
// succeeded; a denied attempt never counts.
package entitlement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/survivalcodex/codex/internal/client/models"
	"github.com/survivalcodex/codex/internal/client/store"
	"github.com/survivalcodex/codex/internal/logging"
	"github.com/survivalcodex/codex/internal/timex"
)

var (
	ErrQuotaExceeded = errors.New("monthly AI quota exceeded")
	ErrDownloadLimit = errors.New("free download limit reached")
)

// Unlimited is reported as Remaining for premium users.
const Unlimited = -1

type Decision struct {
	Allowed   bool
	Remaining int
	Quota     models.AIQuota
}

// Normalize applies the monthly reset to q as of now.
func Normalize(q models.AIQuota, now time.Time) models.AIQuota {
	if q.LastReset.IsZero() || !timex.SameMonth(now, q.LastReset) {
		return models.AIQuota{Count: 0, LastReset: now}
	}
	return q
}

// Decide is the pure gate: premium is unlimited, free is allowed while the
// (reset) count is below limit.
func Decide(tier models.Tier, q models.AIQuota, limit int, now time.Time) Decision {
	q = Normalize(q, now)
	if tier == models.TierPremium {
		return Decision{Allowed: true, Remaining: Unlimited, Quota: q}
	}
	remaining := limit - q.Count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: q.Count < limit, Remaining: remaining, Quota: q}
}

// TierSource reports the effective tier at a point in time.
type TierSource interface {
	Tier(now time.Time) models.Tier
}

type Limits struct {
	AIQuota   int
	Downloads int
}

type Gate struct {
	store  *store.Store
	tiers  TierSource
	limits Limits
	now    func() time.Time
	logger logging.Logger

	mu sync.Mutex
}

func NewGate(s *store.Store, tiers TierSource, limits Limits, now func() time.Time, l logging.Logger) *Gate {
	if now == nil {
		now = time.Now
	}
	if l == nil {
		l = logging.Discard()
	}
	return &Gate{store: s, tiers: tiers, limits: limits, now: now, logger: l.With("module", "entitlement")}
}

func (g *Gate) Tier() models.Tier {
	return g.tiers.Tier(g.now())
}

// load reads the quota and persists a pending monthly reset. Callers hold mu.
func (g *Gate) load(ctx context.Context, now time.Time) (models.AIQuota, error) {
	stored := store.Load(ctx, g.store, store.KeyAIQuota, models.AIQuota{})
	q := Normalize(stored, now)
	if q != stored {
		if err := g.store.Set(ctx, store.KeyAIQuota, q); err != nil {
			return q, fmt.Errorf("reset quota: %w", err)
		}
		g.logger.Debug(ctx, "AI quota reset", "previous_count", stored.Count)
	}
	return q, nil
}

// Quota returns the current (reset-applied) quota.
func (g *Gate) Quota(ctx context.Context) (models.AIQuota, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.load(ctx, g.now())
}

// Check decides whether an AI exchange may start. A denial returns the
// decision together with ErrQuotaExceeded.
func (g *Gate) Check(ctx context.Context) (Decision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	q, err := g.load(ctx, now)
	if err != nil {
		return Decision{}, err
	}
	d := Decide(g.tiers.Tier(now), q, g.limits.AIQuota, now)
	if !d.Allowed {
		return d, ErrQuotaExceeded
	}
	return d, nil
}

// Record counts one successful free-tier exchange.
func (g *Gate) Record(ctx context.Context) (models.AIQuota, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	q, err := g.load(ctx, now)
	if err != nil {
		return q, err
	}
	if g.tiers.Tier(now) == models.TierPremium {
		return q, nil
	}
	q.Count++
	if err := g.store.Set(ctx, store.KeyAIQuota, q); err != nil {
		return q, fmt.Errorf("record quota: %w", err)
	}
	return q, nil
}

// CanDownload reports whether one more download fits the tier's limit.
func (g *Gate) CanDownload(current int) error {
	if g.Tier() == models.TierPremium {
		return nil
	}
	if current >= g.limits.Downloads {
		return fmt.Errorf("%d of %d: %w", current, g.limits.Downloads, ErrDownloadLimit)
	}
	return nil
}
