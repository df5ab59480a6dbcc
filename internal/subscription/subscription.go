// Package subscription resolves a client id to its currently effective
// subscription plan, fronting the durable catalog with a short-lived cache
// in the counter store (spec §4.2).
package subscription

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/arjunmehta/ratequota/internal/bucket"
	"github.com/arjunmehta/ratequota/internal/counterstore"
	"github.com/arjunmehta/ratequota/internal/logger"
	"github.com/arjunmehta/ratequota/internal/models"
)

const (
	negativeCacheTTL  = 300 * time.Second
	maxPositiveTTL    = 3600 * time.Second
	minPositiveTTL    = 60 * time.Second
	expiredPastPlanTTL = 60 * time.Second
)

// Catalog is the durable-store read path the resolver falls back to on a
// cache miss. Only the lookup the hot path needs is exposed here; the full
// CRUD surface lives in internal/catalog.
type Catalog interface {
	ClientWithPlan(ctx context.Context, clientID string) (*models.Client, error)
}

// Resolver implements the cache-then-durable-store resolution in spec §4.2.
type Resolver struct {
	store   *counterstore.Store
	catalog Catalog
	group   singleflight.Group
}

// New builds a Resolver over a counter store (cache) and a catalog (durable
// source of truth).
func New(store *counterstore.Store, catalog Catalog) *Resolver {
	return &Resolver{store: store, catalog: catalog}
}

// Resolve returns the client's currently effective plan, or (nil, nil) for
// the NONE sentinel: no client found, no plan assigned, or the plan is not
// effectively active.
func (r *Resolver) Resolve(ctx context.Context, clientID string) (*models.SubscriptionPlan, error) {
	cacheKey := bucket.SubscriptionCacheKey(clientID)

	raw, err := r.store.Get(ctx, cacheKey)
	if err != nil {
		return nil, err
	}
	if raw == bucket.ExpiredSentinel {
		return nil, nil
	}
	if raw != "" {
		var plan models.SubscriptionPlan
		if err := json.Unmarshal([]byte(raw), &plan); err == nil {
			return &plan, nil
		}
		// Fall through to a fresh resolution on a corrupt cache entry.
	}

	// Collapse concurrent misses for the same client into one catalog read.
	v, err, _ := r.group.Do(clientID, func() (interface{}, error) {
		return r.resolveFromCatalog(ctx, clientID, cacheKey)
	})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.(*models.SubscriptionPlan), nil
}

func (r *Resolver) resolveFromCatalog(ctx context.Context, clientID, cacheKey string) (*models.SubscriptionPlan, error) {
	client, err := r.catalog.ClientWithPlan(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if client == nil || client.Plan == nil {
		if err := r.store.SetWithTTL(ctx, cacheKey, bucket.ExpiredSentinel, negativeCacheTTL); err != nil {
			logger.Warn("subscription cache write failed", "client_id", clientID, "error", err)
		}
		return nil, nil
	}

	now := time.Now().UTC()
	plan := client.Plan
	if !plan.EffectivelyActive(now) {
		if err := r.store.SetWithTTL(ctx, cacheKey, bucket.ExpiredSentinel, negativeCacheTTL); err != nil {
			logger.Warn("subscription cache write failed", "client_id", clientID, "error", err)
		}
		return nil, nil
	}

	ttl := positiveCacheTTL(plan, now)
	payload, err := json.Marshal(plan)
	if err != nil {
		return nil, err
	}
	if err := r.store.SetWithTTL(ctx, cacheKey, string(payload), ttl); err != nil {
		logger.Warn("subscription cache write failed", "client_id", clientID, "error", err)
	}
	return plan, nil
}

// positiveCacheTTL implements the half-life formula from spec §4.2: no
// expiry caches for an hour, an already-past expiry caches briefly (the
// resolver will re-check next read), and a future expiry caches for half
// its remaining lifetime, clamped to [60s, 3600s].
func positiveCacheTTL(plan *models.SubscriptionPlan, now time.Time) time.Duration {
	if plan.ExpiresAt == nil {
		return maxPositiveTTL
	}
	remaining := plan.ExpiresAt.Sub(now)
	if remaining <= 0 {
		return expiredPastPlanTTL
	}
	half := remaining / 2
	if half < minPositiveTTL {
		return minPositiveTTL
	}
	if half > maxPositiveTTL {
		return maxPositiveTTL
	}
	return half
}

// Invalidate clears the subscription cache entry and every per-client
// counter key for clientID, the duty spec §4.2/§6 assigns to the admin
// surface on plan change.
func (r *Resolver) Invalidate(ctx context.Context, clientID string) error {
	keys, err := r.store.ScanKeys(ctx, "rl:c:"+clientID+":*")
	if err != nil {
		return err
	}
	keys = append(keys, bucket.SubscriptionCacheKey(clientID))
	return r.store.Del(ctx, keys...)
}
