// Package usage periodically mirrors per-client counter-store usage into
// Postgres for dashboards and billing reconciliation. The counter store
// remains the sole admission-decision source of truth (spec.md §3); this is
// additive observability that can lag or be skipped entirely when no
// database is configured.
package usage

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/arjunmehta/ratequota/internal/bucket"
	"github.com/arjunmehta/ratequota/internal/catalog"
	"github.com/arjunmehta/ratequota/internal/counterstore"
	"github.com/arjunmehta/ratequota/internal/logger"
	"github.com/arjunmehta/ratequota/internal/models"
)

// Database is the subset of internal/database.DB's surface the aggregator
// writes through.
type Database interface {
	Exec(ctx context.Context, sql string, args ...any) error
	IsConfigured() bool
}

const flushInterval = 5 * time.Minute

// StartAggregator periodically flushes counter-store usage into the
// usage_aggregates table. A no-op when db carries no configured connection.
func StartAggregator(ctx context.Context, db Database, cat catalog.Store, store *counterstore.Store) {
	if db == nil || !db.IsConfigured() || cat == nil || store == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				FlushOnce(ctx, db, cat, store)
			}
		}
	}()
}

// PerLimitUsage is the per-client breakdown recorded alongside the total,
// covering whichever ceilings the client's plan actually carries.
type PerLimitUsage struct {
	Monthly int64 `json:"monthly"`
	Window  int64 `json:"window,omitempty"`
}

// ClientUsage is one client's current-period usage, as read live from the
// counter store.
type ClientUsage struct {
	ClientID string        `json:"client_id"`
	Usage    PerLimitUsage `json:"usage"`
}

// Snapshot reads every active client's current usage directly from the
// counter store, with no durable write. Backs the admin read endpoint,
// where a live number matters more than the 5-minute-stale aggregate table.
func Snapshot(ctx context.Context, cat catalog.Store, store *counterstore.Store) ([]ClientUsage, error) {
	clients, err := cat.ClientsWithPlans(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	out := make([]ClientUsage, 0, len(clients))
	for _, client := range clients {
		if !client.Active || client.Plan == nil {
			continue
		}
		per, err := readClientUsage(ctx, store, client, now)
		if err != nil {
			logger.WithContext(ctx).Error("usage snapshot: read failed", "error", err, "client_id", client.ID)
			continue
		}
		out = append(out, ClientUsage{ClientID: client.ID, Usage: per})
	}
	return out, nil
}

// FlushOnce runs a single aggregation cycle: for each active client, one
// counter-store read for the monthly ceiling plus one for the window
// ceiling when the plan has one, upserted into usage_aggregates for the current calendar
// month. Exposed for tests and for an ops-triggered flush outside the
// ticker.
func FlushOnce(ctx context.Context, db Database, cat catalog.Store, store *counterstore.Store) {
	clients, err := cat.ClientsWithPlans(ctx)
	if err != nil {
		logger.WithContext(ctx).Error("usage flush: list clients failed", "error", err)
		return
	}

	now := time.Now().UTC()
	periodStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	periodEnd := periodStart.AddDate(0, 1, 0)

	for _, client := range clients {
		if !client.Active || client.Plan == nil {
			continue
		}

		per, err := readClientUsage(ctx, store, client, now)
		if err != nil {
			logger.WithContext(ctx).Error("usage flush: read counters failed", "error", err, "client_id", client.ID)
			continue
		}

		payload, err := json.Marshal(per)
		if err != nil {
			logger.WithContext(ctx).Error("usage flush: marshal failed", "error", err, "client_id", client.ID)
			continue
		}

		err = db.Exec(ctx, `
			INSERT INTO usage_aggregates (client_id, period_start, period_end, total_requests, per_limit)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (client_id, period_start, period_end)
			DO UPDATE SET total_requests = EXCLUDED.total_requests, per_limit = EXCLUDED.per_limit
		`, client.ID, periodStart, periodEnd, per.Monthly, string(payload))
		if err != nil {
			logger.WithContext(ctx).Error("usage flush: upsert failed", "error", err, "client_id", client.ID)
		}
	}
}

func readClientUsage(ctx context.Context, store *counterstore.Store, client models.Client, now time.Time) (PerLimitUsage, error) {
	monthly, err := store.Get(ctx, bucket.ClientMonthKey(client.ID, bucket.MonthBucket(now)))
	if err != nil {
		return PerLimitUsage{}, err
	}
	per := PerLimitUsage{Monthly: parseCount(monthly)}
	if client.Plan.HasWindow() {
		wb := bucket.WindowBucket(now, client.Plan.WindowSeconds)
		windowVal, err := store.Get(ctx, bucket.ClientWindowKey(client.ID, wb))
		if err != nil {
			return PerLimitUsage{}, err
		}
		per.Window = parseCount(windowVal)
	}
	return per, nil
}

func parseCount(raw string) int64 {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
