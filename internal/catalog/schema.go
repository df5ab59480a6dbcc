package catalog

import (
	"context"
	"fmt"
)

// schemaDDL creates the catalog's tables if they don't already exist. The
// teacher's stack carries no migration tool (goose et al. are not in its
// go.mod), so this mirrors internal/database.New's "ping and prepare the
// pool once at boot" style rather than introducing a new dependency for a
// handful of tables.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS subscription_plans (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	monthly_limit  BIGINT NOT NULL,
	window_limit   BIGINT NOT NULL DEFAULT 0,
	window_seconds BIGINT NOT NULL DEFAULT 0,
	active         BOOLEAN NOT NULL DEFAULT true,
	expires_at     TIMESTAMPTZ,
	created_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS clients (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	key_prefix TEXT NOT NULL UNIQUE,
	key_hash   BYTEA NOT NULL,
	plan_id    TEXT NOT NULL REFERENCES subscription_plans(id),
	active     BOOLEAN NOT NULL DEFAULT true,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS rate_limit_rules (
	id                    TEXT PRIMARY KEY,
	limit_value           BIGINT NOT NULL,
	global_window_seconds BIGINT NOT NULL DEFAULT 0,
	active                BOOLEAN NOT NULL DEFAULT true,
	created_at            TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS usage_aggregates (
	client_id      TEXT NOT NULL REFERENCES clients(id),
	period_start   TIMESTAMPTZ NOT NULL,
	period_end     TIMESTAMPTZ NOT NULL,
	total_requests BIGINT NOT NULL,
	per_limit      JSONB NOT NULL,
	PRIMARY KEY (client_id, period_start, period_end)
);
`

// EnsureSchema applies schemaDDL. Called once at boot by cmd/ratelimiter
// before the catalog serves any request.
func EnsureSchema(ctx context.Context, db Database) error {
	if !db.IsConfigured() {
		return nil
	}
	if err := db.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("apply catalog schema: %w", err)
	}
	return nil
}
