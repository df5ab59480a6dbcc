// Package catalog provides durable CRUD storage for subscription plans,
// clients, and global rate-limit rules, with a Postgres implementation and
// an in-memory fallback for environments with no configured database.
package catalog

import (
	"context"

	"github.com/arjunmehta/ratequota/internal/models"
)

// Store is the durable catalog surface the admission pipeline reads from
// and the admin surface writes to.
type Store interface {
	ClientWithPlan(ctx context.Context, clientID string) (*models.Client, error)
	ClientByKeyPrefix(ctx context.Context, prefix string) (*models.Client, error)
	ActiveGlobalRules(ctx context.Context) ([]models.RateLimitRule, error)

	CreatePlan(ctx context.Context, plan *models.SubscriptionPlan) error
	CreateClient(ctx context.Context, client *models.Client) error
	CreateGlobalRule(ctx context.Context, rule *models.RateLimitRule) error
	UpdateClientPlan(ctx context.Context, clientID, planID string) error

	// Plan, ClientsWithPlans, and GlobalRules back the admin read surface
	// and the usage aggregator; unlike ActiveGlobalRules they are not
	// filtered to active-only rows.
	Plan(ctx context.Context, planID string) (*models.SubscriptionPlan, error)
	Plans(ctx context.Context) ([]models.SubscriptionPlan, error)
	ClientsWithPlans(ctx context.Context) ([]models.Client, error)
	GlobalRules(ctx context.Context) ([]models.RateLimitRule, error)

	Health(ctx context.Context) error
}

// Database is the subset of internal/database.DB's surface the catalog
// depends on, kept as an interface so tests can substitute a fake.
type Database interface {
	Exec(ctx context.Context, sql string, args ...any) error
	Query(ctx context.Context, sql string, args ...any) (interface{}, error)
	QueryRow(ctx context.Context, sql string, args ...any) interface{}
	Health(ctx context.Context) error
	IsConfigured() bool
}

// New dispatches to a Postgres-backed store when db is configured, or to
// the in-memory mirror otherwise.
func New(db Database) Store {
	if db.IsConfigured() {
		return NewPostgresStore(db)
	}
	return NewMemoryStore()
}
