package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/arjunmehta/ratequota/internal/models"
)

// PostgresStore implements Store over the catalog's three tables.
type PostgresStore struct {
	db Database
}

// NewPostgresStore creates a new PostgreSQL-backed catalog store.
func NewPostgresStore(db Database) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) ClientWithPlan(ctx context.Context, clientID string) (*models.Client, error) {
	return s.queryClient(ctx, "c.id = $1", clientID)
}

func (s *PostgresStore) ClientByKeyPrefix(ctx context.Context, prefix string) (*models.Client, error) {
	return s.queryClient(ctx, "c.key_prefix = $1", prefix)
}

func (s *PostgresStore) queryClient(ctx context.Context, where, arg string) (*models.Client, error) {
	query := fmt.Sprintf(`
		SELECT c.id, c.name, c.key_prefix, c.key_hash, c.plan_id, c.active, c.created_at,
		       p.id, p.name, p.monthly_limit, p.window_limit, p.window_seconds,
		       p.active, p.expires_at, p.created_at
		FROM clients c
		JOIN subscription_plans p ON p.id = c.plan_id
		WHERE %s
	`, where)

	rowInterface := s.db.QueryRow(ctx, query, arg)
	row, ok := rowInterface.(pgx.Row)
	if !ok {
		return nil, fmt.Errorf("invalid row type")
	}

	var (
		client Client
		plan   Plan
	)
	err := row.Scan(
		&client.ID, &client.Name, &client.KeyPrefix, &client.KeyHash, &client.PlanID, &client.Active, &client.CreatedAt,
		&plan.ID, &plan.Name, &plan.MonthlyLimit, &plan.WindowLimit, &plan.WindowSeconds,
		&plan.Active, &plan.ExpiresAt, &plan.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan client: %w", err)
	}

	result := client.toModel()
	p := plan.toModel()
	result.Plan = &p
	return &result, nil
}

func (s *PostgresStore) ActiveGlobalRules(ctx context.Context) ([]models.RateLimitRule, error) {
	rowsInterface, err := s.db.Query(ctx, `
		SELECT id, limit_value, global_window_seconds, active, created_at
		FROM rate_limit_rules
		WHERE active = true
	`)
	if err != nil {
		return nil, fmt.Errorf("query global rules: %w", err)
	}
	rows, ok := rowsInterface.(pgx.Rows)
	if !ok {
		return nil, fmt.Errorf("invalid rows type")
	}
	defer rows.Close()

	var rules []models.RateLimitRule
	for rows.Next() {
		var r Rule
		if err := rows.Scan(&r.ID, &r.LimitValue, &r.GlobalWindowSeconds, &r.Active, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, r.toModel())
	}
	return rules, nil
}

func (s *PostgresStore) Plan(ctx context.Context, planID string) (*models.SubscriptionPlan, error) {
	rowInterface := s.db.QueryRow(ctx, `
		SELECT id, name, monthly_limit, window_limit, window_seconds, active, expires_at, created_at
		FROM subscription_plans WHERE id = $1
	`, planID)
	row, ok := rowInterface.(pgx.Row)
	if !ok {
		return nil, fmt.Errorf("invalid row type")
	}
	var p Plan
	if err := row.Scan(&p.ID, &p.Name, &p.MonthlyLimit, &p.WindowLimit, &p.WindowSeconds, &p.Active, &p.ExpiresAt, &p.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan plan: %w", err)
	}
	model := p.toModel()
	return &model, nil
}

func (s *PostgresStore) Plans(ctx context.Context) ([]models.SubscriptionPlan, error) {
	rowsInterface, err := s.db.Query(ctx, `
		SELECT id, name, monthly_limit, window_limit, window_seconds, active, expires_at, created_at
		FROM subscription_plans
	`)
	if err != nil {
		return nil, fmt.Errorf("query plans: %w", err)
	}
	rows, ok := rowsInterface.(pgx.Rows)
	if !ok {
		return nil, fmt.Errorf("invalid rows type")
	}
	defer rows.Close()

	var out []models.SubscriptionPlan
	for rows.Next() {
		var p Plan
		if err := rows.Scan(&p.ID, &p.Name, &p.MonthlyLimit, &p.WindowLimit, &p.WindowSeconds, &p.Active, &p.ExpiresAt, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		out = append(out, p.toModel())
	}
	return out, nil
}

func (s *PostgresStore) ClientsWithPlans(ctx context.Context) ([]models.Client, error) {
	rowsInterface, err := s.db.Query(ctx, `
		SELECT c.id, c.name, c.key_prefix, c.key_hash, c.plan_id, c.active, c.created_at,
		       p.id, p.name, p.monthly_limit, p.window_limit, p.window_seconds,
		       p.active, p.expires_at, p.created_at
		FROM clients c
		JOIN subscription_plans p ON p.id = c.plan_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query clients: %w", err)
	}
	rows, ok := rowsInterface.(pgx.Rows)
	if !ok {
		return nil, fmt.Errorf("invalid rows type")
	}
	defer rows.Close()

	var out []models.Client
	for rows.Next() {
		var client Client
		var plan Plan
		if err := rows.Scan(
			&client.ID, &client.Name, &client.KeyPrefix, &client.KeyHash, &client.PlanID, &client.Active, &client.CreatedAt,
			&plan.ID, &plan.Name, &plan.MonthlyLimit, &plan.WindowLimit, &plan.WindowSeconds,
			&plan.Active, &plan.ExpiresAt, &plan.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		c := client.toModel()
		p := plan.toModel()
		c.Plan = &p
		out = append(out, c)
	}
	return out, nil
}

func (s *PostgresStore) GlobalRules(ctx context.Context) ([]models.RateLimitRule, error) {
	rowsInterface, err := s.db.Query(ctx, `
		SELECT id, limit_value, global_window_seconds, active, created_at
		FROM rate_limit_rules
	`)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	rows, ok := rowsInterface.(pgx.Rows)
	if !ok {
		return nil, fmt.Errorf("invalid rows type")
	}
	defer rows.Close()

	var out []models.RateLimitRule
	for rows.Next() {
		var r Rule
		if err := rows.Scan(&r.ID, &r.LimitValue, &r.GlobalWindowSeconds, &r.Active, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		out = append(out, r.toModel())
	}
	return out, nil
}

func (s *PostgresStore) CreatePlan(ctx context.Context, plan *models.SubscriptionPlan) error {
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = time.Now().UTC()
	}
	return s.db.Exec(ctx, `
		INSERT INTO subscription_plans (id, name, monthly_limit, window_limit, window_seconds, active, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, plan.ID, plan.Name, plan.MonthlyLimit, plan.WindowLimit, plan.WindowSeconds, plan.Active, plan.ExpiresAt, plan.CreatedAt)
}

func (s *PostgresStore) CreateClient(ctx context.Context, client *models.Client) error {
	if client.CreatedAt.IsZero() {
		client.CreatedAt = time.Now().UTC()
	}
	return s.db.Exec(ctx, `
		INSERT INTO clients (id, name, key_prefix, key_hash, plan_id, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, client.ID, client.Name, client.KeyPrefix, client.KeyHash, client.PlanID, client.Active, client.CreatedAt)
}

func (s *PostgresStore) CreateGlobalRule(ctx context.Context, rule *models.RateLimitRule) error {
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}
	rule.Kind = models.KindGlobal
	return s.db.Exec(ctx, `
		INSERT INTO rate_limit_rules (id, limit_value, global_window_seconds, active, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, rule.ID, rule.LimitValue, rule.GlobalWindowSeconds, rule.Active, rule.CreatedAt)
}

func (s *PostgresStore) UpdateClientPlan(ctx context.Context, clientID, planID string) error {
	return s.db.Exec(ctx, `UPDATE clients SET plan_id = $1 WHERE id = $2`, planID, clientID)
}

func (s *PostgresStore) Health(ctx context.Context) error {
	return s.db.Health(ctx)
}

// Plan, Client, and Rule mirror their models.* counterparts with db tags,
// matching the teacher's separation between wire/domain structs and
// scan-target structs in internal/store/postgres.go.
type Plan struct {
	ID            string     `db:"id"`
	Name          string     `db:"name"`
	MonthlyLimit  int64      `db:"monthly_limit"`
	WindowLimit   int64      `db:"window_limit"`
	WindowSeconds int64      `db:"window_seconds"`
	Active        bool       `db:"active"`
	ExpiresAt     *time.Time `db:"expires_at"`
	CreatedAt     time.Time  `db:"created_at"`
}

func (p Plan) toModel() models.SubscriptionPlan {
	return models.SubscriptionPlan{
		ID:            p.ID,
		Name:          p.Name,
		MonthlyLimit:  p.MonthlyLimit,
		WindowLimit:   p.WindowLimit,
		WindowSeconds: p.WindowSeconds,
		Active:        p.Active,
		ExpiresAt:     p.ExpiresAt,
		CreatedAt:     p.CreatedAt,
	}
}

type Client struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	KeyPrefix string    `db:"key_prefix"`
	KeyHash   []byte    `db:"key_hash"`
	PlanID    string    `db:"plan_id"`
	Active    bool      `db:"active"`
	CreatedAt time.Time `db:"created_at"`
}

func (c Client) toModel() models.Client {
	return models.Client{
		ID:        c.ID,
		Name:      c.Name,
		KeyPrefix: c.KeyPrefix,
		KeyHash:   c.KeyHash,
		PlanID:    c.PlanID,
		Active:    c.Active,
		CreatedAt: c.CreatedAt,
	}
}

type Rule struct {
	ID                  string    `db:"id"`
	LimitValue          int64     `db:"limit_value"`
	GlobalWindowSeconds int64     `db:"global_window_seconds"`
	Active              bool      `db:"active"`
	CreatedAt           time.Time `db:"created_at"`
}

func (r Rule) toModel() models.RateLimitRule {
	return models.RateLimitRule{
		ID:                  r.ID,
		Kind:                models.KindGlobal,
		LimitValue:          r.LimitValue,
		GlobalWindowSeconds: r.GlobalWindowSeconds,
		Active:              r.Active,
		CreatedAt:           r.CreatedAt,
	}
}
