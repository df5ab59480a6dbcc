package catalog

import (
	"context"
	"errors"
	"sync"

	"github.com/arjunmehta/ratequota/internal/models"
)

// MemoryStore is the in-memory catalog used when no database is configured
// and by tests.
type MemoryStore struct {
	mu      sync.RWMutex
	plans   map[string]models.SubscriptionPlan
	clients map[string]models.Client
	rules   map[string]models.RateLimitRule
}

// NewMemoryStore creates an empty in-memory catalog.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		plans:   make(map[string]models.SubscriptionPlan),
		clients: make(map[string]models.Client),
		rules:   make(map[string]models.RateLimitRule),
	}
}

func (s *MemoryStore) ClientWithPlan(ctx context.Context, clientID string) (*models.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clientWithPlanLocked(clientID)
}

func (s *MemoryStore) ClientByKeyPrefix(ctx context.Context, prefix string) (*models.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, c := range s.clients {
		if c.KeyPrefix == prefix {
			return s.clientWithPlanLocked(id)
		}
	}
	return nil, nil
}

func (s *MemoryStore) clientWithPlanLocked(clientID string) (*models.Client, error) {
	client, ok := s.clients[clientID]
	if !ok {
		return nil, nil
	}
	out := client
	if plan, ok := s.plans[client.PlanID]; ok {
		p := plan
		out.Plan = &p
	}
	return &out, nil
}

func (s *MemoryStore) ActiveGlobalRules(ctx context.Context) ([]models.RateLimitRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.RateLimitRule
	for _, r := range s.rules {
		if r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *MemoryStore) CreatePlan(ctx context.Context, plan *models.SubscriptionPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if plan.ID == "" {
		return errors.New("plan id is required")
	}
	s.plans[plan.ID] = *plan
	return nil
}

func (s *MemoryStore) CreateClient(ctx context.Context, client *models.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if client.ID == "" {
		return errors.New("client id is required")
	}
	stored := *client
	stored.Plan = nil
	s.clients[client.ID] = stored
	return nil
}

func (s *MemoryStore) CreateGlobalRule(ctx context.Context, rule *models.RateLimitRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rule.ID == "" {
		return errors.New("rule id is required")
	}
	rule.Kind = models.KindGlobal
	s.rules[rule.ID] = *rule
	return nil
}

func (s *MemoryStore) UpdateClientPlan(ctx context.Context, clientID, planID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	client, ok := s.clients[clientID]
	if !ok {
		return errors.New("client not found")
	}
	client.PlanID = planID
	s.clients[clientID] = client
	return nil
}

func (s *MemoryStore) Plan(ctx context.Context, planID string) (*models.SubscriptionPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.plans[planID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *MemoryStore) Plans(ctx context.Context) ([]models.SubscriptionPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.SubscriptionPlan, 0, len(s.plans))
	for _, p := range s.plans {
		out = append(out, p)
	}
	return out, nil
}

func (s *MemoryStore) ClientsWithPlans(ctx context.Context) ([]models.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Client, 0, len(s.clients))
	for id := range s.clients {
		c, err := s.clientWithPlanLocked(id)
		if err != nil || c == nil {
			continue
		}
		out = append(out, *c)
	}
	return out, nil
}

func (s *MemoryStore) GlobalRules(ctx context.Context) ([]models.RateLimitRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.RateLimitRule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, r)
	}
	return out, nil
}

// Health always returns nil for the in-memory store.
func (s *MemoryStore) Health(ctx context.Context) error {
	return nil
}
