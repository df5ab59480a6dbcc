package catalog

import (
	"context"
	"testing"

	"github.com/arjunmehta/ratequota/internal/models"
)

func TestMemoryStore_CreateAndFetchClientWithPlan(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	plan := &models.SubscriptionPlan{ID: "p1", Name: "lite", MonthlyLimit: 100, Active: true}
	if err := store.CreatePlan(ctx, plan); err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}

	client := &models.Client{ID: "c1", Name: "acme", KeyPrefix: "deadbeef", PlanID: "p1", Active: true}
	if err := store.CreateClient(ctx, client); err != nil {
		t.Fatalf("CreateClient: %v", err)
	}

	got, err := store.ClientWithPlan(ctx, "c1")
	if err != nil {
		t.Fatalf("ClientWithPlan: %v", err)
	}
	if got == nil || got.Plan == nil || got.Plan.ID != "p1" {
		t.Fatalf("expected client with plan p1, got %+v", got)
	}
}

func TestMemoryStore_ClientByKeyPrefix(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_ = store.CreatePlan(ctx, &models.SubscriptionPlan{ID: "p1", Active: true})
	_ = store.CreateClient(ctx, &models.Client{ID: "c1", KeyPrefix: "abc123", PlanID: "p1", Active: true})

	got, err := store.ClientByKeyPrefix(ctx, "abc123")
	if err != nil {
		t.Fatalf("ClientByKeyPrefix: %v", err)
	}
	if got == nil || got.ID != "c1" {
		t.Fatalf("expected client c1, got %+v", got)
	}

	missing, err := store.ClientByKeyPrefix(ctx, "unknownpfx")
	if err != nil {
		t.Fatalf("ClientByKeyPrefix: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown key, got %+v", missing)
	}
}

func TestMemoryStore_ActiveGlobalRules(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_ = store.CreateGlobalRule(ctx, &models.RateLimitRule{ID: "r1", LimitValue: 100, Active: true})
	_ = store.CreateGlobalRule(ctx, &models.RateLimitRule{ID: "r2", LimitValue: 200, Active: false})

	rules, err := store.ActiveGlobalRules(ctx)
	if err != nil {
		t.Fatalf("ActiveGlobalRules: %v", err)
	}
	if len(rules) != 1 || rules[0].ID != "r1" {
		t.Fatalf("expected only r1 active, got %+v", rules)
	}
}

func TestMemoryStore_UpdateClientPlan(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_ = store.CreatePlan(ctx, &models.SubscriptionPlan{ID: "p1", Active: true})
	_ = store.CreatePlan(ctx, &models.SubscriptionPlan{ID: "p2", Active: true})
	_ = store.CreateClient(ctx, &models.Client{ID: "c1", PlanID: "p1", Active: true})

	if err := store.UpdateClientPlan(ctx, "c1", "p2"); err != nil {
		t.Fatalf("UpdateClientPlan: %v", err)
	}

	got, err := store.ClientWithPlan(ctx, "c1")
	if err != nil {
		t.Fatalf("ClientWithPlan: %v", err)
	}
	if got.Plan.ID != "p2" {
		t.Errorf("expected plan p2 after update, got %s", got.Plan.ID)
	}
}

func TestMemoryStore_UnknownClientReturnsNil(t *testing.T) {
	store := NewMemoryStore()
	got, err := store.ClientWithPlan(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("ClientWithPlan: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for unknown client, got %+v", got)
	}
}

func TestMemoryStore_Health(t *testing.T) {
	store := NewMemoryStore()
	if err := store.Health(context.Background()); err != nil {
		t.Errorf("expected nil health error, got %v", err)
	}
}
