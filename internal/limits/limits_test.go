package limits

import (
	"testing"

	"github.com/arjunmehta/ratequota/internal/models"
)

func TestAssemble_MonthlyOnly(t *testing.T) {
	plan := &models.SubscriptionPlan{MonthlyLimit: 100}
	got := Assemble("cl1", plan, nil)

	if len(got) != 1 || got[0].Kind != models.KindMonthly || got[0].Limit != 100 {
		t.Fatalf("unexpected assembly: %+v", got)
	}
}

func TestAssemble_MonthlyAndWindow(t *testing.T) {
	plan := &models.SubscriptionPlan{MonthlyLimit: 10000, WindowLimit: 5, WindowSeconds: 60}
	got := Assemble("cl1", plan, nil)

	if len(got) != 2 {
		t.Fatalf("expected 2 limits, got %d", len(got))
	}
	if got[0].Kind != models.KindMonthly || got[1].Kind != models.KindWindow {
		t.Errorf("expected MONTHLY then WINDOW, got %v then %v", got[0].Kind, got[1].Kind)
	}
}

func TestAssemble_GlobalSortedFirst(t *testing.T) {
	plan := &models.SubscriptionPlan{MonthlyLimit: 10000, WindowLimit: 5, WindowSeconds: 60}
	rules := []models.RateLimitRule{
		{Active: true, LimitValue: 100, GlobalWindowSeconds: 60},
	}
	got := Assemble("cl1", plan, rules)

	if len(got) != 3 {
		t.Fatalf("expected 3 limits, got %d", len(got))
	}
	if got[0].Kind != models.KindGlobal {
		t.Errorf("expected GLOBAL first, got %v", got[0].Kind)
	}
	if got[1].Kind != models.KindMonthly || got[2].Kind != models.KindWindow {
		t.Errorf("expected MONTHLY then WINDOW after GLOBAL, got %v then %v", got[1].Kind, got[2].Kind)
	}
}

func TestAssemble_InactiveGlobalRuleSkipped(t *testing.T) {
	rules := []models.RateLimitRule{
		{Active: false, LimitValue: 100},
	}
	got := Assemble("cl1", nil, rules)
	if len(got) != 0 {
		t.Errorf("expected inactive global rule skipped, got %+v", got)
	}
}

func TestAssemble_NilPlanProducesOnlyGlobal(t *testing.T) {
	rules := []models.RateLimitRule{{Active: true, LimitValue: 50}}
	got := Assemble("cl1", nil, rules)
	if len(got) != 1 || got[0].Kind != models.KindGlobal {
		t.Fatalf("unexpected assembly with nil plan: %+v", got)
	}
}

func TestAssemble_MultipleGlobalRulesPreserveRelativeOrder(t *testing.T) {
	rules := []models.RateLimitRule{
		{Active: true, LimitValue: 100, GlobalWindowSeconds: 60},
		{Active: true, LimitValue: 5000},
	}
	got := Assemble("cl1", nil, rules)
	if len(got) != 2 {
		t.Fatalf("expected 2 global limits, got %d", len(got))
	}
	if got[0].Limit != 100 || got[1].Limit != 5000 {
		t.Errorf("expected stable order preserved, got %+v", got)
	}
}
