// Package limits assembles the ordered list of ceilings one admission
// decision must check, from a client's plan and the active global rules
// (spec §4.3).
package limits

import (
	"sort"

	"github.com/arjunmehta/ratequota/internal/models"
)

// priority mirrors GLOBAL < MONTHLY < WINDOW: global is checked first so a
// system-wide overflow always reports as GLOBAL even when the client's own
// window would also have overflowed.
func priority(kind models.RuleKind) int {
	switch kind {
	case models.KindGlobal:
		return 0
	case models.KindMonthly:
		return 1
	case models.KindWindow:
		return 2
	default:
		return 3
	}
}

// Assemble builds the effective-limit list for one client against the
// currently active global rules. plan must already be known effectively
// active; callers resolve that via internal/subscription before calling.
func Assemble(clientID string, plan *models.SubscriptionPlan, globalRules []models.RateLimitRule) []models.EffectiveLimit {
	var out []models.EffectiveLimit

	if plan != nil {
		if plan.MonthlyLimit > 0 {
			out = append(out, models.EffectiveLimit{
				Kind:     models.KindMonthly,
				Limit:    plan.MonthlyLimit,
				ClientID: clientID,
			})
		}
		if plan.HasWindow() {
			out = append(out, models.EffectiveLimit{
				Kind:          models.KindWindow,
				Limit:         plan.WindowLimit,
				WindowSeconds: plan.WindowSeconds,
				ClientID:      clientID,
			})
		}
	}

	for _, rule := range globalRules {
		if !rule.Active {
			continue
		}
		out = append(out, models.EffectiveLimit{
			Kind:          models.KindGlobal,
			Limit:         rule.LimitValue,
			WindowSeconds: rule.GlobalWindowSeconds,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return priority(out[i].Kind) < priority(out[j].Kind)
	})
	return out
}
