// Package throttle classifies a denied admission as HARD or SOFT and
// reports the observability-only WARN/FULL events, per spec §4.5. None of
// the logging events here ever change the classification outcome.
package throttle

import (
	"github.com/arjunmehta/ratequota/internal/logger"
	"github.com/arjunmehta/ratequota/internal/models"
)

// Thresholds carries the six configuration keys from spec §4.5. Callers are
// responsible for the `0 < soft <= warn <= full <= hard` invariant (config
// validates it at load time).
type Thresholds struct {
	Mode        string // "hard" or "soft"; soft enables the delay path
	SoftDelayMs int
	Soft        float64
	Warn        float64
	Full        float64
	Hard        float64
}

// Classify labels a denial and computes its soft-delay budget. ratio is
// current/ceiling and is only meaningful when failedKind is GLOBAL.
func Classify(failedKind models.RuleKind, current, ceiling int64, t Thresholds) (models.Throttle, int) {
	if failedKind == models.KindWindow || failedKind == models.KindMonthly {
		return models.ThrottleHard, 0
	}

	ratio := float64(current) / float64(ceiling)

	if ratio >= t.Hard {
		return models.ThrottleHard, 0
	}
	if ratio >= t.Soft {
		if t.Mode != "soft" {
			return models.ThrottleHard, 0
		}
		return models.ThrottleSoft, t.SoftDelayMs
	}
	// Denial implies current >= ceiling, i.e. ratio >= 1.0, so this branch
	// only fires when the soft threshold is configured above 1.0, leaving
	// a gap below it; treat conservatively as HARD.
	return models.ThrottleHard, 0
}

// ObserveGlobalUsage emits the WARN/FULL observability events for an
// admitted request's post-increment global usage ratio. Never called on
// the denial path; never alters any admission outcome.
func ObserveGlobalUsage(current, ceiling int64, t Thresholds) {
	if ceiling <= 0 {
		return
	}
	ratio := float64(current) / float64(ceiling)

	if ratio >= t.Full {
		logger.Warn("global rate limit usage at full threshold",
			"current", current, "ceiling", ceiling, "ratio_pct", ratio*100)
		return
	}
	if ratio >= t.Warn {
		logger.Warn("global rate limit usage at warn threshold",
			"current", current, "ceiling", ceiling, "ratio_pct", ratio*100)
	}
}
