// Package admission implements the thin HTTP boundary that orchestrates
// subscription resolution, limit assembly, the atomic evaluator, and the
// throttle classifier into one admission decision per request (spec §4.6).
package admission

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/arjunmehta/ratequota/internal/apikey"
	"github.com/arjunmehta/ratequota/internal/bucket"
	"github.com/arjunmehta/ratequota/internal/catalog"
	"github.com/arjunmehta/ratequota/internal/counterstore"
	apperrors "github.com/arjunmehta/ratequota/internal/errors"
	"github.com/arjunmehta/ratequota/internal/evaluator"
	"github.com/arjunmehta/ratequota/internal/limits"
	"github.com/arjunmehta/ratequota/internal/logger"
	"github.com/arjunmehta/ratequota/internal/metrics"
	"github.com/arjunmehta/ratequota/internal/models"
	"github.com/arjunmehta/ratequota/internal/subscription"
	"github.com/arjunmehta/ratequota/internal/throttle"
)

const apiKeyHeader = "X-API-Key"

// noSubscriptionRetryAfter is the retry hint handed back for the "no active
// subscription" denial; it mirrors the negative subscription-cache TTL so a
// retrying client isn't told to come back sooner than the cache will change.
const noSubscriptionRetryAfter = 300

// Filter is the admission decision pipeline mounted in front of the
// notification endpoints.
type Filter struct {
	Catalog    catalog.Store
	Resolver   *subscription.Resolver
	Store      *counterstore.Store
	Thresholds throttle.Thresholds
}

// New builds a Filter from its four collaborators: the durable catalog
// (client lookup, global rules), the subscription resolver (cache-fronted
// plan lookup), the shared counter store the evaluator runs against, and
// the throttle thresholds loaded from configuration.
func New(cat catalog.Store, resolver *subscription.Resolver, store *counterstore.Store, thresholds throttle.Thresholds) *Filter {
	return &Filter{Catalog: cat, Resolver: resolver, Store: store, Thresholds: thresholds}
}

// Middleware wraps next with the admission decision described in spec §4.6.
// It is meant to be mounted only on the `/api/notify/*` route group.
func (f *Filter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		f.serve(w, r, next)
	})
}

func (f *Filter) serve(w http.ResponseWriter, r *http.Request, next http.Handler) {
	ctx := r.Context()

	raw := r.Header.Get(apiKeyHeader)
	if raw == "" {
		writeError(w, r, http.StatusUnauthorized, "Unauthorized", "Missing X-API-Key header")
		return
	}

	prefix, _, ok := apikey.Parse(raw)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "Unauthorized", "Invalid API key")
		return
	}

	client, err := f.Catalog.ClientByKeyPrefix(ctx, prefix)
	if err != nil {
		logger.WithContext(ctx).Error("catalog lookup failed", "error", err)
		writeError(w, r, http.StatusServiceUnavailable, "Service Unavailable", "catalog unavailable")
		return
	}
	if client == nil || !apikey.Verify(raw, client.KeyHash) {
		writeError(w, r, http.StatusUnauthorized, "Unauthorized", "Invalid API key")
		return
	}
	if !client.Active {
		writeError(w, r, http.StatusForbidden, "Forbidden", "Client is inactive")
		return
	}

	plan, err := f.Resolver.Resolve(ctx, client.ID)
	if err != nil {
		logger.WithContext(ctx).Error("subscription resolution failed", "error", err, "client_id", client.ID)
		writeError(w, r, http.StatusServiceUnavailable, "Service Unavailable", "subscription store unavailable")
		return
	}
	if plan == nil {
		metrics.RecordAdmission("", string(models.ThrottleHard))
		writeRateLimited(w, r, apperrors.RateLimitError{
			ThrottleType:      string(models.ThrottleHard),
			RetryAfterSeconds: noSubscriptionRetryAfter,
			Reason:            "no active subscription",
		})
		return
	}

	globalRules, err := f.Catalog.ActiveGlobalRules(ctx)
	if err != nil {
		logger.WithContext(ctx).Error("global rule lookup failed", "error", err)
		writeError(w, r, http.StatusServiceUnavailable, "Service Unavailable", "catalog unavailable")
		return
	}

	effLimits := limits.Assemble(client.ID, plan, globalRules)
	now := time.Now().UTC()
	evalLimits := buildEvaluatorLimits(client.ID, effLimits, now)

	evalStart := time.Now()
	outcome, err := evaluator.Evaluate(ctx, f.Store, evalLimits)
	metrics.RecordCounterStoreLatency("evaluate", time.Since(evalStart))
	if err != nil {
		logger.WithContext(ctx).Error("counter store evaluation failed", "error", err)
		writeError(w, r, http.StatusServiceUnavailable, "Service Unavailable", "counter store unavailable")
		return
	}

	if outcome.Admitted {
		f.observeGlobalUsage(effLimits, outcome)
		setAdmitHeaders(w, effLimits, outcome)
		metrics.RecordAdmission("", string(models.ThrottleNone))
		next.ServeHTTP(w, r)
		return
	}

	result := f.classifyDenial(effLimits, outcome)
	f.denyRateLimited(ctx, w, r, result)
}

// classifyDenial turns the evaluator's raw Outcome into the admission
// decision shape spec §3 models, running the throttle classifier over the
// limit that failed.
func (f *Filter) classifyDenial(effLimits []models.EffectiveLimit, outcome evaluator.Outcome) models.RateLimitResult {
	failed := effLimits[outcome.FailedIndex]
	throttleType, softDelayMs := throttle.Classify(failed.Kind, outcome.CurrentCount, outcome.Ceiling, f.Thresholds)

	var ratio float64
	if failed.Kind == models.KindGlobal && outcome.Ceiling > 0 {
		ratio = float64(outcome.CurrentCount) / float64(outcome.Ceiling)
	}

	retryAfter := int(outcome.ResidualTTL)
	if retryAfter < 1 {
		retryAfter = 1
	}

	return models.RateLimitResult{
		Allowed:           false,
		LimitHit:          &failed,
		CurrentCount:      outcome.CurrentCount,
		Ceiling:           outcome.Ceiling,
		RetryAfterSeconds: retryAfter,
		ExceededKind:      failed.Kind,
		GlobalUsageRatio:  ratio,
		Throttle:          throttleType,
		SoftDelayMs:       softDelayMs,
	}
}

func (f *Filter) observeGlobalUsage(effLimits []models.EffectiveLimit, outcome evaluator.Outcome) {
	for i, el := range effLimits {
		if el.Kind != models.KindGlobal {
			continue
		}
		if i >= len(outcome.Counts) {
			continue
		}
		throttle.ObserveGlobalUsage(outcome.Counts[i], el.Limit, f.Thresholds)
	}
}

func (f *Filter) denyRateLimited(ctx context.Context, w http.ResponseWriter, r *http.Request, result models.RateLimitResult) {
	metrics.RecordAdmission(string(result.ExceededKind), string(result.Throttle))

	if result.Throttle == models.ThrottleSoft && result.SoftDelayMs > 0 {
		sleepCooperative(ctx, time.Duration(result.SoftDelayMs)*time.Millisecond)
	}

	writeRateLimited(w, r, apperrors.RateLimitError{
		LimitType:         string(result.ExceededKind),
		ThrottleType:      string(result.Throttle),
		Limit:             result.Ceiling,
		Current:           result.CurrentCount,
		RetryAfterSeconds: result.RetryAfterSeconds,
	})
}

// sleepCooperative waits for d or for ctx to be cancelled, whichever comes
// first, per spec §5's cooperative-wait requirement.
func sleepCooperative(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// buildEvaluatorLimits translates the sorted effective-limit list into the
// key/ceiling/TTL triples the evaluator checks, using the bucketing rules
// from spec §4.1.
func buildEvaluatorLimits(clientID string, effLimits []models.EffectiveLimit, now time.Time) []evaluator.Limit {
	out := make([]evaluator.Limit, len(effLimits))
	for i, el := range effLimits {
		var key string
		var ttl time.Duration

		switch el.Kind {
		case models.KindMonthly:
			key = bucket.ClientMonthKey(clientID, bucket.MonthBucket(now))
			ttl = bucket.MonthTTL(now)
		case models.KindWindow:
			wb := bucket.WindowBucket(now, el.WindowSeconds)
			key = bucket.ClientWindowKey(clientID, wb)
			ttl = bucket.WindowTTL(el.WindowSeconds)
		case models.KindGlobal:
			if el.WindowSeconds > 0 {
				wb := bucket.WindowBucket(now, el.WindowSeconds)
				key = bucket.GlobalWindowKey(wb)
				ttl = bucket.WindowTTL(el.WindowSeconds)
			} else {
				key = bucket.GlobalMonthKey(bucket.MonthBucket(now))
				ttl = bucket.MonthTTL(now)
			}
		}

		out[i] = evaluator.Limit{Key: key, Ceiling: el.Limit, TTLSeconds: int64(ttl.Seconds())}
	}
	return out
}

// representativeIndex picks the most-restrictive client-scoped limit for
// the success-path headers: WINDOW if present (it resets soonest), else
// MONTHLY, else -1 when the client has no plan-derived ceiling at all.
func representativeIndex(effLimits []models.EffectiveLimit) int {
	idx := -1
	for i, el := range effLimits {
		if el.Kind == models.KindMonthly || el.Kind == models.KindWindow {
			idx = i
		}
	}
	return idx
}

func setAdmitHeaders(w http.ResponseWriter, effLimits []models.EffectiveLimit, outcome evaluator.Outcome) {
	idx := representativeIndex(effLimits)
	if idx < 0 || idx >= len(outcome.Counts) {
		return
	}
	el := effLimits[idx]
	remaining := el.Limit - outcome.Counts[idx]
	if remaining < 0 {
		remaining = 0
	}
	w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(el.Limit, 10))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
}

// errorResponse is the JSON body shape spec §7's propagation policy requires
// of every denial and 5xx response.
type errorResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Status    int       `json:"status"`
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Path      string    `json:"path"`
}

// rateLimitResponse extends errorResponse with the 429-specific fields spec
// §6 requires.
type rateLimitResponse struct {
	errorResponse
	LimitType         string `json:"limitType,omitempty"`
	ThrottleType      string `json:"throttleType"`
	Limit             int64  `json:"limit"`
	Current           int64  `json:"current"`
	RetryAfterSeconds int    `json:"retryAfterSeconds"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, errText, message string) {
	writeJSON(w, status, errorResponse{
		Timestamp: time.Now().UTC(),
		Status:    status,
		Error:     errText,
		Message:   message,
		Path:      r.URL.Path,
	})
}

func writeRateLimited(w http.ResponseWriter, r *http.Request, rle apperrors.RateLimitError) {
	w.Header().Set("Retry-After", strconv.Itoa(rle.RetryAfterSeconds))
	if rle.LimitType != "" {
		w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(rle.Limit, 10))
	}
	w.Header().Set("X-RateLimit-Remaining", "0")

	message := rle.Reason
	if message == "" {
		message = rle.Error()
	}

	writeJSON(w, http.StatusTooManyRequests, rateLimitResponse{
		errorResponse: errorResponse{
			Timestamp: time.Now().UTC(),
			Status:    http.StatusTooManyRequests,
			Error:     "Too Many Requests",
			Message:   message,
			Path:      r.URL.Path,
		},
		LimitType:         rle.LimitType,
		ThrottleType:      rle.ThrottleType,
		Limit:             rle.Limit,
		Current:           rle.Current,
		RetryAfterSeconds: rle.RetryAfterSeconds,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
