// Package evaluator implements the atomic multi-limit check-and-increment:
// either every counter in the set is incremented by exactly one, or none is
// and the first exceeding ceiling is reported. Generalizes the single-key
// fixed-window Lua script pattern to N keys in one round trip.
package evaluator

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/arjunmehta/ratequota/internal/counterstore"
)

// evalScript implements the two-phase contract from spec §4.4: phase 1
// reads every counter and bails on the first one at-or-over its ceiling
// without mutating anything; phase 2, reached only if every counter cleared
// phase 1, increments all of them and sets TTL exactly once per bucket (on
// the 0->1 transition). ARGV pairs are (limit, ttlSeconds) per key, in the
// same order as KEYS; a limit of 0 means the ceiling is disabled and that
// key is skipped in both phases.
var evalScript = goredis.NewScript(`
local n = #KEYS
for i = 1, n do
    local limit = tonumber(ARGV[(i-1)*2+1])
    if limit > 0 then
        local cur = tonumber(redis.call('GET', KEYS[i]) or '0')
        if cur >= limit then
            local ttl = redis.call('TTL', KEYS[i])
            if ttl < 0 then ttl = 0 end
            return {0, i-1, cur, limit, ttl}
        end
    end
end

local max_ttl = 0
local counts = {}
for i = 1, n do
    local limit = tonumber(ARGV[(i-1)*2+1])
    if limit > 0 then
        local ttl_seconds = tonumber(ARGV[(i-1)*2+2])
        local new = redis.call('INCR', KEYS[i])
        if new == 1 then
            redis.call('EXPIRE', KEYS[i], ttl_seconds)
        end
        if ttl_seconds > max_ttl then
            max_ttl = ttl_seconds
        end
        counts[i] = new
    else
        counts[i] = 0
    end
end
return {1, max_ttl, counts}
`)

// ErrUnavailable is returned when the counter store is known to be down
// (the breaker is tripped) or the script call itself failed.
var ErrUnavailable = errors.New("counter store unavailable")

// Limit is one key/ceiling/ttl triple to check-and-increment atomically.
// Index position corresponds to the sorted EffectiveLimit list (GLOBAL <
// MONTHLY < WINDOW) so FailedIndex in Outcome maps back to it.
type Limit struct {
	Key        string
	Ceiling    int64
	TTLSeconds int64
}

// Outcome is the raw result of one Evaluate call, before classification.
type Outcome struct {
	Admitted     bool
	FailedIndex  int   // valid only when !Admitted
	CurrentCount int64 // valid only when !Admitted
	Ceiling      int64 // valid only when !Admitted
	ResidualTTL  int64 // seconds; valid only when !Admitted
	MaxTTL       int64 // seconds; valid only when Admitted
	Counts       []int64 // per-limit new count after increment; valid only when Admitted
}

// Evaluate runs the scripted check-and-increment over limits. An empty
// limits slice admits unconditionally without a round trip, per spec §4.4's
// "empty effective-limits list" edge case.
func Evaluate(ctx context.Context, store *counterstore.Store, limits []Limit) (Outcome, error) {
	if len(limits) == 0 {
		return Outcome{Admitted: true}, nil
	}
	if store.Unavailable() {
		return Outcome{}, ErrUnavailable
	}

	keys := make([]string, len(limits))
	args := make([]interface{}, 0, len(limits)*2)
	for i, l := range limits {
		keys[i] = l.Key
		args = append(args, l.Ceiling, l.TTLSeconds)
	}

	raw, err := evalScript.Run(ctx, store.Client(), keys, args...).Result()
	store.RecordResult(err)
	if err != nil {
		return Outcome{}, errors.Join(ErrUnavailable, err)
	}

	res, ok := raw.([]interface{})
	if !ok || len(res) == 0 {
		return Outcome{}, errors.Join(ErrUnavailable, errors.New("malformed script result"))
	}

	admitted, err := toInt64(res[0])
	if err != nil {
		return Outcome{}, errors.Join(ErrUnavailable, err)
	}

	if admitted == 1 {
		maxTTL, err := toInt64(res[1])
		if err != nil {
			return Outcome{}, errors.Join(ErrUnavailable, err)
		}
		rawCounts, ok := res[2].([]interface{})
		if !ok {
			return Outcome{}, errors.Join(ErrUnavailable, errors.New("malformed script counts"))
		}
		counts := make([]int64, len(rawCounts))
		for i, c := range rawCounts {
			v, err := toInt64(c)
			if err != nil {
				return Outcome{}, errors.Join(ErrUnavailable, err)
			}
			counts[i] = v
		}
		return Outcome{Admitted: true, MaxTTL: maxTTL, Counts: counts}, nil
	}

	failedIndex, err1 := toInt64(res[1])
	current, err2 := toInt64(res[2])
	ceiling, err3 := toInt64(res[3])
	residualTTL, err4 := toInt64(res[4])
	if err := errors.Join(err1, err2, err3, err4); err != nil {
		return Outcome{}, errors.Join(ErrUnavailable, err)
	}
	return Outcome{
		Admitted:     false,
		FailedIndex:  int(failedIndex),
		CurrentCount: current,
		Ceiling:      ceiling,
		ResidualTTL:  residualTTL,
	}, nil
}

// toInt64 normalizes the handful of numeric shapes a Lua table-to-RESP
// conversion can yield (the go-redis client returns int64 directly for
// simple replies decoded from a script).
func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("unexpected numeric type %T", v)
	}
}
