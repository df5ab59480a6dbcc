// Package bucket maps (client, limit kind, wall clock) to a counter key and
// its residual TTL, per the fixed-window and monthly disciplines.
package bucket

import (
	"fmt"
	"time"
)

// WindowBucket returns the fixed-window bucket boundary (unix seconds) that
// now falls into, for a window of the given length.
func WindowBucket(now time.Time, windowSeconds int64) int64 {
	sec := now.Unix()
	return (sec / windowSeconds) * windowSeconds
}

// WindowTTL returns the TTL to set on first write to a fixed-window counter:
// always the full window length.
func WindowTTL(windowSeconds int64) time.Duration {
	return time.Duration(windowSeconds) * time.Second
}

// MonthBucket returns the calendar year-month in UTC, formatted YYYYMM.
func MonthBucket(now time.Time) string {
	return now.UTC().Format("200601")
}

// MonthTTL returns the number of seconds from now to the first instant of
// the next UTC month.
func MonthTTL(now time.Time) time.Duration {
	now = now.UTC()
	nextMonth := time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	return nextMonth.Sub(now)
}

// ClientWindowKey is the per-client fixed-window counter key.
func ClientWindowKey(clientID string, windowBucket int64) string {
	return fmt.Sprintf("rl:c:%s:w:%d", clientID, windowBucket)
}

// ClientMonthKey is the per-client monthly counter key.
func ClientMonthKey(clientID, monthBucket string) string {
	return fmt.Sprintf("rl:c:%s:m:%s", clientID, monthBucket)
}

// GlobalWindowKey is the system-wide fixed-window counter key.
func GlobalWindowKey(windowBucket int64) string {
	return fmt.Sprintf("rl:g:w:%d", windowBucket)
}

// GlobalMonthKey is the system-wide monthly counter key.
func GlobalMonthKey(monthBucket string) string {
	return fmt.Sprintf("rl:g:m:%s", monthBucket)
}

// SubscriptionCacheKey is the cache key fronting the durable plan/client
// lookup for one client id.
func SubscriptionCacheKey(clientID string) string {
	return fmt.Sprintf("sub:cache:%s", clientID)
}

// ExpiredSentinel is the cache value meaning "resolved to no active plan".
const ExpiredSentinel = "EXPIRED"
