package bucket

import (
	"testing"
	"time"
)

func TestWindowBucket(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 47, 0, time.UTC)
	got := WindowBucket(now, 60)
	want := now.Truncate(time.Minute).Unix()
	if got != want {
		t.Errorf("WindowBucket() = %d, want %d", got, want)
	}
}

func TestWindowBucket_SameBucketWithinWindow(t *testing.T) {
	base := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	a := WindowBucket(base, 60)
	b := WindowBucket(base.Add(59*time.Second), 60)
	if a != b {
		t.Errorf("expected same bucket within window, got %d and %d", a, b)
	}
	c := WindowBucket(base.Add(60*time.Second), 60)
	if c == a {
		t.Errorf("expected different bucket across window boundary")
	}
}

func TestWindowTTL(t *testing.T) {
	if got := WindowTTL(60); got != 60*time.Second {
		t.Errorf("WindowTTL(60) = %v, want 60s", got)
	}
}

func TestMonthBucket(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	if got := MonthBucket(now); got != "202607" {
		t.Errorf("MonthBucket() = %s, want 202607", got)
	}
}

func TestMonthTTL(t *testing.T) {
	now := time.Date(2026, 7, 30, 23, 0, 0, 0, time.UTC)
	ttl := MonthTTL(now)
	wantStart := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	want := wantStart.Sub(now)
	if ttl != want {
		t.Errorf("MonthTTL() = %v, want %v", ttl, want)
	}
}

func TestMonthTTL_DecemberRollsToNextYear(t *testing.T) {
	now := time.Date(2026, 12, 31, 23, 59, 0, 0, time.UTC)
	ttl := MonthTTL(now)
	want := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC).Sub(now)
	if ttl != want {
		t.Errorf("MonthTTL() across year boundary = %v, want %v", ttl, want)
	}
}

func TestKeyNamespaces(t *testing.T) {
	if got := ClientWindowKey("cl1", 1000); got != "rl:c:cl1:w:1000" {
		t.Errorf("ClientWindowKey() = %s", got)
	}
	if got := ClientMonthKey("cl1", "202607"); got != "rl:c:cl1:m:202607" {
		t.Errorf("ClientMonthKey() = %s", got)
	}
	if got := GlobalWindowKey(1000); got != "rl:g:w:1000" {
		t.Errorf("GlobalWindowKey() = %s", got)
	}
	if got := GlobalMonthKey("202607"); got != "rl:g:m:202607" {
		t.Errorf("GlobalMonthKey() = %s", got)
	}
	if got := SubscriptionCacheKey("cl1"); got != "sub:cache:cl1" {
		t.Errorf("SubscriptionCacheKey() = %s", got)
	}
}
