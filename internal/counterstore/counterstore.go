// Package counterstore wraps the Redis client the admission pipeline shares
// for counters, the subscription cache, and the atomic evaluator script.
package counterstore

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/arjunmehta/ratequota/config"
)

// Store is a thin wrapper over a go-redis client plus an outage breaker.
// Callers that need the raw client for a scripted call (internal/evaluator)
// use Client() directly; callers that need Get/Set/Scan use the methods
// here so the breaker sees every round trip.
type Store struct {
	client  *goredis.Client
	breaker *outageBreaker
}

// New dials Redis per cfg. It pings once so misconfiguration fails fast at
// startup rather than on the first request.
func New(ctx context.Context, cfg config.RedisConfig) (*Store, error) {
	opts := &goredis.Options{
		Addr:     cfg.URL,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("redis url is required")
	}
	client := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &Store{
		client:  client,
		breaker: newOutageBreaker(),
	}, nil
}

// NewFromClient builds a Store over an already-constructed client, used by
// tests that dial miniredis directly.
func NewFromClient(client *goredis.Client) *Store {
	return &Store{client: client, breaker: newOutageBreaker()}
}

// Client returns the underlying go-redis client for scripted calls.
func (s *Store) Client() *goredis.Client {
	return s.client
}

// Unavailable reports whether the breaker currently considers Redis down,
// without issuing a round trip. The evaluator consults this before running
// its script so a known outage fails fast.
func (s *Store) Unavailable() bool {
	return s.breaker.tripped()
}

// RecordResult feeds a Redis call's outcome to the breaker. Evaluator and
// subscription callers invoke this after every round trip.
func (s *Store) RecordResult(err error) {
	s.breaker.record(err)
}

// Get returns a cached string value, "" and no error on miss.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	s.RecordResult(errIfNotNil(err))
	if err == goredis.Nil {
		return "", nil
	}
	return val, err
}

// SetWithTTL writes a string value with the given TTL.
func (s *Store) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	err := s.client.Set(ctx, key, value, ttl).Err()
	s.RecordResult(err)
	return err
}

// Del deletes zero or more keys, ignoring a missing key.
func (s *Store) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	err := s.client.Del(ctx, keys...).Err()
	s.RecordResult(err)
	return err
}

// ScanKeys returns every key matching pattern, paging through SCAN cursors.
// Used by cache invalidation (`rl:c:<clientId>:*`).
func (s *Store) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	var (
		cursor uint64
		keys   []string
	)
	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			s.RecordResult(err)
			return nil, err
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	s.RecordResult(nil)
	return keys, nil
}

// Close releases the underlying client's connections.
func (s *Store) Close() error {
	return s.client.Close()
}

func errIfNotNil(err error) error {
	if err == goredis.Nil {
		return nil
	}
	return err
}

// outageBreaker trips to "unavailable" once consecutive Redis errors reach
// a burst threshold, short-circuiting subsequent calls to a fast 503 path
// instead of paying a fresh dial timeout on every request during an outage.
// While open it still lets one probe call through per recovery interval so
// it can heal once Redis recovers, instead of staying open forever.
type outageBreaker struct {
	probe     *rate.Limiter
	threshold int
	failures  int
}

const (
	breakerFailureThreshold = 5
	breakerProbeInterval    = 10 * time.Second
)

func newOutageBreaker() *outageBreaker {
	return &outageBreaker{
		probe:     rate.NewLimiter(rate.Every(breakerProbeInterval), 1),
		threshold: breakerFailureThreshold,
	}
}

func (b *outageBreaker) record(err error) {
	if err == nil {
		b.failures = 0
		return
	}
	b.failures++
	if b.failures == b.threshold {
		// Tripping spends the probe token, so the next probe is only let
		// through once a full recovery interval has passed.
		b.probe.Allow()
	}
}

func (b *outageBreaker) tripped() bool {
	if b.failures < b.threshold {
		return false
	}
	return !b.probe.Allow()
}
