//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/arjunmehta/ratequota/config"
	"github.com/arjunmehta/ratequota/internal/admission"
	"github.com/arjunmehta/ratequota/internal/apikey"
	"github.com/arjunmehta/ratequota/internal/catalog"
	"github.com/arjunmehta/ratequota/internal/counterstore"
	"github.com/arjunmehta/ratequota/internal/database"
	"github.com/arjunmehta/ratequota/internal/models"
	"github.com/arjunmehta/ratequota/internal/subscription"
	"github.com/arjunmehta/ratequota/internal/throttle"
)

func startPostgres(ctx context.Context, t *testing.T) string {
	t.Helper()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_DB": "ratequota", "POSTGRES_USER": "ratequota", "POSTGRES_PASSWORD": "password"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = pg.Terminate(context.Background()) })

	host, _ := pg.Host(ctx)
	port, _ := pg.MappedPort(ctx, "5432")
	return "postgres://ratequota:password@" + host + ":" + port.Port() + "/ratequota?sslmode=disable"
}

func startRedis(ctx context.Context, t *testing.T) string {
	t.Helper()
	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}
	rc, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Fatalf("start redis container: %v", err)
	}
	t.Cleanup(func() { _ = rc.Terminate(context.Background()) })

	host, _ := rc.Host(ctx)
	port, _ := rc.MappedPort(ctx, "6379")
	return host + ":" + port.Port()
}

// TestAdmission_EndToEndAgainstRealPostgresAndRedis exercises the full
// admission pipeline (catalog lookup, subscription resolution, atomic
// evaluator, throttle classification) against real Postgres and Redis
// containers instead of the in-memory catalog and miniredis the unit
// tests use.
func TestAdmission_EndToEndAgainstRealPostgresAndRedis(t *testing.T) {
	if !containersAvailable() {
		t.Skip("container runtime not available; skipping container-based integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pgDSN := startPostgres(ctx, t)
	redisAddr := startRedis(ctx, t)

	db, err := database.New(ctx, config.DatabaseConfig{
		URL: pgDSN, MaxConns: 5, MinConns: 1,
		MaxConnLifetime: time.Hour, MaxConnIdleTime: 30 * time.Minute,
	})
	if err != nil {
		t.Fatalf("database.New: %v", err)
	}
	defer db.Close(ctx)

	if err := catalog.EnsureSchema(ctx, db); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	cat := catalog.New(db)

	store, err := counterstore.New(ctx, config.RedisConfig{URL: redisAddr})
	if err != nil {
		t.Fatalf("counterstore.New: %v", err)
	}
	defer store.Close()

	plan := &models.SubscriptionPlan{
		ID: "itest-plan", Name: "integration", MonthlyLimit: 2,
		Active: true, CreatedAt: time.Now().UTC(),
	}
	if err := cat.CreatePlan(ctx, plan); err != nil {
		t.Fatalf("create plan: %v", err)
	}

	generated, err := apikey.Generate()
	if err != nil {
		t.Fatalf("generate api key: %v", err)
	}
	client := &models.Client{
		ID: "itest-client", Name: "integration client", KeyPrefix: generated.Prefix,
		KeyHash: generated.Hash, PlanID: plan.ID, Active: true, CreatedAt: time.Now().UTC(),
	}
	if err := cat.CreateClient(ctx, client); err != nil {
		t.Fatalf("create client: %v", err)
	}

	resolver := subscription.New(store, cat)
	filter := admission.New(cat, resolver, store, throttle.Thresholds{
		Mode: "hard", Soft: 0.8, Warn: 0.8, Full: 1.0, Hard: 1.2,
	})

	var allowed, denied int
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := filter.Middleware(next)

	// plan.MonthlyLimit is 2: the first two requests admit, the third is denied.
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/notify/sms", bytes.NewReader([]byte(`{}`)))
		req.Header.Set("X-API-Key", generated.RawKey)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code == http.StatusOK {
			allowed++
		} else {
			denied++
			var body map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode denial body: %v", err)
			}
		}
	}

	if allowed != 2 {
		t.Errorf("expected 2 admitted requests under a monthly limit of 2, got %d", allowed)
	}
	if denied != 1 {
		t.Errorf("expected 1 denied request once the ceiling is reached, got %d", denied)
	}
}
