// Package api implements the admin CRUD surface and read-only visibility
// endpoints over plans, clients, and global rules (spec.md §6), plus
// health/readiness checks. Grounded on the teacher's internal/api/handler.go
// route registration and writeJSONResponse/writeErrorResponse conventions.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/arjunmehta/ratequota/internal/apikey"
	"github.com/arjunmehta/ratequota/internal/billing"
	"github.com/arjunmehta/ratequota/internal/catalog"
	"github.com/arjunmehta/ratequota/internal/counterstore"
	"github.com/arjunmehta/ratequota/internal/httpmw"
	"github.com/arjunmehta/ratequota/internal/logger"
	"github.com/arjunmehta/ratequota/internal/models"
	"github.com/arjunmehta/ratequota/internal/usage"
)

// Handler serves the admin and visibility routes.
type Handler struct {
	catalog     catalog.Store
	store       *counterstore.Store
	billing     *billing.Handler
	adminSecret string
	startTime   time.Time
}

// NewHandler builds the admin/visibility Handler. Catalog health doubles as
// the database health check: PostgresStore.Health pings the pool directly,
// MemoryStore.Health is a no-op when no database is configured.
func NewHandler(cat catalog.Store, store *counterstore.Store, billingHandler *billing.Handler, adminSecret string) *Handler {
	return &Handler{
		catalog:     cat,
		store:       store,
		billing:     billingHandler,
		adminSecret: adminSecret,
		startTime:   time.Now(),
	}
}

// RegisterRoutes mounts every route this package serves onto r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.healthz)
	r.Get("/readyz", h.readyz)

	r.Route("/api", func(r chi.Router) {
		r.Post("/billing/webhook", h.billing.Webhook)

		r.Get("/plans", h.listPlans)
		r.Get("/clients", h.listClients)
		r.Get("/limits", h.listLimits)

		r.Group(func(r chi.Router) {
			r.Use(httpmw.AdminSecret(h.adminSecret))
			r.Post("/plans", h.createPlan)
			r.Post("/clients", h.createClient)
			r.Post("/limits", h.createLimit)
			r.Get("/admin/usage", h.adminUsage)
		})
	})
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
	})
}

func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checks := map[string]string{"catalog": "ok", "counter_store": "ok"}
	status := http.StatusOK

	if err := h.catalog.Health(ctx); err != nil {
		checks["catalog"] = "error: " + err.Error()
		status = http.StatusServiceUnavailable
	}
	if h.store.Unavailable() {
		checks["counter_store"] = "error: breaker open"
		status = http.StatusServiceUnavailable
	}

	overall := "ready"
	if status != http.StatusOK {
		overall = "not ready"
	}
	writeJSON(w, status, map[string]any{
		"status":    overall,
		"timestamp": time.Now().UTC(),
		"checks":    checks,
	})
}

func (h *Handler) listPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.catalog.Plans(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "failed to list plans")
		return
	}
	writeJSON(w, http.StatusOK, plans)
}

func (h *Handler) listClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.catalog.ClientsWithPlans(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "failed to list clients")
		return
	}
	writeJSON(w, http.StatusOK, clients)
}

func (h *Handler) listLimits(w http.ResponseWriter, r *http.Request) {
	rules, err := h.catalog.GlobalRules(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "failed to list global rules")
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

func (h *Handler) adminUsage(w http.ResponseWriter, r *http.Request) {
	snap, err := usage.Snapshot(r.Context(), h.catalog, h.store)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "failed to read usage")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"clients": snap})
}

type createPlanRequest struct {
	Name          string     `json:"name"`
	MonthlyLimit  int64      `json:"monthly_limit"`
	WindowLimit   int64      `json:"window_limit"`
	WindowSeconds int64      `json:"window_seconds"`
	ExpiresAt     *time.Time `json:"expires_at"`
}

func (h *Handler) createPlan(w http.ResponseWriter, r *http.Request) {
	var req createPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.MonthlyLimit <= 0 {
		writeError(w, r, http.StatusBadRequest, "name and a positive monthly_limit are required")
		return
	}

	plan := &models.SubscriptionPlan{
		ID:            uuid.New().String(),
		Name:          req.Name,
		MonthlyLimit:  req.MonthlyLimit,
		WindowLimit:   req.WindowLimit,
		WindowSeconds: req.WindowSeconds,
		Active:        true,
		ExpiresAt:     req.ExpiresAt,
		CreatedAt:     time.Now().UTC(),
	}
	if err := h.catalog.CreatePlan(r.Context(), plan); err != nil {
		logger.WithContext(r.Context()).Error("create plan failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, "failed to create plan")
		return
	}
	writeJSON(w, http.StatusCreated, plan)
}

type createClientRequest struct {
	Name   string `json:"name"`
	PlanID string `json:"plan_id"`
}

// createClientResponse carries the generated client row plus the one-time
// plaintext API key and its lookup prefix; the raw key is never retrievable
// again after this response, and models.Client itself never serializes
// either (KeyPrefix is tagged json:"-" there to keep it out of the read
// surface's client listing).
type createClientResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	PlanID    string    `json:"plan_id"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	KeyPrefix string    `json:"key_prefix"`
	APIKey    string    `json:"api_key"`
}

func (h *Handler) createClient(w http.ResponseWriter, r *http.Request) {
	var req createClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.PlanID == "" {
		writeError(w, r, http.StatusBadRequest, "name and plan_id are required")
		return
	}

	plan, err := h.catalog.Plan(r.Context(), req.PlanID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "failed to look up plan")
		return
	}
	if plan == nil {
		writeError(w, r, http.StatusBadRequest, "unknown plan_id")
		return
	}

	generated, err := apikey.Generate()
	if err != nil {
		logger.WithContext(r.Context()).Error("api key generation failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, "failed to generate api key")
		return
	}

	client := &models.Client{
		ID:        uuid.New().String(),
		Name:      req.Name,
		KeyPrefix: generated.Prefix,
		KeyHash:   generated.Hash,
		PlanID:    req.PlanID,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.catalog.CreateClient(r.Context(), client); err != nil {
		logger.WithContext(r.Context()).Error("create client failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, "failed to create client")
		return
	}

	writeJSON(w, http.StatusCreated, createClientResponse{
		ID:        client.ID,
		Name:      client.Name,
		PlanID:    client.PlanID,
		Active:    client.Active,
		CreatedAt: client.CreatedAt,
		KeyPrefix: client.KeyPrefix,
		APIKey:    generated.RawKey,
	})
}

type createLimitRequest struct {
	LimitValue          int64 `json:"limit_value"`
	GlobalWindowSeconds int64 `json:"global_window_seconds"`
}

func (h *Handler) createLimit(w http.ResponseWriter, r *http.Request) {
	var req createLimitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.LimitValue <= 0 {
		writeError(w, r, http.StatusBadRequest, "a positive limit_value is required")
		return
	}

	rule := &models.RateLimitRule{
		ID:                  uuid.New().String(),
		Kind:                models.KindGlobal,
		LimitValue:          req.LimitValue,
		GlobalWindowSeconds: req.GlobalWindowSeconds,
		Active:              true,
		CreatedAt:           time.Now().UTC(),
	}
	if err := h.catalog.CreateGlobalRule(r.Context(), rule); err != nil {
		logger.WithContext(r.Context()).Error("create global rule failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, "failed to create global rule")
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

type errorResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Status    int       `json:"status"`
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Path      string    `json:"path"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, status, errorResponse{
		Timestamp: time.Now().UTC(),
		Status:    status,
		Error:     http.StatusText(status),
		Message:   message,
		Path:      r.URL.Path,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
