// Package billing turns Stripe subscription lifecycle events into catalog
// plan-assignment updates and subscription-cache invalidation (spec.md §6's
// admin-surface obligation), trimmed to that narrow duty: no checkout or
// portal session creation and no metered-usage reporting, since spec.md's
// admin surface never exposes those.
package billing

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/arjunmehta/ratequota/config"
	"github.com/arjunmehta/ratequota/internal/catalog"
	"github.com/arjunmehta/ratequota/internal/logger"
)

// Invalidator is the cache-busting surface the webhook needs; satisfied by
// *subscription.Resolver.
type Invalidator interface {
	Invalidate(ctx context.Context, clientID string) error
}

// Handler serves the Stripe webhook endpoint.
type Handler struct {
	webhookSecret string
	catalog       catalog.Store
	invalidator   Invalidator
}

// NewHandler builds a webhook Handler from billing config plus the catalog
// and cache-invalidator collaborators it updates on subscription events.
func NewHandler(cfg config.BillingConfig, cat catalog.Store, invalidator Invalidator) *Handler {
	stripe.Key = cfg.StripeSecretKey
	return &Handler{webhookSecret: cfg.StripeWebhookSecret, catalog: cat, invalidator: invalidator}
}

// Webhook handles POST /api/billing/webhook.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	sig := r.Header.Get("Stripe-Signature")
	event, err := webhook.ConstructEvent(payload, sig, h.webhookSecret)
	if err != nil {
		logger.WithContext(r.Context()).Warn("stripe webhook signature check failed", "error", err)
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated":
		h.handleSubscriptionUpserted(r.Context(), event)
	case "customer.subscription.deleted":
		h.handleSubscriptionDeleted(r.Context(), event)
	}

	w.WriteHeader(http.StatusOK)
}

// handleSubscriptionUpserted reassigns the client named in the
// subscription's metadata to the plan also named there, then invalidates
// the cache so the next admission decision sees it immediately.
func (h *Handler) handleSubscriptionUpserted(ctx context.Context, event stripe.Event) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		logger.WithContext(ctx).Error("stripe webhook: decode subscription failed", "error", err)
		return
	}
	clientID := sub.Metadata["client_id"]
	planID := sub.Metadata["plan_id"]
	if clientID == "" || planID == "" {
		logger.WithContext(ctx).Warn("stripe webhook: subscription missing client_id/plan_id metadata", "event_id", event.ID)
		return
	}
	if err := h.catalog.UpdateClientPlan(ctx, clientID, planID); err != nil {
		logger.WithContext(ctx).Error("stripe webhook: update client plan failed", "error", err, "client_id", clientID)
		return
	}
	if err := h.invalidator.Invalidate(ctx, clientID); err != nil {
		logger.WithContext(ctx).Warn("stripe webhook: cache invalidation failed", "error", err, "client_id", clientID)
	}
}

// handleSubscriptionDeleted invalidates the cache only: the ended
// subscription's plan row is expected to be deactivated out-of-band by the
// admin (or already carries an expires_at in the past), so the next
// resolution naturally falls through to the no-active-subscription path
// once the cache entry is gone.
func (h *Handler) handleSubscriptionDeleted(ctx context.Context, event stripe.Event) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		logger.WithContext(ctx).Error("stripe webhook: decode subscription failed", "error", err)
		return
	}
	clientID := sub.Metadata["client_id"]
	if clientID == "" {
		return
	}
	if err := h.invalidator.Invalidate(ctx, clientID); err != nil {
		logger.WithContext(ctx).Warn("stripe webhook: cache invalidation failed", "error", err, "client_id", clientID)
	}
}
