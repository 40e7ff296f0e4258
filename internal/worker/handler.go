package worker

import (
	"context"
	"log/slog"

	"github.com/mindmed/mindmed-api/internal/models"
	"github.com/mindmed/mindmed-api/internal/notify"
	"github.com/mindmed/mindmed-api/internal/plans"
)

type DashboardCache interface {
	InvalidateDashboard(ctx context.Context, userID string) error
}

// EventHandler turns domain events into notifications and drops cached
// dashboards the event made stale.
type EventHandler struct {
	sender    notify.Sender
	cache     DashboardCache
	catalog   *plans.Catalog
	threshold int
	logger    *slog.Logger
}

// NewEventHandler creates a handler that warns starter users once their
// remaining quota is at or below threshold.
func NewEventHandler(sender notify.Sender, cache DashboardCache, catalog *plans.Catalog, threshold int, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		sender:    sender,
		cache:     cache,
		catalog:   catalog,
		threshold: threshold,
		logger:    logger.With("component", "worker"),
	}
}

func (h *EventHandler) Dispatch(ctx context.Context, event models.Event) error {
	switch event.Type {
	case models.EventSubscriptionActivated:
		h.invalidate(ctx, event.UserID)
		return h.notify(ctx, event, "Sua assinatura MindMed está ativa", notify.TemplateSubscriptionActivated)
	case models.EventSubscriptionCanceled:
		h.invalidate(ctx, event.UserID)
		return h.notify(ctx, event, "Sua assinatura MindMed foi cancelada", notify.TemplateSubscriptionCanceled)
	case models.EventPrescriptionGenerated:
		return h.prescriptionGenerated(ctx, event)
	}
	h.logger.Warn("Ignoring unknown event type", "type", event.Type)
	return nil
}

func (h *EventHandler) prescriptionGenerated(ctx context.Context, event models.Event) error {
	h.invalidate(ctx, event.UserID)

	if event.Plan != models.PlanStarter || event.Remaining == nil || *event.Remaining > h.threshold {
		return nil
	}
	return h.notify(ctx, event, "Suas receitas MindMed estão acabando", notify.TemplateQuotaLow)
}

func (h *EventHandler) invalidate(ctx context.Context, userID string) {
	if h.cache == nil || userID == "" {
		return
	}
	if err := h.cache.InvalidateDashboard(ctx, userID); err != nil {
		h.logger.Warn("Failed to invalidate dashboard cache", "user_id", userID, "error", err)
	}
}

func (h *EventHandler) notify(ctx context.Context, event models.Event, subject, template string) error {
	if event.Email == "" {
		h.logger.Warn("Event has no email, skipping notification", "type", event.Type, "user_id", event.UserID)
		return nil
	}
	return h.sender.Send(ctx, notify.Message{
		To:       event.Email,
		Subject:  subject,
		Template: template,
		Data:     h.notice(event),
	})
}

func (h *EventHandler) notice(event models.Event) notify.Notice {
	n := notify.Notice{Email: event.Email, PlanName: h.planName(event.Plan)}
	if quota := h.catalog.Quota(event.Plan); quota != nil {
		n.Quota = *quota
	} else {
		n.Unlimited = true
	}
	if event.Remaining != nil {
		n.Remaining = *event.Remaining
	}
	return n
}

func (h *EventHandler) planName(plan models.Plan) string {
	for _, info := range h.catalog.List() {
		if info.Plan == plan {
			return info.Name
		}
	}
	return string(plan)
}
