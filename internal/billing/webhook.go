package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/tidwall/gjson"

	"github.com/mindmed/mindmed-api/internal/identity"
	"github.com/mindmed/mindmed-api/internal/models"
	"github.com/mindmed/mindmed-api/internal/plans"
	"github.com/mindmed/mindmed-api/internal/store"
)

// Cakto event names.
const (
	EventSubscriptionCreated  = "subscription_created"
	EventPaymentConfirmed     = "payment_confirmed"
	EventSubscriptionCanceled = "subscription_canceled"
)

var (
	ErrMalformedPayload = errors.New("malformed payload")
	ErrUserNotFound     = errors.New("user not found")
)

type Directory interface {
	FindUserIDByEmail(ctx context.Context, email string) (string, error)
}

type Store interface {
	UpsertSubscription(ctx context.Context, sub models.Subscription) (string, error)
	CancelSubscription(ctx context.Context, userID string, at time.Time) (models.Subscription, error)
	AppendBillingEvent(ctx context.Context, subscriptionID, eventType string, data types.JSONText) error
}

type DashboardCache interface {
	InvalidateDashboard(ctx context.Context, userID string) error
}

type Publisher interface {
	Publish(ctx context.Context, event models.Event) error
}

// Recorder counts processed webhook events by outcome.
type Recorder interface {
	WebhookEvent(event, outcome string)
}

// Outcome describes what a notification changed.
type Outcome struct {
	Event          string
	UserID         string
	Plan           models.Plan
	SubscriptionID string
	Message        string
}

// WebhookProcessor applies payment provider notifications to the
// subscription ledger and the billing event log.
type WebhookProcessor struct {
	directory Directory
	store     Store
	catalog   *plans.Catalog
	publisher Publisher
	cache     DashboardCache
	recorder  Recorder
	logger    *slog.Logger
	now       func() time.Time
}

func NewWebhookProcessor(dir Directory, st Store, catalog *plans.Catalog, pub Publisher, cache DashboardCache, rec Recorder, logger *slog.Logger) *WebhookProcessor {
	return &WebhookProcessor{
		directory: dir,
		store:     st,
		catalog:   catalog,
		publisher: pub,
		cache:     cache,
		recorder:  rec,
		logger:    logger.With("component", "billing"),
		now:       time.Now,
	}
}

// Process handles one raw notification body. Malformed payloads and
// unknown users are rejected before anything is written.
func (p *WebhookProcessor) Process(ctx context.Context, body []byte) (Outcome, error) {
	if !gjson.ValidBytes(body) {
		p.record("unknown", "malformed")
		return Outcome{}, fmt.Errorf("%w: body is not valid JSON", ErrMalformedPayload)
	}

	payload := gjson.ParseBytes(body)
	event := payload.Get("event").String()
	data := payload.Get("data")
	p.logger.Info("Cakto webhook received", "event", event)

	email := firstString(data, "customer.email", "email")
	if email == "" {
		p.logger.Error("No email found in webhook payload", "event", event)
		p.record(event, "malformed")
		return Outcome{}, fmt.Errorf("%w: email not found in payload", ErrMalformedPayload)
	}

	userID, err := p.directory.FindUserIDByEmail(ctx, email)
	if errors.Is(err, identity.ErrUserNotFound) {
		p.logger.Error("User not found for email", "email", email)
		p.record(event, "user_not_found")
		return Outcome{}, ErrUserNotFound
	}
	if err != nil {
		p.record(event, "error")
		return Outcome{}, fmt.Errorf("failed to look up user: %w", err)
	}

	out := Outcome{Event: event, UserID: userID, Message: "Webhook processed"}
	switch event {
	case EventSubscriptionCreated, EventPaymentConfirmed:
		err = p.activate(ctx, event, email, data, &out)
	case EventSubscriptionCanceled:
		err = p.cancel(ctx, event, email, data, &out)
	default:
		p.logger.Info("Unhandled event type", "event", event)
		p.record(event, "ignored")
		return out, nil
	}
	if err != nil {
		p.record(event, "error")
		return Outcome{}, err
	}
	p.record(event, "processed")
	return out, nil
}

func (p *WebhookProcessor) activate(ctx context.Context, event, email string, data gjson.Result, out *Outcome) error {
	plan, matched := p.catalog.Resolve(
		data.Get("product_id").String(),
		data.Get("product.id").String(),
		data.Get("offer.id").String(),
		data.Get("product_url").String(),
		data.Get("checkout_url").String(),
	)
	if !matched {
		p.logger.Warn("Unknown product, falling back to default plan", "user_id", out.UserID, "plan", plan)
	}

	sub := models.Subscription{
		UserID:                 out.UserID,
		Plan:                   plan,
		Status:                 models.StatusActive,
		QuotaTotal:             p.catalog.Quota(plan),
		ProviderSubscriptionID: firstString(data, "subscription_id", "id"),
		ProviderCustomerID:     firstString(data, "customer_id", "customer.id"),
	}
	if raw := firstResult(data, "next_billing_date", "renews_at"); raw.Exists() {
		if t, ok := parseTime(raw); ok {
			sub.RenewsAt = &t
		} else {
			p.logger.Warn("Ignoring unparseable renewal date", "value", raw.String())
		}
	}

	id, err := p.store.UpsertSubscription(ctx, sub)
	if err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	if err := p.store.AppendBillingEvent(ctx, id, event, rawData(data)); err != nil {
		return err
	}

	out.Plan = plan
	out.SubscriptionID = id
	p.logger.Info("Subscription activated", "event", event, "user_id", out.UserID, "plan", plan)
	p.invalidate(ctx, out.UserID)
	p.publish(ctx, models.EventSubscriptionActivated, email, *out)
	return nil
}

func (p *WebhookProcessor) cancel(ctx context.Context, event, email string, data gjson.Result, out *Outcome) error {
	sub, err := p.store.CancelSubscription(ctx, out.UserID, p.now())
	if errors.Is(err, store.ErrNotFound) {
		p.logger.Info("No subscription to cancel", "user_id", out.UserID)
		out.Message = "No subscription to cancel"
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to cancel subscription: %w", err)
	}
	if err := p.store.AppendBillingEvent(ctx, sub.ID, event, rawData(data)); err != nil {
		return err
	}

	out.Plan = sub.Plan
	out.SubscriptionID = sub.ID
	p.logger.Info("Subscription canceled", "user_id", out.UserID)
	p.invalidate(ctx, out.UserID)
	p.publish(ctx, models.EventSubscriptionCanceled, email, *out)
	return nil
}

func (p *WebhookProcessor) invalidate(ctx context.Context, userID string) {
	if p.cache == nil {
		return
	}
	if err := p.cache.InvalidateDashboard(ctx, userID); err != nil {
		p.logger.Warn("Failed to invalidate dashboard cache", "user_id", userID, "error", err)
	}
}

func (p *WebhookProcessor) publish(ctx context.Context, eventType, email string, out Outcome) {
	if p.publisher == nil {
		return
	}
	err := p.publisher.Publish(ctx, models.Event{
		Type:       eventType,
		UserID:     out.UserID,
		Email:      email,
		Plan:       out.Plan,
		OccurredAt: p.now(),
	})
	if err != nil {
		p.logger.Warn("Failed to publish subscription event", "type", eventType, "error", err)
	}
}

func (p *WebhookProcessor) record(event, outcome string) {
	if p.recorder != nil {
		p.recorder.WebhookEvent(event, outcome)
	}
}

func rawData(data gjson.Result) types.JSONText {
	if !data.Exists() {
		return nil
	}
	return types.JSONText(data.Raw)
}

func firstResult(data gjson.Result, paths ...string) gjson.Result {
	for _, path := range paths {
		if r := data.Get(path); r.Exists() && r.Type != gjson.Null && r.String() != "" {
			return r
		}
	}
	return gjson.Result{}
}

func firstString(data gjson.Result, paths ...string) string {
	return strings.TrimSpace(firstResult(data, paths...).String())
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTime accepts RFC 3339 and common date layouts as well as unix
// timestamps in seconds or milliseconds.
func parseTime(r gjson.Result) (time.Time, bool) {
	if r.Type == gjson.Number {
		return fromUnix(r.Int()), true
	}
	s := strings.TrimSpace(r.String())
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return fromUnix(n), true
	}
	return time.Time{}, false
}

func fromUnix(n int64) time.Time {
	if n > 1e12 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}
