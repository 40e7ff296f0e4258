package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mindmed/mindmed-api/internal/models"
)

const subscriptionColumns = `id, user_id, plan, status, quota_total, quota_used, renews_at, canceled_at,
	COALESCE(cakto_customer_id, '') AS cakto_customer_id,
	COALESCE(cakto_subscription_id, '') AS cakto_subscription_id,
	created_at, updated_at`

func (s *Store) getSubscription(ctx context.Context, query string, args ...interface{}) (models.Subscription, error) {
	var sub models.Subscription
	err := s.db.GetContext(ctx, &sub, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Subscription{}, ErrNotFound
	}
	if err != nil {
		return models.Subscription{}, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub, nil
}

// GetActiveSubscription returns the user's subscription only when it is active.
func (s *Store) GetActiveSubscription(ctx context.Context, userID string) (models.Subscription, error) {
	return s.getSubscription(ctx,
		"SELECT "+subscriptionColumns+" FROM plan_subscriptions WHERE user_id = $1 AND status = 'active'",
		userID,
	)
}

// GetSubscription returns the user's subscription regardless of status.
func (s *Store) GetSubscription(ctx context.Context, userID string) (models.Subscription, error) {
	return s.getSubscription(ctx,
		"SELECT "+subscriptionColumns+" FROM plan_subscriptions WHERE user_id = $1",
		userID,
	)
}

// UpsertSubscription activates the user's subscription with a fresh quota and
// returns the row id. Replaying the same notification leaves one row.
func (s *Store) UpsertSubscription(ctx context.Context, sub models.Subscription) (string, error) {
	query := `INSERT INTO plan_subscriptions (user_id, plan, status, quota_total, quota_used,
		cakto_subscription_id, cakto_customer_id, renews_at)
	VALUES ($1, $2, 'active', $3, 0, NULLIF($4, ''), NULLIF($5, ''), $6)
	ON CONFLICT (user_id) DO UPDATE SET
		plan = EXCLUDED.plan,
		status = 'active',
		quota_total = EXCLUDED.quota_total,
		quota_used = 0,
		cakto_subscription_id = EXCLUDED.cakto_subscription_id,
		cakto_customer_id = EXCLUDED.cakto_customer_id,
		renews_at = EXCLUDED.renews_at,
		canceled_at = NULL,
		updated_at = now()
	RETURNING id`

	var id string
	err := s.db.QueryRowxContext(ctx, query,
		sub.UserID, string(sub.Plan), sub.QuotaTotal,
		sub.ProviderSubscriptionID, sub.ProviderCustomerID, sub.RenewsAt,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return id, nil
}

// CancelSubscription marks the user's subscription canceled.
func (s *Store) CancelSubscription(ctx context.Context, userID string, at time.Time) (models.Subscription, error) {
	return s.getSubscription(ctx,
		`UPDATE plan_subscriptions SET status = 'canceled', canceled_at = $2, updated_at = now()
		WHERE user_id = $1 RETURNING `+subscriptionColumns,
		userID, at,
	)
}

// CreateSubscription inserts a subscription as given. Used by admin setup.
func (s *Store) CreateSubscription(ctx context.Context, sub models.Subscription) (string, error) {
	var id string
	err := s.db.QueryRowxContext(ctx,
		`INSERT INTO plan_subscriptions (user_id, plan, status, quota_total, quota_used, renews_at)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		sub.UserID, string(sub.Plan), string(sub.Status), sub.QuotaTotal, sub.QuotaUsed, sub.RenewsAt,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to create subscription: %w", err)
	}
	return id, nil
}

// RenewDueQuotas resets the usage of active starter subscriptions whose
// renewal date has passed and moves the date one month forward.
func (s *Store) RenewDueQuotas(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE plan_subscriptions
		SET quota_used = 0, renews_at = renews_at + INTERVAL '1 month', updated_at = now()
		WHERE status = 'active' AND plan = 'starter' AND renews_at IS NOT NULL AND renews_at <= $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to renew quotas: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count renewed quotas: %w", err)
	}
	return n, nil
}
