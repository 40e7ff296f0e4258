package models

import "time"

type Plan string

const (
	PlanStarter Plan = "starter"
	PlanPro     Plan = "pro"
)

// Valid reports whether p is a known plan tier.
func (p Plan) Valid() bool {
	return p == PlanStarter || p == PlanPro
}

type SubscriptionStatus string

const (
	StatusActive   SubscriptionStatus = "active"
	StatusCanceled SubscriptionStatus = "canceled"
	StatusExpired  SubscriptionStatus = "expired"
	StatusPending  SubscriptionStatus = "pending"
)

// Subscription is a user's plan and quota ledger. At most one row exists per user.
type Subscription struct {
	ID                     string             `json:"id" db:"id"`
	UserID                 string             `json:"user_id" db:"user_id"`
	Plan                   Plan               `json:"plan" db:"plan"`
	Status                 SubscriptionStatus `json:"status" db:"status"`
	QuotaTotal             *int               `json:"quota_total" db:"quota_total"` // nil means unlimited
	QuotaUsed              int                `json:"quota_used" db:"quota_used"`
	RenewsAt               *time.Time         `json:"renews_at,omitempty" db:"renews_at"`
	CanceledAt             *time.Time         `json:"canceled_at,omitempty" db:"canceled_at"`
	ProviderCustomerID     string             `json:"provider_customer_id,omitempty" db:"cakto_customer_id"`
	ProviderSubscriptionID string             `json:"provider_subscription_id,omitempty" db:"cakto_subscription_id"`
	CreatedAt              time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt              time.Time          `json:"updated_at" db:"updated_at"`
}

// Unlimited reports whether the subscription has no generation cap.
func (s Subscription) Unlimited() bool {
	return s.QuotaTotal == nil
}

// Remaining returns the number of generations left, or nil when unlimited.
// It never returns a negative count.
func (s Subscription) Remaining() *int {
	if s.QuotaTotal == nil {
		return nil
	}
	left := *s.QuotaTotal - s.QuotaUsed
	if left < 0 {
		left = 0
	}
	return &left
}

// HasQuota reports whether one more generation is allowed.
func (s Subscription) HasQuota() bool {
	if s.Unlimited() {
		return true
	}
	return s.QuotaUsed < *s.QuotaTotal
}

// IntPtr is a small helper for building optional quota values.
func IntPtr(v int) *int {
	return &v
}
