package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// BillingEvent is an append-only record of a processed payment notification.
type BillingEvent struct {
	ID             string         `json:"id" db:"id"`
	SubscriptionID string         `json:"subscription_id" db:"subscription_id"`
	EventType      string         `json:"event_type" db:"event_type"`
	EventData      types.JSONText `json:"event_data" db:"event_data"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
}

type BillingResponse struct {
	Subscription *Subscription  `json:"subscription"`
	Events       []BillingEvent `json:"events"`
}

// WebhookResponse is returned to the payment provider.
type WebhookResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
