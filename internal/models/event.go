package models

import "time"

const (
	EventPrescriptionGenerated = "prescription.generated"
	EventSubscriptionActivated = "subscription.activated"
	EventSubscriptionCanceled  = "subscription.canceled"
)

// Event is the envelope published to the event bus.
type Event struct {
	Type       string    `json:"type"`
	UserID     string    `json:"user_id"`
	Email      string    `json:"email,omitempty"`
	Plan       Plan      `json:"plan,omitempty"`
	Remaining  *int      `json:"remaining,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
