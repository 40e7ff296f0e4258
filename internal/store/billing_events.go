package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx/types"

	"github.com/mindmed/mindmed-api/internal/models"
)

func (s *Store) AppendBillingEvent(ctx context.Context, subscriptionID, eventType string, data types.JSONText) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO billing_events (subscription_id, event_type, event_data) VALUES ($1, $2, $3)",
		subscriptionID, eventType, data,
	)
	if err != nil {
		return fmt.Errorf("failed to append billing event: %w", err)
	}
	return nil
}

// ListBillingEvents returns the newest events of a subscription first.
func (s *Store) ListBillingEvents(ctx context.Context, subscriptionID string, limit int) ([]models.BillingEvent, error) {
	events := []models.BillingEvent{}
	err := s.db.SelectContext(ctx, &events,
		`SELECT id, subscription_id, event_type, event_data, created_at
		FROM billing_events WHERE subscription_id = $1 ORDER BY created_at DESC LIMIT $2`,
		subscriptionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list billing events: %w", err)
	}
	return events, nil
}
