package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx/types"

	"github.com/mindmed/mindmed-api/internal/models"
)

const prescriptionColumns = `id, user_id, patient_name, COALESCE(patient_age, '') AS patient_age,
	medications, COALESCE(observations, '') AS observations, created_at`

// prescriptionRow carries the jsonb medications column as raw text.
type prescriptionRow struct {
	ID           string         `db:"id"`
	UserID       string         `db:"user_id"`
	PatientName  string         `db:"patient_name"`
	PatientAge   string         `db:"patient_age"`
	Medications  types.JSONText `db:"medications"`
	Observations string         `db:"observations"`
	CreatedAt    time.Time      `db:"created_at"`
}

func (r prescriptionRow) toModel() (models.Prescription, error) {
	meds := []models.Medication{}
	if len(r.Medications) == 0 {
		r.Medications = types.JSONText("[]")
	}
	if err := r.Medications.Unmarshal(&meds); err != nil {
		return models.Prescription{}, fmt.Errorf("invalid medications in prescription %s: %w", r.ID, err)
	}
	return models.Prescription{
		ID:           r.ID,
		UserID:       r.UserID,
		PatientName:  r.PatientName,
		PatientAge:   r.PatientAge,
		Medications:  meds,
		Observations: r.Observations,
		CreatedAt:    r.CreatedAt,
	}, nil
}

func medicationsJSON(meds []models.Medication) (types.JSONText, error) {
	if meds == nil {
		meds = []models.Medication{}
	}
	b, err := json.Marshal(meds)
	if err != nil {
		return nil, fmt.Errorf("failed to encode medications: %w", err)
	}
	return types.JSONText(b), nil
}

// RecordPrescription stores the history row and consumes one unit of quota
// in a single transaction. For capped plans the increment only succeeds
// while quota_used < quota_total. When it misses, the row is re-read: a
// subscription upgraded to an unlimited plan in the meantime still records,
// otherwise nothing is written and ErrQuotaExhausted is returned. It returns
// the stored row and the subscription as of the commit.
func (s *Store) RecordPrescription(ctx context.Context, rx models.Prescription, sub models.Subscription) (models.Prescription, models.Subscription, error) {
	meds, err := medicationsJSON(rx.Medications)
	if err != nil {
		return models.Prescription{}, models.Subscription{}, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Prescription{}, models.Subscription{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowxContext(ctx,
		`INSERT INTO prescriptions (user_id, patient_name, patient_age, medications, observations)
		VALUES ($1, $2, NULLIF($3, ''), $4, NULLIF($5, '')) RETURNING id, created_at`,
		rx.UserID, rx.PatientName, rx.PatientAge, meds, rx.Observations,
	).Scan(&rx.ID, &rx.CreatedAt)
	if err != nil {
		return models.Prescription{}, models.Subscription{}, fmt.Errorf("failed to insert prescription: %w", err)
	}

	if !sub.Unlimited() {
		err = tx.QueryRowxContext(ctx,
			`UPDATE plan_subscriptions SET quota_used = quota_used + 1, updated_at = now()
			WHERE id = $1 AND status = 'active' AND quota_total IS NOT NULL AND quota_used < quota_total
			RETURNING quota_used`,
			sub.ID,
		).Scan(&sub.QuotaUsed)
		if errors.Is(err, sql.ErrNoRows) {
			err = tx.GetContext(ctx, &sub,
				"SELECT "+subscriptionColumns+" FROM plan_subscriptions WHERE id = $1 AND status = 'active' AND quota_total IS NULL",
				sub.ID,
			)
			if errors.Is(err, sql.ErrNoRows) {
				return models.Prescription{}, models.Subscription{}, ErrQuotaExhausted
			}
		}
		if err != nil {
			return models.Prescription{}, models.Subscription{}, fmt.Errorf("failed to increment quota: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return models.Prescription{}, models.Subscription{}, fmt.Errorf("failed to commit prescription: %w", err)
	}
	return rx, sub, nil
}

// ListPrescriptions returns the user's newest prescriptions first.
func (s *Store) ListPrescriptions(ctx context.Context, userID string, limit int) ([]models.Prescription, error) {
	rows := []prescriptionRow{}
	err := s.db.SelectContext(ctx, &rows,
		"SELECT "+prescriptionColumns+" FROM prescriptions WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2",
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list prescriptions: %w", err)
	}

	list := make([]models.Prescription, 0, len(rows))
	for _, r := range rows {
		rx, err := r.toModel()
		if err != nil {
			return nil, err
		}
		list = append(list, rx)
	}
	return list, nil
}

// DeletePrescription removes a history row owned by userID.
func (s *Store) DeletePrescription(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM prescriptions WHERE id = $1 AND user_id = $2", id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete prescription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete prescription: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// PrescriptionStats counts all of the user's prescriptions and those
// created since monthStart.
func (s *Store) PrescriptionStats(ctx context.Context, userID string, monthStart time.Time) (models.PrescriptionStats, error) {
	var stats models.PrescriptionStats
	err := s.db.GetContext(ctx, &stats,
		`SELECT COUNT(*) AS total, COUNT(*) FILTER (WHERE created_at >= $2) AS this_month
		FROM prescriptions WHERE user_id = $1`,
		userID, monthStart,
	)
	if err != nil {
		return models.PrescriptionStats{}, fmt.Errorf("failed to count prescriptions: %w", err)
	}
	return stats, nil
}
