package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mindmed/mindmed-api/internal/models"
)

const profileColumns = `id, user_id, full_name,
	COALESCE(crm, '') AS crm, COALESCE(crm_uf, '') AS crm_uf,
	COALESCE(specialty, '') AS specialty, COALESCE(clinic_name, '') AS clinic_name,
	COALESCE(address, '') AS address, COALESCE(phone, '') AS phone,
	COALESCE(email_public, '') AS email_public, COALESCE(logo_url, '') AS logo_url,
	COALESCE(signature_image_url, '') AS signature_image_url,
	COALESCE(stamp_image_url, '') AS stamp_image_url,
	COALESCE(prescription_footer_text, '') AS prescription_footer_text,
	created_at, updated_at`

// image columns writable through SetProfileImage
var imageColumns = map[models.ImageKind]string{
	models.ImageLogo:      "logo_url",
	models.ImageSignature: "signature_image_url",
	models.ImageStamp:     "stamp_image_url",
}

func (s *Store) GetProfile(ctx context.Context, userID string) (models.Profile, error) {
	var p models.Profile
	err := s.db.GetContext(ctx, &p, "SELECT "+profileColumns+" FROM user_profiles WHERE user_id = $1", userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Profile{}, ErrNotFound
	}
	if err != nil {
		return models.Profile{}, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

// UpsertProfile writes every profile field keyed by user_id. Empty optional
// fields are stored as NULL.
func (s *Store) UpsertProfile(ctx context.Context, p models.Profile) (models.Profile, error) {
	query := `INSERT INTO user_profiles (user_id, full_name, crm, crm_uf, specialty, clinic_name,
		address, phone, email_public, logo_url, signature_image_url, stamp_image_url, prescription_footer_text)
	VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''),
		NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''), NULLIF($11, ''), NULLIF($12, ''), NULLIF($13, ''))
	ON CONFLICT (user_id) DO UPDATE SET
		full_name = EXCLUDED.full_name,
		crm = EXCLUDED.crm,
		crm_uf = EXCLUDED.crm_uf,
		specialty = EXCLUDED.specialty,
		clinic_name = EXCLUDED.clinic_name,
		address = EXCLUDED.address,
		phone = EXCLUDED.phone,
		email_public = EXCLUDED.email_public,
		logo_url = EXCLUDED.logo_url,
		signature_image_url = EXCLUDED.signature_image_url,
		stamp_image_url = EXCLUDED.stamp_image_url,
		prescription_footer_text = EXCLUDED.prescription_footer_text,
		updated_at = now()
	RETURNING ` + profileColumns

	var saved models.Profile
	err := s.db.GetContext(ctx, &saved, query,
		p.UserID, p.FullName, p.CRM, p.CRMUF, p.Specialty, p.ClinicName,
		p.Address, p.Phone, p.EmailPublic, p.LogoURL, p.SignatureImageURL, p.StampImageURL,
		p.PrescriptionFooterText,
	)
	if err != nil {
		return models.Profile{}, fmt.Errorf("failed to upsert profile: %w", err)
	}
	return saved, nil
}

// CreateMinimalProfile inserts a profile holding only the name, leaving an
// existing profile untouched.
func (s *Store) CreateMinimalProfile(ctx context.Context, userID, fullName string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO user_profiles (user_id, full_name) VALUES ($1, $2) ON CONFLICT (user_id) DO NOTHING",
		userID, fullName,
	)
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

func (s *Store) SetProfileImage(ctx context.Context, userID string, kind models.ImageKind, url string) error {
	column, ok := imageColumns[kind]
	if !ok {
		return fmt.Errorf("unknown image kind %q", kind)
	}
	query := fmt.Sprintf(`INSERT INTO user_profiles (user_id, %[1]s) VALUES ($1, $2)
	ON CONFLICT (user_id) DO UPDATE SET %[1]s = EXCLUDED.%[1]s, updated_at = now()`, column)
	if _, err := s.db.ExecContext(ctx, query, userID, url); err != nil {
		return fmt.Errorf("failed to set %s: %w", column, err)
	}
	return nil
}
