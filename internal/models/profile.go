package models

import (
	"time"
)

// Profile holds a practitioner's identity and branding data used on generated prescriptions.
type Profile struct {
	ID                     string    `json:"id" db:"id"`
	UserID                 string    `json:"user_id" db:"user_id"` // UUID that matches auth.users.id
	FullName               string    `json:"full_name" db:"full_name"`
	CRM                    string    `json:"crm" db:"crm"`       // medical license number
	CRMUF                  string    `json:"crm_uf" db:"crm_uf"` // issuing state
	Specialty              string    `json:"specialty" db:"specialty"`
	ClinicName             string    `json:"clinic_name" db:"clinic_name"`
	Address                string    `json:"address" db:"address"`
	Phone                  string    `json:"phone" db:"phone"`
	EmailPublic            string    `json:"email_public" db:"email_public"`
	LogoURL                string    `json:"logo_url" db:"logo_url"`
	SignatureImageURL      string    `json:"signature_image_url" db:"signature_image_url"`
	StampImageURL          string    `json:"stamp_image_url" db:"stamp_image_url"`
	PrescriptionFooterText string    `json:"prescription_footer_text" db:"prescription_footer_text"`
	CreatedAt              time.Time `json:"created_at" db:"created_at"`
	UpdatedAt              time.Time `json:"updated_at" db:"updated_at"`
}

// ImageKind identifies one of the three branding images attached to a profile.
type ImageKind string

const (
	ImageLogo      ImageKind = "logo"
	ImageSignature ImageKind = "signature"
	ImageStamp     ImageKind = "stamp"
)

// Bucket returns the storage bucket the image kind is uploaded to.
func (k ImageKind) Bucket() string {
	switch k {
	case ImageLogo:
		return "medical-logos"
	case ImageSignature:
		return "medical-signatures"
	case ImageStamp:
		return "medical-stamps"
	}
	return ""
}

// Valid reports whether k is a known image kind.
func (k ImageKind) Valid() bool {
	return k.Bucket() != ""
}

// ProfileRequest is the full-upsert payload sent by the profile editor.
type ProfileRequest struct {
	FullName               string `json:"full_name" validate:"required,max=200"`
	CRM                    string `json:"crm" validate:"omitempty,max=20"`
	CRMUF                  string `json:"crm_uf" validate:"omitempty,len=2"`
	Specialty              string `json:"specialty" validate:"max=120"`
	ClinicName             string `json:"clinic_name" validate:"max=200"`
	Address                string `json:"address" validate:"max=300"`
	Phone                  string `json:"phone" validate:"max=40"`
	EmailPublic            string `json:"email_public" validate:"omitempty,email"`
	LogoURL                string `json:"logo_url" validate:"omitempty,url"`
	SignatureImageURL      string `json:"signature_image_url" validate:"omitempty,url"`
	StampImageURL          string `json:"stamp_image_url" validate:"omitempty,url"`
	PrescriptionFooterText string `json:"prescription_footer_text" validate:"max=300"`
}

// ToProfile converts the request into a Profile owned by userID.
func (r ProfileRequest) ToProfile(userID string) Profile {
	return Profile{
		UserID:                 userID,
		FullName:               r.FullName,
		CRM:                    r.CRM,
		CRMUF:                  r.CRMUF,
		Specialty:              r.Specialty,
		ClinicName:             r.ClinicName,
		Address:                r.Address,
		Phone:                  r.Phone,
		EmailPublic:            r.EmailPublic,
		LogoURL:                r.LogoURL,
		SignatureImageURL:      r.SignatureImageURL,
		StampImageURL:          r.StampImageURL,
		PrescriptionFooterText: r.PrescriptionFooterText,
	}
}

// ProfileResponse wraps a profile for API responses
type ProfileResponse struct {
	Profile Profile `json:"profile"`
	Success bool    `json:"success"`
}
