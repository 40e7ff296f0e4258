package models

import (
	"time"
)

// Medication is one line of a prescription. Only Name is required.
type Medication struct {
	Name      string `json:"name" validate:"max=200"`
	Dosage    string `json:"dosage" validate:"max=200"`
	Frequency string `json:"frequency" validate:"max=200"`
	Duration  string `json:"duration" validate:"max=200"`
}

// Prescription is a history row written after each successful generation.
// Medications are persisted as an ordered JSON array by the store.
type Prescription struct {
	ID           string       `json:"id" db:"id"`
	UserID       string       `json:"user_id" db:"user_id"`
	PatientName  string       `json:"patient_name" db:"patient_name"`
	PatientAge   string       `json:"patient_age" db:"patient_age"`
	Medications  []Medication `json:"medications" db:"-"`
	Observations string       `json:"observations" db:"observations"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
}

// PrescriptionRequest is the body of POST /api/prescriptions/generate.
type PrescriptionRequest struct {
	PatientName  string       `json:"patient_name" validate:"max=200"`
	PatientAge   string       `json:"patient_age" validate:"max=40"`
	Medications  []Medication `json:"medications" validate:"dive"`
	Observations string       `json:"observations"`
}

// PrescriptionResponse carries the base64 encoded PDF.
type PrescriptionResponse struct {
	PDF            string `json:"pdf"`
	PrescriptionID string `json:"prescription_id"`
	Remaining      *int   `json:"remaining_quota"`
}

type PrescriptionStats struct {
	Total     int `json:"total" db:"total"`
	ThisMonth int `json:"this_month" db:"this_month"`
}

// DashboardResponse aggregates the data shown on the dashboard.
type DashboardResponse struct {
	Prescriptions []Prescription    `json:"prescriptions"`
	Stats         PrescriptionStats `json:"stats"`
	Subscription  *Subscription     `json:"subscription"`
}
