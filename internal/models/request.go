package models

// LoginRequest represents the login credentials
type LoginRequest struct {
	// User's email address
	Email string `json:"email" validate:"required,email" example:"user@example.com"`
	// User's password
	Password string `json:"password" validate:"required" example:"password123"`
}

// LoginResponse represents the login response
type LoginResponse struct {
	// Supabase access token for authentication
	Token     string `json:"token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."`
	TokenType string `json:"type" example:"Bearer"`
}

// SignupRequest creates an account and its minimal profile.
type SignupRequest struct {
	FullName string `json:"full_name" validate:"required,max=200"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// AdminSetupRequest bootstraps an administrator account with a pro plan.
type AdminSetupRequest struct {
	FullName string `json:"full_name" validate:"required,max=200"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	CRM      string `json:"crm" validate:"max=20"`
	CRMUF    string `json:"crm_uf" validate:"omitempty,len=2"`
}

// PlanInfo describes a plan on the public catalog endpoint.
type PlanInfo struct {
	Plan  Plan   `json:"plan"`
	Name  string `json:"name"`
	Quota *int   `json:"quota"`
}
