package identity

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/supabase-community/gotrue-go"
)

// extractProjectRef extracts just the project reference ID from a Supabase URL
// From: akrqbuajqkirdekonpzy.supabase.co
// To: akrqbuajqkirdekonpzy
func extractProjectRef(supabaseURL string) string {
	host := strings.TrimPrefix(supabaseURL, "https://")
	host = strings.TrimPrefix(host, "http://")
	return strings.Split(host, ".")[0]
}

// NewClient builds a GoTrue client for supabaseURL. Hosted projects are
// addressed by project reference, anything else (local stacks, custom
// domains) through {url}/auth/v1.
func NewClient(supabaseURL, serviceKey string) (gotrue.Client, error) {
	if supabaseURL == "" || serviceKey == "" {
		return nil, fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY must be set")
	}

	u, err := url.Parse(supabaseURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid Supabase URL %q", supabaseURL)
	}

	var client gotrue.Client
	if strings.HasSuffix(u.Hostname(), ".supabase.co") {
		projectRef := extractProjectRef(u.Host)
		slog.Info("Initializing Supabase auth client", "project_ref", projectRef)
		client = gotrue.New(projectRef, serviceKey)
	} else {
		authURL := strings.TrimSuffix(supabaseURL, "/") + "/auth/v1"
		slog.Info("Initializing Supabase auth client", "url", authURL)
		client = gotrue.New("", serviceKey).WithCustomGoTrueURL(authURL)
	}

	// Service role key doubles as the bearer token for admin endpoints
	return client.WithToken(serviceKey), nil
}

// Ping checks that the auth service answers.
func Ping(client gotrue.Client) error {
	if _, err := client.GetSettings(); err != nil {
		return fmt.Errorf("failed to connect to Supabase: %w", err)
	}
	return nil
}
