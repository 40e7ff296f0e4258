package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/supabase-community/gotrue-go/types"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type User struct {
	ID    string
	Email string
}

// Directory resolves and manages accounts in the identity provider.
type Directory interface {
	FindUserIDByEmail(ctx context.Context, email string) (string, error)
	CreateUser(ctx context.Context, email, password, fullName string) (User, error)
	SignIn(ctx context.Context, email, password string) (string, error)
}

// EmailCache remembers email to user id lookups.
type EmailCache interface {
	GetUserID(ctx context.Context, email string) (string, bool, error)
	SetUserID(ctx context.Context, email, userID string) error
}

// authClient is the subset of gotrue.Client used here.
type authClient interface {
	AdminListUsers() (*types.AdminListUsersResponse, error)
	AdminCreateUser(req types.AdminCreateUserRequest) (*types.AdminCreateUserResponse, error)
	SignInWithEmailPassword(email, password string) (*types.TokenResponse, error)
}

// GoTrueDirectory talks to Supabase GoTrue with the service role key.
type GoTrueDirectory struct {
	client authClient
	cache  EmailCache
	logger *slog.Logger
}

func NewGoTrueDirectory(client authClient, cache EmailCache, logger *slog.Logger) *GoTrueDirectory {
	return &GoTrueDirectory{client: client, cache: cache, logger: logger.With("component", "identity")}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// FindUserIDByEmail scans the admin user list for email. Hits are cached.
func (d *GoTrueDirectory) FindUserIDByEmail(ctx context.Context, email string) (string, error) {
	email = normalizeEmail(email)
	if d.cache != nil {
		id, ok, err := d.cache.GetUserID(ctx, email)
		if err != nil {
			d.logger.Warn("Email cache lookup failed", "error", err)
		} else if ok {
			return id, nil
		}
	}

	res, err := d.client.AdminListUsers()
	if err != nil {
		return "", fmt.Errorf("failed to list users: %w", err)
	}

	for _, u := range res.Users {
		if normalizeEmail(u.Email) != email {
			continue
		}
		id := u.ID.String()
		if d.cache != nil {
			if err := d.cache.SetUserID(ctx, email, id); err != nil {
				d.logger.Warn("Failed to cache user id", "error", err)
			}
		}
		return id, nil
	}
	return "", ErrUserNotFound
}

// CreateUser creates a confirmed account with the full name in its metadata.
func (d *GoTrueDirectory) CreateUser(ctx context.Context, email, password, fullName string) (User, error) {
	res, err := d.client.AdminCreateUser(types.AdminCreateUserRequest{
		Email:        normalizeEmail(email),
		Password:     &password,
		EmailConfirm: true,
		UserMetadata: map[string]interface{}{"full_name": fullName},
	})
	if err != nil {
		return User{}, fmt.Errorf("failed to create user: %w", err)
	}

	user := User{ID: res.ID.String(), Email: res.Email}
	if d.cache != nil {
		if err := d.cache.SetUserID(ctx, normalizeEmail(user.Email), user.ID); err != nil {
			d.logger.Warn("Failed to cache user id", "error", err)
		}
	}
	d.logger.Info("User created", "user_id", user.ID)
	return user, nil
}

// SignIn exchanges credentials for an access token.
func (d *GoTrueDirectory) SignIn(ctx context.Context, email, password string) (string, error) {
	res, err := d.client.SignInWithEmailPassword(normalizeEmail(email), password)
	if err != nil {
		if isCredentialError(err) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("authentication failed: %w", err)
	}
	if res == nil || res.AccessToken == "" {
		return "", ErrInvalidCredentials
	}
	return res.AccessToken, nil
}

func isCredentialError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "invalid_grant") ||
		strings.Contains(msg, "Invalid login credentials") ||
		strings.Contains(msg, "status code 400")
}
