package identity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/supabase-community/gotrue-go/types"
)

type fakeAuthClient struct {
	users     []types.User
	listCalls int
	listErr   error
	created   []types.AdminCreateUserRequest
	signInErr error
	token     string
}

func (f *fakeAuthClient) AdminListUsers() (*types.AdminListUsersResponse, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return &types.AdminListUsersResponse{Users: f.users}, nil
}

func (f *fakeAuthClient) AdminCreateUser(req types.AdminCreateUserRequest) (*types.AdminCreateUserResponse, error) {
	f.created = append(f.created, req)
	res := &types.AdminCreateUserResponse{}
	res.ID = uuid.MustParse("7b0d6a8e-3c1f-4f43-9a57-0e1f1a2b3c4d")
	res.Email = req.Email
	return res, nil
}

func (f *fakeAuthClient) SignInWithEmailPassword(email, password string) (*types.TokenResponse, error) {
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	res := &types.TokenResponse{}
	res.AccessToken = f.token
	return res, nil
}

type mapCache map[string]string

func (m mapCache) GetUserID(_ context.Context, email string) (string, bool, error) {
	id, ok := m[email]
	return id, ok, nil
}

func (m mapCache) SetUserID(_ context.Context, email, userID string) error {
	m[email] = userID
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFindUserIDByEmail(t *testing.T) {
	id := uuid.New()
	client := &fakeAuthClient{users: []types.User{
		{ID: uuid.New(), Email: "other@example.com"},
		{ID: id, Email: "Joao@Example.com"},
	}}
	cache := mapCache{}
	dir := NewGoTrueDirectory(client, cache, testLogger())

	got, err := dir.FindUserIDByEmail(context.Background(), " joao@example.com ")
	require.NoError(t, err)
	assert.Equal(t, id.String(), got)
	assert.Equal(t, id.String(), cache["joao@example.com"])

	// second lookup is served from the cache
	got, err = dir.FindUserIDByEmail(context.Background(), "JOAO@example.com")
	require.NoError(t, err)
	assert.Equal(t, id.String(), got)
	assert.Equal(t, 1, client.listCalls)
}

func TestFindUserIDByEmailNotFound(t *testing.T) {
	client := &fakeAuthClient{users: []types.User{{ID: uuid.New(), Email: "other@example.com"}}}
	dir := NewGoTrueDirectory(client, mapCache{}, testLogger())

	_, err := dir.FindUserIDByEmail(context.Background(), "ghost@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)

	client.listErr = errors.New("timeout")
	_, err = dir.FindUserIDByEmail(context.Background(), "ghost@example.com")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrUserNotFound)
}

func TestCreateUser(t *testing.T) {
	client := &fakeAuthClient{}
	cache := mapCache{}
	dir := NewGoTrueDirectory(client, cache, testLogger())

	user, err := dir.CreateUser(context.Background(), "Admin@MindMed.com", "s3cret!", "Dr. Admin")
	require.NoError(t, err)
	assert.Equal(t, "7b0d6a8e-3c1f-4f43-9a57-0e1f1a2b3c4d", user.ID)

	require.Len(t, client.created, 1)
	req := client.created[0]
	assert.Equal(t, "admin@mindmed.com", req.Email)
	assert.True(t, req.EmailConfirm)
	require.NotNil(t, req.Password)
	assert.Equal(t, "s3cret!", *req.Password)
	assert.Equal(t, "Dr. Admin", req.UserMetadata["full_name"])
	assert.Equal(t, user.ID, cache["admin@mindmed.com"])
}

func TestSignIn(t *testing.T) {
	client := &fakeAuthClient{token: "access-token"}
	dir := NewGoTrueDirectory(client, nil, testLogger())

	token, err := dir.SignIn(context.Background(), "joao@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "access-token", token)

	client.signInErr = errors.New(`response status code 400: {"error":"invalid_grant","error_description":"Invalid login credentials"}`)
	_, err = dir.SignIn(context.Background(), "joao@example.com", "bad")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	client.signInErr = errors.New("dial tcp: connection refused")
	_, err = dir.SignIn(context.Background(), "joao@example.com", "pw")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
}

func TestExtractProjectRef(t *testing.T) {
	assert.Equal(t, "akrqbuajqkirdekonpzy", extractProjectRef("https://akrqbuajqkirdekonpzy.supabase.co"))
	assert.Equal(t, "akrqbuajqkirdekonpzy", extractProjectRef("akrqbuajqkirdekonpzy.supabase.co"))
}

func TestNewClientRequiresSettings(t *testing.T) {
	_, err := NewClient("", "key")
	assert.Error(t, err)
	_, err = NewClient("://bad", "key")
	assert.Error(t, err)

	client, err := NewClient("http://localhost:54321", "service-key")
	require.NoError(t, err)
	assert.NotNil(t, client)
}
