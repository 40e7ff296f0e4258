package billing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mindmed/mindmed-api/internal/identity"
	"github.com/mindmed/mindmed-api/internal/models"
	"github.com/mindmed/mindmed-api/internal/plans"
	"github.com/mindmed/mindmed-api/internal/store"
)

type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) FindUserIDByEmail(ctx context.Context, email string) (string, error) {
	args := m.Called(ctx, email)
	return args.String(0), args.Error(1)
}

type MockStore struct {
	mock.Mock
}

func (m *MockStore) UpsertSubscription(ctx context.Context, sub models.Subscription) (string, error) {
	args := m.Called(ctx, sub)
	return args.String(0), args.Error(1)
}

func (m *MockStore) CancelSubscription(ctx context.Context, userID string, at time.Time) (models.Subscription, error) {
	args := m.Called(ctx, userID, at)
	return args.Get(0).(models.Subscription), args.Error(1)
}

func (m *MockStore) AppendBillingEvent(ctx context.Context, subscriptionID, eventType string, data types.JSONText) error {
	args := m.Called(ctx, subscriptionID, eventType, data)
	return args.Error(0)
}

type fakePublisher struct {
	events []models.Event
}

func (f *fakePublisher) Publish(_ context.Context, event models.Event) error {
	f.events = append(f.events, event)
	return nil
}

type fakeCache struct {
	invalidated []string
}

func (f *fakeCache) InvalidateDashboard(_ context.Context, userID string) error {
	f.invalidated = append(f.invalidated, userID)
	return nil
}

type fakeRecorder struct {
	outcomes []string
}

func (f *fakeRecorder) WebhookEvent(event, outcome string) {
	f.outcomes = append(f.outcomes, event+":"+outcome)
}

var fixedNow = time.Date(2026, time.October, 16, 12, 0, 0, 0, time.UTC)

type fixture struct {
	proc      *WebhookProcessor
	directory *MockDirectory
	store     *MockStore
	publisher *fakePublisher
	cache     *fakeCache
	recorder  *fakeRecorder
}

func newFixture() *fixture {
	f := &fixture{
		directory: &MockDirectory{},
		store:     &MockStore{},
		publisher: &fakePublisher{},
		cache:     &fakeCache{},
		recorder:  &fakeRecorder{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.proc = NewWebhookProcessor(f.directory, f.store, plans.Default(), f.publisher, f.cache, f.recorder, logger)
	f.proc.now = func() time.Time { return fixedNow }
	return f
}

func (f *fixture) assertNoWrites(t *testing.T) {
	t.Helper()
	f.store.AssertNotCalled(t, "UpsertSubscription", mock.Anything, mock.Anything)
	f.store.AssertNotCalled(t, "CancelSubscription", mock.Anything, mock.Anything, mock.Anything)
	f.store.AssertNotCalled(t, "AppendBillingEvent", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, f.cache.invalidated)
}

const createdStarter = `{
	"event": "subscription_created",
	"data": {
		"id": "ord_1",
		"subscription_id": "sub_123",
		"customer": {"email": "joao@example.com", "id": "cus_9"},
		"product_url": "https://pay.cakto.com.br/3bsu2vi_607441",
		"next_billing_date": "2026-11-16T12:00:00Z"
	}
}`

func TestProcessSubscriptionCreatedStarter(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	renews := time.Date(2026, 11, 16, 12, 0, 0, 0, time.UTC)

	f.directory.On("FindUserIDByEmail", ctx, "joao@example.com").Return("user-1", nil)
	f.store.On("UpsertSubscription", ctx, mock.MatchedBy(func(sub models.Subscription) bool {
		return sub.UserID == "user-1" &&
			sub.Plan == models.PlanStarter &&
			sub.QuotaTotal != nil && *sub.QuotaTotal == 10 &&
			sub.ProviderSubscriptionID == "sub_123" &&
			sub.ProviderCustomerID == "cus_9" &&
			sub.RenewsAt != nil && sub.RenewsAt.Equal(renews)
	})).Return("row-1", nil)
	f.store.On("AppendBillingEvent", ctx, "row-1", "subscription_created", mock.MatchedBy(func(data types.JSONText) bool {
		return assert.ObjectsAreEqual("sub_123", jsonField(data, "subscription_id"))
	})).Return(nil)

	out, err := f.proc.Process(ctx, []byte(createdStarter))
	require.NoError(t, err)
	assert.Equal(t, "row-1", out.SubscriptionID)
	assert.Equal(t, models.PlanStarter, out.Plan)
	assert.Equal(t, "Webhook processed", out.Message)

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, models.EventSubscriptionActivated, f.publisher.events[0].Type)
	assert.Equal(t, "joao@example.com", f.publisher.events[0].Email)
	assert.Equal(t, []string{"subscription_created:processed"}, f.recorder.outcomes)
	assert.Equal(t, []string{"user-1"}, f.cache.invalidated)

	f.directory.AssertExpectations(t)
	f.store.AssertExpectations(t)
}

func TestProcessPaymentConfirmedPro(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	body := `{"event":"payment_confirmed","data":{"id":"pay_1","email":"ana@example.com","customer_id":"cus_1",
		"checkout_url":"https://pay.cakto.com.br/u95r4cv_607505","renews_at":1794830400}}`

	f.directory.On("FindUserIDByEmail", ctx, "ana@example.com").Return("user-2", nil)
	f.store.On("UpsertSubscription", ctx, mock.MatchedBy(func(sub models.Subscription) bool {
		return sub.Plan == models.PlanPro && sub.QuotaTotal == nil &&
			sub.ProviderSubscriptionID == "pay_1" && sub.ProviderCustomerID == "cus_1" &&
			sub.RenewsAt != nil && sub.RenewsAt.Equal(time.Unix(1794830400, 0))
	})).Return("row-2", nil)
	f.store.On("AppendBillingEvent", ctx, "row-2", "payment_confirmed", mock.Anything).Return(nil)

	out, err := f.proc.Process(ctx, []byte(body))
	require.NoError(t, err)
	assert.Equal(t, models.PlanPro, out.Plan)
	f.store.AssertExpectations(t)
}

func TestProcessUnknownProductFallsBackToStarter(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	body := `{"event":"subscription_created","data":{"email":"ana@example.com","product_url":"https://pay.cakto.com.br/zzz"}}`

	f.directory.On("FindUserIDByEmail", ctx, "ana@example.com").Return("user-2", nil)
	f.store.On("UpsertSubscription", ctx, mock.MatchedBy(func(sub models.Subscription) bool {
		return sub.Plan == models.PlanStarter && *sub.QuotaTotal == 10 && sub.RenewsAt == nil
	})).Return("row-2", nil)
	f.store.On("AppendBillingEvent", ctx, "row-2", "subscription_created", mock.Anything).Return(nil)

	_, err := f.proc.Process(ctx, []byte(body))
	require.NoError(t, err)
	f.store.AssertExpectations(t)
}

func TestProcessReplayUpsertsAgain(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.directory.On("FindUserIDByEmail", ctx, "joao@example.com").Return("user-1", nil)
	f.store.On("UpsertSubscription", ctx, mock.Anything).Return("row-1", nil).Twice()
	f.store.On("AppendBillingEvent", ctx, "row-1", "subscription_created", mock.Anything).Return(nil).Twice()

	for i := 0; i < 2; i++ {
		_, err := f.proc.Process(ctx, []byte(createdStarter))
		require.NoError(t, err)
	}
	f.store.AssertNumberOfCalls(t, "AppendBillingEvent", 2)
	f.store.AssertExpectations(t)
}

func TestProcessMissingEmail(t *testing.T) {
	f := newFixture()

	_, err := f.proc.Process(context.Background(), []byte(`{"event":"subscription_created","data":{"customer":{}}}`))
	assert.ErrorIs(t, err, ErrMalformedPayload)
	f.directory.AssertNotCalled(t, "FindUserIDByEmail", mock.Anything, mock.Anything)
	f.assertNoWrites(t)
}

func TestProcessInvalidJSON(t *testing.T) {
	f := newFixture()

	_, err := f.proc.Process(context.Background(), []byte(`not json`))
	assert.ErrorIs(t, err, ErrMalformedPayload)
	f.assertNoWrites(t)
}

func TestProcessUnknownUser(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.directory.On("FindUserIDByEmail", ctx, "joao@example.com").Return("", identity.ErrUserNotFound)

	_, err := f.proc.Process(ctx, []byte(createdStarter))
	assert.ErrorIs(t, err, ErrUserNotFound)
	f.assertNoWrites(t)
	assert.Equal(t, []string{"subscription_created:user_not_found"}, f.recorder.outcomes)
}

func TestProcessDirectoryFailure(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.directory.On("FindUserIDByEmail", ctx, "joao@example.com").Return("", errors.New("gotrue down"))

	_, err := f.proc.Process(ctx, []byte(createdStarter))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrUserNotFound)
	f.assertNoWrites(t)
}

func TestProcessCancel(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	body := `{"event":"subscription_canceled","data":{"customer":{"email":"joao@example.com"},"reason":"user"}}`

	f.directory.On("FindUserIDByEmail", ctx, "joao@example.com").Return("user-1", nil)
	f.store.On("CancelSubscription", ctx, "user-1", fixedNow).
		Return(models.Subscription{ID: "row-1", Plan: models.PlanPro, Status: models.StatusCanceled, CanceledAt: &fixedNow}, nil)
	f.store.On("AppendBillingEvent", ctx, "row-1", "subscription_canceled", mock.Anything).Return(nil)

	out, err := f.proc.Process(ctx, []byte(body))
	require.NoError(t, err)
	assert.Equal(t, "row-1", out.SubscriptionID)
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, models.EventSubscriptionCanceled, f.publisher.events[0].Type)
	assert.Equal(t, models.PlanPro, f.publisher.events[0].Plan)
	assert.Equal(t, []string{"user-1"}, f.cache.invalidated)
	f.store.AssertExpectations(t)
}

func TestProcessCancelWithoutSubscription(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	body := `{"event":"subscription_canceled","data":{"email":"joao@example.com"}}`

	f.directory.On("FindUserIDByEmail", ctx, "joao@example.com").Return("user-1", nil)
	f.store.On("CancelSubscription", ctx, "user-1", fixedNow).Return(models.Subscription{}, store.ErrNotFound)

	out, err := f.proc.Process(ctx, []byte(body))
	require.NoError(t, err)
	assert.Equal(t, "No subscription to cancel", out.Message)
	f.store.AssertNotCalled(t, "AppendBillingEvent", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, f.publisher.events)
}

func TestProcessUnhandledEvent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.directory.On("FindUserIDByEmail", ctx, "joao@example.com").Return("user-1", nil)

	_, err := f.proc.Process(ctx, []byte(`{"event":"refund_requested","data":{"email":"joao@example.com"}}`))
	require.NoError(t, err)
	f.assertNoWrites(t)
	assert.Equal(t, []string{"refund_requested:ignored"}, f.recorder.outcomes)
}

func TestProcessStoreFailure(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.directory.On("FindUserIDByEmail", ctx, "joao@example.com").Return("user-1", nil)
	f.store.On("UpsertSubscription", ctx, mock.Anything).Return("", errors.New("connection refused"))

	_, err := f.proc.Process(ctx, []byte(createdStarter))
	assert.ErrorContains(t, err, "connection refused")
	f.store.AssertNotCalled(t, "AppendBillingEvent", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, f.publisher.events)
	assert.Empty(t, f.cache.invalidated)
}

func TestParseTime(t *testing.T) {
	cases := map[string]time.Time{
		`"2026-11-16T12:00:00Z"`:      time.Date(2026, 11, 16, 12, 0, 0, 0, time.UTC),
		`"2026-11-16T09:00:00-03:00"`: time.Date(2026, 11, 16, 12, 0, 0, 0, time.UTC),
		`"2026-11-16 12:00:00"`:       time.Date(2026, 11, 16, 12, 0, 0, 0, time.UTC),
		`"2026-11-16"`:                time.Date(2026, 11, 16, 0, 0, 0, 0, time.UTC),
		`1794830400`:                  time.Unix(1794830400, 0).UTC(),
		`1794830400000`:               time.Unix(1794830400, 0).UTC(),
		`"1794830400"`:                time.Unix(1794830400, 0).UTC(),
	}
	for raw, want := range cases {
		got, ok := parseTime(parseJSON(raw))
		require.True(t, ok, raw)
		assert.True(t, want.Equal(got), "%s: got %s", raw, got)
	}

	_, ok := parseTime(parseJSON(`"next month"`))
	assert.False(t, ok)
}
