package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mindmed/mindmed-api/internal/models"
)

const (
	DefaultEmailTTL     = 10 * time.Minute
	DefaultDashboardTTL = 60 * time.Second
)

// Cache keeps short-lived lookups in Redis.
type Cache struct {
	rdb          *redis.Client
	emailTTL     time.Duration
	dashboardTTL time.Duration
}

func New(rdb *redis.Client, emailTTL, dashboardTTL time.Duration) *Cache {
	if emailTTL <= 0 {
		emailTTL = DefaultEmailTTL
	}
	if dashboardTTL <= 0 {
		dashboardTTL = DefaultDashboardTTL
	}
	return &Cache{rdb: rdb, emailTTL: emailTTL, dashboardTTL: dashboardTTL}
}

func emailKey(email string) string {
	return fmt.Sprintf("identity:email:%s", email)
}

func dashboardKey(userID string) string {
	return fmt.Sprintf("dashboard:%s", userID)
}

func (c *Cache) GetUserID(ctx context.Context, email string) (string, bool, error) {
	id, err := c.rdb.Get(ctx, emailKey(email)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read email cache: %w", err)
	}
	return id, true, nil
}

func (c *Cache) SetUserID(ctx context.Context, email, userID string) error {
	if err := c.rdb.Set(ctx, emailKey(email), userID, c.emailTTL).Err(); err != nil {
		return fmt.Errorf("failed to write email cache: %w", err)
	}
	return nil
}

func (c *Cache) GetDashboard(ctx context.Context, userID string) (models.DashboardResponse, bool, error) {
	raw, err := c.rdb.Get(ctx, dashboardKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.DashboardResponse{}, false, nil
	}
	if err != nil {
		return models.DashboardResponse{}, false, fmt.Errorf("failed to read dashboard cache: %w", err)
	}
	var dash models.DashboardResponse
	if err := json.Unmarshal(raw, &dash); err != nil {
		return models.DashboardResponse{}, false, fmt.Errorf("failed to decode dashboard cache: %w", err)
	}
	return dash, true, nil
}

func (c *Cache) SetDashboard(ctx context.Context, userID string, dash models.DashboardResponse) error {
	raw, err := json.Marshal(dash)
	if err != nil {
		return fmt.Errorf("failed to encode dashboard: %w", err)
	}
	if err := c.rdb.Set(ctx, dashboardKey(userID), raw, c.dashboardTTL).Err(); err != nil {
		return fmt.Errorf("failed to write dashboard cache: %w", err)
	}
	return nil
}

// InvalidateDashboard drops the cached dashboard of userID.
func (c *Cache) InvalidateDashboard(ctx context.Context, userID string) error {
	if err := c.rdb.Del(ctx, dashboardKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate dashboard cache: %w", err)
	}
	return nil
}
