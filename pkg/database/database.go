package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

type Clients struct {
	DB    *sqlx.DB
	Redis *redis.Client
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

func NewClients(ctx context.Context, dbURL string, redisOpts RedisOptions) (*Clients, error) {
	// Connect to PostgreSQL
	db, err := sqlx.ConnectContext(ctx, "postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     redisOpts.Addr,
		Password: redisOpts.Password,
		DB:       redisOpts.DB,
	})

	if err := redisClient.Ping(ctx).Err(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Clients{
		DB:    db,
		Redis: redisClient,
	}, nil
}

// Ping checks both backends, used by the health endpoint.
func (c *Clients) Ping(ctx context.Context) error {
	if err := c.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	if err := c.Redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis unreachable: %w", err)
	}
	return nil
}

func (c *Clients) Close() error {
	redisErr := c.Redis.Close()
	if err := c.DB.Close(); err != nil {
		return err
	}
	return redisErr
}

// Schema creates the enums, tables and indexes used by the store. Every
// statement is idempotent.
var Schema = []string{
	`DO $$ BEGIN
		CREATE TYPE plan_type AS ENUM ('starter', 'pro');
	EXCEPTION WHEN duplicate_object THEN NULL; END $$`,
	`DO $$ BEGIN
		CREATE TYPE subscription_status AS ENUM ('active', 'canceled', 'expired', 'pending');
	EXCEPTION WHEN duplicate_object THEN NULL; END $$`,
	`CREATE TABLE IF NOT EXISTS user_profiles (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id UUID NOT NULL UNIQUE,
		full_name TEXT NOT NULL DEFAULT '',
		crm TEXT,
		crm_uf TEXT,
		specialty TEXT,
		clinic_name TEXT,
		address TEXT,
		phone TEXT,
		email_public TEXT,
		logo_url TEXT,
		signature_image_url TEXT,
		stamp_image_url TEXT,
		prescription_footer_text TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS plan_subscriptions (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id UUID NOT NULL UNIQUE,
		plan plan_type NOT NULL,
		status subscription_status NOT NULL DEFAULT 'pending',
		quota_total INTEGER CHECK (quota_total IS NULL OR quota_total >= 0),
		quota_used INTEGER NOT NULL DEFAULT 0 CHECK (quota_used >= 0),
		renews_at TIMESTAMPTZ,
		canceled_at TIMESTAMPTZ,
		cakto_customer_id TEXT,
		cakto_subscription_id TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS billing_events (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		subscription_id UUID NOT NULL REFERENCES plan_subscriptions(id) ON DELETE CASCADE,
		event_type TEXT NOT NULL,
		event_data JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS prescriptions (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id UUID NOT NULL,
		patient_name TEXT NOT NULL,
		patient_age TEXT,
		medications JSONB NOT NULL DEFAULT '[]',
		observations TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS prescriptions_user_created_idx ON prescriptions (user_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS billing_events_subscription_created_idx ON billing_events (subscription_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS plan_subscriptions_renewal_idx ON plan_subscriptions (renews_at) WHERE status = 'active' AND plan = 'starter'`,
}

func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	slog.Info("✅ Database schema is ready!")
	return nil
}
