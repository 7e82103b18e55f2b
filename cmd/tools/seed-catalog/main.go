// Package main implements the seed-catalog CLI tool for preparing a
// LoveBirdz environment: it creates the database schema and populates the
// plan catalog with the baseline and paid tiers, including their
// provider-side products.
//
// Usage:
//
//	go run ./cmd/tools/seed-catalog
//	go run ./cmd/tools/seed-catalog --dry-run
//	go run ./cmd/tools/seed-catalog --skip-stripe
//
// The tool reads DATABASE_URL and STRIPE_SECRET_KEY from the environment
// (or a .env file). Seeding is idempotent: existing tables and plans are
// left untouched, so it is safe to re-run against a live environment. With
// --skip-stripe, plans are inserted with empty product IDs and flagged
// pending_sync so a later catalog update pushes them to the provider.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"lovebirdz/internal/config"
	"lovebirdz/internal/db"
	"lovebirdz/internal/external"
	"lovebirdz/internal/types"
)

// planSeed describes one catalog entry to ensure exists.
type planSeed struct {
	Name            string
	PriceMinorUnits int64
	Features        map[string]any
}

// seedPlans is the canonical catalog. The baseline plan must stay first so
// provisioning always finds it, and its name must match
// types.BaselinePlanName exactly.
var seedPlans = []planSeed{
	{Name: types.BaselinePlanName, PriceMinorUnits: 0, Features: map[string]any{types.FeatureSwipeLimit: 50}},
	{Name: types.PlanNameSilver, PriceMinorUnits: 999, Features: map[string]any{types.FeatureSwipeLimit: 200, "seeWhoLikesYou": true}},
	{Name: types.PlanNameGold, PriceMinorUnits: 3499, Features: map[string]any{types.FeatureSwipeLimit: 500, "seeWhoLikesYou": true, "profileBoosts": 1}},
	{Name: types.PlanNamePlatinum, PriceMinorUnits: 5999, Features: map[string]any{types.FeatureSwipeLimit: 1000, "seeWhoLikesYou": true, "profileBoosts": 4, "priorityLikes": true}},
}

// schemaStatements creates every table the engine reads or writes. All
// statements are idempotent.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS plans (
		id                TEXT PRIMARY KEY,
		name              TEXT NOT NULL UNIQUE,
		price_minor_units BIGINT NOT NULL DEFAULT 0,
		features          JSONB NOT NULL DEFAULT '{}',
		available         BOOLEAN NOT NULL DEFAULT TRUE,
		stripe_product_id TEXT NOT NULL DEFAULT '',
		stripe_price_id   TEXT NOT NULL DEFAULT '',
		pending_sync      BOOLEAN NOT NULL DEFAULT FALSE,
		pending_groups    TEXT[] NOT NULL DEFAULT '{}',
		version           BIGINT NOT NULL DEFAULT 1,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS preferences (
		id                 TEXT PRIMARY KEY,
		account_id         TEXT NOT NULL,
		gender             TEXT NOT NULL DEFAULT '',
		smoking            TEXT NOT NULL DEFAULT '',
		drinking           TEXT NOT NULL DEFAULT '',
		relationship_goals TEXT NOT NULL DEFAULT '',
		distance_km        INTEGER NOT NULL,
		age_min            INTEGER NOT NULL,
		age_max            INTEGER NOT NULL,
		updated_at         TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS accounts (
		id                   TEXT PRIMARY KEY,
		email                TEXT NOT NULL UNIQUE,
		phone                TEXT NOT NULL UNIQUE,
		name                 TEXT NOT NULL,
		gender               TEXT NOT NULL,
		password_hash        TEXT NOT NULL,
		plan_id              TEXT NOT NULL REFERENCES plans(id),
		swipe_limit_snapshot INTEGER NOT NULL DEFAULT 0,
		stripe_customer_id   TEXT,
		preference_id        TEXT NOT NULL REFERENCES preferences(id),
		last_active_at       TIMESTAMPTZ,
		created_at           TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS account_activity (
		account_id TEXT NOT NULL,
		year       INTEGER NOT NULL,
		month      INTEGER NOT NULL,
		likes      BIGINT NOT NULL DEFAULT 0,
		matches    BIGINT NOT NULL DEFAULT 0,
		swipes     BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (account_id, year, month)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_accounts_plan_id ON accounts (plan_id)`,
}

func main() {
	dryRun := flag.Bool("dry-run", false, "print planned actions without executing")
	skipStripe := flag.Bool("skip-stripe", false, "seed locally only; new plans are flagged pending_sync")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if err := run(logger, *dryRun, *skipStripe); err != nil {
		logger.Error("seed failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, dryRun, skipStripe bool) error {
	if dryRun {
		fmt.Printf("would create %d tables\n", len(schemaStatements)-1)
		for _, seed := range seedPlans {
			fmt.Printf("would ensure plan %q price=%d features=%v\n", seed.Name, seed.PriceMinorUnits, seed.Features)
		}
		return nil
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	if err := applySchema(ctx, pool); err != nil {
		return err
	}
	logger.Info("schema applied")

	var billing *external.StripeClient
	if !skipStripe {
		billing = external.NewStripeClient(
			&http.Client{Timeout: cfg.Billing.CallTimeout},
			external.StripeClientConfig{
				SecretKey:   cfg.Billing.StripeSecretKey.Unmask(),
				CallTimeout: cfg.Billing.CallTimeout,
				Logger:      logger,
			},
		)
	}

	for _, seed := range seedPlans {
		if err := ensurePlan(ctx, pool, billing, logger, seed); err != nil {
			return fmt.Errorf("seeding plan %q: %w", seed.Name, err)
		}
	}

	logger.Info("catalog seeded", "plans", len(seedPlans))
	return nil
}

func applySchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	return nil
}

// ensurePlan inserts the plan if no row with its name exists. When a billing
// client is available the provider product is created first so the local row
// is born in sync; otherwise the row carries pending_sync until the next
// catalog update pushes it.
func ensurePlan(ctx context.Context, pool *pgxpool.Pool, billing *external.StripeClient, logger *slog.Logger, seed planSeed) error {
	var exists bool
	err := pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM plans WHERE name = $1)`, seed.Name,
	).Scan(&exists)
	if err != nil {
		return err
	}
	if exists {
		logger.Info("plan already present, skipping", "plan", seed.Name)
		return nil
	}

	var productID string
	pendingSync := false
	pendingGroups := []string{}
	if billing != nil {
		productID, err = billing.CreateProduct(ctx, seed.Name, seed.Features, seed.PriceMinorUnits, true)
		if err != nil {
			return err
		}
	} else {
		pendingSync = true
		pendingGroups = []string{
			string(types.GroupProduct),
			string(types.GroupPrice),
			string(types.GroupAvailability),
		}
	}

	now := time.Now().UTC()
	_, err = pool.Exec(ctx,
		`INSERT INTO plans (id, name, price_minor_units, features, available,
		        stripe_product_id, stripe_price_id, pending_sync, pending_groups,
		        version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, TRUE, $5, '', $6, $7, 1, $8, $8)`,
		uuid.New().String(), seed.Name, seed.PriceMinorUnits, seed.Features,
		productID, pendingSync, pendingGroups, now,
	)
	if err != nil {
		return err
	}

	logger.Info("plan seeded",
		"plan", seed.Name,
		"price_minor_units", seed.PriceMinorUnits,
		"stripe_product_id", productID,
		"pending_sync", pendingSync,
	)
	return nil
}
