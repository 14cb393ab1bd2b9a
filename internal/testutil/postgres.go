//go:build integration

package testutil

import (
	"context"
	"testing"
	"time"

	pgmigrations "consultbook/internal/migrations/postgres"
	"consultbook/pkg/client"
	"consultbook/pkg/config"
	"consultbook/pkg/logger"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewPostgres opens TEST_POSTGRES_DSN, applies the migrations and empties
// the tables. The test is skipped when the variable is unset or the server
// does not answer.
func NewPostgres(t *testing.T) *config.Config {
	t.Helper()

	dsn := getEnv("TEST_POSTGRES_DSN", "")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Discard, TranslateError: true})
	if err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), ConnectionTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}

	log := logger.Discard()
	if err := pgmigrations.RunMigration(ctx, gdb, log); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	if err := gdb.WithContext(ctx).Exec("TRUNCATE reminders, bookings, slots, consultants").Error; err != nil {
		t.Fatalf("failed to truncate tables: %v", err)
	}

	// pool sized for the concurrent reserve checks
	sqlDB.SetMaxOpenConns(25)

	return &config.Config{
		Log:          log,
		Client:       &client.Client{Postgres: gdb},
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
}
