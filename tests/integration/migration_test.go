//go:build integration

package integration_test

import (
	"context"
	"testing"

	"github.com/Strob0t/StockForge/internal/adapter/postgres"
)

// TestMigrationUpDown applies all migrations, rolls them all back, then re-applies.
// This verifies that every migration's Down section works correctly.
func TestMigrationUpDown(t *testing.T) {
	ctx := context.Background()
	const totalMigrations = 1

	if err := postgres.RunMigrations(ctx, testDSN); err != nil {
		t.Fatalf("RunMigrations (up): %v", err)
	}
	v, err := postgres.MigrationVersion(ctx, testDSN)
	if err != nil {
		t.Fatalf("MigrationVersion after up: %v", err)
	}
	if v != totalMigrations {
		t.Fatalf("expected version %d after up, got %d", totalMigrations, v)
	}

	status, err := postgres.MigrationStatus(ctx, testDSN)
	if err != nil {
		t.Fatalf("MigrationStatus: %v", err)
	}
	if len(status) != totalMigrations || !status[0].Applied {
		t.Fatalf("unexpected status %+v", status)
	}

	if err := postgres.RollbackMigrations(ctx, testDSN, totalMigrations); err != nil {
		t.Fatalf("RollbackMigrations (down all): %v", err)
	}
	v, err = postgres.MigrationVersion(ctx, testDSN)
	if err != nil {
		t.Fatalf("MigrationVersion after rollback: %v", err)
	}
	if v != 0 {
		t.Fatalf("expected version 0 after full rollback, got %d", v)
	}

	// Re-apply all (idempotency check)
	if err := postgres.RunMigrations(ctx, testDSN); err != nil {
		t.Fatalf("RunMigrations (re-up): %v", err)
	}
	v, err = postgres.MigrationVersion(ctx, testDSN)
	if err != nil {
		t.Fatalf("MigrationVersion after re-up: %v", err)
	}
	if v != totalMigrations {
		t.Fatalf("expected version %d after re-up, got %d", totalMigrations, v)
	}
}
