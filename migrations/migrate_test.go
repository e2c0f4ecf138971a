package migrations_test

import (
	"context"
	"testing"

	"github.com/boxoffice/tickets/internal/testutil"
	"github.com/boxoffice/tickets/migrations"
)

func TestNames_Sorted(t *testing.T) {
	names, err := migrations.Names()
	if err != nil {
		t.Fatalf("names: %v", err)
	}
	if len(names) < 2 {
		t.Fatalf("expected at least 2 migrations, got %d", len(names))
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Fatalf("migrations out of order: %q before %q", names[i-1], names[i])
		}
	}
}

func TestApply_RecordsMigrations(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()

	if _, err := pool.Exec(ctx, `DROP TABLE IF EXISTS purchases, events, schema_migrations CASCADE`); err != nil {
		t.Fatalf("reset schema: %v", err)
	}

	applied, err := migrations.Apply(ctx, pool)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	names, _ := migrations.Names()
	if len(applied) != len(names) {
		t.Fatalf("expected %d applied migrations, got %v", len(names), applied)
	}

	for _, table := range []string{"events", "purchases"} {
		var exists bool
		if err := pool.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, table).Scan(&exists); err != nil {
			t.Fatalf("check table %s: %v", table, err)
		}
		if !exists {
			t.Fatalf("expected table %s to exist", table)
		}
	}

	again, err := migrations.Apply(ctx, pool)
	if err != nil {
		t.Fatalf("re-apply migrations: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected nothing to apply, got %v", again)
	}

	var count int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&count); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if count != len(names) {
		t.Fatalf("expected %d recorded migrations, got %d", len(names), count)
	}
}
