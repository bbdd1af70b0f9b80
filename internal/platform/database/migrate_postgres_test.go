package database_test

import (
	"strings"
	"testing"

	"github.com/p-n-ai/pai-learn/internal/platform/database"
	"github.com/p-n-ai/pai-learn/internal/platform/database/dbtest"
)

func TestMigrate_ConcurrentRunsApplyOnce(t *testing.T) {
	pool := dbtest.New(t)
	ctx := t.Context()

	// Start from an empty schema so both runs race for the same files.
	if _, err := pool.Exec(ctx,
		"DROP TABLE "+strings.Join(database.Tables, ", ")+", goose_db_version",
	); err != nil {
		t.Fatalf("drop tables: %v", err)
	}

	errs := make(chan error, 2)
	for range 2 {
		go func() { errs <- database.Migrate(ctx, pool) }()
	}
	for range 2 {
		if err := <-errs; err != nil {
			t.Fatalf("concurrent Migrate() error = %v", err)
		}
	}

	var applied int
	if err := pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM goose_db_version WHERE version_id = 1 AND is_applied`,
	).Scan(&applied); err != nil {
		t.Fatalf("query goose_db_version: %v", err)
	}
	if applied != 1 {
		t.Errorf("version 1 applied %d times, want 1", applied)
	}

	for _, table := range database.Tables {
		var exists bool
		if err := pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`,
			table,
		).Scan(&exists); err != nil {
			t.Fatalf("query table %s: %v", table, err)
		}
		if !exists {
			t.Errorf("table %s missing after Migrate()", table)
		}
	}
}
