package collection

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/ankisync/internal/client/migrations"
	"github.com/dmitrijs2005/ankisync/internal/client/repositories/col"
	"github.com/dmitrijs2005/ankisync/internal/dbx"

	_ "modernc.org/sqlite"
)

// IntegrityCheck runs PRAGMA integrity_check on db and returns an error
// carrying the engine's report unless it is "ok".
func IntegrityCheck(ctx context.Context, db dbx.DBTX) error {
	rows, err := db.QueryContext(ctx, `PRAGMA integrity_check`)
	if err != nil {
		return fmt.Errorf("failed to run integrity check: %w", err)
	}
	defer rows.Close()

	var lines []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return fmt.Errorf("failed to read integrity check: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read integrity check: %w", err)
	}
	if len(lines) == 1 && lines[0] == "ok" {
		return nil
	}
	return fmt.Errorf("integrity check failed: %s", strings.Join(lines, "; "))
}

// VerifyFile checks that the database file at path can serve as the
// collection: it passes IntegrityCheck, takes the collection migrations and
// has a header row. Pending migrations are applied to the file.
func VerifyFile(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer db.Close()

	if err := IntegrityCheck(ctx, db); err != nil {
		return err
	}
	if err := migrations.Apply(ctx, db, migrations.CollectionDir); err != nil {
		return fmt.Errorf("unsupported collection layout: %w", err)
	}
	if _, err := col.NewSQLiteRepository(db).Get(ctx); err != nil {
		return fmt.Errorf("failed to read collection header: %w", err)
	}
	return nil
}
