// Package migrations embeds the goose SQL migrations for the two local
// databases: the collection (CollectionDir) and the media index (MediaDir).
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"
)

//go:embed collection/*.sql media/*.sql
var FS embed.FS

const (
	CollectionDir = "collection"
	MediaDir      = "media"
)

var (
	setupOnce sync.Once
	setupErr  error
)

// setup configures goose once per process. Its logger is silenced so
// migrations do not write into the terminal.
func setup() error {
	setupOnce.Do(func() {
		goose.SetBaseFS(FS)
		goose.SetLogger(goose.NopLogger())
		if err := goose.SetDialect("sqlite3"); err != nil {
			setupErr = fmt.Errorf("failed to set goose dialect: %w", err)
		}
	})
	return setupErr
}

// Apply runs every pending migration of dir against db.
func Apply(ctx context.Context, db *sql.DB, dir string) error {
	if err := setup(); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, dir); err != nil {
		return fmt.Errorf("failed to migrate %s: %w", dir, err)
	}
	return nil
}
