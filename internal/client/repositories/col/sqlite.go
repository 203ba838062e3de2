package col

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/ankisync/internal/client/models"
	"github.com/dmitrijs2005/ankisync/internal/dbx"
)

// ErrNotFound is returned by Get before the header row has been created.
var ErrNotFound = errors.New("collection header not found")

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Get(ctx context.Context) (*models.CollectionMeta, error) {
	m := &models.CollectionMeta{}
	var conf string
	err := r.db.QueryRowContext(ctx, `SELECT crt, mod, scm, ver, usn, ls, conf FROM col WHERE id = 1`).
		Scan(&m.Crt, &m.Mod, &m.Scm, &m.Ver, &m.Usn, &m.Ls, &conf)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get collection header: %w", err)
	}
	m.Conf = []byte(conf)
	return m, nil
}

func (r *SQLiteRepository) Save(ctx context.Context, m *models.CollectionMeta) error {
	conf := string(m.Conf)
	if conf == "" {
		conf = "{}"
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO col (id, crt, mod, scm, ver, usn, ls, conf) VALUES (1, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET crt = excluded.crt, mod = excluded.mod, scm = excluded.scm,
			ver = excluded.ver, usn = excluded.usn, ls = excluded.ls, conf = excluded.conf
	`, m.Crt, m.Mod, m.Scm, m.Ver, m.Usn, m.Ls, conf)
	if err != nil {
		return fmt.Errorf("failed to save collection header: %w", err)
	}
	return nil
}
