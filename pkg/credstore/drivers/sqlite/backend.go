// Package sqlite implements the primary structured credential backend on
// a local SQLite file. The renewal credential is sealed at rest; access
// and identity credentials are short-lived enough to store in plaintext.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nortesoft/gestor/pkg/credstore"
	"github.com/nortesoft/gestor/pkg/cryptox"

	_ "modernc.org/sqlite"
)

// The table holds at most one row: a client context owns exactly one
// session.
const credentialsRowID = 1

type Backend struct {
	db     *sql.DB
	path   string
	sealer *cryptox.Sealer
}

var _ credstore.Backend = (*Backend)(nil)
var _ credstore.Pathed = (*Backend)(nil)

// NewBackend opens (or creates) the credential database at path and
// applies pending migrations.
func NewBackend(path string, sealer *cryptox.Sealer) (*Backend, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}

	b := &Backend{db: db, path: path, sealer: sealer}
	if err := b.applyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: migrate %s: %w", path, err)
	}
	return b, nil
}

func (b *Backend) Name() string { return "sqlite" }

// Path exposes the database file for the store watcher.
func (b *Backend) Path() string { return b.path }

func (b *Backend) Close() error { return b.db.Close() }

// Ping reports readiness of the underlying database.
func (b *Backend) Ping() error { return b.db.Ping() }

func (b *Backend) Read(ctx context.Context) (*credstore.Triple, error) {
	var t credstore.Triple
	var sealed []byte
	err := b.db.QueryRowContext(ctx,
		`SELECT access_credential, identity_credential, renewal_sealed
		   FROM credentials WHERE id = ?`, credentialsRowID,
	).Scan(&t.Access, &t.Identity, &sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if len(sealed) > 0 {
		renewal, err := b.sealer.Open(sealed)
		if err != nil {
			// A renewal credential we cannot unseal (rotated key,
			// corrupted file) is as good as absent; the store treats
			// the partial triple as no session.
			return &credstore.Triple{Access: t.Access, Identity: t.Identity}, nil
		}
		t.Renewal = string(renewal)
	}
	return &t, nil
}

func (b *Backend) Write(ctx context.Context, t credstore.Triple) error {
	sealed, err := b.sealer.Seal([]byte(t.Renewal))
	if err != nil {
		return err
	}

	_, err = b.db.ExecContext(ctx,
		`INSERT INTO credentials (id, access_credential, identity_credential, renewal_sealed, updated_at)
		 VALUES (?, ?, ?, ?, strftime('%s','now'))
		 ON CONFLICT (id) DO UPDATE SET
		   access_credential = excluded.access_credential,
		   identity_credential = excluded.identity_credential,
		   renewal_sealed = excluded.renewal_sealed,
		   updated_at = excluded.updated_at`,
		credentialsRowID, t.Access, t.Identity, sealed,
	)
	return err
}

func (b *Backend) Clear(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx,
		`DELETE FROM credentials WHERE id = ?`, credentialsRowID)
	return err
}
