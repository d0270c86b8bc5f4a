package storage

import (
	"context"
	"database/sql"
	"net/url"

	"github.com/pkg/errors"
)

const (
	createVisitedTableSQL = `CREATE TABLE IF NOT EXISTS visited (
	url        TEXT PRIMARY KEY,
	claimed_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`
	claimVisitedSQL = `INSERT INTO visited (url) VALUES ($1) ON CONFLICT (url) DO NOTHING`
	hasVisitedSQL   = `SELECT EXISTS (SELECT 1 FROM visited WHERE url = $1)`
)

// NewPostgresVisitedSet creates a VisitedSet stored in the "visited" table.
func NewPostgresVisitedSet(db *sql.DB) *PostgresVisitedSet {
	return &PostgresVisitedSet{db: db}
}

type PostgresVisitedSet struct {
	db *sql.DB
}

// Migrate creates the visited table if it does not exist.
func (s *PostgresVisitedSet) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, createVisitedTableSQL)
	return errors.Wrap(err, "could not create visited table")
}

func (s *PostgresVisitedSet) Claim(ctx context.Context, u *url.URL) (bool, error) {
	res, err := s.db.ExecContext(ctx, claimVisitedSQL, Key(u))
	if err != nil {
		return false, errors.Wrap(err, "could not claim url in postgres")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "could not get rows affected")
	}
	return n == 1, nil
}

func (s *PostgresVisitedSet) Has(ctx context.Context, u *url.URL) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx, hasVisitedSQL, Key(u)).Scan(&ok)
	if err != nil {
		return false, errors.Wrap(err, "could not query visited table")
	}
	return ok, nil
}
