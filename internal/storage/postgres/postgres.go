// Package postgres implements the storage.Store interface on PostgreSQL
// using the pgx stdlib driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"
)

const uniqueViolation = "23505"

// Store is a PostgreSQL-backed storage.Store.
type Store struct {
	db *sql.DB
}

// Open connects to PostgreSQL, verifies the connection and ensures the
// schema exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	log.Info().Msg("connected to postgres")
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	// One statement per Exec: the extended query protocol rejects
	// multi-statement strings.
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id       BIGSERIAL PRIMARY KEY,
			username TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS rounds (
			id             BIGSERIAL PRIMARY KEY,
			start_time     TIMESTAMPTZ NOT NULL,
			end_time       TIMESTAMPTZ,
			winning_number INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS round_numbers (
			round_id      BIGINT NOT NULL REFERENCES rounds(id),
			number        INTEGER NOT NULL,
			display_index INTEGER NOT NULL,
			UNIQUE (round_id, display_index),
			UNIQUE (round_id, number)
		)`,
		`CREATE TABLE IF NOT EXISTS picks (
			id        UUID PRIMARY KEY,
			user_id   BIGINT NOT NULL REFERENCES users(id),
			round_id  BIGINT NOT NULL REFERENCES rounds(id),
			number    INTEGER NOT NULL,
			picked_at TIMESTAMPTZ NOT NULL,
			write_id  UUID NOT NULL,
			UNIQUE (user_id, round_id)
		)`,
		`CREATE TABLE IF NOT EXISTS round_winners (
			round_id BIGINT NOT NULL REFERENCES rounds(id),
			user_id  BIGINT NOT NULL REFERENCES users(id),
			PRIMARY KEY (round_id, user_id)
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// inTx executes fn inside a transaction. If fn returns an error the
// transaction rolls back, else it commits.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
