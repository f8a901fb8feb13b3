package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/davidgomes/10-seconds-game/internal/models"
	"github.com/davidgomes/10-seconds-game/internal/storage"
)

func (s *Store) GetUser(ctx context.Context, id int64) (*models.User, error) {
	const query = `SELECT id, username FROM users WHERE id = $1`

	var user models.User
	err := s.db.QueryRowContext(ctx, query, id).Scan(&user.ID, &user.Username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	const query = `SELECT id, username FROM users WHERE username = $1`

	var user models.User
	err := s.db.QueryRowContext(ctx, query, username).Scan(&user.ID, &user.Username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by username: %w", err)
	}
	return &user, nil
}

// CreateUser inserts a user, or returns the existing row when the username
// is already taken. Join is get-or-create by design.
func (s *Store) CreateUser(ctx context.Context, username string) (*models.User, error) {
	const query = `
		INSERT INTO users (username) VALUES ($1)
		ON CONFLICT (username) DO UPDATE SET username = EXCLUDED.username
		RETURNING id, username`

	var user models.User
	if err := s.db.QueryRowContext(ctx, query, username).Scan(&user.ID, &user.Username); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &user, nil
}

func (s *Store) PlayerStats(ctx context.Context, userID int64) (int, int, error) {
	const query = `
		SELECT
			(SELECT COUNT(*) FROM round_winners WHERE user_id = $1),
			(SELECT COUNT(DISTINCT round_id) FROM picks WHERE user_id = $1)`

	var wins, roundsPlayed int
	if err := s.db.QueryRowContext(ctx, query, userID).Scan(&wins, &roundsPlayed); err != nil {
		return 0, 0, fmt.Errorf("player stats: %w", err)
	}
	return wins, roundsPlayed, nil
}

func (s *Store) Leaderboard(ctx context.Context) ([]models.Player, error) {
	const query = `
		SELECT
			u.id,
			u.username,
			COUNT(DISTINCT w.round_id) AS wins,
			COUNT(DISTINCT p.round_id) AS rounds_played
		FROM users u
		LEFT JOIN round_winners w ON w.user_id = u.id
		LEFT JOIN picks p ON p.user_id = u.id
		GROUP BY u.id, u.username
		ORDER BY wins DESC, u.id ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	defer rows.Close()

	var players []models.Player
	for rows.Next() {
		var p models.Player
		if err := rows.Scan(&p.ID, &p.Username, &p.Wins, &p.RoundsPlayed); err != nil {
			return nil, fmt.Errorf("scan leaderboard row: %w", err)
		}
		players = append(players, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("leaderboard rows: %w", err)
	}
	return players, nil
}
