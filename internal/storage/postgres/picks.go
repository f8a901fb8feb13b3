package postgres

import (
	"context"
	"fmt"

	"github.com/davidgomes/10-seconds-game/internal/models"
	"github.com/davidgomes/10-seconds-game/internal/storage"
)

// CreatePick inserts a pick if and only if the round is still open. The
// insert-select makes the open-round check and the write a single statement,
// and the (user_id, round_id) unique constraint closes the duplicate race.
func (s *Store) CreatePick(ctx context.Context, pick *models.Pick) error {
	const query = `
		INSERT INTO picks (id, user_id, round_id, number, picked_at, write_id)
		SELECT $1, $2, $3, $4, $5, $6
		WHERE EXISTS (SELECT 1 FROM rounds WHERE id = $3 AND end_time IS NULL)`

	res, err := s.db.ExecContext(ctx, query,
		pick.ID, pick.UserID, pick.RoundID, pick.Number, pick.PickedAt, pick.WriteID)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrPickConflict
		}
		return fmt.Errorf("create pick: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create pick rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrRoundClosed
	}
	return nil
}

func (s *Store) GetPicksByRound(ctx context.Context, roundID int64) ([]models.Pick, error) {
	const query = `
		SELECT id, user_id, round_id, number, picked_at, write_id
		FROM picks
		WHERE round_id = $1
		ORDER BY picked_at ASC`

	rows, err := s.db.QueryContext(ctx, query, roundID)
	if err != nil {
		return nil, fmt.Errorf("get picks by round: %w", err)
	}
	defer rows.Close()

	var picks []models.Pick
	for rows.Next() {
		var p models.Pick
		if err := rows.Scan(&p.ID, &p.UserID, &p.RoundID, &p.Number, &p.PickedAt, &p.WriteID); err != nil {
			return nil, fmt.Errorf("scan pick: %w", err)
		}
		picks = append(picks, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pick rows: %w", err)
	}
	return picks, nil
}

func (s *Store) GetUserPickForRound(ctx context.Context, userID, roundID int64) (*models.Pick, error) {
	const query = `
		SELECT id, user_id, round_id, number, picked_at, write_id
		FROM picks
		WHERE user_id = $1 AND round_id = $2`

	rows, err := s.db.QueryContext(ctx, query, userID, roundID)
	if err != nil {
		return nil, fmt.Errorf("get user pick: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("user pick rows: %w", err)
		}
		return nil, nil
	}

	var p models.Pick
	if err := rows.Scan(&p.ID, &p.UserID, &p.RoundID, &p.Number, &p.PickedAt, &p.WriteID); err != nil {
		return nil, fmt.Errorf("scan user pick: %w", err)
	}
	return &p, nil
}
