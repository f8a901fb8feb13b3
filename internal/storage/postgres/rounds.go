package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/davidgomes/10-seconds-game/internal/models"
	"github.com/davidgomes/10-seconds-game/internal/storage"
)

func (s *Store) CreateRound(ctx context.Context, startTime time.Time) (*models.Round, error) {
	const query = `INSERT INTO rounds (start_time) VALUES ($1) RETURNING id`

	round := &models.Round{StartTime: startTime}
	if err := s.db.QueryRowContext(ctx, query, startTime).Scan(&round.ID); err != nil {
		return nil, fmt.Errorf("create round: %w", err)
	}
	return round, nil
}

func (s *Store) GetRound(ctx context.Context, id int64) (*models.Round, error) {
	const query = `SELECT id, start_time, end_time, winning_number FROM rounds WHERE id = $1`

	round, err := scanRound(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}

	winners, err := s.roundWinners(ctx, id)
	if err != nil {
		return nil, err
	}
	round.WinnerIDs = winners
	return round, nil
}

// UpdateRound applies the terminal fields of a round. End time, winning
// number and the winner set are written in one transaction so a round is
// never observable with a winning number but no winners.
func (s *Store) UpdateRound(ctx context.Context, id int64, upd storage.RoundUpdate) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		const query = `
			UPDATE rounds
			SET end_time = COALESCE($2::timestamptz, end_time),
			    winning_number = COALESCE($3::integer, winning_number)
			WHERE id = $1`

		var winningNumber sql.NullInt64
		if upd.WinningNumber != nil {
			winningNumber = sql.NullInt64{Int64: int64(*upd.WinningNumber), Valid: true}
		}
		var endTime sql.NullTime
		if upd.EndTime != nil {
			endTime = sql.NullTime{Time: *upd.EndTime, Valid: true}
		}

		res, err := tx.ExecContext(ctx, query, id, endTime, winningNumber)
		if err != nil {
			return fmt.Errorf("update round: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update round rows affected: %w", err)
		}
		if affected == 0 {
			return storage.ErrNotFound
		}

		for _, userID := range upd.WinnerIDs {
			const insertWinner = `
				INSERT INTO round_winners (round_id, user_id) VALUES ($1, $2)
				ON CONFLICT DO NOTHING`
			if _, err := tx.ExecContext(ctx, insertWinner, id, userID); err != nil {
				return fmt.Errorf("insert round winner: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) RoundHistory(ctx context.Context, limit int) ([]models.Round, error) {
	const query = `
		SELECT id, start_time, end_time, winning_number
		FROM rounds
		ORDER BY id DESC
		LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("round history: %w", err)
	}
	defer rows.Close()

	var rounds []models.Round
	for rows.Next() {
		round, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		rounds = append(rounds, *round)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("round history rows: %w", err)
	}

	for i := range rounds {
		winners, err := s.roundWinners(ctx, rounds[i].ID)
		if err != nil {
			return nil, err
		}
		rounds[i].WinnerIDs = winners
	}
	return rounds, nil
}

func (s *Store) AppendRevealedNumber(ctx context.Context, roundID int64, number, displayIndex int) error {
	const query = `INSERT INTO round_numbers (round_id, number, display_index) VALUES ($1, $2, $3)`

	if _, err := s.db.ExecContext(ctx, query, roundID, number, displayIndex); err != nil {
		return fmt.Errorf("append revealed number: %w", err)
	}
	return nil
}

func (s *Store) GetRevealedNumbers(ctx context.Context, roundID int64) ([]models.RevealedNumber, error) {
	const query = `
		SELECT round_id, number, display_index
		FROM round_numbers
		WHERE round_id = $1
		ORDER BY display_index ASC`

	rows, err := s.db.QueryContext(ctx, query, roundID)
	if err != nil {
		return nil, fmt.Errorf("get revealed numbers: %w", err)
	}
	defer rows.Close()

	var numbers []models.RevealedNumber
	for rows.Next() {
		var n models.RevealedNumber
		if err := rows.Scan(&n.RoundID, &n.Number, &n.DisplayIndex); err != nil {
			return nil, fmt.Errorf("scan revealed number: %w", err)
		}
		numbers = append(numbers, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("revealed number rows: %w", err)
	}
	return numbers, nil
}

func (s *Store) roundWinners(ctx context.Context, roundID int64) ([]int64, error) {
	const query = `SELECT user_id FROM round_winners WHERE round_id = $1 ORDER BY user_id`

	rows, err := s.db.QueryContext(ctx, query, roundID)
	if err != nil {
		return nil, fmt.Errorf("round winners: %w", err)
	}
	defer rows.Close()

	var winners []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan round winner: %w", err)
		}
		winners = append(winners, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("round winner rows: %w", err)
	}
	return winners, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRound(row rowScanner) (*models.Round, error) {
	var (
		round         models.Round
		endTime       sql.NullTime
		winningNumber sql.NullInt64
	)
	err := row.Scan(&round.ID, &round.StartTime, &endTime, &winningNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan round: %w", err)
	}
	if endTime.Valid {
		t := endTime.Time
		round.EndTime = &t
	}
	if winningNumber.Valid {
		n := int(winningNumber.Int64)
		round.WinningNumber = &n
	}
	return &round, nil
}
