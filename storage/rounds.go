package storage

import (
	"context"
	"errors"
	"time"

	"github.com/dannyz30w/wavelength-games/domain"
	"github.com/jackc/pgx/v5"
)

const roundColumns = `id::text, room_id::text, round_number, phase, psychic_token, guesser_token,
	left_extreme, right_extreme, target_center, target_width,
	clue, guess_value, points_awarded, created_at, completed_at`

func scanRound(row pgx.Row) (domain.Round, error) {
	var (
		r     domain.Round
		phase string
	)
	err := row.Scan(&r.Id, &r.RoomId, &r.Number, &phase, &r.ClueGiverToken, &r.GuesserToken,
		&r.LeftExtreme, &r.RightExtreme, &r.TargetCenter, &r.TargetWidth,
		&r.Clue, &r.Guess, &r.Points, &r.CreatedAt, &r.CompletedAt)
	r.Phase = domain.ParsePhase(phase)
	return r, err
}

func collectRounds(rows pgx.Rows) ([]domain.Round, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Round, error) {
		return scanRound(row)
	})
}

func (pgr *PostgresRepo) InsertRound(ctx context.Context, round domain.Round) (domain.Round, error) {
	if !validId(round.RoomId) {
		return domain.Round{}, domain.ErrRoomNotFound
	}

	var inserted domain.Round
	err := pgx.BeginFunc(ctx, pgr.pool, func(tx pgx.Tx) error {
		// Lock the room like AddPlayer and RemovePlayer so both players are
		// still members when the round becomes visible.
		if _, err := tx.Exec(ctx, `SELECT 1 FROM rooms WHERE id = $1 FOR UPDATE`, round.RoomId); err != nil {
			return err
		}
		var members int
		err := tx.QueryRow(ctx,
			`SELECT count(*) FROM players WHERE room_id = $1 AND token IN ($2, $3)`,
			round.RoomId, round.ClueGiverToken, round.GuesserToken,
		).Scan(&members)
		if err != nil {
			return err
		}
		if members < 2 {
			return domain.ErrRoundConflict
		}

		inserted, err = scanRound(tx.QueryRow(ctx,
			`INSERT INTO rounds (room_id, round_number, phase, psychic_token, guesser_token,
				left_extreme, right_extreme, target_center, target_width)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING `+roundColumns,
			round.RoomId, round.Number, round.Phase, round.ClueGiverToken, round.GuesserToken,
			round.LeftExtreme, round.RightExtreme, round.TargetCenter, round.TargetWidth,
		))
		if err != nil {
			return dbError(err, nil, domain.ErrRoundConflict)
		}

		_, err = tx.Exec(ctx,
			`UPDATE players SET role = CASE token
				WHEN $2 THEN 'psychic'
				WHEN $3 THEN 'guesser'
				ELSE 'spectator'
			END
			WHERE room_id = $1`,
			round.RoomId, round.ClueGiverToken, round.GuesserToken)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `UPDATE rooms SET status = $2 WHERE id = $1`, round.RoomId, domain.RoomPlaying)
		return err
	})
	if err != nil {
		return domain.Round{}, dbError(err, nil, nil)
	}
	return inserted, nil
}

func (pgr *PostgresRepo) GetRound(ctx context.Context, roundId string) (domain.Round, error) {
	if !validId(roundId) {
		return domain.Round{}, domain.ErrRoundNotFound
	}
	round, err := scanRound(pgr.pool.QueryRow(ctx, `SELECT `+roundColumns+` FROM rounds WHERE id = $1`, roundId))
	if err != nil {
		return domain.Round{}, dbError(err, domain.ErrRoundNotFound, nil)
	}
	return round, nil
}

func (pgr *PostgresRepo) LatestRound(ctx context.Context, roomId string) (domain.Round, error) {
	if !validId(roomId) {
		return domain.Round{}, domain.ErrRoundNotFound
	}
	round, err := scanRound(pgr.pool.QueryRow(ctx,
		`SELECT `+roundColumns+` FROM rounds WHERE room_id = $1 ORDER BY round_number DESC LIMIT 1`, roomId))
	if err != nil {
		return domain.Round{}, dbError(err, domain.ErrRoundNotFound, nil)
	}
	return round, nil
}

func (pgr *PostgresRepo) ListRounds(ctx context.Context, roomId string) ([]domain.Round, error) {
	if !validId(roomId) {
		return []domain.Round{}, nil
	}
	rows, err := pgr.pool.Query(ctx,
		`SELECT `+roundColumns+` FROM rounds WHERE room_id = $1 ORDER BY round_number`, roomId)
	if err != nil {
		return nil, dbError(err, nil, nil)
	}
	rounds, err := collectRounds(rows)
	if err != nil {
		return nil, dbError(err, nil, nil)
	}
	return rounds, nil
}

// phaseMiss tells a missing round apart from one in another phase after a
// conditional update matched nothing.
func phaseMiss(ctx context.Context, q querier, roundId string) error {
	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM rounds WHERE id = $1)`, roundId).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return domain.ErrRoundNotFound
	}
	return domain.ErrWrongPhase
}

func (pgr *PostgresRepo) SubmitClue(ctx context.Context, roundId, clue string) (domain.Round, error) {
	if !validId(roundId) {
		return domain.Round{}, domain.ErrRoundNotFound
	}
	round, err := scanRound(pgr.pool.QueryRow(ctx,
		`UPDATE rounds SET clue = $2, phase = $3
		WHERE id = $1 AND phase = $4
		RETURNING `+roundColumns,
		roundId, clue, domain.PhaseGuessing, domain.PhaseClueGiving))
	if errors.Is(err, pgx.ErrNoRows) {
		err = phaseMiss(ctx, pgr.pool, roundId)
	}
	if err != nil {
		return domain.Round{}, dbError(err, nil, nil)
	}
	return round, nil
}

func (pgr *PostgresRepo) SubmitGuess(ctx context.Context, roundId string, guess float64, points int, at time.Time) (domain.Round, error) {
	if !validId(roundId) {
		return domain.Round{}, domain.ErrRoundNotFound
	}

	var round domain.Round
	err := pgx.BeginFunc(ctx, pgr.pool, func(tx pgx.Tx) error {
		var err error
		round, err = scanRound(tx.QueryRow(ctx,
			`UPDATE rounds SET guess_value = $2, points_awarded = $3, completed_at = $4, phase = $5
			WHERE id = $1 AND phase = $6
			RETURNING `+roundColumns,
			roundId, guess, points, at, domain.PhaseReveal, domain.PhaseGuessing))
		if errors.Is(err, pgx.ErrNoRows) {
			return phaseMiss(ctx, tx, roundId)
		}
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`UPDATE players SET score = score + $3 WHERE room_id = $1 AND token = $2`,
			round.RoomId, round.GuesserToken, points)
		return err
	})
	if err != nil {
		return domain.Round{}, dbError(err, nil, nil)
	}
	return round, nil
}

func (pgr *PostgresRepo) CompleteRound(ctx context.Context, roundId string) (domain.Round, error) {
	if !validId(roundId) {
		return domain.Round{}, domain.ErrRoundNotFound
	}
	round, err := scanRound(pgr.pool.QueryRow(ctx,
		`UPDATE rounds SET phase = $2, completed_at = COALESCE(completed_at, now())
		WHERE id = $1 AND phase = $3
		RETURNING `+roundColumns,
		roundId, domain.PhaseComplete, domain.PhaseReveal))
	if errors.Is(err, pgx.ErrNoRows) {
		err = phaseMiss(ctx, pgr.pool, roundId)
	}
	if err != nil {
		return domain.Round{}, dbError(err, nil, nil)
	}
	return round, nil
}

func (pgr *PostgresRepo) StaleReveals(ctx context.Context, before time.Time) ([]domain.Round, error) {
	rows, err := pgr.pool.Query(ctx,
		`SELECT `+roundColumns+` FROM rounds WHERE phase = $1 AND completed_at < $2`,
		domain.PhaseReveal, before)
	if err != nil {
		return nil, dbError(err, nil, nil)
	}
	rounds, err := collectRounds(rows)
	if err != nil {
		return nil, dbError(err, nil, nil)
	}
	return rounds, nil
}
