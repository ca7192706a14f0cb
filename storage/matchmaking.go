package storage

import (
	"context"
	"errors"
	"time"

	"github.com/dannyz30w/wavelength-games/domain"
	"github.com/jackc/pgx/v5"
)

// matchmakingLock is the advisory lock key serialising pairing attempts.
const matchmakingLock = 0x57415645

func (pgr *PostgresRepo) Matchmake(ctx context.Context, token, name string, room domain.Room, matchTTL time.Duration) (domain.MatchResult, error) {
	var res domain.MatchResult
	err := pgx.BeginFunc(ctx, pgr.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, matchmakingLock); err != nil {
			return err
		}

		// The cutoff is taken from the database clock, the one stamping updated_at.
		err := tx.QueryRow(ctx,
			`SELECT r.code, r.id::text
			FROM matchmaking_queue q JOIN rooms r ON r.id = q.matched_room_id
			WHERE q.player_token = $1 AND q.status = 'matched'
			AND q.updated_at >= now() - make_interval(secs => $2)
			AND r.status <> 'finished'
			ORDER BY q.updated_at DESC
			LIMIT 1`,
			token, matchTTL.Seconds(),
		).Scan(&res.RoomCode, &res.RoomId)
		if err == nil {
			res.Status = domain.MatchMatched
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		_, err = tx.Exec(ctx,
			`UPDATE matchmaking_queue SET status = 'cancelled', updated_at = now()
			WHERE player_token = $1 AND status = 'waiting'`, token)
		if err != nil {
			return err
		}

		var partnerId, partnerToken, partnerName string
		err = tx.QueryRow(ctx,
			`SELECT id::text, player_token, player_name FROM matchmaking_queue
			WHERE status = 'waiting' AND player_token <> $1
			ORDER BY created_at, id
			LIMIT 1`, token,
		).Scan(&partnerId, &partnerToken, &partnerName)
		if errors.Is(err, pgx.ErrNoRows) {
			_, err = tx.Exec(ctx,
				`INSERT INTO matchmaking_queue (player_token, player_name) VALUES ($1, $2)`, token, name)
			res = domain.MatchResult{Status: domain.MatchWaiting}
			return err
		}
		if err != nil {
			return err
		}

		created, _, err := insertRoom(ctx, tx, room, domain.Player{Token: partnerToken, Name: partnerName})
		if err != nil {
			return dbError(err, nil, domain.ErrDuplicateRoomCode)
		}

		_, err = tx.Exec(ctx,
			`UPDATE matchmaking_queue SET status = 'matched', matched_room_id = $2, updated_at = now()
			WHERE id = $1`, partnerId, created.Id)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO matchmaking_queue (player_token, player_name, status, matched_room_id)
			VALUES ($1, $2, 'matched', $3)`, token, name, created.Id)
		if err != nil {
			return err
		}

		res = domain.MatchResult{Status: domain.MatchMatched, RoomCode: created.Code, RoomId: created.Id}
		return nil
	})
	if err != nil {
		return domain.MatchResult{}, dbError(err, nil, nil)
	}
	return res, nil
}

func (pgr *PostgresRepo) CancelMatchmaking(ctx context.Context, token string) error {
	_, err := pgr.pool.Exec(ctx,
		`UPDATE matchmaking_queue SET status = 'cancelled', updated_at = now()
		WHERE player_token = $1 AND status <> 'cancelled'`, token)
	if err != nil {
		return dbError(err, nil, nil)
	}
	return nil
}

func (pgr *PostgresRepo) ExpireWaiting(ctx context.Context, before time.Time) (int, error) {
	tag, err := pgr.pool.Exec(ctx,
		`UPDATE matchmaking_queue SET status = 'cancelled', updated_at = now()
		WHERE status = 'waiting' AND created_at < $1`, before)
	if err != nil {
		return 0, dbError(err, nil, nil)
	}
	return int(tag.RowsAffected()), nil
}
