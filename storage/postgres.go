package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/dannyz30w/wavelength-games/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

type PostgresRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresRepo(ctx context.Context, connString string) (*PostgresRepo, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresRepo{pool: pool}, nil
}

func (pgr *PostgresRepo) Close() {
	pgr.pool.Close()
}

// dbError maps a pgx error onto the domain. notFound is returned for a
// missing row and conflict for a unique or foreign key violation; either may
// be nil when the query cannot produce it.
func dbError(err error, notFound, conflict error) error {
	var domainErr *domain.Error
	if errors.As(err, &domainErr) {
		return err
	}

	if errors.Is(err, pgx.ErrNoRows) && notFound != nil {
		return notFound
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && conflict != nil {
		if pgErr.Code == uniqueViolation || pgErr.Code == foreignKeyViolation {
			return conflict
		}
	}

	return fmt.Errorf("%w: %w", domain.UnexpectedDatabaseError, err)
}

// validId keeps malformed ids from reaching the uuid columns.
func validId(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

const roomColumns = `id::text, code, host_token, is_private, COALESCE(password_hash, ''), status, mode, max_players, created_at`

func scanRoom(row pgx.Row) (domain.Room, error) {
	var room domain.Room
	err := row.Scan(&room.Id, &room.Code, &room.HostToken, &room.Private, &room.PasswordHash,
		&room.Status, &room.Mode, &room.MaxPlayers, &room.CreatedAt)
	return room, err
}

const playerColumns = `id::text, room_id::text, token, name, role, score, is_host, joined_at`

func scanPlayer(row pgx.Row) (domain.Player, error) {
	var p domain.Player
	err := row.Scan(&p.Id, &p.RoomId, &p.Token, &p.Name, &p.Role, &p.Score, &p.IsHost, &p.JoinedAt)
	return p, err
}

func (pgr *PostgresRepo) CreateRoom(ctx context.Context, room domain.Room, host domain.Player) (domain.Room, domain.Player, error) {
	var (
		created domain.Room
		hostRow domain.Player
	)
	err := pgx.BeginFunc(ctx, pgr.pool, func(tx pgx.Tx) error {
		var err error
		created, hostRow, err = insertRoom(ctx, tx, room, host)
		return err
	})
	if err != nil {
		return domain.Room{}, domain.Player{}, dbError(err, nil, domain.ErrDuplicateRoomCode)
	}
	return created, hostRow, nil
}

func insertRoom(ctx context.Context, tx pgx.Tx, room domain.Room, host domain.Player) (domain.Room, domain.Player, error) {
	var passwordHash *string
	if room.PasswordHash != "" {
		passwordHash = &room.PasswordHash
	}

	created, err := scanRoom(tx.QueryRow(ctx,
		`INSERT INTO rooms (code, host_token, is_private, password_hash, status, mode, max_players)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+roomColumns,
		room.Code, host.Token, room.Private, passwordHash, room.Status, room.Mode, room.MaxPlayers,
	))
	if err != nil {
		return domain.Room{}, domain.Player{}, err
	}

	hostRow, err := scanPlayer(tx.QueryRow(ctx,
		`INSERT INTO players (room_id, token, name, role, is_host)
		VALUES ($1, $2, $3, $4, TRUE)
		RETURNING `+playerColumns,
		created.Id, host.Token, host.Name, domain.RoleSpectator,
	))
	if err != nil {
		return domain.Room{}, domain.Player{}, err
	}

	return created, hostRow, nil
}

func (pgr *PostgresRepo) GetRoomByCode(ctx context.Context, code string) (domain.Room, error) {
	room, err := scanRoom(pgr.pool.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE code = $1`, code))
	if err != nil {
		return domain.Room{}, dbError(err, domain.ErrRoomNotFound, nil)
	}
	return room, nil
}

func (pgr *PostgresRepo) ListPlayers(ctx context.Context, roomId string) ([]domain.Player, error) {
	if !validId(roomId) {
		return []domain.Player{}, nil
	}
	return listPlayers(ctx, pgr.pool, roomId)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func listPlayers(ctx context.Context, q querier, roomId string) ([]domain.Player, error) {
	rows, err := q.Query(ctx,
		`SELECT `+playerColumns+` FROM players WHERE room_id = $1 ORDER BY joined_at, id`, roomId)
	if err != nil {
		return nil, dbError(err, nil, nil)
	}

	players, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Player, error) {
		return scanPlayer(row)
	})
	if err != nil {
		return nil, dbError(err, nil, nil)
	}
	return players, nil
}

func (pgr *PostgresRepo) AddPlayer(ctx context.Context, roomId string, p domain.Player) (domain.Player, error) {
	if !validId(roomId) {
		return domain.Player{}, domain.ErrRoomNotFound
	}

	var added domain.Player
	err := pgx.BeginFunc(ctx, pgr.pool, func(tx pgx.Tx) error {
		var maxPlayers int
		// The row lock serialises joins to one room so the count below holds.
		err := tx.QueryRow(ctx, `SELECT max_players FROM rooms WHERE id = $1 FOR UPDATE`, roomId).Scan(&maxPlayers)
		if err != nil {
			return dbError(err, domain.ErrRoomNotFound, nil)
		}

		added, err = scanPlayer(tx.QueryRow(ctx,
			`SELECT `+playerColumns+` FROM players WHERE room_id = $1 AND token = $2`, roomId, p.Token))
		if err == nil {
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		var count int
		if err := tx.QueryRow(ctx, `SELECT count(*) FROM players WHERE room_id = $1`, roomId).Scan(&count); err != nil {
			return err
		}
		if count >= maxPlayers {
			return domain.ErrRoomFull
		}

		added, err = scanPlayer(tx.QueryRow(ctx,
			`INSERT INTO players (room_id, token, name, role)
			VALUES ($1, $2, $3, $4)
			RETURNING `+playerColumns,
			roomId, p.Token, p.Name, domain.RoleSpectator,
		))
		return err
	})
	if err != nil {
		return domain.Player{}, dbError(err, nil, nil)
	}
	return added, nil
}

func (pgr *PostgresRepo) GetPlayer(ctx context.Context, playerId string) (domain.Player, error) {
	if !validId(playerId) {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	p, err := scanPlayer(pgr.pool.QueryRow(ctx, `SELECT `+playerColumns+` FROM players WHERE id = $1`, playerId))
	if err != nil {
		return domain.Player{}, dbError(err, domain.ErrPlayerNotFound, nil)
	}
	return p, nil
}

func (pgr *PostgresRepo) RemovePlayer(ctx context.Context, playerId string) (domain.Player, error) {
	if !validId(playerId) {
		return domain.Player{}, domain.ErrPlayerNotFound
	}

	var removed domain.Player
	err := pgx.BeginFunc(ctx, pgr.pool, func(tx pgx.Tx) error {
		var roomId string
		err := tx.QueryRow(ctx, `SELECT room_id::text FROM players WHERE id = $1`, playerId).Scan(&roomId)
		if err != nil {
			return dbError(err, domain.ErrPlayerNotFound, nil)
		}
		// Lock the room before the players rows, in the same order AddPlayer does.
		if _, err := tx.Exec(ctx, `SELECT 1 FROM rooms WHERE id = $1 FOR UPDATE`, roomId); err != nil {
			return err
		}

		removed, err = scanPlayer(tx.QueryRow(ctx, `DELETE FROM players WHERE id = $1 RETURNING `+playerColumns, playerId))
		if err != nil {
			return dbError(err, domain.ErrPlayerNotFound, nil)
		}

		var remaining int
		if err := tx.QueryRow(ctx, `SELECT count(*) FROM players WHERE room_id = $1`, roomId).Scan(&remaining); err != nil {
			return err
		}

		switch {
		case remaining == 0:
			if _, err := tx.Exec(ctx, `UPDATE rooms SET status = $2 WHERE id = $1`, roomId, domain.RoomFinished); err != nil {
				return err
			}
		case removed.IsHost:
			_, err := tx.Exec(ctx,
				`WITH next AS (
					UPDATE players SET is_host = TRUE
					WHERE id = (SELECT id FROM players WHERE room_id = $1 ORDER BY joined_at, id LIMIT 1)
					RETURNING token
				)
				UPDATE rooms SET host_token = next.token FROM next WHERE rooms.id = $1`, roomId)
			if err != nil {
				return err
			}
		}

		_, err = tx.Exec(ctx,
			`UPDATE rounds SET phase = $3, completed_at = COALESCE(completed_at, now())
			WHERE room_id = $1
			AND phase IN ('clue_giving', 'guessing', 'reveal')
			AND (psychic_token = $2 OR guesser_token = $2)`,
			roomId, removed.Token, domain.PhaseComplete)
		if err != nil {
			return err
		}

		// A matchmade room the player walked out of is not handed back to them.
		_, err = tx.Exec(ctx,
			`UPDATE matchmaking_queue SET status = 'cancelled', updated_at = now()
			WHERE player_token = $1 AND matched_room_id = $2 AND status = 'matched'`,
			removed.Token, roomId)
		return err
	})
	if err != nil {
		return domain.Player{}, dbError(err, nil, nil)
	}
	return removed, nil
}
