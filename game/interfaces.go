package game

import (
	"context"
	"time"

	"github.com/dannyz30w/wavelength-games/domain"
	"github.com/dannyz30w/wavelength-games/events"
)

// RoomRepo persists rooms and their players. Each method is atomic.
type RoomRepo interface {
	// CreateRoom inserts the room and its host player. A taken code yields
	// domain.ErrDuplicateRoomCode.
	CreateRoom(ctx context.Context, room domain.Room, host domain.Player) (domain.Room, domain.Player, error)
	GetRoomByCode(ctx context.Context, code string) (domain.Room, error)
	// ListPlayers returns the players of a room in join order.
	ListPlayers(ctx context.Context, roomId string) ([]domain.Player, error)
	// AddPlayer returns the existing row when the token is already in the
	// room, otherwise inserts p unless the room is at its capacity.
	AddPlayer(ctx context.Context, roomId string, p domain.Player) (domain.Player, error)
	GetPlayer(ctx context.Context, playerId string) (domain.Player, error)
	// RemovePlayer deletes the row, promotes the earliest joined player when
	// the host leaves, finishes an emptied room and closes the active round
	// the player was playing in.
	RemovePlayer(ctx context.Context, playerId string) (domain.Player, error)
}

// RoundRepo persists rounds. Phase changes are conditional updates that fail
// with domain.ErrWrongPhase when the round is not in the expected phase.
type RoundRepo interface {
	// InsertRound stores a new round, assigns the players' roles and marks the
	// room as playing. domain.ErrRoundConflict means another round is active
	// or took the number.
	InsertRound(ctx context.Context, round domain.Round) (domain.Round, error)
	GetRound(ctx context.Context, roundId string) (domain.Round, error)
	// LatestRound returns domain.ErrRoundNotFound for a room without rounds.
	LatestRound(ctx context.Context, roomId string) (domain.Round, error)
	ListRounds(ctx context.Context, roomId string) ([]domain.Round, error)
	SubmitClue(ctx context.Context, roundId, clue string) (domain.Round, error)
	// SubmitGuess records the guess and adds points to the guesser's score
	// in the same transaction.
	SubmitGuess(ctx context.Context, roundId string, guess float64, points int, at time.Time) (domain.Round, error)
	CompleteRound(ctx context.Context, roundId string) (domain.Round, error)
	// StaleReveals lists rounds sitting in reveal since before the given time.
	StaleReveals(ctx context.Context, before time.Time) ([]domain.Round, error)
}

// QueueRepo persists the matchmaking queue.
type QueueRepo interface {
	// Matchmake atomically pairs the caller with the oldest waiting entry of
	// another token. When a partner is found, room is created with the partner
	// as host. A matched entry of the caller younger than matchTTL, measured
	// on the store's clock, is returned as is unless its room has finished.
	Matchmake(ctx context.Context, token, name string, room domain.Room, matchTTL time.Duration) (domain.MatchResult, error)
	CancelMatchmaking(ctx context.Context, token string) error
	// ExpireWaiting cancels waiting entries created before the given time.
	ExpireWaiting(ctx context.Context, before time.Time) (int, error)
}

type Store interface {
	RoomRepo
	RoundRepo
	QueueRepo
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) (bool, error)
}

type EventPublisher interface {
	Publish(ev events.Event)
}

// PeriodicTickerChannelCreator lets tests drive background loops by hand.
type PeriodicTickerChannelCreator interface {
	Create(duration time.Duration) <-chan time.Time
}

type ticker struct{}

func (ticker) Create(duration time.Duration) <-chan time.Time {
	return time.NewTicker(duration).C
}

func NewTickerGen() PeriodicTickerChannelCreator {
	return ticker{}
}
