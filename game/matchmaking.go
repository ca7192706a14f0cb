package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dannyz30w/wavelength-games/domain"
	"github.com/dannyz30w/wavelength-games/events"
	"github.com/dannyz30w/wavelength-games/logger"
)

const DefaultMatchTTL = 2 * time.Minute

// Matchmaker pairs two anonymous players into a fresh two player room.
type Matchmaker struct {
	store     QueueRepo
	codes     CodeGenerator
	publisher EventPublisher
	matchTTL  time.Duration
	now       func() time.Time
}

func NewMatchmaker(store QueueRepo, codes CodeGenerator, publisher EventPublisher, matchTTL time.Duration) *Matchmaker {
	if matchTTL <= 0 {
		matchTTL = DefaultMatchTTL
	}
	return &Matchmaker{
		store:     store,
		codes:     codes,
		publisher: publisher,
		matchTTL:  matchTTL,
		now:       time.Now,
	}
}

// Enqueue puts the caller in the queue or pairs them with someone already
// waiting. Polling callers call it again until it reports a match; the
// waiting partner gets the same room back on its next poll.
func (m *Matchmaker) Enqueue(ctx context.Context, token, name string) (domain.MatchResult, error) {
	if err := validateToken(token); err != nil {
		return domain.MatchResult{}, err
	}
	name, err := normalizeName(name)
	if err != nil {
		return domain.MatchResult{}, err
	}

	room := domain.Room{
		Status:     domain.RoomWaiting,
		Mode:       domain.ModeTwoPlayer,
		MaxPlayers: TwoPlayerCapacity,
	}

	for range codeAttempts {
		room.Code = m.codes.RoomCode()
		res, err := m.store.Matchmake(ctx, token, name, room, m.matchTTL)
		if errors.Is(err, domain.ErrDuplicateRoomCode) {
			continue
		}
		if err != nil {
			return domain.MatchResult{}, err
		}

		if res.Status == domain.MatchMatched && res.RoomCode == room.Code {
			logger.Infof("matchmaking paired %s into room %s", token, res.RoomCode)
			if m.publisher != nil {
				m.publisher.Publish(events.Event{RoomId: res.RoomId, Kind: events.KindRoom, At: m.now()})
			}
		}
		return res, nil
	}

	return domain.MatchResult{}, fmt.Errorf("no free room code after %d attempts: %w", codeAttempts, domain.ErrDuplicateRoomCode)
}

func (m *Matchmaker) Cancel(ctx context.Context, token string) error {
	if err := validateToken(token); err != nil {
		return err
	}
	return m.store.CancelMatchmaking(ctx, token)
}
