package game

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/dannyz30w/wavelength-games/domain"
	"github.com/dannyz30w/wavelength-games/events"
	"github.com/dannyz30w/wavelength-games/logger"
)

// startAttempts bounds how often StartRound re-reads after losing an insert race.
const startAttempts = 3

type RoundService struct {
	store     Store
	setup     RoundSetup
	bands     Bands
	publisher EventPublisher
	now       func() time.Time
}

func NewRoundService(store Store, setup RoundSetup, publisher EventPublisher) *RoundService {
	return &RoundService{
		store:     store,
		setup:     setup,
		bands:     DefaultBands,
		publisher: publisher,
		now:       time.Now,
	}
}

// StartRound opens the next round of the room. When a round is already
// running, whether it was opened earlier or by a concurrent call, that round
// is returned instead.
func (s *RoundService) StartRound(ctx context.Context, code, actorToken string) (domain.Round, error) {
	normalized, err := NormalizeCode(code)
	if err != nil {
		return domain.Round{}, err
	}
	room, err := s.store.GetRoomByCode(ctx, normalized)
	if err != nil {
		return domain.Round{}, err
	}
	if room.Status == domain.RoomFinished {
		return domain.Round{}, domain.ErrRoomFinished
	}

	for range startAttempts {
		round, err := s.tryStart(ctx, room, actorToken)
		if errors.Is(err, domain.ErrRoundConflict) {
			logger.Debugf("round start raced in room %s", room.Code)
			continue
		}
		return round, err
	}
	return domain.Round{}, domain.ErrRoundConflict
}

func (s *RoundService) tryStart(ctx context.Context, room domain.Room, actorToken string) (domain.Round, error) {
	players, err := s.store.ListPlayers(ctx, room.Id)
	if err != nil {
		return domain.Round{}, err
	}
	if _, err := findPlayer(players, actorToken); err != nil {
		return domain.Round{}, err
	}

	number := 1
	latest, err := s.store.LatestRound(ctx, room.Id)
	switch {
	case errors.Is(err, domain.ErrRoundNotFound):
	case err != nil:
		return domain.Round{}, err
	case latest.Phase.Active():
		return latest, nil
	default:
		number = latest.Number + 1
	}

	history, err := s.store.ListRounds(ctx, room.Id)
	if err != nil {
		return domain.Round{}, err
	}
	roles := make([]RoundRoles, len(history))
	for i, r := range history {
		roles[i] = RoundRoles{ClueGiver: r.ClueGiverToken, Guesser: r.GuesserToken}
	}
	tokens := make([]string, len(players))
	for i, p := range players {
		tokens[i] = p.Token
	}

	next, err := NextAssignment(roles, tokens)
	if err != nil {
		return domain.Round{}, err
	}

	target := s.setup.Target()
	extremes := s.setup.Extremes()

	round, err := s.store.InsertRound(ctx, domain.Round{
		RoomId:         room.Id,
		Number:         number,
		Phase:          domain.PhaseClueGiving,
		ClueGiverToken: next.ClueGiver,
		GuesserToken:   next.Guesser,
		LeftExtreme:    extremes.Left,
		RightExtreme:   extremes.Right,
		TargetCenter:   target.Center,
		TargetWidth:    target.Width,
	})
	if errors.Is(err, domain.ErrRoundConflict) {
		winner, lerr := s.store.LatestRound(ctx, room.Id)
		if lerr == nil && winner.Phase.Active() {
			return winner, nil
		}
		return domain.Round{}, err
	}
	if err != nil {
		return domain.Round{}, err
	}

	logger.Infof("room %s started round %d", room.Code, round.Number)
	s.publish(room.Id)
	return round, nil
}

func (s *RoundService) SubmitClue(ctx context.Context, roundId, actorToken, text string) (domain.Round, error) {
	clue, err := normalizeClue(text)
	if err != nil {
		return domain.Round{}, err
	}
	round, err := s.store.GetRound(ctx, roundId)
	if err != nil {
		return domain.Round{}, err
	}
	if round.ClueGiverToken != actorToken {
		return domain.Round{}, domain.ErrNotClueGiver
	}
	if err := s.requireMember(ctx, round.RoomId, actorToken); err != nil {
		return domain.Round{}, err
	}

	repeated := func(r domain.Round) bool {
		return r.Clue != nil && *r.Clue == clue
	}
	if round.Phase != domain.PhaseClueGiving {
		return s.settle(round, repeated)
	}

	updated, err := s.store.SubmitClue(ctx, roundId, clue)
	if errors.Is(err, domain.ErrWrongPhase) {
		return s.reread(ctx, roundId, repeated)
	}
	if err != nil {
		return domain.Round{}, err
	}

	s.publish(updated.RoomId)
	return updated, nil
}

func (s *RoundService) SubmitGuess(ctx context.Context, roundId, actorToken string, value float64) (domain.Round, error) {
	if math.IsNaN(value) || value < MinPosition || value > MaxPosition {
		return domain.Round{}, domain.ErrGuessOutOfRange
	}
	round, err := s.store.GetRound(ctx, roundId)
	if err != nil {
		return domain.Round{}, err
	}
	if round.GuesserToken != actorToken {
		return domain.Round{}, domain.ErrNotGuesser
	}
	if err := s.requireMember(ctx, round.RoomId, actorToken); err != nil {
		return domain.Round{}, err
	}

	repeated := func(r domain.Round) bool {
		return r.Guess != nil && *r.Guess == value
	}
	if round.Phase != domain.PhaseGuessing {
		return s.settle(round, repeated)
	}

	points := s.bands.Score(value, round.TargetCenter)
	updated, err := s.store.SubmitGuess(ctx, roundId, value, points, s.now())
	if errors.Is(err, domain.ErrWrongPhase) {
		return s.reread(ctx, roundId, repeated)
	}
	if err != nil {
		return domain.Round{}, err
	}

	logger.Debugf("round %s scored %d points", roundId, points)
	s.publish(updated.RoomId)
	return updated, nil
}

func (s *RoundService) CompleteRound(ctx context.Context, roundId, actorToken string) (domain.Round, error) {
	round, err := s.store.GetRound(ctx, roundId)
	if err != nil {
		return domain.Round{}, err
	}
	if err := s.requireMember(ctx, round.RoomId, actorToken); err != nil {
		return domain.Round{}, err
	}
	return s.complete(ctx, round)
}

func (s *RoundService) requireMember(ctx context.Context, roomId, token string) error {
	players, err := s.store.ListPlayers(ctx, roomId)
	if err != nil {
		return err
	}
	_, err = findPlayer(players, token)
	return err
}

func (s *RoundService) complete(ctx context.Context, round domain.Round) (domain.Round, error) {
	done := func(r domain.Round) bool {
		return r.Phase == domain.PhaseComplete
	}
	if round.Phase != domain.PhaseReveal {
		return s.settle(round, done)
	}

	updated, err := s.store.CompleteRound(ctx, round.Id)
	if errors.Is(err, domain.ErrWrongPhase) {
		return s.reread(ctx, round.Id, done)
	}
	if err != nil {
		return domain.Round{}, err
	}

	s.publish(updated.RoomId)
	return updated, nil
}

// settle turns a phase mismatch into a no-op when the round already holds
// what the caller asked for.
func (s *RoundService) settle(round domain.Round, repeated func(domain.Round) bool) (domain.Round, error) {
	if repeated(round) {
		return round, nil
	}
	return domain.Round{}, domain.ErrWrongPhase
}

func (s *RoundService) reread(ctx context.Context, roundId string, repeated func(domain.Round) bool) (domain.Round, error) {
	round, err := s.store.GetRound(ctx, roundId)
	if err != nil {
		return domain.Round{}, err
	}
	return s.settle(round, repeated)
}

func (s *RoundService) publish(roomId string) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(events.Event{RoomId: roomId, Kind: events.KindRound, At: s.now()})
}
