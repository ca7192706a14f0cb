package game

import (
	"context"
	"errors"
	"time"

	"github.com/dannyz30w/wavelength-games/domain"
)

// Snapshot is the full state of a room as one viewer may see it. Clients
// render from it on every event and every resync.
type Snapshot struct {
	Room    domain.Room     `json:"room"`
	Players []domain.Player `json:"players"`
	Round   *domain.Round   `json:"round"`
	// TargetHidden is set when Round.TargetCenter has been blanked for this viewer.
	TargetHidden bool `json:"target_hidden"`
	// Self is nil when the viewer has no row in the room.
	Self       *domain.Player `json:"self"`
	ServerTime time.Time      `json:"server_time"`
}

func (s *RoomService) Snapshot(ctx context.Context, code, viewerToken string) (Snapshot, error) {
	room, err := s.roomByCode(ctx, code)
	if err != nil {
		return Snapshot{}, err
	}
	return s.snapshotOf(ctx, room, viewerToken)
}

func (s *RoomService) snapshotOf(ctx context.Context, room domain.Room, viewerToken string) (Snapshot, error) {
	players, err := s.store.ListPlayers(ctx, room.Id)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		Room:       room,
		Players:    players,
		ServerTime: time.Now(),
	}

	if self, err := findPlayer(players, viewerToken); err == nil {
		snap.Self = &self
	}
	// The password gates reads of a private room as well as joins.
	if room.Private && snap.Self == nil {
		return Snapshot{}, domain.ErrNotInRoom
	}

	round, err := s.store.LatestRound(ctx, room.Id)
	switch {
	case errors.Is(err, domain.ErrRoundNotFound):
	case err != nil:
		return Snapshot{}, err
	default:
		if hideTarget(round, viewerToken) {
			round.TargetCenter = 0
			snap.TargetHidden = true
		}
		snap.Round = &round
	}

	return snap, nil
}

// hideTarget reports whether the viewer must not see where the target is.
func hideTarget(r domain.Round, viewerToken string) bool {
	if r.ClueGiverToken == viewerToken {
		return false
	}
	return !(r.Phase == domain.PhaseReveal || r.Phase == domain.PhaseComplete)
}
