package storage

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/dannyz30w/wavelength-games/domain"
	"github.com/google/uuid"
)

// MemoryRepo keeps everything in process. A single mutex makes every method
// one atomic step, the same guarantee PostgresRepo gets from transactions.
type MemoryRepo struct {
	mu sync.Mutex

	rooms       map[string]*domain.Room
	codes       map[string]string
	players     map[string]*domain.Player
	roomPlayers map[string][]string
	rounds      map[string]*domain.Round
	roomRounds  map[string][]string
	queue       []*domain.QueueEntry

	now func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		rooms:       make(map[string]*domain.Room),
		codes:       make(map[string]string),
		players:     make(map[string]*domain.Player),
		roomPlayers: make(map[string][]string),
		rounds:      make(map[string]*domain.Round),
		roomRounds:  make(map[string][]string),
		now:         time.Now,
	}
}

func (r *MemoryRepo) CreateRoom(ctx context.Context, room domain.Room, host domain.Player) (domain.Room, domain.Player, error) {
	if err := ctx.Err(); err != nil {
		return domain.Room{}, domain.Player{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	created, hostRow, err := r.createRoomLocked(room, host)
	if err != nil {
		return domain.Room{}, domain.Player{}, err
	}
	return *created, *hostRow, nil
}

func (r *MemoryRepo) createRoomLocked(room domain.Room, host domain.Player) (*domain.Room, *domain.Player, error) {
	if _, taken := r.codes[room.Code]; taken {
		return nil, nil, domain.ErrDuplicateRoomCode
	}

	now := r.now()
	room.Id = uuid.NewString()
	room.HostToken = host.Token
	room.CreatedAt = now
	r.rooms[room.Id] = &room
	r.codes[room.Code] = room.Id

	host.Id = uuid.NewString()
	host.RoomId = room.Id
	host.IsHost = true
	host.JoinedAt = now
	r.players[host.Id] = &host
	r.roomPlayers[room.Id] = []string{host.Id}

	return &room, &host, nil
}

func (r *MemoryRepo) GetRoomByCode(ctx context.Context, code string) (domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return domain.Room{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.codes[code]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return *r.rooms[id], nil
}

func (r *MemoryRepo) ListPlayers(ctx context.Context, roomId string) ([]domain.Player, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.playersLocked(roomId), nil
}

func (r *MemoryRepo) playersLocked(roomId string) []domain.Player {
	ids := r.roomPlayers[roomId]
	out := make([]domain.Player, 0, len(ids))
	for _, id := range ids {
		out = append(out, *r.players[id])
	}
	return out
}

func (r *MemoryRepo) AddPlayer(ctx context.Context, roomId string, p domain.Player) (domain.Player, error) {
	if err := ctx.Err(); err != nil {
		return domain.Player{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomId]
	if !ok {
		return domain.Player{}, domain.ErrRoomNotFound
	}

	ids := r.roomPlayers[roomId]
	for _, id := range ids {
		if r.players[id].Token == p.Token {
			return *r.players[id], nil
		}
	}
	if len(ids) >= room.MaxPlayers {
		return domain.Player{}, domain.ErrRoomFull
	}

	p.Id = uuid.NewString()
	p.RoomId = roomId
	p.IsHost = false
	p.Score = 0
	p.JoinedAt = r.now()
	r.players[p.Id] = &p
	r.roomPlayers[roomId] = append(ids, p.Id)
	return p, nil
}

func (r *MemoryRepo) GetPlayer(ctx context.Context, playerId string) (domain.Player, error) {
	if err := ctx.Err(); err != nil {
		return domain.Player{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.players[playerId]
	if !ok {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	return *p, nil
}

func (r *MemoryRepo) RemovePlayer(ctx context.Context, playerId string) (domain.Player, error) {
	if err := ctx.Err(); err != nil {
		return domain.Player{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.players[playerId]
	if !ok {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	removed := *p
	delete(r.players, playerId)

	remaining := slices.DeleteFunc(r.roomPlayers[removed.RoomId], func(id string) bool { return id == playerId })
	r.roomPlayers[removed.RoomId] = remaining

	room := r.rooms[removed.RoomId]
	switch {
	case len(remaining) == 0:
		room.Status = domain.RoomFinished
	case removed.IsHost:
		next := r.players[remaining[0]]
		next.IsHost = true
		room.HostToken = next.Token
	}

	now := r.now()
	if active := r.activeRoundLocked(removed.RoomId); active != nil && active.Involves(removed.Token) {
		active.Phase = domain.PhaseComplete
		if active.CompletedAt == nil {
			active.CompletedAt = &now
		}
	}

	// A matchmade room the player walked out of is not handed back to them.
	for _, e := range r.queue {
		if e.Token == removed.Token && e.Status == domain.QueueMatched && e.MatchedRoomId == removed.RoomId {
			e.Status = domain.QueueCancelled
			e.UpdatedAt = now
		}
	}
	r.compactQueueLocked(time.Time{})

	return removed, nil
}

func (r *MemoryRepo) activeRoundLocked(roomId string) *domain.Round {
	for _, id := range r.roomRounds[roomId] {
		if round := r.rounds[id]; round.Phase.Active() {
			return round
		}
	}
	return nil
}

func (r *MemoryRepo) InsertRound(ctx context.Context, round domain.Round) (domain.Round, error) {
	if err := ctx.Err(); err != nil {
		return domain.Round{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[round.RoomId]
	if !ok {
		return domain.Round{}, domain.ErrRoomNotFound
	}
	if r.activeRoundLocked(round.RoomId) != nil {
		return domain.Round{}, domain.ErrRoundConflict
	}
	for _, id := range r.roomRounds[round.RoomId] {
		if r.rounds[id].Number == round.Number {
			return domain.Round{}, domain.ErrRoundConflict
		}
	}
	if !r.isMemberLocked(round.RoomId, round.ClueGiverToken) || !r.isMemberLocked(round.RoomId, round.GuesserToken) {
		return domain.Round{}, domain.ErrRoundConflict
	}

	round.Id = uuid.NewString()
	round.CreatedAt = r.now()
	r.rounds[round.Id] = &round
	r.roomRounds[round.RoomId] = append(r.roomRounds[round.RoomId], round.Id)

	for _, id := range r.roomPlayers[round.RoomId] {
		p := r.players[id]
		p.Role = roleIn(round, p.Token)
	}
	room.Status = domain.RoomPlaying

	return round, nil
}

func (r *MemoryRepo) isMemberLocked(roomId, token string) bool {
	for _, id := range r.roomPlayers[roomId] {
		if r.players[id].Token == token {
			return true
		}
	}
	return false
}

func roleIn(round domain.Round, token string) domain.Role {
	switch token {
	case round.ClueGiverToken:
		return domain.RolePsychic
	case round.GuesserToken:
		return domain.RoleGuesser
	}
	return domain.RoleSpectator
}

func (r *MemoryRepo) GetRound(ctx context.Context, roundId string) (domain.Round, error) {
	if err := ctx.Err(); err != nil {
		return domain.Round{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	round, ok := r.rounds[roundId]
	if !ok {
		return domain.Round{}, domain.ErrRoundNotFound
	}
	return *round, nil
}

func (r *MemoryRepo) LatestRound(ctx context.Context, roomId string) (domain.Round, error) {
	if err := ctx.Err(); err != nil {
		return domain.Round{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var latest *domain.Round
	for _, id := range r.roomRounds[roomId] {
		if round := r.rounds[id]; latest == nil || round.Number > latest.Number {
			latest = round
		}
	}
	if latest == nil {
		return domain.Round{}, domain.ErrRoundNotFound
	}
	return *latest, nil
}

func (r *MemoryRepo) ListRounds(ctx context.Context, roomId string) ([]domain.Round, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.Round, 0, len(r.roomRounds[roomId]))
	for _, id := range r.roomRounds[roomId] {
		out = append(out, *r.rounds[id])
	}
	slices.SortFunc(out, func(a, b domain.Round) int { return a.Number - b.Number })
	return out, nil
}

// advanceLocked moves a round from one phase to the next if it is still in from.
func (r *MemoryRepo) advanceLocked(roundId string, from, to domain.Phase) (*domain.Round, error) {
	round, ok := r.rounds[roundId]
	if !ok {
		return nil, domain.ErrRoundNotFound
	}
	if round.Phase != from {
		return nil, domain.ErrWrongPhase
	}
	round.Phase = to
	return round, nil
}

func (r *MemoryRepo) SubmitClue(ctx context.Context, roundId, clue string) (domain.Round, error) {
	if err := ctx.Err(); err != nil {
		return domain.Round{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	round, err := r.advanceLocked(roundId, domain.PhaseClueGiving, domain.PhaseGuessing)
	if err != nil {
		return domain.Round{}, err
	}
	round.Clue = &clue
	return *round, nil
}

func (r *MemoryRepo) SubmitGuess(ctx context.Context, roundId string, guess float64, points int, at time.Time) (domain.Round, error) {
	if err := ctx.Err(); err != nil {
		return domain.Round{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	round, err := r.advanceLocked(roundId, domain.PhaseGuessing, domain.PhaseReveal)
	if err != nil {
		return domain.Round{}, err
	}
	round.Guess = &guess
	round.Points = &points
	round.CompletedAt = &at

	for _, id := range r.roomPlayers[round.RoomId] {
		if p := r.players[id]; p.Token == round.GuesserToken {
			p.Score += points
		}
	}
	return *round, nil
}

func (r *MemoryRepo) CompleteRound(ctx context.Context, roundId string) (domain.Round, error) {
	if err := ctx.Err(); err != nil {
		return domain.Round{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	round, err := r.advanceLocked(roundId, domain.PhaseReveal, domain.PhaseComplete)
	if err != nil {
		return domain.Round{}, err
	}
	if round.CompletedAt == nil {
		now := r.now()
		round.CompletedAt = &now
	}
	return *round, nil
}

func (r *MemoryRepo) StaleReveals(ctx context.Context, before time.Time) ([]domain.Round, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.Round
	for _, round := range r.rounds {
		if round.Phase == domain.PhaseReveal && round.CompletedAt != nil && round.CompletedAt.Before(before) {
			out = append(out, *round)
		}
	}
	return out, nil
}

func (r *MemoryRepo) Matchmake(ctx context.Context, token, name string, room domain.Room, matchTTL time.Duration) (domain.MatchResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.MatchResult{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	matchedSince := now.Add(-matchTTL)
	r.compactQueueLocked(matchedSince)

	var partner *domain.QueueEntry
	for _, e := range r.queue {
		if e.Token == token && e.Status == domain.QueueMatched && !e.UpdatedAt.Before(matchedSince) {
			if matched, ok := r.rooms[e.MatchedRoomId]; ok && matched.Status != domain.RoomFinished {
				return domain.MatchResult{Status: domain.MatchMatched, RoomCode: matched.Code, RoomId: matched.Id}, nil
			}
		}
		if partner == nil && e.Token != token && e.Status == domain.QueueWaiting {
			partner = e
		}
	}

	if partner != nil {
		created, _, err := r.createRoomLocked(room, domain.Player{
			Token: partner.Token,
			Name:  partner.Name,
			Role:  domain.RoleSpectator,
		})
		if err != nil {
			return domain.MatchResult{}, err
		}
		r.cancelLocked(token, now)
		partner.Status = domain.QueueMatched
		partner.MatchedRoomId = created.Id
		partner.UpdatedAt = now
		r.queue = append(r.queue, &domain.QueueEntry{
			Id:            uuid.NewString(),
			Token:         token,
			Name:          name,
			Status:        domain.QueueMatched,
			MatchedRoomId: created.Id,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
		return domain.MatchResult{Status: domain.MatchMatched, RoomCode: created.Code, RoomId: created.Id}, nil
	}

	r.cancelLocked(token, now)
	r.compactQueueLocked(matchedSince)
	r.queue = append(r.queue, &domain.QueueEntry{
		Id:        uuid.NewString(),
		Token:     token,
		Name:      name,
		Status:    domain.QueueWaiting,
		CreatedAt: now,
		UpdatedAt: now,
	})
	return domain.MatchResult{Status: domain.MatchWaiting}, nil
}

// cancelLocked cancels the waiting entries of token.
func (r *MemoryRepo) cancelLocked(token string, now time.Time) {
	for _, e := range r.queue {
		if e.Token == token && e.Status == domain.QueueWaiting {
			e.Status = domain.QueueCancelled
			e.UpdatedAt = now
		}
	}
}

// compactQueueLocked drops cancelled entries and matched entries last touched
// before matchedBefore, so neither polling nor pairing grows the queue.
func (r *MemoryRepo) compactQueueLocked(matchedBefore time.Time) {
	r.queue = slices.DeleteFunc(r.queue, func(e *domain.QueueEntry) bool {
		switch e.Status {
		case domain.QueueCancelled:
			return true
		case domain.QueueMatched:
			return e.UpdatedAt.Before(matchedBefore)
		}
		return false
	})
}

func (r *MemoryRepo) CancelMatchmaking(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for _, e := range r.queue {
		if e.Token == token && e.Status != domain.QueueCancelled {
			e.Status = domain.QueueCancelled
			e.UpdatedAt = now
		}
	}
	r.compactQueueLocked(time.Time{})
	return nil
}

func (r *MemoryRepo) ExpireWaiting(ctx context.Context, before time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, e := range r.queue {
		if e.Status == domain.QueueWaiting && e.CreatedAt.Before(before) {
			e.Status = domain.QueueCancelled
			n++
		}
	}
	r.compactQueueLocked(time.Time{})
	return n, nil
}
