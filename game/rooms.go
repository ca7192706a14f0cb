package game

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dannyz30w/wavelength-games/domain"
	"github.com/dannyz30w/wavelength-games/events"
	"github.com/dannyz30w/wavelength-games/logger"
	"github.com/skip2/go-qrcode"
)

const (
	DefaultMaxPlayers = 8
	TwoPlayerCapacity = 2
	qrSize            = 256
)

type CreateRoomParams struct {
	HostToken string
	HostName  string
	Private   bool
	Mode      domain.RoomMode
}

// CreatedRoom carries the clear text password of a private room. It is only
// ever handed to the host that created it.
type CreatedRoom struct {
	Room     domain.Room   `json:"room"`
	Host     domain.Player `json:"player"`
	Password string        `json:"password,omitempty"`
}

type JoinRoomParams struct {
	Code     string
	Token    string
	Name     string
	Password string
}

type RoomOptions struct {
	MaxPlayers int
	PublicURL  string
}

type RoomService struct {
	store     Store
	hasher    PasswordHasher
	codes     CodeGenerator
	publisher EventPublisher
	opts      RoomOptions
}

func NewRoomService(store Store, hasher PasswordHasher, codes CodeGenerator, publisher EventPublisher, opts RoomOptions) *RoomService {
	if opts.MaxPlayers < TwoPlayerCapacity {
		opts.MaxPlayers = DefaultMaxPlayers
	}
	opts.PublicURL = strings.TrimRight(opts.PublicURL, "/")
	return &RoomService{
		store:     store,
		hasher:    hasher,
		codes:     codes,
		publisher: publisher,
		opts:      opts,
	}
}

func (s *RoomService) capacity(mode domain.RoomMode) (int, error) {
	switch mode {
	case domain.ModeTwoPlayer:
		return TwoPlayerCapacity, nil
	case domain.ModeParty:
		return s.opts.MaxPlayers, nil
	}
	return 0, domain.ErrUnknownMode
}

func (s *RoomService) CreateRoom(ctx context.Context, params CreateRoomParams) (CreatedRoom, error) {
	if err := validateToken(params.HostToken); err != nil {
		return CreatedRoom{}, err
	}
	name, err := normalizeName(params.HostName)
	if err != nil {
		return CreatedRoom{}, err
	}
	if params.Mode == "" {
		params.Mode = domain.ModeParty
	}
	maxPlayers, err := s.capacity(params.Mode)
	if err != nil {
		return CreatedRoom{}, err
	}

	room := domain.Room{
		HostToken:  params.HostToken,
		Private:    params.Private,
		Status:     domain.RoomWaiting,
		Mode:       params.Mode,
		MaxPlayers: maxPlayers,
	}

	var password string
	if params.Private {
		password = s.codes.Password()
		room.PasswordHash, err = s.hasher.Hash(password)
		if err != nil {
			return CreatedRoom{}, err
		}
	}

	host := domain.Player{
		Token:  params.HostToken,
		Name:   name,
		Role:   domain.RoleSpectator,
		IsHost: true,
	}

	for range codeAttempts {
		room.Code = s.codes.RoomCode()
		created, hostRow, err := s.store.CreateRoom(ctx, room, host)
		if errors.Is(err, domain.ErrDuplicateRoomCode) {
			logger.Debugf("room code %s taken, retrying", room.Code)
			continue
		}
		if err != nil {
			return CreatedRoom{}, err
		}

		s.publish(created.Id, events.KindRoom)
		return CreatedRoom{Room: created, Host: hostRow, Password: password}, nil
	}

	return CreatedRoom{}, fmt.Errorf("no free room code after %d attempts: %w", codeAttempts, domain.ErrDuplicateRoomCode)
}

func (s *RoomService) JoinRoom(ctx context.Context, params JoinRoomParams) (domain.Player, error) {
	code, err := NormalizeCode(params.Code)
	if err != nil {
		return domain.Player{}, err
	}
	if err := validateToken(params.Token); err != nil {
		return domain.Player{}, err
	}
	name, err := normalizeName(params.Name)
	if err != nil {
		return domain.Player{}, err
	}

	room, err := s.store.GetRoomByCode(ctx, code)
	if err != nil {
		return domain.Player{}, err
	}

	if room.Private && room.PasswordHash != "" {
		ok, err := s.hasher.Compare(room.PasswordHash, strings.TrimSpace(params.Password))
		if err != nil {
			return domain.Player{}, err
		}
		if !ok {
			return domain.Player{}, domain.ErrWrongPassword
		}
	}

	if room.Status == domain.RoomFinished {
		return domain.Player{}, domain.ErrRoomFinished
	}

	player, err := s.store.AddPlayer(ctx, room.Id, domain.Player{
		RoomId: room.Id,
		Token:  params.Token,
		Name:   name,
		Role:   domain.RoleSpectator,
	})
	if err != nil {
		return domain.Player{}, err
	}

	s.publish(room.Id, events.KindPlayers)
	return player, nil
}

// LeaveRoom removes a player row. See RoomRepo.RemovePlayer for what else
// happens to the room.
func (s *RoomService) LeaveRoom(ctx context.Context, playerId string) error {
	removed, err := s.store.RemovePlayer(ctx, playerId)
	if err != nil {
		return err
	}
	s.publish(removed.RoomId, events.KindPlayers)
	return nil
}

// Leave removes the caller from the room with the given code.
func (s *RoomService) Leave(ctx context.Context, code, token string) error {
	room, err := s.roomByCode(ctx, code)
	if err != nil {
		return err
	}
	player, err := s.member(ctx, room.Id, token)
	if err != nil {
		return err
	}
	return s.LeaveRoom(ctx, player.Id)
}

func (s *RoomService) KickPlayer(ctx context.Context, code, hostToken, targetToken string) error {
	room, err := s.roomByCode(ctx, code)
	if err != nil {
		return err
	}
	if room.HostToken != hostToken {
		return domain.ErrNotHost
	}
	if targetToken == hostToken {
		return domain.ErrCannotKickSelf
	}

	target, err := s.member(ctx, room.Id, targetToken)
	if errors.Is(err, domain.ErrNotInRoom) {
		return domain.ErrPlayerNotFound
	}
	if err != nil {
		return err
	}

	logger.Infof("host kicked player %s from room %s", target.Id, room.Code)
	return s.LeaveRoom(ctx, target.Id)
}

// History lists every round of the room in round_number order, with the
// target of a running round blanked for everyone but its clue-giver. Only
// members may read the history of a private room.
func (s *RoomService) History(ctx context.Context, code, viewerToken string) ([]domain.Round, error) {
	room, err := s.roomByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if room.Private {
		if _, err := s.member(ctx, room.Id, viewerToken); err != nil {
			return nil, err
		}
	}
	rounds, err := s.store.ListRounds(ctx, room.Id)
	if err != nil {
		return nil, err
	}
	for i := range rounds {
		if hideTarget(rounds[i], viewerToken) {
			rounds[i].TargetCenter = 0
		}
	}
	return rounds, nil
}

// JoinURL is the link encoded in a room's QR code.
func (s *RoomService) JoinURL(code string) string {
	return s.opts.PublicURL + "/join/" + code
}

// QRCode renders the join link of an existing room as a PNG.
func (s *RoomService) QRCode(ctx context.Context, code string) ([]byte, error) {
	room, err := s.roomByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(s.JoinURL(room.Code), qrcode.Medium, qrSize)
}

func (s *RoomService) roomByCode(ctx context.Context, code string) (domain.Room, error) {
	normalized, err := NormalizeCode(code)
	if err != nil {
		return domain.Room{}, err
	}
	return s.store.GetRoomByCode(ctx, normalized)
}

func (s *RoomService) member(ctx context.Context, roomId, token string) (domain.Player, error) {
	players, err := s.store.ListPlayers(ctx, roomId)
	if err != nil {
		return domain.Player{}, err
	}
	return findPlayer(players, token)
}

func (s *RoomService) publish(roomId string, kind events.Kind) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(events.Event{RoomId: roomId, Kind: kind, At: time.Now()})
}

func findPlayer(players []domain.Player, token string) (domain.Player, error) {
	for _, p := range players {
		if p.Token == token {
			return p, nil
		}
	}
	return domain.Player{}, domain.ErrNotInRoom
}
