package game_test

import (
	"context"
	"time"

	"github.com/dannyz30w/wavelength-games/domain"
	"github.com/dannyz30w/wavelength-games/game"
	"github.com/stretchr/testify/mock"
)

// --- Rooms ---

type MockRooms struct {
	mock.Mock
}

func (m *MockRooms) CreateRoom(ctx context.Context, params game.CreateRoomParams) (game.CreatedRoom, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(game.CreatedRoom), args.Error(1)
}

func (m *MockRooms) JoinRoom(ctx context.Context, params game.JoinRoomParams) (domain.Player, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(domain.Player), args.Error(1)
}

func (m *MockRooms) Leave(ctx context.Context, code, token string) error {
	args := m.Called(ctx, code, token)
	return args.Error(0)
}

func (m *MockRooms) KickPlayer(ctx context.Context, code, hostToken, targetToken string) error {
	args := m.Called(ctx, code, hostToken, targetToken)
	return args.Error(0)
}

func (m *MockRooms) Snapshot(ctx context.Context, code, viewerToken string) (game.Snapshot, error) {
	args := m.Called(ctx, code, viewerToken)
	return args.Get(0).(game.Snapshot), args.Error(1)
}

func (m *MockRooms) History(ctx context.Context, code, viewerToken string) ([]domain.Round, error) {
	args := m.Called(ctx, code, viewerToken)
	return args.Get(0).([]domain.Round), args.Error(1)
}

func (m *MockRooms) QRCode(ctx context.Context, code string) ([]byte, error) {
	args := m.Called(ctx, code)
	return args.Get(0).([]byte), args.Error(1)
}

// --- Rounds ---

type MockRounds struct {
	mock.Mock
}

func (m *MockRounds) StartRound(ctx context.Context, code, actorToken string) (domain.Round, error) {
	args := m.Called(ctx, code, actorToken)
	return args.Get(0).(domain.Round), args.Error(1)
}

func (m *MockRounds) SubmitClue(ctx context.Context, roundId, actorToken, text string) (domain.Round, error) {
	args := m.Called(ctx, roundId, actorToken, text)
	return args.Get(0).(domain.Round), args.Error(1)
}

func (m *MockRounds) SubmitGuess(ctx context.Context, roundId, actorToken string, value float64) (domain.Round, error) {
	args := m.Called(ctx, roundId, actorToken, value)
	return args.Get(0).(domain.Round), args.Error(1)
}

func (m *MockRounds) CompleteRound(ctx context.Context, roundId, actorToken string) (domain.Round, error) {
	args := m.Called(ctx, roundId, actorToken)
	return args.Get(0).(domain.Round), args.Error(1)
}

// --- Matchmaking ---

type MockMatchmaking struct {
	mock.Mock
}

func (m *MockMatchmaking) Enqueue(ctx context.Context, token, name string) (domain.MatchResult, error) {
	args := m.Called(ctx, token, name)
	return args.Get(0).(domain.MatchResult), args.Error(1)
}

func (m *MockMatchmaking) Cancel(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

// --- PeriodicTickerChannelCreator ---

type MockPeriodicTickerChannelCreator struct {
	mock.Mock
}

func (m *MockPeriodicTickerChannelCreator) Create(duration time.Duration) <-chan time.Time {
	args := m.Called(duration)
	return args.Get(0).(chan time.Time)
}
