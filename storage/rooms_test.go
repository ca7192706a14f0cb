package storage_test

import (
	"context"
	"sync"
	"testing"

	"github.com/dannyz30w/wavelength-games/domain"
	"github.com/dannyz30w/wavelength-games/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRoom(t *testing.T, repo game.Store, maxPlayers int) (domain.Room, domain.Player) {
	t.Helper()
	room, host, err := repo.CreateRoom(context.Background(), domain.Room{
		Code:       nextCode(),
		Status:     domain.RoomWaiting,
		Mode:       domain.ModeParty,
		MaxPlayers: maxPlayers,
	}, domain.Player{Token: nextToken("host"), Name: "Host", Role: domain.RoleSpectator})
	require.NoError(t, err)
	return room, host
}

func join(t *testing.T, repo game.Store, roomId, name string) domain.Player {
	t.Helper()
	p, err := repo.AddPlayer(context.Background(), roomId, domain.Player{
		Token: nextToken(name),
		Name:  name,
		Role:  domain.RoleSpectator,
	})
	require.NoError(t, err)
	return p
}

func TestCreateRoom(t *testing.T) {
	forEachRepo(t, func(t *testing.T, repo game.Store) {
		ctx := context.Background()
		room, host := newRoom(t, repo, 4)

		assert.NotEmpty(t, room.Id)
		assert.Equal(t, host.Token, room.HostToken)
		assert.Equal(t, domain.RoomWaiting, room.Status)
		assert.True(t, host.IsHost)
		assert.Equal(t, room.Id, host.RoomId)

		got, err := repo.GetRoomByCode(ctx, room.Code)
		require.NoError(t, err)
		assert.Equal(t, room.Id, got.Id)

		_, _, err = repo.CreateRoom(ctx, domain.Room{
			Code:       room.Code,
			Status:     domain.RoomWaiting,
			Mode:       domain.ModeParty,
			MaxPlayers: 4,
		}, domain.Player{Token: "someone", Name: "Someone"})
		assert.ErrorIs(t, err, domain.ErrDuplicateRoomCode)

		_, err = repo.GetRoomByCode(ctx, "ZZZZ")
		assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	})
}

func TestCreateRoom_PasswordHashKept(t *testing.T) {
	forEachRepo(t, func(t *testing.T, repo game.Store) {
		ctx := context.Background()
		room, _, err := repo.CreateRoom(ctx, domain.Room{
			Code:         nextCode(),
			Private:      true,
			PasswordHash: "$argon2id$hash",
			Status:       domain.RoomWaiting,
			Mode:         domain.ModeTwoPlayer,
			MaxPlayers:   2,
		}, domain.Player{Token: nextToken("host"), Name: "Host"})
		require.NoError(t, err)

		got, err := repo.GetRoomByCode(ctx, room.Code)
		require.NoError(t, err)
		assert.True(t, got.Private)
		assert.Equal(t, "$argon2id$hash", got.PasswordHash)
		assert.Equal(t, domain.ModeTwoPlayer, got.Mode)
	})
}

func TestAddPlayer(t *testing.T) {
	forEachRepo(t, func(t *testing.T, repo game.Store) {
		ctx := context.Background()
		room, host := newRoom(t, repo, 3)

		guest := join(t, repo, room.Id, "guest")
		assert.Equal(t, domain.RoleSpectator, guest.Role)
		assert.False(t, guest.IsHost)
		assert.Zero(t, guest.Score)

		again, err := repo.AddPlayer(ctx, room.Id, domain.Player{Token: guest.Token, Name: "Renamed"})
		require.NoError(t, err)
		assert.Equal(t, guest.Id, again.Id)
		assert.Equal(t, "guest", again.Name)

		join(t, repo, room.Id, "third")
		_, err = repo.AddPlayer(ctx, room.Id, domain.Player{Token: nextToken("late"), Name: "Late"})
		assert.ErrorIs(t, err, domain.ErrRoomFull)

		// A member already in a full room still gets its row back.
		again, err = repo.AddPlayer(ctx, room.Id, domain.Player{Token: host.Token, Name: "Host"})
		require.NoError(t, err)
		assert.Equal(t, host.Id, again.Id)

		players, err := repo.ListPlayers(ctx, room.Id)
		require.NoError(t, err)
		require.Len(t, players, 3)
		assert.Equal(t, host.Id, players[0].Id)
		assert.Equal(t, guest.Id, players[1].Id)

		_, err = repo.AddPlayer(ctx, "00000000-0000-0000-0000-000000000000", domain.Player{Token: "x", Name: "x"})
		assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	})
}

func TestAddPlayer_ConcurrentJoinsRespectCapacity(t *testing.T) {
	forEachRepo(t, func(t *testing.T, repo game.Store) {
		ctx := context.Background()
		room, _ := newRoom(t, repo, 4)

		var (
			wg     sync.WaitGroup
			mu     sync.Mutex
			joined int
			full   int
		)
		for i := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.AddPlayer(ctx, room.Id, domain.Player{Token: nextToken("racer"), Name: "Racer"})
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					joined++
				case assert.ErrorIs(t, err, domain.ErrRoomFull, "racer %d", i):
					full++
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 3, joined)
		assert.Equal(t, 5, full)

		players, err := repo.ListPlayers(ctx, room.Id)
		require.NoError(t, err)
		assert.Len(t, players, 4)
	})
}

func TestRemovePlayer(t *testing.T) {
	forEachRepo(t, func(t *testing.T, repo game.Store) {
		ctx := context.Background()
		room, host := newRoom(t, repo, 4)
		second := join(t, repo, room.Id, "second")
		third := join(t, repo, room.Id, "third")

		removed, err := repo.RemovePlayer(ctx, host.Id)
		require.NoError(t, err)
		assert.Equal(t, host.Token, removed.Token)

		got, err := repo.GetRoomByCode(ctx, room.Code)
		require.NoError(t, err)
		assert.Equal(t, second.Token, got.HostToken, "earliest joined player is promoted")

		promoted, err := repo.GetPlayer(ctx, second.Id)
		require.NoError(t, err)
		assert.True(t, promoted.IsHost)

		_, err = repo.RemovePlayer(ctx, host.Id)
		assert.ErrorIs(t, err, domain.ErrPlayerNotFound)

		_, err = repo.RemovePlayer(ctx, third.Id)
		require.NoError(t, err)
		got, err = repo.GetRoomByCode(ctx, room.Code)
		require.NoError(t, err)
		assert.NotEqual(t, domain.RoomFinished, got.Status)

		_, err = repo.RemovePlayer(ctx, second.Id)
		require.NoError(t, err)
		got, err = repo.GetRoomByCode(ctx, room.Code)
		require.NoError(t, err)
		assert.Equal(t, domain.RoomFinished, got.Status)

		players, err := repo.ListPlayers(ctx, room.Id)
		require.NoError(t, err)
		assert.Empty(t, players)
	})
}

func TestRemovePlayer_ClosesActiveRound(t *testing.T) {
	forEachRepo(t, func(t *testing.T, repo game.Store) {
		ctx := context.Background()
		room, host := newRoom(t, repo, 4)
		guesser := join(t, repo, room.Id, "guesser")
		bystander := join(t, repo, room.Id, "bystander")

		round, err := repo.InsertRound(ctx, testRound(room.Id, 1, host.Token, guesser.Token))
		require.NoError(t, err)

		_, err = repo.RemovePlayer(ctx, bystander.Id)
		require.NoError(t, err)
		got, err := repo.GetRound(ctx, round.Id)
		require.NoError(t, err)
		assert.Equal(t, domain.PhaseClueGiving, got.Phase, "spectators leaving do not end the round")

		_, err = repo.RemovePlayer(ctx, guesser.Id)
		require.NoError(t, err)
		got, err = repo.GetRound(ctx, round.Id)
		require.NoError(t, err)
		assert.Equal(t, domain.PhaseComplete, got.Phase)
		assert.Nil(t, got.Points)
		assert.NotNil(t, got.CompletedAt)
	})
}
