package storage_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dannyz30w/wavelength-games/domain"
	"github.com/dannyz30w/wavelength-games/game"
	"github.com/dannyz30w/wavelength-games/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func matchRoom() domain.Room {
	return domain.Room{
		Code:       nextCode(),
		Status:     domain.RoomWaiting,
		Mode:       domain.ModeTwoPlayer,
		MaxPlayers: 2,
	}
}

// clearQueue expires whatever earlier tests left waiting in a shared database.
func clearQueue(t *testing.T, repo game.Store) {
	t.Helper()
	_, err := repo.ExpireWaiting(context.Background(), time.Now().Add(time.Hour))
	require.NoError(t, err)
}

func TestMatchmake(t *testing.T) {
	forEachRepo(t, func(t *testing.T, repo game.Store) {
		ctx := context.Background()
		clearQueue(t, repo)
		ttl := time.Minute
		alice, bob := nextToken("alice"), nextToken("bob")

		res, err := repo.Matchmake(ctx, alice, "Alice", matchRoom(), ttl)
		require.NoError(t, err)
		assert.Equal(t, domain.MatchWaiting, res.Status)

		// Polling again does not pair alice with herself.
		res, err = repo.Matchmake(ctx, alice, "Alice", matchRoom(), ttl)
		require.NoError(t, err)
		assert.Equal(t, domain.MatchWaiting, res.Status)

		res, err = repo.Matchmake(ctx, bob, "Bob", matchRoom(), ttl)
		require.NoError(t, err)
		require.Equal(t, domain.MatchMatched, res.Status)
		assert.NotEmpty(t, res.RoomCode)

		room, err := repo.GetRoomByCode(ctx, res.RoomCode)
		require.NoError(t, err)
		assert.Equal(t, alice, room.HostToken, "the waiting player hosts")
		assert.Equal(t, domain.ModeTwoPlayer, room.Mode)

		players, err := repo.ListPlayers(ctx, room.Id)
		require.NoError(t, err)
		require.Len(t, players, 1)
		assert.Equal(t, "Alice", players[0].Name)

		polled, err := repo.Matchmake(ctx, alice, "Alice", matchRoom(), ttl)
		require.NoError(t, err)
		assert.Equal(t, res, polled)

		polled, err = repo.Matchmake(ctx, bob, "Bob", matchRoom(), ttl)
		require.NoError(t, err)
		assert.Equal(t, res, polled)
	})
}

func TestMatchmake_LeftRoomIsNotHandedBack(t *testing.T) {
	forEachRepo(t, func(t *testing.T, repo game.Store) {
		ctx := context.Background()
		clearQueue(t, repo)
		ttl := time.Minute
		alice, bob := nextToken("alice"), nextToken("bob")

		_, err := repo.Matchmake(ctx, alice, "Alice", matchRoom(), ttl)
		require.NoError(t, err)
		res, err := repo.Matchmake(ctx, bob, "Bob", matchRoom(), ttl)
		require.NoError(t, err)
		require.Equal(t, domain.MatchMatched, res.Status)

		guest, err := repo.AddPlayer(ctx, res.RoomId, domain.Player{Token: bob, Name: "Bob", Role: domain.RoleSpectator})
		require.NoError(t, err)
		_, err = repo.RemovePlayer(ctx, guest.Id)
		require.NoError(t, err)

		// bob left, alice still hosts the room and keeps getting it back.
		again, err := repo.Matchmake(ctx, bob, "Bob", matchRoom(), ttl)
		require.NoError(t, err)
		assert.Equal(t, domain.MatchWaiting, again.Status)
		clearQueue(t, repo)

		polled, err := repo.Matchmake(ctx, alice, "Alice", matchRoom(), ttl)
		require.NoError(t, err)
		assert.Equal(t, res, polled)

		players, err := repo.ListPlayers(ctx, res.RoomId)
		require.NoError(t, err)
		require.Len(t, players, 1)
		_, err = repo.RemovePlayer(ctx, players[0].Id)
		require.NoError(t, err)

		again, err = repo.Matchmake(ctx, alice, "Alice", matchRoom(), ttl)
		require.NoError(t, err)
		assert.Equal(t, domain.MatchWaiting, again.Status)
	})
}

func TestMatchmake_CodeTaken(t *testing.T) {
	forEachRepo(t, func(t *testing.T, repo game.Store) {
		ctx := context.Background()
		clearQueue(t, repo)
		ttl := time.Minute
		taken, _ := newRoom(t, repo, 2)
		alice, bob := nextToken("alice"), nextToken("bob")

		_, err := repo.Matchmake(ctx, alice, "Alice", matchRoom(), ttl)
		require.NoError(t, err)

		clash := matchRoom()
		clash.Code = taken.Code
		_, err = repo.Matchmake(ctx, bob, "Bob", clash, ttl)
		assert.ErrorIs(t, err, domain.ErrDuplicateRoomCode)

		// Nothing was consumed: alice is still waiting for bob.
		res, err := repo.Matchmake(ctx, bob, "Bob", matchRoom(), ttl)
		require.NoError(t, err)
		assert.Equal(t, domain.MatchMatched, res.Status)
	})
}

func TestMatchmake_Cancel(t *testing.T) {
	forEachRepo(t, func(t *testing.T, repo game.Store) {
		ctx := context.Background()
		clearQueue(t, repo)
		ttl := time.Minute
		alice, bob := nextToken("alice"), nextToken("bob")

		_, err := repo.Matchmake(ctx, alice, "Alice", matchRoom(), ttl)
		require.NoError(t, err)
		require.NoError(t, repo.CancelMatchmaking(ctx, alice))
		require.NoError(t, repo.CancelMatchmaking(ctx, alice))

		res, err := repo.Matchmake(ctx, bob, "Bob", matchRoom(), ttl)
		require.NoError(t, err)
		assert.Equal(t, domain.MatchWaiting, res.Status)

		n, err := repo.ExpireWaiting(ctx, time.Now().Add(time.Second))
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}

func TestMatchmake_ConcurrentPairsCreateOneRoom(t *testing.T) {
	forEachRepo(t, func(t *testing.T, repo game.Store) {
		ctx := context.Background()
		clearQueue(t, repo)
		ttl := time.Minute
		tokens := []string{nextToken("p"), nextToken("p")}

		results := make([]domain.MatchResult, len(tokens))
		var wg sync.WaitGroup
		for i, token := range tokens {
			wg.Add(1)
			go func() {
				defer wg.Done()
				// Each player polls until it is matched.
				for range 20 {
					res, err := repo.Matchmake(ctx, token, "Player", matchRoom(), ttl)
					if !assert.NoError(t, err) {
						return
					}
					if res.Status == domain.MatchMatched {
						results[i] = res
						return
					}
					time.Sleep(5 * time.Millisecond)
				}
			}()
		}
		wg.Wait()

		require.Equal(t, domain.MatchMatched, results[0].Status)
		require.Equal(t, domain.MatchMatched, results[1].Status)
		assert.Equal(t, results[0].RoomCode, results[1].RoomCode)
	})
}

func TestMemoryRepo_PrunesExpiredMatches(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemoryRepo()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	repo.SetClock(func() time.Time { return now })

	for _, token := range []string{"alice", "bob"} {
		_, err := repo.Matchmake(ctx, token, token, matchRoom(), time.Minute)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, repo.QueueLen(), "both matched entries are kept while they can be polled")

	now = now.Add(2 * time.Minute)
	res, err := repo.Matchmake(ctx, "carl", "Carl", matchRoom(), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, domain.MatchWaiting, res.Status)
	assert.Equal(t, 1, repo.QueueLen(), "only carl's waiting entry is left")
}

func TestMatchmake_MatchTTLRunsOnStoreClock(t *testing.T) {
	forEachRepo(t, func(t *testing.T, repo game.Store) {
		ctx := context.Background()
		clearQueue(t, repo)
		alice, bob := nextToken("alice"), nextToken("bob")

		_, err := repo.Matchmake(ctx, alice, "Alice", matchRoom(), time.Minute)
		require.NoError(t, err)
		res, err := repo.Matchmake(ctx, bob, "Bob", matchRoom(), time.Minute)
		require.NoError(t, err)
		require.Equal(t, domain.MatchMatched, res.Status)

		polled, err := repo.Matchmake(ctx, alice, "Alice", matchRoom(), time.Minute)
		require.NoError(t, err)
		assert.Equal(t, res, polled)

		// The store measures the age of the match itself; no caller clock is involved.
		time.Sleep(20 * time.Millisecond)
		expired, err := repo.Matchmake(ctx, alice, "Alice", matchRoom(), 5*time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, domain.MatchWaiting, expired.Status)
		clearQueue(t, repo)
	})
}
