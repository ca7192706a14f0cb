package game

import (
	"fmt"
	"testing"

	"github.com/dannyz30w/wavelength-games/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func playRounds(t *testing.T, players []string, n int) []RoundRoles {
	t.Helper()
	var history []RoundRoles
	for range n {
		next, err := NextAssignment(history, players)
		require.NoError(t, err)
		require.NotEqual(t, next.ClueGiver, next.Guesser)
		history = append(history, next)
	}
	return history
}

func TestNextAssignment_NotEnoughPlayers(t *testing.T) {
	_, err := NextAssignment(nil, nil)
	assert.ErrorIs(t, err, domain.ErrNotEnoughPlayers)

	_, err = NextAssignment(nil, []string{"p1"})
	assert.ErrorIs(t, err, domain.ErrNotEnoughPlayers)

	_, err = NextAssignment(nil, []string{"p1", "p1"})
	assert.ErrorIs(t, err, domain.ErrNotEnoughPlayers)
}

func TestNextAssignment_TwoPlayersAlternate(t *testing.T) {
	players := []string{"zed", "amy"}

	first, err := NextAssignment(nil, players)
	require.NoError(t, err)
	assert.Equal(t, RoundRoles{ClueGiver: "amy", Guesser: "zed"}, first, "first round follows sorted id order")

	history := playRounds(t, players, 10)
	for i := 1; i < len(history); i++ {
		assert.Equal(t, history[i-1].ClueGiver, history[i].Guesser, "round %d", i+1)
		assert.Equal(t, history[i-1].Guesser, history[i].ClueGiver, "round %d", i+1)
	}
}

func TestNextAssignment_TwoPlayersAfterReplacement(t *testing.T) {
	// p2 left after guessing, p3 took their seat.
	history := []RoundRoles{{ClueGiver: "p1", Guesser: "p2"}}

	next, err := NextAssignment(history, []string{"p1", "p3"})
	require.NoError(t, err)
	assert.Equal(t, RoundRoles{ClueGiver: "p3", Guesser: "p1"}, next)
}

func TestNextAssignment_ThreePlayers(t *testing.T) {
	players := []string{"P3", "P1", "P2"}

	first, err := NextAssignment(nil, players)
	require.NoError(t, err)
	assert.Equal(t, RoundRoles{ClueGiver: "P1", Guesser: "P2"}, first)

	second, err := NextAssignment([]RoundRoles{first}, players)
	require.NoError(t, err)
	assert.NotEqual(t, "P1", second.ClueGiver)

	history := playRounds(t, players, 9)
	clues := map[string]int{}
	guesses := map[string]int{}
	for i, r := range history {
		clues[r.ClueGiver]++
		guesses[r.Guesser]++
		if i > 0 {
			assert.NotEqual(t, history[i-1].ClueGiver, r.ClueGiver, "round %d repeats the clue-giver", i+1)
		}
	}
	for _, p := range players {
		assert.Equal(t, 3, clues[p], "clues given by %s", p)
		assert.GreaterOrEqual(t, guesses[p], 2, "guesses made by %s", p)
	}
}

func TestNextAssignment_LargerGroupsAreFair(t *testing.T) {
	for size := 3; size <= 8; size++ {
		t.Run(fmt.Sprintf("%d players", size), func(t *testing.T) {
			players := make([]string, size)
			for i := range players {
				players[i] = fmt.Sprintf("player-%d", i)
			}

			history := playRounds(t, players, size*4)
			clues := map[string]int{}
			for _, r := range history {
				clues[r.ClueGiver]++
			}
			for _, p := range players {
				assert.GreaterOrEqual(t, clues[p], 2, "%s barely gave clues", p)
			}
		})
	}
}

func TestNextAssignment_LeaverIsExcluded(t *testing.T) {
	history := []RoundRoles{
		{ClueGiver: "a", Guesser: "b"},
		{ClueGiver: "b", Guesser: "c"},
	}

	next, err := NextAssignment(history, []string{"a", "c", "d"})
	require.NoError(t, err)
	assert.NotEqual(t, "b", next.ClueGiver)
	assert.NotEqual(t, "b", next.Guesser)
	assert.NotEqual(t, next.ClueGiver, next.Guesser)
}

func TestRoundRobin(t *testing.T) {
	ids := []string{"a", "b", "c"}

	assert.Equal(t, "b", roundRobin(ids, "a", ""))
	assert.Equal(t, "a", roundRobin(ids, "c", ""))
	assert.Equal(t, "c", roundRobin(ids, "bb", ""), "departed holder")
	assert.Equal(t, "c", roundRobin(ids, "a", "b"))
	assert.Equal(t, "a", roundRobin(ids, "", ""))
}
