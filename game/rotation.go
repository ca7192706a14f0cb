package game

import (
	"slices"

	"github.com/dannyz30w/wavelength-games/domain"
)

// RoundRoles is who gave the clue and who guessed in one round.
type RoundRoles struct {
	ClueGiver string
	Guesser   string
}

// NextAssignment picks the clue-giver and guesser of the next round from the
// room's ordered round history and the tokens of the players currently in the
// room. It is deterministic for a given input.
func NextAssignment(history []RoundRoles, players []string) (RoundRoles, error) {
	ids := slices.Clone(players)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	if len(ids) < 2 {
		return RoundRoles{}, domain.ErrNotEnoughPlayers
	}
	if len(ids) == 2 {
		return nextForPair(history, ids[0], ids[1]), nil
	}
	return nextForGroup(history, ids), nil
}

// nextForPair swaps the roles of the most recent round either player took part in.
func nextForPair(history []RoundRoles, a, b string) RoundRoles {
	for i := len(history) - 1; i >= 0; i-- {
		r := history[i]
		switch {
		case r.ClueGiver == a, r.Guesser == b:
			return RoundRoles{ClueGiver: b, Guesser: a}
		case r.ClueGiver == b, r.Guesser == a:
			return RoundRoles{ClueGiver: a, Guesser: b}
		}
	}
	return RoundRoles{ClueGiver: a, Guesser: b}
}

type participation struct {
	lastClue  int
	lastGuess int
}

func (p participation) never() bool { return p.lastClue < 0 && p.lastGuess < 0 }

func (p participation) guessedLast() bool { return p.lastGuess > p.lastClue }

func (p participation) cluedLast() bool { return p.lastClue > p.lastGuess }

func nextForGroup(history []RoundRoles, ids []string) RoundRoles {
	stats := make(map[string]*participation, len(ids))
	for _, id := range ids {
		stats[id] = &participation{lastClue: -1, lastGuess: -1}
	}
	for i, r := range history {
		if p, ok := stats[r.ClueGiver]; ok {
			p.lastClue = i
		}
		if p, ok := stats[r.Guesser]; ok {
			p.lastGuess = i
		}
	}

	previous := ""
	if len(history) > 0 {
		previous = history[len(history)-1].ClueGiver
	}

	clueGiver, ok := pickLeastRecent(ids, func(id string) (int, bool) {
		p := stats[id]
		return p.lastClue, p.never() || p.guessedLast()
	})
	if !ok {
		clueGiver = roundRobin(ids, previous, "")
	}

	guesser, ok := pickLeastRecent(ids, func(id string) (int, bool) {
		p := stats[id]
		return p.lastGuess, id != clueGiver && (p.never() || p.cluedLast())
	})
	if !ok {
		guesser = roundRobin(ids, clueGiver, clueGiver)
	}

	return RoundRoles{ClueGiver: clueGiver, Guesser: guesser}
}

// pickLeastRecent returns the eligible id with the smallest recency, ties
// going to the first id in sorted order.
func pickLeastRecent(ids []string, rank func(id string) (recency int, eligible bool)) (string, bool) {
	best, bestRecency := "", 0
	for _, id := range ids {
		recency, eligible := rank(id)
		if !eligible {
			continue
		}
		if best == "" || recency < bestRecency {
			best, bestRecency = id, recency
		}
	}
	return best, best != ""
}

// roundRobin returns the first id after `after` in sorted cyclic order that is
// not `skip`. `after` does not have to be in ids.
func roundRobin(ids []string, after, skip string) string {
	start, _ := slices.BinarySearch(ids, after)
	if start < len(ids) && ids[start] == after {
		start++
	}
	for i := range ids {
		id := ids[(start+i)%len(ids)]
		if id != skip {
			return id
		}
	}
	return ids[0]
}
