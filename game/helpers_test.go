package game_test

import (
	"sync"
	"testing"
	"time"

	"github.com/dannyz30w/wavelength-games/crypto"
	"github.com/dannyz30w/wavelength-games/events"
	"github.com/dannyz30w/wavelength-games/game"
	"github.com/dannyz30w/wavelength-games/storage"
)

// scriptedCodes hands out the queued codes first, then unique generated ones.
type scriptedCodes struct {
	mu       sync.Mutex
	codes    []string
	password string
	n        int
}

func (c *scriptedCodes) RoomCode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.codes) > 0 {
		code := c.codes[0]
		c.codes = c.codes[1:]
		return code
	}
	c.n++
	out := make([]byte, game.RoomCodeLength)
	for i, n := len(out)-1, c.n; i >= 0; i-- {
		out[i] = game.RoomCodeChars[n%len(game.RoomCodeChars)]
		n /= len(game.RoomCodeChars)
	}
	return string(out)
}

func (c *scriptedCodes) Password() string {
	if c.password == "" {
		return "1234"
	}
	return c.password
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ev events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) kinds() []events.Kind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Kind, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Kind
	}
	return out
}

type fixedSetup struct {
	target game.Target
}

func (s fixedSetup) Target() game.Target { return s.target }

func (fixedSetup) Extremes() game.Extremes { return game.DefaultExtremes[0] }

type fixture struct {
	repo      *storage.MemoryRepo
	codes     *scriptedCodes
	publisher *recordingPublisher
	rooms     *game.RoomService
	rounds    *game.RoundService
	matcher   *game.Matchmaker
}

func newFixture(t *testing.T, codes ...string) *fixture {
	t.Helper()
	f := &fixture{
		repo:      storage.NewMemoryRepo(),
		codes:     &scriptedCodes{codes: codes},
		publisher: &recordingPublisher{},
	}
	hasher := crypto.NewArgon2idHasher(1, 8*1024, 16, 16, 1)
	f.rooms = game.NewRoomService(f.repo, hasher, f.codes, f.publisher, game.RoomOptions{
		MaxPlayers: 4,
		PublicURL:  "https://wavelength.test/",
	})
	setup := fixedSetup{target: game.Target{Center: 90, Width: 2 * game.DefaultBands.Extent()}}
	f.rounds = game.NewRoundService(f.repo, setup, f.publisher)
	f.matcher = game.NewMatchmaker(f.repo, f.codes, f.publisher, time.Minute)
	return f
}
