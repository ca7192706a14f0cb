package events

import (
	"sync"
	"time"

	"github.com/dannyz30w/wavelength-games/logger"
)

type Kind string

const (
	KindRoom    Kind = "room"
	KindPlayers Kind = "players"
	KindRound   Kind = "round"
	KindNeedle  Kind = "needle"
)

// Event tells subscribers that something in a room changed. Apart from
// needle moves it carries no state: receivers re-read a snapshot.
type Event struct {
	RoomId string    `json:"room_id"`
	Kind   Kind      `json:"kind"`
	At     time.Time `json:"at"`
	Needle *Needle   `json:"needle,omitempty"`
}

// Needle is the guesser's live dial position. It is never persisted.
type Needle struct {
	RoundId     string  `json:"round_id"`
	Angle       float64 `json:"angle"`
	PlayerToken string  `json:"-"`
}

const (
	subscriberBuffer = 16
	sendTimeout      = time.Second
)

type subscriber struct {
	ch   chan Event
	done chan struct{}
}

// Hub fans room events out to the subscribers of that room.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[*subscriber]struct{}
	sendTimeout time.Duration
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]map[*subscriber]struct{}),
		sendTimeout: sendTimeout,
	}
}

// Subscribe registers a listener for roomId. The returned func unsubscribes;
// it is safe to call more than once. The channel is never closed, so
// receivers stop on their own context instead.
func (h *Hub) Subscribe(roomId string) (<-chan Event, func()) {
	sub := &subscriber{
		ch:   make(chan Event, subscriberBuffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	subs, ok := h.subscribers[roomId]
	if !ok {
		subs = make(map[*subscriber]struct{})
		h.subscribers[roomId] = subs
	}
	subs[sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers[roomId], sub)
			if len(h.subscribers[roomId]) == 0 {
				delete(h.subscribers, roomId)
			}
			h.mu.Unlock()
			close(sub.done)
		})
	}
}

// Publish delivers ev to every current subscriber of its room. A subscriber
// that stays full for longer than the send timeout misses the event and has
// to rely on its periodic resync. Sends happen outside the hub lock, so a
// slow subscriber only ever delays publishers to its own room.
func (h *Hub) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.subscribers[ev.RoomId]))
	for sub := range h.subscribers[ev.RoomId] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.ch <- ev:
			continue
		case <-sub.done:
			continue
		default:
		}

		timer := time.NewTimer(h.sendTimeout)
		select {
		case sub.ch <- ev:
		case <-sub.done:
		case <-timer.C:
			logger.Warningf("dropped %s event for room %s: subscriber too slow", ev.Kind, ev.RoomId)
		}
		timer.Stop()
	}
}

// Subscribers counts the listeners of a room.
func (h *Hub) Subscribers(roomId string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[roomId])
}
