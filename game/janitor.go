package game

import (
	"context"
	"time"

	"github.com/dannyz30w/wavelength-games/events"
	"github.com/dannyz30w/wavelength-games/logger"
)

type JanitorOptions struct {
	Interval time.Duration
	// RevealDuration is how long a round may sit in reveal before it is
	// completed on the players' behalf. Zero disables it.
	RevealDuration time.Duration
	// QueueTTL expires matchmaking entries nobody paired. Zero disables it.
	QueueTTL time.Duration
}

// Janitor runs the periodic server side chores: auto completing reveals and
// expiring the matchmaking queue. Failures are logged and retried on the
// next tick.
type Janitor struct {
	store     Store
	publisher EventPublisher
	tickers   PeriodicTickerChannelCreator
	opts      JanitorOptions
}

func NewJanitor(store Store, publisher EventPublisher, tickers PeriodicTickerChannelCreator, opts JanitorOptions) *Janitor {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	return &Janitor{
		store:     store,
		publisher: publisher,
		tickers:   tickers,
		opts:      opts,
	}
}

// Run blocks until ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	tick := j.tickers.Create(j.opts.Interval)
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-tick:
			j.Sweep(ctx, now)
		}
	}
}

// Sweep runs one pass of every chore as of now.
func (j *Janitor) Sweep(ctx context.Context, now time.Time) {
	if j.opts.RevealDuration > 0 {
		stale, err := j.store.StaleReveals(ctx, now.Add(-j.opts.RevealDuration))
		if err != nil {
			logger.Warningf("janitor: listing stale reveals: %v", err)
		}
		for _, r := range stale {
			if _, err := j.store.CompleteRound(ctx, r.Id); err != nil {
				logger.Debugf("janitor: completing round %s: %v", r.Id, err)
				continue
			}
			if j.publisher != nil {
				j.publisher.Publish(events.Event{RoomId: r.RoomId, Kind: events.KindRound, At: now})
			}
		}
	}

	if j.opts.QueueTTL > 0 {
		n, err := j.store.ExpireWaiting(ctx, now.Add(-j.opts.QueueTTL))
		if err != nil {
			logger.Warningf("janitor: expiring queue: %v", err)
		} else if n > 0 {
			logger.Debugf("janitor: expired %d matchmaking entries", n)
		}
	}
}
