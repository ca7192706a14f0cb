package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dannyz30w/wavelength-games/events"
	"github.com/dannyz30w/wavelength-games/logger"
)

const (
	RoomEventsChannel = "room_events"
	listenBackoffMin  = time.Second
	listenBackoffMax  = 30 * time.Second
)

type Publisher interface {
	Publish(ev events.Event)
}

// Listen republishes the room_events notifications of every instance sharing
// the database until ctx is done. Connection failures are logged and retried
// with backoff.
func (pgr *PostgresRepo) Listen(ctx context.Context, publisher Publisher) {
	backoff := listenBackoffMin
	for {
		err := pgr.listenOnce(ctx, publisher, func() { backoff = listenBackoffMin })
		if ctx.Err() != nil {
			return
		}
		logger.Warningf("room events listener: %v, retrying in %s", err, backoff)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, listenBackoffMax)
	}
}

func (pgr *PostgresRepo) listenOnce(ctx context.Context, publisher Publisher, connected func()) error {
	conn, err := pgr.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	// A connection that has LISTENed must not go back into the pool.
	listenConn := conn.Hijack()
	defer listenConn.Close(context.Background())

	if _, err := listenConn.Exec(ctx, "LISTEN "+RoomEventsChannel); err != nil {
		return err
	}
	connected()
	logger.Debugf("listening on %s", RoomEventsChannel)

	for {
		n, err := listenConn.WaitForNotification(ctx)
		if err != nil {
			return err
		}

		var ev events.Event
		if err := json.Unmarshal([]byte(n.Payload), &ev); err != nil {
			logger.Warningf("room events listener: bad payload %q: %v", n.Payload, err)
			continue
		}
		publisher.Publish(ev)
	}
}
