package game

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/dannyz30w/wavelength-games/domain"
	"github.com/dannyz30w/wavelength-games/events"
	"github.com/dannyz30w/wavelength-games/logger"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	DefaultResyncInterval = 3 * time.Second
	pingInterval          = 30 * time.Second
	pongWait              = time.Minute
	writeWait             = 10 * time.Second

	CloseReturnedToLobby = "returned-to-lobby"

	// needleRate caps how often one guesser's needle is relayed.
	needleRate  = rate.Limit(20)
	needleBurst = 4
)

// NetworkSession is the room socket as the stream sees it.
type NetworkSession interface {
	Close(errCode string)
	Write(data []byte) error
	Read() ([]byte, error)
	Ping() error
}

type websocketConnection struct {
	socket *websocket.Conn
}

func (wc *websocketConnection) Write(data []byte) error {
	wc.socket.SetWriteDeadline(time.Now().Add(writeWait))
	return wc.socket.WriteMessage(websocket.BinaryMessage, data)
}

func (wc *websocketConnection) Ping() error {
	wc.socket.SetWriteDeadline(time.Now().Add(writeWait))
	return wc.socket.WriteMessage(websocket.PingMessage, nil)
}

func (wc *websocketConnection) Read() ([]byte, error) {
	_, p, err := wc.socket.ReadMessage()
	return p, err
}

func (wc *websocketConnection) Close(errCode string) {
	wc.socket.SetWriteDeadline(time.Now().Add(writeWait))
	wc.socket.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, errCode))
	wc.socket.Close()
}

func NewWebsocketConnection(conn *websocket.Conn) *websocketConnection {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	return &websocketConnection{conn}
}

// Bus is the room event bus as seen by the stream. Needle moves go back out
// through it, the rest is only received.
type Bus interface {
	Subscribe(roomId string) (<-chan events.Event, func())
	Publish(ev events.Event)
}

type roomStream struct {
	rooms   Rooms
	bus     Bus
	tickers PeriodicTickerChannelCreator
	resync  time.Duration
	now     func() time.Time
}

// run pushes a fresh snapshot to the viewer on every room event and on every
// resync tick, until the socket goes away, ctx ends or the viewer is no
// longer in the room. While the viewer is the guesser of a round in the
// guessing phase, the needle angles they send are relayed to the room.
func (s *roomStream) run(ctx context.Context, conn NetworkSession, code, roomId, viewerToken string) {
	evs, unsubscribe := s.bus.Subscribe(roomId)
	defer unsubscribe()

	needles := make(chan float64, 1)
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			data, err := conn.Read()
			if err != nil {
				return
			}
			angle, ok := needleAngle(data)
			if !ok {
				continue
			}
			// keep only the newest angle
			select {
			case <-needles:
			default:
			}
			needles <- angle
		}
	}()

	resync := s.tickers.Create(s.resync)
	ping := s.tickers.Create(pingInterval)
	throttle := rate.NewLimiter(needleRate, needleBurst)

	round, ok := s.push(ctx, conn, code, viewerToken)
	if !ok {
		return
	}

	for {
		select {
		case <-ctx.Done():
			conn.Close("")
			return
		case <-readerDone:
			conn.Close("")
			return
		case ev := <-evs:
			if ev.Kind == events.KindNeedle {
				if !s.relayNeedle(conn, ev.Needle, viewerToken) {
					return
				}
				continue
			}
			drain(evs)
			if round, ok = s.push(ctx, conn, code, viewerToken); !ok {
				return
			}
		case angle := <-needles:
			if round == nil || round.Phase != domain.PhaseGuessing || round.GuesserToken != viewerToken {
				continue
			}
			if !throttle.Allow() {
				continue
			}
			s.bus.Publish(events.Event{
				RoomId: roomId,
				Kind:   events.KindNeedle,
				At:     s.now(),
				Needle: &events.Needle{RoundId: round.Id, Angle: angle, PlayerToken: viewerToken},
			})
		case <-resync:
			if round, ok = s.push(ctx, conn, code, viewerToken); !ok {
				return
			}
		case <-ping:
			if err := conn.Ping(); err != nil {
				conn.Close("")
				return
			}
		}
	}
}

// needleAngle extracts the angle of an inbound needle frame. Anything else a
// client sends is ignored.
func needleAngle(data []byte) (float64, bool) {
	frame, err := events.DecodeFrame(data)
	if err != nil {
		return 0, false
	}
	if frame.GetFields()["type"].GetStringValue() != string(events.FrameNeedle) {
		return 0, false
	}
	value, ok := frame.GetFields()["payload"].GetStructValue().GetFields()["angle"]
	if !ok {
		return 0, false
	}
	angle := value.GetNumberValue()
	if math.IsNaN(angle) || angle < MinPosition || angle > MaxPosition {
		return 0, false
	}
	return angle, true
}

// relayNeedle forwards another player's needle move. It returns false once
// the stream is over.
func (s *roomStream) relayNeedle(conn NetworkSession, needle *events.Needle, viewerToken string) bool {
	if needle == nil || needle.PlayerToken == viewerToken {
		return true
	}
	data, err := events.EncodeFrame(events.FrameNeedle, map[string]any{
		"round_id":  needle.RoundId,
		"angle":     needle.Angle,
		"player_id": needle.PlayerToken,
	}, s.now())
	if err != nil {
		logger.Criticalf("encoding needle of round %s: %v", needle.RoundId, err)
		return true
	}
	if err := conn.Write(data); err != nil {
		conn.Close("")
		return false
	}
	return true
}

// drain drops state events already queued; one snapshot covers them all.
func drain(evs <-chan events.Event) {
	for {
		select {
		case <-evs:
		default:
			return
		}
	}
}

// push sends one snapshot and returns the round it showed. The bool is false
// once the stream is over.
func (s *roomStream) push(ctx context.Context, conn NetworkSession, code, viewerToken string) (*domain.Round, bool) {
	snap, err := s.rooms.Snapshot(ctx, code, viewerToken)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		conn.Close("")
		return nil, false
	case errors.Is(err, domain.ErrRoomNotFound), errors.Is(err, domain.ErrNotInRoom):
		s.removed(conn, code)
		return nil, false
	case err != nil:
		logger.Warningf("resync of room %s failed, retrying next cycle: %v", code, err)
		return nil, true
	}

	if snap.Self == nil {
		s.removed(conn, code)
		return nil, false
	}

	data, err := events.EncodeFrame(events.FrameSnapshot, snap, s.now())
	if err != nil {
		logger.Criticalf("encoding snapshot of room %s: %v", code, err)
		return snap.Round, true
	}
	if err := conn.Write(data); err != nil {
		conn.Close("")
		return nil, false
	}
	return snap.Round, true
}

func (s *roomStream) removed(conn NetworkSession, code string) {
	data, err := events.EncodeFrame(events.FrameRemoved, map[string]string{"room_code": code}, s.now())
	if err == nil {
		conn.Write(data)
	}
	conn.Close(CloseReturnedToLobby)
}
