package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/quillgame/quill/backend/go/internal/v1/bus"
	"github.com/quillgame/quill/backend/go/internal/v1/events"
	"github.com/quillgame/quill/backend/go/internal/v1/game"
	"github.com/quillgame/quill/backend/go/internal/v1/logging"
)

const (
	// DefaultMaxReceiveRetries bounds how many failed channel receives a
	// relay or game loop tolerates over its lifetime before giving up.
	DefaultMaxReceiveRetries = 50

	// writeWait is the deadline for a single socket write.
	writeWait = 10 * time.Second
)

// socket is the outbound half of a websocket connection. The connection
// handler keeps the reader side; everything written to the client funnels
// through here so writes never interleave.
type socket interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Broadcaster bridges one client's socket with its room's pub/sub channel.
// Events published on the channel, by this instance or any other, reach
// the client through the relay goroutine; events from the client reach the
// channel through Emit.
type Broadcaster struct {
	conn   socket
	bus    *bus.Service
	room   *game.Room
	member game.Member

	maxReceiveRetries int

	writeMu sync.Mutex
	done    chan struct{}
}

// NewBroadcaster wires a connected socket to a room. maxReceiveRetries <= 0
// selects the default budget.
func NewBroadcaster(conn socket, b *bus.Service, room *game.Room, member game.Member, maxReceiveRetries int) *Broadcaster {
	if maxReceiveRetries <= 0 {
		maxReceiveRetries = DefaultMaxReceiveRetries
	}
	return &Broadcaster{
		conn:              conn,
		bus:               b,
		room:              room,
		member:            member,
		maxReceiveRetries: maxReceiveRetries,
		done:              make(chan struct{}),
	}
}

// Member returns the member this broadcaster serves.
func (b *Broadcaster) Member() game.Member {
	return b.member
}

// SendPersonal writes an event to this client only, bypassing the channel.
func (b *Broadcaster) SendPersonal(event events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.Type, err)
	}
	return b.write(data)
}

// Emit publishes an event on the room channel, reaching every member's
// relay on every instance, including our own.
func (b *Broadcaster) Emit(ctx context.Context, event events.Event) error {
	return b.bus.Publish(ctx, b.room.RoomID, event)
}

// Join sends the CONNECT snapshot to this client, then announces
// MEMBER_JOIN to the room.
func (b *Broadcaster) Join(ctx context.Context) error {
	if err := b.SendPersonal(events.NewConnect(b.room)); err != nil {
		return err
	}
	return b.Emit(ctx, events.NewMemberJoin(b.member))
}

// Leave announces MEMBER_LEAVE to the room. The relay recognizes its own
// member's departure, closes the socket and exits.
func (b *Broadcaster) Leave(ctx context.Context) error {
	return b.Emit(ctx, events.NewMemberLeave(b.member))
}

// StartRelay subscribes to the room channel and spawns the relay under the
// registry. The subscription is established before this returns, so events
// emitted afterwards are not missed.
func (b *Broadcaster) StartRelay(reg *Registry) {
	sub := b.bus.Subscribe(reg.Context(), b.room.RoomID)
	// A blocked receive does not notice context cancellation; closing the
	// subscription is what unblocks the relay on shutdown.
	reg.Go("relay-watch:"+b.room.RoomID, func(ctx context.Context) {
		select {
		case <-ctx.Done():
			_ = sub.Close()
		case <-b.done:
		}
	})
	reg.Go("relay:"+b.room.RoomID, func(ctx context.Context) {
		defer close(b.done)
		defer func() { _ = sub.Close() }()
		b.relay(ctx, sub)
	})
}

// Wait blocks until the relay has exited. Connection handlers call this
// after Leave so the socket is not torn down under the relay.
func (b *Broadcaster) Wait() {
	<-b.done
}

func (b *Broadcaster) write(data []byte) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	_ = b.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return b.conn.WriteMessage(websocket.TextMessage, data)
}

// eventProbe decodes just enough of a published event to spot the two
// terminal cases: the closing GAME_STATE_CHANGE carries a room snapshot
// with its status, MEMBER_LEAVE carries the departing member's user id.
type eventProbe struct {
	Type events.Type `json:"event_type"`
	Data struct {
		Status game.Status `json:"status"`
		UserID uuid.UUID   `json:"user_id"`
	} `json:"data"`
}

// relay forwards everything published on the room channel to the socket.
// It exits after forwarding the game-over state change, or silently once
// its own member leaves, or when the receive retry budget is spent.
func (b *Broadcaster) relay(ctx context.Context, sub *redis.PubSub) {
	retries := 0
	for {
		msg, err := sub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			retries++
			if retries >= b.maxReceiveRetries {
				logging.Error(ctx, "relay lost the room channel; is redis running?",
					zap.String("room_id", b.room.RoomID),
					zap.String("user_id", b.member.UserID.String()),
					zap.Int("retries", retries),
					zap.Error(err))
				return
			}
			continue
		}

		payload := []byte(msg.Payload)
		var probe eventProbe
		if err := json.Unmarshal(payload, &probe); err != nil {
			logging.Warn(ctx, "dropping undecodable event from room channel",
				zap.String("room_id", b.room.RoomID), zap.Error(err))
			continue
		}

		switch {
		case probe.Type == events.TypeGameStateChange && probe.Data.Status == game.StatusEnded:
			// Game over. Forward the final snapshot, then stop relaying.
			if err := b.write(payload); err != nil {
				logging.Warn(ctx, "failed writing final game state to socket",
					zap.String("room_id", b.room.RoomID), zap.Error(err))
			}
			return
		case probe.Type == events.TypeMemberLeave && probe.Data.UserID == b.member.UserID:
			// Our member left; the goodbye is for the others.
			_ = b.conn.Close()
			return
		default:
			if err := b.write(payload); err != nil {
				logging.Warn(ctx, "failed writing event to socket",
					zap.String("room_id", b.room.RoomID),
					zap.String("event_type", string(probe.Type)),
					zap.Error(err))
			}
		}
	}
}
