package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/quillgame/quill/backend/go/internal/v1/bus"
	"github.com/quillgame/quill/backend/go/internal/v1/events"
	"github.com/quillgame/quill/backend/go/internal/v1/game"
	"github.com/quillgame/quill/backend/go/internal/v1/logging"
	"github.com/quillgame/quill/backend/go/internal/v1/metrics"
)

// LoopConfig carries the pacing knobs for one room's game loop.
type LoopConfig struct {
	// Rounds is how many times every member gets to draw.
	Rounds int
	// TurnDuration is the most a single turn may last.
	TurnDuration time.Duration
	// PollInterval is how often the loop checks the guessed set mid-turn.
	PollInterval time.Duration
	// TurnCooldown is the pause between turns. Zero skips the pause.
	TurnCooldown time.Duration
	// MaxReceiveRetries bounds failed channel receives over the loop's life.
	MaxReceiveRetries int
	// LobbyTimeout is how long an empty lobby may sit before it is reclaimed.
	LobbyTimeout time.Duration
}

func (c LoopConfig) withDefaults() LoopConfig {
	if c.Rounds < 1 {
		c.Rounds = 1
	}
	if c.TurnDuration <= 0 {
		c.TurnDuration = 60 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.MaxReceiveRetries <= 0 {
		c.MaxReceiveRetries = DefaultMaxReceiveRetries
	}
	if c.LobbyTimeout <= 0 {
		c.LobbyTimeout = time.Hour
	}
	return c
}

// Loop drives one room from lobby to finished game. It is spawned when the
// room is created, sleeps on the room channel until the owner starts the
// game, then runs every round and turn to completion.
type Loop struct {
	bus   *bus.Service
	rdb   *redis.Client
	room  *game.Room
	words *WordBank
	cfg   LoopConfig
	done  chan struct{}
}

// NewLoop builds the loop for a freshly created room.
func NewLoop(b *bus.Service, room *game.Room, words *WordBank, cfg LoopConfig) *Loop {
	return &Loop{
		bus:   b,
		rdb:   b.Client(),
		room:  room,
		words: words,
		cfg:   cfg.withDefaults(),
		done:  make(chan struct{}),
	}
}

// Start subscribes to the room channel and spawns the loop under the
// registry. Subscribing here, not in the goroutine, guarantees a START
// arriving right after room creation is not missed.
func (l *Loop) Start(reg *Registry) {
	sub := l.bus.Subscribe(reg.Context(), l.room.RoomID)
	// A blocked receive does not notice context cancellation; closing the
	// subscription is what unblocks a parked lobby on shutdown.
	reg.Go("game-loop-watch:"+l.room.RoomID, func(ctx context.Context) {
		select {
		case <-ctx.Done():
			_ = sub.Close()
		case <-l.done:
		}
	})
	reg.Go("game-loop:"+l.room.RoomID, func(ctx context.Context) {
		defer close(l.done)
		defer func() { _ = sub.Close() }()
		l.run(ctx, sub)
	})
}

func (l *Loop) run(ctx context.Context, sub *redis.PubSub) {
	metrics.ActiveRooms.Inc()
	defer metrics.ActiveRooms.Dec()

	logging.Info(ctx, "game loop waiting for start",
		zap.String("room_id", l.room.RoomID))

	if !l.awaitStart(ctx, sub) {
		return
	}
	if err := l.playRounds(ctx); err != nil {
		logging.Error(ctx, "game loop aborted",
			zap.String("room_id", l.room.RoomID), zap.Error(err))
		return
	}
	l.finish(ctx)
}

// awaitStart blocks until a GAME_STATE_CHANGE with status ongoing arrives
// on the room channel. It reports false when the loop should exit instead:
// the lobby sat empty past its timeout, the receive budget ran out, or the
// context was cancelled.
func (l *Loop) awaitStart(ctx context.Context, sub *redis.PubSub) bool {
	retries := 0
	sweepAt := time.Now().Add(l.cfg.LobbyTimeout)

	for {
		if ctx.Err() != nil {
			return false
		}
		wait := time.Until(sweepAt)
		if wait <= 0 {
			if l.sweepAbandonedLobby(ctx) {
				return false
			}
			sweepAt = time.Now().Add(l.cfg.LobbyTimeout)
			continue
		}

		msg, err := sub.ReceiveTimeout(ctx, wait)
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				// Quiet channel; loop around to the sweep check.
				continue
			}
			retries++
			if retries >= l.cfg.MaxReceiveRetries {
				logging.Error(ctx, "game loop lost the room channel; is redis running?",
					zap.String("room_id", l.room.RoomID),
					zap.Int("retries", retries),
					zap.Error(err))
				return false
			}
			continue
		}

		m, ok := msg.(*redis.Message)
		if !ok {
			// Subscription confirmations and pongs.
			continue
		}

		var probe eventProbe
		if err := json.Unmarshal([]byte(m.Payload), &probe); err != nil {
			continue
		}
		if probe.Type == events.TypeGameStateChange && probe.Data.Status == game.StatusOngoing {
			logging.Info(ctx, "game starting", zap.String("room_id", l.room.RoomID))
			return true
		}
	}
}

// sweepAbandonedLobby reclaims a lobby nobody ever connected to, or that
// everyone left before starting. It reports whether the room was reclaimed
// and the loop should exit.
func (l *Loop) sweepAbandonedLobby(ctx context.Context) bool {
	room, err := game.Load(ctx, l.rdb, l.room.RoomID)
	if err != nil {
		if errors.Is(err, game.ErrRoomNotFound) {
			// Already gone; nothing left to drive.
			return true
		}
		logging.Warn(ctx, "lobby sweep could not read room",
			zap.String("room_id", l.room.RoomID), zap.Error(err))
		return false
	}
	if room.Status != game.StatusLobby || len(room.Users) > 0 {
		return false
	}

	logging.Info(ctx, "reclaiming abandoned lobby", zap.String("room_id", l.room.RoomID))
	if err := room.End(ctx); err != nil {
		logging.Warn(ctx, "failed to mark abandoned lobby ended",
			zap.String("room_id", l.room.RoomID), zap.Error(err))
	}
	if err := room.Delete(ctx); err != nil {
		logging.Warn(ctx, "failed to delete abandoned lobby",
			zap.String("room_id", l.room.RoomID), zap.Error(err))
	}
	return true
}

// playRounds runs cfg.Rounds rounds. Each round re-reads the member list
// and gives every still-connected member one turn as the drawer.
func (l *Loop) playRounds(ctx context.Context) error {
	memberCount, err := l.room.MemberCount(ctx)
	if err != nil {
		return err
	}
	// One word per potential turn, drawn up front. Members can only leave
	// once the game is underway, so the pool never runs dry.
	pool := l.words.Draw(int(memberCount) * l.cfg.Rounds)

	for round := 0; round < l.cfg.Rounds; round++ {
		logging.Info(ctx, "round starting",
			zap.String("room_id", l.room.RoomID),
			zap.Int("round", round+1),
			zap.Int("rounds", l.cfg.Rounds))

		members, err := l.room.Members(ctx)
		if err != nil {
			return err
		}
		// The turn index is the member's slot in this round's snapshot, so
		// it resets each round and moves past skipped drawers.
		for idx, drawer := range members {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			connected, err := l.room.HasMember(ctx, drawer)
			if err != nil {
				return err
			}
			if !connected {
				logging.Info(ctx, "skipping disconnected drawer",
					zap.String("room_id", l.room.RoomID),
					zap.String("username", drawer.Username))
				continue
			}

			word := pool[len(pool)-1]
			pool = pool[:len(pool)-1]
			if err := l.runTurn(ctx, idx, drawer, word); err != nil {
				return err
			}
		}
	}
	return nil
}

// runTurn plays one member's turn: announce the word, wait until everyone
// guessed it or the clock runs out, then clear the turn state.
func (l *Loop) runTurn(ctx context.Context, turn int, drawer game.Member, word string) error {
	if err := l.room.SetAnswer(ctx, word); err != nil {
		return err
	}
	// The drawer knows the word; seeding them into the guessed set makes
	// the everyone-guessed check count only the actual guessers.
	if err := l.room.MarkGuessed(ctx, drawer); err != nil {
		return err
	}

	logging.Info(ctx, "turn starting",
		zap.String("room_id", l.room.RoomID),
		zap.Int("turn", turn),
		zap.String("username", drawer.Username))

	if err := l.bus.Publish(ctx, l.room.RoomID, events.NewTurnStart(drawer, word)); err != nil {
		return err
	}
	metrics.TurnsPlayed.Inc()

	l.pollUntilAllGuessed(ctx)

	if err := l.room.EndTurn(ctx); err != nil {
		return err
	}
	if err := l.bus.Publish(ctx, l.room.RoomID, events.NewTurnEnd(turn)); err != nil {
		return err
	}

	if l.cfg.TurnCooldown > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.cfg.TurnCooldown):
		}
	}
	return nil
}

// pollUntilAllGuessed returns once the guessed set covers every member or
// the turn clock runs out. The timeout is the ordinary nobody-got-it
// outcome, not an error.
func (l *Loop) pollUntilAllGuessed(ctx context.Context) {
	deadline := time.NewTimer(l.cfg.TurnDuration)
	defer deadline.Stop()
	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			logging.Info(ctx, "turn ran out of time", zap.String("room_id", l.room.RoomID))
			return
		case <-ticker.C:
			guessed, err := l.room.GuessedCount(ctx)
			if err != nil {
				logging.Warn(ctx, "failed reading guessed set",
					zap.String("room_id", l.room.RoomID), zap.Error(err))
				continue
			}
			members, err := l.room.MemberCount(ctx)
			if err != nil {
				logging.Warn(ctx, "failed counting members",
					zap.String("room_id", l.room.RoomID), zap.Error(err))
				continue
			}
			// >= instead of ==: a member leaving mid-turn shrinks the member
			// list but not the guessed set.
			if guessed >= members {
				logging.Info(ctx, "everyone guessed the answer",
					zap.String("room_id", l.room.RoomID))
				return
			}
		}
	}
}

// finish marks the game ended and broadcasts the final room snapshot. The
// closing GAME_STATE_CHANGE is what relays key their own shutdown on.
func (l *Loop) finish(ctx context.Context) {
	if err := l.room.End(ctx); err != nil {
		logging.Error(ctx, "failed to mark game ended",
			zap.String("room_id", l.room.RoomID), zap.Error(err))
		return
	}
	room, err := game.Load(ctx, l.rdb, l.room.RoomID)
	if err != nil {
		logging.Error(ctx, "finished game could not be re-read from cache",
			zap.String("room_id", l.room.RoomID), zap.Error(err))
		return
	}
	if err := l.bus.Publish(ctx, l.room.RoomID, events.NewGameStateChange(room)); err != nil {
		logging.Error(ctx, "failed to publish final game state",
			zap.String("room_id", l.room.RoomID), zap.Error(err))
		return
	}
	metrics.GamesCompleted.Inc()
	logging.Info(ctx, "game finished", zap.String("room_id", l.room.RoomID))
}
