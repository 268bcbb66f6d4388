package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/quillgame/quill/backend/go/internal/v1/game"
	"github.com/quillgame/quill/backend/go/internal/v1/logging"
	"github.com/quillgame/quill/backend/go/internal/v1/metrics"
)

// ErrMalformedMessage marks inbound client JSON that is missing required
// fields or uses an event type outside the closed set.
var ErrMalformedMessage = errors.New("malformed message")

// ErrOwnerOnly is the body of the ERROR event sent to a non-owner who tries
// to start the game.
const ownerOnlyMessage = "You do not own this room"

// Process turns one inbound client message into the event to deliver.
//
// START flips the room to ongoing when the sender owns it, otherwise the
// sender gets a personal ERROR. MESSAGE is scored against the current
// answer. DRAWING is stamped with the sending member. Every other known
// type passes through unchanged. The caller decides routing: ERROR events
// go back to the sender only, anything else is published to the room.
func Process(ctx context.Context, raw []byte, room *game.Room, member game.Member) (Event, error) {
	var msg Inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if msg.Type == "" {
		return Event{}, fmt.Errorf("%w: no event_type found", ErrMalformedMessage)
	}
	if len(msg.Data) == 0 || string(msg.Data) == "null" {
		return Event{}, fmt.Errorf("%w: no event data found", ErrMalformedMessage)
	}
	if !Known(msg.Type) {
		return Event{}, fmt.Errorf("%w: unknown event_type %q", ErrMalformedMessage, msg.Type)
	}

	switch msg.Type {
	case TypeStart:
		return processStart(ctx, room, member)
	case TypeMessage:
		return processChat(ctx, msg.Data, room, member)
	case TypeDrawing:
		return processDrawing(msg.Data, member)
	default:
		return Event{Type: msg.Type, Data: msg.Data}, nil
	}
}

func processStart(ctx context.Context, room *game.Room, member game.Member) (Event, error) {
	if !room.IsOwner(member) {
		return NewError(ownerOnlyMessage), nil
	}
	if err := room.Start(ctx); err != nil {
		return Event{}, err
	}
	return NewGameStateChange(room), nil
}

type chatBody struct {
	Message string `json:"message"`
}

func processChat(ctx context.Context, data json.RawMessage, room *game.Room, member game.Member) (Event, error) {
	var body chatBody
	if err := json.Unmarshal(data, &body); err != nil {
		return Event{}, fmt.Errorf("%w: bad message payload: %v", ErrMalformedMessage, err)
	}

	hasGuessed, err := room.HasGuessed(ctx, member)
	if err != nil {
		return Event{}, err
	}
	answer, err := room.Answer(ctx)
	if err != nil {
		return Event{}, err
	}

	if answer == "" {
		// Between turns, or the loop misfired; either way the message is
		// plain chat.
		logging.Warn(ctx, "no answer set for room", zap.String("room_id", room.RoomID))
		return NewChatMessage(ChatMessage{
			Username:   member.Username,
			Message:    body.Message,
			HasGuessed: hasGuessed,
		}), nil
	}

	correct := strings.EqualFold(body.Message, answer)
	switch {
	case correct && !hasGuessed:
		if err := room.MarkGuessed(ctx, member); err != nil {
			return Event{}, err
		}
		metrics.CorrectGuesses.Inc()
		return NewCorrectGuess(ChatMessage{
			Username:   member.Username,
			Message:    "Just guessed the answer!",
			HasGuessed: true,
		}), nil
	case correct:
		// Someone who already guessed is trying to leak the answer.
		return NewChatMessage(ChatMessage{
			Username:   member.Username,
			Message:    "****",
			HasGuessed: true,
		}), nil
	default:
		return NewChatMessage(ChatMessage{
			Username:   member.Username,
			Message:    body.Message,
			HasGuessed: hasGuessed,
		}), nil
	}
}

type drawingBody struct {
	Elements json.RawMessage `json:"elements"`
}

func processDrawing(data json.RawMessage, member game.Member) (Event, error) {
	var body drawingBody
	if err := json.Unmarshal(data, &body); err != nil {
		return Event{}, fmt.Errorf("%w: bad drawing payload: %v", ErrMalformedMessage, err)
	}
	return NewDrawing(Drawing{User: member, Elements: body.Elements}), nil
}
