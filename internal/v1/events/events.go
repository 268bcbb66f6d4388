package events

import (
	"encoding/json"

	"github.com/quillgame/quill/backend/go/internal/v1/game"
)

// Type discriminates every event exchanged over sockets and room channels.
// On-wire names are lowercase; the set is closed.
type Type string

const (
	TypeStart           Type = "start"             // sent by a user to trigger a game start
	TypeConnect         Type = "connect"           // sent to the newly joined user
	TypeMemberJoin      Type = "member_join"       // sent to the room when a user joins
	TypeMemberLeave     Type = "member_leave"      // sent to the room when a user disconnects
	TypeOwnerChange     Type = "owner_change"      // sent when the room owner changes
	TypeGameStateChange Type = "game_state_change" // sent when the game starts or ends
	TypeMessage         Type = "message"           // sent when a user chats
	TypeCorrectGuess    Type = "correct_guess"     // sent when a user guesses the answer
	TypeDrawing         Type = "drawing"           // sent while a user draws on the board
	TypeTurnStart       Type = "turn_start"        // sent when a new turn starts
	TypeTurnEnd         Type = "turn_end"          // sent when a turn ends
	TypeError           Type = "error"             // sent to a user attempting an illegal action
)

var knownTypes = map[Type]struct{}{
	TypeStart:           {},
	TypeConnect:         {},
	TypeMemberJoin:      {},
	TypeMemberLeave:     {},
	TypeOwnerChange:     {},
	TypeGameStateChange: {},
	TypeMessage:         {},
	TypeCorrectGuess:    {},
	TypeDrawing:         {},
	TypeTurnStart:       {},
	TypeTurnEnd:         {},
	TypeError:           {},
}

// Known reports whether t belongs to the closed event set.
func Known(t Type) bool {
	_, ok := knownTypes[t]
	return ok
}

// Event is the envelope published on room channels and written to sockets.
type Event struct {
	Type Type `json:"event_type"`
	Data any  `json:"data"`
}

// Inbound is a client message before dispatch. Data stays raw until the
// handler for the event type decodes it.
type Inbound struct {
	Type Type            `json:"event_type"`
	Data json.RawMessage `json:"data"`
}

// ChatMessage is the payload of MESSAGE and CORRECT_GUESS events.
type ChatMessage struct {
	Username   string `json:"username"`
	Message    string `json:"message"`
	HasGuessed bool   `json:"has_guessed"`
}

// Drawing carries a drawer's board elements. Element contents are opaque to
// the server.
type Drawing struct {
	User     game.Member     `json:"user"`
	Elements json.RawMessage `json:"elements"`
}

// TurnStartData announces the drawer and the word for the turn.
type TurnStartData struct {
	User   game.Member `json:"user"`
	Answer string      `json:"answer"`
}

// TurnEndData closes the turn at index Turn.
type TurnEndData struct {
	Turn int `json:"turn"`
}

// MessageResponse is the {"message": ...} body carried by ERROR events.
type MessageResponse struct {
	Message string `json:"message"`
}

func NewConnect(room *game.Room) Event {
	return Event{Type: TypeConnect, Data: room}
}

func NewMemberJoin(m game.Member) Event {
	return Event{Type: TypeMemberJoin, Data: m}
}

func NewMemberLeave(m game.Member) Event {
	return Event{Type: TypeMemberLeave, Data: m}
}

func NewGameStateChange(room *game.Room) Event {
	return Event{Type: TypeGameStateChange, Data: room}
}

func NewChatMessage(msg ChatMessage) Event {
	return Event{Type: TypeMessage, Data: msg}
}

func NewCorrectGuess(msg ChatMessage) Event {
	return Event{Type: TypeCorrectGuess, Data: msg}
}

func NewDrawing(d Drawing) Event {
	return Event{Type: TypeDrawing, Data: d}
}

func NewTurnStart(drawer game.Member, answer string) Event {
	return Event{Type: TypeTurnStart, Data: TurnStartData{User: drawer, Answer: answer}}
}

func NewTurnEnd(turn int) Event {
	return Event{Type: TypeTurnEnd, Data: TurnEndData{Turn: turn}}
}

func NewError(message string) Event {
	return Event{Type: TypeError, Data: MessageResponse{Message: message}}
}
