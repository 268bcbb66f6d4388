package game

import "fmt"

// Cache key layout, one family per room:
//
//	room:{id}:owner    JSON of the owner Member
//	room:{id}:status   lobby | ongoing | ended
//	room:{id}:users    list of member JSON, in join order
//	room:{id}:answer   the current turn's secret word
//	room:{id}:guessed  set of user ids that guessed this turn

func ownerKey(roomID string) string   { return fmt.Sprintf("room:%s:owner", roomID) }
func statusKey(roomID string) string  { return fmt.Sprintf("room:%s:status", roomID) }
func usersKey(roomID string) string   { return fmt.Sprintf("room:%s:users", roomID) }
func answerKey(roomID string) string  { return fmt.Sprintf("room:%s:answer", roomID) }
func guessedKey(roomID string) string { return fmt.Sprintf("room:%s:guessed", roomID) }
