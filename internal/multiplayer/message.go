// internal/multiplayer/message.go
package multiplayer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mindspar/mindspar/internal/models"
)

// MessageType tags a SessionMessage. The Data payload shape is determined
// by the type; see the payload structs below.
type MessageType string

const (
	MsgJoin         MessageType = "join"
	MsgLeave        MessageType = "leave"
	MsgReady        MessageType = "ready"
	MsgStartGame    MessageType = "start-game"
	MsgEndGame      MessageType = "end-game"
	MsgChat         MessageType = "chat"
	MsgSync         MessageType = "sync"
	MsgPlayerUpdate MessageType = "player-update"
	MsgAnswer       MessageType = "answer"
)

// SessionMessage is the envelope for all room-control and in-game traffic,
// whether it travels over the relay or a direct peer link.
//
// Timestamp is the sender-local send time in unix milliseconds. It is used
// for display and ordering heuristics only, never for authoritative
// ordering. The ID is used for duplicate suppression when the same message
// arrives via both the relay and a peer link.
type SessionMessage struct {
	ID        uuid.UUID       `json:"id"`
	Type      MessageType     `json:"type"`
	PlayerID  uuid.UUID       `json:"playerId"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// JoinPayload announces a new member. Room carries the authoritative
// post-join snapshot so receivers reconcile membership rather than apply
// deltas blindly.
type JoinPayload struct {
	Player *models.Player `json:"player"`
	Room   *models.Room   `json:"room"`
}

// LeavePayload announces a departure. Room is the authoritative post-leave
// snapshot, including any re-elected host. It is nil when the room emptied
// and was deleted.
type LeavePayload struct {
	PlayerID uuid.UUID    `json:"playerId"`
	Room     *models.Room `json:"room,omitempty"`
}

// ReadyPayload carries a readiness toggle.
type ReadyPayload struct {
	IsReady bool `json:"isReady"`
}

// StartGamePayload announces the host starting the game.
type StartGamePayload struct {
	GameMode string `json:"gameMode"`
}

// EndGamePayload announces the end of a round. Winner is zero when the
// embedded game did not declare one.
type EndGamePayload struct {
	Winner uuid.UUID `json:"winner,omitempty"`
}

// ChatPayload is a transmitted chat entry. System chat is synthesized
// locally and never appears on the wire.
type ChatPayload = models.ChatMessage

// SyncPayload carries a full authoritative room snapshot for
// reconciliation.
type SyncPayload struct {
	Room *models.Room `json:"room"`
}

// PlayerUpdatePayload carries a mid-game score report for the sending
// player.
type PlayerUpdatePayload struct {
	Score int `json:"score"`
}

// AnswerPayload carries game-specific answer traffic. The answer shape is
// owned by the embedded game and opaque to this layer.
type AnswerPayload struct {
	Answer json.RawMessage `json:"answer"`
	SentAt int64           `json:"sentAt"`
}

// NewMessage builds a SessionMessage of the given type, marshaling the
// payload into Data. A nil payload leaves Data empty.
func NewMessage(typ MessageType, playerID uuid.UUID, payload interface{}) (SessionMessage, error) {
	msg := SessionMessage{
		ID:        uuid.New(),
		Type:      typ,
		PlayerID:  playerID,
		Timestamp: time.Now().UnixMilli(),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return SessionMessage{}, fmt.Errorf("marshal %s payload: %w", typ, err)
		}
		msg.Data = data
	}
	return msg, nil
}

// DecodePayload unmarshals the message data into v.
func (m SessionMessage) DecodePayload(v interface{}) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("%s message has no payload", m.Type)
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Type, err)
	}
	return nil
}
