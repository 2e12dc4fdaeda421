// internal/models/chat.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Chat message kinds. System messages are synthesized locally by each
// coordinator in response to session events and are never transmitted.
const (
	ChatTypeMessage = "message"
	ChatTypeSystem  = "system"
)

// ChatMessage is a single lobby chat entry.
type ChatMessage struct {
	ID         uuid.UUID `json:"id"`
	PlayerID   uuid.UUID `json:"playerId"`
	PlayerName string    `json:"playerName"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
	Type       string    `json:"type"` // "message" or "system"
}
