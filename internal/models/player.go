// internal/models/player.go
package models

import "github.com/google/uuid"

// Player is one participant in a room. The ID is assigned at join time and
// is stable for the lifetime of the session membership.
type Player struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"` // display name, not guaranteed unique
	IsHost  bool      `json:"isHost"`
	IsReady bool      `json:"isReady"`

	// Ping is a best-effort round-trip estimate in milliseconds. Advisory
	// only, never used for authoritative decisions.
	Ping int `json:"ping"`

	// Score is populated only once a game round is in progress.
	Score *int `json:"score,omitempty"`
}

// Clone returns a deep copy of the player.
func (p *Player) Clone() *Player {
	cp := *p
	if p.Score != nil {
		s := *p.Score
		cp.Score = &s
	}
	return &cp
}
