// internal/models/room.go
package models

import "github.com/google/uuid"

// GameState describes where a room is in its lifecycle.
type GameState string

const (
	GameWaiting  GameState = "waiting"
	GameStarting GameState = "starting"
	GamePlaying  GameState = "playing"
	GameFinished GameState = "finished"
)

// Room is a joinable session container with bounded capacity. Name, GameMode
// and MaxPlayers are fixed at creation; everything else is mutated through
// the room session. Players is ordered by join time, which is what host
// re-election is derived from.
type Room struct {
	ID         string    `json:"id"` // short human-typeable join code
	Name       string    `json:"name"`
	GameMode   string    `json:"gameMode"`
	MaxPlayers int       `json:"maxPlayers"`
	Players    []*Player `json:"players"`
	GameState  GameState `json:"gameState"`
	HostID     uuid.UUID `json:"hostId"`
}

// Clone returns a deep copy of the room, safe to hand to callers outside
// the session lock.
func (r *Room) Clone() *Room {
	cp := *r
	cp.Players = make([]*Player, 0, len(r.Players))
	for _, p := range r.Players {
		cp.Players = append(cp.Players, p.Clone())
	}
	return &cp
}

// FindPlayer returns the player with the given id, or nil.
func (r *Room) FindPlayer(id uuid.UUID) *Player {
	for _, p := range r.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// IsFull reports whether the room is at capacity.
func (r *Room) IsFull() bool {
	return len(r.Players) >= r.MaxPlayers
}

// IsOpen reports whether the room is still joinable: waiting for players
// and below capacity.
func (r *Room) IsOpen() bool {
	return r.GameState == GameWaiting && !r.IsFull()
}
