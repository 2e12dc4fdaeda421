// internal/multiplayer/session.go
package multiplayer

import (
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/mindspar/mindspar/internal/models"
)

// RoomSession owns the authoritative state of a single room: who is in it,
// who is host, readiness flags, and the waiting -> starting -> playing ->
// finished lifecycle. All mutation goes through its methods; callers only
// ever see snapshots.
//
// Host rule: the first player to join an empty room is host. When the host
// leaves, the earliest-joined remaining player becomes host. The result is
// derived purely from the post-leave player ordering so every participant
// computes the same answer.
type RoomSession struct {
	mu   sync.Mutex
	room models.Room

	// OnEmpty is called after the last player leaves, with the lock
	// released. Typically assigned by the directory that stores this
	// session, e.g. sess.OnEmpty = func(id string) { dir.DeleteRoom(id) }
	OnEmpty func(roomID string)
}

// NewRoomSession creates a session in the waiting state with no players.
func NewRoomSession(id, name, gameMode string, maxPlayers int) *RoomSession {
	return &RoomSession{
		room: models.Room{
			ID:         id,
			Name:       name,
			GameMode:   gameMode,
			MaxPlayers: maxPlayers,
			Players:    []*models.Player{},
			GameState:  models.GameWaiting,
		},
	}
}

// Join appends the player and returns the post-join snapshot. The player's
// ready flag is reset regardless of what the caller set; the first player
// into an empty room becomes host. A player ID already in the room is an
// in-place re-join: membership stays unique by id and the original join
// order (and host flag) is kept. Fails with ErrRoomFull at capacity and
// does not mutate the room on failure.
func (s *RoomSession) Join(p *models.Player) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing := s.room.FindPlayer(p.ID); existing != nil {
		existing.Name = p.Name
		existing.IsReady = false
		return s.room.Clone(), nil
	}

	if s.room.IsFull() {
		return nil, ErrRoomFull
	}

	member := p.Clone()
	member.IsReady = false
	member.IsHost = len(s.room.Players) == 0
	if member.IsHost {
		s.room.HostID = member.ID
	}
	s.room.Players = append(s.room.Players, member)

	return s.room.Clone(), nil
}

// Leave removes the player and re-derives the host from the remaining join
// order. Returns the post-leave snapshot, or nil if the room emptied (in
// which case OnEmpty fires before Leave returns). Unknown players are a
// no-op.
func (s *RoomSession) Leave(playerID uuid.UUID) *models.Room {
	s.mu.Lock()

	idx := -1
	for i, p := range s.room.Players {
		if p.ID == playerID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return s.Snapshot()
	}

	s.room.Players = append(s.room.Players[:idx], s.room.Players[idx+1:]...)

	if len(s.room.Players) == 0 {
		roomID := s.room.ID
		onEmpty := s.OnEmpty
		s.mu.Unlock()
		if onEmpty != nil {
			onEmpty(roomID)
		}
		return nil
	}

	// Earliest-joined remaining player is host.
	for i, p := range s.room.Players {
		p.IsHost = i == 0
	}
	s.room.HostID = s.room.Players[0].ID

	snap := s.room.Clone()
	s.mu.Unlock()
	return snap
}

// SetReady sets the player's readiness while the room is waiting and
// returns the updated snapshot. Readiness is keyed by player id and
// idempotent, so re-delivery of a stale toggle is harmless.
func (s *RoomSession) SetReady(playerID uuid.UUID, ready bool) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.room.FindPlayer(playerID)
	if p == nil {
		return nil, ErrRoomNotFound
	}
	if s.room.GameState == models.GameWaiting {
		p.IsReady = ready
	}
	return s.room.Clone(), nil
}

// UpdateScore records a mid-game score report for the player.
func (s *RoomSession) UpdateScore(playerID uuid.UUID, score int) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.room.FindPlayer(playerID)
	if p == nil {
		return nil, ErrRoomNotFound
	}
	p.Score = &score
	return s.room.Clone(), nil
}

// Start transitions waiting -> starting -> playing. Only the current host
// may start; a non-host call (or a call outside waiting) is a no-op,
// reported via started=false so relays know not to announce a transition
// that never happened. Fails with ErrNotAllReady while any player is
// unready, leaving the room in waiting.
func (s *RoomSession) Start(playerID uuid.UUID) (snap *models.Room, started bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if playerID != s.room.HostID {
		log.Printf("room %s: ignoring start from non-host %s", s.room.ID, playerID)
		return s.room.Clone(), false, nil
	}
	if s.room.GameState != models.GameWaiting {
		return s.room.Clone(), false, nil
	}
	for _, p := range s.room.Players {
		if !p.IsReady {
			return nil, false, ErrNotAllReady
		}
	}

	// starting is observable as a single transition; no peer confirmation
	// step exists between the two states.
	s.room.GameState = models.GameStarting
	s.room.GameState = models.GamePlaying
	return s.room.Clone(), true, nil
}

// Finish marks the round over. End-of-game detection belongs to the
// embedded game; this is only the hook it calls.
func (s *RoomSession) Finish() *models.Room {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.room.GameState == models.GamePlaying {
		s.room.GameState = models.GameFinished
	}
	return s.room.Clone()
}

// Snapshot returns a deep copy of the current room state.
func (s *RoomSession) Snapshot() *models.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room.Clone()
}

// IsOpen reports whether the room is joinable (waiting and below capacity).
func (s *RoomSession) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room.IsOpen()
}
