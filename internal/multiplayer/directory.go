// internal/multiplayer/directory.go
package multiplayer

import (
	"crypto/rand"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/mindspar/mindspar/internal/models"
)

// Room codes use an unambiguous uppercase alphabet (no 0/O, 1/I/L). Six
// characters give roughly 30 bits of entropy, which keeps collision
// probability negligible for any realistic number of concurrent rooms.
const (
	codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	codeLength   = 6

	// maxCodeAttempts bounds collision retries before CreateRoom gives up
	// with ErrCodeSpaceExhausted.
	maxCodeAttempts = 32
)

// RoomDirectory tracks the set of rooms by join code. It provides
// thread-safe create, lookup, list and delete; sessions delete themselves
// through their OnEmpty callback when the last player leaves.
//
// The directory is an explicitly constructed instance, not a process-wide
// singleton, so multiple directories can coexist in tests.
type RoomDirectory struct {
	mu    sync.Mutex
	rooms map[string]*RoomSession
}

// NewRoomDirectory returns an empty directory.
func NewRoomDirectory() *RoomDirectory {
	return &RoomDirectory{
		rooms: make(map[string]*RoomSession),
	}
}

// CreateRoom generates a collision-checked join code and registers a new
// session in the waiting state. Creation does not join the caller to the
// room. Empty name and gameMode and non-positive maxPlayers fall back to
// defaults matching the lobby UI.
func (d *RoomDirectory) CreateRoom(name, gameMode string, maxPlayers int) (*RoomSession, error) {
	if gameMode == "" {
		gameMode = "lightning-math"
	}
	if maxPlayers <= 0 {
		maxPlayers = 4
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	code, err := d.uniqueCodeLocked()
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = fmt.Sprintf("Room %s", code)
	}

	sess := NewRoomSession(code, name, gameMode, maxPlayers)
	sess.OnEmpty = func(roomID string) {
		d.DeleteRoom(roomID)
	}
	d.rooms[code] = sess
	log.Printf("RoomDirectory: created room %s (%s, max %d)", code, gameMode, maxPlayers)
	return sess, nil
}

// GetRoom returns the session for the given code.
func (d *RoomDirectory) GetRoom(roomID string) (*RoomSession, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.rooms[roomID]
	return s, ok
}

// DeleteRoom removes the room from the directory. Idempotent; deleting an
// unknown room is a no-op.
func (d *RoomDirectory) DeleteRoom(roomID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.rooms[roomID]; ok {
		delete(d.rooms, roomID)
		log.Printf("RoomDirectory: deleted room %s", roomID)
	}
}

// ListOpenRooms returns snapshots of rooms eligible for join: waiting and
// below capacity. The snapshot may be stale by up to one relay round-trip;
// callers must treat it as eventually consistent.
func (d *RoomDirectory) ListOpenRooms() []*models.Room {
	d.mu.Lock()
	sessions := make([]*RoomSession, 0, len(d.rooms))
	for _, s := range d.rooms {
		sessions = append(sessions, s)
	}
	d.mu.Unlock()

	open := make([]*models.Room, 0, len(sessions))
	for _, s := range sessions {
		snap := s.Snapshot()
		if snap.IsOpen() {
			open = append(open, snap)
		}
	}
	sort.Slice(open, func(i, j int) bool { return open[i].ID < open[j].ID })
	return open
}

// uniqueCodeLocked draws random codes until one is unused. Assumes the
// directory lock is held.
func (d *RoomDirectory) uniqueCodeLocked() (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := randomCode()
		if err != nil {
			return "", fmt.Errorf("generate room code: %w", err)
		}
		if _, taken := d.rooms[code]; !taken {
			return code, nil
		}
	}
	return "", ErrCodeSpaceExhausted
}

func randomCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}
