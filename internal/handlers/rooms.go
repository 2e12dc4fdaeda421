// internal/handlers/rooms.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mindspar/mindspar/internal/multiplayer"
)

var validGameModes = map[string]bool{
	"lightning-math": true,
	"memory-matrix":  true,
	"word-chain":     true,
	"pattern-puzzle": true,
}

type createRoomRequest struct {
	Name       string `json:"name"`
	GameMode   string `json:"gameMode"`
	MaxPlayers int    `json:"maxPlayers"`
}

// CreateRoomHandler registers a new room and returns its snapshot. The
// caller gets an ephemeral identity cookie but is not joined to the room;
// joining happens over the room websocket.
func CreateRoomHandler(rs *RelayServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if _, err := EnsureEphemeralPlayer(w, r); err != nil {
			http.Error(w, "identity error", http.StatusInternalServerError)
			return
		}

		var req createRoomRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err.Error() != "EOF" {
			http.Error(w, "bad room request payload", http.StatusBadRequest)
			return
		}
		if req.GameMode != "" && !validGameModes[req.GameMode] {
			http.Error(w, "invalid game mode", http.StatusBadRequest)
			return
		}

		sess, err := rs.Directory.CreateRoom(req.Name, req.GameMode, req.MaxPlayers)
		if err != nil {
			if errors.Is(err, multiplayer.ErrCodeSpaceExhausted) {
				http.Error(w, "could not allocate a room code", http.StatusServiceUnavailable)
				return
			}
			http.Error(w, "room creation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(sess.Snapshot())
	}
}

// ListRoomsHandler returns the currently joinable rooms.
func ListRoomsHandler(rs *RelayServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := EnsureEphemeralPlayer(w, r); err != nil {
			http.Error(w, "identity error", http.StatusInternalServerError)
			return
		}

		rooms := rs.Directory.ListOpenRooms()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(rooms)
	}
}
