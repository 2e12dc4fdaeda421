// internal/handlers/relay_server.go
package handlers

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mindspar/mindspar/internal/journal"
	"github.com/mindspar/mindspar/internal/multiplayer"
)

// RelayServer hosts the room directory and the per-room message relay. It
// is the server-side counterpart of the in-process transport: session
// state lives in RoomSessions, live connections in the conns map.
type RelayServer struct {
	Directory *multiplayer.RoomDirectory

	// Journal is optional; when set, room lifecycle events are pushed to
	// the Redis queue for the historian.
	Journal *journal.Journal

	logger *logrus.Logger

	mu    sync.Mutex
	conns map[string]map[uuid.UUID]*roomConn
}

// NewRelayServer creates a relay with a fresh directory.
func NewRelayServer(logger *logrus.Logger) *RelayServer {
	if logger == nil {
		logger = logrus.New()
	}
	return &RelayServer{
		Directory: multiplayer.NewRoomDirectory(),
		logger:    logger,
		conns:     make(map[string]map[uuid.UUID]*roomConn),
	}
}

// roomConn is a single player's live presence in a room.
type roomConn struct {
	PlayerID uuid.UUID
	Name     string
	Cancel   context.CancelFunc
	OutChan  chan multiplayer.SessionMessage
}

// write pushes a message onto the player's outgoing channel non-blockingly.
// A slow or dead consumer drops the message, matching the relay's silent
// drop semantics for unreachable receivers.
func (conn *roomConn) write(logger *logrus.Logger, msg multiplayer.SessionMessage) {
	select {
	case conn.OutChan <- msg:
	default:
		logger.Warnf("relay: OutChan for player %s full, dropped %s", conn.PlayerID, msg.Type)
	}
}

// register adds the player's connection to the room's fan-out set,
// replacing any previous connection for the same player.
func (rs *RelayServer) register(roomID string, conn *roomConn) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	room, ok := rs.conns[roomID]
	if !ok {
		room = make(map[uuid.UUID]*roomConn)
		rs.conns[roomID] = room
	}
	// The channel is never closed; broadcasts may race a teardown, and the
	// replaced pump exits via its cancelled context instead.
	if old, ok := room[conn.PlayerID]; ok && old != conn {
		if old.Cancel != nil {
			old.Cancel()
		}
	}
	room[conn.PlayerID] = conn
}

// unregister removes the player's connection if it is still current and
// reports whether it was. A false return means a newer connection replaced
// this one, so the caller must not tear down the player's membership.
func (rs *RelayServer) unregister(roomID string, conn *roomConn) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	room, ok := rs.conns[roomID]
	if !ok {
		return false
	}
	cur, ok := room[conn.PlayerID]
	if !ok || cur != conn {
		return false
	}
	delete(room, conn.PlayerID)
	if len(room) == 0 {
		delete(rs.conns, roomID)
	}
	return true
}

// broadcast fans msg out to every connected member of the room except the
// sender.
func (rs *RelayServer) broadcast(roomID string, sender uuid.UUID, msg multiplayer.SessionMessage) {
	rs.mu.Lock()
	targets := make([]*roomConn, 0)
	for id, conn := range rs.conns[roomID] {
		if id != sender {
			targets = append(targets, conn)
		}
	}
	rs.mu.Unlock()

	for _, conn := range targets {
		conn.write(rs.logger, msg)
	}
}

// sendTo delivers msg to a single member, if connected.
func (rs *RelayServer) sendTo(roomID string, playerID uuid.UUID, msg multiplayer.SessionMessage) {
	rs.mu.Lock()
	conn, ok := rs.conns[roomID][playerID]
	rs.mu.Unlock()
	if ok {
		conn.write(rs.logger, msg)
	}
}

// journalEvent pushes a room event to the journal queue when journaling is
// enabled. Failures are logged and otherwise ignored; the relay never
// blocks on its audit trail.
func (rs *RelayServer) journalEvent(ctx context.Context, rec journal.RoomEventRecord) {
	if rs.Journal == nil {
		return
	}
	if err := rs.Journal.Publish(ctx, rec); err != nil {
		rs.logger.Warnf("relay: journal publish failed: %v", err)
	}
}
