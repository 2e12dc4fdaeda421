// internal/handlers/room_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/mindspar/mindspar/internal/journal"
	"github.com/mindspar/mindspar/internal/middleware"
	"github.com/mindspar/mindspar/internal/models"
	"github.com/mindspar/mindspar/internal/multiplayer"
)

// RoomWSHandler joins the caller to a room and relays its traffic until
// the connection drops. The join itself happens here rather than over a
// separate HTTP call so membership and the live connection cannot diverge.
//
// URL shape: /rooms/ws/{roomID}?name={displayName}
func RoomWSHandler(logger *logrus.Logger, rs *RelayServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		remoteAddr := r.RemoteAddr
		pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/rooms/ws/"), "/")
		if len(pathParts) < 1 || pathParts[0] == "" {
			http.Error(w, "missing room id", http.StatusBadRequest)
			return
		}
		roomID := pathParts[0]

		displayName := r.URL.Query().Get("name")
		if displayName == "" {
			displayName = "Guest"
		}

		playerID, err := EnsureEphemeralPlayer(w, r)
		if err != nil {
			http.Error(w, "identity error", http.StatusInternalServerError)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"relay"},
			OriginPatterns: []string{"*"}, // Adjust in production
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != "relay" {
			c.Close(BadSubprotocolError, "client must speak the relay subprotocol")
			return
		}

		sess, exists := rs.Directory.GetRoom(roomID)
		if !exists {
			c.Close(InvalidRoomIDError, "room does not exist")
			return
		}

		snap, err := sess.Join(&models.Player{ID: playerID, Name: displayName})
		if err != nil {
			if errors.Is(err, multiplayer.ErrRoomFull) {
				c.Close(RoomFullError, "room is full")
			} else {
				c.Close(websocket.StatusPolicyViolation, "join rejected")
			}
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		conn := &roomConn{
			PlayerID: playerID,
			Name:     displayName,
			Cancel:   cancel,
			OutChan:  make(chan multiplayer.SessionMessage, 16),
		}
		rs.register(roomID, conn)

		middleware.LogWebSocketConnect(logger, remoteAddr, r.URL.Path)

		// Announce the join and hand the new member its initial snapshot.
		if joinMsg, err := multiplayer.NewMessage(multiplayer.MsgJoin, playerID, multiplayer.JoinPayload{
			Player: snap.FindPlayer(playerID),
			Room:   snap,
		}); err == nil {
			rs.broadcast(roomID, playerID, joinMsg)
			rs.journalEvent(ctx, journal.RoomEventRecord{
				RoomID:    roomID,
				PlayerID:  playerID,
				EventType: string(multiplayer.MsgJoin),
				Timestamp: time.Now().UnixMilli(),
			})
		}
		if syncMsg, err := multiplayer.NewMessage(multiplayer.MsgSync, playerID, multiplayer.SyncPayload{Room: snap}); err == nil {
			conn.write(logger, syncMsg)
		}

		go writePump(ctx, c, conn, logger)
		readErr := readPump(ctx, c, rs, sess, conn, roomID, logger)

		// ---- Cleanup after readPump exits ----
		// Leave only when this connection is still the player's current
		// one; a replaced connection (same player, new socket) must not
		// strip the live membership.
		if rs.unregister(roomID, conn) {
			left := sess.Leave(playerID)
			if left != nil {
				if leaveMsg, err := multiplayer.NewMessage(multiplayer.MsgLeave, playerID, multiplayer.LeavePayload{
					PlayerID: playerID,
					Room:     left,
				}); err == nil {
					rs.broadcast(roomID, playerID, leaveMsg)
				}
			}
			rs.journalEvent(context.Background(), journal.RoomEventRecord{
				RoomID:    roomID,
				PlayerID:  playerID,
				EventType: string(multiplayer.MsgLeave),
				Timestamp: time.Now().UnixMilli(),
			})
		}
		middleware.LogWebSocketDisconnect(logger, remoteAddr, r.URL.Path, readErr)
	}
}

// readPump consumes inbound messages, applies session-control messages to
// the authoritative session, and fans everything out to the other members.
// Returns the error that terminated the loop, or nil for a clean close.
func readPump(ctx context.Context, c *websocket.Conn, rs *RelayServer, sess *multiplayer.RoomSession, conn *roomConn, roomID string, logger *logrus.Logger) error {
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway {
				return nil
			}
			if strings.Contains(err.Error(), "context canceled") {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			logger.Warnf("room %s: ignoring non-text frame from %s", roomID, conn.PlayerID)
			continue
		}

		var msg multiplayer.SessionMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warnf("room %s: invalid json from %s: %v", roomID, conn.PlayerID, err)
			continue
		}
		// Never trust the client's claimed identity.
		msg.PlayerID = conn.PlayerID

		switch msg.Type {
		case multiplayer.MsgReady:
			var p multiplayer.ReadyPayload
			if err := msg.DecodePayload(&p); err != nil {
				logger.Warnf("room %s: bad ready payload from %s: %v", roomID, conn.PlayerID, err)
				continue
			}
			if _, err := sess.SetReady(conn.PlayerID, p.IsReady); err != nil {
				continue
			}
		case multiplayer.MsgStartGame:
			if _, started, err := sess.Start(conn.PlayerID); err != nil || !started {
				// Rejected or no-op start: never rebroadcast the frame,
				// reconcile the sender with a snapshot instead of an
				// error channel.
				if syncMsg, mkErr := multiplayer.NewMessage(multiplayer.MsgSync, conn.PlayerID,
					multiplayer.SyncPayload{Room: sess.Snapshot()}); mkErr == nil {
					rs.sendTo(roomID, conn.PlayerID, syncMsg)
				}
				continue
			}
		case multiplayer.MsgPlayerUpdate:
			var p multiplayer.PlayerUpdatePayload
			if err := msg.DecodePayload(&p); err != nil {
				logger.Warnf("room %s: bad player-update payload from %s: %v", roomID, conn.PlayerID, err)
				continue
			}
			if _, err := sess.UpdateScore(conn.PlayerID, p.Score); err != nil {
				continue
			}
		case multiplayer.MsgEndGame:
			sess.Finish()
		case multiplayer.MsgChat, multiplayer.MsgAnswer:
			// Pass-through traffic; nothing to apply server-side.
		default:
			logger.Warnf("room %s: unknown message type %q from %s", roomID, msg.Type, conn.PlayerID)
			continue
		}

		rs.broadcast(roomID, conn.PlayerID, msg)
	}
}

// writePump drains the connection's outgoing channel and keeps the
// connection alive with periodic pings.
func writePump(ctx context.Context, c *websocket.Conn, conn *roomConn, logger *logrus.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-conn.OutChan:
			data, err := json.Marshal(msg)
			if err != nil {
				logger.Warnf("relay: failed to marshal outgoing msg for %s: %v", conn.PlayerID, err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.Warnf("relay: failed to write to websocket for %s: %v", conn.PlayerID, err)
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Warnf("relay: ping to %s failed, assuming disconnect: %v", conn.PlayerID, err)
				return
			}
		}
	}
}
