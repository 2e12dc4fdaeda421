// internal/multiplayer/transport.go
package multiplayer

import (
	"context"

	"github.com/google/uuid"

	"github.com/mindspar/mindspar/internal/models"
)

// Transport is the signaling and relay boundary the coordinator talks to.
// The in-process implementation backs single-process play and tests; the
// websocket implementation talks to a relay server. Room session logic
// never depends on which one is in use.
//
// Relay semantics: SendToRoom is a best-effort broadcast to every *other*
// current member. Messages from the same sender are delivered in send
// order; cross-sender order is unspecified. Unreachable receivers are
// dropped silently — reconciliation happens via sync snapshots, not an
// error channel.
type Transport interface {
	// CreateRoom registers a new room and returns its join code. It does
	// not join the caller.
	CreateRoom(ctx context.Context, name, gameMode string, maxPlayers int) (string, error)

	// JoinRoom adds the player to the room and returns the post-join
	// snapshot. Fails with ErrRoomNotFound or ErrRoomFull. Transports
	// that assign identities server-side rewrite player.ID to the
	// assigned id before returning.
	JoinRoom(ctx context.Context, roomID string, player *models.Player) (*models.Room, error)

	// LeaveRoom removes the player. The room is deleted when it empties.
	LeaveRoom(ctx context.Context, roomID string, playerID uuid.UUID) error

	// ListRooms returns a snapshot of joinable rooms.
	ListRooms(ctx context.Context) ([]*models.Room, error)

	// SendToRoom relays the message to every other member. Session-control
	// messages (ready, start-game, player-update) are applied to the
	// authoritative session before fan-out; start-game validation errors
	// surface here.
	SendToRoom(ctx context.Context, roomID string, msg SessionMessage) error

	// Subscribe registers the inbound message handler for a joined player
	// and returns an unsubscribe func. Per-sender delivery order is
	// preserved to the handler.
	Subscribe(roomID string, playerID uuid.UUID, fn func(SessionMessage)) (func(), error)
}

// PeerDialer is optionally implemented by transports that can broker direct
// peer links (the offer/answer exchange travels through the relay). The
// coordinator probes for it with a type assertion; transports without it
// run relay-only, which is correct but less latency-optimal.
type PeerDialer interface {
	// DialPeer begins establishing a direct link to peerID within the
	// room. The returned link is in the connecting state; the caller
	// drives Open with its own timeout.
	DialPeer(roomID string, selfID, peerID uuid.UUID, onMessage func(SessionMessage), onState func(LinkState)) PeerLink
}
