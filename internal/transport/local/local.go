// internal/transport/local/local.go

// Package local provides an in-process Transport backed directly by a
// RoomDirectory. It serves single-process play and tests; the websocket
// transport replaces it when a relay server is available. Unlike the usual
// singleton signaling mock, the transport is constructed around an injected
// directory so multiple isolated meshes can coexist.
package local

import (
	"context"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/mindspar/mindspar/internal/models"
	"github.com/mindspar/mindspar/internal/multiplayer"
)

// subscriberQueueSize bounds the per-subscriber delivery queue. Delivery to
// a full queue is dropped, mirroring relay semantics for unreachable
// receivers.
const subscriberQueueSize = 64

// Transport is the in-process signaling/relay implementation. Each
// subscriber gets a dedicated delivery goroutine fed from a FIFO queue, so
// per-sender send order is preserved end to end.
type Transport struct {
	dir *multiplayer.RoomDirectory

	mu   sync.Mutex
	subs map[string]map[uuid.UUID]*subscriber

	pipes *pipeExchange
}

// New creates a transport over the given directory.
func New(dir *multiplayer.RoomDirectory) *Transport {
	return &Transport{
		dir:   dir,
		subs:  make(map[string]map[uuid.UUID]*subscriber),
		pipes: newPipeExchange(),
	}
}

type subscriber struct {
	playerID uuid.UUID
	fn       func(multiplayer.SessionMessage)
	queue    chan multiplayer.SessionMessage
	done     chan struct{}
	once     sync.Once
}

func (s *subscriber) run() {
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.queue:
			s.fn(msg)
		}
	}
}

// enqueue pushes a message non-blockingly, dropping when the subscriber is
// not keeping up.
func (s *subscriber) enqueue(msg multiplayer.SessionMessage) {
	select {
	case s.queue <- msg:
	default:
		log.Printf("local transport: subscriber %s queue full, dropped %s", s.playerID, msg.Type)
	}
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

// CreateRoom registers a room with the directory; it does not join the
// caller.
func (t *Transport) CreateRoom(ctx context.Context, name, gameMode string, maxPlayers int) (string, error) {
	sess, err := t.dir.CreateRoom(name, gameMode, maxPlayers)
	if err != nil {
		return "", err
	}
	return sess.Snapshot().ID, nil
}

// JoinRoom applies the join to the authoritative session and announces it
// to existing members.
func (t *Transport) JoinRoom(ctx context.Context, roomID string, player *models.Player) (*models.Room, error) {
	sess, ok := t.dir.GetRoom(roomID)
	if !ok {
		return nil, multiplayer.ErrRoomNotFound
	}
	snap, err := sess.Join(player)
	if err != nil {
		return nil, err
	}

	joined := snap.FindPlayer(player.ID)
	msg, err := multiplayer.NewMessage(multiplayer.MsgJoin, player.ID, multiplayer.JoinPayload{
		Player: joined,
		Room:   snap,
	})
	if err != nil {
		return nil, err
	}
	t.broadcast(roomID, player.ID, msg)
	return snap, nil
}

// LeaveRoom applies the departure, announces it to remaining members, and
// tears down the player's subscription and pipe endpoints.
func (t *Transport) LeaveRoom(ctx context.Context, roomID string, playerID uuid.UUID) error {
	sess, ok := t.dir.GetRoom(roomID)
	if !ok {
		return multiplayer.ErrRoomNotFound
	}
	snap := sess.Leave(playerID)

	t.mu.Lock()
	if room, ok := t.subs[roomID]; ok {
		if sub, ok := room[playerID]; ok {
			sub.stop()
			delete(room, playerID)
		}
		if len(room) == 0 {
			delete(t.subs, roomID)
		}
	}
	t.mu.Unlock()
	t.pipes.dropPlayer(roomID, playerID)

	if snap != nil {
		msg, err := multiplayer.NewMessage(multiplayer.MsgLeave, playerID, multiplayer.LeavePayload{
			PlayerID: playerID,
			Room:     snap,
		})
		if err != nil {
			return err
		}
		t.broadcast(roomID, playerID, msg)
	}
	return nil
}

// ListRooms returns the directory's open-room snapshot.
func (t *Transport) ListRooms(ctx context.Context) ([]*models.Room, error) {
	return t.dir.ListOpenRooms(), nil
}

// SendToRoom applies session-control messages to the authoritative session,
// then fans the message out to every other member. Start validation errors
// surface to the sender synchronously; fan-out itself is best-effort.
func (t *Transport) SendToRoom(ctx context.Context, roomID string, msg multiplayer.SessionMessage) error {
	sess, ok := t.dir.GetRoom(roomID)
	if !ok {
		return multiplayer.ErrRoomNotFound
	}

	switch msg.Type {
	case multiplayer.MsgReady:
		var p multiplayer.ReadyPayload
		if err := msg.DecodePayload(&p); err != nil {
			return err
		}
		if _, err := sess.SetReady(msg.PlayerID, p.IsReady); err != nil {
			return err
		}
	case multiplayer.MsgStartGame:
		_, started, err := sess.Start(msg.PlayerID)
		if err != nil {
			return err
		}
		if !started {
			// No transition happened; rebroadcasting would make every
			// receiver flip to playing while the session stays waiting.
			return nil
		}
	case multiplayer.MsgPlayerUpdate:
		var p multiplayer.PlayerUpdatePayload
		if err := msg.DecodePayload(&p); err != nil {
			return err
		}
		if _, err := sess.UpdateScore(msg.PlayerID, p.Score); err != nil {
			return err
		}
	case multiplayer.MsgEndGame:
		sess.Finish()
	}

	t.broadcast(roomID, msg.PlayerID, msg)
	return nil
}

// Subscribe registers the player's inbound handler and returns an
// unsubscribe func.
func (t *Transport) Subscribe(roomID string, playerID uuid.UUID, fn func(multiplayer.SessionMessage)) (func(), error) {
	sub := &subscriber{
		playerID: playerID,
		fn:       fn,
		queue:    make(chan multiplayer.SessionMessage, subscriberQueueSize),
		done:     make(chan struct{}),
	}

	t.mu.Lock()
	room, ok := t.subs[roomID]
	if !ok {
		room = make(map[uuid.UUID]*subscriber)
		t.subs[roomID] = room
	}
	if old, ok := room[playerID]; ok {
		old.stop()
	}
	room[playerID] = sub
	t.mu.Unlock()

	go sub.run()

	return func() {
		t.mu.Lock()
		if room, ok := t.subs[roomID]; ok {
			if cur, ok := room[playerID]; ok && cur == sub {
				delete(room, playerID)
				if len(room) == 0 {
					delete(t.subs, roomID)
				}
			}
		}
		t.mu.Unlock()
		sub.stop()
	}, nil
}

// DialPeer implements multiplayer.PeerDialer using in-process pipes. Both
// ends must dial for the link to open, mirroring the offer/answer exchange
// a real peer connection would run through the relay.
func (t *Transport) DialPeer(roomID string, selfID, peerID uuid.UUID, onMessage func(multiplayer.SessionMessage), onState func(multiplayer.LinkState)) multiplayer.PeerLink {
	return t.pipes.dial(roomID, selfID, peerID, onMessage, onState)
}

// broadcast delivers msg to every subscriber in the room except the sender.
func (t *Transport) broadcast(roomID string, sender uuid.UUID, msg multiplayer.SessionMessage) {
	t.mu.Lock()
	targets := make([]*subscriber, 0)
	for id, sub := range t.subs[roomID] {
		if id != sender {
			targets = append(targets, sub)
		}
	}
	t.mu.Unlock()

	for _, sub := range targets {
		sub.enqueue(msg)
	}
}
