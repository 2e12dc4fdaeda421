// internal/multiplayer/coordinator.go
package multiplayer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mindspar/mindspar/internal/models"
)

// defaultRPCTimeout bounds create/join/list calls when the caller did not
// set a deadline, so the UI never sits in a pending state indefinitely.
const defaultRPCTimeout = 10 * time.Second

// maxSeenMessages bounds the duplicate-suppression window. Relay and peer
// link can deliver the same message twice; the envelope ID disambiguates.
const maxSeenMessages = 256

// Callbacks is the outbound surface to the game/lobby UI. Local state is
// always updated before a callback fires, so observers see consistent
// state inside their callback.
type Callbacks struct {
	// OnRoomUpdate fires on any membership, readiness or lifecycle change.
	OnRoomUpdate func(room *models.Room)
	// OnGameMessage fires for answer, start-game and end-game traffic; the
	// payload is interpreted by the embedded game.
	OnGameMessage func(msg SessionMessage)
	// OnChatMessage fires for local and remote chat, including locally
	// synthesized system messages.
	OnChatMessage func(msg models.ChatMessage)
}

// Coordinator is the single object a game or lobby screen interacts with.
// It holds zero or one active room membership, fans relay traffic out to
// peer links and vice versa, and keeps a read/display copy of the room that
// it refreshes from session events — never by editing fields directly.
type Coordinator struct {
	transport Transport
	dialer    PeerDialer // nil when the transport cannot broker peer links
	log       *logrus.Logger

	// linkOpenTimeout bounds peer link establishment before falling back
	// to relay-only delivery for that peer.
	linkOpenTimeout time.Duration

	mu          sync.Mutex
	callbacks   Callbacks
	localPlayer *models.Player
	room        *models.Room
	unsubscribe func()

	// generation increments on every join/leave. Inbound messages and
	// finished peer dials carry the generation they started under and are
	// discarded when it no longer matches, so state from a room we already
	// left is never applied.
	generation int

	links map[uuid.UUID]PeerLink

	seen      map[uuid.UUID]struct{}
	seenOrder []uuid.UUID
}

// NewCoordinator builds a coordinator over the given transport. Peer links
// are used when the transport supports dialing them; otherwise the
// coordinator runs relay-only, which is correct but less latency-optimal.
func NewCoordinator(transport Transport, logger *logrus.Logger) *Coordinator {
	if logger == nil {
		logger = logrus.New()
	}
	c := &Coordinator{
		transport:       transport,
		log:             logger,
		linkOpenTimeout: DefaultLinkOpenTimeout,
		links:           make(map[uuid.UUID]PeerLink),
		seen:            make(map[uuid.UUID]struct{}),
	}
	if d, ok := transport.(PeerDialer); ok {
		c.dialer = d
	}
	return c
}

// SetCallbacks registers the UI callbacks. Register once, before joining.
func (c *Coordinator) SetCallbacks(cb Callbacks) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks = cb
}

// CreateRoom registers a new room and returns its join code without
// joining it.
func (c *Coordinator) CreateRoom(ctx context.Context, name, gameMode string, maxPlayers int) (string, error) {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()
	return c.transport.CreateRoom(ctx, name, gameMode, maxPlayers)
}

// GetAvailableRooms returns a snapshot of joinable rooms. Staleness up to
// one relay round-trip is expected.
func (c *Coordinator) GetAvailableRooms(ctx context.Context) ([]*models.Room, error) {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()
	return c.transport.ListRooms(ctx)
}

// JoinRoom allocates a local player identity, joins the room, subscribes
// to its relay traffic, and begins establishing peer links to the other
// members. Link failures are non-fatal; the join succeeds relay-only.
func (c *Coordinator) JoinRoom(ctx context.Context, roomID, displayName string) (*models.Room, error) {
	c.mu.Lock()
	if c.room != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("already in room %s, leave it first", c.room.ID)
	}
	c.mu.Unlock()

	player := &models.Player{
		ID:   uuid.New(),
		Name: displayName,
	}

	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()
	snap, err := c.transport.JoinRoom(ctx, roomID, player)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.generation++
	gen := c.generation
	c.room = snap.Clone()
	c.localPlayer = snap.FindPlayer(player.ID).Clone()
	peers := make([]uuid.UUID, 0, len(snap.Players))
	for _, p := range snap.Players {
		if p.ID != player.ID {
			peers = append(peers, p.ID)
		}
	}
	c.mu.Unlock()

	unsub, err := c.transport.Subscribe(roomID, player.ID, func(msg SessionMessage) {
		c.handleMessage(gen, msg)
	})
	if err != nil {
		_ = c.transport.LeaveRoom(ctx, roomID, player.ID)
		c.mu.Lock()
		c.room, c.localPlayer = nil, nil
		c.mu.Unlock()
		return nil, err
	}
	c.mu.Lock()
	c.unsubscribe = unsub
	c.mu.Unlock()

	// Joiner initiates links to everyone already present; they dial back
	// when the join announcement reaches them.
	for _, peerID := range peers {
		go c.dialPeer(gen, roomID, player.ID, peerID)
	}

	return snap.Clone(), nil
}

// LeaveRoom tears down peer links, unsubscribes, and performs the session
// leave. Safe to call when not in a room. Pending peer dials for the old
// membership are abandoned via the generation check.
func (c *Coordinator) LeaveRoom(ctx context.Context) error {
	c.mu.Lock()
	if c.room == nil {
		c.mu.Unlock()
		return nil
	}
	roomID := c.room.ID
	playerID := c.localPlayer.ID
	c.generation++
	links := c.links
	c.links = make(map[uuid.UUID]PeerLink)
	unsub := c.unsubscribe
	c.unsubscribe = nil
	c.room = nil
	c.localPlayer = nil
	c.seen = make(map[uuid.UUID]struct{})
	c.seenOrder = nil
	c.mu.Unlock()

	for _, link := range links {
		link.Close()
	}
	if unsub != nil {
		unsub()
	}

	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()
	return c.transport.LeaveRoom(ctx, roomID, playerID)
}

// ToggleReady flips the local player's readiness and broadcasts it. Any
// player may toggle at any time while the room is waiting; two toggles
// return to the original state.
func (c *Coordinator) ToggleReady(ctx context.Context) error {
	c.mu.Lock()
	if c.room == nil || c.localPlayer == nil {
		c.mu.Unlock()
		return ErrNotInRoom
	}
	c.localPlayer.IsReady = !c.localPlayer.IsReady
	if p := c.room.FindPlayer(c.localPlayer.ID); p != nil {
		p.IsReady = c.localPlayer.IsReady
	}
	roomID := c.room.ID
	msg, err := NewMessage(MsgReady, c.localPlayer.ID, ReadyPayload{IsReady: c.localPlayer.IsReady})
	snap := c.room.Clone()
	onUpdate := c.callbacks.OnRoomUpdate
	c.mu.Unlock()
	if err != nil {
		return err
	}

	if onUpdate != nil {
		onUpdate(snap)
	}
	return c.transport.SendToRoom(ctx, roomID, msg)
}

// StartGame starts the round. Host-only; a non-host call is a no-op.
// Fails with ErrNotAllReady while any player is unready, leaving the room
// in waiting.
func (c *Coordinator) StartGame(ctx context.Context) error {
	c.mu.Lock()
	if c.room == nil || c.localPlayer == nil {
		c.mu.Unlock()
		return ErrNotInRoom
	}
	if !c.localPlayer.IsHost {
		c.mu.Unlock()
		return nil
	}
	for _, p := range c.room.Players {
		if !p.IsReady {
			c.mu.Unlock()
			return ErrNotAllReady
		}
	}
	roomID := c.room.ID
	gameMode := c.room.GameMode
	playerID := c.localPlayer.ID
	c.mu.Unlock()

	msg, err := NewMessage(MsgStartGame, playerID, StartGamePayload{GameMode: gameMode})
	if err != nil {
		return err
	}
	if err := c.transport.SendToRoom(ctx, roomID, msg); err != nil {
		return err
	}

	c.mu.Lock()
	if c.room == nil || c.room.ID != roomID {
		c.mu.Unlock()
		return nil
	}
	c.room.GameState = models.GamePlaying
	snap := c.room.Clone()
	onUpdate := c.callbacks.OnRoomUpdate
	onGame := c.callbacks.OnGameMessage
	c.mu.Unlock()

	if onUpdate != nil {
		onUpdate(snap)
	}
	if onGame != nil {
		onGame(msg)
	}
	return nil
}

// SendChatMessage broadcasts a chat entry and echoes it locally exactly
// once. The relay never echoes back to the sender, so the local echo is
// the only one.
func (c *Coordinator) SendChatMessage(ctx context.Context, text string) error {
	c.mu.Lock()
	if c.room == nil || c.localPlayer == nil {
		c.mu.Unlock()
		return ErrNotInRoom
	}
	chat := models.ChatMessage{
		ID:         uuid.New(),
		PlayerID:   c.localPlayer.ID,
		PlayerName: c.localPlayer.Name,
		Message:    text,
		Timestamp:  time.Now(),
		Type:       models.ChatTypeMessage,
	}
	roomID := c.room.ID
	onChat := c.callbacks.OnChatMessage
	c.mu.Unlock()

	msg, err := NewMessage(MsgChat, chat.PlayerID, chat)
	if err != nil {
		return err
	}
	if onChat != nil {
		onChat(chat)
	}
	return c.transport.SendToRoom(ctx, roomID, msg)
}

// SendGameAnswer sends answer traffic, preferring open peer links and
// falling back to the relay for any member without one. Receivers suppress
// the duplicate when both paths deliver.
func (c *Coordinator) SendGameAnswer(ctx context.Context, answer interface{}) error {
	raw, err := json.Marshal(answer)
	if err != nil {
		return fmt.Errorf("marshal answer: %w", err)
	}

	c.mu.Lock()
	if c.room == nil || c.localPlayer == nil {
		c.mu.Unlock()
		return ErrNotInRoom
	}
	playerID := c.localPlayer.ID
	roomID := c.room.ID
	msg, err := NewMessage(MsgAnswer, playerID, AnswerPayload{
		Answer: raw,
		SentAt: time.Now().UnixMilli(),
	})
	if err != nil {
		c.mu.Unlock()
		return err
	}

	var direct []PeerLink
	relayNeeded := false
	for _, p := range c.room.Players {
		if p.ID == playerID {
			continue
		}
		if link, ok := c.links[p.ID]; ok && link.State() == LinkOpen {
			direct = append(direct, link)
		} else {
			relayNeeded = true
		}
	}
	c.mu.Unlock()

	for _, link := range direct {
		link.Send(msg)
	}
	if relayNeeded || len(direct) == 0 {
		return c.transport.SendToRoom(ctx, roomID, msg)
	}
	return nil
}

// UpdateScore reports the local player's in-round score to the room.
func (c *Coordinator) UpdateScore(ctx context.Context, score int) error {
	c.mu.Lock()
	if c.room == nil || c.localPlayer == nil {
		c.mu.Unlock()
		return ErrNotInRoom
	}
	s := score
	c.localPlayer.Score = &s
	if p := c.room.FindPlayer(c.localPlayer.ID); p != nil {
		p.Score = &s
	}
	roomID := c.room.ID
	playerID := c.localPlayer.ID
	c.mu.Unlock()

	msg, err := NewMessage(MsgPlayerUpdate, playerID, PlayerUpdatePayload{Score: score})
	if err != nil {
		return err
	}
	return c.transport.SendToRoom(ctx, roomID, msg)
}

// CurrentRoom returns a copy of the coordinator's room snapshot, or nil.
func (c *Coordinator) CurrentRoom() *models.Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.room == nil {
		return nil
	}
	return c.room.Clone()
}

// LocalPlayer returns a copy of the local player identity, or nil.
func (c *Coordinator) LocalPlayer() *models.Player {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.localPlayer == nil {
		return nil
	}
	return c.localPlayer.Clone()
}

// dialPeer establishes a peer link, bounded by the open timeout. The link
// is only kept if the membership generation is still current when it
// opens; otherwise it is discarded.
func (c *Coordinator) dialPeer(gen int, roomID string, selfID, peerID uuid.UUID) {
	if c.dialer == nil {
		return
	}
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	link := c.dialer.DialPeer(roomID, selfID, peerID, func(msg SessionMessage) {
		c.handleMessage(gen, msg)
	}, func(state LinkState) {
		if state == LinkFailed || state == LinkClosed {
			c.mu.Lock()
			if cur, ok := c.links[peerID]; ok && cur.State() != LinkOpen {
				delete(c.links, peerID)
			}
			c.mu.Unlock()
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), c.linkOpenTimeout)
	defer cancel()
	if err := link.Open(ctx); err != nil {
		// Non-fatal: relay delivery covers this peer.
		c.log.WithFields(logrus.Fields{
			"room": roomID,
			"peer": peerID,
		}).Debugf("peer link failed, continuing relay-only: %v", err)
		return
	}

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		link.Close()
		return
	}
	if old, ok := c.links[peerID]; ok {
		old.Close()
	}
	c.links[peerID] = link
	c.mu.Unlock()
}

// handleMessage applies one inbound message (relay or peer link) to local
// state and then fires the matching callbacks. Messages from a stale
// generation or with an already-seen ID are discarded.
func (c *Coordinator) handleMessage(gen int, msg SessionMessage) {
	c.mu.Lock()
	if gen != c.generation || c.room == nil {
		c.mu.Unlock()
		return
	}
	if c.isDuplicateLocked(msg.ID) {
		c.mu.Unlock()
		return
	}

	var (
		roomSnap  *models.Room
		gameMsg   *SessionMessage
		chatMsgs  []models.ChatMessage
		closeLink PeerLink
		dialBack  uuid.UUID
	)

	switch msg.Type {
	case MsgJoin:
		var p JoinPayload
		if err := msg.DecodePayload(&p); err != nil {
			c.mu.Unlock()
			c.log.Warnf("bad join payload: %v", err)
			return
		}
		c.adoptRoomLocked(p.Room)
		roomSnap = c.room.Clone()
		if p.Player != nil {
			dialBack = p.Player.ID
			chatMsgs = append(chatMsgs, systemChat(p.Player, fmt.Sprintf("%s joined the room", p.Player.Name)))
		}

	case MsgLeave:
		var p LeavePayload
		if err := msg.DecodePayload(&p); err != nil {
			c.mu.Unlock()
			c.log.Warnf("bad leave payload: %v", err)
			return
		}
		var leftName string
		if gone := c.room.FindPlayer(p.PlayerID); gone != nil {
			leftName = gone.Name
		}
		c.adoptRoomLocked(p.Room)
		roomSnap = c.room.Clone()
		if link, ok := c.links[p.PlayerID]; ok {
			closeLink = link
			delete(c.links, p.PlayerID)
		}
		if leftName != "" {
			chatMsgs = append(chatMsgs, systemChat(&models.Player{ID: p.PlayerID, Name: leftName},
				fmt.Sprintf("%s left the room", leftName)))
		}

	case MsgReady:
		var p ReadyPayload
		if err := msg.DecodePayload(&p); err != nil {
			c.mu.Unlock()
			c.log.Warnf("bad ready payload: %v", err)
			return
		}
		if player := c.room.FindPlayer(msg.PlayerID); player != nil {
			player.IsReady = p.IsReady
		}
		roomSnap = c.room.Clone()

	case MsgStartGame:
		c.room.GameState = models.GamePlaying
		roomSnap = c.room.Clone()
		gameMsg = &msg

	case MsgEndGame:
		c.room.GameState = models.GameFinished
		roomSnap = c.room.Clone()
		gameMsg = &msg

	case MsgChat:
		var chat ChatPayload
		if err := msg.DecodePayload(&chat); err != nil {
			c.mu.Unlock()
			c.log.Warnf("bad chat payload: %v", err)
			return
		}
		if c.localPlayer != nil && chat.PlayerID == c.localPlayer.ID {
			// Already echoed locally at send time.
			c.mu.Unlock()
			return
		}
		chatMsgs = append(chatMsgs, chat)

	case MsgSync:
		var p SyncPayload
		if err := msg.DecodePayload(&p); err != nil {
			c.mu.Unlock()
			c.log.Warnf("bad sync payload: %v", err)
			return
		}
		c.adoptRoomLocked(p.Room)
		roomSnap = c.room.Clone()

	case MsgPlayerUpdate:
		var p PlayerUpdatePayload
		if err := msg.DecodePayload(&p); err != nil {
			c.mu.Unlock()
			c.log.Warnf("bad player-update payload: %v", err)
			return
		}
		if player := c.room.FindPlayer(msg.PlayerID); player != nil {
			s := p.Score
			player.Score = &s
		}
		roomSnap = c.room.Clone()

	case MsgAnswer:
		gameMsg = &msg

	default:
		c.log.Warnf("unknown message type %q from %s", msg.Type, msg.PlayerID)
	}

	onUpdate := c.callbacks.OnRoomUpdate
	onGame := c.callbacks.OnGameMessage
	onChat := c.callbacks.OnChatMessage
	var selfID uuid.UUID
	var roomID string
	if c.localPlayer != nil {
		selfID = c.localPlayer.ID
	}
	if c.room != nil {
		roomID = c.room.ID
	}
	c.mu.Unlock()

	if closeLink != nil {
		closeLink.Close()
	}
	if dialBack != uuid.Nil && dialBack != selfID {
		go c.dialPeer(gen, roomID, selfID, dialBack)
	}

	if roomSnap != nil && onUpdate != nil {
		onUpdate(roomSnap)
	}
	if onChat != nil {
		for _, cm := range chatMsgs {
			onChat(cm)
		}
	}
	if gameMsg != nil && onGame != nil {
		onGame(*gameMsg)
	}
}

// adoptRoomLocked replaces the display copy with an authoritative snapshot
// and refreshes the local player's host/ready flags from it. Assumes the
// lock is held.
func (c *Coordinator) adoptRoomLocked(snap *models.Room) {
	if snap == nil {
		return
	}
	c.room = snap.Clone()
	if c.localPlayer != nil {
		if self := c.room.FindPlayer(c.localPlayer.ID); self != nil {
			c.localPlayer.IsHost = self.IsHost
			c.localPlayer.IsReady = self.IsReady
		}
	}
}

// isDuplicateLocked records the message ID and reports whether it was
// already seen. The window is bounded FIFO. Assumes the lock is held.
func (c *Coordinator) isDuplicateLocked(id uuid.UUID) bool {
	if id == uuid.Nil {
		return false
	}
	if _, ok := c.seen[id]; ok {
		return true
	}
	c.seen[id] = struct{}{}
	c.seenOrder = append(c.seenOrder, id)
	if len(c.seenOrder) > maxSeenMessages {
		oldest := c.seenOrder[0]
		c.seenOrder = c.seenOrder[1:]
		delete(c.seen, oldest)
	}
	return false
}

func systemChat(about *models.Player, text string) models.ChatMessage {
	return models.ChatMessage{
		ID:         uuid.New(),
		PlayerID:   about.ID,
		PlayerName: about.Name,
		Message:    text,
		Timestamp:  time.Now(),
		Type:       models.ChatTypeSystem,
	}
}

// withDefaultTimeout applies defaultRPCTimeout when the caller did not set
// a deadline.
func withDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, defaultRPCTimeout)
}
