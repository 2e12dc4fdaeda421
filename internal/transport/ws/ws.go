// internal/transport/ws/ws.go

// Package ws implements the multiplayer Transport against a relay server
// over HTTP + WebSocket. It is relay-only: the coordinator runs without
// peer links, which is correct but less latency-optimal.
package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mindspar/mindspar/internal/models"
	"github.com/mindspar/mindspar/internal/multiplayer"
)

// inboundQueueSize buffers messages read off the socket until (and while)
// the subscriber consumes them.
const inboundQueueSize = 64

// Transport talks to a relay server. The HTTP client carries a cookie jar
// so the ephemeral identity minted by the relay on first contact sticks to
// subsequent requests and the websocket upgrade.
type Transport struct {
	baseURL string // e.g. "http://localhost:8080"
	httpc   *http.Client
	logger  *logrus.Logger

	mu    sync.Mutex
	rooms map[string]*roomClient
}

// New builds a transport against the relay at baseURL.
func New(baseURL string, logger *logrus.Logger) (*Transport, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Transport{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Jar: jar},
		logger:  logger,
		rooms:   make(map[string]*roomClient),
	}, nil
}

// roomClient is one live room connection.
type roomClient struct {
	conn     *websocket.Conn
	playerID uuid.UUID
	inbound  chan multiplayer.SessionMessage
	done     chan struct{}
	once     sync.Once
}

func (rc *roomClient) close() {
	rc.once.Do(func() { close(rc.done) })
}

// CreateRoom registers a room via the relay's HTTP endpoint.
func (t *Transport) CreateRoom(ctx context.Context, name, gameMode string, maxPlayers int) (string, error) {
	body, err := json.Marshal(map[string]interface{}{
		"name":       name,
		"gameMode":   gameMode,
		"maxPlayers": maxPlayers,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/rooms/create", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("create room: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("create room: relay returned %d", resp.StatusCode)
	}

	var room models.Room
	if err := json.NewDecoder(resp.Body).Decode(&room); err != nil {
		return "", fmt.Errorf("decode created room: %w", err)
	}
	return room.ID, nil
}

// ListRooms fetches the joinable-room snapshot.
func (t *Transport) ListRooms(ctx context.Context) ([]*models.Room, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/rooms/list", nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list rooms: relay returned %d", resp.StatusCode)
	}

	var rooms []*models.Room
	if err := json.NewDecoder(resp.Body).Decode(&rooms); err != nil {
		return nil, fmt.Errorf("decode room list: %w", err)
	}
	return rooms, nil
}

// JoinRoom dials the room websocket and waits for the relay's initial sync
// snapshot. The relay assigns the player identity from the auth cookie, so
// player.ID is rewritten to the assigned id before returning.
func (t *Transport) JoinRoom(ctx context.Context, roomID string, player *models.Player) (*models.Room, error) {
	wsURL := t.baseURL + "/rooms/ws/" + url.PathEscape(roomID) + "?name=" + url.QueryEscape(player.Name)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{"relay"},
		HTTPClient:   t.httpc,
	})
	if err != nil {
		return nil, fmt.Errorf("dial room %s: %w", roomID, err)
	}

	// First frame is the authoritative snapshot, or a close explaining why
	// the join was rejected.
	_, data, err := conn.Read(ctx)
	if err != nil {
		conn.Close(websocket.StatusInternalError, "join failed")
		switch websocket.CloseStatus(err) {
		case InvalidRoomIDCode:
			return nil, multiplayer.ErrRoomNotFound
		case RoomFullCode:
			return nil, multiplayer.ErrRoomFull
		}
		return nil, fmt.Errorf("join room %s: %w", roomID, err)
	}

	var msg multiplayer.SessionMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		conn.Close(websocket.StatusInvalidFramePayloadData, "bad initial frame")
		return nil, fmt.Errorf("join room %s: decode initial frame: %w", roomID, err)
	}
	if msg.Type != multiplayer.MsgSync {
		conn.Close(websocket.StatusProtocolError, "expected sync")
		return nil, fmt.Errorf("join room %s: expected sync, got %s", roomID, msg.Type)
	}
	var snap multiplayer.SyncPayload
	if err := msg.DecodePayload(&snap); err != nil {
		conn.Close(websocket.StatusInvalidFramePayloadData, "bad sync payload")
		return nil, err
	}

	player.ID = msg.PlayerID

	rc := &roomClient{
		conn:     conn,
		playerID: msg.PlayerID,
		inbound:  make(chan multiplayer.SessionMessage, inboundQueueSize),
		done:     make(chan struct{}),
	}
	t.mu.Lock()
	if old, ok := t.rooms[roomID]; ok {
		old.close()
	}
	t.rooms[roomID] = rc
	t.mu.Unlock()

	go t.readLoop(roomID, rc)

	return snap.Room, nil
}

// LeaveRoom closes the room connection; the relay performs the session
// leave on disconnect.
func (t *Transport) LeaveRoom(ctx context.Context, roomID string, playerID uuid.UUID) error {
	t.mu.Lock()
	rc, ok := t.rooms[roomID]
	if ok {
		delete(t.rooms, roomID)
	}
	t.mu.Unlock()
	if !ok {
		return nil
	}
	rc.close()
	return rc.conn.Close(websocket.StatusNormalClosure, "leaving")
}

// SendToRoom writes the message to the room socket. Session-control
// validation happens relay-side; a rejected start comes back as a sync
// snapshot rather than an error here.
func (t *Transport) SendToRoom(ctx context.Context, roomID string, msg multiplayer.SessionMessage) error {
	t.mu.Lock()
	rc, ok := t.rooms[roomID]
	t.mu.Unlock()
	if !ok {
		return multiplayer.ErrNotInRoom
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", msg.Type, err)
	}
	if err := rc.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("send to room %s: %w", roomID, err)
	}
	return nil
}

// Subscribe attaches the inbound handler, draining anything buffered since
// the join.
func (t *Transport) Subscribe(roomID string, playerID uuid.UUID, fn func(multiplayer.SessionMessage)) (func(), error) {
	t.mu.Lock()
	rc, ok := t.rooms[roomID]
	t.mu.Unlock()
	if !ok {
		return nil, multiplayer.ErrNotInRoom
	}

	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			case <-rc.done:
				return
			case msg := <-rc.inbound:
				fn(msg)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(stop) })
	}, nil
}

// readLoop pumps socket frames into the inbound queue until the
// connection drops.
func (t *Transport) readLoop(roomID string, rc *roomClient) {
	ctx := context.Background()
	for {
		select {
		case <-rc.done:
			return
		default:
		}

		_, data, err := rc.conn.Read(ctx)
		if err != nil {
			rc.close()
			return
		}
		var msg multiplayer.SessionMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.logger.Warnf("ws transport: invalid frame from room %s: %v", roomID, err)
			continue
		}
		select {
		case rc.inbound <- msg:
		default:
			t.logger.Warnf("ws transport: inbound queue full for room %s, dropped %s", roomID, msg.Type)
		}
	}
}

// Close status codes mirrored from the relay's custom codes.
const (
	InvalidRoomIDCode websocket.StatusCode = 3003
	RoomFullCode      websocket.StatusCode = 3004
)
