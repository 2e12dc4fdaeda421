// internal/transport/ws/ws_test.go
package ws_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindspar/mindspar/internal/auth"
	"github.com/mindspar/mindspar/internal/handlers"
	"github.com/mindspar/mindspar/internal/models"
	"github.com/mindspar/mindspar/internal/multiplayer"
	"github.com/mindspar/mindspar/internal/transport/ws"
)

const (
	waitTimeout = 3 * time.Second
	waitTick    = 10 * time.Millisecond
)

func TestMain(m *testing.M) {
	auth.Init()
	os.Exit(m.Run())
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// newRelay spins up a relay server the way cmd/relay wires it, minus the
// journal.
func newRelay(t *testing.T) *httptest.Server {
	t.Helper()
	logger := quietLogger()
	rs := handlers.NewRelayServer(logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/rooms/create", handlers.CreateRoomHandler(rs))
	mux.HandleFunc("/rooms/list", handlers.ListRoomsHandler(rs))
	mux.HandleFunc("/rooms/ws/", handlers.RoomWSHandler(logger, rs))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type collector struct {
	mu    sync.Mutex
	rooms []*models.Room
	chats []models.ChatMessage
	games []multiplayer.SessionMessage
}

func (c *collector) callbacks() multiplayer.Callbacks {
	return multiplayer.Callbacks{
		OnRoomUpdate: func(room *models.Room) {
			c.mu.Lock()
			c.rooms = append(c.rooms, room)
			c.mu.Unlock()
		},
		OnChatMessage: func(msg models.ChatMessage) {
			c.mu.Lock()
			c.chats = append(c.chats, msg)
			c.mu.Unlock()
		},
		OnGameMessage: func(msg multiplayer.SessionMessage) {
			c.mu.Lock()
			c.games = append(c.games, msg)
			c.mu.Unlock()
		},
	}
}

func (c *collector) chatCount(text string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, m := range c.chats {
		if strings.Contains(m.Message, text) {
			n++
		}
	}
	return n
}

// newClient builds a coordinator over its own websocket transport. Each
// client has its own cookie jar and therefore its own relay identity.
func newClient(t *testing.T, baseURL string) (*multiplayer.Coordinator, *collector) {
	t.Helper()
	tr, err := ws.New(baseURL, quietLogger())
	require.NoError(t, err)
	c := multiplayer.NewCoordinator(tr, quietLogger())
	col := &collector{}
	c.SetCallbacks(col.callbacks())
	return c, col
}

func TestCreateAndListOverRelay(t *testing.T) {
	srv := newRelay(t)
	ctx := context.Background()
	c, _ := newClient(t, srv.URL)

	code, err := c.CreateRoom(ctx, "relay room", "word-chain", 3)
	require.NoError(t, err)
	require.Len(t, code, 6)

	rooms, err := c.GetAvailableRooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, code, rooms[0].ID)
	assert.Equal(t, "relay room", rooms[0].Name)
	assert.Equal(t, "word-chain", rooms[0].GameMode)
}

func TestJoinUnknownRoomOverRelay(t *testing.T) {
	srv := newRelay(t)
	c, _ := newClient(t, srv.URL)

	_, err := c.JoinRoom(context.Background(), "ZZZZZZ", "ghost")
	assert.ErrorIs(t, err, multiplayer.ErrRoomNotFound)
}

func TestJoinFullRoomOverRelay(t *testing.T) {
	srv := newRelay(t)
	ctx := context.Background()

	a, _ := newClient(t, srv.URL)
	b, _ := newClient(t, srv.URL)
	c, _ := newClient(t, srv.URL)

	code, err := a.CreateRoom(ctx, "", "", 2)
	require.NoError(t, err)
	_, err = a.JoinRoom(ctx, code, "a")
	require.NoError(t, err)
	_, err = b.JoinRoom(ctx, code, "b")
	require.NoError(t, err)

	_, err = c.JoinRoom(ctx, code, "c")
	assert.ErrorIs(t, err, multiplayer.ErrRoomFull)
}

func TestRelayAssignsIdentity(t *testing.T) {
	srv := newRelay(t)
	ctx := context.Background()
	c, _ := newClient(t, srv.URL)

	code, err := c.CreateRoom(ctx, "", "", 0)
	require.NoError(t, err)
	room, err := c.JoinRoom(ctx, code, "alice")
	require.NoError(t, err)

	lp := c.LocalPlayer()
	require.NotNil(t, lp)
	member := room.FindPlayer(lp.ID)
	require.NotNil(t, member, "local identity must match the relay-assigned membership")
	assert.Equal(t, "alice", member.Name)
	assert.True(t, member.IsHost)
}

func TestLobbyFlowOverRelay(t *testing.T) {
	srv := newRelay(t)
	ctx := context.Background()

	alice, colA := newClient(t, srv.URL)
	bob, colB := newClient(t, srv.URL)

	code, err := alice.CreateRoom(ctx, "flow", "lightning-math", 4)
	require.NoError(t, err)
	_, err = alice.JoinRoom(ctx, code, "alice")
	require.NoError(t, err)
	_, err = bob.JoinRoom(ctx, code, "bob")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		r := alice.CurrentRoom()
		return r != nil && len(r.Players) == 2
	}, waitTimeout, waitTick, "alice never saw bob join")
	require.Eventually(t, func() bool {
		return colA.chatCount("bob joined the room") == 1
	}, waitTimeout, waitTick, "alice never got the join announcement")

	require.NoError(t, alice.ToggleReady(ctx))
	require.NoError(t, bob.ToggleReady(ctx))
	require.Eventually(t, func() bool {
		r := alice.CurrentRoom()
		if r == nil {
			return false
		}
		for _, p := range r.Players {
			if !p.IsReady {
				return false
			}
		}
		return true
	}, waitTimeout, waitTick, "readiness never converged")

	require.NoError(t, alice.StartGame(ctx))
	assert.Equal(t, models.GamePlaying, alice.CurrentRoom().GameState)
	require.Eventually(t, func() bool {
		return bob.CurrentRoom().GameState == models.GamePlaying
	}, waitTimeout, waitTick, "bob never saw the start")

	require.NoError(t, bob.SendChatMessage(ctx, "good luck"))
	require.Eventually(t, func() bool {
		return colA.chatCount("good luck") == 1
	}, waitTimeout, waitTick)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, colB.chatCount("good luck"), "sender echo must be exactly once")
}

func TestNonHostRawStartOverRelay(t *testing.T) {
	srv := newRelay(t)
	ctx := context.Background()

	alice, _ := newClient(t, srv.URL)
	code, err := alice.CreateRoom(ctx, "", "", 0)
	require.NoError(t, err)
	_, err = alice.JoinRoom(ctx, code, "alice")
	require.NoError(t, err)

	// A bare transport writing frames directly, no coordinator-side checks.
	tr, err := ws.New(srv.URL, quietLogger())
	require.NoError(t, err)
	bob := &models.Player{Name: "bob"}
	_, err = tr.JoinRoom(ctx, code, bob)
	require.NoError(t, err)

	var mu sync.Mutex
	var inbound []multiplayer.SessionMessage
	unsub, err := tr.Subscribe(code, bob.ID, func(msg multiplayer.SessionMessage) {
		mu.Lock()
		inbound = append(inbound, msg)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer unsub()

	start, err := multiplayer.NewMessage(multiplayer.MsgStartGame, bob.ID, multiplayer.StartGamePayload{})
	require.NoError(t, err)
	require.NoError(t, tr.SendToRoom(ctx, code, start))

	// The relay must answer the sender with a reconciling snapshot still
	// in waiting, and must not announce a start to anyone.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, msg := range inbound {
			if msg.Type == multiplayer.MsgSync {
				var p multiplayer.SyncPayload
				if msg.DecodePayload(&p) == nil && p.Room.GameState == models.GameWaiting {
					return true
				}
			}
		}
		return false
	}, waitTimeout, waitTick, "sender never got the reconciling sync")

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, models.GameWaiting, alice.CurrentRoom().GameState,
		"other members must not observe a start that was rejected")
}

func TestRejoinSameIdentityOverRelay(t *testing.T) {
	srv := newRelay(t)
	ctx := context.Background()

	alice, _ := newClient(t, srv.URL)
	code, err := alice.CreateRoom(ctx, "", "", 0)
	require.NoError(t, err)
	_, err = alice.JoinRoom(ctx, code, "alice")
	require.NoError(t, err)

	// One cookie jar, two joins: the second socket carries the same relay
	// identity, as a second browser tab would.
	tr, err := ws.New(srv.URL, quietLogger())
	require.NoError(t, err)
	bob := &models.Player{Name: "bob"}
	_, err = tr.JoinRoom(ctx, code, bob)
	require.NoError(t, err)
	room, err := tr.JoinRoom(ctx, code, &models.Player{Name: "bob"})
	require.NoError(t, err)

	require.Len(t, room.Players, 2, "re-join must not duplicate the member")
	seen := 0
	for _, p := range room.Players {
		if p.ID == bob.ID {
			seen++
		}
	}
	assert.Equal(t, 1, seen)

	// The replaced connection's teardown must not strip the membership or
	// move the host.
	time.Sleep(100 * time.Millisecond)
	r := alice.CurrentRoom()
	require.NotNil(t, r)
	assert.Len(t, r.Players, 2)
	assert.Equal(t, alice.LocalPlayer().ID, r.HostID)
}

func TestHostTransferOverRelay(t *testing.T) {
	srv := newRelay(t)
	ctx := context.Background()

	alice, _ := newClient(t, srv.URL)
	bob, _ := newClient(t, srv.URL)

	code, err := alice.CreateRoom(ctx, "", "", 0)
	require.NoError(t, err)
	_, err = alice.JoinRoom(ctx, code, "alice")
	require.NoError(t, err)
	_, err = bob.JoinRoom(ctx, code, "bob")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		r := alice.CurrentRoom()
		return r != nil && len(r.Players) == 2
	}, waitTimeout, waitTick)

	require.NoError(t, alice.LeaveRoom(ctx))

	require.Eventually(t, func() bool {
		lp := bob.LocalPlayer()
		return lp != nil && lp.IsHost
	}, waitTimeout, waitTick, "bob never became host")
	require.Len(t, bob.CurrentRoom().Players, 1)
}
