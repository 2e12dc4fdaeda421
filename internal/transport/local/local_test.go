// internal/transport/local/local_test.go
package local

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindspar/mindspar/internal/models"
	"github.com/mindspar/mindspar/internal/multiplayer"
)

const (
	waitTimeout = 2 * time.Second
	waitTick    = 5 * time.Millisecond
)

// inbox collects delivered messages behind a mutex.
type inbox struct {
	mu   sync.Mutex
	msgs []multiplayer.SessionMessage
}

func (in *inbox) receive(msg multiplayer.SessionMessage) {
	in.mu.Lock()
	in.msgs = append(in.msgs, msg)
	in.mu.Unlock()
}

func (in *inbox) len() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.msgs)
}

func (in *inbox) all() []multiplayer.SessionMessage {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := make([]multiplayer.SessionMessage, len(in.msgs))
	copy(out, in.msgs)
	return out
}

func joinedRoom(t *testing.T) (tr *Transport, roomID string, a, b *models.Player) {
	t.Helper()
	tr = New(multiplayer.NewRoomDirectory())

	roomID, err := tr.CreateRoom(context.Background(), "test", "lightning-math", 4)
	require.NoError(t, err)

	a = &models.Player{ID: uuid.New(), Name: "a"}
	b = &models.Player{ID: uuid.New(), Name: "b"}
	_, err = tr.JoinRoom(context.Background(), roomID, a)
	require.NoError(t, err)
	_, err = tr.JoinRoom(context.Background(), roomID, b)
	require.NoError(t, err)
	return tr, roomID, a, b
}

func TestJoinUnknownRoom(t *testing.T) {
	tr := New(multiplayer.NewRoomDirectory())
	_, err := tr.JoinRoom(context.Background(), "XXXXXX", &models.Player{ID: uuid.New()})
	assert.ErrorIs(t, err, multiplayer.ErrRoomNotFound)
}

func TestBroadcastExcludesSender(t *testing.T) {
	tr, roomID, a, b := joinedRoom(t)

	inA, inB := &inbox{}, &inbox{}
	unsubA, err := tr.Subscribe(roomID, a.ID, inA.receive)
	require.NoError(t, err)
	defer unsubA()
	unsubB, err := tr.Subscribe(roomID, b.ID, inB.receive)
	require.NoError(t, err)
	defer unsubB()

	msg, err := multiplayer.NewMessage(multiplayer.MsgChat, a.ID, models.ChatMessage{
		ID:       uuid.New(),
		PlayerID: a.ID,
		Message:  "hi",
	})
	require.NoError(t, err)
	require.NoError(t, tr.SendToRoom(context.Background(), roomID, msg))

	require.Eventually(t, func() bool { return inB.len() == 1 }, waitTimeout, waitTick)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, inA.len(), "sender must not receive its own broadcast")
}

func TestPerSenderOrdering(t *testing.T) {
	tr, roomID, a, b := joinedRoom(t)

	inB := &inbox{}
	unsub, err := tr.Subscribe(roomID, b.ID, inB.receive)
	require.NoError(t, err)
	defer unsub()

	const n = 50
	for i := 0; i < n; i++ {
		msg, err := multiplayer.NewMessage(multiplayer.MsgChat, a.ID, models.ChatMessage{
			ID:       uuid.New(),
			PlayerID: a.ID,
			Message:  strconv.Itoa(i),
		})
		require.NoError(t, err)
		require.NoError(t, tr.SendToRoom(context.Background(), roomID, msg))
	}

	require.Eventually(t, func() bool { return inB.len() == n }, waitTimeout, waitTick)

	for i, msg := range inB.all() {
		var chat multiplayer.ChatPayload
		require.NoError(t, msg.DecodePayload(&chat))
		assert.Equal(t, strconv.Itoa(i), chat.Message, "messages from one sender must arrive in send order")
	}
}

func TestSendAppliesSessionControl(t *testing.T) {
	tr, roomID, a, b := joinedRoom(t)
	ctx := context.Background()

	readyA, err := multiplayer.NewMessage(multiplayer.MsgReady, a.ID, multiplayer.ReadyPayload{IsReady: true})
	require.NoError(t, err)
	require.NoError(t, tr.SendToRoom(ctx, roomID, readyA))

	// Start must fail while b is unready and leave the room waiting.
	start, err := multiplayer.NewMessage(multiplayer.MsgStartGame, a.ID, multiplayer.StartGamePayload{})
	require.NoError(t, err)
	assert.ErrorIs(t, tr.SendToRoom(ctx, roomID, start), multiplayer.ErrNotAllReady)

	sess, ok := tr.dir.GetRoom(roomID)
	require.True(t, ok)
	assert.Equal(t, models.GameWaiting, sess.Snapshot().GameState)

	readyB, err := multiplayer.NewMessage(multiplayer.MsgReady, b.ID, multiplayer.ReadyPayload{IsReady: true})
	require.NoError(t, err)
	require.NoError(t, tr.SendToRoom(ctx, roomID, readyB))
	require.NoError(t, tr.SendToRoom(ctx, roomID, start))
	assert.Equal(t, models.GamePlaying, sess.Snapshot().GameState)
}

func TestNonHostStartIsNotRebroadcast(t *testing.T) {
	tr, roomID, a, b := joinedRoom(t)
	ctx := context.Background()

	for _, p := range []*models.Player{a, b} {
		ready, err := multiplayer.NewMessage(multiplayer.MsgReady, p.ID, multiplayer.ReadyPayload{IsReady: true})
		require.NoError(t, err)
		require.NoError(t, tr.SendToRoom(ctx, roomID, ready))
	}

	inA := &inbox{}
	unsub, err := tr.Subscribe(roomID, a.ID, inA.receive)
	require.NoError(t, err)
	defer unsub()

	// b is not the host; the frame must be swallowed, not fanned out, or
	// every receiver would flip to playing while the session stays waiting.
	start, err := multiplayer.NewMessage(multiplayer.MsgStartGame, b.ID, multiplayer.StartGamePayload{})
	require.NoError(t, err)
	require.NoError(t, tr.SendToRoom(ctx, roomID, start))

	sess, ok := tr.dir.GetRoom(roomID)
	require.True(t, ok)
	assert.Equal(t, models.GameWaiting, sess.Snapshot().GameState)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, inA.len(), "a no-op start must not reach other members")
}

func TestLeaveStopsDelivery(t *testing.T) {
	tr, roomID, a, b := joinedRoom(t)
	ctx := context.Background()

	inA := &inbox{}
	_, err := tr.Subscribe(roomID, a.ID, inA.receive)
	require.NoError(t, err)

	require.NoError(t, tr.LeaveRoom(ctx, roomID, a.ID))

	msg, err := multiplayer.NewMessage(multiplayer.MsgChat, b.ID, models.ChatMessage{
		ID:       uuid.New(),
		PlayerID: b.ID,
		Message:  "anyone there",
	})
	require.NoError(t, err)
	require.NoError(t, tr.SendToRoom(ctx, roomID, msg))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, inA.len())
}

func TestSubscribeReplacesPrevious(t *testing.T) {
	tr, roomID, a, b := joinedRoom(t)

	old, fresh := &inbox{}, &inbox{}
	_, err := tr.Subscribe(roomID, b.ID, old.receive)
	require.NoError(t, err)
	unsub, err := tr.Subscribe(roomID, b.ID, fresh.receive)
	require.NoError(t, err)
	defer unsub()

	msg, err := multiplayer.NewMessage(multiplayer.MsgChat, a.ID, models.ChatMessage{
		ID:       uuid.New(),
		PlayerID: a.ID,
		Message:  "ping",
	})
	require.NoError(t, err)
	require.NoError(t, tr.SendToRoom(context.Background(), roomID, msg))

	require.Eventually(t, func() bool { return fresh.len() == 1 }, waitTimeout, waitTick)
	assert.Equal(t, 0, old.len(), "replaced subscriber must stop receiving")
}
