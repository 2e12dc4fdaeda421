// internal/multiplayer/message_test.go
package multiplayer

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessageEnvelope(t *testing.T) {
	sender := uuid.New()
	msg, err := NewMessage(MsgReady, sender, ReadyPayload{IsReady: true})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, msg.ID, "envelope needs an id for duplicate suppression")
	assert.Equal(t, MsgReady, msg.Type)
	assert.Equal(t, sender, msg.PlayerID)
	assert.NotZero(t, msg.Timestamp)

	var p ReadyPayload
	require.NoError(t, msg.DecodePayload(&p))
	assert.True(t, p.IsReady)
}

func TestMessageWireRoundTrip(t *testing.T) {
	msg, err := NewMessage(MsgStartGame, uuid.New(), StartGamePayload{GameMode: "word-chain"})
	require.NoError(t, err)

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded SessionMessage
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, msg.ID, decoded.ID)

	var p StartGamePayload
	require.NoError(t, decoded.DecodePayload(&p))
	assert.Equal(t, "word-chain", p.GameMode)
}
