// internal/auth/session_test.go
package auth

import (
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	Init()
	os.Exit(m.Run())
}

func TestCreateAndAuthenticateJWT(t *testing.T) {
	playerID := uuid.New().String()

	token, err := CreateJWT(playerID)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	sub, err := AuthenticateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, playerID, sub)
}

func TestAuthenticateRejectsGarbage(t *testing.T) {
	_, err := AuthenticateJWT("not.a.token")
	assert.Error(t, err)
}

func TestAuthenticateRejectsForeignKey(t *testing.T) {
	token, err := CreateJWT(uuid.New().String())
	require.NoError(t, err)

	// Rotate the key pair; previously issued tokens must stop verifying.
	Init()
	_, err = AuthenticateJWT(token)
	assert.Error(t, err)
}
