// internal/handlers/identity.go
package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/mindspar/mindspar/internal/auth"
)

// EnsureEphemeralPlayer resolves the caller's player identity from the
// auth_token cookie, minting a fresh ephemeral identity (and setting the
// cookie) when none is present or the token fails verification. Players
// have no accounts; the identity only needs to be stable across requests
// from the same client.
func EnsureEphemeralPlayer(w http.ResponseWriter, r *http.Request) (uuid.UUID, error) {
	cookieHeader := r.Header.Get("Cookie")
	if strings.Contains(cookieHeader, "auth_token=") {
		token := extractCookieToken(cookieHeader, "auth_token")
		if idStr, err := auth.AuthenticateJWT(token); err == nil {
			if playerID, err := uuid.Parse(idStr); err == nil {
				return playerID, nil
			}
		}
		// Fall through and mint a replacement for a bad or stale token.
	}

	playerID := uuid.New()
	token, err := auth.CreateJWT(playerID.String())
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create ephemeral JWT: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "auth_token",
		Value:    token,
		HttpOnly: true,
		Path:     "/",
	})
	return playerID, nil
}
