package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/shootingwala/inbox/clients/go/inbox"
)

type contextKey string

const ActorContextKey contextKey = "actor"

// TokenVerifier verifies bearer tokens. *inbox.TokenSigner implements it.
type TokenVerifier interface {
	Verify(token string) (inbox.Actor, error)
}

// AuthMiddleware restricts the bridge to the actor it syncs for.
type AuthMiddleware struct {
	verifier TokenVerifier
	actorID  string
}

// NewAuthMiddleware creates an auth middleware that only admits tokens issued
// for actorID.
func NewAuthMiddleware(verifier TokenVerifier, actorID string) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier, actorID: actorID}
}

// RequireActor verifies the bearer token. Browsers cannot set headers on a
// websocket handshake, so a "token" query parameter is accepted as well.
func (m *AuthMiddleware) RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		actor, err := m.verifier.Verify(token)
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, inbox.ErrExpiredToken) {
				msg = "token expired"
			}
			writeError(w, http.StatusUnauthorized, msg)
			return
		}
		if actor.ID != m.actorID {
			writeError(w, http.StatusForbidden, "token is for another actor")
			return
		}

		ctx := context.WithValue(r.Context(), ActorContextKey, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// GetActor retrieves the authenticated actor from the request context.
func GetActor(ctx context.Context) (inbox.Actor, bool) {
	actor, ok := ctx.Value(ActorContextKey).(inbox.Actor)
	return actor, ok
}
