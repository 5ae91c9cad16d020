package web

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenIssuer   = "coachhire-worker"
	tokenAudience = "coachhire-admin"
	apiKeyActor   = "api-key"
)

// tokens issues and verifies operator bearer tokens (HS256). The subject is
// the operator email, which review transitions record as the actor.
type tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// newTokens falls back to a random per-process secret when none is
// configured, which only config validation in dev mode allows.
func newTokens(secret string, ttl time.Duration) *tokens {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		_, _ = rand.Read(key)
	}
	return &tokens{secret: key, ttl: ttl, now: time.Now}
}

func (t *tokens) issue(operator string) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.ttl)
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Audience:  jwt.ClaimStrings{tokenAudience},
		Subject:   operator,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign operator token: %w", err)
	}
	return signed, exp, nil
}

// verify returns the operator a valid token was issued to.
func (t *tokens) verify(raw string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(tokenAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

func bearer(r *http.Request) (string, bool) {
	scheme, tok, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}

func keyMatches(got, want string) bool {
	return want != "" && subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

type actorKey struct{}

// actorFrom names who made the request: an operator email, or "api-key" for
// automation using the static key.
func actorFrom(ctx context.Context) string {
	v, _ := ctx.Value(actorKey{}).(string)
	return v
}

// authenticate admits a request carrying the admin key or a valid operator
// token. A wrong key is 403; a missing or bad token is 401.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := ""
		if key := r.Header.Get("X-API-Key"); key != "" {
			if !keyMatches(key, s.apiKey) {
				writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden"})
				return
			}
			actor = apiKeyActor
		} else {
			raw, ok := bearer(r)
			if !ok {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing bearer token"})
				return
			}
			op, err := s.tokens.verify(raw)
			if err != nil {
				s.log.Debug().Err(err).Msg("operator token rejected")
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid token"})
				return
			}
			actor = op
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey{}, actor)))
	})
}

type tokenRequest struct {
	Operator string `json:"operator" validate:"required,email"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// handleMintToken trades the admin key for a token naming one operator, so
// review actions are attributed to a person.
func (s *Server) handleMintToken(w http.ResponseWriter, r *http.Request) {
	if !keyMatches(r.Header.Get("X-API-Key"), s.apiKey) {
		writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden"})
		return
	}
	var req tokenRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	tok, exp, err := s.tokens.issue(strings.ToLower(req.Operator))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: tok, ExpiresAt: exp})
}
