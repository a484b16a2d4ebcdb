package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/warp/splitledger/ledger"
)

// PartyHeader carries the acting party when no JWT secret is configured.
const PartyHeader = "X-Party-ID"

type partyKey struct{}

var errNoCredentials = errors.New("missing credentials")

// Authenticator resolves the acting party of a request. With a secret it
// requires an HS256 bearer token carrying a user_id claim; without one it
// trusts PartyHeader.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

func (a *Authenticator) Enabled() bool { return len(a.secret) > 0 }

// IssueToken signs a token for party valid for ttl.
func (a *Authenticator) IssueToken(party ledger.PartyID, ttl time.Duration) (string, error) {
	if !a.Enabled() {
		return "", errors.New("no jwt secret configured")
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": string(party),
		"iat":     now.Unix(),
		"exp":     now.Add(ttl).Unix(),
	})
	return token.SignedString(a.secret)
}

// Middleware rejects requests without a resolvable party with 401.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		party, err := a.resolve(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Unauthorized", err)
			return
		}
		ctx := context.WithValue(r.Context(), partyKey{}, party)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) resolve(r *http.Request) (ledger.PartyID, error) {
	if !a.Enabled() {
		party := strings.TrimSpace(r.Header.Get(PartyHeader))
		if party == "" {
			return "", errNoCredentials
		}
		return ledger.PartyID(party), nil
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errNoCredentials
	}
	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || scheme != "Bearer" || token == "" {
		return "", errors.New("invalid authorization header format")
	}
	return a.validateToken(token)
}

func (a *Authenticator) validateToken(tokenString string) (ledger.PartyID, error) {
	token, err := jwt.Parse(tokenString, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid token claims")
	}
	userID, _ := claims["user_id"].(string)
	if userID == "" {
		return "", errors.New("token has no user_id claim")
	}
	return ledger.PartyID(userID), nil
}

// PartyFromContext returns the party set by Authenticator.Middleware.
func PartyFromContext(ctx context.Context) (ledger.PartyID, bool) {
	p, ok := ctx.Value(partyKey{}).(ledger.PartyID)
	return p, ok && p != ""
}
