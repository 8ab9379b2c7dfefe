package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/golang-jwt/jwt/v5"

	"github.com/odin-markets/realtime-core/internal/principal"
	"github.com/odin-markets/realtime-core/internal/wserr"
)

// UserRecord is what the (externally owned) users store returns for a
// wallet address.
type UserRecord struct {
	WalletAddress string
	UserID        string
	Role          string
	Nickname      string
	Banned        bool
}

// UserStore resolves a wallet to its user record. The core does not
// own this schema; production wiring points this at the REST
// service's user table.
type UserStore interface {
	LookupWallet(ctx context.Context, wallet string) (*UserRecord, error)
}

// ErrUserNotFound is returned by UserStore implementations when the
// wallet is unknown.
var ErrUserNotFound = errors.New("wallet not found")

// Gate verifies session tokens and resolves Principals. Each Gate
// carries one token-required policy; the server picks the Gate for an
// endpoint by that endpoint's policy.
type Gate struct {
	secret       []byte
	users        UserStore
	tokenOptional bool // true for public endpoints (market/token firehose)
}

func NewGate(secret string, users UserStore, tokenOptional bool) *Gate {
	return &Gate{secret: []byte(secret), users: users, tokenOptional: tokenOptional}
}

// Authenticate extracts a token from the request (Sec-WebSocket-Protocol
// header first, then the `token` query parameter), verifies it, and
// resolves the Principal. On a public endpoint with no token present,
// it returns principal.Anonymous instead of failing.
func (g *Gate) Authenticate(ctx context.Context, r *http.Request) (principal.Principal, error) {
	token := extractFromProtocolHeader(r)
	if token == "" {
		token = r.URL.Query().Get("token")
	}

	if token == "" {
		if g.tokenOptional {
			return principal.Anonymous, nil
		}
		return principal.Principal{}, wserr.New(wserr.CodeUnauthorized, "missing session token")
	}

	claims, err := g.verify(token)
	if err != nil {
		return principal.Principal{}, wserr.Wrap(wserr.CodeUnauthorized, "invalid session token", err)
	}

	rec, err := g.users.LookupWallet(ctx, claims.WalletAddress)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return principal.Principal{}, wserr.New(wserr.CodeUnauthorized, "unknown wallet")
		}
		return principal.Principal{}, wserr.Wrap(wserr.CodeExternalServiceFail, "user lookup failed", err)
	}
	if rec.Banned {
		return principal.Principal{}, wserr.New(wserr.CodeUnauthorized, "wallet banned")
	}

	return principal.Principal{
		WalletAddress: rec.WalletAddress,
		UserID:        rec.UserID,
		Role:          principal.Role(rec.Role),
		Nickname:      rec.Nickname,
	}, nil
}

func (g *Gate) verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return g.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// extractFromProtocolHeader reads the session token carried in the
// Sec-WebSocket-Protocol header, the browser-friendly way to pass a
// bearer token on a WebSocket upgrade (no custom headers allowed).
func extractFromProtocolHeader(r *http.Request) string {
	return r.Header.Get("Sec-WebSocket-Protocol")
}
