// Package auth implements AuthGate: session token verification and
// Principal resolution for WebSocket upgrades.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the payload of a signed session token issued by the
// out-of-scope auth service; this package only ever verifies it.
type Claims struct {
	WalletAddress string `json:"wallet"`
	UserID        string `json:"userId"`
	Role          string `json:"role"`
	Nickname      string `json:"nickname"`
	jwt.RegisteredClaims
}

// NewClaims is a test/fixture helper for issuing claims with sane
// expiry defaults; production tokens are minted by the external auth
// service, never by this package.
func NewClaims(wallet, userID, role, nickname string, ttl time.Duration) *Claims {
	now := time.Now()
	return &Claims{
		WalletAddress: wallet,
		UserID:        userID,
		Role:          role,
		Nickname:      nickname,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}
