package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenTTL is fixed at issuance; clients receive the same value as
// expires_in for scheduling their own refresh.
const AccessTokenTTL = 130 * time.Minute

var (
	ErrTokenExpired = errors.New("access token expired")
	ErrTokenInvalid = errors.New("access token invalid")
)

type AccessClaims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies stateless access tokens with a
// process-wide symmetric secret. HS256 only.
type TokenManager struct {
	secret []byte
	issuer string
}

func NewTokenManager(secret, issuer string) *TokenManager {
	return &TokenManager{secret: []byte(secret), issuer: issuer}
}

func (m *TokenManager) SignAccessToken(userID uint, name string) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   fmt.Sprintf("%d", userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(AccessTokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// ParseAccessToken collapses every verification failure into ErrTokenExpired
// or ErrTokenInvalid; callers never see library error types.
func (m *TokenManager) ParseAccessToken(raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing algorithm")
		}
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !tok.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// ExpiresInSeconds is the expires_in value reported next to every issued
// access token.
func ExpiresInSeconds() int {
	return int(AccessTokenTTL / time.Second)
}
