package handler

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const agentTokenIssuer = "phantom-links"

var ErrInvalidToken = errors.New("invalid agent token")

// AgentTokens issues and verifies the HS256 tokens agents present when they
// open the sync channel. The token subject is the agent ID.
type AgentTokens struct {
	secret []byte
	now    func() time.Time
}

func NewAgentTokens(secret string) *AgentTokens {
	return &AgentTokens{secret: []byte(secret), now: time.Now}
}

// Issue signs a token for agentID valid for ttl.
func (t *AgentTokens) Issue(agentID string, ttl time.Duration) (string, time.Time, error) {
	if agentID == "" {
		return "", time.Time{}, errors.New("agent id is required")
	}
	now := t.now()
	expirationTime := now.Add(ttl)
	claims := &jwt.RegisteredClaims{
		Issuer:    agentTokenIssuer,
		Subject:   agentID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expirationTime),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing agent token: %w", err)
	}
	return signed, expirationTime, nil
}

// Verify returns the agent ID carried by a valid token.
func (t *AgentTokens) Verify(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(agentTokenIssuer),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
