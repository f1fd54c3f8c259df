package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMalformed is returned by Peek when the value is not a decodable JWT.
var ErrMalformed = errors.New("malformed access token")

// Claims is the subset of access-token claims the client inspects.
type Claims struct {
	Subject   string
	UserID    string
	Role      string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

type accessClaims struct {
	UserID string `json:"user_id,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

var peekParser = jwt.NewParser()

// Peek decodes the claims of tok without verifying its signature. The backend is
// the only party that can verify the token; the client only reads timing hints.
func Peek(tok string) (Claims, error) {
	if tok == "" {
		return Claims{}, ErrMalformed
	}

	var raw accessClaims
	if _, _, err := peekParser.ParseUnverified(tok, &raw); err != nil {
		return Claims{}, errors.Join(ErrMalformed, err)
	}

	out := Claims{
		Subject: raw.Subject,
		UserID:  raw.UserID,
		Role:    raw.Role,
	}
	if raw.ExpiresAt != nil {
		out.ExpiresAt = raw.ExpiresAt.Time
	}
	if raw.IssuedAt != nil {
		out.IssuedAt = raw.IssuedAt.Time
	}
	return out, nil
}

// ExpiresWithin reports whether tok expires within window of now. Tokens without
// an exp claim, or that cannot be decoded, are reported as not expiring so the
// caller falls back to reacting to 401 responses.
func ExpiresWithin(tok string, window time.Duration, now time.Time) bool {
	if window <= 0 {
		return false
	}
	claims, err := Peek(tok)
	if err != nil || claims.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(window).Before(claims.ExpiresAt)
}
