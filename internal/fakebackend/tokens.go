package fakebackend

import (
	"crypto/rand"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type accessClaims struct {
	UserID     string `json:"user_id"`
	Role       string `json:"role,omitempty"`
	Generation uint64 `json:"gen"`
	jwt.RegisteredClaims
}

type signer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func newSigner(ttl time.Duration, now func() time.Time) *signer {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		panic("fakebackend: read random key: " + err.Error())
	}
	return &signer{key: key, ttl: ttl, now: now}
}

func (s *signer) issue(acct Account, gen uint64) (string, error) {
	now := s.now()
	claims := accessClaims{
		UserID:     strconv.FormatInt(acct.ID, 10),
		Role:       acct.Role,
		Generation: gen,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   acct.Matricule,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

func (s *signer) parse(tok string) (*accessClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	var claims accessClaims
	parsed, err := parser.ParseWithClaims(tok, &claims, func(*jwt.Token) (interface{}, error) {
		return s.key, nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, errors.New("token invalid")
	}
	return &claims, nil
}
