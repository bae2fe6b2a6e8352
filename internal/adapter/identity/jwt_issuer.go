package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"

	"github.com/rl1809/warehouse-inventory/internal/port"
)

var ErrEmptySecret = errors.New("jwt secret must not be empty")

// JWTIssuer signs HS256 tokens carrying the associate id as subject and a
// random token id used for revocation.
type JWTIssuer struct {
	secret []byte
	now    func() time.Time
}

func NewJWTIssuer(secret string) (*JWTIssuer, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &JWTIssuer{secret: []byte(secret), now: time.Now}, nil
}

func (j *JWTIssuer) Issue(subject string, ttl time.Duration) (string, port.TokenClaims, error) {
	now := j.now()
	expiresAt := now.Add(ttl)
	claims := &jwt.StandardClaims{
		Id:        uuid.NewString(),
		Subject:   subject,
		IssuedAt:  now.Unix(),
		ExpiresAt: expiresAt.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(j.secret)
	if err != nil {
		return "", port.TokenClaims{}, err
	}

	return signed, port.TokenClaims{
		Subject:   claims.Subject,
		TokenID:   claims.Id,
		ExpiresAt: time.Unix(claims.ExpiresAt, 0),
	}, nil
}

func (j *JWTIssuer) Verify(token string) (port.TokenClaims, error) {
	claims := &jwt.StandardClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return j.secret, nil
	})
	if err != nil {
		return port.TokenClaims{}, err
	}
	if !parsed.Valid || claims.Id == "" || claims.Subject == "" {
		return port.TokenClaims{}, errors.New("incomplete token claims")
	}

	return port.TokenClaims{
		Subject:   claims.Subject,
		TokenID:   claims.Id,
		ExpiresAt: time.Unix(claims.ExpiresAt, 0),
	}, nil
}
