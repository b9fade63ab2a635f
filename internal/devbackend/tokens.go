package devbackend

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// tokenType distinguishes the three kinds of JWT the backend issues.
type tokenType string

const (
	tokenTypeAccess   tokenType = "access"
	tokenTypeRefresh  tokenType = "refresh"
	tokenTypePlayback tokenType = "playback"
)

var errWrongTokenType = errors.New("wrong token type")

type claims struct {
	Type    tokenType `json:"type"`
	VideoID string    `json:"video_id,omitempty"`
	jwt.RegisteredClaims
}

// issuer signs and verifies tokens with a shared HMAC secret.
type issuer struct {
	secret []byte
	now    func() time.Time
}

// issue signs a token of the given type for subject. videoID is only set on
// playback tokens.
func (i *issuer) issue(typ tokenType, subject, videoID string, ttl time.Duration) (string, time.Time, error) {
	now := i.now()
	expiresAt := now.Add(ttl)

	c := claims{
		Type:    typ,
		VideoID: videoID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing %s token: %w", typ, err)
	}
	return signed, expiresAt, nil
}

// verify parses raw and checks signature, expiry and type.
func (i *issuer) verify(raw string, typ tokenType) (*claims, error) {
	c := &claims{}
	_, err := jwt.ParseWithClaims(raw, c,
		func(*jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, err
	}
	if c.Type != typ {
		return nil, fmt.Errorf("%w: got %q, want %q", errWrongTokenType, c.Type, typ)
	}
	return c, nil
}
