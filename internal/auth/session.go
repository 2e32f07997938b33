package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// WebSession is what the browser cookie carries between requests.
type WebSession struct {
	ID      string
	UserID  int64
	Pending string // handshake token awaiting the bot callback
}

// LoggedIn reports whether the session is bound to a user.
func (s WebSession) LoggedIn() bool {
	return s.UserID > 0
}

type sessionClaims struct {
	Pending string `json:"pending,omitempty"`
	jwt.RegisteredClaims
}

// SessionCodec signs and verifies web session cookies with HS256.
type SessionCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSessionCodec(secret string, ttl time.Duration) *SessionCodec {
	return &SessionCodec{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// NewSession returns an anonymous session with a fresh id.
func (c *SessionCodec) NewSession() WebSession {
	return WebSession{ID: uuid.NewString()}
}

// Encode returns the signed cookie value and its expiry.
func (c *SessionCodec) Encode(s WebSession) (string, time.Time, error) {
	now := c.now()
	exp := now.Add(c.ttl)
	claims := sessionClaims{
		Pending: s.Pending,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        s.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	if s.UserID > 0 {
		claims.Subject = strconv.FormatInt(s.UserID, 10)
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session: %w", err)
	}
	return signed, exp, nil
}

// Decode verifies a cookie value produced by Encode.
func (c *SessionCodec) Decode(raw string) (WebSession, error) {
	var claims sessionClaims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(c.now))
	if err != nil {
		return WebSession{}, err
	}
	if !tok.Valid {
		return WebSession{}, errors.New("invalid session token")
	}

	s := WebSession{ID: claims.ID, Pending: claims.Pending}
	if claims.Subject != "" {
		id, err := strconv.ParseInt(claims.Subject, 10, 64)
		if err != nil {
			return WebSession{}, fmt.Errorf("session subject: %w", err)
		}
		s.UserID = id
	}
	return s, nil
}
