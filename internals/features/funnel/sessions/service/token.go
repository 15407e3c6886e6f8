package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"funnel_backend/internals/features/funnel/sessions/model"
)

var ErrInvalidToken = errors.New("session: invalid token")

// Claims of the session token. sid points at the stored state; the flags are
// a read-only copy for clients.
type Claims struct {
	SessionID          string `json:"sid"`
	Verified           bool   `json:"verified,omitempty"`
	Role               string `json:"role,omitempty"`
	ActiveSubscription bool   `json:"active_subscription,omitempty"`
	FirstAccess        bool   `json:"first_access,omitempty"`
	jwt.RegisteredClaims
}

type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a fresh HS256 token for s.
func (t *Tokens) Issue(s *model.State) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.ttl)
	claims := Claims{
		SessionID:          s.ID.String(),
		Verified:           s.Flags.Verified,
		Role:               s.Flags.Role,
		ActiveSubscription: s.Flags.ActiveSubscription,
		FirstAccess:        s.Flags.FirstAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Parse verifies the token and returns the session id it carries.
func (t *Tokens) Parse(raw string) (uuid.UUID, *Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(tk *jwt.Token) (interface{}, error) {
		if _, ok := tk.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tk.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil || !tok.Valid {
		return uuid.Nil, nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	id, err := uuid.Parse(claims.SessionID)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("%w: bad sid", ErrInvalidToken)
	}
	return id, claims, nil
}
