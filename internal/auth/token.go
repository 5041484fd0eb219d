package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/moneyseed/moneyseed/internal/model"
)

const (
	TokenDuration = 30 * 24 * time.Hour
	tokenIssuer   = "moneyseed"
)

var ErrInvalidToken = errors.New("invalid token")

type claims struct {
	Role model.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenVerifier issues and verifies HS256 bearer tokens whose subject is the
// user id.
type TokenVerifier struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenVerifier(secret string, ttl time.Duration) *TokenVerifier {
	if ttl <= 0 {
		ttl = TokenDuration
	}
	return &TokenVerifier{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (v *TokenVerifier) Issue(userID int64, role model.Role) (string, error) {
	now := v.now()
	c := claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (v *TokenVerifier) Verify(token string) (AuthContext, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(v.now))
	if err != nil || !parsed.Valid {
		return AuthContext{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return AuthContext{}, fmt.Errorf("%w: bad subject %q", ErrInvalidToken, c.Subject)
	}
	return AuthContext{UserID: id, Role: c.Role}, nil
}
