package token

import (
	"errors"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"orderchat/pkg/domain"
)

const defaultTTL = 24 * time.Hour

var defaultLeeway = 30 * time.Second

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrBadClaims    = errors.New("token claims malformed")
)

// Claims is the fixed-shape payload carried by auth tokens.
// Decoding fails closed when id or role is missing or unknown.
type Claims struct {
	UserID string          `json:"id"`
	Role   domain.UserRole `json:"role"`
	jwt.RegisteredClaims
}

// Service signs and verifies HS256 bearer tokens.
type Service struct {
	secret []byte
	ttl    time.Duration
	leeway time.Duration
}

// New builds a token service from a shared secret.
func New(secret string, ttl time.Duration) (*Service, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("token secret required")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Service{
		secret: []byte(secret),
		ttl:    ttl,
		leeway: defaultLeeway,
	}, nil
}

// Generate issues a signed token embedding the user id and role.
func (s *Service) Generate(userID string, role domain.UserRole) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("user id required")
	}
	now := time.Now().UTC()
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Decode verifies the signature and expiry and returns the claims.
func (s *Service) Decode(raw string) (Claims, error) {
	claims := Claims{}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return claims, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(s.leeway),
	)
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	if strings.TrimSpace(claims.UserID) == "" {
		return Claims{}, ErrBadClaims
	}
	switch claims.Role {
	case domain.RoleUser, domain.RoleAdmin:
	default:
		return Claims{}, ErrBadClaims
	}
	return claims, nil
}
