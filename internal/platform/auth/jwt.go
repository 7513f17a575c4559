package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"keyhub/internal/platform/config"
)

const (
	RoleAdmin = "admin"
	RoleBot   = "bot"
)

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type TokenService struct {
	config config.JWTConfig
	nowFn  func() time.Time
}

func NewTokenService(cfg config.JWTConfig) *TokenService {
	return &TokenService{config: cfg, nowFn: time.Now}
}

// GenerateAccessToken issues a staff token with the configured TTL.
func (s *TokenService) GenerateAccessToken(subject, role string) (string, error) {
	return s.GenerateServiceToken(subject, role, s.config.AccessTokenTTL)
}

// GenerateServiceToken issues a token for subject. A ttl of zero means the
// token never expires, which is what long-lived bot credentials use.
func (s *TokenService) GenerateServiceToken(subject, role string, ttl time.Duration) (string, error) {
	if s.config.Secret == "" {
		return "", errors.New("jwt secret is not configured")
	}
	now := s.nowFn()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  subject,
			IssuedAt: jwt.NewNumericDate(now),
			Issuer:   s.config.Issuer,
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.Secret))
}

func (s *TokenService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(s.config.Secret), nil
	}, jwt.WithIssuer(s.config.Issuer), jwt.WithTimeFunc(s.nowFn))

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}
