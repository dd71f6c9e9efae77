package services

import (
	"errors"
	"time"

	"novaled/internal/core/domain"
	"novaled/pkg/cache"
	"novaled/pkg/utils"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrRevokedToken = errors.New("token revoked")
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// AuthService issues and validates JWT access and refresh tokens.
type AuthService interface {
	GenerateTokens(userID domain.UserID, username string) (*TokenPair, error)
	ValidateToken(tokenString string) (*Claims, error)
	ValidateRefreshToken(tokenString string) (*Claims, error)
	// Revoke rejects the token with the given jti until it would have expired.
	Revoke(jti string, until time.Time)
}

// Claims are the JWT claims carried by both token kinds.
type Claims struct {
	UserID    domain.UserID `json:"user_id"`
	Username  string        `json:"username"`
	TokenType string        `json:"typ"`
	jwt.RegisteredClaims
}

// TokenPair is the result of a successful login.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

type authService struct {
	jwtSecret       []byte
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
	clock           clockwork.Clock
	revoked         *cache.Cache[struct{}]
}

// NewAuthService creates an auth service.
func NewAuthService(
	jwtSecret string,
	accessTokenTTL time.Duration,
	refreshTokenTTL time.Duration,
	clock clockwork.Clock,
) AuthService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &authService{
		jwtSecret:       []byte(jwtSecret),
		accessTokenTTL:  accessTokenTTL,
		refreshTokenTTL: refreshTokenTTL,
		clock:           clock,
		revoked:         cache.New[struct{}](refreshTokenTTL, cache.WithClock(clock)),
	}
}

// GenerateTokens issues a new access and refresh token pair.
func (s *authService) GenerateTokens(userID domain.UserID, username string) (*TokenPair, error) {
	access, err := s.sign(userID, username, tokenTypeAccess, s.accessTokenTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := s.sign(userID, username, tokenTypeRefresh, s.refreshTokenTTL)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int(s.accessTokenTTL / time.Second),
	}, nil
}

func (s *authService) sign(userID domain.UserID, username, tokenType string, ttl time.Duration) (string, error) {
	now := s.clock.Now()
	claims := &Claims{
		UserID:    userID,
		Username:  username,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        utils.NewTokenID(),
			Subject:   string(userID),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateToken parses an access token.
func (s *authService) ValidateToken(tokenString string) (*Claims, error) {
	return s.validate(tokenString, tokenTypeAccess)
}

// ValidateRefreshToken parses a refresh token and checks it was not revoked.
func (s *authService) ValidateRefreshToken(tokenString string) (*Claims, error) {
	return s.validate(tokenString, tokenTypeRefresh)
}

func (s *authService) validate(tokenString, tokenType string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.clock.Now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.TokenType != tokenType {
		return nil, ErrInvalidToken
	}
	if _, revoked := s.revoked.Get(claims.ID); revoked {
		return nil, ErrRevokedToken
	}
	return claims, nil
}

// Revoke invalidates a refresh token.
func (s *authService) Revoke(jti string, until time.Time) {
	if jti == "" {
		return
	}
	ttl := until.Sub(s.clock.Now())
	if ttl <= 0 {
		return
	}
	s.revoked.SetWithTTL(jti, struct{}{}, ttl)
}
