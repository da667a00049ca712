package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"saas-agency-platform/internal/config"
)

type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	AccessExp    time.Time `json:"access_exp"`
	RefreshExp   time.Time `json:"refresh_exp"`
}

type Claims struct {
	UserID  string `json:"user_id"`
	BrandID string `json:"brand_id"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

const (
	accessTTL  = 1 * time.Hour
	refreshTTL = 7 * 24 * time.Hour
	issuer     = "saas-agency-platform"
)

// TokenManager issues and validates JWT pairs. Token IDs are mirrored into
// Redis so individual tokens can be revoked before they expire.
type TokenManager struct {
	accessSecret  []byte
	refreshSecret []byte
	rdb           *redis.Client
}

func NewTokenManager(cfg *config.Config, rdb *redis.Client) (*TokenManager, error) {
	if len(cfg.AccessSecret) < 32 || len(cfg.RefreshSecret) < 32 {
		return nil, fmt.Errorf("ACCESS_SECRET and REFRESH_SECRET must be at least 32 characters")
	}
	return &TokenManager{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		rdb:           rdb,
	}, nil
}

func (m *TokenManager) IssueTokenPair(ctx context.Context, userID, brandID, role string) (*TokenPair, error) {
	now := time.Now()
	accessJTI := uuid.NewString()
	refreshJTI := uuid.NewString()

	accessExp := now.Add(accessTTL)
	accessClaims := Claims{
		UserID:  userID,
		BrandID: brandID,
		Role:    role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        accessJTI,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(accessExp),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	refreshExp := now.Add(refreshTTL)
	refreshClaims := Claims{
		UserID:  userID,
		BrandID: brandID,
		Role:    role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        refreshJTI,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(refreshExp),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	accessString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims).SignedString(m.accessSecret)
	if err != nil {
		return nil, err
	}
	refreshString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims).SignedString(m.refreshSecret)
	if err != nil {
		return nil, err
	}

	// Store JTIs for revocation capability
	pipe := m.rdb.Pipeline()
	pipe.Set(ctx, "access:"+accessJTI, userID, accessTTL)
	pipe.Set(ctx, "refresh:"+refreshJTI, userID, refreshTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  accessString,
		RefreshToken: refreshString,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
	}, nil
}

func (m *TokenManager) ValidateAccessToken(ctx context.Context, tokenString string) (*Claims, error) {
	return m.validateToken(ctx, tokenString, m.accessSecret, "access:")
}

func (m *TokenManager) ValidateRefreshToken(ctx context.Context, tokenString string) (*Claims, error) {
	return m.validateToken(ctx, tokenString, m.refreshSecret, "refresh:")
}

func (m *TokenManager) validateToken(ctx context.Context, tokenString string, secret []byte, prefix string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Prevent algorithm confusion attacks
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return nil, errors.New("invalid token")
	}

	exists, err := m.rdb.Exists(ctx, prefix+claims.ID).Result()
	if err != nil || exists != 1 {
		return nil, errors.New("token revoked or expired")
	}
	return claims, nil
}

func (m *TokenManager) RevokeToken(ctx context.Context, jti string, isRefresh bool) error {
	prefix := "access:"
	if isRefresh {
		prefix = "refresh:"
	}
	return m.rdb.Del(ctx, prefix+jti).Err()
}
