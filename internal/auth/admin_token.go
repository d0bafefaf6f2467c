package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin は管理者トークンのroleクレーム値。
const RoleAdmin = "admin"

// AdminClaims は管理者トークンのJWTクレーム。
type AdminClaims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// AdminTokens は管理者用Bearerトークンを発行・検証する。
type AdminTokens struct {
	secret []byte
	now    func() time.Time
}

// NewAdminTokens はAdminTokensを生成する。
func NewAdminTokens(secret string) *AdminTokens {
	return &AdminTokens{secret: []byte(secret), now: time.Now}
}

// Enabled はシークレットが設定されている場合にtrueを返す。
// 未設定の場合、管理APIはすべて拒否される。
func (a *AdminTokens) Enabled() bool {
	return len(a.secret) > 0
}

// Issue は指定ユーザー向けの管理者トークンを発行する。
func (a *AdminTokens) Issue(userID string, ttl time.Duration) (string, error) {
	if !a.Enabled() {
		return "", fmt.Errorf("admin token secret is not configured")
	}

	now := a.now()
	claims := AdminClaims{
		UserID: userID,
		Role:   RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("signing admin token: %w", err)
	}
	return signed, nil
}

// Verify はトークンを検証し、role=adminであればクレームを返す。
func (a *AdminTokens) Verify(token string) (*AdminClaims, error) {
	if !a.Enabled() || token == "" {
		return nil, ErrInvalidToken
	}

	claims := &AdminClaims{}
	if err := parseHS256(token, claims, a.secret, a.now); err != nil {
		return nil, err
	}
	if claims.Role != RoleAdmin {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
