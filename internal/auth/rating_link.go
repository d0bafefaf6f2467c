// Package auth は署名付きトークンの発行と検証を提供する。
//
// 評価リンクのトークンは(取引ID, 立場)を束縛し、メールで送られたリンク以外から
// 評価フォームが使われることを防ぐ。管理者トークンはrole=adminのクレームを持つ
// Bearerトークンで、フードカタログの管理APIを保護する。
package auth

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/dhcommerce/internal/model"
)

// ErrInvalidToken はトークンが不正・期限切れ・対象不一致であることを示す。
var ErrInvalidToken = errors.New("invalid token")

// ratingLinkSubject は評価リンク用トークンのsubクレーム。
const ratingLinkSubject = "rating-link"

// RatingLinkClaims は評価リンクに埋め込むJWTクレーム。
type RatingLinkClaims struct {
	TransactionID string `json:"tid"`
	Role          string `json:"role"`
	jwt.RegisteredClaims
}

// RatingLinks は評価フォームへのリンクを生成・検証する。
// シークレットが空の場合は署名を行わず、トークンなしのリンクを生成する。
type RatingLinks struct {
	baseURL string
	secret  []byte
	ttl     time.Duration
	now     func() time.Time
}

// NewRatingLinks はRatingLinksを生成する。baseURLは末尾スラッシュなしの公開URL。
func NewRatingLinks(baseURL, secret string, ttl time.Duration) *RatingLinks {
	return &RatingLinks{
		baseURL: baseURL,
		secret:  []byte(secret),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Enabled は署名付きリンクが有効な場合にtrueを返す。
func (l *RatingLinks) Enabled() bool {
	return len(l.secret) > 0
}

// Link は取引IDと立場に対応する評価フォームのURLを返す。
func (l *RatingLinks) Link(transactionID string, role model.RatingRole) (string, error) {
	link := fmt.Sprintf("%s/rate/%s/%s", l.baseURL, url.PathEscape(transactionID), role)
	if !l.Enabled() {
		return link, nil
	}

	token, err := l.Sign(transactionID, role)
	if err != nil {
		return "", err
	}
	return link + "?token=" + url.QueryEscape(token), nil
}

// Sign は取引IDと立場を束縛したトークンを発行する。
func (l *RatingLinks) Sign(transactionID string, role model.RatingRole) (string, error) {
	now := l.now()
	claims := RatingLinkClaims{
		TransactionID: transactionID,
		Role:          string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   ratingLinkSubject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(l.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(l.secret)
	if err != nil {
		return "", fmt.Errorf("signing rating link: %w", err)
	}
	return signed, nil
}

// Verify はトークンが指定の取引IDと立場に対して発行されたものか検証する。
// 署名付きリンクが無効な場合は常にnilを返す。
func (l *RatingLinks) Verify(token, transactionID string, role model.RatingRole) error {
	if !l.Enabled() {
		return nil
	}
	if token == "" {
		return ErrInvalidToken
	}

	claims := &RatingLinkClaims{}
	if err := parseHS256(token, claims, l.secret, l.now); err != nil {
		return err
	}
	if claims.Subject != ratingLinkSubject || claims.TransactionID != transactionID || claims.Role != string(role) {
		return ErrInvalidToken
	}
	return nil
}

// parseHS256 はHS256で署名されたトークンを検証してclaimsに展開する。
func parseHS256(token string, claims jwt.Claims, secret []byte, now func() time.Time) error {
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return ErrInvalidToken
	}
	return nil
}
