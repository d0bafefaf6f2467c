// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/dhcommerce/internal/auth"
	"github.com/hitoshi/dhcommerce/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// adminIDContextKey はリクエストコンテキストに管理者のユーザーIDを格納するためのキー。
var adminIDContextKey = contextKey("admin_user_id")

// AdminVerifier は管理者トークンの検証に必要なインターフェース。
// auth.AdminTokensが満たす。
type AdminVerifier interface {
	Verify(token string) (*auth.AdminClaims, error)
}

// NewAdminAuthMiddleware はAuthorizationヘッダーのBearerトークンを検証し、
// 管理者のユーザーIDをリクエストコンテキストに注入するミドルウェアを返す。
// トークンがない、または無効な場合は401 UNAUTHORIZEDを返す。
func NewAdminAuthMiddleware(verifier AdminVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				slog.Warn("admin token rejected",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithAdminID(r.Context(), claims.UserID)))
		})
	}
}

// bearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// AdminIDFromContext はリクエストコンテキストから管理者のユーザーIDを取得する。
// 管理者認証ミドルウェアを通過したリクエストでのみ値が入る。
func AdminIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(adminIDContextKey).(string)
	return id, ok && id != ""
}

// ContextWithAdminID はコンテキストに管理者のユーザーIDを注入する。
func ContextWithAdminID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, adminIDContextKey, userID)
}
