// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/todoman/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// authSessionContextKey はリクエストコンテキストに認証済みセッションを格納するためのキー。
var authSessionContextKey = contextKey("auth_session")

// SessionResolver はリクエストヘッダーからセッションを解決するインターフェース。
// auth.ServiceのGetSessionを想定する。
type SessionResolver interface {
	GetSession(ctx context.Context, headers http.Header) (*model.AuthSession, error)
}

// NewSessionMiddleware はCookieまたはBearerヘッダーからセッションを解決し、
// 認証済みセッションをリクエストコンテキストに注入するミドルウェアを返す。
// 未認証リクエストには401 Unauthorizedを返す。
func NewSessionMiddleware(resolver SessionResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			as, err := resolver.GetSession(r.Context(), r.Header)
			if err != nil {
				slog.Error("failed to resolve session",
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}
			if as == nil || as.User == nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithAuthSession(r.Context(), as)))
		})
	}
}

// AuthSessionFromContext はリクエストコンテキストから認証済みセッションを取得する。
func AuthSessionFromContext(ctx context.Context) (*model.AuthSession, bool) {
	as, ok := ctx.Value(authSessionContextKey).(*model.AuthSession)
	return as, ok && as != nil
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	as, ok := AuthSessionFromContext(ctx)
	if !ok || as.User == nil || as.User.ID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return as.User.ID, nil
}

// ContextWithAuthSession はコンテキストに認証済みセッションを注入する。
func ContextWithAuthSession(ctx context.Context, as *model.AuthSession) context.Context {
	return context.WithValue(ctx, authSessionContextKey, as)
}

// ContextWithUserID はユーザーIDのみを持つ認証済みセッションをコンテキストに注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return ContextWithAuthSession(ctx, &model.AuthSession{
		Session: &model.Session{UserID: userID},
		User:    &model.User{ID: userID},
	})
}
