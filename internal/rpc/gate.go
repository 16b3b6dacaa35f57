package rpc

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hitoshi/todoman/internal/model"
)

// SessionResolver はリクエストヘッダーから現在のセッションを解決する。
// セッションが無い場合はnil, nilを返す。
type SessionResolver interface {
	GetSession(ctx context.Context, headers http.Header) (*model.AuthSession, error)
}

// SessionResolverFunc は関数をSessionResolverとして扱うためのアダプター。
type SessionResolverFunc func(ctx context.Context, headers http.Header) (*model.AuthSession, error)

// GetSession はSessionResolverを実装する。
func (f SessionResolverFunc) GetSession(ctx context.Context, headers http.Header) (*model.AuthSession, error) {
	return f(ctx, headers)
}

// NewAuthGate は認証ゲートのミドルウェアを生成する。
// 解決できない場合はUNAUTHORIZEDを返し、後続の段は実行されない。
// リゾルバー自体のエラーは内部エラーとしてそのまま伝播する。
func NewAuthGate(resolver SessionResolver) Middleware {
	return func(ctx context.Context, c Context) (Context, error) {
		as, err := resolver.GetSession(ctx, c.Headers)
		if err != nil {
			return c, fmt.Errorf("failed to resolve session: %w", err)
		}
		if as == nil || as.Session == nil || as.User == nil {
			return c, model.NewUnauthorizedError()
		}
		return c.WithAuth(as), nil
	}
}
