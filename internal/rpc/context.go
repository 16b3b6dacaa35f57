// Package rpc は名前付きプロシージャのルーティング、認証ゲート、
// HTTPトランスポートアダプターを提供する。
package rpc

import (
	"net/http"

	"github.com/hitoshi/todoman/internal/model"
)

// Context は1回のプロシージャ呼び出しに付随するリクエスト情報。
// イミュータブルなレコードとして扱い、ミドルウェアは新しい値を返すことで内容を追加する。
type Context struct {
	Headers http.Header
	Request *http.Request // サーバー内部からの呼び出しではnil
	Session *model.Session
	User    *model.User
}

// NewContext はHTTPリクエストから未認証のContextを生成する。
func NewContext(r *http.Request) Context {
	return Context{
		Headers: r.Header.Clone(),
		Request: r,
	}
}

// NewServerContext はHTTPリクエストを伴わないサーバー内部呼び出し用のContextを生成する。
func NewServerContext(headers http.Header) Context {
	if headers == nil {
		headers = http.Header{}
	}
	return Context{Headers: headers.Clone()}
}

// WithAuth は解決済みのセッションとユーザーを持つコピーを返す。
func (c Context) WithAuth(as *model.AuthSession) Context {
	c.Session = as.Session
	c.User = as.User
	return c
}

// Authenticated はユーザーが解決済みかを返す。
func (c Context) Authenticated() bool {
	return c.User != nil
}
