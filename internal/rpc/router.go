package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"strings"

	"github.com/hitoshi/todoman/internal/model"
)

// Router は名前付きプロシージャを保持し、呼び出しをディスパッチする。
// 登録は起動時に行い、以降は読み取り専用として並行に利用する。
type Router struct {
	gate       Middleware
	procedures map[string]*Procedure
}

// NewRouter はRouterを生成する。
// gateはAuthenticatedポリシーのプロシージャの前段で実行される。
func NewRouter(gate Middleware) *Router {
	return &Router{
		gate:       gate,
		procedures: make(map[string]*Procedure),
	}
}

// Register はプロシージャを登録する。
// 名前の重複、空の名前、ゲート未設定でのAuthenticated登録は配線ミスとしてpanicする。
func (r *Router) Register(name string, p *Procedure) {
	name = strings.Trim(name, "/")
	if name == "" {
		panic("rpc: procedure name must not be empty")
	}
	if p == nil {
		panic(fmt.Sprintf("rpc: procedure %q is nil", name))
	}
	if _, exists := r.procedures[name]; exists {
		panic(fmt.Sprintf("rpc: procedure %q already registered", name))
	}
	if p.policy == Authenticated && r.gate == nil {
		panic(fmt.Sprintf("rpc: procedure %q requires authentication but no gate is configured", name))
	}
	r.procedures[name] = p
}

// Namespace は名前空間配下にプロシージャを登録する。
// Namespace("todo", ...)内でRegister("getTodos", ...)すると "todo/getTodos" になる。
func (r *Router) Namespace(name string, fn func(g *Group)) {
	fn(&Group{router: r, prefix: strings.Trim(name, "/")})
}

// Lookup は完全一致でプロシージャを探す。
func (r *Router) Lookup(path string) (*Procedure, bool) {
	p, ok := r.procedures[strings.Trim(path, "/")]
	return p, ok
}

// Paths は登録済みのプロシージャ名をソートして返す。
func (r *Router) Paths() []string {
	paths := make([]string, 0, len(r.procedures))
	for name := range r.procedures {
		paths = append(paths, name)
	}
	sort.Strings(paths)
	return paths
}

// Invoke はプロシージャを実行する。HTTPアダプターとサーバー内部の呼び出し元の両方が使う。
// ハンドラー内のpanicは内部エラーに変換し、他の呼び出しに影響させない。
func (r *Router) Invoke(ctx context.Context, path string, c Context, raw json.RawMessage) (out any, err error) {
	p, ok := r.Lookup(path)
	if !ok {
		return nil, model.NewProcedureNotFoundError(path)
	}

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("panic in procedure",
				slog.String("procedure", path),
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())),
			)
			out, err = nil, model.NewInternalError()
		}
	}()

	return p.invoke(ctx, r.gate, c, raw)
}

// Call はサーバー内部から型付きでプロシージャを呼び出す。
// inputはJSONにエンコードしてから渡すため、HTTP経由と同じ検証が行われる。
func Call[Out any](ctx context.Context, r *Router, path string, c Context, input any) (Out, error) {
	var zero Out

	var raw json.RawMessage
	if input != nil {
		b, err := json.Marshal(input)
		if err != nil {
			return zero, fmt.Errorf("failed to encode input: %w", err)
		}
		raw = b
	}

	out, err := r.Invoke(ctx, path, c, raw)
	if err != nil {
		return zero, err
	}
	if out == nil {
		return zero, nil
	}
	typed, ok := out.(Out)
	if !ok {
		return zero, fmt.Errorf("procedure %s returned %T, want %T", path, out, zero)
	}
	return typed, nil
}

// Group は名前空間付きの登録用ハンドル。
type Group struct {
	router *Router
	prefix string
}

// Register は名前空間を前置してプロシージャを登録する。
func (g *Group) Register(name string, p *Procedure) {
	g.router.Register(g.prefix+"/"+strings.Trim(name, "/"), p)
}

// Namespace は入れ子の名前空間を作る。
func (g *Group) Namespace(name string, fn func(g *Group)) {
	fn(&Group{router: g.router, prefix: g.prefix + "/" + strings.Trim(name, "/")})
}
