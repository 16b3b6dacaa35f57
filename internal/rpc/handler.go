package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/todoman/internal/middleware"
	"github.com/hitoshi/todoman/internal/model"
)

const (
	// BatchHeader はバッチモードを指定するリクエストヘッダー。値は "1"。
	BatchHeader = "X-RPC-Batch"

	maxBodySize           = 1 << 20
	defaultMaxBatchSize   = 20
	defaultMaxConcurrency = 4
)

// Metrics はプロシージャ呼び出しの計測に必要なインターフェース。
type Metrics interface {
	RecordProcedureCall(procedure, code string, duration time.Duration)
	RecordBatchSize(size int)
}

// HandlerOptions はHTTPアダプターの設定。
type HandlerOptions struct {
	Prefix         string  // ルーティングのパスプレフィックス（例: /api/rpc）
	MaxBatchSize   int     // 1バッチあたりの最大呼び出し数。0で既定値
	MaxConcurrency int     // バッチ内の同時実行数。0で既定値
	Metrics        Metrics // nilの場合は記録しない
}

// Handler はRouterをHTTPに公開するトランスポートアダプター。
type Handler struct {
	router *Router
	opts   HandlerOptions
}

// NewHandler はHandlerを生成する。
func NewHandler(router *Router, opts HandlerOptions) *Handler {
	opts.Prefix = "/" + strings.Trim(opts.Prefix, "/")
	if opts.MaxBatchSize <= 0 {
		opts.MaxBatchSize = defaultMaxBatchSize
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = defaultMaxConcurrency
	}
	return &Handler{router: router, opts: opts}
}

// batchCall はバッチリクエストの1要素。
type batchCall struct {
	Path  string          `json:"path"`
	Input json.RawMessage `json:"input"`
}

// batchResult はバッチレスポンスの1要素。リクエストと同じ位置に格納される。
type batchResult struct {
	Index  int `json:"index"`
	Status int `json:"status"`
	Body   any `json:"body"`
}

// ServeHTTP はhttp.Handlerを実装する。
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !allowedMethod(r.Method) {
		w.Header().Set("Allow", "GET, POST, PUT, PATCH, DELETE, HEAD")
		middleware.WriteErrorResponse(w, http.StatusMethodNotAllowed, model.NewMethodNotAllowedError(r.Method))
		return
	}

	path := strings.Trim(strings.TrimPrefix(r.URL.Path, h.opts.Prefix), "/")

	raw, err := readInput(w, r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	c := NewContext(r)

	if r.Header.Get(BatchHeader) == "1" {
		h.serveBatch(w, r.Context(), c, raw)
		return
	}

	status, body := h.call(r.Context(), path, c, raw)
	writeJSON(w, status, body)
}

// serveBatch はバッチ内の各呼び出しを独立に並行実行し、207で位置対応の結果を返す。
// 1件の失敗が他の結果に影響することはない。
func (h *Handler) serveBatch(w http.ResponseWriter, ctx context.Context, c Context, raw json.RawMessage) {
	var calls []batchCall
	if err := json.Unmarshal(raw, &calls); err != nil {
		middleware.WriteError(w, model.NewValidationError(model.FieldError{
			Field:   "batch",
			Message: "バッチは {path, input} の配列で指定してください。",
		}))
		return
	}
	if len(calls) == 0 {
		middleware.WriteError(w, model.NewValidationError(model.FieldError{
			Field:   "batch",
			Message: "バッチが空です。",
		}))
		return
	}
	if len(calls) > h.opts.MaxBatchSize {
		middleware.WriteError(w, model.NewBatchTooLargeError(h.opts.MaxBatchSize))
		return
	}

	if h.opts.Metrics != nil {
		h.opts.Metrics.RecordBatchSize(len(calls))
	}

	results := make([]batchResult, len(calls))
	var g errgroup.Group
	g.SetLimit(h.opts.MaxConcurrency)
	for i, bc := range calls {
		g.Go(func() error {
			status, body := h.call(ctx, bc.Path, c, bc.Input)
			results[i] = batchResult{Index: i, Status: status, Body: body}
			return nil
		})
	}
	_ = g.Wait()

	writeJSON(w, http.StatusMultiStatus, results)
}

// call は1件のプロシージャ呼び出しを実行し、HTTPステータスとレスポンスボディを返す。
func (h *Handler) call(ctx context.Context, path string, c Context, raw json.RawMessage) (int, any) {
	path = strings.Trim(path, "/")
	start := time.Now()

	out, err := h.router.Invoke(ctx, path, c, raw)

	if err != nil {
		status, apiErr := middleware.ResolveError(err)
		h.record(path, apiErr.Code, start)
		return status, middleware.NewErrorResponseBody(apiErr)
	}

	h.record(path, "OK", start)
	return http.StatusOK, out
}

// record はメトリクスを記録する。未登録のパスはラベルの爆発を避けるためまとめる。
func (h *Handler) record(path, code string, start time.Time) {
	if h.opts.Metrics == nil {
		return
	}
	if _, ok := h.router.Lookup(path); !ok {
		path = "unknown"
	}
	h.opts.Metrics.RecordProcedureCall(path, code, time.Since(start))
}

// readInput はリクエストボディを読み込む。空の場合はinputクエリパラメータを使う。
func readInput(w http.ResponseWriter, r *http.Request) (json.RawMessage, error) {
	var body []byte
	if r.Body != nil {
		b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return nil, model.NewValidationError(model.FieldError{
					Field:   "input",
					Message: "リクエストボディが大きすぎます。",
				})
			}
			return nil, err
		}
		body = b
	}

	if len(bytes.TrimSpace(body)) == 0 {
		if q := r.URL.Query().Get("input"); q != "" {
			return json.RawMessage(q), nil
		}
		return nil, nil
	}
	return json.RawMessage(body), nil
}

// writeJSON はJSONレスポンスを書き込む。エンコードに失敗した場合は内部エラーを返す。
func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to encode rpc response", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}

func allowedMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodHead:
		return true
	default:
		return false
	}
}
