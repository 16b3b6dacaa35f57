package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hitoshi/todoman/internal/model"
)

// AuthPolicy はプロシージャごとの認証要否を表す。
type AuthPolicy int

const (
	// Public は認証不要のプロシージャ（死活確認など）。
	Public AuthPolicy = iota
	// Authenticated は有効なセッションが必要なプロシージャ。
	Authenticated
)

// String はポリシー名を返す。
func (p AuthPolicy) String() string {
	switch p {
	case Public:
		return "public"
	case Authenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Middleware はパイプラインの1段。
// 新しいContextを返して後段へ引き継ぐ。エラーを返すとそこで呼び出しは終了する。
type Middleware func(ctx context.Context, c Context) (Context, error)

// HandlerFunc はプロシージャ本体。
type HandlerFunc[In, Out any] func(ctx context.Context, c Context, in In) (Out, error)

// Validator は入力値の検証を行う入力型が実装するインターフェース。
// 検証は認証ゲートの後、宣言済みミドルウェアより先に実行される。
type Validator interface {
	Validate() error
}

// invalidInputMessage はJSONとして解釈できない入力に返す固定メッセージ。
const invalidInputMessage = "入力をJSONとして解釈できません。"

// NoInput は入力を受け取らないプロシージャの入力型。リクエストボディは無視される。
type NoInput struct{}

// Procedure は登録可能なプロシージャ。NewProcedureで生成する。
type Procedure struct {
	policy      AuthPolicy
	middlewares []Middleware
	decode      func(raw json.RawMessage) (any, error)
	run         func(ctx context.Context, c Context, in any) (any, error)
}

// NewProcedure は型付きのハンドラーからProcedureを生成する。
// middlewaresは認証ゲートの後に宣言順で実行される。
func NewProcedure[In, Out any](policy AuthPolicy, handler HandlerFunc[In, Out], middlewares ...Middleware) *Procedure {
	return &Procedure{
		policy:      policy,
		middlewares: middlewares,
		decode: func(raw json.RawMessage) (any, error) {
			return decodeInput[In](raw)
		},
		run: func(ctx context.Context, c Context, in any) (any, error) {
			return handler(ctx, c, in.(In))
		},
	}
}

// Policy はプロシージャの認証ポリシーを返す。
func (p *Procedure) Policy() AuthPolicy {
	return p.policy
}

// invoke は 認証ゲート → 入力検証 → 宣言済みミドルウェア → ハンドラー の順に実行する。
// 未認証の呼び出し元には入力スキーマに関する情報を返さない。
func (p *Procedure) invoke(ctx context.Context, gate Middleware, c Context, raw json.RawMessage) (any, error) {
	var err error
	if p.policy == Authenticated {
		if c, err = gate(ctx, c); err != nil {
			return nil, err
		}
	}

	in, err := p.decode(raw)
	if err != nil {
		return nil, err
	}

	for _, mw := range p.middlewares {
		if c, err = mw(ctx, c); err != nil {
			return nil, err
		}
	}

	return p.run(ctx, c, in)
}

// decodeInput は生のJSON入力をInにデコードし、Validatorであれば検証する。
func decodeInput[In any](raw json.RawMessage) (In, error) {
	var in In
	if _, ok := any(in).(NoInput); ok {
		return in, nil
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if err := json.Unmarshal(trimmed, &in); err != nil {
			slog.Debug("failed to decode procedure input", slog.String("error", err.Error()))
			return in, model.NewValidationError(model.FieldError{
				Field:   "input",
				Message: invalidInputMessage,
			})
		}
	}

	if v, ok := any(&in).(Validator); ok {
		if err := v.Validate(); err != nil {
			return in, asValidationError(err)
		}
	} else if v, ok := any(in).(Validator); ok {
		if err := v.Validate(); err != nil {
			return in, asValidationError(err)
		}
	}

	return in, nil
}

// asValidationError は検証エラーをVALIDATION_ERRORのAPIErrorに揃える。
func asValidationError(err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return model.NewValidationError(model.FieldError{Field: "input", Message: err.Error()})
}
