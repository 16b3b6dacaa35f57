package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/rpc"
)

// Pinger はDBへの疎通確認インターフェース。*sql.DBが満たす。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// TodoServiceInterface はtodoプロシージャが必要とするサービスインターフェース。
type TodoServiceInterface interface {
	List(ctx context.Context, userID string) ([]*model.Todo, error)
	Create(ctx context.Context, userID, title string, description *string) (*model.Todo, error)
	Update(ctx context.Context, userID, id, title string, description *string) (*model.Todo, error)
	SetCompleted(ctx context.Context, userID, id string, completed bool) (*model.Todo, error)
	Delete(ctx context.Context, userID, id string) (*model.Todo, error)
}

// ProcedureDeps はRegisterProceduresに必要な依存関係。
type ProcedureDeps struct {
	DB    Pinger
	Todos TodoServiceInterface
}

// TodoResponse はtodoのJSON表現。
type TodoResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	Completed   bool      `json:"completed"`
	UserID      string    `json:"userId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// PongResponse はpongプロシージャの出力。
type PongResponse struct {
	OK          bool    `json:"ok"`
	DBLatencyMs float64 `json:"dbLatencyMs"`
}

// CreateTodoResponse はcreateTodoプロシージャの出力。
// 作成したtodoと更新後の一覧を同時に返す。
type CreateTodoResponse struct {
	NewTodo *TodoResponse  `json:"newTodo"`
	Todos   []TodoResponse `json:"todos"`
}

// CreateTodoInput はcreateTodoプロシージャの入力。
type CreateTodoInput struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

// Validate はタイトルと説明の必須チェックを行う。
func (in CreateTodoInput) Validate() error {
	return validationError(titleAndDescriptionErrors(in.Title, in.Description))
}

// UpdateTodoInput はupdateTodoプロシージャの入力。
type UpdateTodoInput struct {
	ID          string  `json:"id"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

// Validate はid、タイトル、説明の必須チェックを行う。
func (in UpdateTodoInput) Validate() error {
	var fields []model.FieldError
	if in.ID == "" {
		fields = append(fields, model.FieldError{Field: "id", Message: "idは必須です。"})
	}
	fields = append(fields, titleAndDescriptionErrors(in.Title, in.Description)...)
	return validationError(fields)
}

// SetCompletedInput はsetCompletedプロシージャの入力。
type SetCompletedInput struct {
	ID        string `json:"id"`
	Completed *bool  `json:"completed"`
}

// Validate はidと完了状態の必須チェックを行う。
func (in SetCompletedInput) Validate() error {
	var fields []model.FieldError
	if in.ID == "" {
		fields = append(fields, model.FieldError{Field: "id", Message: "idは必須です。"})
	}
	if in.Completed == nil {
		fields = append(fields, model.FieldError{Field: "completed", Message: "completedは必須です。"})
	}
	return validationError(fields)
}

// DeleteTodoInput はdeleteTodoプロシージャの入力。
type DeleteTodoInput struct {
	ID string `json:"id"`
}

// Validate はidの必須チェックを行う。
func (in DeleteTodoInput) Validate() error {
	if in.ID == "" {
		return model.NewValidationError(model.FieldError{Field: "id", Message: "idは必須です。"})
	}
	return nil
}

func titleAndDescriptionErrors(title, description *string) []model.FieldError {
	var fields []model.FieldError
	if title == nil || strings.TrimSpace(*title) == "" {
		fields = append(fields, model.FieldError{Field: "title", Message: "タイトルを入力してください。"})
	}
	if description == nil {
		fields = append(fields, model.FieldError{Field: "description", Message: "descriptionは必須です。"})
	}
	return fields
}

func validationError(fields []model.FieldError) error {
	if len(fields) == 0 {
		return nil
	}
	return model.NewValidationError(fields...)
}

// RegisterProcedures はアプリケーションのプロシージャをルーターに登録する。
//
//	ping, pong, profile
//	todo/getTodos, todo/createTodo, todo/updateTodo, todo/setCompleted, todo/deleteTodo
func RegisterProcedures(r *rpc.Router, deps ProcedureDeps) {
	r.Register("ping", rpc.NewProcedure(rpc.Public, ping))
	r.Register("pong", rpc.NewProcedure(rpc.Public, pong(deps.DB)))
	r.Register("profile", rpc.NewProcedure(rpc.Authenticated, profile))

	todos := deps.Todos
	r.Namespace("todo", func(g *rpc.Group) {
		g.Register("getTodos", rpc.NewProcedure(rpc.Authenticated,
			func(ctx context.Context, c rpc.Context, _ rpc.NoInput) ([]TodoResponse, error) {
				list, err := todos.List(ctx, c.User.ID)
				if err != nil {
					return nil, err
				}
				return toTodoResponses(list), nil
			}))

		g.Register("createTodo", rpc.NewProcedure(rpc.Authenticated,
			func(ctx context.Context, c rpc.Context, in CreateTodoInput) (*CreateTodoResponse, error) {
				created, err := todos.Create(ctx, c.User.ID, *in.Title, in.Description)
				if err != nil {
					return nil, err
				}
				list, err := todos.List(ctx, c.User.ID)
				if err != nil {
					return nil, err
				}
				return &CreateTodoResponse{
					NewTodo: toTodoResponse(created),
					Todos:   toTodoResponses(list),
				}, nil
			}))

		g.Register("updateTodo", rpc.NewProcedure(rpc.Authenticated,
			func(ctx context.Context, c rpc.Context, in UpdateTodoInput) (*TodoResponse, error) {
				updated, err := todos.Update(ctx, c.User.ID, in.ID, *in.Title, in.Description)
				if err != nil {
					return nil, err
				}
				return toTodoResponse(updated), nil
			}))

		g.Register("setCompleted", rpc.NewProcedure(rpc.Authenticated,
			func(ctx context.Context, c rpc.Context, in SetCompletedInput) (*TodoResponse, error) {
				updated, err := todos.SetCompleted(ctx, c.User.ID, in.ID, *in.Completed)
				if err != nil {
					return nil, err
				}
				return toTodoResponse(updated), nil
			}))

		g.Register("deleteTodo", rpc.NewProcedure(rpc.Authenticated,
			func(ctx context.Context, c rpc.Context, in DeleteTodoInput) (*TodoResponse, error) {
				deleted, err := todos.Delete(ctx, c.User.ID, in.ID)
				if err != nil {
					return nil, err
				}
				return toTodoResponse(deleted), nil
			}))
	})
}

func ping(ctx context.Context, c rpc.Context, _ rpc.NoInput) (string, error) {
	return "ping", nil
}

func pong(db Pinger) rpc.HandlerFunc[rpc.NoInput, *PongResponse] {
	return func(ctx context.Context, c rpc.Context, _ rpc.NoInput) (*PongResponse, error) {
		start := time.Now()
		if err := db.PingContext(ctx); err != nil {
			return nil, fmt.Errorf("データベースへの疎通確認に失敗しました: %w", err)
		}
		elapsed := time.Since(start)
		return &PongResponse{
			OK:          true,
			DBLatencyMs: float64(elapsed.Microseconds()) / 1000,
		}, nil
	}
}

func profile(ctx context.Context, c rpc.Context, _ rpc.NoInput) (string, error) {
	return fmt.Sprintf("Hello %s !", c.User.Name), nil
}

// toTodoResponse はnilをnilのまま返す（所有外・不存在はnullとして応答する）。
func toTodoResponse(t *model.Todo) *TodoResponse {
	if t == nil {
		return nil
	}
	return &TodoResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Completed:   t.Completed,
		UserID:      t.UserID,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func toTodoResponses(todos []*model.Todo) []TodoResponse {
	out := make([]TodoResponse, 0, len(todos))
	for _, t := range todos {
		out = append(out, *toTodoResponse(t))
	}
	return out
}
