// Package todo はtodo項目のドメインロジックを提供する。
// すべての操作は呼び出しユーザーの所有範囲に限定される。
package todo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/repository"
	"github.com/hitoshi/todoman/internal/security"
)

// ListLimit は一覧で返す最大件数。
const ListLimit = 10

// Service はtodoのサービス層。
type Service struct {
	repo      repository.TodoRepository
	sanitizer security.TextSanitizer
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.TodoRepository, sanitizer security.TextSanitizer) *Service {
	return &Service{
		repo:      repo,
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// List はユーザーのtodoを新しい順に最大ListLimit件返す。
func (s *Service) List(ctx context.Context, userID string) ([]*model.Todo, error) {
	todos, err := s.repo.ListByUserID(ctx, userID, ListLimit)
	if err != nil {
		return nil, fmt.Errorf("todoの取得に失敗しました: %w", err)
	}
	if todos == nil {
		todos = []*model.Todo{}
	}
	return todos, nil
}

// Create はtodoを作成する。タイトルと説明はHTMLを除去してから保存する。
func (s *Service) Create(ctx context.Context, userID, title string, description *string) (*model.Todo, error) {
	clean, err := s.cleanTitle(title)
	if err != nil {
		return nil, err
	}

	now := s.now()
	todo := &model.Todo{
		ID:          uuid.New().String(),
		Title:       clean,
		Description: s.sanitizeOptional(description),
		Completed:   false,
		UserID:      userID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	created, err := s.repo.Create(ctx, todo)
	if err != nil {
		return nil, fmt.Errorf("todoの作成に失敗しました: %w", err)
	}

	slog.Info("todo created",
		slog.String("user_id", userID),
		slog.String("todo_id", created.ID),
	)
	return created, nil
}

// Update はタイトルと説明を更新する。所有していない、または存在しない場合はnilを返す。
func (s *Service) Update(ctx context.Context, userID, id, title string, description *string) (*model.Todo, error) {
	clean, err := s.cleanTitle(title)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateOwned(ctx, id, userID, clean, s.sanitizeOptional(description), s.now())
	if err != nil {
		return nil, fmt.Errorf("todoの更新に失敗しました: %w", err)
	}
	return updated, nil
}

// SetCompleted は完了状態を切り替える。所有していない、または存在しない場合はnilを返す。
func (s *Service) SetCompleted(ctx context.Context, userID, id string, completed bool) (*model.Todo, error) {
	updated, err := s.repo.SetCompletedOwned(ctx, id, userID, completed, s.now())
	if err != nil {
		return nil, fmt.Errorf("todoの更新に失敗しました: %w", err)
	}
	return updated, nil
}

// Delete はtodoを削除する。所有していない、または存在しない場合はnilを返す。
func (s *Service) Delete(ctx context.Context, userID, id string) (*model.Todo, error) {
	deleted, err := s.repo.DeleteOwned(ctx, id, userID)
	if err != nil {
		return nil, fmt.Errorf("todoの削除に失敗しました: %w", err)
	}
	if deleted != nil {
		slog.Info("todo deleted",
			slog.String("user_id", userID),
			slog.String("todo_id", id),
		)
	}
	return deleted, nil
}

// cleanTitle はタイトルからHTMLを除去する。除去後に空になる場合は検証エラー。
func (s *Service) cleanTitle(title string) (string, error) {
	clean := s.sanitizer.Sanitize(title)
	if clean == "" {
		return "", model.NewValidationError(model.FieldError{Field: "title", Message: "タイトルを入力してください。"})
	}
	return clean, nil
}

func (s *Service) sanitizeOptional(v *string) *string {
	if v == nil {
		return nil
	}
	clean := s.sanitizer.Sanitize(*v)
	return &clean
}
