package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/todoman/internal/model"
)

const todoColumns = `id, title, description, completed, user_id, created_at, updated_at`

// PostgresTodoRepo はPostgreSQLを使用したTODOリポジトリ。
type PostgresTodoRepo struct {
	db *sql.DB
}

// NewPostgresTodoRepo はPostgresTodoRepoを生成する。
func NewPostgresTodoRepo(db *sql.DB) *PostgresTodoRepo {
	return &PostgresTodoRepo{db: db}
}

// ListByUserID はユーザーのTODOをcreated_at降順で最大limit件返す。
// created_atが同一の場合はidの降順で順序を固定する。
func (r *PostgresTodoRepo) ListByUserID(ctx context.Context, userID string, limit int) ([]*model.Todo, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+todoColumns+`
		 FROM todo
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list todos: %w", err)
	}
	defer rows.Close()

	todos := make([]*model.Todo, 0, limit)
	for rows.Next() {
		todo, err := scanTodo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan todo: %w", err)
		}
		todos = append(todos, todo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate todos: %w", err)
	}

	return todos, nil
}

// Create はTODOを作成し、挿入された行を返す。
func (r *PostgresTodoRepo) Create(ctx context.Context, todo *model.Todo) (*model.Todo, error) {
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO todo (id, title, description, completed, user_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+todoColumns,
		todo.ID, todo.Title, nullString(todo.Description), todo.Completed, todo.UserID, todo.CreatedAt, todo.UpdatedAt,
	)

	created, err := scanTodo(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create todo: %w", err)
	}
	return created, nil
}

// UpdateOwned はidとuserIDが一致する行のタイトル・説明・更新日時を更新する。
// 所有者チェックはWHERE句に含め、読み取りと書き込みの間の競合を生まない。
func (r *PostgresTodoRepo) UpdateOwned(ctx context.Context, id, userID, title string, description *string, updatedAt time.Time) (*model.Todo, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE todo
		 SET title = $3, description = $4, updated_at = $5
		 WHERE id = $1 AND user_id = $2
		 RETURNING `+todoColumns,
		id, userID, title, nullString(description), updatedAt,
	)
	return scanOwned(row, "update")
}

// SetCompletedOwned はidとuserIDが一致する行の完了状態を更新する。
func (r *PostgresTodoRepo) SetCompletedOwned(ctx context.Context, id, userID string, completed bool, updatedAt time.Time) (*model.Todo, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE todo
		 SET completed = $3, updated_at = $4
		 WHERE id = $1 AND user_id = $2
		 RETURNING `+todoColumns,
		id, userID, completed, updatedAt,
	)
	return scanOwned(row, "set completed on")
}

// DeleteOwned はidとuserIDが一致する行を削除し、削除された行を返す。
func (r *PostgresTodoRepo) DeleteOwned(ctx context.Context, id, userID string) (*model.Todo, error) {
	row := r.db.QueryRowContext(ctx,
		`DELETE FROM todo
		 WHERE id = $1 AND user_id = $2
		 RETURNING `+todoColumns,
		id, userID,
	)
	return scanOwned(row, "delete")
}

// scanOwned は所有者スコープ付きの変更結果を読み取る。該当行がなければnilを返す。
func scanOwned(row rowScanner, op string) (*model.Todo, error) {
	todo, err := scanTodo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to %s todo: %w", op, err)
	}
	return todo, nil
}

func scanTodo(row rowScanner) (*model.Todo, error) {
	todo := &model.Todo{}
	var description sql.NullString
	if err := row.Scan(
		&todo.ID, &todo.Title, &description, &todo.Completed,
		&todo.UserID, &todo.CreatedAt, &todo.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if description.Valid {
		todo.Description = &description.String
	}
	return todo, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// compile-time interface check
var _ TodoRepository = (*PostgresTodoRepo)(nil)
