// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/todoman/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	// identityが既に存在する場合はErrIdentityExistsを返す。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// UpdateProfile はIdPの最新のメールアドレスと表示名を反映する。
	UpdateProfile(ctx context.Context, id, email, name string, updatedAt time.Time) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するidentities、sessions、todoはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// TodoRepository はTODOデータの永続化インターフェース。
// 更新・削除はすべてidとuser_idの両方を条件に含む単一ステートメントで実行し、
// 所有者以外の行には一切作用しない。
type TodoRepository interface {
	// ListByUserID はユーザーのTODOをcreated_at降順で最大limit件返す。
	ListByUserID(ctx context.Context, userID string, limit int) ([]*model.Todo, error)

	// Create はTODOを作成し、挿入された行を返す。
	Create(ctx context.Context, todo *model.Todo) (*model.Todo, error)

	// UpdateOwned はidとuserIDが一致する行のタイトル・説明・更新日時を更新する。
	// 一致する行がない場合はnilを返す（存在しない場合と他ユーザー所有の場合を区別しない）。
	UpdateOwned(ctx context.Context, id, userID, title string, description *string, updatedAt time.Time) (*model.Todo, error)

	// SetCompletedOwned はidとuserIDが一致する行の完了状態を更新する。
	// 一致する行がない場合はnilを返す。
	SetCompletedOwned(ctx context.Context, id, userID string, completed bool, updatedAt time.Time) (*model.Todo, error)

	// DeleteOwned はidとuserIDが一致する行を削除し、削除された行を返す。
	// 一致する行がない場合はnilを返す。
	DeleteOwned(ctx context.Context, id, userID string) (*model.Todo, error)
}
