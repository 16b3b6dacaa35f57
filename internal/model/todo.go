package model

import "time"

// Todo はユーザーが所有するTODO項目を表す。
// 参照・更新・削除は必ず所有者のuser_idでスコープする。
type Todo struct {
	ID          string
	Title       string
	Description *string
	Completed   bool
	UserID      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
