package repository

import (
	"errors"

	"github.com/lib/pq"
)

// ErrIdentityExists は同じ(provider, provider_user_id)のidentityが既に存在することを表す。
// 同一アカウントの初回ログインが並行した場合に発生する。
var ErrIdentityExists = errors.New("identity already exists")

// pqUniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
const pqUniqueViolation = pq.ErrorCode("23505")

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// isUniqueViolation はerrが指定制約の一意制約違反かを返す。constraintが空の場合は制約名を問わない。
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != pqUniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}
