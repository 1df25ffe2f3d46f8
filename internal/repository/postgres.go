package repository

import (
	"errors"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// psql はPostgreSQLのプレースホルダ（$1, $2, ...）でSQLを組み立てるビルダー。
var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// isUniqueViolation はエラーがPostgreSQLの一意制約違反かを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505" // unique_violation
}

// validID はUUIDとして解釈できるIDかを返す。
// 不正な形式のIDは検索上「見つからない」として扱う。
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
