package db

import (
	"errors"
	"strings"

	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

// IsUniqueViolation 判断错误是否由唯一索引冲突引起
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}

	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed")
}

// ViolatesUnique 判断错误是否为指定 "table.column" 上的唯一冲突
func ViolatesUnique(err error, column string) bool {
	if !IsUniqueViolation(err) {
		return false
	}
	return strings.Contains(err.Error(), column)
}
