package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/inkwell/internal/db"
)

// 错误类别。本包返回的错误通过 errors.Is 恰好匹配其中一个，
// 内部故障则不匹配任何类别
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrTimeout      = errors.New("request timed out - please try again")
)

var (
	ErrPostNotFound       = kindError(ErrNotFound, "post not found")
	ErrUserNotFound       = kindError(ErrNotFound, "user not found")
	ErrNotPostOwner       = kindError(ErrForbidden, "you are not the owner of this post")
	ErrPostTitleTaken     = kindError(ErrConflict, "post title already exists")
	ErrSlugTaken          = kindError(ErrConflict, "post slug was taken concurrently, please retry")
	ErrSlugExhausted      = kindError(ErrConflict, "could not find a free slug")
	ErrTagConflict        = kindError(ErrConflict, "tag was modified concurrently, please retry")
	ErrVersionMismatch    = kindError(ErrConflict, "post was modified by another save, reload and retry")
	ErrEmailTaken         = kindError(ErrConflict, "email already exists")
	ErrUsernameTaken      = kindError(ErrConflict, "username already exists")
	ErrInvalidCredentials = kindError(ErrUnauthorized, "invalid email or password")
)

// classifiedError 携带面向调用方的消息，Unwrap 得到错误类别
type classifiedError struct {
	kind error
	msg  string
}

func kindError(kind error, msg string) error {
	return &classifiedError{kind: kind, msg: msg}
}

func (e *classifiedError) Error() string { return e.msg }

func (e *classifiedError) Unwrap() error { return e.kind }

// FieldError 描述单个校验失败的字段
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError 汇总字段错误，匹配 ErrInvalidInput
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// Add 记录一个字段错误
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// OrNil 存在字段错误时返回 e，否则返回 nil
func (e *ValidationError) OrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// storageError 包装存储错误，超时与取消映射为 ErrTimeout，
// 由 HTTP 层返回 408
func storageError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, errors.Join(ErrTimeout, err))
	}
	return fmt.Errorf("%s: %w", op, err)
}

// postWriteError 将文章写入时的唯一冲突映射为冲突错误
func postWriteError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case db.ViolatesUnique(err, "posts.title"):
		return ErrPostTitleTaken
	case db.ViolatesUnique(err, "posts.slug"):
		return ErrSlugTaken
	case db.ViolatesUnique(err, "post_revisions"):
		return ErrVersionMismatch
	default:
		return storageError(op, err)
	}
}
