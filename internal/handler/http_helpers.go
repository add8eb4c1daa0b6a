package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/inkwell/internal/service"
	"github.com/rs/zerolog"
)

const internalErrorMessage = "Internal Server Error"

// errorBody 是所有失败响应的统一结构
type errorBody struct {
	Success    bool                 `json:"success"`
	StatusCode int                  `json:"statusCode"`
	Message    string               `json:"message"`
	Errors     []service.FieldError `json:"errors,omitempty"`
	Stack      string               `json:"stack,omitempty"`
}

type successBody struct {
	Success    bool        `json:"success"`
	StatusCode int         `json:"statusCode"`
	Message    string      `json:"message"`
	Data       interface{} `json:"data,omitempty"`
}

func respondOK(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, successBody{Success: true, StatusCode: status, Message: message, Data: data})
}

func respondError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, errorBody{StatusCode: status, Message: message})
}

// fail 将错误映射为状态码并写入错误响应
// 仅开发环境下返回内部错误细节
func (a *API) fail(c *gin.Context, err error) {
	status, body := classify(err)
	if a.opts.Development {
		body.Stack = fmt.Sprintf("%+v", err)
	}

	event := zerolog.Ctx(c.Request.Context()).Debug()
	if status >= http.StatusInternalServerError {
		event = zerolog.Ctx(c.Request.Context()).Error()
	}
	event.Err(err).Int("status", status).Msg("request failed")

	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}

func classify(err error) (int, errorBody) {
	status := http.StatusInternalServerError
	message := internalErrorMessage
	var fields []service.FieldError

	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		status = http.StatusBadRequest
		message = "Validation failed"
		fields = verr.Fields
	case errors.Is(err, service.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusRequestTimeout
		message = service.ErrTimeout.Error()
	case errors.Is(err, service.ErrInvalidInput):
		status = http.StatusBadRequest
		message = err.Error()
	case errors.Is(err, service.ErrUnauthorized):
		status = http.StatusUnauthorized
		message = err.Error()
	case errors.Is(err, service.ErrForbidden):
		status = http.StatusForbidden
		message = err.Error()
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
		message = err.Error()
	case errors.Is(err, service.ErrConflict):
		status = http.StatusConflict
		message = err.Error()
	}

	return status, errorBody{StatusCode: status, Message: message, Errors: fields}
}

// bindJSON 解析并校验请求体，失败时返回 400
func (a *API) bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		a.fail(c, translateBindError(err))
		return false
	}
	return true
}

func parseUintQuery(c *gin.Context, key string) (uint, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fieldError(key, fmt.Sprintf("%s must be a positive integer", key))
	}
	return uint(id), nil
}

func parseIntQuery(c *gin.Context, key string) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fieldError(key, fmt.Sprintf("%s must be a non-negative integer", key))
	}
	return n, nil
}

func parseBoolQuery(c *gin.Context, key string) bool {
	parsed, err := strconv.ParseBool(strings.TrimSpace(c.Query(key)))
	return err == nil && parsed
}

func fieldError(field, message string) error {
	return &service.ValidationError{Fields: []service.FieldError{{Field: field, Message: message}}}
}
