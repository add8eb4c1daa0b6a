package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/inkwell/internal/metrics"
	"github.com/rs/zerolog"
)

const (
	tokenSessionKey = "token"
	userIDKey       = "user_id"
	usernameKey     = "username"
	requestIDHeader = "X-Request-ID"
)

// RequestLogger 为每个请求注入带 request id 的 logger，并在结束时输出一行访问日志
func RequestLogger(base zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" || len(requestID) > 64 {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)

		logger := base.With().Str("request_id", requestID).Logger()
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context()))

		c.Next()

		status := c.Writer.Status()
		event := logger.Info()
		switch {
		case status >= http.StatusInternalServerError:
			event = logger.Error()
		case status >= http.StatusBadRequest:
			event = logger.Warn()
		}
		if id := currentUserID(c); id != 0 {
			event = event.Uint("user_id", id)
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("request")
	}
}

// Recovery 将 panic 转为 JSON 格式的 500 响应
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		zerolog.Ctx(c.Request.Context()).Error().Interface("panic", recovered).Msg("panic recovered")
		respondError(c, http.StatusInternalServerError, internalErrorMessage)
	})
}

// Metrics 按路由记录请求数与耗时
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// AuthRequired 校验会话或 Bearer 中的令牌，失败时返回 401
func (a *API) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.authenticate(c) {
			respondError(c, http.StatusUnauthorized, "Unauthorized")
			return
		}
		c.Next()
	}
}

// OptionalAuth 携带有效令牌时识别调用方，从不拒绝请求
func (a *API) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		a.authenticate(c)
		c.Next()
	}
}

func (a *API) authenticate(c *gin.Context) bool {
	token := requestToken(c)
	if token == "" {
		return false
	}

	claims, err := a.tokens.Parse(token)
	if err != nil {
		zerolog.Ctx(c.Request.Context()).Debug().Err(err).Msg("rejected token")
		return false
	}

	c.Set(userIDKey, claims.UserID)
	c.Set(usernameKey, claims.Username)
	logger := zerolog.Ctx(c.Request.Context()).With().Uint("user_id", claims.UserID).Logger()
	c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context()))
	return true
}

func requestToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if _, ok := c.Get(sessions.DefaultKey); !ok {
		return ""
	}
	if raw, ok := sessions.Default(c).Get(tokenSessionKey).(string); ok {
		return raw
	}
	return ""
}

func currentUserID(c *gin.Context) uint {
	if id, ok := c.Get(userIDKey); ok {
		if v, ok := id.(uint); ok {
			return v
		}
	}
	return 0
}

// startSession 将新签发的令牌写入会话 cookie
func (a *API) startSession(c *gin.Context, userID uint, username string) (string, time.Time, error) {
	token, expires, err := a.tokens.Issue(userID, username)
	if err != nil {
		return "", time.Time{}, err
	}

	session := sessions.Default(c)
	session.Set(tokenSessionKey, token)
	if err := session.Save(); err != nil {
		return "", time.Time{}, err
	}
	return token, expires, nil
}
