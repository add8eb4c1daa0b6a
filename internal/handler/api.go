package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/inkwell/internal/auth"
	"github.com/inkwell/internal/metrics"
	"github.com/inkwell/internal/service"
	"github.com/inkwell/internal/storage"
	"gorm.io/gorm"
)

// Options 处理器配置
type Options struct {
	// Development 为 true 时在错误响应中附带错误链
	Development bool
}

// API 聚合 HTTP 处理器共享的依赖
type API struct {
	db      *gorm.DB
	posts   *service.PostService
	tags    *service.TagService
	users   *service.UserService
	tokens  *auth.TokenIssuer
	uploads *storage.LocalStore
	metrics *metrics.Metrics
	opts    Options
}

// NewAPI 创建处理器集合
func NewAPI(gdb *gorm.DB, tokens *auth.TokenIssuer, uploads *storage.LocalStore, m *metrics.Metrics, opts Options) *API {
	RegisterValidators()

	tags := service.NewTagService(gdb, m)
	return &API{
		db:      gdb,
		posts:   service.NewPostService(gdb, tags, m),
		tags:    tags,
		users:   service.NewUserService(gdb),
		tokens:  tokens,
		uploads: uploads,
		metrics: m,
		opts:    opts,
	}
}

// WithUserService 替换用户服务（例如使用更低的哈希成本）
func (a *API) WithUserService(users *service.UserService) *API {
	a.users = users
	return a
}

// DB 返回底层 gorm 实例
func (a *API) DB() *gorm.DB {
	return a.db
}

// Uploads 返回用于静态文件服务的对象存储
func (a *API) Uploads() *storage.LocalStore {
	return a.uploads
}

// Ping 健康检查
func (a *API) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

// Favicon 响应浏览器的图标请求
func (a *API) Favicon(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// NotFound 未匹配路由的兜底处理
func (a *API) NotFound(c *gin.Context) {
	respondError(c, http.StatusNotFound, "Route "+c.Request.URL.Path+" not found")
}
