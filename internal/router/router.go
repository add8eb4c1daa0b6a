package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/inkwell/internal/handler"
	"github.com/inkwell/internal/metrics"
	"github.com/rs/zerolog"
)

// Options 路由引擎配置
type Options struct {
	SessionName    string
	SessionSecret  string
	SessionMaxAge  time.Duration
	SecureCookies  bool
	RequestTimeout time.Duration
	Logger         zerolog.Logger
	Metrics        *metrics.Metrics
}

// WithTimeout 在引擎外层加上请求超时预算
func WithTimeout(engine *gin.Engine, opts Options) http.Handler {
	return handler.TimeoutHandler(engine, opts.RequestTimeout, opts.Logger)
}

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(api *handler.API, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(handler.RequestLogger(opts.Logger), handler.Recovery())
	if opts.Metrics != nil {
		r.Use(handler.Metrics(opts.Metrics))
	}

	// 配置会话中间件，令牌保存在 HttpOnly cookie 中
	if opts.SessionName == "" {
		opts.SessionName = "user_token"
	}
	store := cookie.NewStore([]byte(opts.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int(opts.SessionMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   opts.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
	r.Use(sessions.Sessions(opts.SessionName, store))

	r.GET("/ping", api.Ping)
	r.GET("/favicon.ico", api.Favicon)
	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}

	if uploads := api.Uploads(); uploads != nil {
		r.Static(uploads.URLPath(), uploads.Dir())
		r.PUT(uploads.URLPath()+"/:key", api.PutUpload)
	}

	apiGroup := r.Group("/api")

	authGroup := apiGroup.Group("/auth")
	{
		authGroup.POST("/signup", api.Signup)
		authGroup.POST("/signin", api.Signin)
		authGroup.POST("/signout", api.Signout)
		authGroup.POST("/verify-token", api.AuthRequired(), api.VerifyToken)
	}

	blog := apiGroup.Group("/blog")
	{
		public := blog.Group("")
		public.Use(api.OptionalAuth())
		public.GET("/getPosts", api.GetPosts)
		public.GET("/getPost/:slug", api.GetPost)
		public.GET("/getPostHistory/:slug", api.GetPostHistory)
		public.GET("/getTags", api.GetTags)

		// 需要认证的写操作
		protected := blog.Group("")
		protected.Use(api.AuthRequired())
		protected.POST("/create", api.CreatePost)
		protected.PUT("/update/:slug", api.UpdatePost)
		protected.DELETE("/remove", api.DeletePost)
		protected.GET("/getImageUploadUrl", api.GetImageUploadURL)
	}

	user := apiGroup.Group("/user")
	user.Use(api.AuthRequired())
	{
		user.GET("/getSignedInUser", api.GetSignedInUser)
		user.PUT("/updateSignedInUser", api.UpdateSignedInUser)
	}

	r.NoRoute(api.NotFound)
	return r
}
