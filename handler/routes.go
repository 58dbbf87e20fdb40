package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterOptions 路由配置
type RouterOptions struct {
	RequestTimeout time.Duration
}

// NewRouter 创建 gin 引擎并配置路由
func (h *Handler) NewRouter(opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), AccessLog(h.logger), CORS())
	h.setupRoutes(r, opts)
	return r
}

// setupRoutes 配置路由
func (h *Handler) setupRoutes(r *gin.Engine, opts RouterOptions) {
	// 健康检查
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
			"status":  "ok",
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.Use(Timeout(opts.RequestTimeout))
	{
		// 公开接口 (无需认证)
		api.POST("/route", h.FindPath)
		api.GET("/features/:category", h.GetFeatures)
		api.GET("/destinations", h.ListDestinations)

		// 修改用户路径, 配置了认证时需要 Token
		paths := api.Group("/paths")
		destinations := api.Group("/destinations")
		if h.auth != nil {
			api.POST("/login", h.auth.Login)
			paths.Use(h.auth.AuthMiddleware())
			destinations.Use(h.auth.AuthMiddleware())
		}
		paths.POST("", h.AddPath)
		paths.DELETE("", h.RemoveAllPaths)
		paths.DELETE("/:id", h.RemovePath)

		destinations.POST("", h.SaveDestination)
		destinations.DELETE("/:name", h.RemoveDestination)
	}
}
