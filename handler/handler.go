// Package handler 提供 HTTP 接口 (gin)
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"navigator-system/db"
	"navigator-system/service"
	"navigator-system/source"

	"github.com/gin-gonic/gin"
)

// Handler 持有路径规划引擎, 所有接口共享
type Handler struct {
	nav    *service.Navigator
	auth   *Auth // 为空表示路径修改接口不需要认证
	logger *slog.Logger
}

// New 创建 Handler, auth 可以为空
func New(nav *service.Navigator, auth *Auth, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{nav: nav, auth: auth, logger: logger}
}

// fail 将引擎返回的错误映射为 HTTP 状态码
// 上游失败返回 503, 调用方可以重试; 不能和 "找不到路径" 混为一谈
func (h *Handler) fail(c *gin.Context, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
	case errors.Is(err, db.ErrDestinationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "目的地不存在"})
	case source.IsUpstreamFetchError(err):
		h.logger.Warn("上游数据源不可用", slog.String("error", err.Error()), slog.String("request_id", requestID(c)))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "上游数据源暂时不可用, 请稍后重试", "retryable": true})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "请求超时"})
	default:
		h.logger.Error("请求处理失败", slog.String("error", err.Error()), slog.String("request_id", requestID(c)))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
	}
}
