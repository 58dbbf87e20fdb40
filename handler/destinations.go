package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb"
)

// DestinationRequest 新增或更新目的地
type DestinationRequest struct {
	Name      string   `json:"name" binding:"required,max=100"`
	Latitude  *float64 `json:"latitude" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
}

// ListDestinations 返回所有目的地
func (h *Handler) ListDestinations(c *gin.Context) {
	list, err := h.nav.ListDestinations(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"destinations": list, "count": len(list)})
}

// SaveDestination 新增目的地, 同名时覆盖坐标
func (h *Handler) SaveDestination(c *gin.Context) {
	var req DestinationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数错误: " + err.Error()})
		return
	}

	d, err := h.nav.SaveDestination(c.Request.Context(), req.Name, orb.Point{*req.Longitude, *req.Latitude})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

// RemoveDestination 按名称删除目的地, 不存在返回 404
func (h *Handler) RemoveDestination(c *gin.Context) {
	deleted, err := h.nav.RemoveDestination(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "目的地不存在"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "目的地已删除"})
}
