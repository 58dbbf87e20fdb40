package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"navigator-system/model"

	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb"
)

// AddPathRequest 新增用户路径
type AddPathRequest struct {
	Coordinates [][]float64 `json:"coordinates" binding:"required"`
	Name        string      `json:"name" binding:"max=255"`
}

// AddPath 新增用户路径, 成功返回 201 和新 ID
func (h *Handler) AddPath(c *gin.Context) {
	var req AddPathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数错误: " + err.Error()})
		return
	}

	coords := make([]orb.Point, 0, len(req.Coordinates))
	for i, pair := range req.Coordinates {
		if len(pair) != 2 {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("第 %d 个坐标应为 [经度, 纬度]", i+1)})
			return
		}
		coords = append(coords, orb.Point{pair[0], pair[1]})
	}

	id, err := h.nav.AddPath(c.Request.Context(), coords, req.Name)
	if err != nil {
		h.fail(c, err)
		return
	}

	name := req.Name
	if name == "" {
		name = model.CategoryPaths.DefaultName()
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":      id,
		"name":    name,
		"message": "路径已保存",
	})
}

// RemovePath 按 ID 删除一条路径, 不存在返回 404
func (h *Handler) RemovePath(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "路径 ID 必须是整数"})
		return
	}

	deleted, err := h.nav.RemovePath(c.Request.Context(), &id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if deleted == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "路径不存在", "deleted": 0})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted, "message": "路径已删除"})
}

// RemoveAllPaths 清空所有用户路径
func (h *Handler) RemoveAllPaths(c *gin.Context) {
	deleted, err := h.nav.RemovePath(c.Request.Context(), nil)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted, "message": "已清空用户路径"})
}
