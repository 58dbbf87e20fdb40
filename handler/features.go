package handler

import (
	"net/http"

	"navigator-system/model"

	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb/geojson"
)

// GetFeatures 以 GeoJSON FeatureCollection 返回某个分类的要素
// 可选参数 bbox=min_lon,min_lat,max_lon,max_lat
func (h *Handler) GetFeatures(c *gin.Context) {
	category, err := model.ParseCategory(c.Param("category"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	var bbox model.BoundingBox
	if raw := c.Query("bbox"); raw != "" {
		bbox, err = model.ParseBoundingBox(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bbox 参数错误: " + err.Error()})
			return
		}
	}

	features, err := h.nav.ListFeatures(c.Request.Context(), category, bbox)
	if err != nil {
		h.fail(c, err)
		return
	}

	fc := geojson.NewFeatureCollection()
	for _, f := range features {
		gf := geojson.NewFeature(f.Geometry)
		gf.ID = f.ID
		gf.Properties["name"] = f.DisplayName()
		gf.Properties["category"] = string(f.Category)
		fc.Append(gf)
	}
	c.JSON(http.StatusOK, fc)
}
