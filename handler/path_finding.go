package handler

import (
	"net/http"

	"navigator-system/model"

	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// PathRequest 路径规划请求, 坐标为 [经度, 纬度]
// 起终点也可以用目的地名称指定, 同时给出时以名称为准
type PathRequest struct {
	Start            []float64 `json:"start" binding:"omitempty,len=2"`
	End              []float64 `json:"end" binding:"omitempty,len=2"`
	StartDestination string    `json:"start_destination" binding:"max=100"`
	EndDestination   string    `json:"end_destination" binding:"max=100"`
}

// endpoint 解析一端的坐标, 目的地名称优先
func (h *Handler) endpoint(c *gin.Context, coords []float64, name, which string) (orb.Point, bool) {
	if name != "" {
		d, err := h.nav.Destination(c.Request.Context(), name)
		if err != nil {
			h.fail(c, err)
			return orb.Point{}, false
		}
		return d.Point(), true
	}
	if len(coords) != 2 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数错误: 缺少" + which})
		return orb.Point{}, false
	}
	return orb.Point{coords[0], coords[1]}, true
}

// PathResponse 路径规划响应
type PathResponse struct {
	Status   model.RouteStatus `json:"status"`
	Found    bool              `json:"found"`
	Path     []orb.Point       `json:"path,omitempty"`
	Geometry *geojson.Geometry `json:"geometry,omitempty"` // 路径的 GeoJSON LineString, 方便前端直接绘制
	Weight   float64           `json:"weight,omitempty"`
	Distance float64           `json:"distance,omitempty"` // 米
	Start    *orb.Point        `json:"start_node,omitempty"`
	End      *orb.Point        `json:"end_node,omitempty"`
	Message  string            `json:"message"`
}

var routeMessages = map[model.RouteStatus]string{
	model.RouteFound:            "路径规划成功",
	model.RouteNoGraphData:      "暂无道路数据",
	model.RouteNoPath:           "未找到连通的路径",
	model.RoutePointUnreachable: "起点或终点附近没有可用的道路",
}

// FindPath 路径规划接口
// 找不到路径也返回 200, 通过 status 区分; 只有系统错误才返回非 2xx
func (h *Handler) FindPath(c *gin.Context) {
	var req PathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数错误: " + err.Error()})
		return
	}

	start, ok := h.endpoint(c, req.Start, req.StartDestination, "起点")
	if !ok {
		return
	}
	end, ok := h.endpoint(c, req.End, req.EndDestination, "终点")
	if !ok {
		return
	}

	res, err := h.nav.Route(c.Request.Context(), start, end)
	if err != nil {
		h.fail(c, err)
		return
	}

	resp := PathResponse{
		Status:  res.Status,
		Found:   res.Found(),
		Start:   res.Start,
		End:     res.End,
		Message: routeMessages[res.Status],
	}
	if res.Found() {
		resp.Path = res.Path
		resp.Weight = res.Weight
		resp.Distance = res.Meters
		if len(res.Path) >= 2 {
			resp.Geometry = geojson.NewGeometry(res.LineString())
		}
	}
	c.JSON(http.StatusOK, resp)
}
