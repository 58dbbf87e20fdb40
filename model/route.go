package model

import "github.com/paulmach/orb"

// RouteStatus 路径规划结果类型
type RouteStatus string

const (
	RouteFound            RouteStatus = "found"
	RouteNoGraphData      RouteStatus = "no_graph_data"     // 缓存中没有可用于构图的数据
	RouteNoPath           RouteStatus = "no_path"           // 起终点不连通
	RoutePointUnreachable RouteStatus = "point_unreachable" // 查询点找不到对应的图节点
)

// RouteResult 一次路径规划的结果, 不落库
type RouteResult struct {
	Status RouteStatus `json:"status"`
	Path   []orb.Point `json:"path,omitempty"`   // 起点到终点的坐标序列 (含两端)
	Weight float64     `json:"weight,omitempty"` // 平面欧氏距离之和
	Meters float64     `json:"meters,omitempty"` // 球面距离 (米), 仅用于展示
	Start  *orb.Point  `json:"start,omitempty"`  // 实际使用的起点图节点
	End    *orb.Point  `json:"end,omitempty"`    // 实际使用的终点图节点
}

// Found 是否找到路径
func (r RouteResult) Found() bool { return r.Status == RouteFound }

// LineString 将路径转换为 LineString
func (r RouteResult) LineString() orb.LineString {
	return orb.LineString(r.Path)
}
