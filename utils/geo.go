package utils

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// HaversineDistance 两点间球面距离 (米)
// 坐标顺序为 (经度, 纬度), 与 GeoJSON 一致
// 路径规划本身使用平面欧氏距离, 这里只用于展示路线的实际长度
func HaversineDistance(p1, p2 orb.Point) float64 {
	return geo.DistanceHaversine(p1, p2)
}

// PathLength 计算坐标序列的球面总长度 (米)
func PathLength(path []orb.Point) float64 {
	if len(path) < 2 {
		return 0
	}
	return geo.LengthHaversine(orb.LineString(path))
}
