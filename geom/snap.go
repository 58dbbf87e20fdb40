package geom

import (
	"math"

	"github.com/paulmach/orb"
)

// NoSnap 关闭坐标吸附, 顶点按浮点数精确相等判定
const NoSnap = -1

// Snap 把坐标四舍五入到 precision 位小数, 用于消除不同来源端点间的浮点噪声
// precision < 0 时原样返回
func Snap(p orb.Point, precision int) orb.Point {
	if precision < 0 {
		return p
	}
	scale := math.Pow10(precision)
	return orb.Point{
		math.Round(p[0]*scale) / scale,
		math.Round(p[1]*scale) / scale,
	}
}
