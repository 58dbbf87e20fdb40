package algo

import (
	"log/slog"

	"navigator-system/geom"
	"navigator-system/model"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Edge 邻接表中的一条半边
type Edge struct {
	To     int     // 目标节点下标
	Weight float64 // 平面欧氏距离, 恒 >= 0
}

// Graph 无向带权图，用于路径规划
// 节点身份就是坐标本身; 下标按首次出现的顺序分配, 决定了所有遍历顺序
type Graph struct {
	Index    map[orb.Point]int // 坐标 -> 节点下标
	NodeList []orb.Point       // 节点列表 (用于遍历)
	AdjList  [][]Edge          // 邻接表 (下标 -> 边列表)

	edges int
}

// NewGraph 创建一个空的图
func NewGraph() *Graph {
	return &Graph{
		Index: make(map[orb.Point]int),
	}
}

// BuildOptions 构图参数
type BuildOptions struct {
	// SnapPrecision 坐标吸附精度 (小数位数), geom.NoSnap 表示按浮点数精确匹配
	SnapPrecision int
	// Logger 为空时使用 slog.Default()
	Logger *slog.Logger
}

// DefaultBuildOptions 默认不做坐标吸附
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{SnapPrecision: geom.NoSnap}
}

// Build 由一组要素构建图
// 返回图以及实际参与构图的要素; 解码失败或坐标不足 2 个的要素会被记录日志并跳过
func Build(features []model.Feature, opts BuildOptions) (*Graph, []model.Feature) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	g := NewGraph()
	used := make([]model.Feature, 0, len(features))

	for _, f := range features {
		ls, err := lineOf(f)
		if err != nil {
			logger.Warn("跳过无法构图的要素",
				slog.Int64("feature_id", f.ID),
				slog.String("category", string(f.Category)),
				slog.String("reason", err.Error()))
			continue
		}

		for i := 0; i < len(ls)-1; i++ {
			a := geom.Snap(ls[i], opts.SnapPrecision)
			b := geom.Snap(ls[i+1], opts.SnapPrecision)
			g.AddEdge(a, b, planar.Distance(a, b))
		}
		used = append(used, f)
	}

	return g, used
}

// lineOf 取出要素的 LineString, 未解码时先解码
func lineOf(f model.Feature) (orb.LineString, error) {
	g := f.Geometry
	if g == nil {
		decoded, err := geom.Decode(f.GeoJSON)
		if err != nil {
			return nil, err
		}
		g = decoded
	}
	return geom.LineCoords(g)
}

// AddNode 添加节点 (已存在则直接返回下标)
func (g *Graph) AddNode(p orb.Point) int {
	if id, ok := g.Index[p]; ok {
		return id
	}
	id := len(g.NodeList)
	g.Index[p] = id
	g.NodeList = append(g.NodeList, p)
	g.AdjList = append(g.AdjList, nil)
	return id
}

// AddEdge 添加一条无向边
// 如果边已存在 (可能来自其他要素)，后写入的权重覆盖之前的，不做合并
func (g *Graph) AddEdge(a, b orb.Point, weight float64) {
	ia := g.AddNode(a)
	ib := g.AddNode(b)

	if !g.setHalfEdge(ia, ib, weight) {
		g.edges++
	}
	if ia != ib {
		g.setHalfEdge(ib, ia, weight)
	}
}

// setHalfEdge 写入 from->to 半边, 返回该半边之前是否已存在
func (g *Graph) setHalfEdge(from, to int, weight float64) bool {
	for i := range g.AdjList[from] {
		if g.AdjList[from][i].To == to {
			g.AdjList[from][i].Weight = weight
			return true
		}
	}
	g.AdjList[from] = append(g.AdjList[from], Edge{To: to, Weight: weight})
	return false
}

// NodeCount 节点数
func (g *Graph) NodeCount() int { return len(g.NodeList) }

// EdgeCount 无向边数 (自环计为 1 条)
func (g *Graph) EdgeCount() int { return g.edges }

// HasNode 坐标是否为图中节点
func (g *Graph) HasNode(p orb.Point) bool {
	_, ok := g.Index[p]
	return ok
}

// Weight 返回 a-b 边的权重
func (g *Graph) Weight(a, b orb.Point) (float64, bool) {
	ia, ok := g.Index[a]
	if !ok {
		return 0, false
	}
	ib, ok := g.Index[b]
	if !ok {
		return 0, false
	}
	for _, e := range g.AdjList[ia] {
		if e.To == ib {
			return e.Weight, true
		}
	}
	return 0, false
}

// GetNeighbors 获取指定节点的邻居边
func (g *Graph) GetNeighbors(p orb.Point) []Edge {
	id, ok := g.Index[p]
	if !ok {
		return nil
	}
	return g.AdjList[id]
}

// Bound 所有节点的外包矩形
func (g *Graph) Bound() orb.Bound {
	return orb.MultiPoint(g.NodeList).Bound()
}
