package algo

import (
	"errors"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/quadtree"
)

// ErrNotFound 图中没有任何节点
var ErrNotFound = errors.New("图中没有节点")

// FindNearestNode 找到离给定坐标最近的节点 (线性扫描)
// 距离相同时取下标最小 (最先出现) 的节点
func (g *Graph) FindNearestNode(query orb.Point) (orb.Point, error) {
	if len(g.NodeList) == 0 {
		return orb.Point{}, ErrNotFound
	}

	nearest := g.NodeList[0]
	minDist := planar.DistanceSquared(query, nearest)
	for _, p := range g.NodeList[1:] {
		if d := planar.DistanceSquared(query, p); d < minDist {
			minDist = d
			nearest = p
		}
	}
	return nearest, nil
}

// Locator 最近节点查询器
type Locator interface {
	Nearest(query orb.Point) (orb.Point, error)
}

// LinearLocator 逐个比较所有节点
type LinearLocator struct {
	g *Graph
}

// NewLinearLocator 创建线性扫描查询器
func NewLinearLocator(g *Graph) *LinearLocator {
	return &LinearLocator{g: g}
}

// Nearest 实现 Locator
func (l *LinearLocator) Nearest(query orb.Point) (orb.Point, error) {
	return l.g.FindNearestNode(query)
}

// QuadtreeLocator 基于四叉树的最近节点查询
// 最小距离唯一时结果与 LinearLocator 完全一致; 距离相同时选哪个由树结构决定
type QuadtreeLocator struct {
	tree  *quadtree.Quadtree
	empty bool
}

// NewQuadtreeLocator 为图的所有节点建立四叉树
func NewQuadtreeLocator(g *Graph) *QuadtreeLocator {
	if g.NodeCount() == 0 {
		return &QuadtreeLocator{empty: true}
	}

	tree := quadtree.New(g.Bound())
	for _, p := range g.NodeList {
		// 外包矩形由节点本身算出, 不会越界
		_ = tree.Add(p)
	}
	return &QuadtreeLocator{tree: tree}
}

// Nearest 实现 Locator
func (l *QuadtreeLocator) Nearest(query orb.Point) (orb.Point, error) {
	if l.empty {
		return orb.Point{}, ErrNotFound
	}
	found := l.tree.Find(query)
	if found == nil {
		return orb.Point{}, ErrNotFound
	}
	return found.Point(), nil
}

// NewLocator 根据配置选择查询器
func NewLocator(g *Graph, spatialIndex bool) Locator {
	if spatialIndex {
		return NewQuadtreeLocator(g)
	}
	return NewLinearLocator(g)
}
