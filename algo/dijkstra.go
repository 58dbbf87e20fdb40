package algo

import (
	"container/heap"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/paulmach/orb"
)

var (
	// ErrNoPath 起点和终点不在同一个连通分量
	ErrNoPath = errors.New("未找到路径")
	// ErrVertexAbsent 起点或终点不是图中节点 (调用方应先做最近节点查询)
	ErrVertexAbsent = errors.New("节点不在图中")
)

// PathResult 路径规划结果
type PathResult struct {
	Path   []orb.Point // 起点到终点的节点序列 (含两端)
	Weight float64     // 总权重 (平面欧氏距离)
}

// PriorityQueueItem 优先队列中的元素
type PriorityQueueItem struct {
	Node  int     // 节点下标
	Cost  float64 // 距离成本
	Index int     // 在堆中的索引
}

// PriorityQueue 实现 heap.Interface 接口的优先队列
// 成本相同时节点下标小的先出队, 保证结果确定
type PriorityQueue []*PriorityQueueItem

func (pq PriorityQueue) Len() int { return len(pq) }

func (pq PriorityQueue) Less(i, j int) bool {
	if pq[i].Cost != pq[j].Cost {
		return pq[i].Cost < pq[j].Cost
	}
	return pq[i].Node < pq[j].Node
}

func (pq PriorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].Index = i
	pq[j].Index = j
}

func (pq *PriorityQueue) Push(x interface{}) {
	n := len(*pq)
	item := x.(*PriorityQueueItem)
	item.Index = n
	*pq = append(*pq, item)
}

func (pq *PriorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil  // 避免内存泄漏
	item.Index = -1 // 标记为已移除
	*pq = old[0 : n-1]
	return item
}

// Dijkstra 使用 Dijkstra 算法寻找最短路径
// 松弛使用严格小于, 等长路径保留先确定的前驱
func (g *Graph) Dijkstra(source, target orb.Point) (PathResult, error) {
	startID, ok := g.Index[source]
	if !ok {
		return PathResult{}, fmt.Errorf("起点 %v: %w", source, ErrVertexAbsent)
	}
	endID, ok := g.Index[target]
	if !ok {
		return PathResult{}, fmt.Errorf("终点 %v: %w", target, ErrVertexAbsent)
	}

	if startID == endID {
		return PathResult{Path: []orb.Point{source}}, nil
	}

	// 初始化距离、前驱
	dist := make([]float64, len(g.NodeList))
	prev := make([]int, len(g.NodeList))
	visited := make([]bool, len(g.NodeList))
	for i := range dist {
		dist[i] = math.Inf(1) // 无穷大
		prev[i] = -1
	}
	dist[startID] = 0

	// 初始化优先队列
	pq := make(PriorityQueue, 0)
	heap.Init(&pq)
	heap.Push(&pq, &PriorityQueueItem{Node: startID, Cost: 0})

	// Dijkstra 主循环
	for pq.Len() > 0 {
		current := heap.Pop(&pq).(*PriorityQueueItem)
		u := current.Node

		// 如果已访问过，跳过
		if visited[u] {
			continue
		}
		visited[u] = true

		// 如果到达终点，提前退出
		if u == endID {
			break
		}

		// 遍历邻居
		for _, edge := range g.AdjList[u] {
			v := edge.To
			if visited[v] {
				continue
			}
			newCost := dist[u] + edge.Weight
			if newCost < dist[v] {
				dist[v] = newCost
				prev[v] = u
				heap.Push(&pq, &PriorityQueueItem{Node: v, Cost: newCost})
			}
		}
	}

	// 如果没有找到路径
	if math.IsInf(dist[endID], 1) {
		return PathResult{}, ErrNoPath
	}

	// 回溯路径
	path := []orb.Point{}
	for at := endID; at != -1; at = prev[at] {
		path = append(path, g.NodeList[at])
		if at == startID {
			break
		}
	}
	slices.Reverse(path)

	return PathResult{Path: path, Weight: dist[endID]}, nil
}

// FormatPath 格式化路径结果为可读字符串
func FormatPath(result PathResult) string {
	if len(result.Path) == 0 {
		return "未找到路径"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "总权重: %.8f (节点数: %d)\n", result.Weight, len(result.Path))
	b.WriteString("路径:\n")
	for i, p := range result.Path {
		fmt.Fprintf(&b, "%d. (%.7f, %.7f)\n", i+1, p.Lon(), p.Lat())
	}
	return b.String()
}
