package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// routeTotal 按结果统计路径规划次数
	routeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "navigator_route_total",
		Help: "Total route requests by status",
	}, []string{"status"})

	// routeDuration 路径规划耗时 (含构图)
	routeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "navigator_route_duration_seconds",
		Help:    "Route request duration in seconds, graph rebuild included",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
	})

	// graphBuildDuration 每次请求重建图的耗时
	graphBuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "navigator_graph_build_duration_seconds",
		Help:    "Per-request graph build duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
	})

	// graphNodes 最近一次构图的节点数
	graphNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "navigator_graph_nodes",
		Help: "Vertex count of the most recently built graph",
	})

	// populateTotal 缓存填充次数, result: cached / fetched / error / no_source
	populateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "navigator_populate_total",
		Help: "Cache population attempts by category and result",
	}, []string{"category", "result"})

	// populateSkipped 因几何无法解码而跳过的要素数
	populateSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "navigator_populate_skipped_features_total",
		Help: "Upstream features skipped because their geometry could not be decoded",
	}, []string{"category"})

	// pathMutations 用户路径增删次数
	pathMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "navigator_path_mutations_total",
		Help: "User path mutations by operation",
	}, []string{"op"})
)
