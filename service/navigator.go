// Package service 组合缓存、上游数据源与图算法, 对外提供路径规划引擎
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"navigator-system/algo"
	"navigator-system/db"
	"navigator-system/geom"
	"navigator-system/model"
	"navigator-system/source"
	"navigator-system/utils"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"golang.org/x/sync/singleflight"
)

// PopulatePolicy 某个分类的缓存填充策略
type PopulatePolicy struct {
	BBox      model.BoundingBox
	Limit     int
	Threshold int64 // 缓存数量低于该值时才去上游抓取
}

// GraphOptions 构图与最近节点查询参数
type GraphOptions struct {
	SnapPrecision   int     // 见 geom.Snap, geom.NoSnap 表示不吸附
	MaxSnapDistance float64 // > 0 时, 查询点离最近节点超过该距离视为不可达
	SpatialIndex    bool    // 使用四叉树查询最近节点
}

// DefaultPopulateTimeout 缓存填充的默认总时长上限
const DefaultPopulateTimeout = 2 * time.Minute

// encodeGeometry 入库前的几何序列化, 测试中可替换
var encodeGeometry = geom.Encode

// Config 引擎配置
type Config struct {
	Populate     map[model.Category]PopulatePolicy
	AutoPopulate bool // 路径规划/要素查询前先尝试填充缓存
	Graph        GraphOptions

	// PopulateTimeout 一次缓存填充 (含全部重试) 的总时长上限, 为 0 时使用 DefaultPopulateTimeout
	PopulateTimeout time.Duration
}

// Navigator 路径规划引擎
//
// 图不在请求之间共享: 每次路径规划都从缓存的当前快照重新构图,
// 唯一的共享可变状态是 Store。
type Navigator struct {
	store   db.Store
	sources source.Registry
	cfg     Config
	logger  *slog.Logger

	// populate 按分类串行执行, 并发请求共享同一次抓取结果
	flight singleflight.Group
	// pathMu 串行化 ID 分配与写入
	pathMu sync.Mutex
}

// New 创建引擎
func New(store db.Store, sources source.Registry, cfg Config, logger *slog.Logger) *Navigator {
	if logger == nil {
		logger = slog.Default()
	}
	if sources == nil {
		sources = source.Registry{}
	}
	return &Navigator{
		store:   store,
		sources: sources,
		cfg:     cfg,
		logger:  logger,
	}
}

// PopulateStats 一次缓存填充的结果
type PopulateStats struct {
	Category  model.Category `json:"category"`
	Cached    int64          `json:"cached"`     // 填充前缓存中的数量
	Fetched   int            `json:"fetched"`    // 上游返回的数量
	Upserted  int            `json:"upserted"`   // 成功写入的数量
	Skipped   int            `json:"skipped"`    // 几何无法解码而跳过的数量
	FromCache bool           `json:"from_cache"` // 缓存已满足阈值, 没有访问上游
}

// Populate 缓存数量低于阈值时从上游抓取并写入
// 同一分类的并发调用只会触发一次上游抓取
func (n *Navigator) Populate(ctx context.Context, category model.Category) (PopulateStats, error) {
	ch := n.flight.DoChan(string(category), func() (interface{}, error) {
		// 抓取结果由所有等待者共享, 不能跟随发起者的 ctx 一起取消
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.populateTimeout())
		defer cancel()
		return n.populate(fctx, category)
	})

	select {
	case <-ctx.Done():
		return PopulateStats{Category: category}, ctx.Err()
	case res := <-ch:
		if res.Shared {
			n.logger.Debug("复用进行中的缓存填充", slog.String("category", string(category)))
		}
		stats, _ := res.Val.(PopulateStats)
		return stats, res.Err
	}
}

func (n *Navigator) populateTimeout() time.Duration {
	if n.cfg.PopulateTimeout > 0 {
		return n.cfg.PopulateTimeout
	}
	return DefaultPopulateTimeout
}

func (n *Navigator) populate(ctx context.Context, category model.Category) (PopulateStats, error) {
	stats := PopulateStats{Category: category, FromCache: true}

	policy, ok := n.cfg.Populate[category]
	if !ok {
		return stats, nil
	}
	src, ok := n.sources.For(category)
	if !ok {
		populateTotal.WithLabelValues(string(category), "no_source").Inc()
		return stats, nil
	}

	count, err := n.store.Count(ctx, category)
	if err != nil {
		return stats, err
	}
	stats.Cached = count
	if count >= policy.Threshold {
		populateTotal.WithLabelValues(string(category), "cached").Inc()
		return stats, nil
	}

	stats.FromCache = false
	start := time.Now()
	raws, err := src.Fetch(ctx, policy.BBox, policy.Limit)
	if err != nil {
		populateTotal.WithLabelValues(string(category), "error").Inc()
		if !source.IsUpstreamFetchError(err) {
			err = &source.UpstreamFetchError{Source: src.Name(), Err: err}
		}
		return stats, err
	}
	stats.Fetched = len(raws)

	for _, raw := range raws {
		g, err := geom.Decode(raw.Geometry)
		if err != nil {
			stats.Skipped++
			n.logger.Warn("跳过几何无效的上游要素",
				slog.String("category", string(category)),
				slog.Int64("feature_id", raw.ID),
				slog.String("reason", err.Error()))
			continue
		}
		text, err := encodeGeometry(g)
		if err != nil {
			stats.Skipped++
			n.logger.Warn("跳过无法序列化的上游要素",
				slog.String("category", string(category)),
				slog.Int64("feature_id", raw.ID),
				slog.String("reason", err.Error()))
			continue
		}

		f := model.Feature{ID: raw.ID, Category: category, Name: raw.Name, GeoJSON: text}
		if err := n.store.Upsert(ctx, f); err != nil {
			if errors.Is(err, db.ErrCategoryConflict) {
				stats.Skipped++
				n.logger.Warn("跳过 ID 与其他分类冲突的上游要素",
					slog.String("category", string(category)),
					slog.Int64("feature_id", raw.ID),
					slog.String("reason", err.Error()))
				continue
			}
			return stats, err
		}
		stats.Upserted++
	}

	populateTotal.WithLabelValues(string(category), "fetched").Inc()
	populateSkipped.WithLabelValues(string(category)).Add(float64(stats.Skipped))
	n.logger.Info("缓存填充完成",
		slog.String("category", string(category)),
		slog.String("source", src.Name()),
		slog.Int("fetched", stats.Fetched),
		slog.Int("upserted", stats.Upserted),
		slog.Int("skipped", stats.Skipped),
		slog.Duration("took", time.Since(start)))
	return stats, nil
}

// populateRoutable 填充所有参与构图的分类
func (n *Navigator) populateRoutable(ctx context.Context) error {
	if !n.cfg.AutoPopulate {
		return nil
	}
	for _, c := range model.RoutableCategories {
		if _, err := n.Populate(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// BuildGraph 从缓存当前快照构图
func (n *Navigator) BuildGraph(ctx context.Context) (*algo.Graph, []model.Feature, error) {
	var features []model.Feature
	for _, c := range model.RoutableCategories {
		fs, err := n.store.GetAll(ctx, c)
		if err != nil {
			return nil, nil, err
		}
		features = append(features, fs...)
	}

	start := time.Now()
	g, used := algo.Build(features, algo.BuildOptions{
		SnapPrecision: n.cfg.Graph.SnapPrecision,
		Logger:        n.logger,
	})
	graphBuildDuration.Observe(time.Since(start).Seconds())
	graphNodes.Set(float64(g.NodeCount()))

	n.logger.Debug("构图完成",
		slog.Int("features", len(features)),
		slog.Int("used", len(used)),
		slog.Int("nodes", g.NodeCount()),
		slog.Int("edges", g.EdgeCount()))
	return g, used, nil
}

// Route 计算两个任意坐标之间的最短路径
// 找不到路径等属于正常结果, 通过 RouteResult.Status 返回; error 只表示系统错误
func (n *Navigator) Route(ctx context.Context, start, end orb.Point) (model.RouteResult, error) {
	began := time.Now()
	res, err := n.route(ctx, start, end)
	routeDuration.Observe(time.Since(began).Seconds())
	if err != nil {
		routeTotal.WithLabelValues("error").Inc()
		return model.RouteResult{}, err
	}
	routeTotal.WithLabelValues(string(res.Status)).Inc()
	return res, nil
}

func (n *Navigator) route(ctx context.Context, start, end orb.Point) (model.RouteResult, error) {
	if err := n.populateRoutable(ctx); err != nil {
		return model.RouteResult{}, err
	}

	g, _, err := n.BuildGraph(ctx)
	if err != nil {
		return model.RouteResult{}, err
	}
	if g.NodeCount() == 0 {
		return model.RouteResult{Status: model.RouteNoGraphData}, nil
	}

	loc := algo.NewLocator(g, n.cfg.Graph.SpatialIndex)
	from, ok, err := n.snap(loc, start)
	if err != nil || !ok {
		return model.RouteResult{Status: model.RoutePointUnreachable}, err
	}
	to, ok, err := n.snap(loc, end)
	if err != nil || !ok {
		return model.RouteResult{Status: model.RoutePointUnreachable}, err
	}

	path, err := g.Dijkstra(from, to)
	switch {
	case errors.Is(err, algo.ErrNoPath):
		return model.RouteResult{Status: model.RouteNoPath, Start: &from, End: &to}, nil
	case err != nil:
		return model.RouteResult{}, fmt.Errorf("计算最短路径失败: %w", err)
	}

	return model.RouteResult{
		Status: model.RouteFound,
		Path:   path.Path,
		Weight: path.Weight,
		Meters: utils.PathLength(path.Path),
		Start:  &from,
		End:    &to,
	}, nil
}

// snap 查询最近节点; 返回 false 表示查询点不可达
func (n *Navigator) snap(loc algo.Locator, p orb.Point) (orb.Point, bool, error) {
	v, err := loc.Nearest(p)
	if errors.Is(err, algo.ErrNotFound) {
		return orb.Point{}, false, nil
	}
	if err != nil {
		return orb.Point{}, false, err
	}
	if limit := n.cfg.Graph.MaxSnapDistance; limit > 0 && planar.Distance(p, v) > limit {
		return orb.Point{}, false, nil
	}
	return v, true, nil
}

// ListFeatures 返回某个分类中与 bbox 相交的要素 (用于展示), 几何已解码
// bbox 为空时返回全部; 几何无法解码的要素被跳过
func (n *Navigator) ListFeatures(ctx context.Context, category model.Category, bbox model.BoundingBox) ([]model.Feature, error) {
	if n.cfg.AutoPopulate {
		if _, err := n.Populate(ctx, category); err != nil {
			return nil, err
		}
	}

	all, err := n.store.GetAll(ctx, category)
	if err != nil {
		return nil, err
	}

	out := make([]model.Feature, 0, len(all))
	for _, f := range all {
		g, err := geom.Decode(f.GeoJSON)
		if err != nil {
			n.logger.Warn("跳过几何无效的缓存要素",
				slog.Int64("feature_id", f.ID),
				slog.String("reason", err.Error()))
			continue
		}
		if !bbox.IsZero() && !g.Bound().Intersects(bbox.Bound()) {
			continue
		}
		f.Geometry = g
		out = append(out, f)
	}
	return out, nil
}

// ClearCategory 清空一个分类, 下次填充会重新访问上游
func (n *Navigator) ClearCategory(ctx context.Context, category model.Category) (int64, error) {
	deleted, err := n.store.DeleteAll(ctx, category)
	if err != nil {
		return 0, err
	}
	n.logger.Info("已清空分类缓存", slog.String("category", string(category)), slog.Int64("deleted", deleted))
	return deleted, nil
}
