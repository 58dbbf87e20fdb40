package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"navigator-system/geom"
	"navigator-system/model"

	"github.com/paulmach/orb"
)

// ValidationError 调用方提交的数据不合法
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "参数校验失败: " + e.Reason
}

// AddPath 新增一条用户路径, 返回新分配的 ID
// ID 严格大于缓存中出现过的所有 ID, 删除后也不会复用
func (n *Navigator) AddPath(ctx context.Context, coords []orb.Point, name string) (int64, error) {
	if len(coords) < 2 {
		return 0, &ValidationError{Reason: fmt.Sprintf("路径至少需要 2 个坐标, 实际为 %d 个", len(coords))}
	}
	for i, p := range coords {
		if math.IsNaN(p[0]) || math.IsNaN(p[1]) || math.IsInf(p[0], 0) || math.IsInf(p[1], 0) {
			return 0, &ValidationError{Reason: fmt.Sprintf("第 %d 个坐标不是有限数值", i+1)}
		}
	}
	if name == "" {
		name = model.CategoryPaths.DefaultName()
	}

	text, err := geom.Encode(orb.LineString(coords))
	if err != nil {
		return 0, err
	}

	n.pathMu.Lock()
	defer n.pathMu.Unlock()

	id, err := n.store.NextID(ctx)
	if err != nil {
		return 0, err
	}
	f := model.Feature{ID: id, Category: model.CategoryPaths, Name: name, GeoJSON: text}
	if err := n.store.Upsert(ctx, f); err != nil {
		return 0, err
	}

	pathMutations.WithLabelValues("add").Inc()
	n.logger.Info("新增用户路径", slog.Int64("id", id), slog.String("name", name), slog.Int("points", len(coords)))
	return id, nil
}

// RemovePath 删除用户路径
// id 不为空时删除该要素 (返回 1 或 0); 为空时清空全部用户路径, 返回删除数量
// 只修改缓存, 下一次路径规划会按新数据重新构图
func (n *Navigator) RemovePath(ctx context.Context, id *int64) (int64, error) {
	n.pathMu.Lock()
	defer n.pathMu.Unlock()

	if id != nil {
		ok, err := n.store.Delete(ctx, *id)
		if err != nil {
			return 0, err
		}
		pathMutations.WithLabelValues("remove").Inc()
		if !ok {
			return 0, nil
		}
		n.logger.Info("删除用户路径", slog.Int64("id", *id))
		return 1, nil
	}

	deleted, err := n.store.DeleteAll(ctx, model.CategoryPaths)
	if err != nil {
		return 0, err
	}
	pathMutations.WithLabelValues("remove_all").Inc()
	n.logger.Info("清空用户路径", slog.Int64("deleted", deleted))
	return deleted, nil
}
