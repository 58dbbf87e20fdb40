// Package source 定义上游几何数据源 (空间数据库或文件) 及其重试包装
package source

import (
	"context"
	"errors"
	"fmt"

	"navigator-system/model"
)

// ErrUnsupportedCategory 数据源不提供该分类
var ErrUnsupportedCategory = errors.New("数据源不支持该分类")

// RawFeature 上游返回的原始要素, 几何尚未解码
type RawFeature struct {
	ID       int64
	Name     string
	Geometry any // GeoJSON 文本/字节/对象, 交给 geom.Decode 处理
}

// Source 上游几何数据源
// Fetch 返回与 bbox 相交的至多 limit 个要素
type Source interface {
	Name() string
	Fetch(ctx context.Context, bbox model.BoundingBox, limit int) ([]RawFeature, error)
}

// UpstreamFetchError 上游抓取失败, 调用方可以稍后重试
// 不能当作 "上游没有数据" 处理
type UpstreamFetchError struct {
	Source string
	Err    error
}

func (e *UpstreamFetchError) Error() string {
	return fmt.Sprintf("上游 %s 抓取失败: %v", e.Source, e.Err)
}

func (e *UpstreamFetchError) Unwrap() error { return e.Err }

// IsUpstreamFetchError 判断是否为上游抓取失败
func IsUpstreamFetchError(err error) bool {
	var ue *UpstreamFetchError
	return errors.As(err, &ue)
}

// Registry 分类 -> 数据源
type Registry map[model.Category]Source

// For 返回分类对应的数据源, 没有配置时返回 false
func (r Registry) For(category model.Category) (Source, bool) {
	s, ok := r[category]
	return s, ok && s != nil
}
