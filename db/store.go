// Package db 提供几何要素缓存 (Geometry Record Store) 的持久化实现
//
// 两种实现:
//   - GormStore: gorm + PostgreSQL, 生产部署使用
//   - SQLiteStore: database/sql + modernc.org/sqlite, 本地/嵌入式部署与测试使用
package db

import (
	"context"
	"errors"

	"navigator-system/model"
)

// ErrDestinationNotFound 目的地不存在
var ErrDestinationNotFound = errors.New("目的地不存在")

// ErrCategoryConflict 同一个 ID 已经属于另一个分类, 不允许跨分类覆盖
var ErrCategoryConflict = errors.New("要素 ID 已被其他分类占用")

// watermarkName 要素 ID 水位线在 id_watermarks 表中的键
const watermarkName = "feature"

// Store 几何要素缓存
//
// 要素以 ID 为唯一键; Upsert 是幂等的, 相同参数重复调用不会改变可观察状态
type Store interface {
	// GetAll 返回某个分类下的所有要素 (按 ID 升序)
	GetAll(ctx context.Context, category model.Category) ([]model.Feature, error)
	// Count 返回某个分类下的要素数量
	Count(ctx context.Context, category model.Category) (int64, error)
	// Upsert 按 ID 插入或替换要素
	// ID 已存在且分类不同时不做修改, 返回 ErrCategoryConflict
	Upsert(ctx context.Context, f model.Feature) error
	// Delete 删除一个要素, 返回是否有数据被删除
	Delete(ctx context.Context, id int64) (bool, error)
	// DeleteAll 清空一个分类, 返回删除数量
	DeleteAll(ctx context.Context, category model.Category) (int64, error)
	// NextID 分配一个严格大于历史上所有 ID 的新 ID (删除后也不复用)
	NextID(ctx context.Context) (int64, error)

	// ListDestinations 返回所有目的地 (按名称排序)
	ListDestinations(ctx context.Context) ([]model.Destination, error)
	// GetDestination 按名称查询目的地, 不存在时返回 ErrDestinationNotFound
	GetDestination(ctx context.Context, name string) (model.Destination, error)
	// SaveDestination 按名称插入或更新目的地坐标, 返回保存后的记录
	SaveDestination(ctx context.Context, d model.Destination) (model.Destination, error)
	// DeleteDestination 按名称删除目的地, 返回是否有数据被删除
	DeleteDestination(ctx context.Context, name string) (bool, error)

	// Close 释放连接
	Close() error
}
