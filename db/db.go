package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"navigator-system/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// PostgresOptions PostgreSQL 连接参数
type PostgresOptions struct {
	Host          string
	Port          string
	User          string
	Password      string
	Name          string
	SSLMode       string
	TimeZone      string
	MaxRetries    int
	RetryInterval time.Duration
}

// DSN 拼接连接字符串
func (o PostgresOptions) DSN() string {
	sslMode := o.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	tz := o.TimeZone
	if tz == "" {
		tz = "UTC"
	}
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		o.Host, o.User, o.Password, o.Name, o.Port, sslMode, tz,
	)
}

// GormStore 基于 gorm 的要素缓存 (PostgreSQL)
type GormStore struct {
	DB *gorm.DB
}

// OpenPostgres 连接 PostgreSQL 并自动迁移表结构
// 带重试 (Docker 启动时数据库可能还没准备好)
func OpenPostgres(ctx context.Context, opts PostgresOptions) (*GormStore, error) {
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}

	var (
		gdb *gorm.DB
		err error
	)
	for i := 0; i < maxRetries; i++ {
		gdb, err = gorm.Open(postgres.Open(opts.DSN()), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Warn),
		})
		if err == nil {
			break
		}
		slog.Warn("等待数据库就绪...",
			slog.Int("attempt", i+1),
			slog.Int("max_retries", maxRetries),
			slog.String("error", err.Error()))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(opts.RetryInterval):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("无法连接数据库: %w", err)
	}

	return NewGormStore(gdb)
}

// NewGormStore 使用已有连接创建存储, 并自动迁移表结构
func NewGormStore(gdb *gorm.DB) (*GormStore, error) {
	if err := gdb.AutoMigrate(&model.Feature{}, &model.IDWatermark{}, &model.Destination{}); err != nil {
		return nil, fmt.Errorf("数据库迁移失败: %w", err)
	}
	return &GormStore{DB: gdb}, nil
}

// GetAll 实现 Store
func (s *GormStore) GetAll(ctx context.Context, category model.Category) ([]model.Feature, error) {
	var features []model.Feature
	err := s.DB.WithContext(ctx).
		Where("category = ?", category).
		Order("id").
		Find(&features).Error
	if err != nil {
		return nil, fmt.Errorf("查询 %s 失败: %w", category, err)
	}
	return features, nil
}

// Count 实现 Store
func (s *GormStore) Count(ctx context.Context, category model.Category) (int64, error) {
	var n int64
	err := s.DB.WithContext(ctx).
		Model(&model.Feature{}).
		Where("category = ?", category).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("统计 %s 失败: %w", category, err)
	}
	return n, nil
}

// Upsert 实现 Store
func (s *GormStore) Upsert(ctx context.Context, f model.Feature) error {
	row := model.Feature{ID: f.ID, Category: f.Category, Name: f.Name, GeoJSON: f.GeoJSON}
	res := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "geometry"}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "cached_features.category = excluded.category"},
		}},
	}).Create(&row)
	if res.Error != nil {
		return fmt.Errorf("写入要素 %d 失败: %w", f.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("写入要素 %d (%s): %w", f.ID, f.Category, ErrCategoryConflict)
	}
	return nil
}

// Delete 实现 Store
func (s *GormStore) Delete(ctx context.Context, id int64) (bool, error) {
	res := s.DB.WithContext(ctx).Delete(&model.Feature{}, id)
	if res.Error != nil {
		return false, fmt.Errorf("删除要素 %d 失败: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// DeleteAll 实现 Store
func (s *GormStore) DeleteAll(ctx context.Context, category model.Category) (int64, error) {
	res := s.DB.WithContext(ctx).
		Where("category = ?", category).
		Delete(&model.Feature{})
	if res.Error != nil {
		return 0, fmt.Errorf("清空 %s 失败: %w", category, res.Error)
	}
	return res.RowsAffected, nil
}

// NextID 实现 Store
// 在事务内锁住水位线行, 取 max(水位线, 当前最大 ID) + 1
func (s *GormStore) NextID(ctx context.Context) (int64, error) {
	var next int64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxID int64
		if err := tx.Model(&model.Feature{}).
			Select("COALESCE(MAX(id), 0)").
			Scan(&maxID).Error; err != nil {
			return err
		}

		var wm model.IDWatermark
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("name = ?", watermarkName).
			First(&wm).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		next = max(wm.Value, maxID) + 1
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"value"}),
		}).Create(&model.IDWatermark{Name: watermarkName, Value: next}).Error
	})
	if err != nil {
		return 0, fmt.Errorf("分配要素 ID 失败: %w", err)
	}
	return next, nil
}

// ListDestinations 实现 Store
func (s *GormStore) ListDestinations(ctx context.Context) ([]model.Destination, error) {
	var out []model.Destination
	if err := s.DB.WithContext(ctx).Order("name").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("查询目的地失败: %w", err)
	}
	return out, nil
}

// GetDestination 实现 Store
func (s *GormStore) GetDestination(ctx context.Context, name string) (model.Destination, error) {
	var d model.Destination
	err := s.DB.WithContext(ctx).Where("name = ?", name).First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Destination{}, fmt.Errorf("%q: %w", name, ErrDestinationNotFound)
	}
	if err != nil {
		return model.Destination{}, fmt.Errorf("查询目的地 %q 失败: %w", name, err)
	}
	return d, nil
}

// SaveDestination 实现 Store
func (s *GormStore) SaveDestination(ctx context.Context, d model.Destination) (model.Destination, error) {
	row := model.Destination{Name: d.Name, Latitude: d.Latitude, Longitude: d.Longitude}
	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"latitude", "longitude"}),
	}).Create(&row).Error
	if err != nil {
		return model.Destination{}, fmt.Errorf("保存目的地 %q 失败: %w", d.Name, err)
	}
	// 更新已有记录时 RETURNING 的 ID 不可靠, 重新读一次
	return s.GetDestination(ctx, d.Name)
}

// DeleteDestination 实现 Store
func (s *GormStore) DeleteDestination(ctx context.Context, name string) (bool, error) {
	res := s.DB.WithContext(ctx).Where("name = ?", name).Delete(&model.Destination{})
	if res.Error != nil {
		return false, fmt.Errorf("删除目的地 %q 失败: %w", name, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Close 实现 Store
func (s *GormStore) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
