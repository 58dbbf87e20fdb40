package db

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"navigator-system/model"

	_ "modernc.org/sqlite"
)

//go:embed schema/sqlite.sql
var sqliteSchema string

// SQLiteStore 基于 SQLite 的要素缓存
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite 打开 SQLite 数据库并建表
// path 可以是文件路径, 也可以是 ":memory:"
func OpenSQLite(path string) (*SQLiteStore, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("打开 SQLite 失败: %w", err)
	}
	// 单连接: 写操作天然串行, 内存库也不会因为换连接而丢数据
	sqlDB.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("开启 WAL 失败: %w", err)
		}
	}
	if _, err := sqlDB.Exec(sqliteSchema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("SQLite 建表失败: %w", err)
	}

	return &SQLiteStore{db: sqlDB}, nil
}

// GetAll 实现 Store
func (s *SQLiteStore) GetAll(ctx context.Context, category model.Category) ([]model.Feature, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, category, name, geometry FROM cached_features WHERE category = ? ORDER BY id`,
		string(category))
	if err != nil {
		return nil, fmt.Errorf("查询 %s 失败: %w", category, err)
	}
	defer rows.Close()

	features := []model.Feature{}
	for rows.Next() {
		var (
			f   model.Feature
			cat string
		)
		if err := rows.Scan(&f.ID, &cat, &f.Name, &f.GeoJSON); err != nil {
			return nil, fmt.Errorf("读取 %s 失败: %w", category, err)
		}
		f.Category = model.Category(cat)
		features = append(features, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("读取 %s 失败: %w", category, err)
	}
	return features, nil
}

// Count 实现 Store
func (s *SQLiteStore) Count(ctx context.Context, category model.Category) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cached_features WHERE category = ?`, string(category)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("统计 %s 失败: %w", category, err)
	}
	return n, nil
}

// Upsert 实现 Store
func (s *SQLiteStore) Upsert(ctx context.Context, f model.Feature) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO cached_features (id, category, name, geometry) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name     = excluded.name,
			geometry = excluded.geometry
		WHERE cached_features.category = excluded.category`,
		f.ID, string(f.Category), f.Name, f.GeoJSON)
	if err != nil {
		return fmt.Errorf("写入要素 %d 失败: %w", f.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("写入要素 %d 失败: %w", f.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("写入要素 %d (%s): %w", f.ID, f.Category, ErrCategoryConflict)
	}
	return nil
}

// Delete 实现 Store
func (s *SQLiteStore) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cached_features WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("删除要素 %d 失败: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteAll 实现 Store
func (s *SQLiteStore) DeleteAll(ctx context.Context, category model.Category) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cached_features WHERE category = ?`, string(category))
	if err != nil {
		return 0, fmt.Errorf("清空 %s 失败: %w", category, err)
	}
	return res.RowsAffected()
}

// NextID 实现 Store
func (s *SQLiteStore) NextID(ctx context.Context) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("分配要素 ID 失败: %w", err)
	}
	defer tx.Rollback()

	var maxID int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(id), 0) FROM cached_features`).Scan(&maxID); err != nil {
		return 0, fmt.Errorf("分配要素 ID 失败: %w", err)
	}

	var mark int64
	err = tx.QueryRowContext(ctx,
		`SELECT value FROM id_watermarks WHERE name = ?`, watermarkName).Scan(&mark)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("分配要素 ID 失败: %w", err)
	}

	next := max(mark, maxID) + 1
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO id_watermarks (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value`,
		watermarkName, next); err != nil {
		return 0, fmt.Errorf("分配要素 ID 失败: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("分配要素 ID 失败: %w", err)
	}
	return next, nil
}

// ListDestinations 实现 Store
func (s *SQLiteStore) ListDestinations(ctx context.Context) ([]model.Destination, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, latitude, longitude FROM destinations ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("查询目的地失败: %w", err)
	}
	defer rows.Close()

	out := []model.Destination{}
	for rows.Next() {
		var d model.Destination
		if err := rows.Scan(&d.ID, &d.Name, &d.Latitude, &d.Longitude); err != nil {
			return nil, fmt.Errorf("读取目的地失败: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("读取目的地失败: %w", err)
	}
	return out, nil
}

// GetDestination 实现 Store
func (s *SQLiteStore) GetDestination(ctx context.Context, name string) (model.Destination, error) {
	var d model.Destination
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, latitude, longitude FROM destinations WHERE name = ?`, name).
		Scan(&d.ID, &d.Name, &d.Latitude, &d.Longitude)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Destination{}, fmt.Errorf("%q: %w", name, ErrDestinationNotFound)
	}
	if err != nil {
		return model.Destination{}, fmt.Errorf("查询目的地 %q 失败: %w", name, err)
	}
	return d, nil
}

// SaveDestination 实现 Store
func (s *SQLiteStore) SaveDestination(ctx context.Context, d model.Destination) (model.Destination, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO destinations (name, latitude, longitude) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			latitude  = excluded.latitude,
			longitude = excluded.longitude`,
		d.Name, d.Latitude, d.Longitude)
	if err != nil {
		return model.Destination{}, fmt.Errorf("保存目的地 %q 失败: %w", d.Name, err)
	}
	return s.GetDestination(ctx, d.Name)
}

// DeleteDestination 实现 Store
func (s *SQLiteStore) DeleteDestination(ctx context.Context, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM destinations WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("删除目的地 %q 失败: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Close 实现 Store
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
