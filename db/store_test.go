package db

import (
	"context"
	"os"
	"testing"

	"navigator-system/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	lineAB = `{"type":"LineString","coordinates":[[0,0],[1,0]]}`
	lineBC = `{"type":"LineString","coordinates":[[1,0],[1,1]]}`
)

func newSQLiteStore(t *testing.T) Store {
	t.Helper()
	s, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore(t *testing.T) {
	runStoreContract(t, newSQLiteStore)
}

func TestGormStore(t *testing.T) {
	dsn := os.Getenv("NAV_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("NAV_TEST_POSTGRES_DSN 未设置, 跳过 PostgreSQL 测试")
	}

	runStoreContract(t, func(t *testing.T) Store {
		gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
		require.NoError(t, err)
		s, err := NewGormStore(gdb)
		require.NoError(t, err)
		require.NoError(t, gdb.Exec("TRUNCATE cached_features, id_watermarks, destinations").Error)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func runStoreContract(t *testing.T, open func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("empty store", func(t *testing.T) {
		s := open(t)
		for _, c := range model.AllCategories {
			got, err := s.GetAll(ctx, c)
			require.NoError(t, err)
			assert.Empty(t, got)

			n, err := s.Count(ctx, c)
			require.NoError(t, err)
			assert.Zero(t, n)
		}
	})

	t.Run("upsert is idempotent", func(t *testing.T) {
		s := open(t)
		f := model.Feature{ID: 7, Category: model.CategoryRoads, Name: "Main", GeoJSON: lineAB}

		require.NoError(t, s.Upsert(ctx, f))
		first, err := s.GetAll(ctx, model.CategoryRoads)
		require.NoError(t, err)

		require.NoError(t, s.Upsert(ctx, f))
		second, err := s.GetAll(ctx, model.CategoryRoads)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		require.Len(t, second, 1)
		assert.Equal(t, "Main", second[0].Name)
		assert.JSONEq(t, lineAB, second[0].GeoJSON)
	})

	t.Run("upsert replaces by id", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Upsert(ctx, model.Feature{ID: 1, Category: model.CategoryRoads, Name: "old", GeoJSON: lineAB}))
		require.NoError(t, s.Upsert(ctx, model.Feature{ID: 1, Category: model.CategoryRoads, Name: "new", GeoJSON: lineBC}))

		got, err := s.GetAll(ctx, model.CategoryRoads)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "new", got[0].Name)
		assert.JSONEq(t, lineBC, got[0].GeoJSON)
	})

	t.Run("categories are separate", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Upsert(ctx, model.Feature{ID: 1, Category: model.CategoryRoads, GeoJSON: lineAB}))
		require.NoError(t, s.Upsert(ctx, model.Feature{ID: 2, Category: model.CategoryPaths, GeoJSON: lineBC}))
		require.NoError(t, s.Upsert(ctx, model.Feature{ID: 3, Category: model.CategoryPaths, GeoJSON: lineAB}))

		n, err := s.Count(ctx, model.CategoryPaths)
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)

		deleted, err := s.DeleteAll(ctx, model.CategoryPaths)
		require.NoError(t, err)
		assert.EqualValues(t, 2, deleted)

		roads, err := s.GetAll(ctx, model.CategoryRoads)
		require.NoError(t, err)
		assert.Len(t, roads, 1)
	})

	t.Run("upsert never moves a feature to another category", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Upsert(ctx, model.Feature{ID: 1, Category: model.CategoryPaths, Name: "mine", GeoJSON: lineAB}))

		err := s.Upsert(ctx, model.Feature{ID: 1, Category: model.CategoryRoads, Name: "upstream", GeoJSON: lineBC})
		require.ErrorIs(t, err, ErrCategoryConflict)

		paths, err := s.GetAll(ctx, model.CategoryPaths)
		require.NoError(t, err)
		require.Len(t, paths, 1)
		assert.Equal(t, "mine", paths[0].Name)
		assert.JSONEq(t, lineAB, paths[0].GeoJSON)

		n, err := s.Count(ctx, model.CategoryRoads)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("delete reports whether anything was removed", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Upsert(ctx, model.Feature{ID: 5, Category: model.CategoryPaths, GeoJSON: lineAB}))

		ok, err := s.Delete(ctx, 5)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.Delete(ctx, 5)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("destinations", func(t *testing.T) {
		s := open(t)

		list, err := s.ListDestinations(ctx)
		require.NoError(t, err)
		assert.Empty(t, list)

		_, err = s.GetDestination(ctx, "Library")
		require.ErrorIs(t, err, ErrDestinationNotFound)

		lib, err := s.SaveDestination(ctx, model.Destination{Name: "Library", Latitude: -6.81, Longitude: 39.27})
		require.NoError(t, err)
		assert.Positive(t, lib.ID)
		_, err = s.SaveDestination(ctx, model.Destination{Name: "Cafeteria", Latitude: -6.80, Longitude: 39.28})
		require.NoError(t, err)

		// 同名再次保存只更新坐标
		moved, err := s.SaveDestination(ctx, model.Destination{Name: "Library", Latitude: -6.82, Longitude: 39.26})
		require.NoError(t, err)
		assert.Equal(t, lib.ID, moved.ID)
		assert.Equal(t, -6.82, moved.Latitude)

		list, err = s.ListDestinations(ctx)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "Cafeteria", list[0].Name)
		assert.Equal(t, "Library", list[1].Name)

		ok, err := s.DeleteDestination(ctx, "Library")
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = s.DeleteDestination(ctx, "Library")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("next id is never reused", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Upsert(ctx, model.Feature{ID: 100, Category: model.CategoryRoads, GeoJSON: lineAB}))

		id1, err := s.NextID(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 101, id1)
		require.NoError(t, s.Upsert(ctx, model.Feature{ID: id1, Category: model.CategoryPaths, GeoJSON: lineAB}))

		_, err = s.Delete(ctx, id1)
		require.NoError(t, err)

		id2, err := s.NextID(ctx)
		require.NoError(t, err)
		assert.Greater(t, id2, id1)

		// 上游写入更大的 ID 后继续递增
		require.NoError(t, s.Upsert(ctx, model.Feature{ID: 500, Category: model.CategoryRoads, GeoJSON: lineAB}))
		id3, err := s.NextID(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 501, id3)
	})
}
