package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"navigator-system/db"
	"navigator-system/geom"
	"navigator-system/model"
	"navigator-system/source"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	calls atomic.Int32
	raws  []source.RawFeature
	err   error
	gate  chan struct{}
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Fetch(ctx context.Context, bbox model.BoundingBox, limit int) ([]source.RawFeature, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.raws, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newNavigator(t *testing.T, sources source.Registry, cfg Config) (*Navigator, db.Store) {
	t.Helper()
	store, err := db.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	if cfg.Graph == (GraphOptions{}) {
		cfg.Graph.SnapPrecision = geom.NoSnap
	}
	return New(store, sources, cfg, quietLogger()), store
}

var roadsPolicy = map[model.Category]PopulatePolicy{
	model.CategoryRoads: {Limit: 100, Threshold: 1},
}

func TestEmptyStore(t *testing.T) {
	nav, _ := newNavigator(t, nil, Config{})
	ctx := context.Background()

	for _, c := range model.AllCategories {
		got, err := nav.ListFeatures(ctx, c, model.BoundingBox{})
		require.NoError(t, err)
		assert.Empty(t, got)
	}

	res, err := nav.Route(ctx, orb.Point{0, 0}, orb.Point{1, 1})
	require.NoError(t, err)
	assert.Equal(t, model.RouteNoGraphData, res.Status)
	assert.False(t, res.Found())
}

func TestRouteAlongUserPath(t *testing.T) {
	nav, _ := newNavigator(t, nil, Config{})
	ctx := context.Background()

	_, err := nav.AddPath(ctx, []orb.Point{{0, 0}, {1, 0}, {1, 1}}, "L")
	require.NoError(t, err)

	res, err := nav.Route(ctx, orb.Point{0, 0}, orb.Point{1, 1})
	require.NoError(t, err)
	require.True(t, res.Found())
	assert.Equal(t, []orb.Point{{0, 0}, {1, 0}, {1, 1}}, res.Path)
	assert.InDelta(t, 2.0, res.Weight, 1e-12)
	assert.Greater(t, res.Meters, 0.0)

	// 任意坐标先吸附到最近节点
	res, err = nav.Route(ctx, orb.Point{-0.2, 0.1}, orb.Point{1.3, 1.2})
	require.NoError(t, err)
	require.True(t, res.Found())
	assert.Equal(t, orb.Point{0, 0}, *res.Start)
	assert.Equal(t, orb.Point{1, 1}, *res.End)

	// 起终点吸附到同一个节点
	res, err = nav.Route(ctx, orb.Point{1, 0.1}, orb.Point{1, -0.1})
	require.NoError(t, err)
	assert.Equal(t, []orb.Point{{1, 0}}, res.Path)
}

func TestRouteNoPathBetweenTriangles(t *testing.T) {
	nav, _ := newNavigator(t, nil, Config{})
	ctx := context.Background()

	_, err := nav.AddPath(ctx, []orb.Point{{0, 0}, {1, 0}, {0, 1}, {0, 0}}, "")
	require.NoError(t, err)
	_, err = nav.AddPath(ctx, []orb.Point{{5, 5}, {6, 5}, {5, 6}, {5, 5}}, "")
	require.NoError(t, err)

	res, err := nav.Route(ctx, orb.Point{0, 0}, orb.Point{6, 5})
	require.NoError(t, err)
	assert.Equal(t, model.RouteNoPath, res.Status)
	assert.Empty(t, res.Path)
}

func TestRoutePointUnreachable(t *testing.T) {
	nav, _ := newNavigator(t, nil, Config{Graph: GraphOptions{SnapPrecision: geom.NoSnap, MaxSnapDistance: 0.5}})
	ctx := context.Background()

	_, err := nav.AddPath(ctx, []orb.Point{{0, 0}, {1, 0}}, "")
	require.NoError(t, err)

	res, err := nav.Route(ctx, orb.Point{0, 0}, orb.Point{10, 10})
	require.NoError(t, err)
	assert.Equal(t, model.RoutePointUnreachable, res.Status)

	res, err = nav.Route(ctx, orb.Point{0.1, 0}, orb.Point{1, 0.2})
	require.NoError(t, err)
	assert.Equal(t, model.RouteFound, res.Status)
}

func TestRouteWithSpatialIndex(t *testing.T) {
	nav, _ := newNavigator(t, nil, Config{Graph: GraphOptions{SnapPrecision: geom.NoSnap, SpatialIndex: true}})
	ctx := context.Background()

	_, err := nav.AddPath(ctx, []orb.Point{{0, 0}, {1, 0}, {1, 1}}, "")
	require.NoError(t, err)

	res, err := nav.Route(ctx, orb.Point{0.1, -0.1}, orb.Point{0.9, 1.1})
	require.NoError(t, err)
	assert.Equal(t, []orb.Point{{0, 0}, {1, 0}, {1, 1}}, res.Path)
}

func TestAddPathValidation(t *testing.T) {
	nav, store := newNavigator(t, nil, Config{})
	ctx := context.Background()

	for _, coords := range [][]orb.Point{nil, {{1, 1}}} {
		_, err := nav.AddPath(ctx, coords, "x")
		var ve *ValidationError
		assert.True(t, errors.As(err, &ve))
	}

	n, err := store.Count(ctx, model.CategoryPaths)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAddPathIDsAreMonotonic(t *testing.T) {
	nav, store := newNavigator(t, nil, Config{})
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, model.Feature{ID: 1372660163, Category: model.CategoryRoads,
		GeoJSON: `{"type":"LineString","coordinates":[[0,0],[1,0]]}`}))

	first, err := nav.AddPath(ctx, []orb.Point{{0, 0}, {1, 1}}, "")
	require.NoError(t, err)
	assert.Greater(t, first, int64(1372660163))

	removed, err := nav.RemovePath(ctx, &first)
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	second, err := nav.AddPath(ctx, []orb.Point{{0, 0}, {1, 1}}, "")
	require.NoError(t, err)
	assert.Greater(t, second, first)

	paths, err := nav.ListFeatures(ctx, model.CategoryPaths, model.BoundingBox{})
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, "Unnamed Path", paths[0].Name)
}

func TestRemovePath(t *testing.T) {
	nav, store := newNavigator(t, nil, Config{})
	ctx := context.Background()

	id, err := nav.AddPath(ctx, []orb.Point{{0, 0}, {1, 1}}, "")
	require.NoError(t, err)

	n, err := nav.RemovePath(ctx, &id)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = nav.RemovePath(ctx, &id)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	require.NoError(t, store.Upsert(ctx, model.Feature{ID: 1, Category: model.CategoryRoads,
		GeoJSON: `{"type":"LineString","coordinates":[[0,0],[1,0]]}`}))
	for i := 0; i < 3; i++ {
		_, err := nav.AddPath(ctx, []orb.Point{{0, 0}, {float64(i), 1}}, "")
		require.NoError(t, err)
	}

	n, err = nav.RemovePath(ctx, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	roads, err := store.Count(ctx, model.CategoryRoads)
	require.NoError(t, err)
	assert.EqualValues(t, 1, roads)
}

func TestRouteReflectsMutations(t *testing.T) {
	nav, _ := newNavigator(t, nil, Config{})
	ctx := context.Background()

	id, err := nav.AddPath(ctx, []orb.Point{{0, 0}, {1, 0}}, "")
	require.NoError(t, err)
	res, err := nav.Route(ctx, orb.Point{0, 0}, orb.Point{1, 0})
	require.NoError(t, err)
	require.True(t, res.Found())

	_, err = nav.RemovePath(ctx, &id)
	require.NoError(t, err)
	res, err = nav.Route(ctx, orb.Point{0, 0}, orb.Point{1, 0})
	require.NoError(t, err)
	assert.Equal(t, model.RouteNoGraphData, res.Status)
}

func TestPopulateSkipsMalformedAndCaches(t *testing.T) {
	src := &fakeSource{raws: []source.RawFeature{
		{ID: 10, Name: "A", Geometry: `{"type":"LineString","coordinates":[[0,0],[1,0]]}`},
		{ID: 11, Geometry: `{"type":"LineString"`},
		{ID: 12, Geometry: []byte(`{"type":"LineString","coordinates":[[1,0],[1,1]]}`)},
	}}
	nav, store := newNavigator(t, source.Registry{model.CategoryRoads: src}, Config{Populate: roadsPolicy})
	ctx := context.Background()

	stats, err := nav.Populate(ctx, model.CategoryRoads)
	require.NoError(t, err)
	assert.False(t, stats.FromCache)
	assert.Equal(t, 3, stats.Fetched)
	assert.Equal(t, 2, stats.Upserted)
	assert.Equal(t, 1, stats.Skipped)

	roads, err := store.GetAll(ctx, model.CategoryRoads)
	require.NoError(t, err)
	require.Len(t, roads, 2)
	assert.EqualValues(t, 10, roads[0].ID)
	assert.EqualValues(t, 12, roads[1].ID)

	stats, err = nav.Populate(ctx, model.CategoryRoads)
	require.NoError(t, err)
	assert.True(t, stats.FromCache)
	assert.EqualValues(t, 2, stats.Cached)
	assert.EqualValues(t, 1, src.calls.Load())

	// 清空后重新抓取
	_, err = nav.ClearCategory(ctx, model.CategoryRoads)
	require.NoError(t, err)
	_, err = nav.Populate(ctx, model.CategoryRoads)
	require.NoError(t, err)
	assert.EqualValues(t, 2, src.calls.Load())
}

func TestPopulateUpstreamFailure(t *testing.T) {
	src := &fakeSource{err: errors.New("connection refused")}
	nav, store := newNavigator(t, source.Registry{model.CategoryRoads: src}, Config{Populate: roadsPolicy, AutoPopulate: true})
	ctx := context.Background()

	_, err := nav.Populate(ctx, model.CategoryRoads)
	require.Error(t, err)
	assert.True(t, source.IsUpstreamFetchError(err))

	n, err := store.Count(ctx, model.CategoryRoads)
	require.NoError(t, err)
	assert.Zero(t, n)

	// 路径规划把上游失败作为系统错误返回, 而不是 "没有数据"
	_, err = nav.Route(ctx, orb.Point{0, 0}, orb.Point{1, 1})
	assert.True(t, source.IsUpstreamFetchError(err))
}

func TestPopulateWithoutSourceOrPolicy(t *testing.T) {
	nav, _ := newNavigator(t, nil, Config{Populate: roadsPolicy})
	stats, err := nav.Populate(context.Background(), model.CategoryRoads)
	require.NoError(t, err)
	assert.True(t, stats.FromCache)

	stats, err = nav.Populate(context.Background(), model.CategoryPaths)
	require.NoError(t, err)
	assert.True(t, stats.FromCache)
}

func TestConcurrentPopulateFetchesOnce(t *testing.T) {
	src := &fakeSource{
		gate: make(chan struct{}),
		raws: []source.RawFeature{{ID: 1, Geometry: `{"type":"LineString","coordinates":[[0,0],[1,0]]}`}},
	}
	nav, _ := newNavigator(t, source.Registry{model.CategoryRoads: src}, Config{Populate: roadsPolicy})

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := nav.Populate(context.Background(), model.CategoryRoads)
			errs <- err
		}()
	}
	close(src.gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, src.calls.Load())
}

func TestPopulateSurvivesFirstCallerCancel(t *testing.T) {
	src := &fakeSource{
		gate: make(chan struct{}),
		raws: []source.RawFeature{{ID: 1, Geometry: `{"type":"LineString","coordinates":[[0,0],[1,0]]}`}},
	}
	nav, store := newNavigator(t, source.Registry{model.CategoryRoads: src}, Config{Populate: roadsPolicy})

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := nav.Populate(firstCtx, model.CategoryRoads)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, time.Millisecond)

	secondErr := make(chan error, 1)
	go func() {
		_, err := nav.Populate(context.Background(), model.CategoryRoads)
		secondErr <- err
	}()

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(src.gate)
	require.NoError(t, <-secondErr)
	assert.EqualValues(t, 1, src.calls.Load())

	n, err := store.Count(context.Background(), model.CategoryRoads)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestPopulateKeepsUserPathOnIDClash(t *testing.T) {
	src := &fakeSource{}
	nav, store := newNavigator(t, source.Registry{model.CategoryRoads: src}, Config{Populate: roadsPolicy})
	ctx := context.Background()

	id, err := nav.AddPath(ctx, []orb.Point{{0, 0}, {1, 1}}, "mine")
	require.NoError(t, err)

	src.raws = []source.RawFeature{
		{ID: id, Name: "clash", Geometry: `{"type":"LineString","coordinates":[[5,5],[6,6]]}`},
		{ID: id + 1, Name: "road", Geometry: `{"type":"LineString","coordinates":[[1,1],[2,2]]}`},
	}
	stats, err := nav.Populate(ctx, model.CategoryRoads)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Upserted)
	assert.Equal(t, 1, stats.Skipped)

	paths, err := store.GetAll(ctx, model.CategoryPaths)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, "mine", paths[0].Name)

	roads, err := store.GetAll(ctx, model.CategoryRoads)
	require.NoError(t, err)
	require.Len(t, roads, 1)
	assert.Equal(t, "road", roads[0].Name)
}

func TestPopulateSkipsShortCoordinates(t *testing.T) {
	src := &fakeSource{raws: []source.RawFeature{
		{ID: 1, Geometry: `{"type":"LineString","coordinates":[[1],[2,3]]}`},
		{ID: 2, Geometry: "LINESTRING(NaN 0, 1 1)"},
	}}
	nav, store := newNavigator(t, source.Registry{model.CategoryRoads: src}, Config{Populate: roadsPolicy})

	stats, err := nav.Populate(context.Background(), model.CategoryRoads)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Skipped)
	assert.Zero(t, stats.Upserted)

	n, err := store.Count(context.Background(), model.CategoryRoads)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPopulateLogsEncodeFailure(t *testing.T) {
	src := &fakeSource{raws: []source.RawFeature{
		{ID: 1, Geometry: `{"type":"LineString","coordinates":[[0,0],[1,0]]}`},
		{ID: 2, Geometry: `{"type":"LineString","coordinates":[[1,0],[1,1]]}`},
	}}
	store, err := db.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelWarn}))
	nav := New(store, source.Registry{model.CategoryRoads: src},
		Config{Populate: roadsPolicy, Graph: GraphOptions{SnapPrecision: geom.NoSnap}}, logger)

	orig := encodeGeometry
	t.Cleanup(func() { encodeGeometry = orig })
	encodeGeometry = func(g orb.Geometry) (string, error) {
		if ls, ok := g.(orb.LineString); ok && ls[0] == (orb.Point{1, 0}) {
			return "", errors.New("encoder exploded")
		}
		return orig(g)
	}

	stats, err := nav.Populate(context.Background(), model.CategoryRoads)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Upserted)
	assert.Equal(t, 1, stats.Skipped)
	assert.Contains(t, logs.String(), "level=WARN")
	assert.Contains(t, logs.String(), "feature_id=2")
	assert.Contains(t, logs.String(), "encoder exploded")
}

func TestAutoPopulateBeforeRouting(t *testing.T) {
	src := &fakeSource{raws: []source.RawFeature{
		{ID: 1, Geometry: `{"type":"LineString","coordinates":[[39.275,-6.81],[39.276,-6.809],[39.277,-6.808]]}`},
	}}
	nav, _ := newNavigator(t, source.Registry{model.CategoryRoads: src}, Config{Populate: roadsPolicy, AutoPopulate: true})

	res, err := nav.Route(context.Background(), orb.Point{39.275, -6.81}, orb.Point{39.277, -6.808})
	require.NoError(t, err)
	require.True(t, res.Found())
	assert.Len(t, res.Path, 3)
	assert.EqualValues(t, 1, src.calls.Load())
}

func TestListFeaturesBoundingBox(t *testing.T) {
	nav, store := newNavigator(t, nil, Config{})
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, model.Feature{ID: 1, Category: model.CategoryBuildings,
		GeoJSON: `{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}`}))
	require.NoError(t, store.Upsert(ctx, model.Feature{ID: 2, Category: model.CategoryBuildings,
		GeoJSON: `{"type":"Polygon","coordinates":[[[10,10],[11,10],[11,11],[10,10]]]}`}))
	require.NoError(t, store.Upsert(ctx, model.Feature{ID: 3, Category: model.CategoryBuildings,
		GeoJSON: `broken`}))

	all, err := nav.ListFeatures(ctx, model.CategoryBuildings, model.BoundingBox{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	some, err := nav.ListFeatures(ctx, model.CategoryBuildings, model.BoundingBox{MinLon: -1, MinLat: -1, MaxLon: 2, MaxLat: 2})
	require.NoError(t, err)
	require.Len(t, some, 1)
	assert.EqualValues(t, 1, some[0].ID)
	assert.NotNil(t, some[0].Geometry)
	assert.Equal(t, "Unnamed Block", some[0].DisplayName())
}
