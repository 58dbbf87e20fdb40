package source

import (
	"context"
	"database/sql"
	"fmt"

	"navigator-system/model"

	_ "github.com/lib/pq"
)

// osm2pgsql slim 表里的道路: 由节点序列拼出折线 (坐标按 1e7 存储)
const roadsQuery = `
SELECT w.id, COALESCE(w.tags::jsonb->>'name', ''), ST_AsGeoJSON(line.geom)
FROM planet_osm_ways w
CROSS JOIN LATERAL (
    SELECT ST_MakeLine(ARRAY(
        SELECT ST_SetSRID(ST_MakePoint(n.lon / 1e7, n.lat / 1e7), 4326)
        FROM unnest(w.nodes) WITH ORDINALITY AS u(node_id, ord)
        JOIN planet_osm_nodes n ON n.id = u.node_id
        ORDER BY u.ord
    )) AS geom
) line
WHERE w.tags::jsonb ? 'highway'
  AND ST_Intersects(line.geom, ST_MakeEnvelope($1, $2, $3, $4, 4326))
LIMIT $5`

const buildingsQuery = `
SELECT osm_id, COALESCE(name, ''), ST_AsGeoJSON(ST_Transform(way, 4326))
FROM planet_osm_polygon
WHERE building IS NOT NULL
  AND ST_Intersects(ST_Transform(way, 4326), ST_MakeEnvelope($1, $2, $3, $4, 4326))
LIMIT $5`

// PostGIS 从 osm2pgsql 导入的 PostGIS 库中抓取几何
type PostGIS struct {
	db *sql.DB
}

// OpenPostGIS 通过 lib/pq 连接上游库
func OpenPostGIS(dsn string) (*PostGIS, error) {
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开上游数据库失败: %w", err)
	}
	return NewPostGIS(sqlDB), nil
}

// NewPostGIS 使用已有连接
func NewPostGIS(sqlDB *sql.DB) *PostGIS {
	return &PostGIS{db: sqlDB}
}

// Source 返回某个分类的数据源
func (p *PostGIS) Source(category model.Category) (Source, error) {
	switch category {
	case model.CategoryRoads:
		return &postgisQuery{db: p.db, name: "postgis:roads", query: roadsQuery}, nil
	case model.CategoryBuildings:
		return &postgisQuery{db: p.db, name: "postgis:buildings", query: buildingsQuery}, nil
	default:
		return nil, fmt.Errorf("postgis %s: %w", category, ErrUnsupportedCategory)
	}
}

// Close 关闭连接
func (p *PostGIS) Close() error {
	return p.db.Close()
}

type postgisQuery struct {
	db    *sql.DB
	name  string
	query string
}

func (q *postgisQuery) Name() string { return q.name }

func (q *postgisQuery) Fetch(ctx context.Context, bbox model.BoundingBox, limit int) ([]RawFeature, error) {
	rows, err := q.db.QueryContext(ctx, q.query,
		bbox.MinLon, bbox.MinLat, bbox.MaxLon, bbox.MaxLat, limit)
	if err != nil {
		return nil, fmt.Errorf("执行查询失败: %w", err)
	}
	defer rows.Close()

	var out []RawFeature
	for rows.Next() {
		var (
			f    RawFeature
			geom sql.NullString
		)
		if err := rows.Scan(&f.ID, &f.Name, &geom); err != nil {
			return nil, fmt.Errorf("读取结果失败: %w", err)
		}
		// 几何为空的行也交给解码器, 由解码器记录并跳过
		f.Geometry = geom.String
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("读取结果失败: %w", err)
	}
	return out, nil
}
