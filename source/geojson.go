package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"navigator-system/geom"
	"navigator-system/model"
)

// GeoJSONFile 从本地 GeoJSON FeatureCollection 文件读取要素 (离线/初始数据)
// 要素 ID 取自 id 字段或 properties.osm_id
type GeoJSONFile struct {
	Path string
}

// NewGeoJSONFile 创建文件数据源
func NewGeoJSONFile(path string) *GeoJSONFile {
	return &GeoJSONFile{Path: path}
}

// Name 实现 Source
func (s *GeoJSONFile) Name() string { return "geojson:" + s.Path }

// rawFeatureCollection 使用临时结构体解析, 几何保留原始字节交给解码器
type rawFeatureCollection struct {
	Type     string `json:"type"`
	Features []struct {
		ID         json.RawMessage `json:"id"`
		Properties map[string]any  `json:"properties"`
		Geometry   json.RawMessage `json:"geometry"`
	} `json:"features"`
}

// Fetch 实现 Source
// 能解码的几何按 bbox 过滤; 无法解码的几何原样返回, 由上层记录并跳过
func (s *GeoJSONFile) Fetch(ctx context.Context, bbox model.BoundingBox, limit int) ([]RawFeature, error) {
	file, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("读取文件失败: %w", err)
	}

	var data rawFeatureCollection
	if err := json.Unmarshal(file, &data); err != nil {
		return nil, fmt.Errorf("解析 JSON 失败: %w", err)
	}
	if data.Type != "FeatureCollection" {
		return nil, fmt.Errorf("%s 不是 FeatureCollection (type=%q)", s.Path, data.Type)
	}

	var out []RawFeature
	for _, f := range data.Features {
		if limit > 0 && len(out) >= limit {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		id, ok := featureID(f.ID, f.Properties)
		if !ok {
			slog.Warn("跳过没有 ID 的要素", slog.String("source", s.Name()))
			continue
		}

		if !bbox.IsZero() {
			if g, err := geom.Decode([]byte(f.Geometry)); err == nil && !g.Bound().Intersects(bbox.Bound()) {
				continue
			}
		}

		name, _ := f.Properties["name"].(string)
		out = append(out, RawFeature{ID: id, Name: name, Geometry: []byte(f.Geometry)})
	}
	return out, nil
}

// featureID 解析要素 ID: 数字或数字字符串
func featureID(raw json.RawMessage, props map[string]any) (int64, bool) {
	if len(raw) > 0 && string(raw) != "null" {
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			if id, err := n.Int64(); err == nil {
				return id, true
			}
		}
		var str string
		if err := json.Unmarshal(raw, &str); err == nil {
			if id, err := strconv.ParseInt(str, 10, 64); err == nil {
				return id, true
			}
		}
	}

	switch v := props["osm_id"].(type) {
	case float64:
		return int64(v), true
	case string:
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			return id, true
		}
	}
	return 0, false
}
