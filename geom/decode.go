// Package geom 负责把要素的原始几何表示解码为 orb 几何对象
//
// 支持的输入: orb.Geometry, GeoJSON (Geometry 或 Feature, 对象/字节/字符串,
// 包括被二次序列化成 JSON 字符串的形式) 以及 WKT 文本。
// 解码失败一律返回 *DecodeError, 调用方应跳过该要素而不是中止整个流程。
package geom

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
)

// DecodeError 几何数据格式错误
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return "几何解码失败: " + e.Reason
}

func decodeErrorf(format string, args ...any) error {
	return &DecodeError{Reason: fmt.Sprintf(format, args...)}
}

// IsDecodeError 判断是否为解码错误
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// Decode 将原始几何数据解码为 orb.Geometry
func Decode(raw any) (orb.Geometry, error) {
	switch v := raw.(type) {
	case nil:
		return nil, decodeErrorf("几何为空")
	case orb.Geometry:
		return checkGeometry(v)
	case *geojson.Geometry:
		if v == nil {
			return nil, decodeErrorf("几何为空")
		}
		return checkGeometry(v.Geometry())
	case geojson.Geometry:
		return checkGeometry(v.Geometry())
	case *geojson.Feature:
		if v == nil {
			return nil, decodeErrorf("几何为空")
		}
		return checkGeometry(v.Geometry)
	case string:
		return decodeText([]byte(v))
	case []byte:
		return decodeText(v)
	case json.RawMessage:
		return decodeText(v)
	case map[string]any:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, decodeErrorf("无法序列化几何对象: %v", err)
		}
		return decodeText(data)
	default:
		return nil, decodeErrorf("不支持的几何类型 %T", raw)
	}
}

// decodeText 解码序列化形式 (GeoJSON 或 WKT)
func decodeText(data []byte) (orb.Geometry, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, decodeErrorf("几何为空")
	}

	switch data[0] {
	case '"':
		// 数据库里有时存的是 JSON 字符串形式的 GeoJSON
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return nil, decodeErrorf("JSON 字符串格式错误: %v", err)
		}
		if strings.HasPrefix(strings.TrimSpace(inner), `"`) {
			return nil, decodeErrorf("几何被多次序列化")
		}
		return decodeText([]byte(inner))
	case '{':
		return decodeGeoJSON(data)
	default:
		g, err := wkt.Unmarshal(string(data))
		if err != nil {
			return nil, decodeErrorf("无法解析 WKT: %v", err)
		}
		return checkGeometry(g)
	}
}

func decodeGeoJSON(data []byte) (orb.Geometry, error) {
	if err := checkGeoJSON(data); err != nil {
		return nil, err
	}

	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, decodeErrorf("JSON 格式错误: %v", err)
	}
	if head.Type == "Feature" {
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, decodeErrorf("Feature 格式错误: %v", err)
		}
		return checkGeometry(f.Geometry)
	}

	g, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return nil, decodeErrorf("%s 格式错误: %v", head.Type, err)
	}
	return checkGeometry(g.Geometry())
}

// positionDepth 各几何类型 coordinates 的嵌套层数, 0 表示本身就是一个坐标
var positionDepth = map[string]int{
	"Point":           0,
	"MultiPoint":      1,
	"LineString":      1,
	"Polygon":         2,
	"MultiLineString": 2,
	"MultiPolygon":    3,
}

// checkGeoJSON 在交给 orb 之前检查坐标结构
// orb.Point 是 [2]float64, 标准库解码时缺失的数值会被补成 0, 所以必须先检查每个坐标的长度
func checkGeoJSON(data []byte) error {
	var head struct {
		Type        string            `json:"type"`
		Coordinates json.RawMessage   `json:"coordinates"`
		Geometries  []json.RawMessage `json:"geometries"`
		Geometry    json.RawMessage   `json:"geometry"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return decodeErrorf("JSON 格式错误: %v", err)
	}

	switch head.Type {
	case "":
		return decodeErrorf("缺少 type 字段")
	case "Feature":
		if isNullJSON(head.Geometry) {
			return decodeErrorf("几何为空")
		}
		return checkGeoJSON(head.Geometry)
	case "GeometryCollection":
		if len(head.Geometries) == 0 {
			return decodeErrorf("GeometryCollection 缺少 geometries")
		}
		for _, child := range head.Geometries {
			if err := checkGeoJSON(child); err != nil {
				return err
			}
		}
		return nil
	}

	depth, ok := positionDepth[head.Type]
	if !ok {
		return decodeErrorf("未知的几何类型 %q", head.Type)
	}
	if isNullJSON(head.Coordinates) {
		return decodeErrorf("%s 缺少 coordinates", head.Type)
	}
	var coords any
	if err := json.Unmarshal(head.Coordinates, &coords); err != nil {
		return decodeErrorf("%s coordinates 格式错误: %v", head.Type, err)
	}
	return checkPositions(coords, depth)
}

func checkPositions(v any, depth int) error {
	arr, ok := v.([]any)
	if !ok {
		return decodeErrorf("coordinates 结构错误: 期望数组, 实际为 %v", v)
	}
	if depth == 0 {
		if len(arr) != 2 && len(arr) != 3 {
			return decodeErrorf("坐标应包含 2 或 3 个数值, 实际为 %d 个", len(arr))
		}
		for _, n := range arr {
			if _, ok := n.(float64); !ok {
				return decodeErrorf("坐标包含非数值 %v", n)
			}
		}
		return nil
	}
	for _, child := range arr {
		if err := checkPositions(child, depth-1); err != nil {
			return err
		}
	}
	return nil
}

func isNullJSON(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || string(raw) == "null"
}

func checkGeometry(g orb.Geometry) (orb.Geometry, error) {
	if g == nil {
		return nil, decodeErrorf("几何为空")
	}
	if !finite(g) {
		return nil, decodeErrorf("坐标包含 NaN 或无穷大")
	}
	return g, nil
}

// finite 检查几何中所有坐标都是有限数值
func finite(g orb.Geometry) bool {
	switch g := g.(type) {
	case orb.Point:
		return !math.IsNaN(g[0]) && !math.IsNaN(g[1]) && !math.IsInf(g[0], 0) && !math.IsInf(g[1], 0)
	case orb.MultiPoint:
		return finitePoints(g)
	case orb.LineString:
		return finitePoints(g)
	case orb.Ring:
		return finitePoints(g)
	case orb.Polygon:
		for _, r := range g {
			if !finitePoints(r) {
				return false
			}
		}
	case orb.MultiLineString:
		for _, ls := range g {
			if !finitePoints(ls) {
				return false
			}
		}
	case orb.MultiPolygon:
		for _, p := range g {
			if !finite(p) {
				return false
			}
		}
	case orb.Collection:
		for _, c := range g {
			if !finite(c) {
				return false
			}
		}
	case orb.Bound:
		return finite(g.Min) && finite(g.Max)
	}
	return true
}

func finitePoints(ps []orb.Point) bool {
	for _, p := range ps {
		if !finite(p) {
			return false
		}
	}
	return true
}

// LineCoords 从几何中取出 LineString 坐标序列
// 只有至少包含 2 个坐标的 LineString 才能参与构图
func LineCoords(g orb.Geometry) (orb.LineString, error) {
	ls, ok := g.(orb.LineString)
	if !ok {
		if g == nil {
			return nil, decodeErrorf("几何为空")
		}
		return nil, decodeErrorf("几何类型为 %s, 不是 LineString", g.GeoJSONType())
	}
	if len(ls) < 2 {
		return nil, decodeErrorf("LineString 至少需要 2 个坐标, 实际为 %d 个", len(ls))
	}
	return ls, nil
}

// Encode 将几何序列化为规范的 GeoJSON 文本 (落库格式)
func Encode(g orb.Geometry) (string, error) {
	if g == nil {
		return "", decodeErrorf("几何为空")
	}
	data, err := geojson.NewGeometry(g).MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("序列化几何失败: %w", err)
	}
	return string(data), nil
}
