package model

import (
	"fmt"

	"github.com/paulmach/orb"
)

// Category 要素分类 (对应缓存中的一类几何数据)
type Category string

const (
	CategoryRoads     Category = "roads"     // 上游抓取的道路 (LineString)
	CategoryBuildings Category = "buildings" // 上游抓取的建筑轮廓 (Polygon), 只展示不参与路径规划
	CategoryPaths     Category = "paths"     // 用户手绘的路径 (LineString)
)

// RoutableCategories 参与构图的分类
var RoutableCategories = []Category{CategoryRoads, CategoryPaths}

// AllCategories 所有已知分类
var AllCategories = []Category{CategoryRoads, CategoryBuildings, CategoryPaths}

// ParseCategory 将字符串解析为分类
func ParseCategory(s string) (Category, error) {
	for _, c := range AllCategories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("未知的要素分类: %q", s)
}

// DefaultName 名称为空时用于展示的默认名称
func (c Category) DefaultName() string {
	switch c {
	case CategoryRoads:
		return "Unnamed Road"
	case CategoryBuildings:
		return "Unnamed Block"
	default:
		return "Unnamed Path"
	}
}

// Feature 对应缓存表中的一条几何要素
// GeoJSON 字段保存几何的规范化序列化形式, Geometry 是解码后的结果 (不落库)
type Feature struct {
	ID       int64    `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Category Category `json:"category" gorm:"size:32;index;not null"`
	Name     string   `json:"name"`
	GeoJSON  string   `json:"-" gorm:"column:geometry;type:text;not null"`

	// --- 下面这个字段数据库里没有，是解码后填充的 ---
	Geometry orb.Geometry `json:"-" gorm:"-"`
}

// TableName 指定 gorm 表名
func (Feature) TableName() string { return "cached_features" }

// DisplayName 返回用于展示的名称
func (f Feature) DisplayName() string {
	if f.Name != "" {
		return f.Name
	}
	return f.Category.DefaultName()
}

// IDWatermark 记录已分配过的最大要素 ID, 保证删除后 ID 也不会被复用
type IDWatermark struct {
	Name  string `gorm:"primaryKey;size:32"`
	Value int64  `gorm:"not null"`
}

// TableName 指定 gorm 表名
func (IDWatermark) TableName() string { return "id_watermarks" }
