package model

import "github.com/paulmach/orb"

// Destination 有名字的目的地 (教学楼、食堂、宿舍等), 前端用来选择起终点
type Destination struct {
	ID        int64   `json:"id" gorm:"primaryKey"`
	Name      string  `json:"name" gorm:"size:100;uniqueIndex;not null"`
	Latitude  float64 `json:"latitude" gorm:"not null"`
	Longitude float64 `json:"longitude" gorm:"not null"`
}

// TableName 指定 gorm 表名
func (Destination) TableName() string { return "destinations" }

// Point 转换为 (经度, 纬度) 坐标
func (d Destination) Point() orb.Point {
	return orb.Point{d.Longitude, d.Latitude}
}
