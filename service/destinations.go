package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"unicode/utf8"

	"navigator-system/model"

	"github.com/paulmach/orb"
)

// maxDestinationName 目的地名称的最大长度 (字符数)
const maxDestinationName = 100

// ListDestinations 返回所有目的地, 用于前端选择起终点
func (n *Navigator) ListDestinations(ctx context.Context) ([]model.Destination, error) {
	return n.store.ListDestinations(ctx)
}

// Destination 按名称查询目的地, 不存在时返回的错误满足 errors.Is(err, db.ErrDestinationNotFound)
func (n *Navigator) Destination(ctx context.Context, name string) (model.Destination, error) {
	return n.store.GetDestination(ctx, strings.TrimSpace(name))
}

// SaveDestination 新增目的地, 同名时更新坐标
func (n *Navigator) SaveDestination(ctx context.Context, name string, p orb.Point) (model.Destination, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Destination{}, &ValidationError{Reason: "目的地名称不能为空"}
	}
	if utf8.RuneCountInString(name) > maxDestinationName {
		return model.Destination{}, &ValidationError{Reason: fmt.Sprintf("目的地名称不能超过 %d 个字符", maxDestinationName)}
	}
	lon, lat := p.Lon(), p.Lat()
	if math.IsNaN(lon) || math.IsNaN(lat) || lon < -180 || lon > 180 || lat < -90 || lat > 90 {
		return model.Destination{}, &ValidationError{Reason: fmt.Sprintf("坐标超出范围: (%v, %v)", lon, lat)}
	}

	d, err := n.store.SaveDestination(ctx, model.Destination{Name: name, Latitude: lat, Longitude: lon})
	if err != nil {
		return model.Destination{}, err
	}
	n.logger.Info("保存目的地", slog.String("name", name), slog.Float64("lon", lon), slog.Float64("lat", lat))
	return d, nil
}

// RemoveDestination 按名称删除目的地, 返回是否删除了数据
func (n *Navigator) RemoveDestination(ctx context.Context, name string) (bool, error) {
	ok, err := n.store.DeleteDestination(ctx, strings.TrimSpace(name))
	if err != nil {
		return false, err
	}
	if ok {
		n.logger.Info("删除目的地", slog.String("name", name))
	}
	return ok, nil
}

// RouteBetween 在两个目的地之间规划路径
func (n *Navigator) RouteBetween(ctx context.Context, from, to string) (model.RouteResult, error) {
	start, err := n.Destination(ctx, from)
	if err != nil {
		return model.RouteResult{}, err
	}
	end, err := n.Destination(ctx, to)
	if err != nil {
		return model.RouteResult{}, err
	}
	return n.Route(ctx, start.Point(), end.Point())
}
