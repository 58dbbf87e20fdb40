package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"navigator-system/algo"
	"navigator-system/model"
	"navigator-system/service"
	"navigator-system/utils"

	"github.com/paulmach/orb"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// populateCmd 手动填充缓存
var populateCmd = &cobra.Command{
	Use:   "populate [category...]",
	Short: "从上游抓取数据填充缓存 (默认 roads 和 buildings)",
	RunE: func(cmd *cobra.Command, args []string) error {
		categories := []model.Category{model.CategoryRoads, model.CategoryBuildings}
		if len(args) > 0 {
			categories = categories[:0]
			for _, arg := range args {
				c, err := model.ParseCategory(arg)
				if err != nil {
					return err
				}
				categories = append(categories, c)
			}
		}

		a, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		// 不同分类互不影响, 并发抓取
		g, ctx := errgroup.WithContext(cmd.Context())
		for _, c := range categories {
			g.Go(func() error {
				stats, err := a.nav.Populate(ctx, c)
				if err != nil {
					return fmt.Errorf("%s: %w", c, err)
				}
				if stats.FromCache {
					fmt.Fprintf(cmd.OutOrStdout(), "%-10s 缓存已满足 (%d 条), 未访问上游\n", c, stats.Cached)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s 抓取 %d 条, 写入 %d 条, 跳过 %d 条\n", c, stats.Fetched, stats.Upserted, stats.Skipped)
				return nil
			})
		}
		return g.Wait()
	},
}

var routeFrom, routeTo string

// routeCmd 命令行路径规划
var routeCmd = &cobra.Command{
	Use:     "route",
	Short:   "计算两个坐标之间的最短路径",
	Example: `  navigator route --from 39.2750,-6.8100 --to 39.2800,-6.8050
  navigator route --from Library --to "Main Gate"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		start, err := resolvePoint(cmd.Context(), a.nav, routeFrom)
		if err != nil {
			return fmt.Errorf("--from: %w", err)
		}
		end, err := resolvePoint(cmd.Context(), a.nav, routeTo)
		if err != nil {
			return fmt.Errorf("--to: %w", err)
		}

		res, err := a.nav.Route(cmd.Context(), start, end)
		if err != nil {
			return err
		}
		if !res.Found() {
			fmt.Fprintf(cmd.OutOrStdout(), "未找到路径: %s\n", res.Status)
			return nil
		}
		fmt.Fprint(cmd.OutOrStdout(), algo.FormatPath(algo.PathResult{Path: res.Path, Weight: res.Weight}))
		fmt.Fprintf(cmd.OutOrStdout(), "距离: %.1f 米\n", res.Meters)
		return nil
	},
}

// pathsCmd 用户路径管理
var pathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "管理用户手绘路径",
}

var pathName, pathCoords string

var pathsAddCmd = &cobra.Command{
	Use:     "add",
	Short:   "新增一条路径",
	Example: `  navigator paths add --name "后门小路" --coords "39.2750,-6.8100;39.2760,-6.8095"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var coords []orb.Point
		for _, part := range strings.Split(pathCoords, ";") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			p, err := parsePoint(part)
			if err != nil {
				return fmt.Errorf("--coords: %w", err)
			}
			coords = append(coords, p)
		}

		a, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := a.nav.AddPath(cmd.Context(), coords, pathName)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "已新增路径 %d\n", id)
		return nil
	},
}

var removeAll bool

var pathsRemoveCmd = &cobra.Command{
	Use:   "remove [id]",
	Short: "删除一条路径, 或用 --all 清空所有路径",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var id *int64
		switch {
		case len(args) == 1:
			v, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("路径 ID 必须是整数: %w", err)
			}
			id = &v
		case !removeAll:
			return fmt.Errorf("需要指定路径 ID 或 --all")
		}

		a, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		deleted, err := a.nav.RemovePath(cmd.Context(), id)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "已删除 %d 条路径\n", deleted)
		return nil
	},
}

// destinationsCmd 目的地管理
var destinationsCmd = &cobra.Command{
	Use:   "destinations",
	Short: "管理有名字的目的地",
}

var destinationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出所有目的地",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		list, err := a.nav.ListDestinations(cmd.Context())
		if err != nil {
			return err
		}
		for _, d := range list {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%.6f,%.6f\n", d.Name, d.Longitude, d.Latitude)
		}
		return nil
	},
}

var destinationsAddCmd = &cobra.Command{
	Use:     "add <name> <经度,纬度>",
	Short:   "新增目的地, 同名时更新坐标",
	Example: `  navigator destinations add Library 39.2750,-6.8100`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := parsePoint(args[1])
		if err != nil {
			return err
		}

		a, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		d, err := a.nav.SaveDestination(cmd.Context(), args[0], p)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "已保存目的地 %s (ID %d)\n", d.Name, d.ID)
		return nil
	},
}

var destinationsRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "删除目的地",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		ok, err := a.nav.RemoveDestination(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("目的地不存在: %s", args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "已删除目的地 %s\n", args[0])
		return nil
	},
}

// cacheCmd 缓存管理
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "管理要素缓存",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear <category>",
	Short: "清空某个分类的缓存, 下次请求会重新抓取",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := model.ParseCategory(args[0])
		if err != nil {
			return err
		}

		a, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		deleted, err := a.nav.ClearCategory(cmd.Context(), c)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "已清空 %s: %d 条\n", c, deleted)
		return nil
	},
}

// hashPasswordCmd 生成配置文件中 auth.password_hash 的值
var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password <password>",
	Short: "生成管理员密码的 bcrypt hash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := utils.HashPassword(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	routeCmd.Flags().StringVar(&routeFrom, "from", "", "起点 经度,纬度")
	routeCmd.Flags().StringVar(&routeTo, "to", "", "终点 经度,纬度")
	_ = routeCmd.MarkFlagRequired("from")
	_ = routeCmd.MarkFlagRequired("to")

	pathsAddCmd.Flags().StringVar(&pathName, "name", "", "路径名称 (默认 Unnamed Path)")
	pathsAddCmd.Flags().StringVar(&pathCoords, "coords", "", "坐标列表, 格式 经度,纬度;经度,纬度;...")
	_ = pathsAddCmd.MarkFlagRequired("coords")
	pathsRemoveCmd.Flags().BoolVar(&removeAll, "all", false, "清空所有用户路径")
	pathsCmd.AddCommand(pathsAddCmd, pathsRemoveCmd)

	destinationsCmd.AddCommand(destinationsListCmd, destinationsAddCmd, destinationsRemoveCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}

// resolvePoint 解析 "经度,纬度", 不是坐标时按目的地名称查询
func resolvePoint(ctx context.Context, nav *service.Navigator, s string) (orb.Point, error) {
	if p, err := parsePoint(s); err == nil {
		return p, nil
	}
	d, err := nav.Destination(ctx, s)
	if err != nil {
		return orb.Point{}, err
	}
	return d.Point(), nil
}

// parsePoint 解析 "经度,纬度"
func parsePoint(s string) (orb.Point, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 2 {
		return orb.Point{}, fmt.Errorf("坐标格式应为 经度,纬度: %q", s)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return orb.Point{}, fmt.Errorf("经度不合法: %w", err)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return orb.Point{}, fmt.Errorf("纬度不合法: %w", err)
	}
	return orb.Point{lon, lat}, nil
}
