package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"navigator-system/config"
	"navigator-system/handler"

	"github.com/klauspost/compress/gzhttp"
	"github.com/spf13/cobra"
)

// version 由 -ldflags "-X main.version=..." 注入
var version = "dev"

var cfgFile string

// rootCmd 根命令
var rootCmd = &cobra.Command{
	Use:   "navigator",
	Short: "校园导航 - 基于缓存道路数据的最短路径规划服务",
	Long: `navigator 从上游 (PostGIS 或 GeoJSON 文件) 抓取道路和建筑数据缓存到本地数据库,
每次请求按缓存的当前数据构图, 用 Dijkstra 算法计算两点之间的最短路径。
用户可以手绘路径补充道路数据。`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// serveCmd 启动 HTTP 服务
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动 HTTP 服务",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context())
	},
}

// versionCmd 版本信息
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "navigator %s\n", version)
		if info, ok := debug.ReadBuildInfo(); ok {
			fmt.Fprintf(cmd.OutOrStdout(), "Go version: %s\n", info.GoVersion)
			for _, s := range info.Settings {
				if s.Key == "vcs.revision" {
					fmt.Fprintf(cmd.OutOrStdout(), "Git commit: %s\n", s.Value)
				}
			}
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", os.Getenv("NAVIGATOR_CONFIG"), "配置文件路径 (YAML), 也可以用 NAVIGATOR_CONFIG 指定")

	rootCmd.AddCommand(serveCmd, versionCmd)
	rootCmd.AddCommand(populateCmd, routeCmd, pathsCmd, destinationsCmd, cacheCmd, hashPasswordCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "错误:", err)
		stop()
		os.Exit(1)
	}
}

// loadApp 读取配置并组装组件, 供各个子命令使用
func loadApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	return newApp(ctx, cfg)
}

// runServer 启动服务器, 收到退出信号后优雅关闭
func runServer(ctx context.Context) error {
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	router := a.handler().NewRouter(handler.RouterOptions{RequestTimeout: a.cfg.Server.RequestTimeout})
	var h http.Handler = router
	if a.cfg.Server.Gzip {
		h = gzhttp.GzipHandler(router)
	}

	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("服务器启动", slog.String("addr", srv.Addr), slog.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("服务器启动失败: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("正在关闭服务器")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("关闭服务器失败: %w", err)
	}
	return nil
}
