package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"navigator-system/config"
	"navigator-system/db"
	"navigator-system/handler"
	"navigator-system/model"
	"navigator-system/service"
	"navigator-system/source"
)

// app 按配置组装好的各个组件
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   db.Store
	nav     *service.Navigator
	closers []func() error
}

// newApp 打开存储和上游数据源, 创建引擎
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger := cfg.Log.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger}

	store, err := openStore(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	sources, closer, err := openSources(cfg.Upstream)
	if err != nil {
		a.Close()
		return nil, err
	}
	if closer != nil {
		a.closers = append(a.closers, closer)
	}

	a.nav = service.New(store, sources, navigatorConfig(cfg), logger)
	return a, nil
}

// Close 按打开的逆序关闭
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// handler 创建 HTTP 接口
func (a *app) handler() *handler.Handler {
	var auth *handler.Auth
	if a.cfg.Auth.Enabled {
		admin := model.Admin{Username: a.cfg.Auth.Username, PasswordHash: a.cfg.Auth.PasswordHash}
		auth = handler.NewAuth(admin, a.cfg.Auth.JWTSecret, a.cfg.Auth.Issuer, a.cfg.Auth.TokenTTL)
	}
	return handler.New(a.nav, auth, a.logger)
}

func openStore(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (db.Store, error) {
	switch cfg.Driver {
	case "sqlite":
		logger.Info("使用 SQLite 缓存", slog.String("path", cfg.Path))
		store, err := db.OpenSQLite(cfg.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "postgres":
		store, err := db.OpenPostgres(ctx, db.PostgresOptions{
			Host:          cfg.Host,
			Port:          cfg.Port,
			User:          cfg.User,
			Password:      cfg.Password,
			Name:          cfg.Name,
			SSLMode:       cfg.SSLMode,
			MaxRetries:    cfg.MaxRetries,
			RetryInterval: cfg.RetryInterval,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("不支持的数据库类型: %s", cfg.Driver)
	}
}

// openSources 按配置创建上游数据源, 每个数据源都带超时和重试
func openSources(cfg config.UpstreamConfig) (source.Registry, func() error, error) {
	opts := source.RetryOptions{
		AttemptTimeout:  cfg.Timeout,
		MaxAttempts:     cfg.MaxAttempts,
		InitialInterval: cfg.InitialInterval,
		MaxInterval:     cfg.MaxInterval,
		RatePerSecond:   cfg.RatePerSecond,
	}
	registry := source.Registry{}

	switch cfg.Kind {
	case "none":
		return registry, nil, nil
	case "postgis":
		pg, err := source.OpenPostGIS(cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		for _, c := range []model.Category{model.CategoryRoads, model.CategoryBuildings} {
			src, err := pg.Source(c)
			if err != nil {
				pg.Close()
				return nil, nil, err
			}
			registry[c] = source.WithRetry(src, opts)
		}
		return registry, pg.Close, nil
	case "geojson":
		for name, path := range cfg.Files {
			c, err := model.ParseCategory(name)
			if err != nil {
				return nil, nil, err
			}
			registry[c] = source.WithRetry(source.NewGeoJSONFile(path), opts)
		}
		return registry, nil, nil
	default:
		return nil, nil, fmt.Errorf("不支持的上游数据源: %s", cfg.Kind)
	}
}

func navigatorConfig(cfg *config.Config) service.Config {
	return service.Config{
		Populate: map[model.Category]service.PopulatePolicy{
			model.CategoryRoads: {
				BBox:      cfg.Populate.Roads.BBox,
				Limit:     cfg.Populate.Roads.Limit,
				Threshold: cfg.Populate.Roads.Threshold,
			},
			model.CategoryBuildings: {
				BBox:      cfg.Populate.Buildings.BBox,
				Limit:     cfg.Populate.Buildings.Limit,
				Threshold: cfg.Populate.Buildings.Threshold,
			},
		},
		AutoPopulate:    cfg.Populate.Auto,
		PopulateTimeout: cfg.Populate.Timeout,
		Graph: service.GraphOptions{
			SnapPrecision:   cfg.Graph.SnapPrecision,
			MaxSnapDistance: cfg.Graph.MaxSnapDistance,
			SpatialIndex:    cfg.Graph.SpatialIndex,
		},
	}
}
