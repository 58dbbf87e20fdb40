// Package config 负责加载服务配置: YAML 文件 + 环境变量覆盖 (方便 Docker 部署)
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"navigator-system/model"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config 服务配置
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Populate PopulateConfig `yaml:"populate"`
	Graph    GraphConfig    `yaml:"graph"`
	Auth     AuthConfig     `yaml:"auth"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig HTTP 服务
type ServerConfig struct {
	Addr            string        `yaml:"addr" validate:"required"`
	RequestTimeout  time.Duration `yaml:"request_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gte=0"`
	Gzip            bool          `yaml:"gzip"`
}

// DatabaseConfig 要素缓存的存储
type DatabaseConfig struct {
	Driver        string        `yaml:"driver" validate:"oneof=postgres sqlite"`
	Host          string        `yaml:"host" validate:"required_if=Driver postgres"`
	Port          string        `yaml:"port" validate:"required_if=Driver postgres"`
	User          string        `yaml:"user"`
	Password      string        `yaml:"password"`
	Name          string        `yaml:"name" validate:"required_if=Driver postgres"`
	SSLMode       string        `yaml:"sslmode"`
	Path          string        `yaml:"path" validate:"required_if=Driver sqlite"`
	MaxRetries    int           `yaml:"max_retries" validate:"gte=1"`
	RetryInterval time.Duration `yaml:"retry_interval" validate:"gte=0"`
}

// UpstreamConfig 上游几何数据源
type UpstreamConfig struct {
	Kind            string            `yaml:"kind" validate:"oneof=none postgis geojson"`
	DSN             string            `yaml:"dsn" validate:"required_if=Kind postgis"`
	Files           map[string]string `yaml:"files" validate:"required_if=Kind geojson"`
	Timeout         time.Duration     `yaml:"timeout" validate:"gte=0"`
	MaxAttempts     uint              `yaml:"max_attempts" validate:"gte=1,lte=20"`
	InitialInterval time.Duration     `yaml:"initial_interval" validate:"gte=0"`
	MaxInterval     time.Duration     `yaml:"max_interval" validate:"gte=0"`
	RatePerSecond   float64           `yaml:"rate_per_second" validate:"gte=0"`
}

// CategoryPolicy 某个分类的缓存填充策略
type CategoryPolicy struct {
	BBox      model.BoundingBox `yaml:"bbox"`
	Limit     int               `yaml:"limit" validate:"gte=0"`
	Threshold int64             `yaml:"threshold" validate:"gte=0"`
}

// PopulateConfig 缓存填充
type PopulateConfig struct {
	Auto      bool           `yaml:"auto"`
	Timeout   time.Duration  `yaml:"timeout" validate:"gte=0"` // 一次填充 (含重试) 的总时长上限
	Roads     CategoryPolicy `yaml:"roads"`
	Buildings CategoryPolicy `yaml:"buildings"`
}

// GraphConfig 构图参数
type GraphConfig struct {
	// SnapPrecision 顶点坐标保留的小数位数, -1 表示不吸附 (精确匹配)
	SnapPrecision   int     `yaml:"snap_precision" validate:"gte=-1,lte=15"`
	MaxSnapDistance float64 `yaml:"max_snap_distance" validate:"gte=0"`
	SpatialIndex    bool    `yaml:"spatial_index"`
}

// AuthConfig 用户路径修改接口的认证
type AuthConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Username     string        `yaml:"username" validate:"required_if=Enabled true"`
	PasswordHash string        `yaml:"password_hash" validate:"required_if=Enabled true"`
	JWTSecret    string        `yaml:"jwt_secret" validate:"required_if=Enabled true"`
	Issuer       string        `yaml:"issuer"`
	TokenTTL     time.Duration `yaml:"token_ttl" validate:"gte=0"`
}

// LogConfig 日志
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// Default 默认配置 (研究区域为原始部署的范围)
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			Gzip:            true,
		},
		Database: DatabaseConfig{
			Driver:        "postgres",
			Host:          "localhost",
			Port:          "5432",
			User:          "navigator",
			Password:      "navigator",
			Name:          "navigator",
			SSLMode:       "disable",
			Path:          "navigator.db",
			MaxRetries:    30,
			RetryInterval: 2 * time.Second,
		},
		Upstream: UpstreamConfig{
			Kind:            "none",
			Timeout:         10 * time.Second,
			MaxAttempts:     5,
			InitialInterval: time.Second,
			MaxInterval:     16 * time.Second,
			RatePerSecond:   1,
		},
		Populate: PopulateConfig{
			Auto:    true,
			Timeout: 2 * time.Minute,
			Roads: CategoryPolicy{
				BBox:      model.BoundingBox{MinLon: 39.271655, MinLat: -6.816286, MaxLon: 39.284623, MaxLat: -6.797216},
				Limit:     2000,
				Threshold: 1,
			},
			Buildings: CategoryPolicy{
				BBox:      model.BoundingBox{MinLon: 39.273264, MinLat: -6.817276, MaxLon: 39.288407, MaxLat: -6.807517},
				Limit:     5000,
				Threshold: 2000,
			},
		},
		Graph: GraphConfig{
			SnapPrecision: -1,
		},
		Auth: AuthConfig{
			Username: "admin",
			Issuer:   "navigator-system",
			TokenTTL: 24 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load 读取配置: 默认值 <- YAML 文件 (path 为空则跳过) <- 环境变量
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("配置不合法: %w", err)
	}
	for name, p := range map[string]CategoryPolicy{"roads": c.Populate.Roads, "buildings": c.Populate.Buildings} {
		if !p.BBox.Valid() {
			return fmt.Errorf("配置不合法: populate.%s.bbox 范围错误 (%s)", name, p.BBox)
		}
	}
	for category := range c.Upstream.Files {
		if _, err := model.ParseCategory(category); err != nil {
			return fmt.Errorf("配置不合法: upstream.files: %w", err)
		}
	}
	return nil
}

// applyEnv 环境变量覆盖
func (c *Config) applyEnv() error {
	c.Server.Addr = getEnvOrDefault("SERVER_ADDR", c.Server.Addr)

	c.Database.Driver = getEnvOrDefault("DB_DRIVER", c.Database.Driver)
	c.Database.Host = getEnvOrDefault("DB_HOST", c.Database.Host)
	c.Database.Port = getEnvOrDefault("DB_PORT", c.Database.Port)
	c.Database.User = getEnvOrDefault("DB_USER", c.Database.User)
	c.Database.Password = getEnvOrDefault("DB_PASSWORD", c.Database.Password)
	c.Database.Name = getEnvOrDefault("DB_NAME", c.Database.Name)
	c.Database.Path = getEnvOrDefault("DB_PATH", c.Database.Path)

	c.Upstream.Kind = getEnvOrDefault("UPSTREAM_KIND", c.Upstream.Kind)
	c.Upstream.DSN = getEnvOrDefault("UPSTREAM_DSN", c.Upstream.DSN)
	if file := os.Getenv("UPSTREAM_ROADS_FILE"); file != "" {
		if c.Upstream.Files == nil {
			c.Upstream.Files = map[string]string{}
		}
		c.Upstream.Files[string(model.CategoryRoads)] = file
	}

	c.Auth.JWTSecret = getEnvOrDefault("JWT_SECRET", c.Auth.JWTSecret)
	c.Log.Level = getEnvOrDefault("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnvOrDefault("LOG_FORMAT", c.Log.Format)

	if v := os.Getenv("AUTO_POPULATE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("环境变量 AUTO_POPULATE 不合法: %w", err)
		}
		c.Populate.Auto = b
	}
	return nil
}

// getEnvOrDefault 获取环境变量，如果不存在则返回默认值
func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// ParseLevel 解析日志级别
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return slog.LevelInfo, errors.New("未知的日志级别: " + s)
	}
	return level, nil
}

// NewLogger 按配置创建 slog.Logger
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := ParseLevel(c.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
