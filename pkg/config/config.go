// Package config 定义 portalcache 后端进程的配置，并通过 viper 从文件和环境变量加载。
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"portalcache/pkg/cache"
)

// EnvPrefix 环境变量前缀，例如 PORTALCACHE_SERVER_PORT
const EnvPrefix = "PORTALCACHE"

// Config 主配置结构
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	ClientCache  ClientCacheConfig  `mapstructure:"client_cache"`
	BackendCache BackendCacheConfig `mapstructure:"backend_cache"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
	Logger       LoggerConfig       `mapstructure:"logger"`
}

// ServerConfig 命令接口的 HTTP 配置
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

// ClientCacheConfig 客户端缓存配置
type ClientCacheConfig struct {
	DefaultTTLMinutes int           `mapstructure:"default_ttl_minutes"` // 默认TTL（分钟）
	MaxSizeBytes      int64         `mapstructure:"max_size_bytes"`      // 容量上限（字节）
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`      // 过期清扫间隔
	RejectOversized   bool          `mapstructure:"reject_oversized"`    // 是否拒绝超过容量的单个值
}

// BackendCacheConfig 后端缓存配置
type BackendCacheConfig struct {
	DefaultTTL time.Duration `mapstructure:"default_ttl"` // 默认TTL
}

// SchedulerConfig 后台任务配置，使用 cron 表达式
type SchedulerConfig struct {
	PurgeSpec string `mapstructure:"purge_spec"` // 清理过期条目
	StatsSpec string `mapstructure:"stats_spec"` // 输出统计信息，空字符串表示关闭
}

// LoggerConfig 日志配置
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text, json
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "7878",
			Mode: "release",
		},
		ClientCache: ClientCacheConfig{
			DefaultTTLMinutes: cache.DefaultTTLMinutes,
			MaxSizeBytes:      cache.DefaultMaxSizeBytes,
			SweepInterval:     cache.DefaultSweepInterval,
		},
		BackendCache: BackendCacheConfig{
			DefaultTTL: cache.DefaultBackendTTL,
		},
		Scheduler: SchedulerConfig{
			PurgeSpec: "@every 5m",
			StatsSpec: "@every 1m",
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load 从 path 读取 YAML 配置，path 为空时在 ./config 和当前目录查找 portalcache.yaml。
// 找不到配置文件时使用默认值，环境变量优先于文件。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("portalcache")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("client_cache.default_ttl_minutes", d.ClientCache.DefaultTTLMinutes)
	v.SetDefault("client_cache.max_size_bytes", d.ClientCache.MaxSizeBytes)
	v.SetDefault("client_cache.sweep_interval", d.ClientCache.SweepInterval)
	v.SetDefault("client_cache.reject_oversized", d.ClientCache.RejectOversized)
	v.SetDefault("backend_cache.default_ttl", d.BackendCache.DefaultTTL)
	v.SetDefault("scheduler.purge_spec", d.Scheduler.PurgeSpec)
	v.SetDefault("scheduler.stats_spec", d.Scheduler.StatsSpec)
	v.SetDefault("logger.level", d.Logger.Level)
	v.SetDefault("logger.format", d.Logger.Format)
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server port cannot be empty")
	}

	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("invalid server mode: %s", c.Server.Mode)
	}

	if c.ClientCache.DefaultTTLMinutes <= 0 {
		return errors.New("client_cache default_ttl_minutes must be positive")
	}

	if c.ClientCache.MaxSizeBytes <= 0 {
		return errors.New("client_cache max_size_bytes must be positive")
	}

	if c.ClientCache.SweepInterval < 0 {
		return errors.New("client_cache sweep_interval cannot be negative")
	}

	if c.BackendCache.DefaultTTL <= 0 {
		return errors.New("backend_cache default_ttl must be positive")
	}

	if c.Scheduler.PurgeSpec == "" {
		return errors.New("scheduler purge_spec cannot be empty")
	}

	switch c.Logger.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid logger format: %s", c.Logger.Format)
	}

	return nil
}
