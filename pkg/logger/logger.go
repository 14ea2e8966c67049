// Package logger 封装 logrus，提供进程级共享的日志实例。
package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu     sync.Mutex
	global *logrus.Logger
)

// Config 日志配置
type Config struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format"` // text, json
}

// New 按配置创建一个独立的 logrus 实例，输出到 out
func New(config Config, out io.Writer) *logrus.Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(strings.ToLower(config.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if config.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05.000",
		})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: "2006-01-02 15:04:05.000",
			FullTimestamp:   true,
		})
	}

	l.SetOutput(out)
	return l
}

// Init 初始化全局日志器
func Init(config Config) {
	mu.Lock()
	defer mu.Unlock()
	global = New(config, os.Stdout)
}

// InitFromEnv 从环境变量初始化全局日志器
func InitFromEnv() {
	Init(configFromEnv())
}

func configFromEnv() Config {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		if os.Getenv("DEBUG") == "1" {
			level = "debug"
		} else {
			level = "info"
		}
	}

	format := os.Getenv("LOG_FORMAT")
	if format == "" {
		format = "text"
	}

	return Config{Level: level, Format: format}
}

// GetLogger 获取全局日志器，未初始化时按环境变量初始化
func GetLogger() *logrus.Logger {
	mu.Lock()
	defer mu.Unlock()
	if global == nil {
		global = New(configFromEnv(), os.Stdout)
	}
	return global
}

// WithComponent 创建带组件名的日志器
func WithComponent(component string) *logrus.Entry {
	return GetLogger().WithField("component", component)
}

// SetLevel 设置全局日志级别
func SetLevel(level string) {
	l, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		l = logrus.InfoLevel
	}
	GetLogger().SetLevel(l)
}
