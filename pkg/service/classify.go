package service

import (
	"context"
	"errors"
	"net"
	"strings"
)

// ErrorLevel 上游获取错误的级别
type ErrorLevel int

const (
	LevelUnknown  ErrorLevel = iota // 未知错误
	LevelFatal                      // 连接被拒绝、主机不存在、鉴权失败
	LevelNetwork                    // 超时、连接重置等临时网络错误
	LevelInvalid                    // 请求本身无效，上游是健康的
	LevelCanceled                   // 调用方取消
)

// String 返回级别名称
func (l ErrorLevel) String() string {
	switch l {
	case LevelFatal:
		return "fatal"
	case LevelNetwork:
		return "network"
	case LevelInvalid:
		return "invalid"
	case LevelCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Classify 根据错误内容判断级别
func Classify(err error) ErrorLevel {
	if err == nil {
		return LevelUnknown
	}

	switch {
	case errors.Is(err, context.Canceled):
		return LevelCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return LevelNetwork
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return LevelNetwork
	}

	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "401"),
		strings.Contains(msg, "403"):
		return LevelFatal
	}

	switch {
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "network is unreachable"),
		strings.Contains(msg, "temporary failure"),
		strings.Contains(msg, "broken pipe"):
		return LevelNetwork
	}

	switch {
	case strings.Contains(msg, "invalid argument"),
		strings.Contains(msg, "bad request"),
		strings.Contains(msg, "not found") && strings.Contains(msg, "404"):
		return LevelInvalid
	}

	return LevelUnknown
}

// tripsBreaker 只有说明上游不健康的错误才计入熔断器
func tripsBreaker(err error) bool {
	switch Classify(err) {
	case LevelInvalid, LevelCanceled:
		return false
	default:
		return true
	}
}
