// Package keys 构造 "<domain>_<identifier>" 形式的缓存键。
// 缓存本身不强制命名空间，这里只是约定。
package keys

import (
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// 键前缀
const (
	DomainUser     = "user"
	DomainWeather  = "weather"
	DomainMessage  = "message"
	DomainTheme    = "theme"
	DomainSettings = "settings"
	DomainAPI      = "api"
)

// Build 拼接域名和标识部分。每个部分做 NFC 规范化、去除首尾空白，内部空白替换为下划线。
func Build(domain string, parts ...string) string {
	var b strings.Builder
	b.WriteString(domain)
	for _, p := range parts {
		b.WriteByte('_')
		b.WriteString(clean(p))
	}
	return b.String()
}

// User 用户信息键，如 user_123
func User(id int64) string {
	return Build(DomainUser, strconv.FormatInt(id, 10))
}

// Weather 天气键，如 weather_Sydney_Australia
func Weather(city, country string) string {
	return Build(DomainWeather, city, country)
}

// Message 消息正文键
func Message(id string) string {
	return Build(DomainMessage, id)
}

// Theme 主题清单键
func Theme(name string) string {
	return Build(DomainTheme, name)
}

// Settings 设置键
func Settings(scope string) string {
	return Build(DomainSettings, scope)
}

// API 接口响应键，method 统一大写
func API(method, path string) string {
	return Build(DomainAPI, strings.ToUpper(method), path)
}

func clean(s string) string {
	s = norm.NFC.String(strings.TrimSpace(s))
	return strings.Join(strings.Fields(s), "_")
}
