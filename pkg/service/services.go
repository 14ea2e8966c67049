package service

import (
	"context"
	"time"

	"portalcache/pkg/cache"
	"portalcache/pkg/cache/keys"
)

// User 门户用户信息
type User struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	SchoolID  string `json:"school_id,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Weather 天气信息
type Weather struct {
	City        string    `json:"city"`
	Country     string    `json:"country"`
	TempCelsius float64   `json:"temp_celsius"`
	Condition   string    `json:"condition"`
	ObservedAt  time.Time `json:"observed_at"`
}

// Message 站内消息正文
type Message struct {
	ID      string    `json:"id"`
	From    string    `json:"from"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	SentAt  time.Time `json:"sent_at"`
}

// UserAPI 上游用户接口
type UserAPI interface {
	FetchUser(ctx context.Context, id int64) (*User, error)
}

// WeatherAPI 上游天气接口
type WeatherAPI interface {
	FetchWeather(ctx context.Context, city, country string) (*Weather, error)
}

// MessageAPI 上游消息接口
type MessageAPI interface {
	FetchMessage(ctx context.Context, id string) (*Message, error)
}

// UserService 带缓存的用户信息查询
type UserService struct {
	api  UserAPI
	memo *Memoizer
}

// NewUserService 创建用户服务
func NewUserService(api UserAPI, memo *Memoizer) *UserService {
	return &UserService{api: api, memo: memo}
}

// GetUser 获取用户信息，缓存 15 分钟
func (s *UserService) GetUser(ctx context.Context, id int64) (*User, error) {
	return Fetch(ctx, s.memo, keys.User(id), cache.TTLMedium, func(ctx context.Context) (*User, error) {
		return s.api.FetchUser(ctx, id)
	})
}

// ForgetUser 使用户缓存失效，例如资料修改后
func (s *UserService) ForgetUser(id int64) {
	s.memo.Forget(keys.User(id))
}

// WeatherService 带缓存的天气查询
type WeatherService struct {
	api  WeatherAPI
	memo *Memoizer
}

// NewWeatherService 创建天气服务
func NewWeatherService(api WeatherAPI, memo *Memoizer) *WeatherService {
	return &WeatherService{api: api, memo: memo}
}

// GetWeather 获取天气，缓存 5 分钟
func (s *WeatherService) GetWeather(ctx context.Context, city, country string) (*Weather, error) {
	return Fetch(ctx, s.memo, keys.Weather(city, country), cache.TTLShort, func(ctx context.Context) (*Weather, error) {
		return s.api.FetchWeather(ctx, city, country)
	})
}

// MessageService 带缓存的消息正文查询
type MessageService struct {
	api  MessageAPI
	memo *Memoizer
}

// NewMessageService 创建消息服务
func NewMessageService(api MessageAPI, memo *Memoizer) *MessageService {
	return &MessageService{api: api, memo: memo}
}

// GetMessage 获取消息正文，缓存 60 分钟
func (s *MessageService) GetMessage(ctx context.Context, id string) (*Message, error) {
	return Fetch(ctx, s.memo, keys.Message(id), cache.TTLLong, func(ctx context.Context) (*Message, error) {
		return s.api.FetchMessage(ctx, id)
	})
}

// Forget 删除消息缓存，例如消息被删除或撤回后
func (s *MessageService) Forget(id string) {
	s.memo.Forget(keys.Message(id))
}
