package keys

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuilders(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"user", User(123), "user_123"},
		{"weather", Weather("Sydney", "Australia"), "weather_Sydney_Australia"},
		{"weather with spaces", Weather(" New  York ", "United States"), "weather_New_York_United_States"},
		{"message", Message("abc-1"), "message_abc-1"},
		{"theme", Theme("dark"), "theme_dark"},
		{"settings", Settings("general"), "settings_general"},
		{"api", API("get", "/timetable"), "api_GET_/timetable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestBuild_NormalizesUnicode(t *testing.T) {
	composed := "Z\u00fcrich"    // ü 作为单个码点
	decomposed := "Zu\u0308rich" // u + 组合分音符

	assert.NotEqual(t, composed, decomposed)
	assert.Equal(t, Weather(composed, "CH"), Weather(decomposed, "CH"))
}

func TestBuild_NoParts(t *testing.T) {
	assert.Equal(t, "settings", Build(DomainSettings))
}
