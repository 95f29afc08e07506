package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/asmorodws/simlok2-sub012/internal/config"
)

func rateTestContext(uid interface{}) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/verify", nil)
	req.Header.Set("X-Real-Ip", "10.0.0.9")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/v1/verify")
	if uid != nil {
		c.Set("user_id", uid)
	}
	return c
}

func TestBuildRateKeyStrategies(t *testing.T) {
	tests := []struct {
		strategy string
		want     string
	}{
		{"ip", "rl:ip:10.0.0.9"},
		{"user", "rl:user:42"},
		{"ip_user", "rl:ip:10.0.0.9:user:42"},
		{"ip_user_route", "rl:ip:10.0.0.9:user:42:route:POST /v1/verify"},
	}
	for _, tt := range tests {
		t.Run(tt.strategy, func(t *testing.T) {
			cfg := config.RateLimitConfig{Prefix: "rl", KeyStrategy: tt.strategy}
			assert.Equal(t, tt.want, buildRateKey(cfg, rateTestContext(float64(42))))
		})
	}
}

func TestBuildRateKeyAnonymous(t *testing.T) {
	cfg := config.RateLimitConfig{Prefix: "rl", KeyStrategy: "user"}
	assert.Equal(t, "rl:user:anon", buildRateKey(cfg, rateTestContext(nil)))
}

func TestAsInt64(t *testing.T) {
	assert.Equal(t, int64(5), asInt64(int64(5)))
	assert.Equal(t, int64(5), asInt64("5"))
	assert.Equal(t, int64(5), asInt64(float64(5)))
	assert.Equal(t, int64(0), asInt64("junk"))
}
