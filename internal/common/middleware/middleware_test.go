package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestCORS(t *testing.T) {
	router := gin.New()
	router.Use(CORS([]string{"http://localhost:3000"}))
	router.GET("/test", func(c *gin.Context) {
		c.String(200, "OK")
	})

	t.Run("allowed origin gets CORS headers", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/test", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		router.ServeHTTP(w, req)

		assert.Equal(t, 200, w.Code)
		assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("unknown origin gets no allow header", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/test", nil)
		req.Header.Set("Origin", "http://evil.example.com")
		router.ServeHTTP(w, req)

		assert.Equal(t, 200, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("OPTIONS preflight request", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("OPTIONS", "/test", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		router.ServeHTTP(w, req)

		assert.Equal(t, 204, w.Code)
		assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestRequestID(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/test", func(c *gin.Context) {
		requestID, exists := c.Get("request_id")
		assert.True(t, exists)
		assert.NotEmpty(t, requestID)
		c.String(200, "OK")
	})

	t.Run("generates request ID", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/test", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, 200, w.Code)
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	})

	t.Run("preserves existing request ID", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/test", nil)
		req.Header.Set("X-Request-ID", "test-id-123")
		router.ServeHTTP(w, req)

		assert.Equal(t, 200, w.Code)
		assert.Equal(t, "test-id-123", w.Header().Get("X-Request-ID"))
	})
}

func TestRateLimit(t *testing.T) {
	router := gin.New()
	router.Use(RateLimit(2, time.Minute))
	router.GET("/test", func(c *gin.Context) {
		c.String(200, "OK")
	})

	doRequest := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/test", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		router.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, 200, doRequest().Code)
	assert.Equal(t, 200, doRequest().Code)
	w := doRequest()
	assert.Equal(t, 429, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestRecovery(t *testing.T) {
	router := gin.New()
	router.Use(Recovery())
	router.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/panic", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, 500, w.Code)
}

func TestDistributedRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	newRouter := func(cfg RateLimitConfig) *gin.Engine {
		router := gin.New()
		router.Use(DistributedRateLimit(rdb, cfg, zap.NewNop()))
		router.GET("/healthz", func(c *gin.Context) { c.String(200, "OK") })
		router.GET("/auth/session", func(c *gin.Context) { c.String(200, "OK") })
		router.POST("/auth/login", func(c *gin.Context) { c.String(200, "OK") })
		return router
	}

	t.Run("enforces default tier limit", func(t *testing.T) {
		mr.FlushAll()
		router := newRouter(RateLimitConfig{Requests: 2, Window: time.Minute})

		for i := 0; i < 2; i++ {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", "/auth/session", nil)
			router.ServeHTTP(w, req)
			require.Equal(t, 200, w.Code)
		}

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/auth/session", nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, 429, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	})

	t.Run("auth paths use stricter tier", func(t *testing.T) {
		mr.FlushAll()
		router := newRouter(RateLimitConfig{
			Requests:     100,
			Window:       time.Minute,
			AuthRequests: 1,
			AuthWindow:   time.Minute,
		})

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/auth/login", nil)
		router.ServeHTTP(w, req)
		require.Equal(t, 200, w.Code)

		w = httptest.NewRecorder()
		req, _ = http.NewRequest("POST", "/auth/login", nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, 429, w.Code)
	})

	t.Run("skips health endpoints", func(t *testing.T) {
		mr.FlushAll()
		router := newRouter(RateLimitConfig{Requests: 1, Window: time.Minute})

		for i := 0; i < 5; i++ {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", "/healthz", nil)
			router.ServeHTTP(w, req)
			assert.Equal(t, 200, w.Code)
		}
	})

	t.Run("fails open when Redis is unreachable", func(t *testing.T) {
		mr.FlushAll()
		broken := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
		t.Cleanup(func() { _ = broken.Close() })

		router := gin.New()
		router.Use(DistributedRateLimit(broken, RateLimitConfig{Requests: 1, Window: time.Minute}, zap.NewNop()))
		router.GET("/auth/session", func(c *gin.Context) { c.String(200, "OK") })

		for i := 0; i < 3; i++ {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", "/auth/session", nil)
			router.ServeHTTP(w, req)
			assert.Equal(t, 200, w.Code)
		}
	})
}

func TestCSRFProtection(t *testing.T) {
	newRouter := func(cfg CSRFConfig) *gin.Engine {
		router := gin.New()
		router.Use(CSRFProtection(cfg, zap.NewNop()))
		router.POST("/auth/login", func(c *gin.Context) { c.String(200, "OK") })
		router.GET("/auth/session", func(c *gin.Context) { c.String(200, "OK") })
		return router
	}

	cfg := AuthCSRFConfig("vehicert.example.com")

	t.Run("GET requests pass without checks", func(t *testing.T) {
		router := newRouter(cfg)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/auth/session", nil)
		req.AddCookie(&http.Cookie{Name: "ory_kratos_session", Value: "s"})
		router.ServeHTTP(w, req)
		assert.Equal(t, 200, w.Code)
	})

	t.Run("POST without session cookie passes", func(t *testing.T) {
		router := newRouter(cfg)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/auth/login", nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, 200, w.Code)
	})

	t.Run("POST with session cookie and trusted origin passes", func(t *testing.T) {
		router := newRouter(cfg)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/auth/login", nil)
		req.AddCookie(&http.Cookie{Name: "ory_kratos_session", Value: "s"})
		req.Header.Set("Origin", "https://app.vehicert.example.com")
		router.ServeHTTP(w, req)
		assert.Equal(t, 200, w.Code)
	})

	t.Run("POST with session cookie and foreign origin blocked", func(t *testing.T) {
		router := newRouter(cfg)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/auth/login", nil)
		req.AddCookie(&http.Cookie{Name: "ory_kratos_session", Value: "s"})
		req.Header.Set("Origin", "https://evil.example.org")
		router.ServeHTTP(w, req)
		assert.Equal(t, 403, w.Code)
	})

	t.Run("POST with session cookie and no origin blocked", func(t *testing.T) {
		router := newRouter(cfg)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/auth/login", nil)
		req.AddCookie(&http.Cookie{Name: "ory_kratos_session", Value: "s"})
		router.ServeHTTP(w, req)
		assert.Equal(t, 403, w.Code)
	})

	t.Run("trusted referer accepted as fallback", func(t *testing.T) {
		router := newRouter(cfg)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/auth/login", nil)
		req.AddCookie(&http.Cookie{Name: "ory_kratos_session", Value: "s"})
		req.Header.Set("Referer", "https://vehicert.example.com/login")
		router.ServeHTTP(w, req)
		assert.Equal(t, 200, w.Code)
	})

	t.Run("disabled config skips everything", func(t *testing.T) {
		router := newRouter(CSRFConfig{Enabled: false})
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/auth/login", nil)
		req.AddCookie(&http.Cookie{Name: "ory_kratos_session", Value: "s"})
		router.ServeHTTP(w, req)
		assert.Equal(t, 200, w.Code)
	})
}

func TestMatchesDomain(t *testing.T) {
	tests := []struct {
		host   string
		domain string
		want   bool
	}{
		{"vehicert.example.com", "vehicert.example.com", true},
		{"app.vehicert.example.com", "vehicert.example.com", true},
		{"evilvehicert.example.com", "vehicert.example.com", false},
		{"VEHICERT.EXAMPLE.COM", "vehicert.example.com", true},
		{"other.com", "vehicert.example.com", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, matchesDomain(tt.host, tt.domain), "%s vs %s", tt.host, tt.domain)
	}
}
