package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// The happy path needs a live Redis; what can be covered hermetically is the
// fail-open behavior when Redis is unreachable.

func TestRedisRateLimitMiddleware_FailsOpenWhenRedisDown(t *testing.T) {
	gin.SetMode(gin.TestMode)

	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1", // nothing listens here
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { client.Close() })

	limiter := NewRedisRateLimiter(client, 60, 10)

	r := gin.New()
	r.Use(RedisRateLimitMiddleware(limiter))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 when Redis is unreachable", w.Code)
	}
}

func TestNewRedisRateLimiter_Limit(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { client.Close() })

	limiter := NewRedisRateLimiter(client, 30, 5)
	if limiter.limit.Rate != 30 {
		t.Errorf("Rate = %d, want 30", limiter.limit.Rate)
	}
	if limiter.limit.Burst != 5 {
		t.Errorf("Burst = %d, want 5", limiter.limit.Burst)
	}
	if limiter.limit.Period != time.Minute {
		t.Errorf("Period = %v, want 1m", limiter.limit.Period)
	}
}
