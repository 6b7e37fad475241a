package middleware

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/model-registry/model-registry/internal/config"
)

func newTestLimiter(rpm, burst int) *RateLimiter {
	rl := NewRateLimiter(RateLimitConfig{
		RequestsPerMinute: rpm,
		BurstSize:         burst,
		CleanupInterval:   time.Hour,
	})
	return rl
}

// ---------------------------------------------------------------------------
// RateLimiter.Allow
// ---------------------------------------------------------------------------

func TestRateLimiter_BurstThenReject(t *testing.T) {
	rl := newTestLimiter(60, 3)
	defer rl.Stop()
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		d, _ := rl.Allow(context.Background(), "k")
		if !d.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	d, _ := rl.Allow(context.Background(), "k")
	if d.Allowed {
		t.Fatal("fourth request should be rejected")
	}
	if d.RetryAfter <= 0 || d.RetryAfter > time.Second {
		t.Errorf("RetryAfter = %v, want within (0, 1s] at 1 req/s", d.RetryAfter)
	}
}

func TestRateLimiter_Refills(t *testing.T) {
	rl := newTestLimiter(60, 1)
	defer rl.Stop()
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	if d, _ := rl.Allow(context.Background(), "k"); !d.Allowed {
		t.Fatal("first request should be allowed")
	}
	if d, _ := rl.Allow(context.Background(), "k"); d.Allowed {
		t.Fatal("second request should be rejected")
	}
	now = now.Add(time.Second)
	if d, _ := rl.Allow(context.Background(), "k"); !d.Allowed {
		t.Error("request after refill should be allowed")
	}
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	rl := newTestLimiter(60, 1)
	defer rl.Stop()

	rl.Allow(context.Background(), "a")
	if d, _ := rl.Allow(context.Background(), "b"); !d.Allowed {
		t.Error("different key should have its own bucket")
	}
}

func TestRateLimiter_StopTwice(t *testing.T) {
	rl := newTestLimiter(60, 1)
	rl.Stop()
	rl.Stop()
}

// ---------------------------------------------------------------------------
// NewLimiter
// ---------------------------------------------------------------------------

func TestNewLimiter_InMemoryDefaults(t *testing.T) {
	l, err := NewLimiter(config.RateLimitingConfig{Enabled: true})
	if err != nil {
		t.Fatal(err)
	}
	defer l.Stop()
	if _, ok := l.(*RateLimiter); !ok {
		t.Fatalf("limiter = %T, want *RateLimiter", l)
	}
	if l.Limit() != DefaultRateLimitConfig().RequestsPerMinute {
		t.Errorf("Limit() = %d", l.Limit())
	}
}

func TestNewLimiter_Redis(t *testing.T) {
	l, err := NewLimiter(config.RateLimitingConfig{RequestsPerMinute: 120, Burst: 10, RedisURL: "redis://localhost:6379/2"})
	if err != nil {
		t.Fatal(err)
	}
	defer l.Stop()
	rl, ok := l.(*RedisRateLimiter)
	if !ok {
		t.Fatalf("limiter = %T, want *RedisRateLimiter", l)
	}
	if rl.limit.Rate != 120 || rl.limit.Burst != 10 || rl.limit.Period != time.Minute {
		t.Errorf("limit = %+v", rl.limit)
	}
}

func TestNewLimiter_BadRedisURL(t *testing.T) {
	if _, err := NewLimiter(config.RateLimitingConfig{RedisURL: "http://not-redis"}); err == nil {
		t.Error("expected error for non-redis URL")
	}
}

// ---------------------------------------------------------------------------
// RateLimitMiddleware
// ---------------------------------------------------------------------------

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (Decision, error) {
	return Decision{}, errors.New("redis: connection refused")
}
func (failingLimiter) Limit() int { return 1 }
func (failingLimiter) Stop()      {}

func TestRateLimitMiddleware_Rejects(t *testing.T) {
	rl := newTestLimiter(60, 1)
	defer rl.Stop()
	r := gin.New()
	r.Use(RateLimitMiddleware(rl))
	r.GET("/", okHandler)

	if w := serve(r, http.MethodGet, "/", nil); w.Code != http.StatusOK {
		t.Fatalf("first status = %d", w.Code)
	}
	w := serve(r, http.MethodGet, "/", nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", w.Code)
	}
	if w.Body.String() != `{"detail":"rate limit exceeded"}` {
		t.Errorf("body = %s", w.Body)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}
	if w.Header().Get("X-RateLimit-Limit") != "60" {
		t.Errorf("X-RateLimit-Limit = %q", w.Header().Get("X-RateLimit-Limit"))
	}
}

func TestRateLimitMiddleware_FailsOpen(t *testing.T) {
	r := gin.New()
	r.Use(RateLimitMiddleware(failingLimiter{}))
	r.GET("/", okHandler)

	if w := serve(r, http.MethodGet, "/", nil); w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 when limiter errors", w.Code)
	}
}

func TestGetRateLimitKey(t *testing.T) {
	r := gin.New()
	var keys []string
	r.GET("/anon", func(c *gin.Context) { keys = append(keys, getRateLimitKey(c)) })
	r.GET("/user", func(c *gin.Context) {
		c.Set(UserIDKey, int64(42))
		keys = append(keys, getRateLimitKey(c))
	})

	serve(r, http.MethodGet, "/anon", nil)
	serve(r, http.MethodGet, "/anon", map[string]string{APIKeyHeader: "sk-abc"})
	serve(r, http.MethodGet, "/user", nil)

	if len(keys) != 3 {
		t.Fatalf("keys = %v", keys)
	}
	if keys[0][:3] != "ip:" {
		t.Errorf("anonymous key = %q, want ip: prefix", keys[0])
	}
	if keys[1][:7] != "apikey:" || len(keys[1]) != len("apikey:")+16 {
		t.Errorf("api key bucket = %q", keys[1])
	}
	if keys[2] != "user:42" {
		t.Errorf("user key = %q", keys[2])
	}
}
