package api

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"

	"github.com/paintconnect/foreman/internal/redis"
)

func setupTestLimiter(t *testing.T, limit int) (*redis.RateLimiter, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	host, portStr, err := net.SplitHostPort(mr.Addr())
	if err != nil {
		t.Fatalf("bad miniredis addr: %v", err)
	}
	port, _ := strconv.Atoi(portStr)

	client, err := redis.New(context.Background(), redis.Config{Host: host, Port: port}, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to connect to miniredis: %v", err)
	}

	limiter := redis.NewRateLimiter(client, zap.NewNop(), redis.RateLimitConfig{
		Limit:  limit,
		Window: time.Minute,
	})
	return limiter, func() {
		client.Close()
		mr.Close()
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitMiddlewareAllowsAndRejects(t *testing.T) {
	limiter, cleanup := setupTestLimiter(t, 2)
	defer cleanup()

	handler := RateLimitMiddleware(limiter, zap.NewNop(), IPKeyFunc)(okHandler())

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/dispatch/run", nil)
		req.RemoteAddr = "10.0.0.1:54321"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/dispatch/run", nil)
	req.RemoteAddr = "10.0.0.1:54321"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	if rec.Header().Get("X-RateLimit-Remaining") == "" {
		t.Error("expected X-RateLimit-Remaining header")
	}
}

func TestRateLimitMiddlewareSeparatesClients(t *testing.T) {
	limiter, cleanup := setupTestLimiter(t, 1)
	defer cleanup()

	handler := RateLimitMiddleware(limiter, zap.NewNop(), IPKeyFunc)(okHandler())

	for _, addr := range []string{"10.0.0.1:1000", "10.0.0.2:1000"} {
		req := httptest.NewRequest(http.MethodPost, "/v1/dispatch/run", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("client %s: expected 200, got %d", addr, rec.Code)
		}
	}
}

func TestRateLimitMiddlewareNilLimiterPassesThrough(t *testing.T) {
	handler := RateLimitMiddleware(nil, zap.NewNop(), IPKeyFunc)(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/dispatch/run", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
