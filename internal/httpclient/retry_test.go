package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func fastOptions(retries int) Options {
	return Options{
		Retries:   retries,
		Timeout:   time.Second,
		BaseDelay: time.Millisecond,
		MaxDelay:  5 * time.Millisecond,
	}
}

func newRequestTo(url string) func(ctx context.Context) (*http.Request, error) {
	return func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	}
}

func TestDoSucceedsAfterRetryableFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resp, err := Do(context.Background(), srv.Client(), newRequestTo(srv.URL), fastOptions(2))
	if err != nil {
		t.Fatalf("第三次尝试应成功: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("期望 200, 实际 %d", resp.StatusCode)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("期望 3 次请求, 实际 %d", got)
	}
}

func TestDoExhaustsRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := Do(context.Background(), srv.Client(), newRequestTo(srv.URL), fastOptions(2))
	if err == nil {
		t.Fatal("重试耗尽后应报错")
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("retries=2 应恰好请求 3 次, 实际 %d", got)
	}
}

func TestDoTerminalClientError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	resp, err := Do(context.Background(), srv.Client(), newRequestTo(srv.URL), fastOptions(5))
	if err != nil {
		t.Fatalf("终止性 4xx 应原样返回响应: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("期望 404, 实际 %d", resp.StatusCode)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("404 不应重试, 实际请求 %d 次", got)
	}
}

func TestDoRetriesTooManyRequests(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resp, err := Do(context.Background(), srv.Client(), newRequestTo(srv.URL), fastOptions(1))
	if err != nil {
		t.Fatalf("429 应重试后成功: %v", err)
	}
	resp.Body.Close()

	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("期望 2 次请求, 实际 %d", got)
	}
}

func TestDoAttemptTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	opts := Options{
		Retries:   1,
		Timeout:   20 * time.Millisecond,
		BaseDelay: time.Millisecond,
		MaxDelay:  time.Millisecond,
	}

	start := time.Now()
	_, err := Do(context.Background(), srv.Client(), newRequestTo(srv.URL), opts)
	if err == nil {
		t.Fatal("超时后应报错")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("超时应及时取消请求, 耗时 %v", elapsed)
	}
}

func TestBackoffDelayCapped(t *testing.T) {
	opts := Options{BaseDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond}

	if d := backoffDelay(opts, 0); d != 100*time.Millisecond {
		t.Fatalf("attempt 0 期望 100ms, 实际 %v", d)
	}
	if d := backoffDelay(opts, 1); d != 200*time.Millisecond {
		t.Fatalf("attempt 1 期望 200ms, 实际 %v", d)
	}
	if d := backoffDelay(opts, 5); d != 300*time.Millisecond {
		t.Fatalf("应被 MaxDelay 截断, 实际 %v", d)
	}
}

func TestBackoffDelayJitterRange(t *testing.T) {
	opts := Options{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Jitter: true}

	for i := 0; i < 50; i++ {
		d := backoffDelay(opts, 0)
		if d < 50*time.Millisecond || d >= 100*time.Millisecond {
			t.Fatalf("抖动应在 [50ms, 100ms) 区间, 实际 %v", d)
		}
	}
}
